// Package moonshot implements the Moonshot (Kimi) codec, which is
// wire-compatible with OpenAI Chat Completions. Grounded directly on
// original_source/src-tauri/src/modality/chat/moonshot.rs, which delegates
// its entire codec to the OpenAI implementation rather than duplicating it.
package moonshot

import (
	"github.com/llm-gateway/gateway/internal/codec"
	"github.com/llm-gateway/gateway/internal/codec/openai"
)

func init() {
	codec.Register(codec.FormatMoonshot,
		func() codec.Decoder { return openai.Codec{} },
		func() codec.Encoder { return &openai.Codec{} },
	)
}
