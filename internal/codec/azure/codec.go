// Package azure implements the Azure OpenAI codec. Its request/response/
// stream shapes are identical to OpenAI Chat Completions — only the upstream
// auth header differs (api-key instead of a Bearer token), which the proxy's
// auth code handles, not the codec. The upstream URL uses the same
// /v1/chat/completions suffix as OpenAI Chat; Azure's deployment-based URL
// layout is not built. Delegates entirely to internal/codec/openai,
// the same pattern original_source uses for Moonshot.
package azure

import (
	"github.com/llm-gateway/gateway/internal/codec"
	"github.com/llm-gateway/gateway/internal/codec/openai"
)

func init() {
	codec.Register(codec.FormatAzureOpenAI,
		func() codec.Decoder { return openai.Codec{} },
		func() codec.Encoder { return &openai.Codec{} },
	)
}
