// Package tokencount provides a best-effort prompt-token estimate for
// request logging. It is never used for quota accounting — quota is driven
// solely by the usage the upstream provider reports (spec.md §4.7) — this
// exists only so a log row has a plausible prompt_tokens figure when a
// provider's response omits usage entirely (observed for some Gemini
// streaming error paths). Grounded on the teacher's go.mod dependency on
// github.com/tiktoken-go/tokenizer, which the retrieved teacher sources
// never exercised directly.
package tokencount

import (
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

var (
	codecOnce sync.Once
	codec     tokenizer.Codec
	codecErr  error
)

func getCodec() (tokenizer.Codec, error) {
	codecOnce.Do(func() {
		codec, codecErr = tokenizer.Get(tokenizer.Cl100kBase)
	})
	return codec, codecErr
}

// EstimatePromptTokens returns a best-effort token count for text. On any
// tokenizer error it falls back to a whitespace-word-count heuristic rather
// than failing the request — this number is advisory only.
func EstimatePromptTokens(text string) int {
	if text == "" {
		return 0
	}
	c, err := getCodec()
	if err != nil {
		return wordCountFallback(text)
	}
	ids, _, err := c.Encode(text)
	if err != nil {
		return wordCountFallback(text)
	}
	return len(ids)
}

func wordCountFallback(text string) int {
	count := 0
	inWord := false
	for _, r := range text {
		isSpace := r == ' ' || r == '\n' || r == '\t' || r == '\r'
		if !isSpace && !inWord {
			count++
			inWord = true
		} else if isSpace {
			inWord = false
		}
	}
	return count
}
