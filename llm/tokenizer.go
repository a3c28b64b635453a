package llm

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Model names map to their tiktoken encodings; unknown models fall back to
// cl100k_base or, if the encoding data cannot be loaded, to a characters/4
// estimate.
var modelEncodings = map[string]string{
	"gpt-4o":        "o200k_base",
	"gpt-4o-mini":   "o200k_base",
	"gpt-4-turbo":   "cl100k_base",
	"gpt-4":         "cl100k_base",
	"gpt-3.5-turbo": "cl100k_base",
}

var (
	encodingMu    sync.Mutex
	encodingCache = make(map[string]*tiktoken.Tiktoken)
)

func encodingFor(model string) *tiktoken.Tiktoken {
	name, ok := modelEncodings[model]
	if !ok {
		for prefix, enc := range modelEncodings {
			if len(model) >= len(prefix) && model[:len(prefix)] == prefix {
				name, ok = enc, true
				break
			}
		}
	}
	if !ok {
		name = "cl100k_base"
	}

	encodingMu.Lock()
	defer encodingMu.Unlock()
	if enc, cached := encodingCache[name]; cached {
		return enc
	}
	enc, err := tiktoken.GetEncoding(name)
	if err != nil {
		// Data may be unavailable offline; callers fall back to estimation.
		return nil
	}
	encodingCache[name] = enc
	return enc
}

// EstimateTokens returns the token count of text for the given model.
// Counting uses tiktoken when the encoding is available and degrades to a
// characters/4 heuristic otherwise, so it never fails.
func EstimateTokens(text, model string) int {
	if text == "" {
		return 0
	}
	if enc := encodingFor(model); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return len(text)/4 + 1
}
