package model

import (
	"github.com/pkoukk/tiktoken-go"
)

// CountTokens approximates the token length of text. Falls back to a
// chars/4 estimate if the encoding cannot be loaded.
func CountTokens(text string) int {
	enc, err := tiktoken.EncodingForModel("gpt-3.5-turbo")
	if err != nil {
		return len(text) / 4
	}
	return len(enc.Encode(text, nil, nil))
}

// batchTexts groups texts so that no batch exceeds the per-call item limit or
// the provider's token budget. Order is preserved across batches.
func batchTexts(texts []string, maxItems, maxTokens int) [][]string {
	var batches [][]string
	var cur []string
	tokens := 0
	for _, t := range texts {
		n := CountTokens(t)
		if len(cur) > 0 && (len(cur) >= maxItems || tokens+n > maxTokens) {
			batches = append(batches, cur)
			cur = nil
			tokens = 0
		}
		cur = append(cur, t)
		tokens += n
	}
	if len(cur) > 0 {
		batches = append(batches, cur)
	}
	return batches
}
