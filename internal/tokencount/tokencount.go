// Package tokencount estimates token counts for telemetry and context
// budgeting.
package tokencount

import (
	"github.com/pkoukk/tiktoken-go"
)

// defaultEncoding matches the tokenizer used by current OpenAI chat and
// embedding models and is a close enough estimate for the others.
const defaultEncoding = "cl100k_base"

// Counter counts tokens with a tiktoken encoding. When the encoding
// cannot be loaded (the BPE ranks are fetched on first use, which can
// fail offline), counts degrade to a characters-per-token estimate.
type Counter struct {
	enc *tiktoken.Tiktoken
}

// NewCounter creates a counter. It never fails; a missing encoding
// just means approximate counts.
func NewCounter() *Counter {
	enc, err := tiktoken.GetEncoding(defaultEncoding)
	if err != nil {
		return &Counter{}
	}
	return &Counter{enc: enc}
}

// Count returns the token count for text.
func (c *Counter) Count(text string) int {
	if c.enc == nil {
		// Rough average of four characters per token for English text.
		return (len(text) + 3) / 4
	}
	return len(c.enc.Encode(text, nil, nil))
}
