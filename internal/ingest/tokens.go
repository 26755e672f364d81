package ingest

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// documentTokenBudget caps how much document text goes into one
// extraction request, leaving headroom for the prompt and response.
const documentTokenBudget = 150_000

const encodingName = "cl100k_base"

// Estimator counts tokens with tiktoken, falling back to a chars/4
// estimate when the encoding is unavailable (it downloads on first
// use).
type Estimator struct {
	once     sync.Once
	encoding *tiktoken.Tiktoken
}

func NewEstimator() *Estimator {
	return &Estimator{}
}

func (e *Estimator) load() {
	e.once.Do(func() {
		enc, err := tiktoken.GetEncoding(encodingName)
		if err == nil {
			e.encoding = enc
		}
	})
}

func (e *Estimator) Count(text string) int {
	e.load()
	if e.encoding == nil {
		return len(text) / 4
	}
	return len(e.encoding.Encode(text, nil, nil))
}

// Truncate trims text to roughly budget tokens. Exact token-boundary
// cutting is not needed; the tail of an over-long protocol is
// appendices.
func (e *Estimator) Truncate(text string, budget int) string {
	count := e.Count(text)
	if count <= budget {
		return text
	}
	keep := len(text) * budget / count
	if keep >= len(text) {
		return text
	}
	return text[:keep]
}
