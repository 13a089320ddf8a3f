package llm

import (
	"log/slog"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter returns the number of tokens in text.
type TokenCounter func(text string) int

// DefaultEncoding is the tiktoken encoding used by TiktokenCounter.
const DefaultEncoding = "cl100k_base"

// ApproxTokens estimates tokens as one per four bytes.
func ApproxTokens(text string) int {
	return len(text) / 4
}

// TiktokenCounter returns a TokenCounter backed by the named tiktoken
// encoding. The encoding is loaded on first use; if it cannot be loaded the
// counter falls back to ApproxTokens for the life of the process.
func TiktokenCounter(encoding string) TokenCounter {
	var (
		once sync.Once
		enc  *tiktoken.Tiktoken
	)
	return func(text string) int {
		once.Do(func() {
			e, err := tiktoken.GetEncoding(encoding)
			if err != nil {
				slog.Warn("tiktoken encoding unavailable, estimating tokens", "encoding", encoding, "error", err)
				return
			}
			enc = e
		})
		if enc == nil {
			return ApproxTokens(text)
		}
		return len(enc.Encode(text, nil, nil))
	}
}
