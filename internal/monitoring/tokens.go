// Package monitoring - tokens.go estimates prompt size for telemetry when a
// provider reports no usage (most local servers).
package monitoring

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	"github.com/rs/zerolog/log"
)

const estimateEncoding = "cl100k_base"

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
)

// EstimateTokens counts tokens with the cl100k_base encoding. If the
// encoding cannot be loaded it falls back to one token per four runes.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}

	encOnce.Do(func() {
		e, err := tiktoken.GetEncoding(estimateEncoding)
		if err != nil {
			log.Debug().Err(err).Msg("tiktoken unavailable, using rune heuristic")
			return
		}
		enc = e
	})

	if enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return (utf8.RuneCountInString(text) + 3) / 4
}
