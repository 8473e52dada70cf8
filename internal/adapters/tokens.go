package adapters

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"github.com/rs/zerolog/log"
)

const estimateEncoding = "cl100k_base"

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
)

// EstimateTokens counts tokens with the cl100k encoding. Used only when a
// provider response carries no usage block. Falls back to len/4 when the
// encoding cannot be loaded (it is fetched on first use).
func EstimateTokens(texts ...string) int {
	encOnce.Do(func() {
		e, err := tiktoken.GetEncoding(estimateEncoding)
		if err != nil {
			log.Warn().Err(err).Msg("tiktoken encoding unavailable, using byte estimate")
			return
		}
		enc = e
	})

	total := 0
	for _, t := range texts {
		if t == "" {
			continue
		}
		if enc != nil {
			total += len(enc.Encode(t, nil, nil))
		} else {
			total += (len(t) + 3) / 4
		}
	}
	return total
}
