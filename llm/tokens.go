package llm

import (
	"sync"

	"github.com/tiktoken-go/tokenizer"

	"github.com/becomeliminal/nim-sleepcoach/core"
)

var (
	codecOnce sync.Once
	codec     tokenizer.Codec
)

// perMessageOverhead approximates the role/formatting tokens of each message.
const perMessageOverhead = 4

// EstimateTokens approximates the prompt size of messages with the cl100k
// encoding, falling back to characters/4 when the codec is unavailable.
func EstimateTokens(messages []core.Message) int {
	codecOnce.Do(func() {
		enc, err := tokenizer.Get(tokenizer.Cl100kBase)
		if err == nil {
			codec = enc
		}
	})

	total := 0
	for _, m := range messages {
		total += perMessageOverhead
		if codec != nil {
			if n, err := codec.Count(m.Content); err == nil {
				total += n
				continue
			}
		}
		total += len(m.Content) / 4
	}
	return total
}
