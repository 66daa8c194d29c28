package chat

import (
	"github.com/AtharvSharma0077/ChatbotAI/internal/llm"
	"github.com/AtharvSharma0077/ChatbotAI/internal/models"
	"github.com/pkoukk/tiktoken-go"
)

// buildTurns converts a conversation's stored messages plus the new user
// content into the provider turn list. The new user message was persisted
// before the history load, so the trailing element is dropped here and the
// content appended once as the final user turn.
func buildTurns(history []models.Message, content string) []llm.Turn {
	if n := len(history); n > 0 {
		history = history[:n-1]
	}

	turns := make([]llm.Turn, 0, len(history)+1)
	for _, msg := range history {
		turns = append(turns, llm.Turn{Role: msg.Role, Text: msg.Content})
	}
	return append(turns, llm.Turn{Role: models.RoleUser, Text: content})
}

// tokenCounter gives an approximate size of the assembled prompt. Gemini
// tokenizes differently than cl100k_base, but the estimate is close enough
// for logging and for the optional history budget.
type tokenCounter struct {
	enc *tiktoken.Tiktoken
}

func newTokenCounter() *tokenCounter {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		// Counting is best effort; without an encoding it reports -1
		// and the budget never trims.
		return &tokenCounter{}
	}
	return &tokenCounter{enc: enc}
}

func (t *tokenCounter) count(turns []llm.Turn) int {
	if t.enc == nil {
		return -1
	}
	n := 0
	for _, turn := range turns {
		n += len(t.enc.Encode(turn.Text, nil, nil))
	}
	return n
}

// trimToBudget drops oldest turns until the prompt fits maxTokens. The
// trailing user turn is never dropped. A budget of 0 disables trimming.
func trimToBudget(turns []llm.Turn, counter *tokenCounter, maxTokens int) []llm.Turn {
	if maxTokens <= 0 {
		return turns
	}
	for len(turns) > 1 && counter.count(turns) > maxTokens {
		turns = turns[1:]
	}
	return turns
}
