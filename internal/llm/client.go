package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AtharvSharma0077/ChatbotAI/internal/models"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
)

// ErrNotConfigured is reported when a completion is requested but no
// provider credential was supplied.
var ErrNotConfigured = errors.New("GEMINI_API_KEY is not configured")

// ProviderError wraps every failure of the completion provider: missing
// credential, network failure, provider-side rejection, empty response.
type ProviderError struct {
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("completion provider: %v", e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Turn is a single role-tagged text unit sent to the provider.
type Turn struct {
	Role models.Role
	Text string
}

// roleTokens translates local roles to the provider's chat roles. Exactly
// two entries: anything else is a programming fault.
var roleTokens = map[models.Role]llms.ChatMessageType{
	models.RoleUser:      llms.ChatMessageTypeHuman,
	models.RoleAssistant: llms.ChatMessageTypeAI,
}

const systemInstruction = "You are a helpful AI assistant. Provide clear, accurate, and friendly responses."

// completionTimeout bounds a single provider call. Expiry surfaces as a
// ProviderError like every other provider failure.
const completionTimeout = 60 * time.Second

// Client wraps the remote text-generation call. One call takes an ordered
// turn list and blocks until the provider returns one complete text.
type Client struct {
	model       llms.Model
	temperature float64
}

// New builds a Gemini-backed client. A missing API key is tolerated so the
// server can still boot; Complete then fails with ErrNotConfigured, which
// callers surface as a stream error record.
func New(ctx context.Context, apiKey, model string, temperature float64) (*Client, error) {
	c := &Client{temperature: temperature}
	if apiKey == "" {
		return c, nil
	}

	m, err := googleai.New(ctx,
		googleai.WithAPIKey(apiKey),
		googleai.WithDefaultModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize provider client: %w", err)
	}
	c.model = m
	return c, nil
}

// Complete sends the turns plus the fixed system instruction and returns the
// provider's completion text. All failures are *ProviderError.
func (c *Client) Complete(ctx context.Context, turns []Turn) (string, error) {
	if c.model == nil {
		return "", &ProviderError{Err: ErrNotConfigured}
	}

	content := make([]llms.MessageContent, 0, len(turns)+1)
	content = append(content, llms.TextParts(llms.ChatMessageTypeSystem, systemInstruction))
	for _, t := range turns {
		role, ok := roleTokens[t.Role]
		if !ok {
			return "", &ProviderError{Err: fmt.Errorf("unknown role %q", t.Role)}
		}
		content = append(content, llms.TextParts(role, t.Text))
	}

	ctx, cancel := context.WithTimeout(ctx, completionTimeout)
	defer cancel()

	resp, err := c.model.GenerateContent(ctx, content, llms.WithTemperature(c.temperature))
	if err != nil {
		return "", &ProviderError{Err: err}
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0].Content == "" {
		return "", &ProviderError{Err: errors.New("empty completion")}
	}
	return resp.Choices[0].Content, nil
}
