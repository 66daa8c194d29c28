package chat

import (
	"context"
	"time"

	"github.com/AtharvSharma0077/ChatbotAI/internal/llm"
	"github.com/AtharvSharma0077/ChatbotAI/internal/models"
	"go.uber.org/zap"
)

// Store is what the orchestrator needs from persistence.
type Store interface {
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	InsertMessage(ctx context.Context, msg *models.Message) error
	ListMessages(ctx context.Context, conversationID string) ([]models.Message, error)
	UpdateConversationMeta(ctx context.Context, id string, updatedAt time.Time, title string) error
}

// Completer is what the orchestrator needs from the completion provider.
type Completer interface {
	Complete(ctx context.Context, turns []llm.Turn) (string, error)
}

// titleLimit is how many characters of the first user message become the
// conversation title.
const titleLimit = 50

// Service coordinates one message exchange: persist the user message, load
// history, call the provider, persist the reply, bump the conversation
// metadata, and emit exactly one stream record.
type Service struct {
	store     Store
	completer Completer
	logger    *zap.Logger
	tokens    *tokenCounter
	maxTokens int
	now       func() time.Time
}

func NewService(store Store, completer Completer, logger *zap.Logger, maxHistoryTokens int) *Service {
	return &Service{
		store:     store,
		completer: completer,
		logger:    logger,
		tokens:    newTokenCounter(),
		maxTokens: maxHistoryTokens,
		now:       models.Now,
	}
}

// Exchange runs one exchange for the conversation. An unknown conversation
// id returns db.ErrNotFound before anything is written; every later failure
// is reported as an error record on the returned channel instead. The
// channel carries exactly one record and is then closed.
func (s *Service) Exchange(ctx context.Context, conversationID, content string) (<-chan Record, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	// The provider call and both writes run to their natural end even if
	// the caller disconnects; only the emit can be lost.
	bg := context.WithoutCancel(ctx)

	out := make(chan Record, 1)
	go func() {
		defer close(out)
		out <- s.run(bg, conv, content)
	}()
	return out, nil
}

func (s *Service) run(ctx context.Context, conv *models.Conversation, content string) Record {
	log := s.logger.With(zap.String("conversation_id", conv.ID))

	// The user message is recorded first and stays recorded even when a
	// later step fails: user input is never silently lost.
	userMsg := models.NewMessage(conv.ID, models.RoleUser, content, s.now())
	if err := s.store.InsertMessage(ctx, userMsg); err != nil {
		log.Error("failed to save user message", zap.Error(err))
		return ErrorRecord(err)
	}

	history, err := s.store.ListMessages(ctx, conv.ID)
	if err != nil {
		log.Error("failed to load history", zap.Error(err))
		return ErrorRecord(err)
	}

	turns := trimToBudget(buildTurns(history, content), s.tokens, s.maxTokens)
	log.Debug("assembled history",
		zap.Int("turns", len(turns)),
		zap.Int("prompt_tokens", s.tokens.count(turns)))

	completion, err := s.completer.Complete(ctx, turns)
	if err != nil {
		log.Error("failed to generate completion", zap.Error(err))
		return ErrorRecord(err)
	}

	replyAt := s.now()
	if !replyAt.After(userMsg.Timestamp) {
		// Storage precision is one microsecond; keep the reply strictly
		// after the user message.
		replyAt = userMsg.Timestamp.Add(time.Microsecond)
	}
	reply := models.NewMessage(conv.ID, models.RoleAssistant, completion, replyAt)
	if err := s.store.InsertMessage(ctx, reply); err != nil {
		log.Error("failed to save assistant message", zap.Error(err))
		return ErrorRecord(err)
	}

	// Sentinel check uses the snapshot fetched at lookup time. Two racing
	// first exchanges may both derive a title; last write wins.
	title := conv.Title
	if title == models.DefaultTitle {
		title = deriveTitle(content)
	}
	if err := s.store.UpdateConversationMeta(ctx, conv.ID, s.now(), title); err != nil {
		log.Error("failed to update conversation", zap.Error(err))
		return ErrorRecord(err)
	}

	log.Info("exchange completed", zap.String("message_id", reply.ID))
	return MessageRecord(reply)
}

func deriveTitle(content string) string {
	r := []rune(content)
	if len(r) <= titleLimit {
		return content
	}
	return string(r[:titleLimit]) + "..."
}
