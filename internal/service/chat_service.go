package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/liliang-cn/ragmentor/internal/domain"
	"github.com/liliang-cn/ragmentor/internal/llm"
	"github.com/liliang-cn/ragmentor/internal/lock"
	"github.com/liliang-cn/ragmentor/internal/metrics"
)

const (
	challengePrefix = "/challenge"
	sourcesHeader   = "\n\n**Sources consulted:**\n"

	defaultPersistTimeout = 10 * time.Second
)

// UserResolver maps a verified identity onto a directory user
type UserResolver interface {
	Resolve(ctx context.Context, id domain.Identity) (*domain.User, error)
}

// ConversationStore is the conversation state store
type ConversationStore interface {
	Create(ctx context.Context, userID int64) (*domain.Conversation, error)
	Get(ctx context.Context, id int64) (*domain.Conversation, error)
	AppendTurn(ctx context.Context, id int64, messages ...domain.Message) (*domain.Conversation, error)
	ListByUser(ctx context.Context, userID int64, page domain.Page) ([]*domain.Conversation, int, error)
	Delete(ctx context.Context, id int64) error
}

// Retriever answers nearest-neighbour queries
type Retriever interface {
	Search(ctx context.Context, query string, k int) ([]domain.SearchHit, error)
}

// QuestionDetector logs messages that read as questions
type QuestionDetector interface {
	DetectAndLog(ctx context.Context, message, extra string) (*domain.AnonymousQuestion, error)
}

// ExchangeRecorder stores per-turn usage statistics
type ExchangeRecorder interface {
	Record(ctx context.Context, ex Exchange) error
}

// ChatDeps are the collaborators of ChatService
type ChatDeps struct {
	Users         UserResolver
	Conversations ConversationStore
	Retriever     Retriever
	Detector      QuestionDetector
	Recorder      ExchangeRecorder
	Streamer      llm.Streamer
	Locker        lock.Locker
	Metrics       *metrics.Chat
	SystemPrompt  string
	TopK          int
	Logger        *zap.Logger
}

// ChatService is the retrieval-augmented chat orchestrator
type ChatService struct {
	deps           ChatDeps
	logger         *zap.Logger
	persistTimeout time.Duration
	// background runs side work that must not hold up the turn
	background func(func())
}

// NewChatService creates a new chat service
func NewChatService(deps ChatDeps) *ChatService {
	if deps.Locker == nil {
		deps.Locker = lock.Nop{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &ChatService{
		deps:           deps,
		logger:         deps.Logger,
		persistTimeout: defaultPersistTimeout,
		background:     func(f func()) { go f() },
	}
}

// Turn is a chat turn whose answer is being streamed
type Turn struct {
	ConversationID int64
	// Fragments yields the answer as it is produced and is closed once the
	// turn has been persisted
	Fragments <-chan string
}

// turn carries one request through the orchestration steps
type turn struct {
	user        *domain.User
	identity    domain.Identity
	conv        *domain.Conversation
	message     string
	instruction string
	challenge   bool
	context     string
	sources     []domain.Source
	prompt      string
	started     time.Time
	unlock      func()
}

// Chat runs one turn. Identity, ownership and lookup failures are returned
// before anything is streamed; once a Turn is returned every later failure
// is reported in-band or logged.
func (s *ChatService) Chat(ctx context.Context, identity domain.Identity, req domain.ChatRequest) (*Turn, error) {
	message := req.Message
	if strings.TrimSpace(message) == "" {
		return nil, fmt.Errorf("%w: message is required", domain.ErrInvalidRequest)
	}

	t := &turn{identity: identity, message: message, started: time.Now(), unlock: func() {}}

	user, err := s.deps.Users.Resolve(ctx, identity)
	if err != nil {
		return nil, err
	}
	t.user = user

	if err := s.resolveConversation(ctx, t, req.ConversationID); err != nil {
		t.unlock()
		return nil, err
	}

	s.detectQuestion(ctx, t)
	s.buildContext(ctx, t)
	t.prompt = composePrompt(t.conv.Messages, t.instruction)

	out := make(chan string)
	go s.stream(ctx, t, out)

	return &Turn{ConversationID: t.conv.ID, Fragments: out}, nil
}

func (s *ChatService) resolveConversation(ctx context.Context, t *turn, id int64) error {
	if id != 0 {
		unlock, err := s.deps.Locker.Lock(ctx, "conversation:"+strconv.FormatInt(id, 10))
		if err != nil {
			return fmt.Errorf("lock conversation %d: %w", id, err)
		}
		t.unlock = unlock

		conv, err := s.deps.Conversations.Get(ctx, id)
		if err != nil {
			return fmt.Errorf("load conversation %d: %w", id, err)
		}
		if conv != nil {
			if conv.UserID != t.user.ID {
				return fmt.Errorf("%w: conversation %d belongs to another user", domain.ErrForbidden, id)
			}
			t.conv = conv
			return nil
		}
		s.logger.Info("Conversation not found, starting a new one", zap.Int64("requested_id", id))
	}

	conv, err := s.deps.Conversations.Create(ctx, t.user.ID)
	if err != nil {
		return fmt.Errorf("create conversation: %w", err)
	}
	t.conv = conv
	return nil
}

// detectQuestion logs the message as an anonymous question without
// waiting for the result
func (s *ChatService) detectQuestion(ctx context.Context, t *turn) {
	if s.deps.Detector == nil {
		return
	}
	message, convID := t.message, t.conv.ID
	detached := context.WithoutCancel(ctx)

	s.background(func() {
		ctx, cancel := context.WithTimeout(detached, s.persistTimeout)
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("Question detection panicked", zap.Int64("conversation_id", convID), zap.Any("panic", r))
			}
		}()
		if _, err := s.deps.Detector.DetectAndLog(ctx, message, ""); err != nil {
			s.logger.Warn("Question detection failed", zap.Int64("conversation_id", convID), zap.Error(err))
		}
	})
}

func (s *ChatService) buildContext(ctx context.Context, t *turn) {
	if instruction, ok := challengeInstruction(t.message); ok {
		t.challenge = true
		t.instruction = instruction
		return
	}
	t.instruction = t.message

	if s.deps.Retriever == nil {
		return
	}
	hits, err := s.deps.Retriever.Search(ctx, t.message, s.deps.TopK)
	if err != nil {
		s.logger.Warn("Retrieval failed, answering without context",
			zap.Int64("conversation_id", t.conv.ID), zap.Error(err))
		return
	}

	blocks := make([]string, 0, len(hits))
	for _, hit := range hits {
		if strings.TrimSpace(hit.Content) != "" {
			blocks = append(blocks, hit.Content)
		}
	}
	t.context = strings.Join(blocks, "\n")
	t.sources = collectSources(hits)

	if t.context != "" {
		t.instruction = fmt.Sprintf("Given the following context:\n%s\n\nQuestion: %s", t.context, t.message)
	}
}

// stream forwards provider fragments, appends the sources footer and
// persists the turn. It owns out and closes it.
func (s *ChatService) stream(ctx context.Context, t *turn, out chan<- string) {
	defer close(out)
	defer t.unlock()

	providerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var answer strings.Builder
	delivered := true
	for fragment := range s.deps.Streamer.Stream(providerCtx, t.prompt, s.deps.SystemPrompt) {
		answer.WriteString(fragment)
		if !send(ctx, out, fragment) {
			delivered = false
			cancel()
			break
		}
	}
	if ctx.Err() != nil {
		delivered = false
	}

	if delivered && !t.challenge && len(t.sources) > 0 {
		footer := formatSources(t.sources)
		answer.WriteString(footer)
		for _, r := range footer {
			if !send(ctx, out, string(r)) {
				delivered = false
				break
			}
		}
	}

	outcome := metrics.OutcomeCompleted
	if !delivered {
		outcome = metrics.OutcomeCancelled
		s.logger.Info("Client disconnected mid-stream",
			zap.Int64("conversation_id", t.conv.ID), zap.Int("accumulated", answer.Len()))
	} else if strings.Contains(answer.String(), llm.ErrorPrefix) {
		outcome = metrics.OutcomeFailed
	}

	elapsed := time.Since(t.started)
	s.persist(ctx, t, answer.String(), elapsed)
	s.deps.Metrics.ObserveTurn(s.deps.Streamer.Name(), outcome, elapsed, t.context != "")
}

// persist writes the turn with a context detached from the request, so a
// disconnected client still gets its partial answer stored
func (s *ChatService) persist(ctx context.Context, t *turn, answer string, elapsed time.Duration) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.persistTimeout)
	defer cancel()

	_, err := s.deps.Conversations.AppendTurn(ctx, t.conv.ID,
		domain.Message{Role: domain.RoleUser, Content: t.message},
		domain.Message{Role: domain.RoleAssistant, Content: answer},
	)
	if err != nil {
		s.logger.Error("Failed to persist conversation", zap.Int64("conversation_id", t.conv.ID), zap.Error(err))
	}

	if s.deps.Recorder == nil {
		return
	}
	userID := t.user.ID
	err = s.deps.Recorder.Record(ctx, Exchange{
		UserID:          &userID,
		UserEmail:       t.identity.Email,
		Message:         t.message,
		Provider:        s.deps.Streamer.Name(),
		ResponseTime:    elapsed,
		RAGContextFound: t.context != "",
	})
	if err != nil {
		s.logger.Warn("Failed to record chat statistics", zap.Int64("conversation_id", t.conv.ID), zap.Error(err))
	}
}

// ListConversations returns the caller's conversations, most recent first
func (s *ChatService) ListConversations(ctx context.Context, user *domain.User, page domain.Page) (*domain.ConversationListResponse, error) {
	convs, total, err := s.deps.Conversations.ListByUser(ctx, user.ID, page)
	if err != nil {
		return nil, err
	}
	if convs == nil {
		convs = []*domain.Conversation{}
	}
	return &domain.ConversationListResponse{Conversations: convs, Total: total, Page: page.Page, PageSize: page.PageSize}, nil
}

// GetConversation returns one conversation owned by user
func (s *ChatService) GetConversation(ctx context.Context, user *domain.User, id int64) (*domain.Conversation, error) {
	conv, err := s.deps.Conversations.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, fmt.Errorf("%w: conversation %d", domain.ErrNotFound, id)
	}
	if conv.UserID != user.ID {
		return nil, fmt.Errorf("%w: conversation %d belongs to another user", domain.ErrForbidden, id)
	}
	return conv, nil
}

// DeleteConversation removes a conversation owned by user
func (s *ChatService) DeleteConversation(ctx context.Context, user *domain.User, id int64) error {
	if _, err := s.GetConversation(ctx, user, id); err != nil {
		return err
	}
	if err := s.deps.Conversations.Delete(ctx, id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("%w: conversation %d", domain.ErrNotFound, id)
		}
		return err
	}
	s.logger.Info("Conversation deleted", zap.Int64("conversation_id", id), zap.Int64("user_id", user.ID))
	return nil
}

func send(ctx context.Context, out chan<- string, fragment string) bool {
	select {
	case out <- fragment:
		return true
	case <-ctx.Done():
		return false
	}
}

// challengeInstruction rewrites a /challenge command into an LLM instruction
func challengeInstruction(message string) (string, bool) {
	if !strings.HasPrefix(message, challengePrefix) {
		return "", false
	}
	topic := strings.TrimSpace(strings.TrimPrefix(message, challengePrefix))
	if topic == "" {
		return "Create a challenge based on the context of our conversation so far.", true
	}
	return "Create a challenge about the following topic: " + topic, true
}

// composePrompt renders the history plus the new user turn, one
// "role: content" line per message
func composePrompt(history []domain.Message, instruction string) string {
	lines := make([]string, 0, len(history)+1)
	for _, m := range history {
		lines = append(lines, m.Role+": "+m.Content)
	}
	lines = append(lines, domain.RoleUser+": "+instruction)
	return strings.Join(lines, "\n")
}

// collectSources returns the distinct citations of hits in first-seen order
func collectSources(hits []domain.SearchHit) []domain.Source {
	seen := make(map[domain.Source]bool)
	var sources []domain.Source
	for _, hit := range hits {
		src := domain.Source{
			Name: hit.Metadata[domain.MetadataKeySource],
			Link: hit.Metadata[domain.MetadataKeyLink],
		}
		if src.Name == "" || seen[src] {
			continue
		}
		seen[src] = true
		sources = append(sources, src)
	}
	return sources
}

func formatSources(sources []domain.Source) string {
	var b strings.Builder
	b.WriteString(sourcesHeader)
	for _, src := range sources {
		if src.Link != "" {
			fmt.Fprintf(&b, "- [%s](%s)\n", src.Name, src.Link)
		} else {
			fmt.Fprintf(&b, "- %s\n", src.Name)
		}
	}
	return b.String()
}
