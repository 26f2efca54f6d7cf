package service

import (
	"context"
	"sync"

	"github.com/liliang-cn/ragmentor/internal/domain"
	"github.com/liliang-cn/ragmentor/internal/ingest"
)

type fakeUsers struct {
	byEmail map[string]*domain.User
}

func (f *fakeUsers) Resolve(_ context.Context, id domain.Identity) (*domain.User, error) {
	if u, ok := f.byEmail[id.Email]; ok {
		return u, nil
	}
	return nil, domain.ErrNotFound
}

type fakeConversations struct {
	mu      sync.Mutex
	next    int64
	convs   map[int64]*domain.Conversation
	created int
}

func newFakeConversations() *fakeConversations {
	return &fakeConversations{convs: make(map[int64]*domain.Conversation)}
}

func (f *fakeConversations) add(userID int64, messages ...domain.Message) *domain.Conversation {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	conv := &domain.Conversation{ID: f.next, UserID: userID, Messages: messages}
	f.convs[conv.ID] = conv
	return copyConversation(conv)
}

func (f *fakeConversations) Create(_ context.Context, userID int64) (*domain.Conversation, error) {
	f.mu.Lock()
	f.created++
	f.mu.Unlock()
	return f.add(userID), nil
}

func (f *fakeConversations) Get(_ context.Context, id int64) (*domain.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.convs[id]
	if !ok {
		return nil, nil
	}
	return copyConversation(conv), nil
}

func (f *fakeConversations) AppendTurn(_ context.Context, id int64, messages ...domain.Message) (*domain.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.convs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	conv.Messages = append(conv.Messages, messages...)
	return copyConversation(conv), nil
}

func (f *fakeConversations) ListByUser(_ context.Context, userID int64, _ domain.Page) ([]*domain.Conversation, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Conversation
	for _, c := range f.convs {
		if c.UserID == userID {
			out = append(out, copyConversation(c))
		}
	}
	return out, len(out), nil
}

func (f *fakeConversations) Delete(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.convs[id]; !ok {
		return domain.ErrNotFound
	}
	delete(f.convs, id)
	return nil
}

func (f *fakeConversations) messages(id int64) []domain.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Message(nil), f.convs[id].Messages...)
}

func copyConversation(c *domain.Conversation) *domain.Conversation {
	cp := *c
	cp.Messages = append([]domain.Message(nil), c.Messages...)
	return &cp
}

type fakeRetriever struct {
	hits    []domain.SearchHit
	err     error
	queries []string
}

func (f *fakeRetriever) Search(_ context.Context, query string, _ int) ([]domain.SearchHit, error) {
	f.queries = append(f.queries, query)
	return f.hits, f.err
}

type fakeDetector struct {
	messages []string
	err      error
}

func (f *fakeDetector) DetectAndLog(_ context.Context, message, _ string) (*domain.AnonymousQuestion, error) {
	f.messages = append(f.messages, message)
	return nil, f.err
}

type fakeRecorder struct {
	mu        sync.Mutex
	exchanges []Exchange
}

func (f *fakeRecorder) Record(_ context.Context, ex Exchange) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exchanges = append(f.exchanges, ex)
	return nil
}

// fakeStreamer yields fragments, or repeats "tick" until cancelled when
// endless is set
type fakeStreamer struct {
	mu        sync.Mutex
	fragments []string
	endless   bool
	prompts   []string
	systems   []string
}

func (f *fakeStreamer) Name() string { return "fake" }

func (f *fakeStreamer) Stream(ctx context.Context, prompt, systemInstruction string) <-chan string {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.systems = append(f.systems, systemInstruction)
	f.mu.Unlock()

	out := make(chan string)
	go func() {
		defer close(out)
		emit := func(s string) bool {
			select {
			case out <- s:
				return true
			case <-ctx.Done():
				return false
			}
		}
		if f.endless {
			for emit("tick") {
			}
			return
		}
		for _, s := range f.fragments {
			if !emit(s) {
				return
			}
		}
	}()
	return out
}

func (f *fakeStreamer) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

type fakeIngester struct {
	sources []ingest.Source
	chunks  int
	err     error
}

func (f *fakeIngester) IngestDocument(_ context.Context, src ingest.Source) (int, error) {
	f.sources = append(f.sources, src)
	return f.chunks, f.err
}

type fakeIndex struct {
	chunks       []domain.StoredChunk
	listErr      error
	listLimit    int
	deleted      []string
	deleteErr    error
	deleteAllN   int
	deleteAllErr error
}

func (f *fakeIndex) DeleteByProvenance(_ context.Context, externalID string) (domain.DeleteResult, error) {
	f.deleted = append(f.deleted, externalID)
	if f.deleteErr != nil {
		return domain.DeleteResult{ExternalID: externalID}, f.deleteErr
	}
	return domain.DeleteResult{ExternalID: externalID, DeletedCount: 3}, nil
}

func (f *fakeIndex) DeleteAll(context.Context) (int, error) {
	return f.deleteAllN, f.deleteAllErr
}

func (f *fakeIndex) List(_ context.Context, limit int) ([]domain.StoredChunk, error) {
	f.listLimit = limit
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.chunks, nil
}

func (f *fakeIndex) CollectionInfo() domain.CollectionInfo {
	return domain.CollectionInfo{Name: "documents", Count: len(f.chunks), Status: "active"}
}
