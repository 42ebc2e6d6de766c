package history

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quillchat/quill/pkg/chat"
	"github.com/quillchat/quill/pkg/logger"
)

// Saver coalesces frequent in-session conversation mutations into infrequent
// durable writes. Stream completion and cancellation bypass the debounce with
// Commit. Persistence failures are logged and retried once; they never fail
// the generation that produced the content.
type Saver struct {
	store    *Store
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]chat.Conversation
	timer   *time.Timer
	closed  bool
}

// NewSaver creates a saver writing to store after debounce of inactivity
func NewSaver(store *Store, debounce time.Duration) *Saver {
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	return &Saver{
		store:    store,
		debounce: debounce,
		pending:  make(map[string]chat.Conversation),
	}
}

// Queue records the latest snapshot of the conversation for a debounced
// write. Later snapshots of the same conversation replace earlier ones.
// The returned conversation carries an assigned id.
func (s *Saver) Queue(conv chat.Conversation) chat.Conversation {
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return conv
	}

	s.pending[conv.ID] = conv
	if s.timer == nil {
		s.timer = time.AfterFunc(s.debounce, s.flushPending)
	} else {
		s.timer.Reset(s.debounce)
	}
	return conv
}

// Commit durably writes the conversation immediately, superseding any
// debounced snapshot of it.
func (s *Saver) Commit(conv chat.Conversation) chat.Conversation {
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}

	s.mu.Lock()
	delete(s.pending, conv.ID)
	s.mu.Unlock()

	s.write(conv)
	return conv
}

// Flush durably writes every pending snapshot now
func (s *Saver) Flush() {
	s.flushPending()
}

// Close flushes pending snapshots and stops the timer
func (s *Saver) Close() {
	s.mu.Lock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
	}
	s.mu.Unlock()

	s.flushPending()
}

func (s *Saver) flushPending() {
	s.mu.Lock()
	snapshots := make([]chat.Conversation, 0, len(s.pending))
	for _, conv := range s.pending {
		snapshots = append(snapshots, conv)
	}
	s.pending = make(map[string]chat.Conversation)
	s.mu.Unlock()

	for _, conv := range snapshots {
		s.write(conv)
	}
}

// write persists one snapshot with a single retry
func (s *Saver) write(conv chat.Conversation) {
	if _, err := s.store.SaveConversation(conv); err != nil {
		logger.Warn("failed to save conversation %s, retrying: %v", conv.ID, err)
		if _, err := s.store.SaveConversation(conv); err != nil {
			logger.Error("failed to save conversation %s: %v", conv.ID, err)
		}
	}
}
