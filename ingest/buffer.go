package ingest

import (
	"sync"
	"time"

	"github.com/onnwee/chat-archiver/db"
	"github.com/onnwee/chat-archiver/telemetry"
)

// Buffer accumulates parsed chat events between flush ticks. The dispatch
// loop appends, the flush task drains; the lock is never held across I/O.
type Buffer struct {
	mu       sync.Mutex
	messages []db.ChatMessage
	users    []db.User
}

// AppendMessage queues a chat message for the next flush.
func (b *Buffer) AppendMessage(m db.ChatMessage) {
	b.mu.Lock()
	b.messages = append(b.messages, m)
	depth := len(b.messages)
	b.mu.Unlock()
	telemetry.SetBufferDepth(depth)
}

// AppendUserIfAbsent queues a user upsert unless the id is already pending.
func (b *Buffer) AppendUserIfAbsent(u db.User) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, existing := range b.users {
		if existing.ID == u.ID {
			return
		}
	}
	b.users = append(b.users, u)
}

// MarkDeleted soft-deletes a pending message in place. Returns false when no
// pending message has the id (it was flushed in an earlier cycle, or never
// seen).
func (b *Buffer) MarkDeleted(msgID string, at time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.messages {
		if b.messages[i].MsgID == msgID {
			b.messages[i].Deleted = true
			b.messages[i].DeletedAt = &at
			return true
		}
	}
	return false
}

// Drain swaps out and returns both pending slices. The buffer is empty on
// return regardless of what the caller does with the batch.
func (b *Buffer) Drain() ([]db.ChatMessage, []db.User) {
	b.mu.Lock()
	messages, users := b.messages, b.users
	b.messages, b.users = nil, nil
	b.mu.Unlock()
	telemetry.SetBufferDepth(0)
	return messages, users
}

// Depth reports the number of messages awaiting flush.
func (b *Buffer) Depth() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.messages)
}
