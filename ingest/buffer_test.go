package ingest

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/onnwee/chat-archiver/db"
)

func TestBufferAppendDrain(t *testing.T) {
	b := &Buffer{}
	b.AppendMessage(db.ChatMessage{MsgID: "a"})
	b.AppendMessage(db.ChatMessage{MsgID: "b"})
	b.AppendUserIfAbsent(db.User{ID: 1, Nick: "one"})
	b.AppendUserIfAbsent(db.User{ID: 1, Nick: "one-again"})
	b.AppendUserIfAbsent(db.User{ID: 2, Nick: "two"})

	if b.Depth() != 2 {
		t.Fatalf("depth = %d, want 2", b.Depth())
	}

	messages, users := b.Drain()
	if len(messages) != 2 || messages[0].MsgID != "a" || messages[1].MsgID != "b" {
		t.Fatalf("messages = %v", messages)
	}
	if len(users) != 2 {
		t.Fatalf("users = %v, want first write per id kept", users)
	}
	if users[0].Nick != "one" {
		t.Fatalf("duplicate user overwrote pending entry: %v", users[0])
	}

	// Drain empties unconditionally.
	if b.Depth() != 0 {
		t.Fatalf("depth after drain = %d", b.Depth())
	}
	messages, users = b.Drain()
	if messages != nil || users != nil {
		t.Fatalf("second drain returned data: %v %v", messages, users)
	}
}

func TestBufferMarkDeleted(t *testing.T) {
	b := &Buffer{}
	b.AppendMessage(db.ChatMessage{MsgID: "keep"})
	b.AppendMessage(db.ChatMessage{MsgID: "target"})

	at := time.Now().UTC()
	if !b.MarkDeleted("target", at) {
		t.Fatal("MarkDeleted missed a pending message")
	}
	if b.MarkDeleted("already-flushed", at) {
		t.Fatal("MarkDeleted claimed an absent message")
	}

	messages, _ := b.Drain()
	for _, m := range messages {
		switch m.MsgID {
		case "target":
			if !m.Deleted || m.DeletedAt == nil || !m.DeletedAt.Equal(at) {
				t.Fatalf("target not soft-deleted: %+v", m)
			}
		case "keep":
			if m.Deleted {
				t.Fatalf("untargeted message deleted: %+v", m)
			}
		}
	}
}

// Every appended message ends up in exactly one drained batch or the final
// remainder, regardless of concurrent drains.
func TestBufferConcurrentAppendDrain(t *testing.T) {
	const writers = 8
	const perWriter = 500

	b := &Buffer{}
	var wg sync.WaitGroup

	var drainedMu sync.Mutex
	var drained []db.ChatMessage
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			msgs, _ := b.Drain()
			drainedMu.Lock()
			drained = append(drained, msgs...)
			drainedMu.Unlock()
			select {
			case <-stop:
				return
			default:
			}
		}
	}()

	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				b.AppendMessage(db.ChatMessage{MsgID: fmt.Sprintf("w%d-m%d", w, i)})
			}
		}(w)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	// Writers finish first, then the drainer takes one more pass and exits.
	time.Sleep(10 * time.Millisecond)
	close(stop)
	<-done

	remainder, _ := b.Drain()
	total := len(drained) + len(remainder)
	if total != writers*perWriter {
		t.Fatalf("total = %d, want %d", total, writers*perWriter)
	}

	seen := make(map[string]bool, total)
	for _, m := range append(drained, remainder...) {
		if seen[m.MsgID] {
			t.Fatalf("message %s appeared twice", m.MsgID)
		}
		seen[m.MsgID] = true
	}
}
