// Package mailbox implements the durable per-recipient append-then-read
// queues used for all leader<->worker messaging: one JSON file per
// (namespace, recipient), written with write-temp-then-rename and read
// back whole on every read.
package mailbox

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ytnobody/teamsctl/internal/lock"
	"github.com/ytnobody/teamsctl/internal/protocol"
	"github.com/ytnobody/teamsctl/internal/sanitize"
)

// Message is one mailbox entry. Text is either free prose or a JSON-encoded
// protocol envelope; Envelope() tries the latter first.
type Message struct {
	From      string    `json:"from"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Read      bool      `json:"read"`
	Color     string    `json:"color,omitempty"`
}

// Envelope tries to parse m.Text as a protocol envelope, falling back to
// ok=false for plain prose — mailbox-level parsers try JSON first, fall
// back to plain text per the wire format note.
func (m Message) Envelope() (protocol.Envelope, bool) {
	return protocol.Decode(m.Text)
}

func filePath(teamDir, ns, recipient string) string {
	return filepath.Join(teamDir, "mailbox", ns, sanitize.Name(recipient)+".json")
}

func lockPath(teamDir, ns, recipient string) string {
	return filePath(teamDir, ns, recipient) + ".lock"
}

// Write appends msg to recipient's inbox in namespace ns, creating parent
// directories on demand. Read defaults to false.
func Write(teamDir, ns, recipient string, msg Message) error {
	path := filePath(teamDir, ns, recipient)
	return lock.WithLock(context.Background(), lockPath(teamDir, ns, recipient), lock.Options{}, func() error {
		msgs, err := readAll(path)
		if err != nil {
			return err
		}
		msg.Read = false
		msgs = append(msgs, msg)
		return writeAll(path, msgs)
	})
}

// ReadInbox returns recipient's messages in namespace ns in FIFO append
// order, without mutating the file. A missing file yields no messages and
// a nil error (torn/missing reads are tolerated, not surfaced).
func ReadInbox(teamDir, ns, recipient string, unreadOnly bool) ([]Message, error) {
	path := filePath(teamDir, ns, recipient)
	msgs, err := readAll(path)
	if err != nil {
		return nil, err
	}
	if !unreadOnly {
		return msgs, nil
	}
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if !m.Read {
			out = append(out, m)
		}
	}
	return out, nil
}

// Predicate decides whether a message should be marked read.
type Predicate func(Message) bool

// MarkRead flips Read to true on every message matching pred, rewriting the
// file atomically.
func MarkRead(teamDir, ns, recipient string, pred Predicate) error {
	path := filePath(teamDir, ns, recipient)
	return lock.WithLock(context.Background(), lockPath(teamDir, ns, recipient), lock.Options{}, func() error {
		msgs, err := readAll(path)
		if err != nil {
			return err
		}
		changed := false
		for i := range msgs {
			if !msgs[i].Read && pred(msgs[i]) {
				msgs[i].Read = true
				changed = true
			}
		}
		if !changed {
			return nil
		}
		return writeAll(path, msgs)
	})
}

// Broadcast writes the same text from "from" to every recipient in
// recipients under namespace ns, stamping all entries with the same
// timestamp.
func Broadcast(teamDir, ns string, recipients []string, from, text string, at time.Time) error {
	for _, r := range recipients {
		if err := Write(teamDir, ns, r, Message{From: from, Text: text, Timestamp: at}); err != nil {
			return fmt.Errorf("mailbox: broadcast to %s: %w", r, err)
		}
	}
	return nil
}

func readAll(path string) ([]Message, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		// IoFault on read recovered locally as empty per error design.
		return nil, nil
	}
	var msgs []Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, nil
	}
	return msgs, nil
}

func writeAll(path string, msgs []Message) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("mailbox: create dir: %w", err)
	}
	if msgs == nil {
		msgs = []Message{}
	}
	data, err := json.MarshalIndent(msgs, "", "  ")
	if err != nil {
		return fmt.Errorf("mailbox: encode: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("mailbox: write temp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("mailbox: rename: %w", err)
	}
	return nil
}
