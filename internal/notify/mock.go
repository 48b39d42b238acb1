package notify

import (
	"context"
	"sync"
)

// Sent records one delivered mock notification.
type Sent struct {
	UserID  int64
	Message Message
}

// Mock is an in-memory sink for tests.
type Mock struct {
	mu   sync.Mutex
	sent []Sent

	// Err, when set, is returned from every Notify call.
	Err error
}

func (m *Mock) Notify(_ context.Context, userID int64, msg Message) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	m.sent = append(m.sent, Sent{UserID: userID, Message: msg})
	m.mu.Unlock()
	return nil
}

// Deliveries returns a copy of everything sent so far.
func (m *Mock) Deliveries() []Sent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Sent, len(m.sent))
	copy(out, m.sent)
	return out
}
