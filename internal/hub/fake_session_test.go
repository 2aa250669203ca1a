package hub

import (
	"errors"
	"sync"
)

// fakeSession records frames synchronously; it stands in for a WebSocket client.
type fakeSession struct {
	id string

	mu       sync.Mutex
	open     bool
	frames   [][]byte
	enqErr   error
	writeErr error
	attempts int
}

func newFakeSession(id string) *fakeSession {
	return &fakeSession{id: id, open: true}
}

func (f *fakeSession) ID() string { return f.id }

func (f *fakeSession) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *fakeSession) Enqueue(frame []byte) (<-chan error, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.attempts++
	if f.enqErr != nil {
		return nil, f.enqErr
	}
	ack := make(chan error, 1)
	if f.writeErr != nil {
		ack <- f.writeErr
		return ack, nil
	}
	f.frames = append(f.frames, append([]byte(nil), frame...))
	ack <- nil
	return ack, nil
}

func (f *fakeSession) received() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.frames...)
}

func (f *fakeSession) sendAttempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

var errBrokenPipe = errors.New("broken pipe")
