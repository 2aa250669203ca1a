package domain

import (
	"sync/atomic"
	"time"
)

// ConnState is the lifecycle state of one duplex connection.
type ConnState int32

const (
	StateConnecting ConnState = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateOpen:
		return "OPEN"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Session carries the per-connection bookkeeping shared by the read and write
// goroutines of one client.
type Session struct {
	ID          string
	ConnectedAt time.Time

	state      atomic.Int32
	lastActive atomic.Int64
}

func NewSession(id string) *Session {
	now := time.Now()
	s := &Session{ID: id, ConnectedAt: now}
	s.state.Store(int32(StateConnecting))
	s.lastActive.Store(now.UnixNano())
	return s
}

func (s *Session) State() ConnState {
	return ConnState(s.state.Load())
}

// Advance moves the session forward to next. States never move backwards;
// it reports whether the transition happened.
func (s *Session) Advance(next ConnState) bool {
	for {
		cur := s.state.Load()
		if int32(next) <= cur {
			return false
		}
		if s.state.CompareAndSwap(cur, int32(next)) {
			return true
		}
	}
}

func (s *Session) IsOpen() bool {
	return s.State() == StateOpen
}

func (s *Session) UpdateActivity() {
	s.lastActive.Store(time.Now().UnixNano())
}

func (s *Session) LastActiveAt() time.Time {
	return time.Unix(0, s.lastActive.Load())
}
