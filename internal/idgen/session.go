package idgen

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/nrednav/cuid2"
	"github.com/oklog/ulid/v2"
	"github.com/segmentio/ksuid"
)

// Session id formats.
const (
	SessionUUID   = "uuid"
	SessionULID   = "ulid"
	SessionKSUID  = "ksuid"
	SessionNanoID = "nanoid"
	SessionCUID2  = "cuid2"
)

const (
	sessionNanoIDSize     = 21
	sessionNanoIDAlphabet = "_-0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	sessionCUID2Length    = 24
)

// SessionIDs hands out connection ids. They only need to be unique, not ordered.
type SessionIDs interface {
	NewSessionID() (string, error)
}

// SessionIDFunc adapts a plain function to SessionIDs.
type SessionIDFunc func() (string, error)

func (f SessionIDFunc) NewSessionID() (string, error) { return f() }

// NewSessionIDs returns a generator for the named format. An empty name means uuid.
func NewSessionIDs(format string) (SessionIDs, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", SessionUUID:
		return SessionIDFunc(func() (string, error) {
			id, err := uuid.NewRandom()
			if err != nil {
				return "", fmt.Errorf("failed to generate UUID: %w", err)
			}
			return id.String(), nil
		}), nil
	case SessionULID:
		return SessionIDFunc(func() (string, error) {
			return ulid.Make().String(), nil
		}), nil
	case SessionKSUID:
		return SessionIDFunc(func() (string, error) {
			id, err := ksuid.NewRandom()
			if err != nil {
				return "", fmt.Errorf("failed to generate KSUID: %w", err)
			}
			return id.String(), nil
		}), nil
	case SessionNanoID:
		return SessionIDFunc(func() (string, error) {
			id, err := gonanoid.Generate(sessionNanoIDAlphabet, sessionNanoIDSize)
			if err != nil {
				return "", fmt.Errorf("failed to generate NanoID: %w", err)
			}
			return id, nil
		}), nil
	case SessionCUID2:
		gen, err := cuid2.Init(cuid2.WithLength(sessionCUID2Length))
		if err != nil {
			return nil, fmt.Errorf("failed to init CUID2 generator: %w", err)
		}
		return SessionIDFunc(func() (string, error) {
			return gen(), nil
		}), nil
	default:
		return nil, fmt.Errorf("unknown session id format %q", format)
	}
}
