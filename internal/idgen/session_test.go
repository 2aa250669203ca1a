package idgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSessionIDs(t *testing.T) {
	tests := []struct {
		format string
		length int
	}{
		{"", 36},
		{SessionUUID, 36},
		{SessionULID, 26},
		{SessionKSUID, 27},
		{SessionNanoID, sessionNanoIDSize},
		{SessionCUID2, sessionCUID2Length},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			gen, err := NewSessionIDs(tt.format)
			require.NoError(t, err)

			seen := make(map[string]struct{}, 200)
			for i := 0; i < 200; i++ {
				id, err := gen.NewSessionID()
				require.NoError(t, err)
				assert.Len(t, id, tt.length)
				seen[id] = struct{}{}
			}
			assert.Len(t, seen, 200)
		})
	}
}

func TestNewSessionIDsUnknown(t *testing.T) {
	_, err := NewSessionIDs("sequential")
	assert.Error(t, err)
}
