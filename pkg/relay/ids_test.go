package relay

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewMessageID(t *testing.T) {
	re := regexp.MustCompile(`^[0-9a-f]{14}$`)
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id, err := NewMessageID()
		require.NoError(t, err)
		require.Regexp(t, re, id)
		require.False(t, seen[id])
		seen[id] = true
	}
}
