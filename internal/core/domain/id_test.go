package domain

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateID_Format(t *testing.T) {
	now := time.UnixMilli(1735689600000)
	id := generateIDAt(now)

	prefix := strconv.FormatInt(now.UnixMilli(), 36)
	require.Len(t, id, len(prefix)+idSuffixLen)
	assert.Equal(t, prefix, id[:len(prefix)])

	_, err := strconv.ParseInt(id[len(prefix):], 36, 64)
	assert.NoError(t, err, "suffix should be base-36")
}

func TestGenerateID_Unique(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id := GenerateID()
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id generated: %s", id)
		}
		seen[id] = struct{}{}
	}
}
