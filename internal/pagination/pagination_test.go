package pagination

import (
	"testing"

	"github.com/lalith-99/panelwatch/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name      string
		limit     int
		offset    int
		wantLimit int
	}{
		{"zero limit clamps up", 0, 0, 1},
		{"negative limit clamps up", -7, 0, 1},
		{"large limit clamps down", 500, 10, 100},
		{"in range kept", 25, 5, 25},
		{"max kept", 100, 0, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := Normalize(tt.limit, tt.offset)
			require.NoError(t, err)
			assert.Equal(t, tt.wantLimit, page.Limit)
			assert.Equal(t, tt.offset, page.Offset)
		})
	}
}

func TestNormalizeRejectsNegativeOffset(t *testing.T) {
	_, err := Normalize(10, -1)
	require.Error(t, err)
	assert.True(t, apperr.IsValidation(err))
}

func TestHasMore(t *testing.T) {
	p := Page{Limit: 10, Offset: 20}
	assert.True(t, p.HasMore(10, 31))
	assert.False(t, p.HasMore(10, 30))
	assert.False(t, p.HasMore(0, 5))
}
