package utils

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountWords(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want int
	}{
		{"empty", "", 0},
		{"whitespace only", "  \t\n ", 0},
		{"single", "serendipity", 1},
		{"runs of whitespace", "  a \t b\n\nc  ", 3},
		{"unicode", "naïve café", 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CountWords(tc.in))
		})
	}
}

func TestCheckWordLimit_Boundary(t *testing.T) {
	twenty := strings.TrimSpace(strings.Repeat("word ", 20))
	assert.Equal(t, 20, CountWords(twenty))
	assert.NoError(t, CheckWordLimit(twenty, MaxWords))

	twentyOne := twenty + " extra"
	err := CheckWordLimit(twentyOne, MaxWords)
	require.Error(t, err)

	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, 21, vErr.Words)
	assert.Contains(t, err.Error(), "21")
	assert.Contains(t, err.Error(), "20")
}
