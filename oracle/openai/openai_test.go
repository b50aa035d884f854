package openai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScore(t *testing.T) {
	t.Run("plain number", func(t *testing.T) {
		score, err := parseScore("0.85")
		require.NoError(t, err)
		assert.InDelta(t, 0.85, score, 1e-9)
	})

	t.Run("trailing punctuation", func(t *testing.T) {
		score, err := parseScore("0.4.")
		require.NoError(t, err)
		assert.InDelta(t, 0.4, score, 1e-9)
	})

	t.Run("labelled answer keeps last token", func(t *testing.T) {
		score, err := parseScore("likelihood: 0.7")
		require.NoError(t, err)
		assert.InDelta(t, 0.7, score, 1e-9)
	})

	t.Run("clamped to unit interval", func(t *testing.T) {
		score, err := parseScore("1.7")
		require.NoError(t, err)
		assert.Equal(t, 1.0, score)

		score, err = parseScore("-0.2")
		require.NoError(t, err)
		assert.Equal(t, 0.0, score)
	})

	t.Run("non numeric fails", func(t *testing.T) {
		_, err := parseScore("probably fine")
		assert.Error(t, err)
	})
}

func TestTruncateWithoutEncoder(t *testing.T) {
	o := &Oracle{budget: 2}

	long := "aaaaaaaaaaaaaaaaaaaa"
	assert.Len(t, o.truncate(long), 8)
	assert.Equal(t, "short", o.truncate("short"))
}
