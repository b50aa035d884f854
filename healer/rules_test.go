package healer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snow-ghost/healer/core"
)

func TestFixTable_Match(t *testing.T) {
	table := DefaultFixTable()

	t.Run("category and substring must both match", func(t *testing.T) {
		rule, ok := table.Match(core.ErrorRecord{Category: core.CategoryBuild, Message: "Cannot find module 'foo'"})
		require.True(t, ok)
		assert.InDelta(t, 0.9, rule.Confidence, 1e-9)

		_, ok = table.Match(core.ErrorRecord{Category: core.CategoryPerformance, Message: "cannot find module 'foo'"})
		assert.False(t, ok)
	})

	t.Run("first rule wins", func(t *testing.T) {
		rule, ok := table.Match(core.ErrorRecord{Category: core.CategoryNetwork, Message: "timeout then connection refused"})
		require.True(t, ok)
		assert.Equal(t, "retry with exponential backoff", rule.Fix)
	})
}

func TestLoadFixTable(t *testing.T) {
	t.Run("empty path uses builtin table", func(t *testing.T) {
		table, err := LoadFixTable("")
		require.NoError(t, err)
		assert.NotEmpty(t, table.Rules)
	})

	t.Run("missing file uses builtin table", func(t *testing.T) {
		table, err := LoadFixTable(filepath.Join(t.TempDir(), "absent.yaml"))
		require.NoError(t, err)
		assert.NotEmpty(t, table.Rules)
	})

	t.Run("valid file replaces the table", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "fixes.yaml")
		content := `rules:
  - category: network
    substring: "dns"
    fix: "flush the resolver cache"
    confidence: 0.8
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

		table, err := LoadFixTable(path)
		require.NoError(t, err)
		require.Len(t, table.Rules, 1)
		assert.Equal(t, core.CategoryNetwork, table.Rules[0].Category)
	})

	t.Run("invalid category is rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "fixes.yaml")
		content := `rules:
  - category: cosmic-rays
    substring: "bit flip"
    fix: "reboot"
    confidence: 0.5
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		_, err := LoadFixTable(path)
		require.Error(t, err)
	})

	t.Run("out of range confidence is rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "fixes.yaml")
		content := `rules:
  - category: network
    substring: "dns"
    fix: "flush"
    confidence: 1.5
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		_, err := LoadFixTable(path)
		require.Error(t, err)
	})
}

func TestHumanAction(t *testing.T) {
	for _, cat := range core.Categories() {
		assert.NotEmpty(t, HumanAction(cat))
	}
	assert.Contains(t, HumanAction("unknown"), "manually")
}
