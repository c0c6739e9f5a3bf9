package pool_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/rulepool/pkg/pool"
	"github.com/macropower/rulepool/pkg/rule"
)

func TestSQLiteRepository(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "rule-pool.db")
	backups := filepath.Join(dir, "backups")

	repo := pool.NewSQLiteRepository(path, backups)
	t.Cleanup(func() { assert.NoError(t, repo.Close()) })

	p, err := pool.Open(t.Context(), repo)
	require.NoError(t, err)
	assert.Zero(t, p.Len())

	_, err = p.Create(t.Context(), newTestRule("a", rule.CategoryFilePractices, rule.UrgencyMedium,
		rule.WithTags("layout"),
		rule.WithContent("Keep files small.\n\n- one type per file"),
	))
	require.NoError(t, err)

	_, err = p.Create(t.Context(), newTestRule("b", rule.CategoryCustom, rule.UrgencyCritical, rule.WithDependsOn("a")))
	require.NoError(t, err)

	_, err = p.Update(t.Context(), "a", func(r *rule.Rule) { r.Title = "Small files" })
	require.NoError(t, err)

	entries, err := os.ReadDir(backups)
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	for _, e := range entries {
		assert.True(t, strings.HasSuffix(e.Name(), ".db"), e.Name())
	}

	other := pool.NewSQLiteRepository(path, backups)
	t.Cleanup(func() { assert.NoError(t, other.Close()) })

	reopened, err := pool.Open(t.Context(), other)
	require.NoError(t, err)

	got, ok := reopened.Get("a")
	require.True(t, ok)
	assert.Equal(t, "Small files", got.Title)
	assert.Equal(t, "Keep files small.\n\n- one type per file", got.Content)
	assert.Equal(t, []string{"b"}, reopened.Dependents("a"))
	assert.Equal(t, 2, reopened.Metadata().TotalRules)

	// Rules removed since the last save are dropped from the table.
	_, err = reopened.Delete(t.Context(), "b")
	require.NoError(t, err)

	snap, err := other.Load(t.Context())
	require.NoError(t, err)
	assert.Len(t, snap.Rules, 1)
}
