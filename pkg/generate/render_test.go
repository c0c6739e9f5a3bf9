package generate_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/rulepool/pkg/generate"
	"github.com/macropower/rulepool/pkg/mode"
)

func TestRender(t *testing.T) {
	t.Parallel()

	cfg := mode.Create(mode.TypeEnterprise, &mode.Configuration{ID: "ent", Name: "Enterprise Team"})
	outDir := t.TempDir()

	g := generate.New(newTestPool(t), generate.WithClock(fixedClock))

	assert.Equal(t,
		[]string{"copilot-instructions", "project-rules", "task-management"},
		generate.Documents(cfg),
	)

	doc, err := g.Render(t.Context(), cfg, "copilot-instructions")
	require.NoError(t, err)

	assert.Equal(t, "copilot-instructions", doc.Name)
	assert.Equal(t, "copilot-instructions.md", doc.FileName(""))
	assert.Equal(t, []string{"arch-1", "task-1"}, doc.RuleIDs)
	assert.Contains(t, doc.Content, "### 🚨 Layer the code")

	res, err := g.Generate(t.Context(), cfg, outDir)
	require.NoError(t, err)
	require.True(t, res.Success)

	assert.Equal(t, readFile(t, filepath.Join(outDir, "copilot-instructions.md")), doc.Content)

	_, err = g.Render(t.Context(), cfg, "missing")
	require.ErrorIs(t, err, generate.ErrUnknownDocument)
}
