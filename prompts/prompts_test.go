package prompts

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	c := Default()
	assert.Equal(t, 10, c.Len())
	all := c.All()
	all[0] = "mutated"
	assert.NotEqual(t, "mutated", c.All()[0])
}

func TestForIsStableWithinADay(t *testing.T) {
	c := Default()
	morning := time.Date(2025, 3, 10, 0, 5, 0, 0, time.UTC)
	evening := time.Date(2025, 3, 10, 23, 55, 0, 0, time.UTC)
	assert.Equal(t, c.For(morning), c.For(evening))
	assert.Equal(t, "2025-03-10", c.For(morning).Date)
}

func TestForWalksTheCatalog(t *testing.T) {
	c, err := New([]string{"a", "b", "c"})
	require.NoError(t, err)
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		seen[c.For(start.AddDate(0, 0, i)).Prompt] = true
	}
	assert.Len(t, seen, 3)
	assert.Equal(t, c.For(start), c.For(start.AddDate(0, 0, 3)))
}

func TestForUsesLocalCalendarDay(t *testing.T) {
	c, err := New([]string{"a", "b"})
	require.NoError(t, err)
	tokyo := time.FixedZone("JST", 9*3600)
	// 20:00 UTC on the 10th is already the 11th in Tokyo
	instant := time.Date(2025, 3, 10, 20, 0, 0, 0, time.UTC)
	assert.Equal(t, "2025-03-11", c.For(instant.In(tokyo)).Date)
	assert.NotEqual(t, c.For(instant).Prompt, c.For(instant.In(tokyo)).Prompt)
}

func TestNewRejectsEmpty(t *testing.T) {
	_, err := New([]string{"  ", ""})
	assert.ErrorIs(t, err, ErrEmptyCatalog)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("prompts:\n  - Tell a story.\n  - Describe your morning.\n"), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Tell a story.", "Describe your morning."}, c.All())

	c, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, 10, c.Len())

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("prompts: []\n"), 0o644))
	_, err = Load(empty)
	assert.ErrorIs(t, err, ErrEmptyCatalog)
}
