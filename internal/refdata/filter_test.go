package refdata

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alebairos/supertask-pipeline/internal/supertask"
)

func TestFilterDigestFiltersByScoreAndDedupes(t *testing.T) {
	f := NewFilter("../../testdata/refdata")
	d, err := f.Digest()
	require.NoError(t, err)

	seen := map[string]bool{}
	for _, h := range d.HabitInventory {
		assert.Greater(t, h.Score, habitScoreMin)
		key := strings.ToLower(strings.TrimSpace(h.Name))
		assert.False(t, seen[key], "duplicate habit name %q", h.Name)
		seen[key] = true
	}
}

func TestFilterDigestKeepsHabitsWithinPerDimensionBand(t *testing.T) {
	f := NewFilter("../../testdata/refdata")
	d, err := f.Digest()
	require.NoError(t, err)

	counts := map[supertask.Dimension]int{}
	for _, h := range d.HabitInventory {
		counts[h.Dimension]++
	}
	for _, dim := range supertask.Dimensions {
		assert.GreaterOrEqualf(t, counts[dim], minPerDimension, "dimension %s below minimum band", dim)
		assert.LessOrEqualf(t, counts[dim], maxPerDimension, "dimension %s above maximum band", dim)
	}
}

func TestFilterDigestKeepsCompletePathExemplarsOnly(t *testing.T) {
	f := NewFilter("../../testdata/refdata")
	d, err := f.Digest()
	require.NoError(t, err)

	for _, pe := range d.PathExemplars {
		assert.NotEmpty(t, pe.Levels[0])
		assert.NotEmpty(t, pe.Levels[1])
		assert.NotEmpty(t, pe.Levels[2])
	}
}

func TestFilterDigestIsCachedWithinTTL(t *testing.T) {
	f := NewFilter("../../testdata/refdata")
	first, err := f.Digest()
	require.NoError(t, err)

	second, err := f.Digest()
	require.NoError(t, err)

	assert.Equal(t, first.BuiltAt, second.BuiltAt)
}

func TestFilterClearCacheForcesRebuild(t *testing.T) {
	f := NewFilter("../../testdata/refdata")
	first, err := f.Digest()
	require.NoError(t, err)

	f.ClearCache()
	second, err := f.Digest()
	require.NoError(t, err)

	assert.NotEqual(t, first.BuiltAt, second.BuiltAt)
}

func TestFilterDigestMissingCatalogReturnsReferenceDataMissing(t *testing.T) {
	f := NewFilter("../../testdata/does-not-exist")
	_, err := f.Digest()
	require.Error(t, err)
}

func TestForDimensionNarrowsHabitsAndExemplars(t *testing.T) {
	f := NewFilter("../../testdata/refdata")
	d, err := f.Digest()
	require.NoError(t, err)

	sub := d.ForDimension(supertask.DimensionPhysicalHealth)
	for _, h := range sub.HabitInventory {
		assert.Equal(t, supertask.DimensionPhysicalHealth, h.Dimension)
	}
	for _, pe := range sub.PathExemplars {
		assert.Equal(t, supertask.DimensionPhysicalHealth, pe.Dimension)
	}
}
