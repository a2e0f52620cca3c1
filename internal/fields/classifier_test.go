package fields

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyScenario(t *testing.T) {
	catalog, err := LoadCatalog("")
	require.NoError(t, err)

	roles := NewClassifier(catalog).Classify([]string{"3C286", "1331+305", "TargetA"})
	assert.Equal(t, []string{"3C286"}, roles.Amplitude)
	assert.Equal(t, []string{"1331+305"}, roles.Phase)
	assert.Equal(t, []string{"TargetA"}, roles.Targets)
	assert.Equal(t, roles.Amplitude, roles.Bandpass())
}

func TestClassifyPartitionsAndKeepsOrder(t *testing.T) {
	catalog := Catalog{"1822-096": {}, "0837-198": {}}
	in := []string{"G55.7", "0837-198", "3C48", "1822-096", "3C147", "M87"}

	roles := NewClassifier(catalog).Classify(in)
	assert.Equal(t, []string{"3C48", "3C147"}, roles.Amplitude)
	assert.Equal(t, []string{"0837-198", "1822-096"}, roles.Phase)
	assert.Equal(t, []string{"G55.7", "M87"}, roles.Targets)

	union := append(roles.Calibrators(), roles.Targets...)
	assert.ElementsMatch(t, in, union)
	for _, f := range in {
		count := 0
		for _, set := range [][]string{roles.Amplitude, roles.Phase, roles.Targets} {
			for _, g := range set {
				if g == f {
					count++
				}
			}
		}
		assert.Equal(t, 1, count, f)
	}
}

func TestClassifyIsExactAndDeterministic(t *testing.T) {
	c := NewClassifier(Catalog{})
	first := c.Classify([]string{"3c286", "3C286"})
	assert.Equal(t, []string{"3C286"}, first.Amplitude)
	assert.Equal(t, []string{"3c286"}, first.Targets)
	assert.Equal(t, first, c.Classify([]string{"3c286", "3C286"}))
	assert.Equal(t, Target, first.Of("3c286"))
	assert.Equal(t, AmplitudeCalibrator, first.Of("3C286"))
}

func TestNearMiss(t *testing.T) {
	c := NewClassifier(Catalog{"1822-096": {}})
	assert.Equal(t, "3C286", c.nearMiss("3C28"))
	assert.Equal(t, "1822-096", c.nearMiss("1822-097"))
	assert.Empty(t, c.nearMiss("NGC1068"))
}

func TestNearMissPrefersFirstSortedName(t *testing.T) {
	c := NewClassifier(Catalog{"1822-098": {}, "1822-096": {}, "1822-09": {}, "0521+166": {}})
	for i := 0; i < 50; i++ {
		assert.Equal(t, "1822-09", c.nearMiss("1822-097"))
	}
	assert.Equal(t, []string{"0521+166", "1822-09", "1822-096", "1822-098"}, c.catalog.Names())
}

func TestParseCatalog(t *testing.T) {
	catalog, err := ParseCatalog(strings.NewReader(`# header
1331+305   J2000  A 13h31m08.288060s  30d30'32.958850"
1328+307   B1950  A 13h28m49.657700s  30d45'58.640000"
0837-198

-----------------------------------------------------
`))
	require.NoError(t, err)
	assert.True(t, catalog.Contains("1331+305"))
	assert.True(t, catalog.Contains("0837-198"))
	assert.False(t, catalog.Contains("1328+307"))
	assert.Len(t, catalog.Names(), 2)
}
