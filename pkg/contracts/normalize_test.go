package contracts

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeSet(t *testing.T) {
	t.Run("TrimsDropsEmptyAndDedupes", func(t *testing.T) {
		s := NormalizeSet([]string{" ITAR ", "ITAR", "", "   ", "SDN"})
		assert.Equal(t, 2, s.Len())
		assert.True(t, s.Has("ITAR"))
		assert.True(t, s.Has("SDN"))
		assert.Equal(t, []string{"ITAR", "SDN"}, s.Sorted())
	})

	t.Run("NilInputIsEmptySet", func(t *testing.T) {
		s := NormalizeSet(nil)
		assert.Equal(t, 0, s.Len())
		assert.Equal(t, []string{}, s.Sorted())
	})

	t.Run("NFCEquivalentValuesCollapse", func(t *testing.T) {
		// "é" precomposed vs "e" + combining acute accent.
		s := NormalizeSet([]string{"café", "café"})
		assert.Equal(t, 1, s.Len())
		assert.True(t, s.Has("café"))
	})
}

func TestStringSet_Intersect(t *testing.T) {
	a := NormalizeSet([]string{"ITAR", "EAR99", "NLR"})
	b := NormalizeSet([]string{"NLR", "ITAR", "SDN"})
	assert.Equal(t, []string{"ITAR", "NLR"}, a.Intersect(b))
	assert.Equal(t, []string{}, a.Intersect(NormalizeSet(nil)))
}

func TestUniqueSorted(t *testing.T) {
	got := UniqueSorted([]string{"b", "a", "b", "", " ", "c"})
	assert.Equal(t, []string{"a", "b", "c"}, got)
	assert.NotNil(t, UniqueSorted(nil))
}

func TestPrefixAll(t *testing.T) {
	got := PrefixAll("layer4:", []string{"z", "a", "a", ""})
	assert.Equal(t, []string{"layer4:a", "layer4:z"}, got)
}

func TestArtifactEnvelope_FlagAccessors(t *testing.T) {
	env := ArtifactEnvelope{
		JurisdictionTags: JurisdictionTags{
			ExportControlFlags: []string{"ITAR", " ITAR"},
			SanctionsFlags:     []string{"SDN", ""},
		},
	}
	assert.Equal(t, []string{"ITAR"}, env.ExportControlFlags().Sorted())
	assert.Equal(t, []string{"SDN"}, env.SanctionsFlags().Sorted())
}

func TestDefaultProvenance(t *testing.T) {
	p := DefaultProvenance()
	assert.Equal(t, "sha256:stub", p.EventHash)
	assert.Equal(t, "sigstub:stub", p.SignatureRef)
	assert.Empty(t, p.LedgerRef)
}
