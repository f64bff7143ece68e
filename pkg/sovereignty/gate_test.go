package sovereignty

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pnku766-alt/fusionintel-core/pkg/contracts"
)

func envelope(jurisdiction, residency string, export, sanctions []string) contracts.ArtifactEnvelope {
	return contracts.ArtifactEnvelope{
		ArtifactID: "a1",
		JurisdictionTags: contracts.JurisdictionTags{
			Jurisdiction:       jurisdiction,
			ResidencyClass:     residency,
			ExportControlFlags: export,
			SanctionsFlags:     sanctions,
		},
	}
}

func strictPolicy() Policy {
	return NewPolicy(PolicyConfig{
		AllowedJurisdictions:      []string{"US"},
		AllowedResidencyClasses:   []string{"restricted"},
		BlockedExportControlFlags: []string{"ITAR"},
		BlockedSanctionsFlags:     []string{"SDN"},
	})
}

func TestEvaluate_AllowsCompliantArtifact(t *testing.T) {
	d := Evaluate(envelope("US", "restricted", []string{"EAR99"}, nil), strictPolicy())
	assert.True(t, d.Allow)
	assert.False(t, d.Deny())
	assert.Equal(t, []string{}, d.Reasons)
}

func TestEvaluate_ReportsEveryViolationSorted(t *testing.T) {
	env := envelope("CN", "foreign", []string{"ITAR", "ITAR"}, []string{"SDN"})
	d := Evaluate(env, strictPolicy())

	assert.False(t, d.Allow)
	assert.Equal(t, []string{
		"export_control_blocked:ITAR",
		"jurisdiction_not_allowed:CN",
		"residency_class_not_allowed:foreign",
		"sanctions_blocked:SDN",
	}, d.Reasons)
}

func TestEvaluate_EmptyAllowListIsUnrestricted(t *testing.T) {
	for _, j := range []string{"", "CN", "US", "  KP  "} {
		d := Evaluate(envelope(j, "anything", nil, nil), Policy{})
		assert.True(t, d.Allow, "jurisdiction %q", j)
		assert.Empty(t, d.Reasons)
	}
}

func TestEvaluate_TrimsJurisdictionAndResidency(t *testing.T) {
	d := Evaluate(envelope("  US ", " restricted\t", nil, nil), strictPolicy())
	assert.True(t, d.Allow)
}

func TestEvaluate_IsDeterministic(t *testing.T) {
	env := envelope("CN", "foreign", []string{"ITAR", "X"}, []string{"SDN", "SDN"})
	first := Evaluate(env, strictPolicy())
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Evaluate(env, strictPolicy()))
	}
}

func TestEnforce(t *testing.T) {
	t.Run("AllowReturnsDecision", func(t *testing.T) {
		env := envelope("US", "restricted", nil, nil)
		d, err := Enforce(env, strictPolicy())
		require.NoError(t, err)
		assert.Equal(t, Evaluate(env, strictPolicy()), d)
	})

	t.Run("DenyReturnsTypedError", func(t *testing.T) {
		env := envelope("CN", "restricted", nil, []string{"SDN"})
		_, err := Enforce(env, strictPolicy())
		require.Error(t, err)

		assert.True(t, errors.Is(err, ErrAuthorizationDenied))
		assert.True(t, errors.Is(err, contracts.ErrDenied))

		var denial *DenialError
		require.True(t, errors.As(err, &denial))
		assert.Equal(t, Evaluate(env, strictPolicy()).Reasons, denial.Reasons)
		assert.Equal(t, "layer4 gate denied: jurisdiction_not_allowed:CN;sanctions_blocked:SDN", err.Error())
	})
}

func TestCheck(t *testing.T) {
	allowed := Check(envelope("US", "restricted", nil, nil), strictPolicy())
	assert.False(t, allowed.Denied())

	denied := Check(envelope("CN", "restricted", nil, nil), strictPolicy())
	require.True(t, denied.Denied())
	assert.Equal(t, denied.Decision.Reasons, denied.Denial.Reasons)
}
