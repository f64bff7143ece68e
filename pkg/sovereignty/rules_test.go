package sovereignty

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pnku766-alt/fusionintel-core/pkg/contracts"
)

func TestCompileRules_Validation(t *testing.T) {
	_, err := CompileRules([]Rule{{Name: "", Expression: "true"}})
	assert.ErrorContains(t, err, "rule name required")

	_, err = CompileRules([]Rule{{Name: "a", Expression: "true"}, {Name: "a", Expression: "false"}})
	assert.ErrorContains(t, err, "duplicate rule")

	_, err = CompileRules([]Rule{{Name: "bad", Expression: "envelope.jurisdiction =="}})
	assert.ErrorContains(t, err, `compile rule "bad"`)
}

func TestRuleSet_DeniesThroughGate(t *testing.T) {
	rules, err := CompileRules([]Rule{
		{Name: "no_dual_use_abroad", Expression: `envelope.jurisdiction != "US" && "dual_use" in envelope.metadata`},
		{Name: "itar_marked", Expression: `"ITAR" in envelope.export_control_flags`},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, rules.Len())

	policy := NewPolicy(PolicyConfig{Rules: rules})
	env := contracts.ArtifactEnvelope{
		Metadata: map[string]any{"dual_use": true},
		JurisdictionTags: contracts.JurisdictionTags{
			Jurisdiction: "DE",
		},
	}

	d := Evaluate(env, policy)
	assert.False(t, d.Allow)
	assert.Equal(t, []string{"rule_denied:no_dual_use_abroad"}, d.Reasons)

	env.JurisdictionTags.ExportControlFlags = []string{" ITAR "}
	d = Evaluate(env, policy)
	assert.Equal(t, []string{"rule_denied:itar_marked", "rule_denied:no_dual_use_abroad"}, d.Reasons)
}

func TestRuleSet_RuntimeErrorFailsClosed(t *testing.T) {
	rules, err := CompileRules([]Rule{
		{Name: "missing_key", Expression: `envelope.metadata.classification == "secret"`},
		{Name: "not_bool", Expression: `envelope.artifact_id`},
	})
	require.NoError(t, err)

	d := Evaluate(contracts.ArtifactEnvelope{ArtifactID: "x"}, NewPolicy(PolicyConfig{Rules: rules}))
	assert.False(t, d.Allow)
	assert.Equal(t, []string{"rule_error:missing_key", "rule_error:not_bool"}, d.Reasons)
}

func TestRuleSet_NilIsEmpty(t *testing.T) {
	var rs *RuleSet
	assert.Equal(t, 0, rs.Len())
	assert.Nil(t, rs.Evaluate(contracts.ArtifactEnvelope{}))
}
