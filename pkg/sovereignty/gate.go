// Package sovereignty implements the Layer 4 gate: whether an artifact may
// exist in its jurisdiction at all, independent of how it is delivered.
//
// All four rule families (jurisdiction, residency, export control, sanctions)
// plus any CEL rules are evaluated on every call and their reasons merged, so
// a caller sees every violation in one pass.
package sovereignty

import (
	"github.com/pnku766-alt/fusionintel-core/pkg/contracts"
)

// Evaluate applies policy to env and returns the gate decision. It never
// fails on a policy violation; denial is data.
func Evaluate(env contracts.ArtifactEnvelope, policy Policy) GateDecision {
	tags := env.JurisdictionTags
	jurisdiction := contracts.NormalizeValue(tags.Jurisdiction)
	residency := contracts.NormalizeValue(tags.ResidencyClass)

	var reasons []string

	if policy.AllowedJurisdictions.Len() > 0 && !policy.AllowedJurisdictions.Has(jurisdiction) {
		reasons = append(reasons, ReasonJurisdictionNotAllowed+jurisdiction)
	}
	if policy.AllowedResidencyClasses.Len() > 0 && !policy.AllowedResidencyClasses.Has(residency) {
		reasons = append(reasons, ReasonResidencyClassNotAllowed+residency)
	}

	for _, flag := range env.ExportControlFlags().Intersect(policy.BlockedExportControlFlags) {
		reasons = append(reasons, ReasonExportControlBlocked+flag)
	}
	for _, flag := range env.SanctionsFlags().Intersect(policy.BlockedSanctionsFlags) {
		reasons = append(reasons, ReasonSanctionsBlocked+flag)
	}

	if policy.Rules != nil {
		reasons = append(reasons, policy.Rules.Evaluate(env)...)
	}

	clean := contracts.UniqueSorted(reasons)
	return GateDecision{Allow: len(clean) == 0, Reasons: clean}
}

// Check evaluates and attaches the denial an enforcing caller would raise.
func Check(env contracts.ArtifactEnvelope, policy Policy) Outcome {
	d := Evaluate(env, policy)
	if d.Deny() {
		return Outcome{Decision: d, Denial: &DenialError{Reasons: d.Reasons}}
	}
	return Outcome{Decision: d}
}

// Enforce returns the allowing decision, or a *DenialError carrying every
// reason code when the gate denies.
func Enforce(env contracts.ArtifactEnvelope, policy Policy) (GateDecision, error) {
	o := Check(env, policy)
	if o.Denied() {
		return GateDecision{}, o.Denial
	}
	return o.Decision, nil
}
