// Package delivery implements the Layer 5 gate: what happens to an artifact
// that cleared (or bypassed) the sovereignty gate. Block always wins over
// quarantine; a flag present in both sets is reported only as blocked.
package delivery

import (
	"github.com/pnku766-alt/fusionintel-core/pkg/contracts"
)

// EvaluateFlagsOnly decides purely from the envelope's flags.
func EvaluateFlagsOnly(env contracts.ArtifactEnvelope, policy Policy) Decision {
	export := env.ExportControlFlags()
	sanctions := env.SanctionsFlags()

	var block []string
	for _, f := range export.Intersect(policy.BlockedExportControlFlags) {
		block = append(block, ReasonExportControlBlocked+f)
	}
	for _, f := range sanctions.Intersect(policy.BlockedSanctionsFlags) {
		block = append(block, ReasonSanctionsBlocked+f)
	}
	if len(block) > 0 {
		return Decision{Allow: false, Action: ActionBlock, Reasons: contracts.UniqueSorted(block)}
	}

	var quarantine []string
	for _, f := range export.Intersect(policy.QuarantineExportControlFlags) {
		quarantine = append(quarantine, ReasonExportControlQuarantine+f)
	}
	for _, f := range sanctions.Intersect(policy.QuarantineSanctionsFlags) {
		quarantine = append(quarantine, ReasonSanctionsQuarantine+f)
	}
	if len(quarantine) > 0 {
		return Decision{Allow: true, Action: ActionQuarantine, Reasons: contracts.UniqueSorted(quarantine)}
	}

	return Decision{Allow: true, Action: ActionDeliver, Reasons: []string{}}
}

// Evaluate decides delivery, optionally chained to an upstream Layer 4
// decision. With upstream == nil or RequireLayer4Allow unset it is exactly
// EvaluateFlagsOnly. A denied upstream under RequireLayer4Allow blocks with
// the upstream reasons prefixed by "layer4:" and skips flag rules entirely.
func Evaluate(env contracts.ArtifactEnvelope, upstream *Upstream, policy Policy) Decision {
	if upstream != nil && policy.RequireLayer4Allow && !upstream.Allow {
		return Decision{
			Allow:   false,
			Action:  ActionBlock,
			Reasons: contracts.PrefixAll(ReasonLayer4Prefix, upstream.Reasons),
		}
	}
	return EvaluateFlagsOnly(env, policy)
}

// Check evaluates and attaches the denial an enforcing caller would raise.
func Check(env contracts.ArtifactEnvelope, upstream *Upstream, policy Policy) Outcome {
	d := Evaluate(env, upstream, policy)
	if d.Deny() {
		return Outcome{Decision: d, Denial: &DenialError{Reasons: d.Reasons}}
	}
	return Outcome{Decision: d}
}

// Enforce returns the allowing decision, or a *DenialError when delivery is
// blocked (including the chained layer4 case).
func Enforce(env contracts.ArtifactEnvelope, upstream *Upstream, policy Policy) (Decision, error) {
	o := Check(env, upstream, policy)
	if o.Denied() {
		return Decision{}, o.Denial
	}
	return o.Decision, nil
}
