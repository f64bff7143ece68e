package orchestrator

import (
	"context"
	"errors"

	"github.com/pnku766-alt/fusionintel-core/pkg/contracts"
	"github.com/pnku766-alt/fusionintel-core/pkg/delivery"
	"github.com/pnku766-alt/fusionintel-core/pkg/sovereignty"
)

// Report is a Result plus whether enforcement was bypassed to obtain it.
// Field order matches the sorted-key wire form.
type Report struct {
	AuditReasons     []string                 `json:"audit_reasons"`
	AuditWritten     bool                     `json:"audit_written"`
	EnforcementError bool                     `json:"enforcement_error"`
	Layer4           sovereignty.GateDecision `json:"layer4"`
	Layer5           delivery.Decision        `json:"layer5"`
}

func newReport(res Result, enforcementError bool) Report {
	return Report{
		AuditReasons:     res.AuditReasons,
		AuditWritten:     res.AuditWritten,
		EnforcementError: enforcementError,
		Layer4:           res.Layer4,
		Layer5:           res.Layer5,
	}
}

// RunWithDegrade processes the envelope and, if enforcement denies it,
// re-runs the whole orchestration with both enforce flags off so the denial
// is still audited. The re-run is reported with EnforcementError set.
// Errors other than enforcement denials are returned unchanged.
func (p *Pipeline) RunWithDegrade(ctx context.Context, env contracts.ArtifactEnvelope, policy Policy, ov Overrides) (Report, error) {
	res, err := p.process(ctx, env, policy, ov, false)
	if err == nil {
		return newReport(res, false), nil
	}
	if !errors.Is(err, contracts.ErrDenied) {
		return Report{}, err
	}

	p.logger.WarnContext(ctx, "enforcement denied, re-running in evaluate mode for audit",
		"artifact_id", env.ArtifactID,
		"error", err,
	)
	off := false
	ov.EnforceLayer4 = &off
	ov.EnforceLayer5 = &off
	res, err = p.process(ctx, env, policy, ov, true)
	if err != nil {
		return Report{}, err
	}
	return newReport(res, true), nil
}

// Exit codes for CLI front ends.
const (
	ExitDeliver    = 0
	ExitQuarantine = 2
	ExitBlock      = 3
)

// ExitCode maps a report to a process exit code.
func ExitCode(r Report) int {
	l5 := r.Layer5
	switch {
	case r.EnforcementError:
		return ExitBlock
	case l5.Action == delivery.ActionBlock || !l5.Allow:
		return ExitBlock
	case l5.Action == delivery.ActionQuarantine:
		return ExitQuarantine
	default:
		return ExitDeliver
	}
}

// RunWithDegrade runs the degrade contract on a default Pipeline.
func RunWithDegrade(ctx context.Context, env contracts.ArtifactEnvelope, policy Policy, ov Overrides) (Report, error) {
	return New().RunWithDegrade(ctx, env, policy, ov)
}
