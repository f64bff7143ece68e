// Package orchestrator is Layer 7: it sequences the sovereignty gate, the
// delivery-action gate and the audit recorder for one envelope under one
// policy bundle.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/pnku766-alt/fusionintel-core/pkg/audit"
	"github.com/pnku766-alt/fusionintel-core/pkg/contracts"
	"github.com/pnku766-alt/fusionintel-core/pkg/delivery"
	"github.com/pnku766-alt/fusionintel-core/pkg/observability"
	"github.com/pnku766-alt/fusionintel-core/pkg/sovereignty"
)

// Audit reason annotations.
const (
	ReasonAuditWritten  = "audit_written"
	ReasonAuditMirrored = "audit_mirrored:"
)

// Policy bundles the three layer policies with the stored defaults for the
// audit destination and the per-layer enforce flags.
type Policy struct {
	Layer4        sovereignty.Policy
	Layer5        delivery.Policy
	Layer6        audit.Policy
	AuditLogPath  string
	EnforceLayer4 bool
	EnforceLayer5 bool
}

// Overrides are per-call settings. A nil field falls back to the Policy.
type Overrides struct {
	AuditLogPath  *string
	EnforceLayer4 *bool
	EnforceLayer5 *bool
}

func (p Policy) resolve(ov Overrides) (auditPath string, enforce4, enforce5 bool) {
	auditPath, enforce4, enforce5 = p.AuditLogPath, p.EnforceLayer4, p.EnforceLayer5
	if ov.AuditLogPath != nil {
		auditPath = *ov.AuditLogPath
	}
	if ov.EnforceLayer4 != nil {
		enforce4 = *ov.EnforceLayer4
	}
	if ov.EnforceLayer5 != nil {
		enforce5 = *ov.EnforceLayer5
	}
	return auditPath, enforce4, enforce5
}

// Result is the outcome of one run.
type Result struct {
	Layer4       sovereignty.GateDecision `json:"layer4"`
	Layer5       delivery.Decision        `json:"layer5"`
	AuditWritten bool                     `json:"audit_written"`
	AuditReasons []string                 `json:"audit_reasons"`
}

// Pipeline runs orchestrations. The zero value is not usable; call New.
type Pipeline struct {
	builder   *audit.Builder
	sinks     []audit.Sink
	telemetry *observability.Provider
	logger    *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithSinks mirrors every appended audit record to the given sinks, in order.
func WithSinks(sinks ...audit.Sink) Option {
	return func(p *Pipeline) { p.sinks = append(p.sinks, sinks...) }
}

// WithTelemetry records spans and counters on the provider.
func WithTelemetry(tp *observability.Provider) Option {
	return func(p *Pipeline) { p.telemetry = tp }
}

// WithClock overrides the audit timestamp clock.
func WithClock(clock func() time.Time) Option {
	return func(p *Pipeline) { p.builder.WithClock(clock) }
}

// New returns a Pipeline with no mirrors and global telemetry.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		builder: audit.NewBuilder(),
		logger:  slog.Default().With("component", "orchestrator"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process runs a single orchestration with a default Pipeline.
func Process(ctx context.Context, env contracts.ArtifactEnvelope, policy Policy, ov Overrides) (Result, error) {
	return New().Process(ctx, env, policy, ov)
}

// Process runs Layer 4, Layer 5 and, when an audit path is configured,
// Layer 6.
//
// In enforce mode a denial aborts the run with an error matching
// contracts.ErrDenied and nothing is audited. Audit write failures always
// propagate. An empty audit path skips auditing without error.
func (p *Pipeline) Process(ctx context.Context, env contracts.ArtifactEnvelope, policy Policy, ov Overrides) (Result, error) {
	return p.process(ctx, env, policy, ov, false)
}

func (p *Pipeline) process(ctx context.Context, env contracts.ArtifactEnvelope, policy Policy, ov Overrides, degraded bool) (res Result, err error) {
	auditPath, enforce4, enforce5 := policy.resolve(ov)

	ctx, finish := p.telemetry.TrackOperation(ctx, "orchestrator.process",
		attribute.String("artifact.id", env.ArtifactID),
		attribute.Bool("enforce.layer4", enforce4),
		attribute.Bool("enforce.layer5", enforce5),
	)
	defer func() { finish(err) }()

	l4, err := p.runLayer4(ctx, env, policy.Layer4, enforce4)
	if err != nil {
		return Result{}, err
	}

	var upstream *delivery.Upstream
	if policy.Layer5.RequireLayer4Allow {
		upstream = &delivery.Upstream{Allow: l4.Allow, Reasons: l4.Reasons}
	}
	l5, err := p.runLayer5(ctx, env, upstream, policy.Layer5, enforce5)
	if err != nil {
		return Result{}, err
	}

	res = Result{Layer4: l4, Layer5: l5, AuditReasons: []string{}}
	if auditPath != "" {
		reasons, err := p.record(ctx, auditPath, env, l4, l5, policy.Layer6)
		if err != nil {
			return Result{}, err
		}
		res.AuditWritten = true
		res.AuditReasons = reasons
	}

	p.telemetry.RecordRun(ctx, string(l5.Action), degraded)
	p.logger.DebugContext(ctx, "orchestration complete",
		"artifact_id", env.ArtifactID,
		"action", l5.Action,
		"layer4_allow", l4.Allow,
		"audit_written", res.AuditWritten,
	)
	return res, nil
}

func (p *Pipeline) runLayer4(ctx context.Context, env contracts.ArtifactEnvelope, policy sovereignty.Policy, enforce bool) (sovereignty.GateDecision, error) {
	_, span := p.telemetry.StartSpan(ctx, "layer4.sovereignty", attribute.Bool("enforce", enforce))
	defer span.End()

	if !enforce {
		d := sovereignty.Evaluate(env, policy)
		span.SetAttributes(attribute.Bool("allow", d.Allow))
		return d, nil
	}
	d, err := sovereignty.Enforce(env, policy)
	if err != nil {
		span.RecordError(err)
		p.telemetry.RecordDenial(ctx, "layer4")
		p.logger.WarnContext(ctx, "layer4 enforcement denied", "artifact_id", env.ArtifactID, "error", err)
		return sovereignty.GateDecision{}, err
	}
	span.SetAttributes(attribute.Bool("allow", d.Allow))
	return d, nil
}

func (p *Pipeline) runLayer5(ctx context.Context, env contracts.ArtifactEnvelope, upstream *delivery.Upstream, policy delivery.Policy, enforce bool) (delivery.Decision, error) {
	_, span := p.telemetry.StartSpan(ctx, "layer5.delivery",
		attribute.Bool("enforce", enforce),
		attribute.Bool("chained", upstream != nil),
	)
	defer span.End()

	if !enforce {
		d := delivery.Evaluate(env, upstream, policy)
		span.SetAttributes(attribute.String("action", string(d.Action)))
		return d, nil
	}
	d, err := delivery.Enforce(env, upstream, policy)
	if err != nil {
		span.RecordError(err)
		p.telemetry.RecordDenial(ctx, "layer5")
		p.logger.WarnContext(ctx, "layer5 enforcement denied", "artifact_id", env.ArtifactID, "error", err)
		return delivery.Decision{}, err
	}
	span.SetAttributes(attribute.String("action", string(d.Action)))
	return d, nil
}

// record appends the audit event and forwards it to every mirror. Any failure
// is an audit write failure; mirrors after a failing one are not attempted.
func (p *Pipeline) record(ctx context.Context, path string, env contracts.ArtifactEnvelope, l4 sovereignty.GateDecision, l5 delivery.Decision, policy audit.Policy) ([]string, error) {
	ctx, span := p.telemetry.StartSpan(ctx, "layer6.audit", attribute.Int("mirrors", len(p.sinks)))
	defer span.End()

	rec, err := audit.Encode(p.builder.Build(env, l4, l5, policy))
	if err != nil {
		span.RecordError(err)
		return nil, &audit.WriteFailure{Path: path, Err: err}
	}
	if err := audit.Append(path, rec.Line); err != nil {
		span.RecordError(err)
		return nil, err
	}

	reasons := []string{ReasonAuditWritten}
	for _, sink := range p.sinks {
		if err := sink.Mirror(ctx, rec); err != nil {
			span.RecordError(err)
			if !errors.Is(err, audit.ErrAuditWrite) {
				err = &audit.WriteFailure{Path: sink.Name(), Err: err}
			}
			return nil, err
		}
		reasons = append(reasons, ReasonAuditMirrored+sink.Name())
	}
	return contracts.UniqueSorted(reasons), nil
}
