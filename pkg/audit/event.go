// Package audit is Layer 6 of the pipeline: it snapshots one orchestration
// run into an immutable Event and appends it to a JSONL log.
package audit

import (
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/pnku766-alt/fusionintel-core/pkg/contracts"
	"github.com/pnku766-alt/fusionintel-core/pkg/delivery"
	"github.com/pnku766-alt/fusionintel-core/pkg/sovereignty"
)

// TimestampLayout renders ts_utc as ISO-8601 with microseconds and an
// explicit +00:00 offset.
const TimestampLayout = "2006-01-02T15:04:05.000000-07:00"

var (
	ErrAuditWrite    = errors.New("audit: write failed")
	ErrInvalidRecord = errors.New("audit: invalid record")
)

// WriteFailure reports a failed append to an audit destination.
type WriteFailure struct {
	Path string
	Err  error
}

func (e *WriteFailure) Error() string {
	return fmt.Sprintf("audit write to %s failed: %v", e.Path, e.Err)
}

func (e *WriteFailure) Unwrap() error { return e.Err }

func (e *WriteFailure) Is(target error) bool { return target == ErrAuditWrite }

// Policy controls payload capture.
type Policy struct {
	IncludePayload    bool
	RedactPayloadKeys contracts.StringSet
}

// DefaultPolicy captures the payload with nothing redacted.
func DefaultPolicy() Policy {
	return Policy{IncludePayload: true, RedactPayloadKeys: contracts.StringSet{}}
}

// NewPolicy builds a Policy. Redaction keys are kept byte-for-byte, since they
// are matched against payload keys exactly; only empty keys are dropped.
func NewPolicy(includePayload bool, redactKeys []string) Policy {
	keys := make(contracts.StringSet, len(redactKeys))
	for _, k := range redactKeys {
		if k != "" {
			keys[k] = struct{}{}
		}
	}
	return Policy{IncludePayload: includePayload, RedactPayloadKeys: keys}
}

// GateRecord is the Layer 4 decision as written to the log.
type GateRecord struct {
	Allow   bool     `json:"allow"`
	Reasons []string `json:"reasons"`
}

// DeliveryRecord is the Layer 5 decision as written to the log.
type DeliveryRecord struct {
	Action  delivery.Action `json:"action"`
	Allow   bool            `json:"allow"`
	Reasons []string        `json:"reasons"`
}

// Event is one audit line. A nil PayloadSnapshot serializes as null and means
// "not captured"; an empty non-nil map means "captured and empty".
//
// Fields are declared in key order: the line is written as-is by
// canonicalize.SortedJSON.
type Event struct {
	ArtifactID      string         `json:"artifact_id"`
	Jurisdiction    string         `json:"jurisdiction"`
	Layer4          GateRecord     `json:"layer4"`
	Layer5          DeliveryRecord `json:"layer5"`
	PayloadSnapshot map[string]any `json:"payload_snapshot"`
	ProducerLayer   string         `json:"producer_layer"`
	ResidencyClass  string         `json:"residency_class"`
	TSUTC           string         `json:"ts_utc"`
}

// Builder constructs events against an injectable clock.
type Builder struct {
	clock func() time.Time
}

// NewBuilder returns a Builder on the wall clock.
func NewBuilder() *Builder {
	return &Builder{clock: time.Now}
}

// WithClock overrides the clock for deterministic testing.
func (b *Builder) WithClock(clock func() time.Time) *Builder {
	b.clock = clock
	return b
}

// Build snapshots the run. Decisions are copied with their reasons
// re-normalized; the payload is copied minus redacted keys when captured.
func (b *Builder) Build(env contracts.ArtifactEnvelope, l4 sovereignty.GateDecision, l5 delivery.Decision, policy Policy) Event {
	tags := env.JurisdictionTags
	event := Event{
		TSUTC:          b.clock().UTC().Format(TimestampLayout),
		ArtifactID:     env.ArtifactID,
		ProducerLayer:  env.ProducerLayer,
		Jurisdiction:   tags.Jurisdiction,
		ResidencyClass: tags.ResidencyClass,
		Layer4: GateRecord{
			Allow:   l4.Allow,
			Reasons: contracts.UniqueSorted(l4.Reasons),
		},
		Layer5: DeliveryRecord{
			Allow:   l5.Allow,
			Action:  l5.Action,
			Reasons: contracts.UniqueSorted(l5.Reasons),
		},
	}
	if policy.IncludePayload {
		event.PayloadSnapshot = redact(env.Payload, policy.RedactPayloadKeys)
	}
	return event
}

var defaultBuilder = NewBuilder()

// BuildEvent builds an event stamped with the current UTC time.
func BuildEvent(env contracts.ArtifactEnvelope, l4 sovereignty.GateDecision, l5 delivery.Decision, policy Policy) Event {
	return defaultBuilder.Build(env, l4, l5, policy)
}

// redact copies payload without the redacted keys. Matching is exact and
// case-sensitive. The result is never nil.
func redact(payload map[string]any, keys contracts.StringSet) map[string]any {
	out := make(map[string]any, len(payload))
	maps.Copy(out, payload)
	for k := range keys {
		delete(out, k)
	}
	return out
}
