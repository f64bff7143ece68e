package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/pnku766-alt/fusionintel-core/pkg/audit"
	"github.com/pnku766-alt/fusionintel-core/pkg/contracts"
	"github.com/pnku766-alt/fusionintel-core/pkg/delivery"
	"github.com/pnku766-alt/fusionintel-core/pkg/observability"
	"github.com/pnku766-alt/fusionintel-core/pkg/sovereignty"
)

func ptr[T any](v T) *T { return &v }

type memSink struct {
	name string
	err  error
	mu   sync.Mutex
	got  []audit.Record
}

func (s *memSink) Name() string { return s.name }

func (s *memSink) Mirror(_ context.Context, rec audit.Record) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, rec)
	return nil
}

func usEnvelope() contracts.ArtifactEnvelope {
	return contracts.ArtifactEnvelope{
		ArtifactID:    "x1",
		ProducerLayer: "layerX",
		Payload:       map[string]any{"ok": true, "pii": map[string]any{"email": "x@y"}},
		JurisdictionTags: contracts.JurisdictionTags{
			Jurisdiction:       "US",
			ResidencyClass:     "restricted",
			ExportControlFlags: []string{"EAR99"},
		},
	}
}

func cnEnvelope() contracts.ArtifactEnvelope {
	return contracts.ArtifactEnvelope{
		ArtifactID: "x2",
		JurisdictionTags: contracts.JurisdictionTags{
			Jurisdiction:       "CN",
			ResidencyClass:     "foreign",
			ExportControlFlags: []string{"ITAR", "ITAR"},
			SanctionsFlags:     []string{"SDN"},
		},
	}
}

func strictPolicy() Policy {
	return Policy{
		Layer4: sovereignty.NewPolicy(sovereignty.PolicyConfig{
			AllowedJurisdictions:      []string{"US"},
			AllowedResidencyClasses:   []string{"restricted"},
			BlockedExportControlFlags: []string{"ITAR"},
			BlockedSanctionsFlags:     []string{"SDN"},
		}),
		Layer5: delivery.NewPolicy(delivery.PolicyConfig{}),
		Layer6: audit.DefaultPolicy(),
	}
}

func readLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSuffix(string(data), "\n"), "\n") {
		var obj map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &obj))
		out = append(out, obj)
	}
	return out
}

func TestProcess_WritesAuditAndReturnsDecisions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	policy := Policy{
		Layer4:       sovereignty.NewPolicy(sovereignty.PolicyConfig{AllowedJurisdictions: []string{"US"}}),
		Layer5:       delivery.NewPolicy(delivery.PolicyConfig{QuarantineExportControlFlags: []string{"NLR"}}),
		Layer6:       audit.NewPolicy(true, []string{"pii"}),
		AuditLogPath: path,
	}

	res, err := Process(context.Background(), usEnvelope(), policy, Overrides{})
	require.NoError(t, err)

	assert.True(t, res.Layer4.Allow)
	assert.True(t, res.Layer5.Allow)
	assert.Equal(t, delivery.ActionDeliver, res.Layer5.Action)
	assert.True(t, res.AuditWritten)
	assert.Equal(t, []string{ReasonAuditWritten}, res.AuditReasons)

	lines := readLines(t, path)
	require.Len(t, lines, 1)
	assert.Equal(t, "x1", lines[0]["artifact_id"])
	assert.Equal(t, map[string]any{"ok": true}, lines[0]["payload_snapshot"])
}

func TestProcess_ChainedBlock(t *testing.T) {
	env := contracts.ArtifactEnvelope{JurisdictionTags: contracts.JurisdictionTags{Jurisdiction: "CN", ResidencyClass: "restricted"}}
	policy := Policy{
		Layer4: sovereignty.NewPolicy(sovereignty.PolicyConfig{AllowedJurisdictions: []string{"US"}}),
		Layer5: delivery.NewPolicy(delivery.PolicyConfig{RequireLayer4Allow: true}),
	}

	res, err := Process(context.Background(), env, policy, Overrides{})
	require.NoError(t, err)
	assert.True(t, res.Layer4.Deny())
	assert.True(t, res.Layer5.Deny())
	assert.Equal(t, delivery.ActionBlock, res.Layer5.Action)
	assert.Equal(t, []string{"layer4:jurisdiction_not_allowed:CN"}, res.Layer5.Reasons)
}

func TestProcess_UnchainedIgnoresLayer4Denial(t *testing.T) {
	res, err := Process(context.Background(), cnEnvelope(), strictPolicy(), Overrides{})
	require.NoError(t, err)
	assert.False(t, res.Layer4.Allow)
	assert.Equal(t, delivery.ActionDeliver, res.Layer5.Action)
}

func TestProcess_Scenarios(t *testing.T) {
	t.Run("A", func(t *testing.T) {
		res, err := Process(context.Background(), usEnvelope(), strictPolicy(), Overrides{})
		require.NoError(t, err)
		assert.True(t, res.Layer4.Allow)
		assert.Empty(t, res.Layer4.Reasons)
		assert.Equal(t, delivery.ActionDeliver, res.Layer5.Action)
		assert.True(t, res.Layer5.Allow)
	})

	t.Run("B", func(t *testing.T) {
		res, err := Process(context.Background(), cnEnvelope(), strictPolicy(), Overrides{})
		require.NoError(t, err)
		assert.Equal(t, []string{
			"export_control_blocked:ITAR",
			"jurisdiction_not_allowed:CN",
			"residency_class_not_allowed:foreign",
			"sanctions_blocked:SDN",
		}, res.Layer4.Reasons)
	})

	t.Run("C", func(t *testing.T) {
		env := usEnvelope()
		env.JurisdictionTags.ExportControlFlags = []string{"NLR"}
		policy := strictPolicy()
		policy.Layer5 = delivery.NewPolicy(delivery.PolicyConfig{QuarantineExportControlFlags: []string{"NLR"}})

		res, err := Process(context.Background(), env, policy, Overrides{})
		require.NoError(t, err)
		assert.Equal(t, delivery.ActionQuarantine, res.Layer5.Action)
		assert.True(t, res.Layer5.Allow)
		assert.Equal(t, []string{"export_control_quarantine:NLR"}, res.Layer5.Reasons)
	})
}

func TestProcess_NoAuditPathSkipsAudit(t *testing.T) {
	res, err := Process(context.Background(), usEnvelope(), strictPolicy(), Overrides{})
	require.NoError(t, err)
	assert.False(t, res.AuditWritten)
	assert.NotNil(t, res.AuditReasons)
	assert.Empty(t, res.AuditReasons)
}

func TestProcess_OverridePrecedence(t *testing.T) {
	dir := t.TempDir()
	stored := filepath.Join(dir, "stored.jsonl")
	override := filepath.Join(dir, "override.jsonl")

	policy := strictPolicy()
	policy.AuditLogPath = stored
	policy.EnforceLayer4 = true

	t.Run("AuditPathOverride", func(t *testing.T) {
		_, err := Process(context.Background(), usEnvelope(), policy, Overrides{AuditLogPath: &override})
		require.NoError(t, err)
		assert.FileExists(t, override)
		assert.NoFileExists(t, stored)
	})

	t.Run("EmptyOverrideDisablesAudit", func(t *testing.T) {
		res, err := Process(context.Background(), usEnvelope(), policy, Overrides{AuditLogPath: ptr("")})
		require.NoError(t, err)
		assert.False(t, res.AuditWritten)
	})

	t.Run("EnforceOverrideOff", func(t *testing.T) {
		res, err := Process(context.Background(), cnEnvelope(), policy, Overrides{EnforceLayer4: ptr(false)})
		require.NoError(t, err)
		assert.False(t, res.Layer4.Allow)
	})

	t.Run("StoredEnforceApplies", func(t *testing.T) {
		_, err := Process(context.Background(), cnEnvelope(), policy, Overrides{})
		require.Error(t, err)
		assert.True(t, errors.Is(err, sovereignty.ErrAuthorizationDenied))
	})
}

func TestProcess_EnforceDenialSkipsAudit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	policy := strictPolicy()
	policy.AuditLogPath = path

	t.Run("Layer4", func(t *testing.T) {
		_, err := Process(context.Background(), cnEnvelope(), policy, Overrides{EnforceLayer4: ptr(true)})
		require.Error(t, err)
		assert.True(t, errors.Is(err, contracts.ErrDenied))
		assert.NoFileExists(t, path)
	})

	t.Run("Layer5", func(t *testing.T) {
		p := strictPolicy()
		p.AuditLogPath = path
		p.Layer5 = delivery.NewPolicy(delivery.PolicyConfig{BlockedSanctionsFlags: []string{"SDN"}})
		_, err := Process(context.Background(), cnEnvelope(), p, Overrides{EnforceLayer5: ptr(true)})
		require.Error(t, err)
		assert.True(t, errors.Is(err, delivery.ErrDeliveryDenied))
		assert.NoFileExists(t, path)
	})
}

func TestProcess_AuditWriteFailurePropagates(t *testing.T) {
	policy := strictPolicy()
	policy.AuditLogPath = filepath.Join(t.TempDir(), "no-such-dir", "audit.jsonl")

	_, err := Process(context.Background(), usEnvelope(), policy, Overrides{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, audit.ErrAuditWrite))
	assert.False(t, errors.Is(err, contracts.ErrDenied))
}

func TestProcess_Mirrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	policy := strictPolicy()
	policy.AuditLogPath = path

	t.Run("Success", func(t *testing.T) {
		a, b := &memSink{name: "sqlite"}, &memSink{name: "redis"}
		p := New(WithSinks(a, b))

		res, err := p.Process(context.Background(), usEnvelope(), policy, Overrides{})
		require.NoError(t, err)
		assert.Equal(t, []string{"audit_mirrored:redis", "audit_mirrored:sqlite", "audit_written"}, res.AuditReasons)
		require.Len(t, a.got, 1)
		assert.Equal(t, a.got[0].Hash, b.got[0].Hash)
		assert.True(t, strings.HasPrefix(a.got[0].Hash, "sha256:"))
	})

	t.Run("FailureIsAuditWriteFailure", func(t *testing.T) {
		bad := &memSink{name: "postgres", err: errors.New("connection refused")}
		after := &memSink{name: "after"}
		p := New(WithSinks(bad, after))

		_, err := p.Process(context.Background(), usEnvelope(), policy, Overrides{})
		require.Error(t, err)
		var wf *audit.WriteFailure
		require.True(t, errors.As(err, &wf))
		assert.Equal(t, "postgres", wf.Path)
		assert.Empty(t, after.got)
	})
}

func TestProcess_Deterministic(t *testing.T) {
	clock := func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	dir := t.TempDir()
	policy := strictPolicy()

	var lines [][]byte
	for i := 0; i < 2; i++ {
		path := filepath.Join(dir, "run"+string(rune('a'+i))+".jsonl")
		_, err := New(WithClock(clock)).Process(context.Background(), cnEnvelope(), policy, Overrides{AuditLogPath: &path})
		require.NoError(t, err)
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		lines = append(lines, data)
	}
	assert.Equal(t, lines[0], lines[1])
}

func TestProcess_Telemetry(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	telemetry, err := observability.NewWithProviders(tp, mp)
	require.NoError(t, err)

	policy := strictPolicy()
	policy.AuditLogPath = filepath.Join(t.TempDir(), "audit.jsonl")
	_, err = New(WithTelemetry(telemetry)).Process(context.Background(), usEnvelope(), policy, Overrides{})
	require.NoError(t, err)

	var names []string
	for _, s := range recorder.Ended() {
		names = append(names, s.Name())
	}
	assert.ElementsMatch(t, []string{"layer4.sovereignty", "layer5.delivery", "layer6.audit", "orchestrator.process"}, names)
}
