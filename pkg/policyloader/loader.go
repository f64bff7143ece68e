// Package policyloader turns raw JSON or YAML documents into the typed
// envelope and policy values the pipeline consumes. Every failure wraps
// ErrMalformedInput; the pipeline itself never sees malformed data.
package policyloader

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"

	"github.com/pnku766-alt/fusionintel-core/pkg/audit"
	"github.com/pnku766-alt/fusionintel-core/pkg/canonicalize"
	"github.com/pnku766-alt/fusionintel-core/pkg/contracts"
	"github.com/pnku766-alt/fusionintel-core/pkg/delivery"
	"github.com/pnku766-alt/fusionintel-core/pkg/orchestrator"
	"github.com/pnku766-alt/fusionintel-core/pkg/sovereignty"
)

var ErrMalformedInput = errors.New("policyloader: malformed input")

// SupportedVersions bounds the optional "version" field of policy documents.
const SupportedVersions = ">= 1.0.0, < 2.0.0"

var versionConstraint = func() *semver.Constraints {
	c, err := semver.NewConstraint(SupportedVersions)
	if err != nil {
		panic(err)
	}
	return c
}()

// Format is a document encoding.
type Format string

const (
	FormatAuto Format = ""
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks YAML for .yaml/.yml files and JSON otherwise.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// PolicyDocument is the wire form of an orchestrator policy.
type PolicyDocument struct {
	Version      string    `json:"version,omitempty" yaml:"version,omitempty"`
	Layer4       Layer4Doc `json:"layer4" yaml:"layer4"`
	Layer5       Layer5Doc `json:"layer5" yaml:"layer5"`
	Layer6       Layer6Doc `json:"layer6" yaml:"layer6"`
	AuditLogPath string    `json:"audit_log_path,omitempty" yaml:"audit_log_path,omitempty"`
}

type Layer4Doc struct {
	AllowedJurisdictions      []string           `json:"allowed_jurisdictions" yaml:"allowed_jurisdictions"`
	AllowedResidencyClasses   []string           `json:"allowed_residency_classes" yaml:"allowed_residency_classes"`
	BlockedExportControlFlags []string           `json:"blocked_export_control_flags" yaml:"blocked_export_control_flags"`
	BlockedSanctionsFlags     []string           `json:"blocked_sanctions_flags" yaml:"blocked_sanctions_flags"`
	Rules                     []sovereignty.Rule `json:"rules,omitempty" yaml:"rules,omitempty"`
}

type Layer5Doc struct {
	BlockedExportControlFlags    []string `json:"blocked_export_control_flags" yaml:"blocked_export_control_flags"`
	BlockedSanctionsFlags        []string `json:"blocked_sanctions_flags" yaml:"blocked_sanctions_flags"`
	QuarantineExportControlFlags []string `json:"quarantine_export_control_flags" yaml:"quarantine_export_control_flags"`
	QuarantineSanctionsFlags     []string `json:"quarantine_sanctions_flags" yaml:"quarantine_sanctions_flags"`
	RequireLayer4Allow           bool     `json:"require_layer4_allow" yaml:"require_layer4_allow"`
}

// Layer6Doc defaults IncludePayload to false when omitted.
type Layer6Doc struct {
	IncludePayload    bool     `json:"include_payload" yaml:"include_payload"`
	RedactPayloadKeys []string `json:"redact_payload_keys" yaml:"redact_payload_keys"`
}

// toJSON converts a document of the given format into JSON bytes so one
// schema and one decoder serve both encodings.
func toJSON(data []byte, format Format) ([]byte, error) {
	if format == FormatAuto {
		format = FormatYAML
		if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '{' {
			format = FormatJSON
		}
	}
	switch format {
	case FormatJSON:
		return data, nil
	case FormatYAML:
		var v any
		if err := yaml.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return json.Marshal(v)
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
}

// decode validates the document against schema and unmarshals it into out.
// It returns the document as JSON for callers that need a second pass.
func decode(data []byte, format Format, schema documentSchema, out any) ([]byte, error) {
	raw, err := toJSON(data, format)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedInput, schema, err)
	}
	var generic any
	if err := canonicalize.DecodeNumbers(raw, &generic); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedInput, schema, err)
	}
	if err := schema.validate(generic); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedInput, schema, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedInput, schema, err)
	}
	return raw, nil
}

// DecodePolicyDocument parses and validates a policy document.
func DecodePolicyDocument(data []byte, format Format) (PolicyDocument, error) {
	var doc PolicyDocument
	if _, err := decode(data, format, policySchema, &doc); err != nil {
		return PolicyDocument{}, err
	}
	if doc.Version != "" {
		v, err := semver.NewVersion(doc.Version)
		if err != nil {
			return PolicyDocument{}, fmt.Errorf("%w: policy version %q: %v", ErrMalformedInput, doc.Version, err)
		}
		if !versionConstraint.Check(v) {
			return PolicyDocument{}, fmt.Errorf("%w: policy version %s not in %s", ErrMalformedInput, v, SupportedVersions)
		}
	}
	return doc, nil
}

// Policy builds the typed orchestrator policy, compiling any CEL rules.
func (d PolicyDocument) Policy() (orchestrator.Policy, error) {
	var rules *sovereignty.RuleSet
	if len(d.Layer4.Rules) > 0 {
		rs, err := sovereignty.CompileRules(d.Layer4.Rules)
		if err != nil {
			return orchestrator.Policy{}, fmt.Errorf("%w: layer4 rules: %v", ErrMalformedInput, err)
		}
		rules = rs
	}

	return orchestrator.Policy{
		Layer4: sovereignty.NewPolicy(sovereignty.PolicyConfig{
			AllowedJurisdictions:      d.Layer4.AllowedJurisdictions,
			AllowedResidencyClasses:   d.Layer4.AllowedResidencyClasses,
			BlockedExportControlFlags: d.Layer4.BlockedExportControlFlags,
			BlockedSanctionsFlags:     d.Layer4.BlockedSanctionsFlags,
			Rules:                     rules,
		}),
		Layer5: delivery.NewPolicy(delivery.PolicyConfig{
			BlockedExportControlFlags:    d.Layer5.BlockedExportControlFlags,
			BlockedSanctionsFlags:        d.Layer5.BlockedSanctionsFlags,
			QuarantineExportControlFlags: d.Layer5.QuarantineExportControlFlags,
			QuarantineSanctionsFlags:     d.Layer5.QuarantineSanctionsFlags,
			RequireLayer4Allow:           d.Layer5.RequireLayer4Allow,
		}),
		Layer6:       audit.NewPolicy(d.Layer6.IncludePayload, d.Layer6.RedactPayloadKeys),
		AuditLogPath: d.AuditLogPath,
	}, nil
}

// DecodePolicy parses, validates and builds a policy in one step.
func DecodePolicy(data []byte, format Format) (orchestrator.Policy, error) {
	doc, err := DecodePolicyDocument(data, format)
	if err != nil {
		return orchestrator.Policy{}, err
	}
	return doc.Policy()
}

// DecodeEnvelope parses and validates an envelope document. Payload numbers
// are kept as json.Number. Missing payload
// and metadata become empty maps; a missing provenance reference gets the
// placeholder default.
func DecodeEnvelope(data []byte, format Format) (contracts.ArtifactEnvelope, error) {
	var env contracts.ArtifactEnvelope
	raw, err := decode(data, format, envelopeSchema, &env)
	if err != nil {
		return contracts.ArtifactEnvelope{}, err
	}
	// The payload is copied into audit snapshots verbatim, so its numbers
	// stay json.Number instead of passing through float64.
	var exact struct {
		Payload map[string]any `json:"payload"`
	}
	if err := canonicalize.DecodeNumbers(raw, &exact); err != nil {
		return contracts.ArtifactEnvelope{}, fmt.Errorf("%w: %s: %v", ErrMalformedInput, envelopeSchema, err)
	}
	env.Payload = exact.Payload
	if env.Payload == nil {
		env.Payload = map[string]any{}
	}
	if env.Metadata == nil {
		env.Metadata = map[string]any{}
	}
	if env.ProvenanceRef == (contracts.ProvenanceRef{}) {
		env.ProvenanceRef = contracts.DefaultProvenance()
	}
	return env, nil
}

// LoadPolicyFile reads a policy from disk, choosing the format by extension.
func LoadPolicyFile(path string) (orchestrator.Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return orchestrator.Policy{}, fmt.Errorf("read policy %s: %w", path, err)
	}
	return DecodePolicy(data, FormatFromPath(path))
}

// LoadEnvelopeFile reads an envelope from disk, choosing the format by
// extension.
func LoadEnvelopeFile(path string) (contracts.ArtifactEnvelope, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return contracts.ArtifactEnvelope{}, fmt.Errorf("read envelope %s: %w", path, err)
	}
	return DecodeEnvelope(data, FormatFromPath(path))
}
