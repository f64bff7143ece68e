// Package contracts holds the immutable value types shared by every layer of
// the compliance pipeline: the artifact envelope, its jurisdiction tags and the
// set/reason normalization rules all layers agree on.
package contracts

// JurisdictionTags describes where an artifact lives and which export-control
// and sanctions regimes apply to it. Empty strings and empty flag lists are
// valid "unspecified" states.
type JurisdictionTags struct {
	Jurisdiction       string   `json:"jurisdiction" yaml:"jurisdiction"`
	ResidencyClass     string   `json:"residency_class" yaml:"residency_class"`
	ExportControlFlags []string `json:"export_control_flags" yaml:"export_control_flags"`
	SanctionsFlags     []string `json:"sanctions_flags" yaml:"sanctions_flags"`
}

// ProvenanceRef points at the origin evidence of an artifact.
// The pipeline never interprets it.
type ProvenanceRef struct {
	EventHash    string `json:"event_hash" yaml:"event_hash"`
	SignatureRef string `json:"signature_ref" yaml:"signature_ref"`
	LedgerRef    string `json:"ledger_ref,omitempty" yaml:"ledger_ref,omitempty"`
}

// DefaultProvenance returns the placeholder reference used when a producer
// supplies none.
func DefaultProvenance() ProvenanceRef {
	return ProvenanceRef{
		EventHash:    "sha256:stub",
		SignatureRef: "sigstub:stub",
	}
}

// ArtifactEnvelope is the unit the pipeline decides on.
//
// Payload and Metadata are opaque to every layer except the audit recorder,
// which may copy Payload minus redacted keys. Callers must treat an envelope
// as read-only once it has been handed to the pipeline.
type ArtifactEnvelope struct {
	ArtifactID       string           `json:"artifact_id" yaml:"artifact_id"`
	ArtifactType     string           `json:"artifact_type" yaml:"artifact_type"`
	ProducerLayer    string           `json:"producer_layer" yaml:"producer_layer"`
	Payload          map[string]any   `json:"payload" yaml:"payload"`
	Metadata         map[string]any   `json:"metadata" yaml:"metadata"`
	JurisdictionTags JurisdictionTags `json:"jurisdiction_tags" yaml:"jurisdiction_tags"`
	ProvenanceRef    ProvenanceRef    `json:"provenance_ref" yaml:"provenance_ref"`
}

// ExportControlFlags returns the envelope's normalized export-control flags.
func (e ArtifactEnvelope) ExportControlFlags() StringSet {
	return NormalizeSet(e.JurisdictionTags.ExportControlFlags)
}

// SanctionsFlags returns the envelope's normalized sanctions flags.
func (e ArtifactEnvelope) SanctionsFlags() StringSet {
	return NormalizeSet(e.JurisdictionTags.SanctionsFlags)
}
