package delivery

import (
	"errors"
	"strings"

	"github.com/pnku766-alt/fusionintel-core/pkg/contracts"
)

// ErrDeliveryDenied is matched by every Layer 5 enforcement denial.
var ErrDeliveryDenied = errors.New("delivery: delivery denied")

// Action is the disposition assigned to an artifact.
type Action string

const (
	ActionDeliver    Action = "deliver"
	ActionQuarantine Action = "quarantine"
	ActionBlock      Action = "block"
)

// Reason code prefixes emitted by the gate.
const (
	ReasonExportControlBlocked    = "export_control_blocked:"
	ReasonSanctionsBlocked        = "sanctions_blocked:"
	ReasonExportControlQuarantine = "export_control_quarantine:"
	ReasonSanctionsQuarantine     = "sanctions_quarantine:"
	ReasonLayer4Prefix            = "layer4:"
)

// Policy is the Layer 5 policy.
type Policy struct {
	BlockedExportControlFlags    contracts.StringSet
	BlockedSanctionsFlags        contracts.StringSet
	QuarantineExportControlFlags contracts.StringSet
	QuarantineSanctionsFlags     contracts.StringSet

	// RequireLayer4Allow chains the Layer 4 decision: a denied upstream
	// decision blocks delivery outright.
	RequireLayer4Allow bool
}

// PolicyConfig carries raw, un-normalized policy lists.
type PolicyConfig struct {
	BlockedExportControlFlags    []string
	BlockedSanctionsFlags        []string
	QuarantineExportControlFlags []string
	QuarantineSanctionsFlags     []string
	RequireLayer4Allow           bool
}

// NewPolicy normalizes every list in cfg into a Policy.
func NewPolicy(cfg PolicyConfig) Policy {
	return Policy{
		BlockedExportControlFlags:    contracts.NormalizeSet(cfg.BlockedExportControlFlags),
		BlockedSanctionsFlags:        contracts.NormalizeSet(cfg.BlockedSanctionsFlags),
		QuarantineExportControlFlags: contracts.NormalizeSet(cfg.QuarantineExportControlFlags),
		QuarantineSanctionsFlags:     contracts.NormalizeSet(cfg.QuarantineSanctionsFlags),
		RequireLayer4Allow:           cfg.RequireLayer4Allow,
	}
}

// Decision is the Layer 5 result.
// Invariant: Action == ActionBlock iff !Allow.
type Decision struct {
	Allow   bool     `json:"allow"`
	Action  Action   `json:"action"`
	Reasons []string `json:"reasons"`
}

// Deny is the negation of Allow.
func (d Decision) Deny() bool { return !d.Allow }

// Upstream is the Layer 4 outcome Layer 5 may be chained to. It is passed as
// a pointer; nil means "no upstream decision supplied".
type Upstream struct {
	Allow   bool
	Reasons []string
}

// DenialError is returned by Enforce when delivery is blocked.
type DenialError struct {
	Reasons []string
}

func (e *DenialError) Error() string {
	return "layer5 delivery denied: " + strings.Join(e.Reasons, ";")
}

// Is makes the error match both ErrDeliveryDenied and contracts.ErrDenied.
func (e *DenialError) Is(target error) bool {
	return target == ErrDeliveryDenied || target == contracts.ErrDenied
}

// Outcome pairs a decision with the denial an enforcing caller would raise.
type Outcome struct {
	Decision Decision
	Denial   *DenialError
}

// Denied reports whether the outcome carries a denial.
func (o Outcome) Denied() bool { return o.Denial != nil }
