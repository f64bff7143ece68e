package sovereignty

import (
	"errors"
	"strings"

	"github.com/pnku766-alt/fusionintel-core/pkg/contracts"
)

// ErrAuthorizationDenied is matched by every Layer 4 enforcement denial.
var ErrAuthorizationDenied = errors.New("sovereignty: authorization denied")

// Reason code prefixes emitted by the gate.
const (
	ReasonJurisdictionNotAllowed   = "jurisdiction_not_allowed:"
	ReasonResidencyClassNotAllowed = "residency_class_not_allowed:"
	ReasonExportControlBlocked     = "export_control_blocked:"
	ReasonSanctionsBlocked         = "sanctions_blocked:"
	ReasonRuleDenied               = "rule_denied:"
	ReasonRuleError                = "rule_error:"
)

// Policy is the Layer 4 policy. An empty allow-list means "no restriction".
// Block sets deny on any overlap with the envelope's flags.
type Policy struct {
	AllowedJurisdictions      contracts.StringSet
	AllowedResidencyClasses   contracts.StringSet
	BlockedExportControlFlags contracts.StringSet
	BlockedSanctionsFlags     contracts.StringSet

	// Rules holds optional compiled CEL deny-rules. Nil means none.
	Rules *RuleSet
}

// PolicyConfig carries raw, un-normalized policy lists.
type PolicyConfig struct {
	AllowedJurisdictions      []string
	AllowedResidencyClasses   []string
	BlockedExportControlFlags []string
	BlockedSanctionsFlags     []string
	Rules                     *RuleSet
}

// NewPolicy normalizes every list in cfg into a Policy.
func NewPolicy(cfg PolicyConfig) Policy {
	return Policy{
		AllowedJurisdictions:      contracts.NormalizeSet(cfg.AllowedJurisdictions),
		AllowedResidencyClasses:   contracts.NormalizeSet(cfg.AllowedResidencyClasses),
		BlockedExportControlFlags: contracts.NormalizeSet(cfg.BlockedExportControlFlags),
		BlockedSanctionsFlags:     contracts.NormalizeSet(cfg.BlockedSanctionsFlags),
		Rules:                     cfg.Rules,
	}
}

// GateDecision is the Layer 4 result. Reasons are deduplicated and sorted.
type GateDecision struct {
	Allow   bool     `json:"allow"`
	Reasons []string `json:"reasons"`
}

// Deny is the negation of Allow.
func (d GateDecision) Deny() bool { return !d.Allow }

// DenialError is returned by Enforce when the gate denies.
type DenialError struct {
	Reasons []string
}

func (e *DenialError) Error() string {
	return "layer4 gate denied: " + strings.Join(e.Reasons, ";")
}

// Is makes the error match both ErrAuthorizationDenied and contracts.ErrDenied.
func (e *DenialError) Is(target error) bool {
	return target == ErrAuthorizationDenied || target == contracts.ErrDenied
}

// Outcome pairs a decision with the denial an enforcing caller would raise.
// Denial is nil whenever Decision allows.
type Outcome struct {
	Decision GateDecision
	Denial   *DenialError
}

// Denied reports whether the outcome carries a denial.
func (o Outcome) Denied() bool { return o.Denial != nil }
