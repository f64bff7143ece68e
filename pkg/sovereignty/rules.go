package sovereignty

import (
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/pnku766-alt/fusionintel-core/pkg/contracts"
)

// Rule is a named CEL deny-rule. The expression sees a single variable,
// `envelope`, and must evaluate to a bool; true denies.
//
//	envelope.jurisdiction == "RU" && "dual_use" in envelope.metadata
type Rule struct {
	Name       string `json:"name" yaml:"name"`
	Expression string `json:"expression" yaml:"expression"`
}

type compiledRule struct {
	name string
	prg  cel.Program
}

// RuleSet is a compiled, immutable list of deny-rules. Safe for concurrent use.
type RuleSet struct {
	rules []compiledRule
}

// CompileRules type-checks and plans every rule. Rule names must be unique
// and non-empty.
func CompileRules(rules []Rule) (*RuleSet, error) {
	env, err := cel.NewEnv(
		cel.Variable("envelope", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("sovereignty: cel env: %w", err)
	}

	seen := make(map[string]struct{}, len(rules))
	set := &RuleSet{rules: make([]compiledRule, 0, len(rules))}
	for _, r := range rules {
		name := strings.TrimSpace(r.Name)
		if name == "" {
			return nil, fmt.Errorf("sovereignty: rule name required")
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("sovereignty: duplicate rule %q", name)
		}
		seen[name] = struct{}{}

		ast, issues := env.Compile(r.Expression)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("sovereignty: compile rule %q: %w", name, issues.Err())
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("sovereignty: plan rule %q: %w", name, err)
		}
		set.rules = append(set.rules, compiledRule{name: name, prg: prg})
	}
	return set, nil
}

// Len returns the number of compiled rules.
func (s *RuleSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.rules)
}

// Evaluate runs every rule against env. A rule that errors or yields a
// non-bool produces rule_error:<name> and therefore denies (fail-closed).
func (s *RuleSet) Evaluate(env contracts.ArtifactEnvelope) []string {
	if s.Len() == 0 {
		return nil
	}
	input := map[string]any{"envelope": activation(env)}

	var reasons []string
	for _, r := range s.rules {
		out, _, err := r.prg.Eval(input)
		if err != nil {
			reasons = append(reasons, ReasonRuleError+r.name)
			continue
		}
		deny, ok := out.Value().(bool)
		switch {
		case !ok:
			reasons = append(reasons, ReasonRuleError+r.name)
		case deny:
			reasons = append(reasons, ReasonRuleDenied+r.name)
		}
	}
	return reasons
}

func activation(env contracts.ArtifactEnvelope) map[string]any {
	metadata := env.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	return map[string]any{
		"artifact_id":          env.ArtifactID,
		"artifact_type":        env.ArtifactType,
		"producer_layer":       env.ProducerLayer,
		"metadata":             metadata,
		"jurisdiction":         contracts.NormalizeValue(env.JurisdictionTags.Jurisdiction),
		"residency_class":      contracts.NormalizeValue(env.JurisdictionTags.ResidencyClass),
		"export_control_flags": env.ExportControlFlags().Sorted(),
		"sanctions_flags":      env.SanctionsFlags().Sorted(),
	}
}
