package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/pnku766-alt/fusionintel-core/pkg/canonicalize"
	"github.com/pnku766-alt/fusionintel-core/pkg/config"
	"github.com/pnku766-alt/fusionintel-core/pkg/contracts"
	"github.com/pnku766-alt/fusionintel-core/pkg/orchestrator"
	"github.com/pnku766-alt/fusionintel-core/pkg/policyloader"
)

// runProcessCmd implements `fusionintel process`.
//
// Prints one sorted-key JSON report and exits with the delivery action:
//
//	0 = deliver
//	1 = malformed input or audit write failure
//	2 = quarantine
//	3 = block, or enforcement denied the artifact
//	64 = usage error
func runProcessCmd(args []string, cfg *config.Config, stdin io.Reader, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("process", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		policyPath   string
		envelopePath string
		auditLog     string
		enforce4     bool
		enforce5     bool
	)
	cmd.StringVar(&policyPath, "policy", "", "Path to policy JSON/YAML (REQUIRED)")
	cmd.StringVar(&envelopePath, "envelope", "", "Path to envelope JSON/YAML (default: stdin)")
	cmd.StringVar(&auditLog, "audit-log", "", "Audit log path; overrides the policy's audit_log_path")
	cmd.BoolVar(&enforce4, "enforce-layer4", false, "Abort on a layer 4 denial")
	cmd.BoolVar(&enforce5, "enforce-layer5", false, "Abort on a layer 5 block")

	if err := cmd.Parse(args); err != nil {
		return exitUsage
	}
	if policyPath == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --policy is required")
		return exitUsage
	}

	policy, err := policyloader.LoadPolicyFile(policyPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	env, err := loadEnvelope(envelopePath, stdin)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	auditSet := false
	cmd.Visit(func(f *flag.Flag) {
		if f.Name == "audit-log" {
			auditSet = true
		}
	})
	switch {
	case auditSet:
		policy.AuditLogPath = auditLog
	case policy.AuditLogPath == "":
		policy.AuditLogPath = cfg.AuditLogPath
	}
	policy.EnforceLayer4 = enforce4 || cfg.EnforceLayer4
	policy.EnforceLayer5 = enforce5 || cfg.EnforceLayer5

	ctx := context.Background()
	subs, err := openSubsystems(ctx, cfg)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer subs.Close(ctx)

	report, err := subs.pipeline().RunWithDegrade(ctx, env, policy, orchestrator.Overrides{})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	out, err := canonicalize.JCS(report)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(stdout, string(out))
	return orchestrator.ExitCode(report)
}

func loadEnvelope(path string, stdin io.Reader) (contracts.ArtifactEnvelope, error) {
	if path != "" {
		return policyloader.LoadEnvelopeFile(path)
	}
	if stdin == nil {
		return contracts.ArtifactEnvelope{}, errors.New("no --envelope given and stdin is unavailable")
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return contracts.ArtifactEnvelope{}, fmt.Errorf("read envelope from stdin: %w", err)
	}
	return policyloader.DecodeEnvelope(data, policyloader.FormatAuto)
}
