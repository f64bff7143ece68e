package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/pnku766-alt/fusionintel-core/pkg/archive"
	"github.com/pnku766-alt/fusionintel-core/pkg/audit"
	"github.com/pnku766-alt/fusionintel-core/pkg/config"
)

func runAuditCmd(args []string, cfg *config.Config, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		_, _ = fmt.Fprintln(stderr, "Usage: fusionintel audit <verify|archive> [flags]")
		return exitUsage
	}
	switch args[0] {
	case "verify":
		return runAuditVerify(args[1:], cfg, stdout, stderr)
	case "archive":
		return runAuditArchive(args[1:], cfg, stdout, stderr)
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown audit subcommand: %s\n", args[0])
		return exitUsage
	}
}

// runAuditVerify implements `fusionintel audit verify`.
//
// Exit codes:
//
//	0 = log (and mirror chains, with --mirrors) verified
//	1 = verification failed
//	2 = runtime error
//	64 = usage error
func runAuditVerify(args []string, cfg *config.Config, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("audit verify", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		logPath    string
		mirrors    bool
		jsonOutput bool
	)
	cmd.StringVar(&logPath, "log", "", "Path to the JSONL audit log (REQUIRED)")
	cmd.BoolVar(&mirrors, "mirrors", false, "Also verify the hash chain of every configured mirror")
	cmd.BoolVar(&jsonOutput, "json", false, "Output the report as JSON")
	if err := cmd.Parse(args); err != nil {
		return exitUsage
	}
	if logPath == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --log is required")
		return exitUsage
	}

	f, err := os.Open(logPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer f.Close()

	report, verr := audit.Verify(f)

	var checked []string
	var merr error
	if mirrors && verr == nil {
		ctx := context.Background()
		subs, err := openSubsystems(ctx, cfg)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		defer subs.Close(ctx)
		checked, merr = subs.verifyMirrors(ctx)
	}

	ok := verr == nil && merr == nil
	if jsonOutput {
		out := map[string]any{"verified": ok, "report": report, "mirrors": checked}
		if !ok {
			out["error"] = firstErr(verr, merr).Error()
		}
		data, _ := json.MarshalIndent(out, "", "  ")
		_, _ = fmt.Fprintln(stdout, string(data))
	} else if ok {
		_, _ = fmt.Fprintf(stdout, "verified %d records (deliver=%d quarantine=%d block=%d)\n",
			report.Lines, report.Deliver, report.Quarantine, report.Block)
		for _, name := range checked {
			_, _ = fmt.Fprintf(stdout, "mirror %s: chain intact\n", name)
		}
	} else {
		_, _ = fmt.Fprintf(stderr, "verification failed: %v\n", firstErr(verr, merr))
	}
	if !ok {
		return 1
	}
	return 0
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// runAuditArchive stores a closed audit log in the configured archive and
// prints its content address.
func runAuditArchive(args []string, cfg *config.Config, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("audit archive", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		logPath string
		verify  bool
	)
	cmd.StringVar(&logPath, "log", "", "Path to the JSONL audit log (REQUIRED)")
	cmd.BoolVar(&verify, "verify", true, "Refuse to archive a log that fails verification")
	if err := cmd.Parse(args); err != nil {
		return exitUsage
	}
	if logPath == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --log is required")
		return exitUsage
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	if verify {
		if _, err := audit.Verify(bytes.NewReader(data)); err != nil {
			_, _ = fmt.Fprintf(stderr, "verification failed: %v\n", err)
			return 1
		}
	}

	ctx := context.Background()
	st, err := archive.NewStore(ctx, cfg.Archive)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	addr, err := st.Put(ctx, data)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	_, _ = fmt.Fprintln(stdout, addr)
	return 0
}
