package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/pnku766-alt/fusionintel-core/pkg/config"
)

var version = "0.2.2"

// exitUsage (EX_USAGE) keeps usage errors apart from the process decision
// codes 0, 2 and 3.
const exitUsage = 64

func main() {
	os.Exit(Run(os.Args, os.Stdin, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing.
func Run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stderr)
		return exitUsage
	}

	cfg := config.Load()
	slog.SetDefault(cfg.NewLogger(stderr))

	switch args[1] {
	case "process":
		return runProcessCmd(args[2:], cfg, stdin, stdout, stderr)
	case "serve", "server":
		return runServeCmd(args[2:], cfg, stdout, stderr)
	case "audit":
		return runAuditCmd(args[2:], cfg, stdout, stderr)
	case "lint":
		return runLintCmd(args[2:], stdout, stderr)
	case "version", "--version":
		_, _ = fmt.Fprintf(stdout, "fusionintel %s\n", version)
		return 0
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return exitUsage
	}
}

const (
	colorReset = "\033[0m"
	colorBold  = "\033[1m"
	colorBlue  = "\033[34m"
	colorCyan  = "\033[36m"
	colorGreen = "\033[32m"
	colorGray  = "\033[37m"
)

func printUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintf(w, "%sFusionIntel Core %s%s\n", colorBold+colorBlue, version, colorReset)
	_, _ = fmt.Fprintf(w, "%sSovereignty gate, delivery gate, audit trail.%s\n", colorGray, colorReset)
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintf(w, "%sUSAGE:%s\n", colorBold, colorReset)
	_, _ = fmt.Fprintln(w, "  fusionintel <command> [flags]")
	_, _ = fmt.Fprintln(w, "")

	printSection(w, "PIPELINE")
	printCommand(w, "process", "Run one envelope through layers 4-6 (--policy, --envelope)")
	printCommand(w, "serve", "Serve the HTTP API (--addr)")

	printSection(w, "AUDIT")
	printCommand(w, "audit verify", "Verify an audit log and mirror chains (--log, --mirrors)")
	printCommand(w, "audit archive", "Store an audit log in the archive (--log)")

	printSection(w, "UTILITIES")
	printCommand(w, "lint", "Check file placement of the given paths")
	printCommand(w, "version", "Show version information")
	printCommand(w, "help", "Show this help")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "Exit codes for process: 0 deliver, 2 quarantine, 3 block or enforcement error, 1 bad input, 64 usage.")
	_, _ = fmt.Fprintln(w, "")
}

func printSection(w io.Writer, title string) {
	_, _ = fmt.Fprintf(w, "%s%s:%s\n", colorBold+colorCyan, title, colorReset)
}

func printCommand(w io.Writer, name, desc string) {
	_, _ = fmt.Fprintf(w, "  %s%-14s%s %s\n", colorGreen, name, colorReset, desc)
}
