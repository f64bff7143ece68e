package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/pnku766-alt/fusionintel-core/pkg/api"
	"github.com/pnku766-alt/fusionintel-core/pkg/config"
)

// listen is a variable to allow stubbing in tests.
var listen = func(ctx context.Context, srv *api.Server, addr string) error {
	return srv.ListenAndServe(ctx, addr)
}

func runServeCmd(args []string, cfg *config.Config, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("serve", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var addr string
	cmd.StringVar(&addr, "addr", ":"+cfg.Port, "Listen address")
	if err := cmd.Parse(args); err != nil {
		return exitUsage
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	subs, err := openSubsystems(ctx, cfg)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer subs.Close(context.Background())

	srv := api.NewServer(subs.pipeline(), api.Defaults{
		AuditLogPath:   cfg.AuditLogPath,
		AuditDir:       cfg.APIAuditDir,
		EnforceLayer4:  cfg.EnforceLayer4,
		EnforceLayer5:  cfg.EnforceLayer5,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	})
	defer srv.Close()

	_, _ = fmt.Fprintf(stdout, "fusionintel %s listening on %s\n", version, addr)
	if err := listen(ctx, srv, addr); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
