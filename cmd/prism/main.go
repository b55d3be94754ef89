/*
Prism is a command line client for the Prism chat-completion gateway.

Usage:

	prism <command> [flags] [args]

Commands:

	chat     send a prompt and print the answer
	usage    show calls recorded in the local usage ledger
	version  print the client version, optionally checking for updates

Configuration comes from prism.yaml (in ., ./config or ~/.prism), a .env file
and PRISM_* environment variables, e.g. PRISM_CLIENT_BASE_URL and
PRISM_CLIENT_API_KEY. Set usage.dsn (PRISM_USAGE_DSN) to record every chat
call in a local sqlite ledger.
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/nulzo/prism-go/internal/cli"
	"github.com/nulzo/prism-go/internal/config"
	"github.com/nulzo/prism-go/internal/platform/logger"
	"github.com/nulzo/prism-go/internal/platform/otel"
	"github.com/nulzo/prism-go/pkg/prism"
	"go.uber.org/zap"
)

type app struct {
	cfg *config.Config
	log *zap.Logger
	out io.Writer
	in  io.Reader
}

func main() {
	os.Exit(run())
}

func run() int {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", cli.CrossMark(), err)
		return 1
	}

	logCfg := logger.DefaultConfig()
	logCfg.Level = cfg.Log.Level
	logCfg.Format = cfg.Log.Format
	log := logger.Initialize(logCfg)
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.Tracing.Enabled {
		shutdown, err := otel.InitTracer(ctx, otel.Config{
			ServiceName:    cfg.Tracing.ServiceName,
			ServiceVersion: prism.Version,
		}, log)
		if err != nil {
			log.Error("failed to init tracer", zap.Error(err))
		} else {
			defer func() {
				_ = shutdown(context.Background())
			}()
		}
	}

	a := &app{cfg: cfg, log: log, out: os.Stdout, in: os.Stdin}

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "chat":
		err = a.chat(ctx, args)
	case "usage":
		err = a.usage(ctx, args)
	case "version":
		err = a.version(ctx, args)
	case "help", "-h", "--help":
		usage(os.Stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		usage(os.Stderr)
		return 2
	}

	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %s\n", cli.CrossMark(), describeError(err))
		return 1
	}
	return 0
}

func usage(w io.Writer) {
	fmt.Fprintln(w, cli.Gradient("prism", cli.BrandBlue, cli.BrandPurple)+" "+cli.Dim(prism.Version))
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: prism <command> [flags] [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  chat     send a prompt and print the answer")
	fmt.Fprintln(w, "  usage    show calls recorded in the local usage ledger")
	fmt.Fprintln(w, "  version  print the client version")
}

// newClient builds a gateway client from the loaded configuration.
func (a *app) newClient() *prism.Client {
	c := a.cfg.Client
	opts := []prism.Option{
		prism.WithBaseURL(c.BaseURL),
		prism.WithTimeout(c.Timeout),
		prism.WithLogger(a.log),
		prism.WithAppInfo(c.AppName, c.AppURL),
		prism.WithRateLimit(c.RateLimit.RequestsPerSecond, c.RateLimit.Burst),
	}
	for k, v := range c.Headers {
		opts = append(opts, prism.WithHeader(k, v))
	}
	return prism.NewClient(c.APIKey, opts...)
}
