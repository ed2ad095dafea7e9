// ticketctl resolves RepairDesk display identifiers from the command line,
// sharing the service's config and ticket cache.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"nestdesk/internal/platform/config"
	"nestdesk/internal/platform/logger"
	"nestdesk/internal/tickets/extract"
	"nestdesk/internal/tickets/models"
	"nestdesk/internal/tickets/repairdesk"
	"nestdesk/internal/tickets/resolver"
	"nestdesk/internal/tickets/store"
	"nestdesk/pkg/platform/circuit"
)

const (
	exitNotFound = 2
	usage        = `Usage: ticketctl [flags] <command> [args]

Commands:
  resolve <ticket>   print the internal id for a display identifier
  refresh            re-list every ticket and rewrite the cache
  extract <text>     print ticket numbers referenced in text

Flags:
`
)

// exitError carries a process exit code for outcomes that are not failures
// of the tool itself.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }
func (e *exitError) ExitCode() int { return e.code }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err == nil {
		return
	}
	var coded *exitError
	if errors.As(err, &coded) {
		fmt.Fprintln(os.Stderr, coded.msg)
		os.Exit(coded.ExitCode())
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var asJSON bool
	var logLevel string

	flagSet := pflag.NewFlagSet("ticketctl", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.BoolVar(&asJSON, "json", false, "print results as JSON")
	flagSet.StringVar(&logLevel, "log-level", "warn", "log level written to stderr")
	flagSet.Usage = func() {
		fmt.Fprint(stderr, usage)
		flagSet.PrintDefaults()
	}

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	rest := flagSet.Args()
	if len(rest) == 0 {
		flagSet.Usage()
		return errors.New("missing command")
	}
	out := output{w: stdout, json: asJSON}

	// extract needs neither config nor network.
	if rest[0] == "extract" {
		if len(rest) < 2 {
			return errors.New("extract requires text")
		}
		return out.extract(extract.TicketNumbers(strings.Join(rest[1:], " ")))
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	log := logger.NewWithWriter(stderr, logLevel)
	res := newResolver(cfg, log)

	switch rest[0] {
	case "resolve":
		if len(rest) != 2 {
			return errors.New("resolve requires exactly one ticket")
		}
		resolution, err := res.Resolve(ctx, rest[1])
		if err != nil {
			return err
		}
		return out.resolution(resolution)
	case "refresh":
		n, err := res.Refresh(ctx)
		if err != nil {
			return err
		}
		return out.refresh(n)
	default:
		flagSet.Usage()
		return fmt.Errorf("unknown command %q", rest[0])
	}
}

func newResolver(cfg config.Config, log *slog.Logger) *resolver.Resolver {
	client := repairdesk.New(repairdesk.Config{
		BaseURL: cfg.RepairDesk.BaseURL,
		APIKey:  cfg.RepairDesk.APIKey,
		Timeout: cfg.RepairDesk.Timeout,
		Breaker: circuit.New("repairdesk"),
		Logger:  log,
	})
	return resolver.New(resolver.Config{PageSize: cfg.Cache.PageSize}, client, store.New(cfg.Cache.Path),
		resolver.WithLogger(log),
	)
}

type output struct {
	w    io.Writer
	json bool
}

func (o output) resolution(res models.Resolution) error {
	if o.json {
		if err := o.encode(models.NewInternalIDResponse(res)); err != nil {
			return err
		}
	} else if res.Found {
		fmt.Fprintln(o.w, res.InternalID)
	}
	if !res.Found {
		return &exitError{code: exitNotFound, msg: fmt.Sprintf("%s not found", res.TicketID.Display())}
	}
	return nil
}

func (o output) refresh(n int) error {
	if o.json {
		return o.encode(&models.RefreshResponse{Records: n})
	}
	fmt.Fprintf(o.w, "cached %d tickets\n", n)
	return nil
}

func (o output) extract(ids []models.TicketID) error {
	if o.json {
		return o.encode(models.NewExtractResponse(ids))
	}
	for _, id := range ids {
		fmt.Fprintln(o.w, id.Display())
	}
	return nil
}

func (o output) encode(v any) error {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
