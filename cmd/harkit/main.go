package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/spf13/afero"

	"github.com/unkn0wn-root/harkit/internal/config"
	"github.com/unkn0wn-root/harkit/internal/telemetry"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const usageText = `usage: harkit <command> [flags] [args]

Commands:
  capture   send a request and store it in history
  export    convert records to a HAR 1.2 file
  cookies   merge and filter cookies for a URL
  headers   validate and normalise a header block
  version   print build information

Run "harkit <command> -h" for command flags.
`

var errUsage = errors.New("missing or unknown command")

func main() {
	log.SetFlags(0)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	switch {
	case err == nil, errors.Is(err, flag.ErrHelp):
	case errors.Is(err, errUsage):
		fmt.Fprintf(os.Stderr, "harkit: %v\n\n%s", err, usageText)
		os.Exit(2)
	default:
		log.Fatalf("harkit: %v", err)
	}
}

// app holds what every command shares: settings, telemetry and the IO the
// commands write to.
type app struct {
	settings config.Settings
	handle   config.SettingsHandle
	tel      telemetry.Instrumenter

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	fs     afero.Fs
	clip   func(string) error
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, rest := args[0], args[1:]

	switch cmd {
	case "version", "-version", "--version":
		fmt.Fprintf(stdout, "harkit %s\n", version)
		fmt.Fprintf(stdout, "  commit: %s\n", commit)
		fmt.Fprintf(stdout, "  built:  %s\n", date)
		return nil
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usageText)
		return nil
	}

	a := newApp(stdin, stdout, stderr)
	defer a.close()

	switch cmd {
	case "capture":
		return a.runCapture(ctx, rest)
	case "export":
		return a.runExport(ctx, rest)
	case "cookies":
		return a.runCookies(rest)
	case "headers":
		return a.runHeaders(rest)
	default:
		return fmt.Errorf("%w: %q", errUsage, cmd)
	}
}

func newApp(stdin io.Reader, stdout, stderr io.Writer) *app {
	settings, handle, err := config.LoadSettings()
	if err != nil {
		log.Printf("settings load error: %v", err)
		settings = config.DefaultSettings()
	}

	telemetryCfg := telemetry.ConfigFromEnv(os.Getenv)
	telemetryCfg.Version = version
	tel, err := telemetry.New(telemetryCfg)
	if err != nil {
		if telemetryCfg.Enabled() {
			log.Printf("telemetry init error: %v", err)
		}
		tel = telemetry.Noop()
	}

	return &app{
		settings: settings,
		handle:   handle,
		tel:      tel,
		stdin:    stdin,
		stdout:   stdout,
		stderr:   stderr,
		fs:       afero.NewOsFs(),
		clip:     clipboard.WriteAll,
	}
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.tel.Shutdown(ctx); err != nil {
		log.Printf("telemetry shutdown: %v", err)
	}
}

func (a *app) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	return fs
}

// listFlag collects a repeatable string flag.
type listFlag []string

func (l *listFlag) String() string {
	return strings.Join(*l, ", ")
}

func (l *listFlag) Set(v string) error {
	*l = append(*l, v)
	return nil
}
