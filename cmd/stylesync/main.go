// Package main is the entry point for the stylesync command.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang/glog"
	"golang.org/x/term"

	"github.com/dshills/stylesync/internal/config"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	opts := parseFlags()
	defer glog.Flush()

	overrides := opts.overrides()
	cfg, err := config.Load(opts.configPath, overrides...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	env := &environment{
		config:     cfg,
		configPath: opts.configPath,
		overrides:  overrides,
		out:        os.Stdout,
		color:      !opts.noColor && term.IsTerminal(int(os.Stdout.Fd())),
	}
	if err := execute(ctx, env, flag.Args()); err != nil {
		if err == errUsage {
			flag.Usage()
			return 2
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

type options struct {
	configPath string
	baseURL    string
	token      string
	noColor    bool
}

func (o options) overrides() []config.Option {
	var opts []config.Option
	if o.baseURL != "" {
		opts = append(opts, config.WithBaseURL(o.baseURL))
	}
	if o.token != "" {
		opts = append(opts, config.WithToken(o.token))
	}
	return opts
}

func parseFlags() options {
	var opts options
	var showVersion bool

	flag.StringVar(&opts.configPath, "config", "", "Path to configuration file")
	flag.StringVar(&opts.configPath, "c", "", "Path to configuration file (shorthand)")
	flag.StringVar(&opts.baseURL, "base-url", "", "REST base URL (overrides config)")
	flag.StringVar(&opts.token, "token", "", "Auth token (overrides config)")
	flag.BoolVar(&opts.noColor, "no-color", false, "Disable colored output")
	flag.BoolVar(&showVersion, "version", false, "Show version information")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "stylesync - admin styling settings client\n\n")
		fmt.Fprintf(os.Stderr, "Usage: stylesync [options] <command> [args]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  get <path>               Print one setting\n")
		fmt.Fprintf(os.Stderr, "  set <path> <json-value>  Update one setting and save\n")
		fmt.Fprintf(os.Stderr, "  export                   Print all settings\n")
		fmt.Fprintf(os.Stderr, "  reset                    Reset to defaults and save\n")
		fmt.Fprintf(os.Stderr, "  apply-template <id>      Apply a template\n")
		fmt.Fprintf(os.Stderr, "  apply-palette <id>       Apply a color palette\n")
		fmt.Fprintf(os.Stderr, "  watch                    Follow collaborators and remote changes\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	if showVersion {
		fmt.Printf("stylesync %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", date)
		os.Exit(0)
	}

	return opts
}
