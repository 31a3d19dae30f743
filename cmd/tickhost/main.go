package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/tickhost/bootstrap"
	"github.com/wippyai/tickhost/config"
	"github.com/wippyai/tickhost/errors"
	"github.com/wippyai/tickhost/loader"
)

type options struct {
	configFile  string
	wasmFile    string
	url         string
	wait        bool
	period      time.Duration
	overlap     string
	onFailure   string
	statusAddr  string
	eventsURL   string
	logLevel    string
	logFormat   string
	list        bool
	interactive bool
}

func parseFlags(fs *flag.FlagSet, args []string) (*options, map[string]bool, error) {
	o := &options{}
	fs.StringVar(&o.configFile, "config", "", "Config file (.toml, .yaml)")
	fs.StringVar(&o.wasmFile, "wasm", "", "Path to application wasm module")
	fs.StringVar(&o.url, "url", "", "URL of application wasm module")
	fs.BoolVar(&o.wait, "wait", false, "Wait for the wasm file to appear")
	fs.DurationVar(&o.period, "period", 0, "Tick period (default 33ms)")
	fs.StringVar(&o.overlap, "overlap", "", "Overlap policy: coalesce, skip")
	fs.StringVar(&o.onFailure, "on-failure", "", "Advance failure policy: halt, continue")
	fs.StringVar(&o.statusAddr, "status", "", "Status HTTP listen address")
	fs.StringVar(&o.eventsURL, "events", "", "CloudEvents HTTP sink URL")
	fs.StringVar(&o.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&o.logFormat, "log-format", "", "Log format (console, json)")
	fs.BoolVar(&o.list, "list", false, "List exported functions and exit")
	fs.BoolVar(&o.interactive, "i", false, "Interactive mode with TUI")

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return o, set, nil
}

// buildConfig layers defaults, the config file, environment and explicit flags.
func buildConfig(o *options, set map[string]bool) (*config.Config, error) {
	cfg := config.Default()
	if o.configFile != "" {
		if err := cfg.LoadFile(o.configFile); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(config.EnvPrefix); err != nil {
		return nil, err
	}

	if set["wasm"] {
		cfg.Source = config.Source{Path: o.wasmFile, Wait: cfg.Source.Wait}
	}
	if set["url"] {
		cfg.Source = config.Source{URL: o.url}
	}
	if set["wait"] {
		cfg.Source.Wait = o.wait
	}
	if set["period"] {
		cfg.Period = o.period
	}
	if set["overlap"] {
		cfg.Overlap = o.overlap
	}
	if set["on-failure"] {
		cfg.OnFailure = o.onFailure
	}
	if set["status"] {
		cfg.StatusAddr = o.statusAddr
	}
	if set["events"] {
		cfg.EventsURL = o.eventsURL
	}
	if set["log-level"] {
		cfg.LogLevel = o.logLevel
	}
	if set["log-format"] {
		cfg.LogFormat = o.logFormat
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func buildLogger(level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	zcfg := zap.NewDevelopmentConfig()
	if format == "json" {
		zcfg = zap.NewProductionConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	zcfg.DisableStacktrace = true
	return zcfg.Build()
}

func main() {
	o, set, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	cfg, err := buildConfig(o, set)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fmt.Fprintln(os.Stderr, "Usage: tickhost -wasm <app.wasm> [-period 33ms] [-status :8080]")
		fmt.Fprintln(os.Stderr, "       tickhost -config tickhost.toml")
		fmt.Fprintln(os.Stderr, "       tickhost -wasm <app.wasm> -list")
		fmt.Fprintln(os.Stderr, "       tickhost -wasm <app.wasm> -i  (interactive mode)")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if o.list {
		err = list(ctx, cfg)
	} else if o.interactive {
		err = runInteractive(ctx, cfg)
	} else {
		err = run(ctx, cfg)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", describe(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger, err := buildLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync()

	return bootstrap.Run(ctx, cfg, bootstrap.WithLogger(logger))
}

// list loads the module and prints its exports without creating the application.
func list(ctx context.Context, cfg *config.Config) error {
	src := bootstrap.SourceFor(cfg)
	ns, err := loader.New(src,
		loader.WithExports(cfg.LoaderExports()),
		loader.WithWASI(cfg.WASI)).Load(ctx)
	if err != nil {
		return err
	}
	defer ns.Close(ctx)

	fmt.Printf("Module: %s\n", ns.Source())
	contract := "synchronous"
	if ns.Polling() {
		contract = "pending (" + cfg.Exports.Poll + ")"
	}
	fmt.Printf("Startup: %s\n", contract)
	fmt.Printf("\nExported functions:\n")
	for _, name := range ns.ExportNames() {
		fmt.Printf("  %s\n", name)
	}
	return nil
}

// describe prefixes err with the lifecycle stage it came from.
func describe(err error) string {
	switch {
	case errors.IsModuleLoad(err):
		return "module load failed: " + err.Error()
	case errors.IsStartup(err):
		return "application startup failed: " + err.Error()
	case errors.IsAdvance(err):
		return "application halted: " + err.Error()
	default:
		return strings.TrimSpace(err.Error())
	}
}
