// Command vadseg finds speech segments in audio.
//
//	vadseg [segment] [flags] file...   print segments (default command)
//	vadseg strip [flags] in out         write in with silence removed
//	vadseg probs [flags] file           print per-frame probabilities
//	vadseg bench [flags] file...        time segmentation
//	vadseg serve [flags]                run the HTTP/WebSocket server
//	vadseg watch [flags] dir            segment files as they appear
//	vadseg listen [flags]               segment the microphone live
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/realtime-ai/vadseg/pkg/config"
	"github.com/realtime-ai/vadseg/pkg/logger"
	"github.com/realtime-ai/vadseg/pkg/metrics"
	"github.com/realtime-ai/vadseg/pkg/trace"
	"github.com/realtime-ai/vadseg/pkg/vad"
)

const version = "0.1.0"

// errFailed reports that some inputs failed after their errors were shown.
var errFailed = errors.New("some inputs failed")

type command struct {
	name  string
	usage string
	flags func(fs *flag.FlagSet) any
	run   func(ctx context.Context, app *app, opts any, args []string) error
}

var commands = []command{
	segmentCommand,
	stripCommand,
	probsCommand,
	benchCommand,
	serveCommand,
	watchCommand,
	listenCommand,
}

// app is what every command gets after configuration and setup.
type app struct {
	cfg     *config.Config
	factory vad.Factory
	metrics *metrics.Metrics
	log     *logrus.Entry
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		if !errors.Is(err, errFailed) {
			fmt.Fprintln(os.Stderr, "vadseg:", err)
		}
		os.Exit(1)
	}
}

func run(args []string) error {
	cmd := commands[0]
	if len(args) > 0 {
		for _, c := range commands {
			if c.name == args[0] {
				cmd, args = c, args[1:]
				break
			}
		}
	}

	fs := flag.NewFlagSet("vadseg "+cmd.name, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: vadseg %s\n\n", cmd.usage)
		fs.PrintDefaults()
	}
	configPath := fs.String("config", "", "YAML config file")
	envFile := fs.String("env", ".env", "dotenv file loaded before the config")
	config.RegisterFlags(fs)
	opts := cmd.flags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := config.LoadDotEnv(*envFile); err != nil {
		return err
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if err := config.ApplyFlags(cfg, fs); err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	if _, err := logger.Init(cfg.Log.Level, cfg.Log.File); err != nil {
		return err
	}
	log := logger.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := trace.Initialize(ctx, cfg.TraceConfig(version)); err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := trace.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("trace shutdown")
		}
	}()

	if cfg.Model() == vad.EngineSilero {
		if err := vad.InitRuntime(cfg.Prober.ONNXLibrary); err != nil {
			return fmt.Errorf("init onnxruntime: %w", err)
		}
		defer vad.DestroyRuntime()
	}
	factory, err := vad.NewFactory(cfg.EngineConfig())
	if err != nil {
		return err
	}

	a := &app{cfg: cfg, factory: factory, log: log}
	if cmd.name == serveCommand.name {
		shutdown, err := metrics.InitProvider(ctx, metrics.ProviderConfig{
			ServiceVersion: version,
			Environment:    cfg.TraceConfig(version).Environment,
		})
		if err != nil {
			return fmt.Errorf("init metrics: %w", err)
		}
		defer shutdown(context.Background())
	}
	a.metrics = metrics.Default()

	log.WithFields(logrus.Fields{"command": cmd.name, "engine": cfg.Model()}).Debug("starting")
	return cmd.run(ctx, a, opts, fs.Args())
}
