package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/realtime-ai/vadseg/pkg/audio"
	"github.com/realtime-ai/vadseg/pkg/capture"
	"github.com/realtime-ai/vadseg/pkg/report"
	"github.com/realtime-ai/vadseg/pkg/runner"
	"github.com/realtime-ai/vadseg/pkg/segment"
	"github.com/realtime-ai/vadseg/pkg/server"
	"github.com/realtime-ai/vadseg/pkg/watch"
)

const (
	formatTable    = "table"
	formatJSON     = "json"
	formatSnapshot = "snapshot"
)

func (a *app) runner() (*runner.Runner, error) {
	return runner.New(a.factory, a.cfg.Segment, runner.Options{
		Workers:    a.cfg.Runner.Workers,
		SampleRate: a.cfg.Prober.SampleRate,
		OutputDir:  a.cfg.Runner.OutputDir,
		Metrics:    a.metrics,
		Logger:     a.log.WithField("component", "runner"),
	})
}

type segmentOptions struct {
	format *string
	strip  *string
}

var segmentCommand = command{
	name:  "segment",
	usage: "[segment] [flags] file...",
	flags: func(fs *flag.FlagSet) any {
		return &segmentOptions{
			format: fs.String("format", formatTable, "output: table, json or snapshot"),
			strip:  fs.String("strip", "", "also write the speech of a single input to this file"),
		}
	},
	run: func(ctx context.Context, a *app, o any, args []string) error {
		opts := o.(*segmentOptions)
		if len(args) == 0 {
			return errors.New("no input files")
		}
		if *opts.strip != "" && len(args) != 1 {
			return errors.New("-strip needs exactly one input")
		}
		switch *opts.format {
		case formatTable, formatJSON, formatSnapshot:
		default:
			return fmt.Errorf("unknown format %q", *opts.format)
		}

		r, err := a.runner()
		if err != nil {
			return err
		}
		defer r.Close()

		var entries []report.Entry
		if *opts.strip != "" {
			res, err := r.Strip(ctx, args[0], *opts.strip)
			entries = []report.Entry{{File: args[0], Result: res, Err: err}}
		} else if entries, err = r.Run(ctx, args, nil); err != nil {
			return err
		}

		failed := false
		for _, e := range entries {
			failed = failed || e.Err != nil
		}

		switch *opts.format {
		case formatSnapshot:
			if err := report.WriteSnapshot(os.Stdout, a.cfg.Model(), entries); err != nil {
				return err
			}
		case formatJSON:
			for _, e := range entries {
				if e.Err != nil {
					fmt.Fprintf(os.Stderr, "%s: %v\n", e.File, e.Err)
					continue
				}
				if err := report.WriteJSON(os.Stdout, e.Result); err != nil {
					return err
				}
			}
		default:
			for _, e := range entries {
				if err := report.WriteTable(os.Stdout, e); err != nil {
					return err
				}
			}
		}
		if failed {
			return errFailed
		}
		return nil
	},
}

var stripCommand = command{
	name:  "strip",
	usage: "strip [flags] in out",
	flags: func(*flag.FlagSet) any { return nil },
	run: func(ctx context.Context, a *app, _ any, args []string) error {
		if len(args) != 2 {
			return errors.New("strip needs an input and an output file")
		}
		r, err := a.runner()
		if err != nil {
			return err
		}
		defer r.Close()

		res, err := r.Strip(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		color.Green("wrote %s: %.2fs of speech from %.2fs",
			args[1], float64(res.SpeechSamples())/float64(res.SampleRate), res.Duration())
		return nil
	},
}

var probsCommand = command{
	name:  "probs",
	usage: "probs [flags] file",
	flags: func(fs *flag.FlagSet) any {
		return fs.Bool("json", false, "print JSON instead of TSV")
	},
	run: func(ctx context.Context, a *app, o any, args []string) error {
		if len(args) != 1 {
			return errors.New("probs needs one input file")
		}
		a.cfg.Runner.Workers = 1
		r, err := a.runner()
		if err != nil {
			return err
		}
		defer r.Close()

		probs, err := r.Probabilities(ctx, args[0])
		if err != nil {
			return err
		}
		if *o.(*bool) {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(probs)
		}
		return report.WriteProbabilities(os.Stdout, probs)
	},
}

type benchOptions struct {
	runs   *int
	warmup *int
	json   *bool
}

var benchCommand = command{
	name:  "bench",
	usage: "bench [flags] file...",
	flags: func(fs *flag.FlagSet) any {
		return &benchOptions{
			runs:   fs.Int("runs", 5, "timed runs per file"),
			warmup: fs.Int("warmup", 1, "untimed runs per file"),
			json:   fs.Bool("json", false, "print JSON"),
		}
	},
	run: func(ctx context.Context, a *app, o any, args []string) error {
		opts := o.(*benchOptions)
		if len(args) == 0 {
			return errors.New("no input files")
		}
		a.cfg.Runner.Workers = 1
		r, err := a.runner()
		if err != nil {
			return err
		}
		defer r.Close()

		var results []*runner.BenchResult
		for _, path := range args {
			b, err := r.Bench(ctx, path, *opts.runs, *opts.warmup)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			results = append(results, b)
			if !*opts.json {
				color.Cyan("%s", path)
				fmt.Printf("  audio %.2fs  mean %s  min %s  max %s  rtf %.4f  segments %d\n",
					b.AudioSeconds, b.Mean.Round(time.Microsecond), b.Min.Round(time.Microsecond),
					b.Max.Round(time.Microsecond), b.RTF, b.Segments)
			}
		}
		if *opts.json {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(results)
		}
		return nil
	},
}

var serveCommand = command{
	name:  "serve",
	usage: "serve [flags]",
	flags: func(fs *flag.FlagSet) any {
		return fs.String("auth-token", os.Getenv("VADSEG_AUTH_TOKEN"), "bearer token required by the server")
	},
	run: func(ctx context.Context, a *app, o any, _ []string) error {
		sc := server.DefaultConfig()
		sc.Addr = a.cfg.Server.Addr
		sc.MaxStreams = a.cfg.Server.MaxStreams
		sc.ReadLimit = a.cfg.Server.ReadLimit
		sc.AuthToken = *o.(*string)

		srv, err := server.New(sc, a.factory, a.cfg.Segment,
			server.WithMetrics(a.metrics),
			server.WithLogger(a.log.WithField("component", "server")))
		if err != nil {
			return err
		}
		if err := srv.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Stop(shutdownCtx)
	},
}

type watchOptions struct {
	extensions *string
	debounce   *time.Duration
}

var watchCommand = command{
	name:  "watch",
	usage: "watch [flags] dir",
	flags: func(fs *flag.FlagSet) any {
		return &watchOptions{
			extensions: fs.String("ext", strings.Join(watch.DefaultExtensions, ","), "comma-separated extensions to pick up"),
			debounce:   fs.Duration("debounce", 2*time.Second, "quiet period before a file is processed"),
		}
	},
	run: func(ctx context.Context, a *app, o any, args []string) error {
		opts := o.(*watchOptions)
		if len(args) != 1 {
			return errors.New("watch needs one directory")
		}
		r, err := a.runner()
		if err != nil {
			return err
		}
		defer r.Close()

		w := watch.New(args[0], strings.Split(*opts.extensions, ","), *opts.debounce,
			watch.SidecarHandler(r, a.cfg.Runner.OutputDir))
		return w.Run(ctx)
	},
}

var listenCommand = command{
	name:  "listen",
	usage: "listen [flags]",
	flags: func(*flag.FlagSet) any { return nil },
	run: func(ctx context.Context, a *app, _ any, _ []string) error {
		rate := a.cfg.Prober.SampleRate
		if rate == 0 {
			rate = audio.DefaultSampleRate
		}
		p, err := a.factory()
		if err != nil {
			return err
		}
		seg, err := segment.New(p, a.cfg.Segment,
			segment.WithMetrics(a.metrics),
			segment.WithLogger(a.log.WithField("component", "segmenter")))
		if err != nil {
			p.Destroy()
			return err
		}
		defer seg.Close()

		dev, err := capture.OpenDevice(rate)
		if err != nil {
			return err
		}
		color.Cyan("listening at %d Hz, press Ctrl+C to stop", rate)

		res, err := capture.Listen(ctx, seg, dev, rate, func(ev segment.Event) {
			switch {
			case ev.Kind == segment.EventStart:
				color.Green("%8.2fs  speech start", ev.Seconds)
			case ev.Kept:
				color.Green("%8.2fs  speech end", ev.Seconds)
			default:
				color.Yellow("%8.2fs  speech end (too short)", ev.Seconds)
			}
		})
		if err != nil {
			return err
		}
		return report.WriteTable(os.Stdout, report.Entry{File: "microphone", Result: res})
	},
}
