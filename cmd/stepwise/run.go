package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/gdamore/tcell/v2"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/dshills/stepwise/internal/app"
	"github.com/dshills/stepwise/internal/engine/history"
	"github.com/dshills/stepwise/internal/journal"
	"github.com/dshills/stepwise/internal/panel"
)

type runOptions struct {
	doc     string
	out     string
	undo    int
	metrics bool
	panel   bool
	watch   bool
}

func newRunCmd() *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run script.lua [script.lua...]",
		Short: "Run scripts concurrently against one document",
		Long: `Runs each script on its own goroutine against a shared document, then
writes the document's undo history as a JSON journal.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScripts(cmd, opts, args)
		},
	}

	cmd.Flags().StringVarP(&opts.doc, "doc", "d", "scene", "Document name")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "-", "Journal output path (- for stdout, empty to skip)")
	cmd.Flags().IntVar(&opts.undo, "undo", 0, "Undo this many steps after the scripts finish")
	cmd.Flags().BoolVar(&opts.metrics, "metrics", false, "Print metrics in Prometheus text format to stderr")
	cmd.Flags().BoolVar(&opts.panel, "panel", false, "Show the undo/redo panel on the terminal")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "Apply --config changes (undo limit, log level) while scripts run")
	return cmd
}

func appOptions(cmd *cobra.Command) app.Options {
	configPath, _ := cmd.Flags().GetString("config")
	logLevel, _ := cmd.Flags().GetString("log-level")
	return app.Options{ConfigPath: configPath, LogLevel: logLevel}
}

func runScripts(cmd *cobra.Command, opts runOptions, paths []string) error {
	appOpts := appOptions(cmd)
	appOpts.EnableMetrics = opts.metrics

	var screen tcell.Screen
	if opts.panel {
		var err error
		screen, err = tcell.NewScreen()
		if err != nil {
			return fmt.Errorf("create screen: %w", err)
		}
		if err := screen.Init(); err != nil {
			return fmt.Errorf("init screen: %w", err)
		}
		defer screen.Fini()
		w, _ := screen.Size()
		pnl := panel.New(screen, panel.Rect{W: w, H: 3})
		pnl.Draw()
		screen.Show()
		appOpts.Notifiers = []history.Notifier{pnl}
	}

	application, err := app.New(appOpts)
	if err != nil {
		return err
	}
	defer application.Shutdown()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	doc, err := application.Open(opts.doc)
	if err != nil {
		return err
	}
	if opts.watch {
		w, err := application.Watch()
		if err != nil {
			return err
		}
		defer w.Close()
	}
	if err := application.RunScripts(ctx, doc, paths...); err != nil {
		return err
	}

	eng := doc.Engine()
	for range opts.undo {
		if err := application.Owner().RunOnOwnerAndWait(ctx, eng.Undo); err != nil {
			if errors.Is(err, history.ErrNothingToUndo) {
				break
			}
			return err
		}
	}

	if screen != nil {
		waitForKey(ctx, screen)
		screen.Fini()
	}

	if err := writeJournal(ctx, cmd.OutOrStdout(), application, opts); err != nil {
		return err
	}
	if opts.metrics {
		return writeMetrics(cmd.ErrOrStderr(), application)
	}
	return nil
}

// waitForKey keeps the panel on screen until a key is pressed or ctx ends.
func waitForKey(ctx context.Context, screen tcell.Screen) {
	keys := make(chan struct{})
	go func() {
		defer close(keys)
		for {
			switch screen.PollEvent().(type) {
			case nil, *tcell.EventKey:
				return
			case *tcell.EventResize:
				screen.Sync()
			}
		}
	}()
	select {
	case <-keys:
	case <-ctx.Done():
	}
}

func writeJournal(ctx context.Context, stdout io.Writer, application *app.Application, opts runOptions) error {
	if opts.out == "" {
		return nil
	}
	doc, err := application.Open(opts.doc)
	if err != nil {
		return err
	}
	if opts.out == "-" {
		return journal.Write(ctx, stdout, doc.Engine(), opts.doc)
	}

	f, err := os.Create(opts.out)
	if err != nil {
		return fmt.Errorf("create journal: %w", err)
	}
	if err := journal.Write(ctx, f, doc.Engine(), opts.doc); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeMetrics(w io.Writer, application *app.Application) error {
	families, err := application.Registry().Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
