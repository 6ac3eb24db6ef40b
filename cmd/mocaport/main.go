package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/zarlcorp/core/pkg/zapp"
	"github.com/zarlcorp/mocaport/internal/cli"
	"github.com/zarlcorp/mocaport/internal/logger"
	"github.com/zarlcorp/mocaport/internal/tui"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	app := zapp.New(zapp.WithName("mocaport"))

	ctx, cancel := zapp.SignalContext(context.Background())
	defer cancel()

	if len(os.Args) > 1 {
		err := cli.NewRootCommand(cli.Env{Version: version}).ExecuteContext(ctx)
		_ = app.Close()
		if err != nil {
			fmt.Fprintf(os.Stderr, "mocaport: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := runTUI(ctx); err != nil {
		slog.Error("tui", "err", err)
		_ = app.Close()
		os.Exit(1)
	}

	if err := app.Close(); err != nil {
		slog.Error("shutdown", "err", err)
		os.Exit(1)
	}
}

func runTUI(ctx context.Context) error {
	dataDir := cli.DataDir()
	cfg, err := cli.LoadConfig(dataDir, "")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	// the terminal belongs to the TUI, so logs go to a file
	log, f, err := logger.InitFile(filepath.Join(dataDir, cfg.Log.File), cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer f.Close()

	m := tui.New(version, dataDir, cfg, cli.IsFirstRun(dataDir),
		tui.WithLogger(log),
		tui.WithContext(ctx),
	)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	finalModel, err := p.Run()
	if fm, ok := finalModel.(tui.Model); ok {
		fm.Close()
	}
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}
