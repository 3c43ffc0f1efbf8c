// Command vai-wellness is a terminal client for the wellness advisor:
// streaming chat, image generation, attachments, text-to-speech and live
// voice conversation.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	"github.com/vango-go/vai-wellness/internal/dotenv"
	"github.com/vango-go/vai-wellness/internal/logging"
	"github.com/vango-go/vai-wellness/pkg/config"
)

func main() {
	if err := dotenv.LoadFile(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "vai-wellness: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(os.Args[1:], config.EnvMap(os.Environ()))
	if err != nil {
		fmt.Fprintf(os.Stderr, "vai-wellness: %v\n", err)
		os.Exit(2)
	}

	if err := run(cfg, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "vai-wellness: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, out io.Writer) error {
	logOut, closeLog, err := openLogOutput(cfg.Log.File)
	if err != nil {
		return err
	}
	defer closeLog()
	logger, err := logging.New(cfg.Log.Format, cfg.Log.Level, logOut)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	d, err := buildDeps(ctx, cfg, logger)
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg, out, d, logger)
	if err != nil {
		_ = d.store.Close()
		return err
	}
	defer a.Close()

	line := newLineReader()
	defer line.Close()

	a.banner()
	return a.run(ctx, line)
}

func openLogOutput(path string) (io.Writer, func(), error) {
	if strings.TrimSpace(path) == "" {
		return os.Stderr, func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

// lineReader is the REPL input source.
type lineReader interface {
	Prompt(prompt string) (string, error)
}

// linerReader adds entered lines to a persisted liner history.
type linerReader struct {
	state       *liner.State
	historyFile string
}

func newLineReader() *linerReader {
	state := liner.NewLiner()
	state.SetCtrlCAborts(true)
	r := &linerReader{state: state}
	if dir, err := os.UserConfigDir(); err == nil {
		r.historyFile = filepath.Join(dir, "vai-wellness", "history")
		if f, err := os.Open(r.historyFile); err == nil {
			_, _ = state.ReadHistory(f)
			f.Close()
		}
	}
	return r
}

func (r *linerReader) Prompt(prompt string) (string, error) {
	line, err := r.state.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(line) != "" {
		r.state.AppendHistory(line)
	}
	return line, nil
}

func (r *linerReader) Close() {
	if r.historyFile != "" {
		if err := os.MkdirAll(filepath.Dir(r.historyFile), 0o700); err == nil {
			if f, err := os.OpenFile(r.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600); err == nil {
				_, _ = r.state.WriteHistory(f)
				f.Close()
			}
		}
	}
	_ = r.state.Close()
}
