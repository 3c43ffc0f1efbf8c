package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/peterh/liner"

	"github.com/vango-go/vai-wellness/pkg/config"
	"github.com/vango-go/vai-wellness/pkg/core"
	"github.com/vango-go/vai-wellness/pkg/core/attachment"
	"github.com/vango-go/vai-wellness/pkg/core/chat"
	"github.com/vango-go/vai-wellness/pkg/core/live"
	"github.com/vango-go/vai-wellness/pkg/core/stream"
	"github.com/vango-go/vai-wellness/pkg/device"
	"github.com/vango-go/vai-wellness/pkg/render"
	"github.com/vango-go/vai-wellness/pkg/store"
	"github.com/vango-go/vai-wellness/pkg/surface/terminal"
)

const appTitle = "Friendly MBBS AI"

// app is one interactive client: a chat session and a live voice session
// sharing a terminal surface, a composer and a store.
type app struct {
	cfg    config.Config
	out    io.Writer
	logger *slog.Logger

	surface  *terminal.Surface
	store    *store.Store
	chat     *chat.Session
	voice    *live.Session
	composer *attachment.Manager
	camera   device.Camera
	renderer func(style string) (render.Renderer, error)

	mu    sync.Mutex
	theme store.Theme

	events    sync.WaitGroup
	stopDrain chan struct{}
	closeOnce sync.Once
}

func newApp(ctx context.Context, cfg config.Config, out io.Writer, d deps, logger *slog.Logger) (*app, error) {
	var surfOpts []terminal.Option
	if d.imageDir != "" {
		surfOpts = append(surfOpts, terminal.WithImageDir(d.imageDir))
	}
	surf := terminal.New(out, surfOpts...)
	a := &app{
		cfg:       cfg,
		out:       out,
		logger:    logger,
		surface:   surf,
		store:     d.store,
		camera:    d.camera,
		renderer:  d.renderer,
		stopDrain: make(chan struct{}),
	}

	theme, err := a.initialTheme(ctx)
	if err != nil {
		return nil, err
	}
	if err := a.applyTheme(theme); err != nil {
		return nil, err
	}

	a.composer = attachment.NewManager(attachment.WithActiveListener(surf.SetInputActive))

	policy := cfg.RetryPolicy()
	policy.Logger = logger
	opts := []chat.Option{
		chat.WithStore(d.store),
		chat.WithConfig(cfg.ChatSettings()),
		chat.WithClassifier(stream.NewBoilerplateFilter(cfg.Chat.MinChars)),
		chat.WithRetryPolicy(policy),
		chat.WithAudioOutput(d.output),
		chat.WithLogger(logger),
	}
	if cfg.Chat.IntentPrefilter {
		opts = append(opts, chat.WithPrefilter(stream.NewIntentFilter()))
	}
	a.chat = chat.NewSession(d.provider, surf, opts...)

	if n, err := a.chat.Restore(ctx); err != nil {
		logger.Warn("restore history failed", "err", err)
	} else if n > 0 {
		logger.Debug("history restored", "messages", n)
	}

	a.voice = live.NewSession(d.provider, d.mic, d.output, surf, cfg.LiveSettings(), live.WithLogger(logger))
	a.events.Add(1)
	go a.drainVoiceEvents()
	return a, nil
}

// initialTheme prefers the configured theme, then the stored one, then
// the terminal background.
func (a *app) initialTheme(ctx context.Context) (store.Theme, error) {
	if t := store.Theme(a.cfg.Theme); t.Valid() {
		return t, nil
	}
	if a.store != nil {
		t, ok, err := a.store.LoadTheme(ctx)
		if err != nil {
			a.logger.Warn("load theme failed", "err", err)
		} else if ok {
			return t, nil
		}
	}
	return store.Theme(render.DetectStyle()), nil
}

func (a *app) applyTheme(t store.Theme) error {
	r, err := a.renderer(string(t))
	if err != nil {
		return err
	}
	a.surface.SetRenderer(r)
	a.mu.Lock()
	a.theme = t
	a.mu.Unlock()
	return nil
}

func (a *app) currentTheme() store.Theme {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.theme
}

func (a *app) banner() {
	fmt.Fprintf(a.out, "%s (%s). Ask a wellness question, or /help for commands.\n", appTitle, a.cfg.Chat.TextModel)
}

// run reads lines until /quit, end of input or Ctrl+C.
func (a *app) run(ctx context.Context, in lineReader) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := in.Prompt(a.surface.Prompt())
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
				fmt.Fprintln(a.out)
				return nil
			}
			return fmt.Errorf("read input: %w", err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if a.handle(ctx, line) {
			return nil
		}
	}
}

// submit sends the composer with text as its prompt.
func (a *app) submit(ctx context.Context, text string, mode chat.Mode) {
	a.composer.SetText(text)

	turnCtx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	_, err := a.chat.SubmitFrom(turnCtx, a.composer, mode)
	switch {
	case errors.Is(err, chat.ErrBusy):
		a.notice("A reply is still in progress.")
	case errors.Is(err, chat.ErrEmptyInput):
		a.notice("Nothing to send.")
	case err != nil:
		// Already rendered as an error entry.
		a.logger.Debug("turn failed", "kind", core.KindOf(err))
	}
}

func (a *app) drainVoiceEvents() {
	defer a.events.Done()
	for {
		select {
		case <-a.stopDrain:
			return
		case ev := <-a.voice.Events():
			switch e := ev.(type) {
			case *live.StateChangedEvent:
				if e.To == live.StateOpen {
					a.notice("Voice session connected. Speak now; /voice to end.")
				}
			case *live.SessionClosedEvent:
				a.notice("Voice session ended (" + e.Reason + ").")
			}
		}
	}
}

// notice prints a client status line outside the message list.
func (a *app) notice(text string) {
	fmt.Fprintf(a.out, "· %s\n", text)
}

// Close stops voice and speech and closes the store.
func (a *app) Close() error {
	var err error
	a.closeOnce.Do(func() {
		if stopErr := a.voice.Stop(); stopErr != nil {
			a.logger.Warn("voice teardown failed", "err", stopErr)
		}
		a.chat.StopSpeech()
		close(a.stopDrain)
		a.events.Wait()
		if a.store != nil {
			err = a.store.Close()
		}
	})
	return err
}
