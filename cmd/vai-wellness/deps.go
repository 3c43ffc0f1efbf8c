package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/vango-go/vai-wellness/pkg/config"
	"github.com/vango-go/vai-wellness/pkg/core"
	"github.com/vango-go/vai-wellness/pkg/core/audio"
	"github.com/vango-go/vai-wellness/pkg/core/providers/gemini"
	genaiprovider "github.com/vango-go/vai-wellness/pkg/core/providers/genai"
	"github.com/vango-go/vai-wellness/pkg/device"
	"github.com/vango-go/vai-wellness/pkg/device/ffmpeg"
	"github.com/vango-go/vai-wellness/pkg/device/portaudio"
	"github.com/vango-go/vai-wellness/pkg/render"
	"github.com/vango-go/vai-wellness/pkg/store"
)

// deps are the external collaborators of the client.
type deps struct {
	provider core.Provider
	mic      audio.Microphone
	output   audio.OutputFactory
	camera   device.Camera
	store    *store.Store
	// renderer builds the markdown renderer for a theme.
	renderer func(style string) (render.Renderer, error)
	// imageDir receives generated images; empty uses the temp directory.
	imageDir string
}

func buildDeps(ctx context.Context, cfg config.Config, logger *slog.Logger) (deps, error) {
	provider, err := buildProvider(ctx, cfg, logger)
	if err != nil {
		return deps{}, err
	}
	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return deps{}, err
	}
	d := deps{
		provider: provider,
		camera:   ffmpeg.NewCamera(ffmpeg.WithInputDevice(cfg.Audio.Camera), ffmpeg.WithLogger(logger)),
		store:    st,
		renderer: func(style string) (render.Renderer, error) {
			return render.NewTerminal(style, render.DefaultWidth)
		},
	}
	switch cfg.Audio.Backend {
	case config.AudioFFmpeg:
		d.mic = ffmpeg.NewMicrophone(ffmpeg.WithLogger(logger))
		d.output = ffmpeg.OutputFactory(ffmpeg.WithLogger(logger))
	default:
		d.mic = portaudio.NewMicrophone(logger)
		d.output = portaudio.OutputFactory()
	}
	return d, nil
}

// buildProvider registers the configured provider with an engine, so
// models may also be addressed as "provider/model".
func buildProvider(ctx context.Context, cfg config.Config, logger *slog.Logger) (core.Provider, error) {
	engine := core.NewEngine(cfg.Provider)
	switch cfg.Provider {
	case config.ProviderGemini:
		engine.RegisterProvider(gemini.New(cfg.APIKey, gemini.WithLogger(logger)))
	case config.ProviderGenAI:
		p, err := genaiprovider.New(ctx, genaiprovider.Config{
			APIKey:   cfg.APIKey,
			Backend:  genaiprovider.Backend(cfg.GenAI.Backend),
			Project:  cfg.GenAI.Project,
			Location: cfg.GenAI.Location,
		}, genaiprovider.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		engine.RegisterProvider(p)
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
	return engine, nil
}

func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (*store.Store, error) {
	dsn, err := cfg.StoreDSN()
	if err != nil {
		return nil, err
	}
	if cfg.Store.Driver == store.DriverFile || cfg.Store.Driver == store.DriverSQLite {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o700); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}
	backend, err := store.OpenKV(ctx, cfg.Store.Driver, dsn)
	if err != nil {
		return nil, err
	}
	logger.Debug("store opened", "driver", cfg.Store.Driver)
	return store.New(backend, store.WithLogger(logger)), nil
}
