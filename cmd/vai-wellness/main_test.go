package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vango-go/vai-wellness/pkg/config"
	"github.com/vango-go/vai-wellness/pkg/core"
	"github.com/vango-go/vai-wellness/pkg/core/audio/audiotest"
	"github.com/vango-go/vai-wellness/pkg/core/coretest"
	"github.com/vango-go/vai-wellness/pkg/core/live"
	"github.com/vango-go/vai-wellness/pkg/core/types"
	"github.com/vango-go/vai-wellness/pkg/render"
	"github.com/vango-go/vai-wellness/pkg/store"
	"github.com/vango-go/vai-wellness/pkg/store/kv"
)

const reply = "Drink water regularly and rest well throughout the day."

// syncBuffer is shared by the REPL and the voice event goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type fakeCamera struct {
	frame []byte
	err   error
}

func (c *fakeCamera) Capture(context.Context) ([]byte, error) { return c.frame, c.err }

// scriptedReader returns lines in order, then io.EOF.
type scriptedReader struct {
	lines []string
	read  int
}

func (r *scriptedReader) Prompt(string) (string, error) {
	if r.read >= len(r.lines) {
		return "", io.EOF
	}
	line := r.lines[r.read]
	r.read++
	return line, nil
}

type testApp struct {
	*app
	out      *syncBuffer
	provider *coretest.Provider
	camera   *fakeCamera
	store    *store.Store
	styles   []string
	conns    []*coretest.LiveConn
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.APIKey = "test"
	cfg.Theme = "dark"
	cfg.Store.Driver = store.DriverMemory
	cfg.Retry.BaseDelay = time.Millisecond
	return cfg
}

func newTestApp(t *testing.T, st *store.Store, opts ...func(*deps)) *testApp {
	t.Helper()
	if st == nil {
		st = store.New(kv.NewMemory())
	}
	ta := &testApp{
		out:    &syncBuffer{},
		camera: &fakeCamera{},
		store:  st,
	}
	ta.provider = &coretest.Provider{
		StreamFunc: func(context.Context, *types.TextRequest) (core.ChunkStream, error) {
			return coretest.TextStream("Drink water ", "regularly and rest well throughout the day."), nil
		},
		LiveFunc: func(context.Context, *types.LiveConfig) (core.LiveConn, error) {
			conn := coretest.NewLiveConn()
			ta.conns = append(ta.conns, conn)
			return conn, nil
		},
	}
	d := deps{
		provider: ta.provider,
		mic:      &audiotest.Microphone{},
		output:   audiotest.NewContext(types.DefaultOutputSampleRate).Factory(),
		camera:   ta.camera,
		store:    st,
		renderer: func(style string) (render.Renderer, error) {
			ta.styles = append(ta.styles, style)
			return render.Plain{}, nil
		},
		imageDir: t.TempDir(),
	}
	for _, opt := range opts {
		opt(&d)
	}
	a, err := newApp(context.Background(), testConfig(), ta.out, d, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	ta.app = a
	return ta
}

func TestApp_TextTurn(t *testing.T) {
	ta := newTestApp(t, nil)

	assert.False(t, ta.handle(context.Background(), "how much water should I drink?"))

	history := ta.chat.History()
	require.Len(t, history, 2)
	assert.Equal(t, reply, history[1].Text())
	assert.Contains(t, ta.out.String(), "throughout the day.")

	reqs := ta.provider.TextRequests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "how much water should I drink?", reqs[0].Content.Text())
	assert.Zero(t, reqs[0].ThinkingBudget)

	saved, err := ta.store.LoadHistory(context.Background())
	require.NoError(t, err)
	assert.Len(t, saved, 2)
}

func TestApp_ThinkToggle(t *testing.T) {
	ta := newTestApp(t, nil)

	ta.handle(context.Background(), "/think")
	assert.True(t, ta.chat.Thinking())
	ta.handle(context.Background(), "tips for sleep?")
	reqs := ta.provider.TextRequests()
	require.Len(t, reqs, 1)
	assert.Equal(t, types.DefaultThinkingBudget, reqs[0].ThinkingBudget)

	ta.handle(context.Background(), "/think off")
	assert.False(t, ta.chat.Thinking())
	ta.handle(context.Background(), "/think maybe")
	assert.Contains(t, ta.out.String(), "Usage: /think")
}

func TestApp_ImageCommand(t *testing.T) {
	ta := newTestApp(t, nil)
	ta.provider.ImageFunc = func(context.Context, *types.ImageRequest) (*types.ImageResponse, error) {
		return &types.ImageResponse{Parts: []types.Part{types.InlinePart("image/png", []byte{0x89, 'P', 'N', 'G'})}}, nil
	}

	ta.handle(context.Background(), "/image a bowl of oats")

	require.Len(t, ta.provider.ImageRequests(), 1)
	assert.Empty(t, ta.provider.TextRequests())
	history := ta.chat.History()
	require.Len(t, history, 2)
	assert.Len(t, history[1].Images(), 1)
}

func TestApp_AttachFile(t *testing.T) {
	ta := newTestApp(t, nil)
	path := filepath.Join(t.TempDir(), "label.png")
	require.NoError(t, os.WriteFile(path, []byte("\x89PNG\r\n\x1a\n0000"), 0o600))

	ta.handle(context.Background(), "/attach "+path)
	assert.Contains(t, ta.out.String(), "Attached label.png")
	assert.True(t, ta.composer.Active())

	ta.handle(context.Background(), "is this healthy?")
	reqs := ta.provider.TextRequests()
	require.Len(t, reqs, 1)
	imgs := reqs[0].Content.Images()
	require.Len(t, imgs, 1)
	assert.Equal(t, "image/png", imgs[0].MIMEType)
	assert.False(t, ta.composer.Active())
}

func TestApp_AttachMissingFile(t *testing.T) {
	ta := newTestApp(t, nil)
	ta.handle(context.Background(), "/attach "+filepath.Join(t.TempDir(), "missing.jpg"))
	assert.Contains(t, ta.out.String(), "Could not read the attached file.")
	assert.False(t, ta.composer.Active())

	ta.handle(context.Background(), "/attach")
	assert.Contains(t, ta.out.String(), "Usage: /attach")
}

func TestApp_Camera(t *testing.T) {
	ta := newTestApp(t, nil)
	ta.camera.frame = []byte{0xFF, 0xD8, 0xFF, 0xE0}

	ta.handle(context.Background(), "/camera")
	p, ok := ta.composer.Pending()
	require.True(t, ok)
	assert.Equal(t, "capture.jpg", p.Name)
	assert.Equal(t, "image/jpeg", p.MIMEType)

	ta.handle(context.Background(), "/detach")
	assert.False(t, ta.composer.Active())
}

func TestApp_CameraDenied(t *testing.T) {
	ta := newTestApp(t, nil)
	ta.camera.err = core.NewPermissionError(core.DeviceCamera, errors.New("denied"))

	ta.handle(context.Background(), "/camera")
	assert.Contains(t, ta.out.String(), "Camera access was denied. Please enable it in your system settings.")
	assert.False(t, ta.composer.Active())
}

func TestApp_ThemeTogglePersists(t *testing.T) {
	ta := newTestApp(t, nil)
	assert.Equal(t, []string{"dark"}, ta.styles)

	ta.handle(context.Background(), "/theme")
	theme, ok, err := ta.store.LoadTheme(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, store.ThemeLight, theme)
	assert.Equal(t, []string{"dark", "light"}, ta.styles)

	ta.handle(context.Background(), "/theme dark")
	assert.Equal(t, store.ThemeDark, ta.currentTheme())

	ta.handle(context.Background(), "/theme blue")
	assert.Contains(t, ta.out.String(), "Usage: /theme")
	assert.Equal(t, store.ThemeDark, ta.currentTheme())
}

func TestApp_StoredThemeUsedWhenUnconfigured(t *testing.T) {
	st := store.New(kv.NewMemory())
	require.NoError(t, st.SaveTheme(context.Background(), store.ThemeLight))

	out := &syncBuffer{}
	var styles []string
	cfg := testConfig()
	cfg.Theme = ""
	a, err := newApp(context.Background(), cfg, out, deps{
		provider: &coretest.Provider{},
		mic:      &audiotest.Microphone{},
		output:   audiotest.NewContext(types.DefaultOutputSampleRate).Factory(),
		store:    st,
		renderer: func(style string) (render.Renderer, error) {
			styles = append(styles, style)
			return render.Plain{}, nil
		},
	}, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	defer a.Close()
	assert.Equal(t, []string{"light"}, styles)
}

func TestApp_RestoresHistory(t *testing.T) {
	st := store.New(kv.NewMemory())
	require.NoError(t, st.SaveHistory(context.Background(), []types.Message{
		types.NewMessage(types.RoleUser, types.TextPart("hello")),
		types.NewMessage(types.RoleModel, types.TextPart(reply)),
	}))

	ta := newTestApp(t, st)
	assert.Len(t, ta.chat.History(), 2)
	assert.Contains(t, ta.out.String(), "hello")
}

func TestApp_ExportAndNewChat(t *testing.T) {
	ta := newTestApp(t, nil)
	ta.handle(context.Background(), "how much water?")

	path := filepath.Join(t.TempDir(), "chat.html")
	ta.handle(context.Background(), "/export "+path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "throughout the day.")
	assert.Contains(t, string(data), appTitle)

	ta.handle(context.Background(), "/new")
	assert.Empty(t, ta.chat.History())
	saved, err := ta.store.LoadHistory(context.Background())
	require.NoError(t, err)
	assert.Empty(t, saved)
}

func TestApp_ExportBadPath(t *testing.T) {
	ta := newTestApp(t, nil)
	ta.handle(context.Background(), "/export "+filepath.Join(t.TempDir(), "missing", "chat.html"))
	assert.Contains(t, ta.out.String(), "Could not export the conversation")
}

func TestApp_SpeakWithoutReply(t *testing.T) {
	ta := newTestApp(t, nil)
	ta.handle(context.Background(), "/speak")
	assert.Contains(t, ta.out.String(), "There is no reply to read yet.")
	assert.Empty(t, ta.provider.SpeechRequests())
}

func TestApp_VoiceLifecycle(t *testing.T) {
	ta := newTestApp(t, nil)

	ta.handle(context.Background(), "/voice")
	require.Equal(t, live.StateOpen, ta.voice.State())
	require.Len(t, ta.conns, 1)
	assert.Eventually(t, func() bool {
		return strings.Contains(ta.out.String(), "Voice session connected")
	}, time.Second, 5*time.Millisecond)

	ta.conns[0].Emit(types.LiveEvent{Kind: types.LiveOutputTranscript, Text: "Take a deep breath."})
	assert.Eventually(t, func() bool {
		return strings.Contains(ta.out.String(), "Take a deep breath.")
	}, time.Second, 5*time.Millisecond)

	ta.handle(context.Background(), "/mute")
	assert.True(t, ta.voice.Muted())
	assert.Contains(t, ta.out.String(), "Voice reply muted.")

	ta.handle(context.Background(), "/voice")
	assert.Equal(t, live.StateIdle, ta.voice.State())
	assert.True(t, ta.conns[0].Closed())
	assert.Eventually(t, func() bool {
		return strings.Contains(ta.out.String(), "Voice session ended (stopped).")
	}, time.Second, 5*time.Millisecond)
}

func TestApp_VoiceMicrophoneDenied(t *testing.T) {
	ta := newTestApp(t, nil, func(d *deps) {
		d.mic = &audiotest.Microphone{Err: core.NewPermissionError(core.DeviceMicrophone, errors.New("denied"))}
	})

	ta.handle(context.Background(), "/voice")
	assert.Equal(t, live.StateIdle, ta.voice.State())
	assert.Contains(t, ta.out.String(), "Microphone access was denied. Please enable it in your system settings.")
	assert.Empty(t, ta.conns)
}

func TestApp_Volume(t *testing.T) {
	ta := newTestApp(t, nil)

	ta.handle(context.Background(), "/volume 1.5")
	assert.InDelta(t, 1.5, ta.voice.InputGain(), 1e-9)
	ta.handle(context.Background(), "/volume 9")
	assert.InDelta(t, live.MaxInputGain, ta.voice.InputGain(), 1e-9)
	ta.handle(context.Background(), "/volume loud")
	assert.Contains(t, ta.out.String(), "Usage: /volume")
	ta.handle(context.Background(), "/volume")
	assert.Contains(t, ta.out.String(), "Microphone gain is 2.00.")
}

func TestApp_RunLoop(t *testing.T) {
	ta := newTestApp(t, nil)
	in := &scriptedReader{lines: []string{"", "/help", "/bogus", "/quit", "never read"}}

	require.NoError(t, ta.run(context.Background(), in))
	assert.Equal(t, 4, in.read)
	out := ta.out.String()
	assert.Contains(t, out, "Commands:")
	assert.Contains(t, out, "Unknown command /bogus.")
	assert.Empty(t, ta.provider.TextRequests())
}

func TestApp_RunLoopEndsAtEOF(t *testing.T) {
	ta := newTestApp(t, nil)
	in := &scriptedReader{lines: []string{"hi there"}}
	require.NoError(t, ta.run(context.Background(), in))
	assert.Len(t, ta.provider.TextRequests(), 1)
}

func TestApp_RunLoopReadError(t *testing.T) {
	ta := newTestApp(t, nil)
	err := ta.run(context.Background(), readerFunc(func(string) (string, error) {
		return "", errors.New("tty gone")
	}))
	assert.ErrorContains(t, err, "tty gone")
}

type readerFunc func(string) (string, error)

func (f readerFunc) Prompt(p string) (string, error) { return f(p) }

func TestApp_EmptyImagePrompt(t *testing.T) {
	ta := newTestApp(t, nil)
	ta.handle(context.Background(), "/image")
	assert.Contains(t, ta.out.String(), "Nothing to send.")
	assert.Empty(t, ta.provider.ImageRequests())
}

func TestBuildProvider(t *testing.T) {
	cfg := testConfig()
	p, err := buildProvider(context.Background(), cfg, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	engine, ok := p.(*core.Engine)
	require.True(t, ok)
	assert.Equal(t, []string{"gemini"}, engine.ProviderNames())

	cfg.Provider = config.ProviderGenAI
	p, err = buildProvider(context.Background(), cfg, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	_, ok = p.(*core.Engine).GetProvider("genai")
	assert.True(t, ok)

	cfg.Provider = "other"
	_, err = buildProvider(context.Background(), cfg, slog.New(slog.DiscardHandler))
	assert.Error(t, err)
}

func TestOpenStore_CreatesDirectory(t *testing.T) {
	cfg := testConfig()
	cfg.Store = config.StoreConfig{Driver: store.DriverFile, DSN: filepath.Join(t.TempDir(), "nested", "state.json")}
	st, err := openStore(context.Background(), cfg, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	defer st.Close()
	require.NoError(t, st.SaveTheme(context.Background(), store.ThemeDark))
	_, err = os.Stat(filepath.Dir(cfg.Store.DSN))
	assert.NoError(t, err)
}
