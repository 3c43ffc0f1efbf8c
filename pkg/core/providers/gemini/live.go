package gemini

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"github.com/vango-go/vai-wellness/pkg/core"
	"github.com/vango-go/vai-wellness/pkg/core/types"
)

const defaultLiveConnectTimeout = 15 * time.Second

// Client frames of the BidiGenerateContent protocol.

type liveClientMessage struct {
	Setup         *liveSetup         `json:"setup,omitempty"`
	RealtimeInput *liveRealtimeInput `json:"realtimeInput,omitempty"`
}

type liveSetup struct {
	Model                    string           `json:"model"`
	GenerationConfig         *geminiGenConfig `json:"generationConfig,omitempty"`
	SystemInstruction        *geminiContent   `json:"systemInstruction,omitempty"`
	InputAudioTranscription  *struct{}        `json:"inputAudioTranscription,omitempty"`
	OutputAudioTranscription *struct{}        `json:"outputAudioTranscription,omitempty"`
}

type liveRealtimeInput struct {
	Audio *geminiBlob `json:"audio,omitempty"`
}

// Server frames.

type liveServerMessage struct {
	SetupComplete *struct{}          `json:"setupComplete,omitempty"`
	ServerContent *liveServerContent `json:"serverContent,omitempty"`
	GoAway        *liveGoAway        `json:"goAway,omitempty"`
	Error         *APIError          `json:"error,omitempty"`
}

type liveServerContent struct {
	ModelTurn           *geminiContent     `json:"modelTurn,omitempty"`
	TurnComplete        bool               `json:"turnComplete,omitempty"`
	Interrupted         bool               `json:"interrupted,omitempty"`
	InputTranscription  *liveTranscription `json:"inputTranscription,omitempty"`
	OutputTranscription *liveTranscription `json:"outputTranscription,omitempty"`
}

type liveTranscription struct {
	Text string `json:"text"`
}

type liveGoAway struct {
	TimeLeft string `json:"timeLeft,omitempty"`
}

// ConnectLive dials the live endpoint, sends the setup frame and waits for
// setupComplete.
func (p *Provider) ConnectLive(ctx context.Context, cfg *types.LiveConfig) (core.LiveConn, error) {
	wsURL, err := p.liveEndpoint()
	if err != nil {
		return nil, err
	}

	dialCtx := ctx
	var cancel context.CancelFunc
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		dialCtx, cancel = context.WithTimeout(ctx, defaultLiveConnectTimeout)
		defer cancel()
	}

	headers := make(http.Header)
	headers.Set("x-goog-api-key", p.apiKey)

	conn, resp, err := p.dialer.DialContext(dialCtx, wsURL, headers)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
			return nil, core.NewRateLimitError("connect live", "websocket dial rejected")
		}
		if resp != nil {
			return nil, core.NewNetworkError("connect live", fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err))
		}
		return nil, core.NewNetworkError("connect live", err)
	}

	if err := writeFrame(conn, liveClientMessage{Setup: buildLiveSetup(cfg)}); err != nil {
		_ = conn.Close()
		return nil, core.NewNetworkError("send live setup", err)
	}

	deadline := time.Now().Add(defaultLiveConnectTimeout)
	if d, ok := dialCtx.Deadline(); ok {
		deadline = d
	}
	_ = conn.SetReadDeadline(deadline)
	_, payload, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return nil, core.NewNetworkError("read live setup", err)
	}
	_ = conn.SetReadDeadline(time.Time{})

	var first liveServerMessage
	if err := sonic.Unmarshal(payload, &first); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("decode live setup: %w", err)
	}
	switch {
	case first.Error != nil:
		_ = conn.Close()
		return nil, &core.Error{Kind: core.KindUnknown, Op: "connect live", Message: first.Error.Message, Code: first.Error.Status, Err: first.Error}
	case first.SetupComplete == nil:
		_ = conn.Close()
		return nil, fmt.Errorf("connect live: unexpected first frame %q", truncate(string(payload), 120))
	}

	lc := &liveConn{
		conn:   conn,
		events: make(chan types.LiveEvent, 256),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
		logger: p.logger,
	}
	go lc.readLoop()
	p.logger.Debug("live session connected", "model", cfg.Model, "voice", cfg.Voice)
	return lc, nil
}

func (p *Provider) liveEndpoint() (string, error) {
	u, err := url.Parse(p.liveURL)
	if err != nil {
		return "", fmt.Errorf("parse live url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	return u.String(), nil
}

func buildLiveSetup(cfg *types.LiveConfig) *liveSetup {
	model := stripProviderPrefix(cfg.Model)
	if !strings.HasPrefix(model, "models/") {
		model = "models/" + model
	}
	setup := &liveSetup{
		Model: model,
		GenerationConfig: &geminiGenConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig:       speechConfig(cfg.Voice),
		},
		SystemInstruction: systemInstruction(cfg.System),
	}
	if cfg.InputTranscription {
		setup.InputAudioTranscription = &struct{}{}
	}
	if cfg.OutputTranscription {
		setup.OutputAudioTranscription = &struct{}{}
	}
	return setup
}

func writeFrame(conn *websocket.Conn, msg liveClientMessage) error {
	data, err := sonic.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal live frame: %w", err)
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// liveConn is a core.LiveConn over the BidiGenerateContent websocket.
type liveConn struct {
	conn   *websocket.Conn
	logger *slog.Logger

	events chan types.LiveEvent
	quit   chan struct{}
	done   chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    atomic.Bool
}

var _ core.LiveConn = (*liveConn)(nil)

// SendAudio implements core.LiveConn.
func (c *liveConn) SendAudio(ctx context.Context, blob types.Blob) error {
	if c.closed.Load() {
		return io.ErrClosedPipe
	}
	data, err := sonic.Marshal(liveClientMessage{RealtimeInput: &liveRealtimeInput{
		Audio: &geminiBlob{MIMEType: blob.MIMEType, Data: blob.Data},
	}})
	if err != nil {
		return fmt.Errorf("marshal audio frame: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if d, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(d)
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Receive implements core.LiveConn.
func (c *liveConn) Receive(ctx context.Context) (types.LiveEvent, error) {
	select {
	case ev, ok := <-c.events:
		if !ok {
			return types.LiveEvent{}, io.EOF
		}
		return ev, nil
	case <-ctx.Done():
		return types.LiveEvent{}, ctx.Err()
	}
}

// Close implements core.LiveConn.
func (c *liveConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.quit)
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(2*time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	<-c.done
	return err
}

func (c *liveConn) readLoop() {
	defer close(c.done)
	defer close(c.events)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.closed.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.emit(types.LiveEvent{Kind: types.LiveClosed})
				return
			}
			c.emit(types.LiveEvent{Kind: types.LiveError, Err: core.NewNetworkError("live receive", err)})
			return
		}

		var msg liveServerMessage
		if err := sonic.Unmarshal(data, &msg); err != nil {
			c.logger.Debug("skipping undecodable live frame", "err", err)
			continue
		}
		for _, ev := range c.translate(&msg) {
			c.emit(ev)
		}
	}
}

// translate expands one server frame into events in protocol order:
// transcripts, audio, interruption, turn completion.
func (c *liveConn) translate(msg *liveServerMessage) []types.LiveEvent {
	var out []types.LiveEvent
	if msg.Error != nil {
		out = append(out, types.LiveEvent{Kind: types.LiveError, Err: msg.Error})
	}
	sc := msg.ServerContent
	if sc != nil {
		if sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
			out = append(out, types.LiveEvent{Kind: types.LiveInputTranscript, Text: sc.InputTranscription.Text})
		}
		if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
			out = append(out, types.LiveEvent{Kind: types.LiveOutputTranscript, Text: sc.OutputTranscription.Text})
		}
		if sc.ModelTurn != nil {
			for _, part := range sc.ModelTurn.Parts {
				if part.InlineData == nil || len(part.InlineData.Data) == 0 || !strings.HasPrefix(part.InlineData.MIMEType, "audio/") {
					continue
				}
				out = append(out, types.LiveEvent{Kind: types.LiveAudio, Audio: &types.Blob{
					MIMEType: part.InlineData.MIMEType,
					Data:     part.InlineData.Data,
				}})
			}
		}
		if sc.Interrupted {
			out = append(out, types.LiveEvent{Kind: types.LiveInterrupted})
		}
		if sc.TurnComplete {
			out = append(out, types.LiveEvent{Kind: types.LiveTurnComplete})
		}
	}
	if msg.GoAway != nil {
		c.logger.Debug("live server going away", "time_left", msg.GoAway.TimeLeft)
	}
	return out
}

func (c *liveConn) emit(ev types.LiveEvent) {
	select {
	case c.events <- ev:
	case <-c.quit:
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
