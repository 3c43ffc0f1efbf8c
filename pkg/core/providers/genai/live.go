package genai

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"google.golang.org/genai"

	"github.com/vango-go/vai-wellness/pkg/core"
	"github.com/vango-go/vai-wellness/pkg/core/types"
)

// ConnectLive opens a live session through the SDK.
func (p *Provider) ConnectLive(ctx context.Context, cfg *types.LiveConfig) (core.LiveConn, error) {
	session, err := p.client.Live.Connect(ctx, cfg.Model, liveConnectConfig(cfg))
	if err != nil {
		return nil, mapError("connect live", err)
	}
	c := &liveConn{
		session: session,
		events:  make(chan types.LiveEvent, 256),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	p.logger.Debug("live session connected", "model", cfg.Model, "voice", cfg.Voice)
	return c, nil
}

func liveConnectConfig(cfg *types.LiveConfig) *genai.LiveConnectConfig {
	out := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
		SpeechConfig:       speechConfig(cfg.Voice),
		SystemInstruction:  systemInstruction(cfg.System),
	}
	if cfg.InputTranscription {
		out.InputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}
	if cfg.OutputTranscription {
		out.OutputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}
	return out
}

// liveConn adapts a genai.Session to core.LiveConn.
type liveConn struct {
	session *genai.Session

	events chan types.LiveEvent
	quit   chan struct{}
	done   chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    atomic.Bool
}

// SendAudio implements core.LiveConn.
func (c *liveConn) SendAudio(_ context.Context, blob types.Blob) error {
	if c.closed.Load() {
		return io.ErrClosedPipe
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.session.SendRealtimeInput(genai.LiveRealtimeInput{
		Audio: &genai.Blob{MIMEType: blob.MIMEType, Data: blob.Data},
	})
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
		err = c.session.Close()
	})
	<-c.done
	return err
}

func (c *liveConn) readLoop() {
	defer close(c.done)
	defer close(c.events)

	for {
		msg, err := c.session.Receive()
		if err != nil {
			if c.closed.Load() || errors.Is(err, io.EOF) || isNormalClose(err) {
				c.emit(types.LiveEvent{Kind: types.LiveClosed})
				return
			}
			c.emit(types.LiveEvent{Kind: types.LiveError, Err: core.NewNetworkError("live receive", err)})
			return
		}
		for _, ev := range translate(msg) {
			c.emit(ev)
		}
	}
}

// isNormalClose matches the websocket close errors the SDK passes through.
func isNormalClose(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "close 1000") || strings.Contains(msg, "close 1001")
}

// translate expands one server message into events in protocol order.
func translate(msg *genai.LiveServerMessage) []types.LiveEvent {
	if msg == nil || msg.ServerContent == nil {
		return nil
	}
	sc := msg.ServerContent
	var out []types.LiveEvent
	if sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
		out = append(out, types.LiveEvent{Kind: types.LiveInputTranscript, Text: sc.InputTranscription.Text})
	}
	if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
		out = append(out, types.LiveEvent{Kind: types.LiveOutputTranscript, Text: sc.OutputTranscription.Text})
	}
	if sc.ModelTurn != nil {
		for _, part := range sc.ModelTurn.Parts {
			if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			if !strings.HasPrefix(part.InlineData.MIMEType, "audio/") {
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
	return out
}

func (c *liveConn) emit(ev types.LiveEvent) {
	select {
	case c.events <- ev:
	case <-c.quit:
	}
}
