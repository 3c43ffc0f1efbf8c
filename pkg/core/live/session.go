package live

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/vango-go/vai-wellness/pkg/core"
	"github.com/vango-go/vai-wellness/pkg/core/audio"
	"github.com/vango-go/vai-wellness/pkg/core/types"
	"github.com/vango-go/vai-wellness/pkg/surface"
)

// ErrAlreadyActive is returned by Start when the session is not idle.
var ErrAlreadyActive = errors.New("live: session already active")

// ErrStartCanceled is returned by Start when Stop arrives while connecting.
var ErrStartCanceled = errors.New("live: start canceled by stop")

// ErrorMessage is rendered when the remote session fails.
const ErrorMessage = "An error occurred with the voice session."

// Stats counts microphone frames of the current or last run.
type Stats struct {
	FramesCaptured int64
	FramesSent     int64
	FramesDropped  int64
}

// Session is a duplex voice session. It can be started again after Stop.
type Session struct {
	provider core.Provider
	mic      audio.Microphone
	output   audio.OutputFactory
	surface  surface.Surface
	config   Config
	logger   *slog.Logger

	mu        sync.Mutex
	state     SessionState
	run       *run
	pending   *pendingStart
	muted     bool
	inputGain float64
	lastStats Stats

	events chan Event
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		s.logger = l
	}
}

// NewSession creates an idle session.
func NewSession(p core.Provider, mic audio.Microphone, output audio.OutputFactory, surf surface.Surface, config Config, opts ...Option) *Session {
	s := &Session{
		provider:  p,
		mic:       mic,
		output:    output,
		surface:   surf,
		config:    config.withDefaults(),
		logger:    slog.New(slog.DiscardHandler),
		inputGain: 1,
		events:    make(chan Event, 100),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// pendingStart is a Start that has not reached Open yet.
type pendingStart struct {
	cancel   context.CancelFunc
	canceled bool
	done     chan struct{}
}

// run holds everything one Start acquires.
type run struct {
	ctx    context.Context
	cancel context.CancelFunc

	capture audio.CaptureStream
	out     audio.OutputContext
	queue   *audio.PlaybackQueue
	conn    core.LiveConn
	outbox  chan types.Blob

	recvDone chan struct{}

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopErr  error

	level    atomic.Uint64
	peak     atomic.Uint64
	captured atomic.Int64
	sent     atomic.Int64
	dropped  atomic.Int64

	// Transcript placeholders. Only the receive loop touches these.
	inputID    surface.ElementID
	outputID   surface.ElementID
	inputText  strings.Builder
	outputText strings.Builder
}

// State returns the current session state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Events returns the channel for receiving session events. Events are
// dropped when the channel is full.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Start acquires the microphone and speaker, then opens the remote
// session. Failures are rendered to the surface, every acquired resource
// is released, and the session returns to Idle. A Stop that arrives while
// connecting cancels the start and Start returns ErrStartCanceled.
func (s *Session) Start(ctx context.Context) error {
	connectCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	p := &pendingStart{cancel: cancel, done: make(chan struct{})}
	defer close(p.done)

	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrAlreadyActive
	}
	s.pending = p
	s.state = StateConnecting
	s.mu.Unlock()
	s.stateChanged(StateIdle, StateConnecting)

	r, err := s.acquire(connectCtx)

	s.mu.Lock()
	s.pending = nil
	canceled := p.canceled
	if err == nil && !canceled {
		r.out.SetGain(outputGain(s.muted))
		r.wg.Add(4)
		s.run = r
	}
	s.mu.Unlock()

	if canceled {
		if err == nil {
			if cerr := r.release(); cerr != nil {
				s.logger.Warn("release after canceled start", "err", cerr)
			}
		}
		s.logger.Info("live session start canceled")
		s.emit(&SessionClosedEvent{Reason: "stopped"})
		s.setState(StateIdle)
		return ErrStartCanceled
	}
	if err != nil {
		s.surface.AddError(core.UserMessage(err))
		s.surface.ScrollToBottom()
		s.emit(&ErrorEvent{Err: err})
		s.setState(StateIdle)
		s.logger.Warn("live session failed to start", "err", err)
		return err
	}

	go s.captureLoop(r)
	go s.sendLoop(r)
	go s.receiveLoop(r)
	go s.levelLoop(r)

	// A Stop that won the race after publication has already torn r down.
	s.mu.Lock()
	if s.run != r || s.state != StateConnecting {
		s.mu.Unlock()
		return ErrStartCanceled
	}
	s.state = StateOpen
	s.mu.Unlock()
	s.stateChanged(StateConnecting, StateOpen)
	s.logger.Info("live session open", "model", s.config.Model, "voice", s.config.Voice)
	return nil
}

func (s *Session) acquire(ctx context.Context) (r *run, err error) {
	r = &run{
		outbox:   make(chan types.Blob, s.config.SendQueue),
		recvDone: make(chan struct{}),
	}
	defer func() {
		if err != nil {
			if cerr := r.release(); cerr != nil {
				s.logger.Warn("release after failed start", "err", cerr)
			}
		}
	}()

	r.capture, err = s.mic.Open(ctx, audio.CaptureConfig{
		SampleRate: s.config.InputSampleRate,
		FrameSize:  s.config.FrameSize,
	})
	if err != nil {
		if core.KindOf(err) == core.KindUnknown {
			err = core.NewPermissionError(core.DeviceMicrophone, err)
		}
		return r, err
	}

	r.out, err = s.output(s.config.OutputSampleRate)
	if err != nil {
		return r, core.NewError(core.KindDeviceNotFound, "open speaker", err)
	}
	r.queue = audio.NewPlaybackQueue(r.out)

	r.conn, err = s.provider.ConnectLive(ctx, s.config.liveConfig())
	if err != nil {
		return r, err
	}

	r.ctx, r.cancel = context.WithCancel(context.WithoutCancel(ctx))
	return r, nil
}

// release closes whatever r holds. Each resource is closed at most once.
func (r *run) release() error {
	var result *multierror.Error
	if r.cancel != nil {
		r.cancel()
	}
	if r.capture != nil {
		if err := r.capture.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close microphone: %w", err))
		}
	}
	if r.queue != nil {
		r.queue.Interrupt()
	}
	if r.out != nil && !r.out.Closed() {
		if err := r.out.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close speaker: %w", err))
		}
	}
	if r.conn != nil {
		if err := r.conn.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close remote session: %w", err))
		}
	}
	return result.ErrorOrNil()
}

// Stop tears the session down and waits for its goroutines. It is safe to
// call at any time and from any trigger; calls on an idle session return nil.
func (s *Session) Stop() error {
	s.mu.Lock()
	r := s.run
	p := s.pending
	if p != nil {
		p.canceled = true
		p.cancel()
	}
	s.mu.Unlock()
	if p != nil {
		// Start releases whatever it opened before returning.
		<-p.done
		return nil
	}
	if r == nil {
		return nil
	}
	err := s.teardown(r, "stopped")
	r.wg.Wait()
	return err
}

// teardown runs once per run, whichever trigger arrives first. It must not
// be called from the receive loop's goroutine.
func (s *Session) teardown(r *run, reason string) error {
	r.stopOnce.Do(func() {
		s.setState(StateClosed)
		r.stopErr = r.release()
		<-r.recvDone
		s.finalizeTranscripts(r)

		s.mu.Lock()
		if s.run == r {
			s.run = nil
		}
		s.lastStats = r.stats()
		s.mu.Unlock()

		if r.stopErr != nil {
			s.logger.Warn("live session teardown", "reason", reason, "err", r.stopErr)
		}
		s.logger.Info("live session closed",
			"reason", reason,
			"frames_sent", r.sent.Load(),
			"frames_dropped", r.dropped.Load(),
		)
		s.emit(&SessionClosedEvent{Reason: reason})
		s.setState(StateIdle)
	})
	return r.stopErr
}

// captureLoop forwards each frame without waiting on the network. A frame
// that does not fit in the send queue is dropped.
func (s *Session) captureLoop(r *run) {
	defer r.wg.Done()
	frames := r.capture.Frames()
	for {
		select {
		case <-r.ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			r.captured.Add(1)
			samples := append([]float32(nil), frame...)
			audio.ApplyGain(samples, s.InputGain())
			r.level.Store(math.Float64bits(audio.RMS(samples)))
			r.peak.Store(math.Float64bits(audio.Peak(samples)))

			blob := audio.EncodeFrame(samples, s.config.InputSampleRate)
			select {
			case r.outbox <- blob:
			default:
				r.dropped.Add(1)
				s.logger.Debug("dropped microphone frame", "reason", "send queue full")
			}
		}
	}
}

// sendLoop sends queued frames. A failed send is not retried.
func (s *Session) sendLoop(r *run) {
	defer r.wg.Done()
	for {
		select {
		case <-r.ctx.Done():
			return
		case blob := <-r.outbox:
			if err := r.conn.SendAudio(r.ctx, blob); err != nil {
				r.dropped.Add(1)
				s.logger.Debug("dropped microphone frame", "reason", "send failed", "err", err)
				continue
			}
			r.sent.Add(1)
		}
	}
}

// receiveLoop handles inbound events one at a time in arrival order.
func (s *Session) receiveLoop(r *run) {
	defer r.wg.Done()
	defer close(r.recvDone)
	for {
		ev, err := r.conn.Receive(r.ctx)
		if err != nil {
			switch {
			case r.ctx.Err() != nil:
			case errors.Is(err, io.EOF):
				go s.teardown(r, "remote closed")
			default:
				s.fail(r, err)
			}
			return
		}
		if r.ctx.Err() != nil {
			return
		}
		if done := s.handle(r, ev); done {
			return
		}
	}
}

// handle applies one event. It reports whether the loop should end.
func (s *Session) handle(r *run, ev types.LiveEvent) bool {
	switch ev.Kind {
	case types.LiveInputTranscript:
		r.inputID = s.appendTranscript(r.inputID, &r.inputText, types.RoleUser, ev.Text)
	case types.LiveOutputTranscript:
		r.outputID = s.appendTranscript(r.outputID, &r.outputText, types.RoleModel, ev.Text)
	case types.LiveAudio:
		s.play(r, ev.Audio)
	case types.LiveTurnComplete:
		in, out := r.inputText.String(), r.outputText.String()
		s.finalizeTranscripts(r)
		s.emit(&TurnCompleteEvent{Input: in, Output: out})
	case types.LiveInterrupted:
		stopped := r.queue.Interrupt()
		s.logger.Debug("playback interrupted", "stopped", stopped)
		s.emit(&InterruptedEvent{Stopped: stopped})
	case types.LiveError:
		err := ev.Err
		if err == nil {
			err = errors.New("remote error")
		}
		s.fail(r, err)
		return true
	case types.LiveClosed:
		go s.teardown(r, "remote closed")
		return true
	}
	return false
}

func (s *Session) appendTranscript(id surface.ElementID, b *strings.Builder, role types.Role, delta string) surface.ElementID {
	if delta == "" {
		return id
	}
	b.WriteString(delta)
	if id == "" {
		id = s.surface.AddMessage(role, b.String(), true)
	} else {
		s.surface.UpdateMessage(id, b.String(), true)
	}
	s.surface.ScrollToBottom()
	s.emit(&TranscriptEvent{Role: role, Text: b.String()})
	return id
}

// finalizeTranscripts renders both placeholders without the cursor and
// resets them so the next turn starts fresh.
func (s *Session) finalizeTranscripts(r *run) {
	if r.inputID != "" {
		s.surface.UpdateMessage(r.inputID, r.inputText.String(), false)
	}
	if r.outputID != "" {
		s.surface.UpdateMessage(r.outputID, r.outputText.String(), false)
	}
	r.inputID, r.outputID = "", ""
	r.inputText.Reset()
	r.outputText.Reset()
}

func (s *Session) play(r *run, blob *types.Blob) {
	if blob == nil || len(blob.Data) == 0 {
		return
	}
	buf, err := audio.DecodeBlob(*blob, s.config.OutputSampleRate)
	if err != nil {
		s.logger.Debug("skipping undecodable audio chunk", "err", err)
		return
	}
	if _, err := r.queue.Enqueue(buf); err != nil {
		s.logger.Debug("failed to schedule audio chunk", "err", err)
	}
}

// fail renders the session error and tears down asynchronously so the
// caller's goroutine can exit.
func (s *Session) fail(r *run, err error) {
	s.logger.Error("live session error", "err", err)
	s.surface.AddError(ErrorMessage)
	s.surface.ScrollToBottom()
	s.emit(&ErrorEvent{Err: err})
	go s.teardown(r, "error")
}

// levelLoop samples the input level until the run ends.
func (s *Session) levelLoop(r *run) {
	defer r.wg.Done()
	ticker := time.NewTicker(s.config.LevelInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			s.emit(&LevelEvent{
				RMS:  math.Float64frombits(r.level.Load()),
				Peak: math.Float64frombits(r.peak.Load()),
			})
		}
	}
}

// SetMuted mutes or unmutes the model's audio.
func (s *Session) SetMuted(muted bool) {
	s.mu.Lock()
	s.muted = muted
	r := s.run
	s.mu.Unlock()
	if r != nil {
		r.out.SetGain(outputGain(muted))
	}
}

// ToggleMute flips the mute state and returns the new value.
func (s *Session) ToggleMute() bool {
	s.mu.Lock()
	muted := !s.muted
	s.mu.Unlock()
	s.SetMuted(muted)
	return muted
}

// Muted reports whether output is muted.
func (s *Session) Muted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.muted
}

// SetInputGain sets the microphone gain, clamped to [0, MaxInputGain].
func (s *Session) SetInputGain(gain float64) {
	gain = math.Max(0, math.Min(MaxInputGain, gain))
	s.mu.Lock()
	s.inputGain = gain
	s.mu.Unlock()
}

// InputGain returns the microphone gain.
func (s *Session) InputGain() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inputGain
}

// Level returns the RMS of the most recent microphone frame.
func (s *Session) Level() float64 {
	s.mu.Lock()
	r := s.run
	s.mu.Unlock()
	if r == nil {
		return 0
	}
	return math.Float64frombits(r.level.Load())
}

// Stats returns frame counters for the active run, or the last one.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run != nil {
		return s.run.stats()
	}
	return s.lastStats
}

func (r *run) stats() Stats {
	return Stats{
		FramesCaptured: r.captured.Load(),
		FramesSent:     r.sent.Load(),
		FramesDropped:  r.dropped.Load(),
	}
}

func outputGain(muted bool) float64 {
	if muted {
		return 0
	}
	return 1
}

// setState updates the session state and emits an event.
func (s *Session) setState(newState SessionState) {
	s.mu.Lock()
	oldState := s.state
	s.state = newState
	s.mu.Unlock()

	s.stateChanged(oldState, newState)
}

func (s *Session) stateChanged(oldState, newState SessionState) {
	if oldState != newState {
		s.logger.Debug("live state", "from", oldState.String(), "to", newState.String())
		s.emit(&StateChangedEvent{From: oldState, To: newState})
	}
}

// emit sends an event to the events channel.
func (s *Session) emit(event Event) {
	select {
	case s.events <- event:
	default:
		// Channel full, drop event
	}
}
