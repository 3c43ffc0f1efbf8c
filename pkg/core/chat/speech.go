package chat

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/vango-go/vai-wellness/pkg/core"
	"github.com/vango-go/vai-wellness/pkg/core/audio"
	"github.com/vango-go/vai-wellness/pkg/core/retry"
	"github.com/vango-go/vai-wellness/pkg/core/types"
)

// ErrNoAudioOutput is returned by Speak when no output was configured.
var ErrNoAudioOutput = errors.New("chat: no audio output configured")

// speech tracks the one text-to-speech playback allowed at a time. It is
// independent of the turn guard and never touches history.
type speech struct {
	mu     sync.Mutex
	active bool
	queue  *audio.PlaybackQueue
	out    audio.OutputContext
	done   chan struct{}
}

// Speak synthesizes text and starts playing it. It returns once playback
// has been scheduled; use WaitSpeech to block until it finishes. A second
// call while audio is playing returns ErrBusy.
func (s *Session) Speak(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyInput
	}
	if s.output == nil {
		return ErrNoAudioOutput
	}

	s.speech.mu.Lock()
	if s.speech.active {
		s.speech.mu.Unlock()
		return ErrBusy
	}
	s.speech.active = true
	s.speech.mu.Unlock()

	if err := s.startSpeech(ctx, text); err != nil {
		s.speech.mu.Lock()
		s.speech.active = false
		s.speech.mu.Unlock()
		return s.fail(err)
	}
	return nil
}

// SpeakLast speaks the most recent model message.
func (s *Session) SpeakLast(ctx context.Context) error {
	history := s.History()
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == types.RoleModel && history[i].Text() != "" {
			return s.Speak(ctx, history[i].Text())
		}
	}
	return ErrEmptyInput
}

func (s *Session) startSpeech(ctx context.Context, text string) error {
	req := &types.SpeechRequest{Model: s.cfg.SpeechModel, Text: text, Voice: s.cfg.SpeechVoice}
	resp, err := retry.Do(ctx, s.policy, "synthesize speech", func(ctx context.Context) (*types.SpeechResponse, error) {
		return s.provider.SynthesizeSpeech(ctx, req)
	})
	if err != nil {
		return err
	}
	if len(resp.Audio) == 0 {
		return core.NewError(core.KindUnknown, "synthesize speech", errors.New("no audio data received"))
	}

	rate := resp.SampleRate
	if rate <= 0 {
		rate = audio.ParsePCMRate(resp.MIMEType, s.cfg.SpeechSampleRate)
	}
	buf, err := audio.DecodePCM16(resp.Audio, rate, 1)
	if err != nil {
		return core.NewError(core.KindUnknown, "decode speech", err)
	}

	out, err := s.output(rate)
	if err != nil {
		return core.NewError(core.KindDeviceNotFound, "open speaker", err)
	}
	queue := audio.NewPlaybackQueue(out)
	if _, err := queue.Enqueue(buf); err != nil {
		if cerr := out.Close(); cerr != nil {
			s.logger.Warn("failed to close speech output", "err", cerr)
		}
		return core.NewError(core.KindUnknown, "schedule speech", err)
	}

	done := make(chan struct{})
	s.speech.mu.Lock()
	s.speech.queue, s.speech.out, s.speech.done = queue, out, done
	s.speech.mu.Unlock()

	go func() {
		defer close(done)
		if err := queue.Wait(context.Background()); err != nil {
			s.logger.Debug("speech wait ended", "err", err)
		}
		s.finishSpeech()
	}()
	s.logger.Debug("speech scheduled", "seconds", buf.Duration(), "rate", rate)
	return nil
}

func (s *Session) finishSpeech() {
	s.speech.mu.Lock()
	out := s.speech.out
	s.speech.active = false
	s.speech.queue, s.speech.out = nil, nil
	s.speech.mu.Unlock()
	if out != nil && !out.Closed() {
		if err := out.Close(); err != nil {
			s.logger.Warn("failed to close speech output", "err", err)
		}
	}
}

// StopSpeech interrupts playback. It is a no-op when nothing is playing.
func (s *Session) StopSpeech() {
	s.speech.mu.Lock()
	queue := s.speech.queue
	s.speech.mu.Unlock()
	if queue != nil {
		queue.Interrupt()
	}
}

// Speaking reports whether speech is playing.
func (s *Session) Speaking() bool {
	s.speech.mu.Lock()
	defer s.speech.mu.Unlock()
	return s.speech.active
}

// WaitSpeech blocks until the current playback ends or ctx is done.
func (s *Session) WaitSpeech(ctx context.Context) error {
	s.speech.mu.Lock()
	done := s.speech.done
	s.speech.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
