// Package chat implements the conversation session: single-shot text and
// image turns with at most one turn in flight, and history that grows only
// in (user, model) pairs.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/vango-go/vai-wellness/pkg/core"
	"github.com/vango-go/vai-wellness/pkg/core/attachment"
	"github.com/vango-go/vai-wellness/pkg/core/audio"
	"github.com/vango-go/vai-wellness/pkg/core/retry"
	"github.com/vango-go/vai-wellness/pkg/core/stream"
	"github.com/vango-go/vai-wellness/pkg/core/types"
	"github.com/vango-go/vai-wellness/pkg/store"
	"github.com/vango-go/vai-wellness/pkg/surface"
)

var (
	// ErrBusy is returned when a turn is already in flight. Nothing changes.
	ErrBusy = errors.New("chat: a turn is already in progress")
	// ErrEmptyInput is returned when there is neither text nor an attachment.
	ErrEmptyInput = errors.New("chat: nothing to send")
)

// ImagePlaceholder is shown while an image turn is running.
const ImagePlaceholder = "Generating image..."

// imagePrefix routes a text submission to image mode.
const imagePrefix = "generate an image"

// State is the turn guard.
type State int

const (
	StateIdle State = iota
	StateAwaitingResponse
)

// String returns the state name.
func (s State) String() string {
	if s == StateAwaitingResponse {
		return "awaiting_response"
	}
	return "idle"
}

// Mode selects the kind of turn.
type Mode int

const (
	ModeText Mode = iota
	ModeImage
)

// String returns the mode name.
func (m Mode) String() string {
	if m == ModeImage {
		return "image"
	}
	return "text"
}

// Input is one submission.
type Input struct {
	Text       string
	Attachment *attachment.Pending
	Mode       Mode
}

func (in Input) empty() bool {
	return strings.TrimSpace(in.Text) == "" && in.Attachment == nil
}

// Turn reports how a submission ended.
type Turn struct {
	Mode Mode
	// Outcome is the stream outcome for text turns and OutcomeComplete for
	// successful image turns.
	Outcome stream.Outcome
	User    types.Message
	// Model is nil unless the turn entered history.
	Model *types.Message
}

// Session owns the conversation history.
type Session struct {
	provider  core.Provider
	surface   surface.Surface
	store     *store.Store
	coord     *stream.Coordinator
	prefilter stream.Prefilter
	classify  stream.Classifier
	policy    retry.Policy
	output    audio.OutputFactory
	logger    *slog.Logger
	cfg       Config

	mu       sync.Mutex
	state    State
	history  []types.Message
	thinking bool

	speech speech
}

// Option configures a Session.
type Option func(*Session)

// WithStore persists history after every successful turn.
func WithStore(s *store.Store) Option {
	return func(sess *Session) {
		sess.store = s
	}
}

// WithConfig sets models and request settings.
func WithConfig(cfg Config) Option {
	return func(sess *Session) {
		sess.cfg = cfg
	}
}

// WithClassifier replaces the insufficiency classifier.
func WithClassifier(c stream.Classifier) Option {
	return func(sess *Session) {
		sess.classify = c
	}
}

// WithPrefilter screens prompts before any provider call.
func WithPrefilter(p stream.Prefilter) Option {
	return func(sess *Session) {
		sess.prefilter = p
	}
}

// WithRetryPolicy overrides retry.DefaultPolicy.
func WithRetryPolicy(p retry.Policy) Option {
	return func(sess *Session) {
		sess.policy = p
	}
}

// WithAudioOutput sets the output used for text-to-speech.
func WithAudioOutput(f audio.OutputFactory) Option {
	return func(sess *Session) {
		sess.output = f
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(sess *Session) {
		sess.logger = l
	}
}

// NewSession creates an idle session with empty history.
func NewSession(p core.Provider, s surface.Surface, opts ...Option) *Session {
	sess := &Session{
		provider: p,
		surface:  s,
		policy:   retry.DefaultPolicy(),
		logger:   slog.New(slog.DiscardHandler),
		cfg:      DefaultConfig(),
	}
	for _, opt := range opts {
		opt(sess)
	}
	sess.cfg = sess.cfg.withDefaults()
	coordOpts := []stream.Option{stream.WithLogger(sess.logger)}
	if sess.classify != nil {
		coordOpts = append(coordOpts, stream.WithClassifier(sess.classify))
	}
	sess.coord = stream.NewCoordinator(s, coordOpts...)
	if sess.policy.Logger == nil {
		sess.policy.Logger = sess.logger
	}
	return sess
}

// State returns the guard state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// History returns a copy of the history.
func (s *Session) History() []types.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.Message(nil), s.history...)
}

// SetThinking toggles extended reasoning for text turns.
func (s *Session) SetThinking(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.thinking = on
}

// Thinking reports whether extended reasoning is on.
func (s *Session) Thinking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.thinking
}

// acquire moves Idle to AwaitingResponse and returns a history snapshot.
func (s *Session) acquire() ([]types.Message, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		return nil, false, ErrBusy
	}
	s.state = StateAwaitingResponse
	return append([]types.Message(nil), s.history...), s.thinking, nil
}

func (s *Session) release() {
	s.mu.Lock()
	s.state = StateIdle
	s.mu.Unlock()
	s.surface.SetBusy(false)
}

// Submit runs one turn. It returns ErrBusy or ErrEmptyInput without side
// effects. Every other failure is rendered as an error entry and also
// returned; history is untouched unless the turn succeeds.
func (s *Session) Submit(ctx context.Context, in Input) (*Turn, error) {
	if in.empty() {
		return nil, ErrEmptyInput
	}
	history, thinking, err := s.acquire()
	if err != nil {
		return nil, err
	}
	defer s.release()
	return s.run(ctx, in, history, thinking)
}

// SubmitFrom submits the composer's text and attachment. The composer is
// cleared only once the turn has been accepted.
func (s *Session) SubmitFrom(ctx context.Context, m *attachment.Manager, mode Mode) (*Turn, error) {
	pending, ok := m.Pending()
	in := Input{Text: m.Text(), Mode: mode}
	if ok {
		in.Attachment = &pending
	}
	if in.empty() {
		return nil, ErrEmptyInput
	}
	history, thinking, err := s.acquire()
	if err != nil {
		return nil, err
	}
	defer s.release()
	m.Take()
	return s.run(ctx, in, history, thinking)
}

func (s *Session) run(ctx context.Context, in Input, history []types.Message, thinking bool) (turn *Turn, err error) {
	s.surface.SetBusy(true)
	start := time.Now()
	mode := resolveMode(in)
	defer func() {
		outcome := "error"
		if turn != nil {
			outcome = turn.Outcome.String()
		}
		s.logger.Info("turn finished",
			"mode", mode.String(),
			"outcome", outcome,
			"thinking", thinking,
			"history", len(history),
			"duration", time.Since(start),
			"err", err,
		)
	}()

	prompt := strings.TrimSpace(in.Text)
	name := ""
	if in.Attachment != nil {
		name = in.Attachment.Name
	}
	s.surface.AddMessage(types.RoleUser, surface.DisplayPrompt(prompt, name), false)
	s.surface.ScrollToBottom()

	if s.prefilter != nil && prompt != "" {
		if v := s.prefilter.Screen(prompt); v.Blocked {
			return nil, s.fail(&core.Error{Kind: core.KindSafetyBlocked, Op: "prefilter", Hint: v.Reason})
		}
	}

	user, err := buildUserMessage(prompt, in.Attachment)
	if err != nil {
		return nil, s.fail(err)
	}

	if mode == ModeImage {
		return s.runImage(ctx, user, history)
	}
	return s.runText(ctx, user, history, thinking)
}

func (s *Session) runText(ctx context.Context, user types.Message, history []types.Message, thinking bool) (*Turn, error) {
	req := &types.TextRequest{
		Model:           s.cfg.TextModel,
		System:          s.cfg.System,
		History:         history,
		Content:         user,
		SearchGrounding: s.cfg.SearchGrounding,
	}
	if thinking {
		req.ThinkingBudget = s.cfg.ThinkingBudget
	}

	id := s.coord.Placeholder()
	cs, err := retry.Do(ctx, s.policy, "stream text", func(ctx context.Context) (core.ChunkStream, error) {
		return s.provider.StreamText(ctx, req)
	})
	if err != nil {
		s.surface.Remove(id)
		return nil, s.fail(err)
	}
	res, err := s.coord.Run(ctx, id, cs)
	if err != nil {
		return nil, s.fail(err)
	}

	turn := &Turn{Mode: ModeText, Outcome: res.Outcome, User: user}
	if res.Outcome != stream.OutcomeComplete {
		return turn, nil
	}
	model := types.NewMessage(types.RoleModel, types.TextPart(res.Text))
	turn.Model = &model
	s.commit(ctx, user, model)
	return turn, nil
}

func (s *Session) runImage(ctx context.Context, user types.Message, history []types.Message) (*Turn, error) {
	req := &types.ImageRequest{
		Model:   s.cfg.ImageModel,
		System:  s.cfg.System,
		History: history,
		Content: user,
	}

	id := s.surface.AddMessage(types.RoleModel, ImagePlaceholder, true)
	s.surface.ScrollToBottom()
	resp, err := retry.Do(ctx, s.policy, "generate image", func(ctx context.Context) (*types.ImageResponse, error) {
		return s.provider.GenerateImage(ctx, req)
	})
	if err == nil && resp.BlockReason != "" {
		err = core.NewSafetyBlockedError("generate image", resp.BlockReason)
	}
	if err != nil {
		s.surface.Remove(id)
		return nil, s.fail(err)
	}
	img, ok := resp.FirstImage()
	if !ok {
		s.surface.Remove(id)
		return nil, s.fail(core.NewError(core.KindNoImageReturned, "generate image", nil))
	}

	caption := strings.TrimSpace(resp.Text())
	s.surface.ShowImage(id, img, caption)
	s.surface.ScrollToBottom()

	model := types.NewMessage(types.RoleModel, types.InlinePart(img.MIMEType, img.Data), types.TextPart(caption))
	s.commit(ctx, user, model)
	return &Turn{Mode: ModeImage, Outcome: stream.OutcomeComplete, User: user, Model: &model}, nil
}

// commit appends the pair and persists. A persistence failure is logged;
// the in-memory history stays authoritative.
func (s *Session) commit(ctx context.Context, user, model types.Message) {
	s.mu.Lock()
	s.history = append(s.history, user, model)
	snapshot := append([]types.Message(nil), s.history...)
	s.mu.Unlock()

	if s.store == nil {
		return
	}
	if err := s.store.SaveHistory(ctx, snapshot); err != nil {
		s.logger.Warn("failed to persist history", "err", err)
	}
}

// fail renders err as an error entry and returns it.
func (s *Session) fail(err error) error {
	s.surface.AddError(core.UserMessage(err))
	s.surface.ScrollToBottom()
	return err
}

// Restore loads persisted history and renders it. Corrupt history is
// discarded by the store and yields an empty session.
func (s *Session) Restore(ctx context.Context) (int, error) {
	if s.store == nil {
		return 0, nil
	}
	history, err := s.store.LoadHistory(ctx)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return 0, ErrBusy
	}
	s.history = history
	s.mu.Unlock()

	for _, m := range history {
		s.renderMessage(m)
	}
	s.surface.ScrollToBottom()
	return len(history), nil
}

func (s *Session) renderMessage(m types.Message) {
	switch m.Role {
	case types.RoleUser:
		name := ""
		if imgs := m.Images(); len(imgs) > 0 {
			name = "image"
		}
		s.surface.AddMessage(types.RoleUser, surface.DisplayPrompt(m.Text(), name), false)
	case types.RoleModel:
		if imgs := m.Images(); len(imgs) > 0 {
			id := s.surface.AddMessage(types.RoleModel, "", false)
			s.surface.ShowImage(id, imgs[0], m.Text())
			return
		}
		s.surface.AddMessage(types.RoleModel, m.Text(), false)
	}
}

// NewChat clears history in memory and in the store, and clears the surface.
func (s *Session) NewChat(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrBusy
	}
	s.history = nil
	s.mu.Unlock()

	s.surface.Clear()
	if s.store != nil {
		if err := s.store.ClearHistory(ctx); err != nil {
			return fmt.Errorf("new chat: %w", err)
		}
	}
	return nil
}

func resolveMode(in Input) Mode {
	if in.Mode == ModeImage {
		return ModeImage
	}
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(in.Text)), imagePrefix) {
		return ModeImage
	}
	return ModeText
}

// buildUserMessage orders the attachment before the text.
func buildUserMessage(prompt string, att *attachment.Pending) (types.Message, error) {
	var parts []types.Part
	if att != nil {
		p, err := att.Part()
		if err != nil {
			return types.Message{}, &core.Error{Kind: core.KindReadError, Op: "attach " + att.Name, Err: err}
		}
		parts = append(parts, p)
	}
	if prompt != "" {
		parts = append(parts, types.TextPart(prompt))
	}
	m := types.NewMessage(types.RoleUser, parts...)
	if len(m.Parts) == 0 {
		return types.Message{}, &core.Error{Kind: core.KindReadError, Op: "attach " + att.Name, Message: "attachment is empty"}
	}
	return m, nil
}
