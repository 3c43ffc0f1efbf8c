// Package stream renders a streamed model response into a single surface
// element and decides whether the finished response is kept.
package stream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/vango-go/vai-wellness/pkg/core"
	"github.com/vango-go/vai-wellness/pkg/core/types"
	"github.com/vango-go/vai-wellness/pkg/surface"
)

// InsufficientMessage is shown when a response held nothing but boilerplate.
const InsufficientMessage = "I couldn't produce a useful answer to that. Please try rephrasing your question."

// State is the coordinator's position within one turn.
type State int

const (
	StateAwaitingFirstToken State = iota
	StateStreaming
	StateDone
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateAwaitingFirstToken:
		return "awaiting_first_token"
	case StateStreaming:
		return "streaming"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Outcome classifies a finished stream.
type Outcome int

const (
	// OutcomeComplete means the response was kept.
	OutcomeComplete Outcome = iota
	// OutcomeEmpty means no text arrived. The element was removed silently.
	OutcomeEmpty
	// OutcomeInsufficient means the text was boilerplate only. The element
	// was removed and InsufficientMessage shown.
	OutcomeInsufficient
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeComplete:
		return "complete"
	case OutcomeEmpty:
		return "empty"
	case OutcomeInsufficient:
		return "insufficient"
	default:
		return "unknown"
	}
}

// Result describes a finished stream.
type Result struct {
	Outcome      Outcome
	ElementID    surface.ElementID
	Text         string
	Sources      []types.Source
	FinishReason string
	BlockReason  string
	Chunks       int
}

// Coordinator drives a ChunkStream into a Surface.
type Coordinator struct {
	surface    surface.Surface
	classifier Classifier
	logger     *slog.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClassifier replaces the default BoilerplateFilter.
func WithClassifier(c Classifier) Option {
	return func(co *Coordinator) {
		co.classifier = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(co *Coordinator) {
		co.logger = l
	}
}

// NewCoordinator creates a Coordinator rendering into s.
func NewCoordinator(s surface.Surface, opts ...Option) *Coordinator {
	c := &Coordinator{
		surface:    s,
		classifier: NewBoilerplateFilter(DefaultMinChars),
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// turn is the accumulator for one stream. It never outlives Run.
type turn struct {
	id      surface.ElementID
	state   State
	text    strings.Builder
	sources []types.Source
	finish  string
	block   string
	chunks  int
}

// Placeholder adds the streaming placeholder element for a model turn.
func (c *Coordinator) Placeholder() surface.ElementID {
	id := c.surface.AddMessage(types.RoleModel, "", true)
	c.surface.ScrollToBottom()
	return id
}

// Run consumes cs until io.EOF, rendering into the placeholder id. Chunks
// are handled strictly in order. On a stream error the placeholder is
// removed and the error returned for the caller to surface. cs is closed
// before Run returns.
func (c *Coordinator) Run(ctx context.Context, id surface.ElementID, cs core.ChunkStream) (*Result, error) {
	defer cs.Close()

	start := time.Now()
	t := &turn{id: id, state: StateAwaitingFirstToken}
	for {
		if err := ctx.Err(); err != nil {
			c.surface.Remove(id)
			return nil, err
		}
		chunk, err := cs.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			c.surface.Remove(id)
			return nil, err
		}
		c.apply(t, chunk)
	}
	t.state = StateDone

	res := &Result{
		ElementID:    id,
		Text:         t.text.String(),
		Sources:      types.DedupeSources(t.sources),
		FinishReason: t.finish,
		BlockReason:  t.block,
		Chunks:       t.chunks,
	}
	switch {
	case res.Text == "":
		res.Outcome = OutcomeEmpty
		c.surface.Remove(id)
	case c.classifier.Insufficient(res.Text):
		res.Outcome = OutcomeInsufficient
		c.surface.Remove(id)
		c.surface.AddError(InsufficientMessage)
		c.surface.ScrollToBottom()
	default:
		res.Outcome = OutcomeComplete
		c.surface.UpdateMessage(id, res.Text, false)
		if len(res.Sources) > 0 {
			c.surface.ShowSources(id, res.Sources)
		}
		c.surface.ScrollToBottom()
	}

	c.logger.Debug("stream finished",
		"outcome", res.Outcome.String(),
		"chunks", res.Chunks,
		"chars", len(res.Text),
		"sources", len(res.Sources),
		"finish_reason", res.FinishReason,
		"duration", time.Since(start),
	)
	return res, nil
}

func (c *Coordinator) apply(t *turn, chunk *types.Chunk) {
	if chunk == nil {
		return
	}
	t.chunks++
	// Grounding metadata is read from the final chunk only.
	t.sources = chunk.Sources
	if chunk.FinishReason != "" {
		t.finish = chunk.FinishReason
	}
	if chunk.BlockReason != "" {
		t.block = chunk.BlockReason
	}
	if chunk.Text == "" {
		return
	}
	if t.state == StateAwaitingFirstToken {
		c.firstToken(t)
	}
	t.text.WriteString(chunk.Text)
	c.surface.UpdateMessage(t.id, t.text.String(), true)
	c.surface.ScrollToBottom()
}

// firstToken clears the typing indicator. It runs once per turn.
func (c *Coordinator) firstToken(t *turn) {
	t.state = StateStreaming
	c.surface.UpdateMessage(t.id, "", true)
	c.logger.Debug("first token received", "element", string(t.id))
}
