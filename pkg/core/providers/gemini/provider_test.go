package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vango-go/vai-wellness/pkg/core"
	"github.com/vango-go/vai-wellness/pkg/core/types"
)

type capturedRequest struct {
	Path   string
	Query  string
	APIKey string
	Body   map[string]any
}

type requestLog struct {
	mu       sync.Mutex
	requests []capturedRequest
}

func (l *requestLog) all() []capturedRequest {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]capturedRequest(nil), l.requests...)
}

func newTestServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*Provider, *requestLog) {
	t.Helper()
	log := &requestLog{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(raw, &body)
		log.mu.Lock()
		log.requests = append(log.requests, capturedRequest{
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			APIKey: r.Header.Get("x-goog-api-key"),
			Body:   body,
		})
		log.mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return New("test-key", WithBaseURL(srv.URL), WithHTTPClient(srv.Client())), log
}

func writeSSE(w http.ResponseWriter, events ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	for _, e := range events {
		fmt.Fprintf(w, "data: %s\r\n\r\n", e)
	}
}

func drain(t *testing.T, s core.ChunkStream) []*types.Chunk {
	t.Helper()
	var out []*types.Chunk
	for {
		c, err := s.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, c)
	}
}

func TestStreamText_ChunksAndGrounding(t *testing.T) {
	p, captured := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeSSE(w,
			`{"candidates":[{"content":{"role":"model","parts":[{"text":"Walking "}]}}]}`,
			`{"candidates":[{"content":{"role":"model","parts":[{"text":"thinking...","thought":true},{"text":"helps."}]}}]}`,
			`{"usageMetadata":{"promptTokenCount":3}}`,
			`{"candidates":[{"content":{"role":"model","parts":[]},"finishReason":"STOP","groundingMetadata":{"groundingChunks":[{"web":{"uri":"https://a.example","title":"A"}},{"retrievedContext":{"uri":"https://b.example"}},{}]}}]}`,
		)
	})

	history := []types.Message{
		types.NewMessage(types.RoleUser, types.TextPart("hi")),
		types.NewMessage(types.RoleModel, types.TextPart("hello")),
	}
	stream, err := p.StreamText(context.Background(), &types.TextRequest{
		Model:           "gemini/gemini-2.5-flash",
		System:          "be kind",
		History:         history,
		Content:         types.NewMessage(types.RoleUser, types.InlinePart("image/png", []byte{1, 2}), types.TextPart("what is this")),
		ThinkingBudget:  24576,
		SearchGrounding: true,
	})
	require.NoError(t, err)
	defer stream.Close()

	chunks := drain(t, stream)
	require.Len(t, chunks, 3)
	assert.Equal(t, "Walking ", chunks[0].Text)
	assert.Equal(t, "helps.", chunks[1].Text, "thought parts are hidden")
	assert.Equal(t, "STOP", chunks[2].FinishReason)
	assert.Equal(t, []types.Source{
		{URI: "https://a.example", Title: "A"},
		{URI: "https://b.example"},
	}, chunks[2].Sources)

	require.Len(t, captured.all(), 1)
	req := captured.all()[0]
	assert.Equal(t, "/models/gemini-2.5-flash:streamGenerateContent", req.Path)
	assert.Equal(t, "alt=sse", req.Query)
	assert.Equal(t, "test-key", req.APIKey)

	contents := req.Body["contents"].([]any)
	require.Len(t, contents, 3)
	last := contents[2].(map[string]any)
	assert.Equal(t, "user", last["role"])
	parts := last["parts"].([]any)
	require.Len(t, parts, 2)
	assert.Contains(t, parts[0], "inlineData", "attachment precedes the text")
	assert.Equal(t, "what is this", parts[1].(map[string]any)["text"])

	assert.Equal(t, []any{map[string]any{"googleSearch": map[string]any{}}}, req.Body["tools"])
	gen := req.Body["generationConfig"].(map[string]any)
	assert.EqualValues(t, 24576, gen["thinkingConfig"].(map[string]any)["thinkingBudget"])
	assert.Equal(t, "be kind", req.Body["systemInstruction"].(map[string]any)["parts"].([]any)[0].(map[string]any)["text"])
}

func TestStreamText_OmitsOptionalConfig(t *testing.T) {
	p, captured := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeSSE(w, `{"candidates":[{"content":{"parts":[{"text":"ok"}]},"finishReason":"STOP"}]}`)
	})
	stream, err := p.StreamText(context.Background(), &types.TextRequest{
		Model:   "gemini-2.5-flash",
		Content: types.NewMessage(types.RoleUser, types.TextPart("hi")),
	})
	require.NoError(t, err)
	drain(t, stream)

	body := captured.all()[0].Body
	assert.NotContains(t, body, "tools")
	assert.NotContains(t, body, "generationConfig")
	assert.NotContains(t, body, "systemInstruction")
}

func TestStreamText_PromptBlocked(t *testing.T) {
	p, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeSSE(w, `{"promptFeedback":{"blockReason":"SAFETY"}}`)
	})
	stream, err := p.StreamText(context.Background(), &types.TextRequest{
		Model:   "gemini-2.5-flash",
		Content: types.NewMessage(types.RoleUser, types.TextPart("x")),
	})
	require.NoError(t, err)
	chunks := drain(t, stream)
	require.Len(t, chunks, 1)
	assert.Equal(t, "SAFETY", chunks[0].BlockReason)
	assert.Empty(t, chunks[0].Text)
}

func TestStreamText_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   core.Kind
	}{
		{"429", http.StatusTooManyRequests, `{"error":{"code":429,"message":"quota","status":"RESOURCE_EXHAUSTED"}}`, core.KindRateLimited},
		{"resource exhausted status", http.StatusBadRequest, `{"error":{"code":400,"message":"quota","status":"RESOURCE_EXHAUSTED"}}`, core.KindRateLimited},
		{"unavailable", http.StatusServiceUnavailable, `{"error":{"code":503,"message":"overloaded","status":"UNAVAILABLE"}}`, core.KindNetwork},
		{"bad request", http.StatusBadRequest, `{"error":{"code":400,"message":"bad","status":"INVALID_ARGUMENT"}}`, core.KindUnknown},
		{"unparseable", http.StatusInternalServerError, `oops`, core.KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Retry-After", "7")
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})
			_, err := p.StreamText(context.Background(), &types.TextRequest{
				Model:   "gemini-2.5-flash",
				Content: types.NewMessage(types.RoleUser, types.TextPart("x")),
			})
			require.Error(t, err)
			assert.Equal(t, tt.want, core.KindOf(err))

			var ce *core.Error
			require.ErrorAs(t, err, &ce)
			require.NotNil(t, ce.RetryAfter)
			assert.Equal(t, 7, *ce.RetryAfter)
		})
	}
}

func TestStreamText_UnreachableServerIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	p := New("k", WithBaseURL(url))
	_, err := p.StreamText(context.Background(), &types.TextRequest{
		Model:   "gemini-2.5-flash",
		Content: types.NewMessage(types.RoleUser, types.TextPart("x")),
	})
	assert.Equal(t, core.KindNetwork, core.KindOf(err))
}

func TestGenerateImage_CollectsAllParts(t *testing.T) {
	p, captured := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"parts":[
			{"text":"Here is your salad."},
			{"inlineData":{"mimeType":"image/png","data":"iVBORw=="}}
		]},"finishReason":"STOP"}]}`)
	})
	resp, err := p.GenerateImage(context.Background(), &types.ImageRequest{
		Model:   "gemini-2.5-flash-image",
		Content: types.NewMessage(types.RoleUser, types.TextPart("generate an image of a salad")),
	})
	require.NoError(t, err)

	img, ok := resp.FirstImage()
	require.True(t, ok, "image found after a leading text part")
	assert.Equal(t, "image/png", img.MIMEType)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, img.Data)
	assert.Equal(t, "Here is your salad.", resp.Text())
	assert.Equal(t, "STOP", resp.FinishReason)

	req := captured.all()[0]
	assert.Equal(t, "/models/gemini-2.5-flash-image:generateContent", req.Path)
	gen := req.Body["generationConfig"].(map[string]any)
	assert.Equal(t, []any{"IMAGE", "TEXT"}, gen["responseModalities"])
}

func TestGenerateImage_Blocked(t *testing.T) {
	p, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"promptFeedback":{"blockReason":"PROHIBITED_CONTENT"}}`)
	})
	resp, err := p.GenerateImage(context.Background(), &types.ImageRequest{
		Model:   "gemini-2.5-flash-image",
		Content: types.NewMessage(types.RoleUser, types.TextPart("x")),
	})
	require.NoError(t, err)
	assert.Equal(t, "PROHIBITED_CONTENT", resp.BlockReason)
	_, ok := resp.FirstImage()
	assert.False(t, ok)
}

func TestSynthesizeSpeech(t *testing.T) {
	p, captured := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"parts":[
			{"inlineData":{"mimeType":"audio/L16;codec=pcm;rate=24000","data":"AAABAA=="}}
		]}}]}`)
	})
	resp, err := p.SynthesizeSpeech(context.Background(), &types.SpeechRequest{
		Model: "gemini-2.5-flash-preview-tts",
		Text:  "Drink water.",
		Voice: "Kore",
	})
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 1, 0}, resp.Audio)
	assert.Equal(t, 24000, resp.SampleRate)

	gen := captured.all()[0].Body["generationConfig"].(map[string]any)
	assert.Equal(t, []any{"AUDIO"}, gen["responseModalities"])
	voice := gen["speechConfig"].(map[string]any)["voiceConfig"].(map[string]any)["prebuiltVoiceConfig"].(map[string]any)
	assert.Equal(t, "Kore", voice["voiceName"])
}

func TestSynthesizeSpeech_NoAudio(t *testing.T) {
	p, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"sorry"}]}}]}`)
	})
	resp, err := p.SynthesizeSpeech(context.Background(), &types.SpeechRequest{Model: "tts", Text: "x"})
	require.NoError(t, err)
	assert.Empty(t, resp.Audio)
}

func TestTranslateMessages_SkipsErrorEntries(t *testing.T) {
	contents := translateMessages([]types.Message{
		types.NewMessage(types.RoleUser, types.TextPart("a")),
		types.NewMessage(types.RoleError, types.TextPart("boom")),
		types.NewMessage(types.RoleModel, types.TextPart("b")),
	})
	require.Len(t, contents, 2)
	assert.Equal(t, "user", contents[0].Role)
	assert.Equal(t, "model", contents[1].Role)
}

func TestStripProviderPrefix(t *testing.T) {
	assert.Equal(t, "gemini-2.5-flash", stripProviderPrefix("gemini/gemini-2.5-flash"))
	assert.Equal(t, "gemini-2.5-flash", stripProviderPrefix("gemini-2.5-flash"))
	assert.Equal(t, "models/gemini-2.5-flash", stripProviderPrefix("models/gemini-2.5-flash"))
}

func TestChunkStream_HandlesMissingTrailingNewline(t *testing.T) {
	body := io.NopCloser(strings.NewReader(`data: {"candidates":[{"content":{"parts":[{"text":"end"}]}}]}`))
	chunks := drain(t, newChunkStream(body))
	require.Len(t, chunks, 1)
	assert.Equal(t, "end", chunks[0].Text)
}
