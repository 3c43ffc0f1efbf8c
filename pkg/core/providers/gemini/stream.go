package gemini

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/vango-go/vai-wellness/pkg/core"
	"github.com/vango-go/vai-wellness/pkg/core/types"
)

// chunkStream implements core.ChunkStream for Gemini SSE responses.
// Each SSE event becomes one chunk; events without text, sources or a
// finish reason are skipped.
type chunkStream struct {
	reader   *bufio.Reader
	closer   io.Closer
	err      error
	finished bool
}

var _ core.ChunkStream = (*chunkStream)(nil)

// newChunkStream creates a new chunk stream from an HTTP response body.
func newChunkStream(body io.ReadCloser) *chunkStream {
	return &chunkStream{
		reader: bufio.NewReader(body),
		closer: body,
	}
}

// Next returns the next chunk from the stream.
// Returns nil, io.EOF when the stream is complete.
func (s *chunkStream) Next() (*types.Chunk, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.finished {
		return nil, io.EOF
	}

	for {
		line, err := s.reader.ReadString('\n')
		if err != nil && line == "" {
			if errors.Is(err, io.EOF) {
				s.finished = true
				return nil, io.EOF
			}
			s.err = core.NewNetworkError("stream text", err)
			return nil, s.err
		}

		line = strings.TrimSpace(line)

		// Parse SSE format: "data: <json>"
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			s.finished = true
			return nil, io.EOF
		}

		var event geminiResponse
		if jerr := json.Unmarshal([]byte(data), &event); jerr != nil {
			continue // Skip unparseable chunks
		}

		chunk := &types.Chunk{
			Text:         event.text(),
			Sources:      event.sources(),
			FinishReason: event.finishReason(),
			BlockReason:  event.blockReason(),
		}
		if chunk.Empty() {
			continue
		}
		return chunk, nil
	}
}

// Close releases resources associated with the stream.
func (s *chunkStream) Close() error {
	return s.closer.Close()
}
