package types

// Source is one grounding citation.
type Source struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

// Chunk is one increment of a streamed text response.
type Chunk struct {
	// Text is the delta carried by this chunk.
	Text string
	// Sources are the citations attached to this chunk, usually only the last.
	Sources []Source
	// FinishReason is set on the terminal chunk.
	FinishReason string
	// BlockReason is set when the provider refused the prompt outright.
	BlockReason string
}

// DedupeSources drops sources without a URI and repeated URIs.
// The first occurrence wins and order is preserved. Titles default to the URI.
func DedupeSources(sources []Source) []Source {
	if len(sources) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(sources))
	out := make([]Source, 0, len(sources))
	for _, s := range sources {
		if s.URI == "" {
			continue
		}
		if _, ok := seen[s.URI]; ok {
			continue
		}
		seen[s.URI] = struct{}{}
		if s.Title == "" {
			s.Title = s.URI
		}
		out = append(out, s)
	}
	return out
}

// Empty reports whether the chunk carries nothing worth delivering.
func (c *Chunk) Empty() bool {
	return c.Text == "" && len(c.Sources) == 0 && c.FinishReason == "" && c.BlockReason == ""
}
