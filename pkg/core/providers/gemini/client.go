package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// doRequest sends a non-streaming generateContent request.
func (p *Provider) doRequest(ctx context.Context, op, model string, req *geminiRequest) ([]byte, error) {
	resp, err := p.post(ctx, op, p.endpoint(model, "generateContent", false), req, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, mapTransportError(op, fmt.Errorf("read response: %w", err))
	}
	return respBody, nil
}

// doStreamRequest sends a streamGenerateContent request and returns the SSE body.
func (p *Provider) doStreamRequest(ctx context.Context, model string, req *geminiRequest) (io.ReadCloser, error) {
	resp, err := p.post(ctx, "stream text", p.endpoint(model, "streamGenerateContent", true), req, true)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (p *Provider) post(ctx context.Context, op, endpoint string, req *geminiRequest, stream bool) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	p.setHeaders(httpReq, stream)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, mapTransportError(op, err)
	}

	// Check for errors before returning the body
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, parseError(op, resp)
	}
	return resp, nil
}

func (p *Provider) endpoint(model, method string, sse bool) string {
	u := fmt.Sprintf("%s/models/%s:%s", p.baseURL, url.PathEscape(model), method)
	if sse {
		u += "?alt=sse"
	}
	return u
}

// setHeaders sets the required Gemini API headers.
func (p *Provider) setHeaders(req *http.Request, stream bool) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", p.apiKey)
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}
}
