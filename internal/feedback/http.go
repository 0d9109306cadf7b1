package feedback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// HTTPProvider 呼叫外部代理服務
//
//	POST {base}/generate  Request           -> Response
//	POST {base}/analyze   analyzeRequest    -> Response
//	GET  {base}/health    200 表示可以接受請求
type HTTPProvider struct {
	baseURL string
	client  *http.Client
}

type analyzeRequest struct {
	Speaker   string `json:"speaker"`
	Statement string `json:"statement"`
}

func NewHTTPProvider(baseURL string, client *http.Client) *HTTPProvider {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &HTTPProvider{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (p *HTTPProvider) Generate(ctx context.Context, req Request) (Response, error) {
	return p.post(ctx, "/generate", req)
}

func (p *HTTPProvider) Analyze(ctx context.Context, speaker, statement string) (Response, error) {
	return p.post(ctx, "/analyze", analyzeRequest{Speaker: speaker, Statement: statement})
}

// Ready 檢查外部服務的健康狀態
func (p *HTTPProvider) Ready(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("provider health check returned %d", resp.StatusCode)
	}
	return nil
}

func (p *HTTPProvider) post(ctx context.Context, path string, body any) (Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return Response{}, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return Response{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("call %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Response{}, fmt.Errorf("call %s: unexpected status %d", path, resp.StatusCode)
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Response{}, fmt.Errorf("decode %s response: %w", path, err)
	}
	if strings.TrimSpace(out.Text) == "" {
		return Response{}, fmt.Errorf("call %s: empty response text", path)
	}
	return out, nil
}
