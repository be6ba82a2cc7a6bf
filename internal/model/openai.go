package model

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// OpenAIClient calls an OpenAI-compatible Chat Completions endpoint. The
// request timeout applies per call, streaming or not.
type OpenAIClient struct {
	http     *http.Client
	apiKey   string
	model    string
	endpoint string
}

func NewOpenAIClient(model, apiKey, baseURL string, timeout time.Duration) *OpenAIClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OpenAIClient{
		http:     &http.Client{Timeout: timeout},
		apiKey:   apiKey,
		model:    model,
		endpoint: strings.TrimRight(baseURL, "/") + "/chat/completions",
	}
}

func (c *OpenAIClient) Close() error { return nil }

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *imageURLPart `json:"image_url,omitempty"`
}

type imageURLPart struct {
	URL string `json:"url"`
}

type chatCompletionReq struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream,omitempty"`
}

type chatCompletionResp struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type chatStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func buildMessages(req ChatRequest) []chatMessage {
	user := chatMessage{Role: "user", Content: req.User}
	if len(req.Images) > 0 {
		parts := []contentPart{{Type: "text", Text: req.User}}
		for _, img := range req.Images {
			parts = append(parts,
				contentPart{Type: "text", Text: img.Label},
				contentPart{Type: "image_url", ImageURL: &imageURLPart{URL: img.URL}},
			)
		}
		user.Content = parts
	}
	return []chatMessage{
		{Role: "system", Content: req.System},
		user,
	}
}

func (c *OpenAIClient) post(ctx context.Context, body chatCompletionReq, stream bool) (*http.Response, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		const max = 2048
		if len(raw) > max {
			raw = raw[:max]
		}
		return nil, errors.Errorf("chat completions: unexpected status %s: %s", resp.Status, strings.TrimSpace(string(raw)))
	}
	return resp, nil
}

// Complete issues one non-streaming call and returns the message text.
func (c *OpenAIClient) Complete(ctx context.Context, req ChatRequest) (string, error) {
	resp, err := c.post(ctx, chatCompletionReq{Model: c.model, Messages: buildMessages(req)}, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out chatCompletionResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", errors.New("model returned no choices")
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

// Stream issues a streaming call and forwards each text delta. It returns
// the accumulated full text once the stream terminates.
func (c *OpenAIClient) Stream(ctx context.Context, req ChatRequest, onDelta func(delta string)) (string, error) {
	resp, err := c.post(ctx, chatCompletionReq{Model: c.model, Messages: buildMessages(req), Stream: true}, true)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var full strings.Builder
	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return full.String(), err
		}
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			break
		}

		var chunk chatStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return full.String(), errors.Wrap(err, "decode stream chunk")
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		content := chunk.Choices[0].Delta.Content
		if content == "" {
			content = chunk.Choices[0].Message.Content
		}
		if content == "" {
			continue
		}
		full.WriteString(content)
		if onDelta != nil {
			onDelta(content)
		}
	}
	return full.String(), nil
}
