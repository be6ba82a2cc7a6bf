package model

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	genai "google.golang.org/genai"
)

// GeminiClient is a thin wrapper around the official genai client. It keeps
// to the API call itself; fallback and callback handling live in the Adapter.
type GeminiClient struct {
	cli   *genai.Client
	model string
}

func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, err
	}
	return &GeminiClient{cli: cli, model: model}, nil
}

func (g *GeminiClient) Close() error { return nil }

func (g *GeminiClient) buildParts(req ChatRequest) ([]*genai.Part, error) {
	parts := []*genai.Part{{Text: req.System + "\n\n" + req.User}}
	for _, img := range req.Images {
		mime, data, err := decodeDataURL(img.URL)
		if err != nil {
			return nil, errors.Wrapf(err, "inline image %s", img.Label)
		}
		parts = append(parts,
			&genai.Part{Text: img.Label},
			&genai.Part{InlineData: &genai.Blob{MIMEType: mime, Data: data}},
		)
	}
	return parts, nil
}

// Complete issues one generate call and returns the first candidate's text.
func (g *GeminiClient) Complete(ctx context.Context, req ChatRequest) (string, error) {
	parts, err := g.buildParts(req)
	if err != nil {
		return "", err
	}
	resp, err := g.cli.Models.GenerateContent(ctx, g.model, []*genai.Content{{Parts: parts}}, nil)
	if err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("model returned no candidates")
	}
	return strings.TrimSpace(resp.Candidates[0].Content.Parts[0].Text), nil
}

// Stream completes in a single call and delivers the full text as one
// synthetic delta.
func (g *GeminiClient) Stream(ctx context.Context, req ChatRequest, onDelta func(delta string)) (string, error) {
	text, err := g.Complete(ctx, req)
	if err != nil {
		return "", err
	}
	if onDelta != nil && text != "" {
		onDelta(text)
	}
	return text, nil
}
