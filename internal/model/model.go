// Package model adapts chat-completion providers to the pipeline's backend
// contract: multimodal message building, streaming with non-streaming
// fallback, and stage-1 candidate parsing.
package model

import (
	"context"
	"encoding/base64"
	"net/url"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"pasteflow/internal/pipeline"
	"pasteflow/internal/settings"
)

var (
	ErrModelNameMissing = errors.New("model name is not configured (model.name)")
	ErrAPIKeyMissing    = errors.New("model api key is not configured (model.api_key)")
	ErrEndpointMissing  = errors.New("model endpoint is not configured (model.base_url)")
)

// InlineImage is one image attached to a chat message, labelled so the model
// can tell clipboard content from the environment screenshot.
type InlineImage struct {
	Label string
	URL   string // data URL
}

// ChatRequest is a single system+user exchange, optionally multimodal.
type ChatRequest struct {
	System string
	User   string
	Images []InlineImage
}

// ChatClient is one provider's transport. Stream returns the accumulated
// full text; providers without true streaming deliver it as one delta.
type ChatClient interface {
	Complete(ctx context.Context, req ChatRequest) (string, error)
	Stream(ctx context.Context, req ChatRequest, onDelta func(delta string)) (string, error)
	Close() error
}

// Adapter implements pipeline.Backend on top of a ChatClient.
type Adapter struct {
	client ChatClient

	mu            sync.Mutex
	lastStage1Raw string
}

// New validates the model configuration and builds the provider selected by
// model.provider. All validation failures happen before any network call.
func New(cfg settings.Config) (*Adapter, error) {
	mc := cfg.Model
	if strings.TrimSpace(mc.Name) == "" {
		return nil, ErrModelNameMissing
	}
	if strings.TrimSpace(mc.APIKey) == "" {
		return nil, ErrAPIKeyMissing
	}

	switch strings.ToLower(strings.TrimSpace(mc.Provider)) {
	case "", "openai":
		baseURL, err := normalizeEndpoint(mc.BaseURL)
		if err != nil {
			return nil, err
		}
		return &Adapter{client: NewOpenAIClient(mc.Name, mc.APIKey, baseURL, mc.Timeout)}, nil
	case "gemini":
		client, err := NewGeminiClient(context.Background(), mc.APIKey, mc.Name)
		if err != nil {
			return nil, err
		}
		return &Adapter{client: client}, nil
	default:
		return nil, errors.Errorf("unknown model provider: %s", mc.Provider)
	}
}

// NewBackend is the pipeline factory hook.
func NewBackend(cfg settings.Config) (pipeline.Backend, error) {
	return New(cfg)
}

func normalizeEndpoint(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrEndpointMissing
	}
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + strings.TrimLeft(raw, "/")
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return "", errors.Errorf("model endpoint is invalid: %s", raw)
	}
	return parsed.String(), nil
}

// GenerateIntents performs the stage-1 call and parses the candidate list.
// Parse failures degrade to zero candidates instead of failing the run.
func (a *Adapter) GenerateIntents(ctx context.Context, req pipeline.Stage1Request) ([]pipeline.IntentCandidate, error) {
	chatReq := ChatRequest{System: req.SystemPrompt, User: req.UserPrompt}
	if req.ClipboardImageURL != "" {
		chatReq.Images = append(chatReq.Images, InlineImage{Label: "[Clipboard Image]", URL: req.ClipboardImageURL})
	}
	if req.ScreenshotURL != "" {
		chatReq.Images = append(chatReq.Images, InlineImage{Label: "[Environment Screenshot]", URL: req.ScreenshotURL})
	}

	raw, err := a.client.Complete(ctx, chatReq)
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	a.lastStage1Raw = raw
	a.mu.Unlock()

	intents := ParseIntents(raw)
	if len(intents) > req.MaxCandidates {
		intents = intents[:req.MaxCandidates]
	}
	return intents, nil
}

// GenerateOutputs performs one stage-2 call. Deltas are forwarded to onDelta
// as a best-effort notification channel: callback errors are logged and
// discarded. If streaming fails or yields nothing, it falls back to a single
// non-streaming call and delivers the full text as one synthetic delta.
// Terminal failures are captured in the result, never returned.
func (a *Adapter) GenerateOutputs(ctx context.Context, req pipeline.Stage2Request, onDelta func(delta string) error) pipeline.IntentResult {
	chatReq := ChatRequest{System: req.SystemPrompt, User: req.UserPrompt}
	if req.ClipboardImageURL != "" {
		chatReq.Images = append(chatReq.Images, InlineImage{Label: "[Clipboard Image]", URL: req.ClipboardImageURL})
	}

	notify := func(delta string) {
		if onDelta == nil || delta == "" {
			return
		}
		if err := onDelta(delta); err != nil {
			log.Warn().Err(err).Msg("preview callback failed")
		}
	}

	text, err := a.client.Stream(ctx, chatReq, notify)
	if err != nil || text == "" {
		if err != nil {
			log.Debug().Err(err).Msg("streaming fell back to single response")
		}
		text, err = a.client.Complete(ctx, chatReq)
		if err != nil {
			log.Error().Err(err).Str("intent", req.Candidate.Title).Msg("stage2 generation failed")
			return pipeline.IntentResult{Candidate: req.Candidate, Err: err.Error()}
		}
		notify(text)
	}

	return pipeline.IntentResult{Candidate: req.Candidate, Output: strings.TrimSpace(text)}
}

// LastStage1Raw returns the most recent raw stage-1 response, kept for
// debugging.
func (a *Adapter) LastStage1Raw() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastStage1Raw
}

func (a *Adapter) Close() error { return a.client.Close() }

// decodeDataURL splits a data URL into mime type and payload bytes.
func decodeDataURL(dataURL string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(dataURL, "data:")
	if !ok {
		return "", nil, errors.New("not a data url")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, errors.New("malformed data url")
	}
	mime := strings.TrimSuffix(meta, ";base64")
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, errors.Wrap(err, "decode data url")
	}
	return mime, data, nil
}
