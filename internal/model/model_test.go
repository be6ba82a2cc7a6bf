package model

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pasteflow/internal/pipeline"
	"pasteflow/internal/settings"
)

type fakeChat struct {
	completeText string
	completeErr  error
	streamDeltas []string
	streamErr    error

	completeCalls int
	streamCalls   int
	lastReq       ChatRequest
	closed        bool
}

func (f *fakeChat) Complete(_ context.Context, req ChatRequest) (string, error) {
	f.completeCalls++
	f.lastReq = req
	return f.completeText, f.completeErr
}

func (f *fakeChat) Stream(_ context.Context, req ChatRequest, onDelta func(delta string)) (string, error) {
	f.streamCalls++
	f.lastReq = req
	full := ""
	for _, delta := range f.streamDeltas {
		full += delta
		if onDelta != nil {
			onDelta(delta)
		}
	}
	return full, f.streamErr
}

func (f *fakeChat) Close() error {
	f.closed = true
	return nil
}

func validConfig() settings.Config {
	return settings.Config{
		Model: settings.ModelConfig{
			Provider: "openai",
			Name:     "gpt-4o",
			APIKey:   "key",
			BaseURL:  "https://api.example.com/v1",
			Timeout:  time.Second,
		},
	}
}

func TestNewValidatesConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Model.Name = " "
	_, err := New(cfg)
	assert.ErrorIs(t, err, ErrModelNameMissing)

	cfg = validConfig()
	cfg.Model.APIKey = ""
	_, err = New(cfg)
	assert.ErrorIs(t, err, ErrAPIKeyMissing)

	cfg = validConfig()
	cfg.Model.BaseURL = ""
	_, err = New(cfg)
	assert.ErrorIs(t, err, ErrEndpointMissing)

	cfg = validConfig()
	cfg.Model.Provider = "llama-farm"
	_, err = New(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llama-farm")
}

func TestNewDefaultsToOpenAI(t *testing.T) {
	cfg := validConfig()
	cfg.Model.Provider = ""
	adapter, err := New(cfg)
	require.NoError(t, err)
	assert.IsType(t, &OpenAIClient{}, adapter.client)
}

func TestNormalizeEndpoint(t *testing.T) {
	got, err := normalizeEndpoint("api.example.com/v1")
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com/v1", got)

	got, err = normalizeEndpoint("http://localhost:8080/v1")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/v1", got)

	_, err = normalizeEndpoint("")
	assert.ErrorIs(t, err, ErrEndpointMissing)

	_, err = normalizeEndpoint("https://")
	assert.Error(t, err)
}

func TestGenerateIntentsAttachesLabelledImages(t *testing.T) {
	chat := &fakeChat{completeText: `[{"title":"A"}]`}
	adapter := &Adapter{client: chat}

	intents, err := adapter.GenerateIntents(context.Background(), pipeline.Stage1Request{
		SystemPrompt:      "sys",
		UserPrompt:        "usr",
		ClipboardImageURL: "data:image/png;base64,QQ==",
		ScreenshotURL:     "data:image/jpeg;base64,Qg==",
		MaxCandidates:     4,
	})
	require.NoError(t, err)
	require.Len(t, intents, 1)

	require.Len(t, chat.lastReq.Images, 2)
	assert.Equal(t, "[Clipboard Image]", chat.lastReq.Images[0].Label)
	assert.Equal(t, "[Environment Screenshot]", chat.lastReq.Images[1].Label)
	assert.Equal(t, `[{"title":"A"}]`, adapter.LastStage1Raw())
}

func TestGenerateIntentsCapsAtMaxCandidates(t *testing.T) {
	chat := &fakeChat{completeText: `[{"title":"A"},{"title":"B"},{"title":"C"}]`}
	adapter := &Adapter{client: chat}

	intents, err := adapter.GenerateIntents(context.Background(), pipeline.Stage1Request{MaxCandidates: 2})
	require.NoError(t, err)
	require.Len(t, intents, 2)
	assert.Equal(t, "A", intents[0].Title)
	assert.Equal(t, "B", intents[1].Title)
}

func TestGenerateIntentsPropagatesTransportError(t *testing.T) {
	chat := &fakeChat{completeErr: errors.New("boom")}
	adapter := &Adapter{client: chat}

	_, err := adapter.GenerateIntents(context.Background(), pipeline.Stage1Request{MaxCandidates: 4})
	require.Error(t, err)
}

func TestGenerateOutputsStreamsDeltas(t *testing.T) {
	chat := &fakeChat{streamDeltas: []string{"one ", "two"}}
	adapter := &Adapter{client: chat}

	var deltas []string
	res := adapter.GenerateOutputs(context.Background(), pipeline.Stage2Request{
		Candidate: pipeline.IntentCandidate{Title: "T"},
	}, func(delta string) error {
		deltas = append(deltas, delta)
		return nil
	})

	assert.Empty(t, res.Err)
	assert.Equal(t, "one two", res.Output)
	assert.Equal(t, []string{"one ", "two"}, deltas)
	assert.Equal(t, 0, chat.completeCalls)
}

func TestGenerateOutputsFallsBackWhenStreamEmpty(t *testing.T) {
	chat := &fakeChat{completeText: "full text"}
	adapter := &Adapter{client: chat}

	var deltas []string
	res := adapter.GenerateOutputs(context.Background(), pipeline.Stage2Request{
		Candidate: pipeline.IntentCandidate{Title: "T"},
	}, func(delta string) error {
		deltas = append(deltas, delta)
		return nil
	})

	assert.Empty(t, res.Err)
	assert.Equal(t, "full text", res.Output)
	assert.Equal(t, []string{"full text"}, deltas, "fallback text arrives as one synthetic delta")
	assert.Equal(t, 1, chat.completeCalls)
}

func TestGenerateOutputsFallsBackWhenStreamFails(t *testing.T) {
	chat := &fakeChat{streamErr: errors.New("stream broke"), completeText: "recovered"}
	adapter := &Adapter{client: chat}

	res := adapter.GenerateOutputs(context.Background(), pipeline.Stage2Request{
		Candidate: pipeline.IntentCandidate{Title: "T"},
	}, nil)
	assert.Empty(t, res.Err)
	assert.Equal(t, "recovered", res.Output)
}

func TestGenerateOutputsTerminalFailureInResult(t *testing.T) {
	chat := &fakeChat{streamErr: errors.New("stream broke"), completeErr: errors.New("complete broke")}
	adapter := &Adapter{client: chat}

	res := adapter.GenerateOutputs(context.Background(), pipeline.Stage2Request{
		Candidate: pipeline.IntentCandidate{Title: "T"},
	}, nil)
	assert.Equal(t, "T", res.Candidate.Title)
	assert.Empty(t, res.Output)
	assert.Contains(t, res.Err, "complete broke")
}

func TestGenerateOutputsCallbackErrorsDoNotAbort(t *testing.T) {
	chat := &fakeChat{streamDeltas: []string{"a", "b"}}
	adapter := &Adapter{client: chat}

	res := adapter.GenerateOutputs(context.Background(), pipeline.Stage2Request{
		Candidate: pipeline.IntentCandidate{Title: "T"},
	}, func(string) error { return errors.New("sink full") })
	assert.Empty(t, res.Err)
	assert.Equal(t, "ab", res.Output)
}

func TestAdapterCloseClosesClient(t *testing.T) {
	chat := &fakeChat{}
	adapter := &Adapter{client: chat}
	require.NoError(t, adapter.Close())
	assert.True(t, chat.closed)
}

func TestDecodeDataURL(t *testing.T) {
	mime, data, err := decodeDataURL("data:image/png;base64,QUJD")
	require.NoError(t, err)
	assert.Equal(t, "image/png", mime)
	assert.Equal(t, []byte("ABC"), data)

	_, _, err = decodeDataURL("https://example.com/x.png")
	assert.Error(t, err)

	_, _, err = decodeDataURL("data:image/png;base64")
	assert.Error(t, err)
}
