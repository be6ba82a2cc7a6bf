package model

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompleteReturnsMessageContent(t *testing.T) {
	var gotAuth string
	var gotBody chatCompletionReq
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"  hello  "}}]}`))
	}))
	defer srv.Close()

	client := NewOpenAIClient("gpt-4o", "test-key", srv.URL, time.Second)
	out, err := client.Complete(context.Background(), ChatRequest{System: "sys", User: "usr"})
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "gpt-4o", gotBody.Model)
	assert.False(t, gotBody.Stream)
	require.Len(t, gotBody.Messages, 2)
	assert.Equal(t, "system", gotBody.Messages[0].Role)
	assert.Equal(t, "usr", gotBody.Messages[1].Content)
}

func TestCompleteNoChoicesFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	client := NewOpenAIClient("gpt-4o", "k", srv.URL, time.Second)
	_, err := client.Complete(context.Background(), ChatRequest{User: "u"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}

func TestCompleteNon2xxIncludesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewOpenAIClient("gpt-4o", "k", srv.URL, time.Second)
	_, err := client.Complete(context.Background(), ChatRequest{User: "u"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.Contains(t, err.Error(), "rate limited")
}

func TestStreamForwardsDeltas(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body chatCompletionReq
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.True(t, body.Stream)
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n"))
		w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n"))
		w.Write([]byte(": keep-alive comment\n\n"))
		w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer srv.Close()

	client := NewOpenAIClient("gpt-4o", "k", srv.URL, time.Second)
	var deltas []string
	full, err := client.Stream(context.Background(), ChatRequest{User: "u"}, func(delta string) {
		deltas = append(deltas, delta)
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello", full)
	assert.Equal(t, []string{"Hel", "lo"}, deltas)
}

func TestStreamFallsBackToMessageContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("data: {\"choices\":[{\"message\":{\"content\":\"whole\"}}]}\n\n"))
		w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer srv.Close()

	client := NewOpenAIClient("gpt-4o", "k", srv.URL, time.Second)
	full, err := client.Stream(context.Background(), ChatRequest{User: "u"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "whole", full)
}

func TestStreamEOFWithoutDoneStillReturnsText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"partial\"}}]}\n"))
	}))
	defer srv.Close()

	client := NewOpenAIClient("gpt-4o", "k", srv.URL, time.Second)
	full, err := client.Stream(context.Background(), ChatRequest{User: "u"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "partial", full)
}

func TestBuildMessagesMultimodal(t *testing.T) {
	msgs := buildMessages(ChatRequest{
		System: "sys",
		User:   "usr",
		Images: []InlineImage{{Label: "[Clipboard Image]", URL: "data:image/png;base64,QUJD"}},
	})
	require.Len(t, msgs, 2)

	parts, ok := msgs[1].Content.([]contentPart)
	require.True(t, ok)
	require.Len(t, parts, 3)
	assert.Equal(t, "text", parts[0].Type)
	assert.Equal(t, "usr", parts[0].Text)
	assert.Equal(t, "[Clipboard Image]", parts[1].Text)
	assert.Equal(t, "image_url", parts[2].Type)
	assert.Equal(t, "data:image/png;base64,QUJD", parts[2].ImageURL.URL)
}

func TestBuildMessagesTextOnlyStaysString(t *testing.T) {
	msgs := buildMessages(ChatRequest{System: "sys", User: "usr"})
	require.Len(t, msgs, 2)
	assert.Equal(t, "usr", msgs[1].Content)
}
