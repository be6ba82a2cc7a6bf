package server

import "encoding/json"

// Wire envelope, both directions: {type, request_id?, payload?}.

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type outboundMessage struct {
	Type      string         `json:"type"`
	RequestID string         `json:"request_id,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Error codes reported to the client.
const (
	codeUnknownType       = "ws_unknown_type"
	codeConfirmMissing    = "ws_confirm_missing"
	codeOutputNotReady    = "ws_output_not_ready"
	codeCopyFailed        = "ws_copy_failed"
	codeCancelMissing     = "ws_cancel_missing"
	codeSettingsBadFormat = "settings_bad_format"
)

type triggerPayload struct {
	RequestID string `json:"request_id"`
}

type confirmPayload struct {
	RequestID   string `json:"request_id"`
	CandidateID string `json:"candidate_id"`
}

type cancelPayload struct {
	RequestID string `json:"request_id"`
}

type settingsUpdatePayload struct {
	Updates map[string]any `json:"updates"`
}
