package server

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"pasteflow/internal/clipboard"
	"pasteflow/internal/pipeline"
	"pasteflow/internal/settings"
)

// Coordinator is the slice of pipeline.Coordinator the protocol layer needs.
type Coordinator interface {
	StartRun(sink pipeline.EventSink, requestID string) string
	CancelRun(runID string) bool
	CancelAll()
	HandleEvent(ev pipeline.Event)
	Result(runID string) *pipeline.RunResult
	CandidateOutput(runID, candidateID string) (string, bool)
}

// sender delivers one outbound message; implementations serialize writes.
type sender interface {
	send(out outboundMessage) error
}

// session binds one client connection to the coordinator and settings store.
// A protocol error only ever produces an error message on this connection.
type session struct {
	conn   sender
	coord  Coordinator
	store  *settings.Store
	clip   clipboard.Writer
	paster clipboard.Paster
}

func (s *session) handle(msg inboundMessage) {
	switch msg.Type {
	case "trigger_run":
		s.handleTrigger(msg.Payload)
	case "confirm_candidate":
		s.handleConfirm(msg.Payload)
	case "cancel_run":
		s.handleCancel(msg.Payload)
	case "update_settings":
		s.handleSettingsUpdate(msg.Payload)
	case "get_settings":
		s.send(outboundMessage{Type: "settings", Payload: map[string]any{"settings": s.store.Raw()}})
	default:
		log.Warn().Str("type", msg.Type).Msg("unknown ws message type")
		s.sendError(codeUnknownType, "unknown message type: "+msg.Type, "")
	}
}

func (s *session) handleTrigger(raw json.RawMessage) {
	var payload triggerPayload
	decode(raw, &payload)
	log.Info().Str("request_id", payload.RequestID).Msg("trigger_run received")

	if err := s.store.Reload(); err != nil {
		log.Warn().Err(err).Msg("settings reload failed; using previous values")
	}

	sink := pipeline.SinkFunc(func(ev pipeline.Event) {
		s.coord.HandleEvent(ev)
		s.sendEvent(ev)
	})
	runID := s.coord.StartRun(sink, payload.RequestID)
	s.send(outboundMessage{Type: "run_accepted", RequestID: runID})
}

func (s *session) handleConfirm(raw json.RawMessage) {
	var payload confirmPayload
	decode(raw, &payload)
	if payload.RequestID == "" || payload.CandidateID == "" {
		s.sendError(codeConfirmMissing, "confirm_candidate requires request_id and candidate_id", "")
		return
	}

	output, ok := s.coord.CandidateOutput(payload.RequestID, payload.CandidateID)
	if !ok {
		s.sendError(codeOutputNotReady, "candidate output is not ready yet", payload.RequestID)
		return
	}

	// When the manual candidate is confirmed and the clipboard already holds
	// the original image, copy-back would only clobber it.
	skipCopy := false
	if payload.CandidateID == pipeline.ManualCandidateID {
		if res := s.coord.Result(payload.RequestID); res != nil && res.Clipboard != nil {
			skipCopy = res.Clipboard.OriginalHasImage
		}
	}

	if !skipCopy {
		if err := s.clip.Copy(output); err != nil {
			s.sendError(codeCopyFailed, "copy to clipboard failed: "+err.Error(), payload.RequestID)
			return
		}
	}
	autoPaste := s.paster.Paste()

	s.send(outboundMessage{
		Type:      "paste_ready",
		RequestID: payload.RequestID,
		Payload: map[string]any{
			"candidate_id": payload.CandidateID,
			"length":       len(output),
			"auto_paste":   autoPaste,
		},
	})
}

func (s *session) handleCancel(raw json.RawMessage) {
	var payload cancelPayload
	decode(raw, &payload)
	if payload.RequestID == "" {
		s.sendError(codeCancelMissing, "cancel_run requires request_id", "")
		return
	}
	cancelled := s.coord.CancelRun(payload.RequestID)
	s.send(outboundMessage{
		Type:      "run_cancelled",
		RequestID: payload.RequestID,
		Payload:   map[string]any{"cancelled": cancelled},
	})
}

func (s *session) handleSettingsUpdate(raw json.RawMessage) {
	var payload settingsUpdatePayload
	decode(raw, &payload)
	if payload.Updates == nil {
		s.sendError(codeSettingsBadFormat, "settings updates payload is invalid", "")
		return
	}
	updated, err := s.store.ApplyUpdates(payload.Updates)
	if err != nil {
		s.sendError(codeSettingsBadFormat, "settings update failed: "+err.Error(), "")
		return
	}
	s.send(outboundMessage{Type: "settings_updated", Payload: map[string]any{"settings": updated}})
}

func (s *session) sendEvent(ev pipeline.Event) {
	s.send(outboundMessage{Type: ev.Type, RequestID: ev.RunID, Payload: ev.Payload})
}

func (s *session) sendError(code, message, requestID string) {
	payload := map[string]any{"code": code, "message": message}
	if requestID != "" {
		payload["request_id"] = requestID
	}
	s.send(outboundMessage{Type: "error", Payload: payload})
}

func (s *session) send(out outboundMessage) {
	if err := s.conn.send(out); err != nil {
		log.Warn().Err(err).Str("type", out.Type).Msg("ws send failed")
	}
}

func decode(raw json.RawMessage, v any) {
	if len(raw) == 0 {
		return
	}
	if err := json.Unmarshal(raw, v); err != nil {
		log.Debug().Err(err).Msg("malformed ws payload")
	}
}
