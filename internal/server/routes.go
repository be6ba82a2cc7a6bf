package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"pasteflow/internal/clipboard"
	"pasteflow/internal/settings"
)

const (
	wsWriteWait = 10 * time.Second
	wsPongWait  = 60 * time.Second
	wsPingEvery = (wsPongWait * 9) / 10
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Local daemon; the GUI client connects from a file:// or app origin.
		return true
	},
}

// Deps carries the collaborators every handler needs.
type Deps struct {
	Store     *settings.Store
	Coord     Coordinator
	Clipboard clipboard.Writer
	Paster    clipboard.Paster
}

// NewRouter builds the daemon's route table.
func NewRouter(deps Deps) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("/settings", func(w http.ResponseWriter, r *http.Request) {
		handleSettings(w, r, deps.Store)
	})
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		handleWS(w, r, deps)
	})
	return mux
}

func handleSettings(w http.ResponseWriter, r *http.Request, store *settings.Store) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, map[string]any{"settings": store.Raw()})
	case http.MethodPost:
		var payload settingsUpdatePayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Updates == nil {
			http.Error(w, "settings updates payload is invalid", http.StatusBadRequest)
			return
		}
		updated, err := store.ApplyUpdates(payload.Updates)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]any{"settings": updated})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("write response failed")
	}
}

// wsConn serializes all outbound writes on one connection. Events from
// concurrent runs and direct replies share the same mutex, so frames never
// interleave.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) send(out outboundMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
		return err
	}
	return c.conn.WriteJSON(out)
}

func (c *wsConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.PingMessage, nil)
}

func handleWS(w http.ResponseWriter, r *http.Request, deps Deps) {
	raw, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer raw.Close()
	log.Info().Msg("websocket connected")

	conn := &wsConn{conn: raw}
	sess := &session{
		conn:   conn,
		coord:  deps.Coord,
		store:  deps.Store,
		clip:   deps.Clipboard,
		paster: deps.Paster,
	}

	sess.send(outboundMessage{Type: "ready", Payload: map[string]any{"settings": deps.Store.Raw()}})

	if err := raw.SetReadDeadline(time.Now().Add(wsPongWait)); err != nil {
		return
	}
	raw.SetPongHandler(func(string) error {
		return raw.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(wsPingEvery)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.ping(); err != nil {
					return
				}
			}
		}
	}()

	for {
		var msg inboundMessage
		if err := raw.ReadJSON(&msg); err != nil {
			log.Info().Msg("websocket disconnected")
			deps.Coord.CancelAll()
			return
		}
		log.Info().Str("type", msg.Type).Msg("websocket message")
		sess.handle(msg)
	}
}
