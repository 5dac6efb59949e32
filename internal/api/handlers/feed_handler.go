package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	ws "github.com/scribe-blog/scribe-be/internal/websocket"
)

// FeedHandler upgrades HTTP connections into live-feed websocket clients.
type FeedHandler struct {
	hub *ws.Hub
}

// NewFeedHandler creates a new FeedHandler.
func NewFeedHandler(hub *ws.Hub) *FeedHandler {
	return &FeedHandler{hub: hub}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins (consider tightening this in production).
		return true
	},
}

// Serve handles the websocket connection request. An optional "author"
// query parameter subscribes the client to one author's activity.
func (h *FeedHandler) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade websocket connection")
		return
	}

	client := ws.NewClient(h.hub, conn, r.URL.Query().Get("author"))
	h.hub.Register <- client

	go client.WritePump()
	go func() {
		client.ReadPump(h.handleIncomingMessage)
		h.hub.Unregister <- client
	}()
}

// handleIncomingMessage processes messages received from a feed client.
// The feed is broadcast-only; anything but a ping is rejected.
func (h *FeedHandler) handleIncomingMessage(client *ws.Client, message []byte) {
	var msg ws.Message
	if err := json.Unmarshal(message, &msg); err != nil {
		log.Error().Err(err).Bytes("message", message).Msg("Error decoding websocket message")
		return
	}

	switch msg.Action {
	case "ping":
		h.hub.SendTo(client, ws.NewFeedMessage("pong", nil))
	default:
		log.Warn().Str("action", msg.Action).Msg("Unknown websocket action received")
		h.hub.SendTo(client, ws.NewErrorMessage("Unknown action: "+msg.Action))
	}
}
