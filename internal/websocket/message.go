package websocket

import "encoding/json"

// Message defines the structure for websocket messages.
type Message struct {
	Action  string      `json:"action"`
	Payload interface{} `json:"payload"`
}

// NewErrorMessage builds an encoded error message for a client.
func NewErrorMessage(text string) []byte {
	data, _ := json.Marshal(Message{Action: "error", Payload: text})
	return data
}

// NewFeedMessage builds an encoded feed event, e.g. "post.created" with the
// post as payload.
func NewFeedMessage(action string, payload interface{}) []byte {
	data, _ := json.Marshal(Message{Action: action, Payload: payload})
	return data
}
