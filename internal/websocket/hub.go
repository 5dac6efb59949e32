package websocket

import "github.com/rs/zerolog/log"

// targetedMessage is a broadcast scoped to one author's followers.
type targetedMessage struct {
	authorID string
	message  []byte
}

// clientMessage is a message for a single client.
type clientMessage struct {
	client  *Client
	message []byte
}

// Hub maintains the set of connected feed clients and broadcasts messages
// to them. The clients and subscriptions maps are owned by the Run
// goroutine; all other goroutines reach them through the channels.
type Hub struct {
	// Registered clients.
	clients map[*Client]bool

	// Inbound messages for global broadcast.
	Broadcast chan []byte

	// Register requests from the clients.
	Register chan *Client

	// Unregister requests from clients.
	Unregister chan *Client

	// Broadcasts scoped to one author's followers.
	broadcastTo chan targetedMessage

	// Messages for a single client.
	direct chan clientMessage

	// A map of author IDs to the set of clients following that author.
	subscriptions map[string]map[*Client]bool
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		Broadcast:     make(chan []byte),
		Register:      make(chan *Client),
		Unregister:    make(chan *Client),
		broadcastTo:   make(chan targetedMessage),
		direct:        make(chan clientMessage),
		clients:       make(map[*Client]bool),
		subscriptions: make(map[string]map[*Client]bool),
	}
}

// Run starts the Hub's message processing loop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.clients[client] = true
			log.Info().Int("total_clients", len(h.clients)).Msg("Feed client connected")
			// A client may follow an author from the moment it connects.
			if client.AuthorID != "" {
				h.addSubscription(client, client.AuthorID)
			}
		case client := <-h.Unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
				h.removeSubscription(client)
				log.Info().Int("total_clients", len(h.clients)).Msg("Feed client disconnected")
			}
		case message := <-h.Broadcast:
			for client := range h.clients {
				h.send(client, message)
			}
		case tm := <-h.broadcastTo:
			for client := range h.subscriptions[tm.authorID] {
				h.send(client, tm.message)
			}
		case cm := <-h.direct:
			if h.clients[cm.client] {
				h.send(cm.client, cm.message)
			}
		}
	}
}

// BroadcastTo sends a message to all clients following a specific author.
func (h *Hub) BroadcastTo(authorID string, message []byte) {
	h.broadcastTo <- targetedMessage{authorID: authorID, message: message}
}

// SendTo sends a message to a single client. Clients the hub has already
// evicted are skipped.
func (h *Hub) SendTo(client *Client, message []byte) {
	h.direct <- clientMessage{client: client, message: message}
}

// send delivers a message to a client, evicting it when its buffer is
// full. Only the Run goroutine may call this.
func (h *Hub) send(client *Client, message []byte) {
	select {
	case client.Send <- message:
	default:
		close(client.Send)
		delete(h.clients, client)
		h.removeSubscription(client)
	}
}

func (h *Hub) addSubscription(client *Client, authorID string) {
	if h.subscriptions[authorID] == nil {
		h.subscriptions[authorID] = make(map[*Client]bool)
	}
	h.subscriptions[authorID][client] = true
}

func (h *Hub) removeSubscription(client *Client) {
	for authorID, subs := range h.subscriptions {
		if _, ok := subs[client]; ok {
			delete(subs, client)
			if len(subs) == 0 {
				delete(h.subscriptions, authorID)
			}
		}
	}
}
