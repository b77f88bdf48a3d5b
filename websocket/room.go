package websocket

import (
	"sync"
	"time"

	"trailsafe/models"
)

// Room fans frames out to every connection subscribed to one tour.
type Room struct {
	tourID  string
	clients map[*Client]bool

	messagesSent int64
	lastActivity time.Time

	mutex sync.RWMutex
}

func NewRoom(tourID string) *Room {
	return &Room{
		tourID:       tourID,
		clients:      make(map[*Client]bool),
		lastActivity: time.Now(),
	}
}

func (r *Room) AddClient(client *Client) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.clients[client] = true
	r.lastActivity = time.Now()
}

func (r *Room) RemoveClient(client *Client) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	delete(r.clients, client)
}

// Broadcast delivers the frame to every member and returns the connections
// whose send buffers were full, for the hub to prune.
func (r *Room) Broadcast(message models.WSMessage) []*Client {
	r.mutex.Lock()
	clients := make([]*Client, 0, len(r.clients))
	for client := range r.clients {
		clients = append(clients, client)
	}
	r.lastActivity = time.Now()
	r.mutex.Unlock()

	var dead []*Client
	for _, client := range clients {
		if client.trySend(message) {
			r.mutex.Lock()
			r.messagesSent++
			r.mutex.Unlock()
		} else {
			dead = append(dead, client)
		}
	}
	return dead
}

func (r *Room) HasClient(client *Client) bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.clients[client]
}

func (r *Room) IsEmpty() bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.clients) == 0
}

func (r *Room) ClientCount() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.clients)
}

func (r *Room) EntityIDs() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	ids := make([]string, 0, len(r.clients))
	for client := range r.clients {
		ids = append(ids, client.entityID)
	}
	return ids
}
