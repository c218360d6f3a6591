package websocket

import (
	"context"
	"errors"
	"sync"

	"github.com/auditflow/api/pkg/domain/scanjob"
	"github.com/auditflow/api/pkg/logger"
)

const maxConnectionsPerUser = 10

// ErrTooManyConnections is returned by Register when a user already holds
// the maximum number of live connections.
var ErrTooManyConnections = errors.New("websocket: connection limit exceeded")

// Hub tracks live connections per user and pushes status events to them.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{} // userID -> connections
	logger  *logger.Logger
}

// NewHub creates a new Hub.
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		logger:  log.With("component", "websocket_hub"),
	}
}

// Register adds a connection for its user.
func (h *Hub) Register(client *Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns := h.clients[client.UserID]
	if len(conns) >= maxConnectionsPerUser {
		h.logger.Warn("connection limit exceeded",
			"user_id", client.UserID,
			"max", maxConnectionsPerUser,
		)
		return ErrTooManyConnections
	}
	if conns == nil {
		conns = make(map[*Client]struct{})
		h.clients[client.UserID] = conns
	}
	conns[client] = struct{}{}

	h.logger.Debug("client registered", "client_id", client.ID, "user_id", client.UserID)
	return nil
}

// Unregister removes a connection. Unknown connections are ignored.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns, ok := h.clients[client.UserID]
	if !ok {
		return
	}
	if _, ok := conns[client]; !ok {
		return
	}
	delete(conns, client)
	if len(conns) == 0 {
		delete(h.clients, client.UserID)
	}

	h.logger.Debug("client unregistered", "client_id", client.ID, "user_id", client.UserID)
}

// Deliver sends a status event to every connection of userID. A user with
// no connections is a no-op.
func (h *Hub) Deliver(userID string, ev scanjob.StatusEvent) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients[userID]))
	for c := range h.clients[userID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	msg := NewMessage(MessageTypeEvent).WithData(ev)
	for _, c := range targets {
		c.SendMessage(msg)
	}

	h.logger.Debug("delivered scan status",
		"user_id", userID,
		"scan_id", ev.ScanID,
		"recipients", len(targets),
	)
}

// PublishStatus delivers ev to the local connections of userID. It lets the
// hub act as the status publisher when API and worker share a process.
func (h *Hub) PublishStatus(_ context.Context, userID string, ev scanjob.StatusEvent) error {
	h.Deliver(userID, ev)
	return nil
}

// ConnectionCount returns the number of live connections of userID.
func (h *Hub) ConnectionCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// Close drops every connection.
func (h *Hub) Close() {
	h.mu.Lock()
	all := h.clients
	h.clients = make(map[string]map[*Client]struct{})
	h.mu.Unlock()

	for _, conns := range all {
		for c := range conns {
			c.Close()
		}
	}
	h.logger.Info("websocket hub closed")
}
