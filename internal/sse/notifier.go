package sse

import (
	"github.com/GTDGit/gtd_catalog/internal/models"
)

// SyncNotifier forwards catalog sync events to the hub. Each SSE frame is
// named after the event type ("brand:progress", "done", ...).
type SyncNotifier struct {
	hub *Hub
}

// NewSyncNotifier creates a notifier backed by the given Hub.
func NewSyncNotifier(hub *Hub) *SyncNotifier {
	return &SyncNotifier{hub: hub}
}

// Observe broadcasts ev when anyone is listening.
func (n *SyncNotifier) Observe(ev models.SyncEvent) {
	if n.hub.ClientCount() == 0 {
		return
	}
	n.hub.Broadcast(string(ev.EventType()), ev)
}
