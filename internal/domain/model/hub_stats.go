package model

// HubStats is a point-in-time snapshot of the session registry, surfaced by
// the admin status endpoint and the top dashboard.
type HubStats struct {
	TotalUsers       int    `json:"total_users"`
	TotalConnections int    `json:"total_connections"`
	DroppedEvents    uint64 `json:"dropped_events"`
	SweptSessions    uint64 `json:"swept_sessions"`
}
