package model

// SystemStatus is the admin-facing health snapshot: registry counters plus
// liveness of the backing stores and the fanout consumer.
type SystemStatus struct {
	Service       string   `json:"service"`
	Version       string   `json:"version"`
	UptimeSeconds int64    `json:"uptime_seconds"`
	Hub           HubStats `json:"hub"`
	Database      string   `json:"database"`
	Cache         string   `json:"cache"`
	Consumer      string   `json:"consumer"`
	Timestamp     int64    `json:"timestamp"`
}

const (
	ComponentUp      = "up"
	ComponentDown    = "down"
	ComponentStopped = "stopped"
)
