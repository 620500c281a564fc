package model

// Status is the user-visible presence value carried by status_update frames
// and user_status fanout. Online/offline are derived from session lifecycle;
// away and busy are client-declared.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
	StatusAway    Status = "away"
	StatusBusy    Status = "busy"
)

func (s Status) Valid() bool {
	switch s {
	case StatusOnline, StatusOffline, StatusAway, StatusBusy:
		return true
	}
	return false
}
