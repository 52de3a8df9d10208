package deskctl

import "time"

// CommandCreated is published after a command row is inserted.
type CommandCreated Command

// CommandStatusChanged is published after every lifecycle transition.
type CommandStatusChanged struct {
	Id          uint64     `json:"id"`
	DeviceId    uint64     `json:"device_id"`
	From        Status     `json:"from"`
	To          Status     `json:"to"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	ExecutedAt  *time.Time `json:"executed_at,omitempty"`
	Error       *string    `json:"error,omitempty"`
}

// DeviceHeartbeat is published when an agent reports liveness.
type DeviceHeartbeat struct {
	DeviceId uint64       `json:"device_id"`
	Status   DeviceStatus `json:"status"`
	LastSeen time.Time    `json:"last_seen,omitempty"`
}
