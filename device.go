package deskctl

import (
	"net"
	"strings"
	"time"

	"github.com/cmodk/deskctl/app"
)

type DeviceStatus string

const (
	DeviceOnline  DeviceStatus = "online"
	DeviceOffline DeviceStatus = "offline"
	DeviceUnknown DeviceStatus = "unknown"

	// DeviceStale is never stored. Liveness reports it for an online device
	// whose agent stopped heartbeating.
	DeviceStale DeviceStatus = "stale"
)

const (
	MinPort = 1
	MaxPort = 65535

	maxNameLength = 255
)

type Device struct {
	Id        uint64       `db:"id" json:"id"`
	Name      string       `db:"name" json:"name"`
	Host      string       `db:"ip_address" json:"ip_address"`
	Port      int          `db:"port" json:"port"`
	OwnerId   uint64       `db:"owner_id" json:"owner_id"`
	TeamId    *uint64      `db:"team_id" json:"team_id,omitempty"`
	Status    DeviceStatus `db:"status" json:"status"`
	LastSeen  *time.Time   `db:"last_seen" json:"last_seen,omitempty"`
	Token     string       `db:"token" json:"-"`
	CreatedAt time.Time    `db:"created_at" json:"created_at"`
}

// Liveness is the status a viewer should display at now. The stored status
// is returned unchanged except that an online device not seen within
// staleAfter is reported stale.
func (d *Device) Liveness(now time.Time, staleAfter time.Duration) DeviceStatus {
	if d.Status != DeviceOnline {
		return d.Status
	}
	if d.LastSeen == nil || now.Sub(*d.LastSeen) > staleAfter {
		return DeviceStale
	}
	return DeviceOnline
}

func (d *Device) InTeam(teamId uint64) bool {
	return d.TeamId != nil && *d.TeamId == teamId
}

// ValidateAddress checks the user supplied parts of a device.
func ValidateAddress(name string, host string, port int) error {
	if strings.TrimSpace(name) == "" {
		return newError(CodeValidation, "device name is required")
	}
	if len(name) > maxNameLength {
		return newError(CodeValidation, "device name is longer than %d characters", maxNameLength)
	}

	if port < MinPort || port > MaxPort {
		return &Error{Code: CodeInvalidPort, Message: ErrInvalidPort.Message}
	}

	host = strings.TrimSpace(host)
	if host == "" {
		return newError(CodeValidation, "device host is required")
	}
	if net.ParseIP(host) == nil && !validHostname(host) {
		return newError(CodeValidation, "malformed device host %q", host)
	}

	return nil
}

func validHostname(host string) bool {
	if len(host) > 253 {
		return false
	}
	for _, label := range strings.Split(strings.TrimSuffix(host, "."), ".") {
		if len(label) == 0 || len(label) > 63 {
			return false
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for _, r := range label {
			switch {
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			default:
				return false
			}
		}
	}
	return true
}

type DeviceCriteria struct {
	Id      uint64           `schema:"id" db:"id"`
	OwnerId uint64           `schema:"owner_id" db:"owner_id"`
	TeamId  uint64           `schema:"team_id" db:"team_id"`
	Status  DeviceStatus     `schema:"status" db:"status"`
	Token   string           `schema:"-" db:"token"`
	NoTeam  app.EntityIsNull `schema:"no_team" db:"team_id"`

	// VisibleTo limits the result to devices the user owns or shares a
	// team with.
	VisibleTo VisibleTo `schema:"-"`

	OrderBy string `schema:"-"`
	Limit   int    `schema:"limit"`
	Offset  int    `schema:"offset"`
}
