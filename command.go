package deskctl

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusDelivered Status = "delivered"
	StatusExecuted  Status = "executed"
	StatusFailed    Status = "failed"
)

// transitions lists every legal lifecycle edge. Anything not listed,
// including a status to itself, is an InvalidTransition.
var transitions = map[Status][]Status{
	StatusPending:   {StatusDelivered, StatusFailed},
	StatusDelivered: {StatusExecuted, StatusFailed},
}

func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusDelivered, StatusExecuted, StatusFailed:
		return Status(s), nil
	}
	return "", newError(CodeValidation, "unknown command status %q", s)
}

func (s Status) CanTransition(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Sources returns the statuses from which s is reachable.
func (s Status) Sources() []Status {
	var from []Status
	for source, nexts := range transitions {
		for _, next := range nexts {
			if next == s {
				from = append(from, source)
			}
		}
	}
	sort.Slice(from, func(i, j int) bool { return from[i] < from[j] })
	return from
}

func (s Status) Terminal() bool {
	return s == StatusExecuted || s == StatusFailed
}

type Kind string

const (
	KindUnmuteZoom Kind = "unmute_zoom"
	KindNextTrack  Kind = "next_track"
)

// PayloadValidator checks the payload of one command kind.
type PayloadValidator func(Payload) error

var (
	kindsLock    sync.RWMutex
	commandKinds = map[Kind]PayloadValidator{
		KindUnmuteZoom: noPayload,
		KindNextTrack:  validateNextTrack,
	}
)

// RegisterKind adds or replaces a command kind. A nil validator accepts any
// payload.
func RegisterKind(kind Kind, validate PayloadValidator) {
	kindsLock.Lock()
	defer kindsLock.Unlock()

	if validate == nil {
		validate = func(Payload) error { return nil }
	}
	commandKinds[kind] = validate
}

func Kinds() []Kind {
	kindsLock.RLock()
	defer kindsLock.RUnlock()

	kinds := make([]Kind, 0, len(commandKinds))
	for k := range commandKinds {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

func ValidateCommand(kind Kind, payload Payload) error {
	kindsLock.RLock()
	validate, ok := commandKinds[kind]
	kindsLock.RUnlock()

	if !ok {
		return newError(CodeValidation, "unknown command type %q", kind)
	}

	if err := validate(payload); err != nil {
		return &Error{Code: CodeValidation, Message: fmt.Sprintf("invalid payload for %s: %v", kind, err), Cause: err}
	}

	return nil
}

func noPayload(p Payload) error {
	if len(p) != 0 {
		return fmt.Errorf("takes no parameters")
	}
	return nil
}

const maxTrackSkip = 20

func validateNextTrack(p Payload) error {
	for k := range p {
		if k != "count" {
			return fmt.Errorf("unknown parameter %q", k)
		}
	}

	count, err := p.Int("count", 1)
	if err != nil {
		return err
	}
	if count < 1 || count > maxTrackSkip {
		return fmt.Errorf("count must be between 1 and %d", maxTrackSkip)
	}
	return nil
}

// Payload holds the kind specific parameters of a command. It is stored as
// a JSON document and is otherwise opaque to the lifecycle.
type Payload map[string]interface{}

func (p Payload) Value() (driver.Value, error) {
	if len(p) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(map[string]interface{}(p))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (p *Payload) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*p = nil
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into payload", src)
	}

	if len(data) == 0 {
		*p = nil
		return nil
	}

	m := map[string]interface{}{}
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*p = m
	return nil
}

// Int reads an integral number, def when the key is absent.
func (p Payload) Int(key string, def int) (int, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}

	switch n := v.(type) {
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("%s must be an integer", key)
		}
		return int(n), nil
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, fmt.Errorf("%s must be an integer", key)
		}
		return int(i), nil
	}
	return 0, fmt.Errorf("%s must be a number", key)
}

type Command struct {
	Id          uint64     `db:"id" json:"id"`
	DeviceId    uint64     `db:"device_id" json:"device_id"`
	Kind        Kind       `db:"command_type" json:"command_type"`
	Payload     Payload    `db:"payload" json:"payload,omitempty"`
	Status      Status     `db:"status" json:"status"`
	SentBy      uint64     `db:"sent_by" json:"sent_by"`
	SentAt      time.Time  `db:"sent_at" json:"sent_at"`
	DeliveredAt *time.Time `db:"delivered_at" json:"delivered_at,omitempty"`
	ExecutedAt  *time.Time `db:"executed_at" json:"executed_at,omitempty"`
	Error       *string    `db:"error_message" json:"error,omitempty"`
}

type CommandCriteria struct {
	Id       uint64 `schema:"id" db:"id"`
	DeviceId uint64 `schema:"device_id" db:"device_id"`
	Kind     Kind   `schema:"command_type" db:"command_type"`
	Status   Status `schema:"status" db:"status"`
	SentBy   uint64 `schema:"sent_by" db:"sent_by"`

	OrderBy string `schema:"-"`
	Limit   int    `schema:"limit"`
	Offset  int    `schema:"offset"`
}
