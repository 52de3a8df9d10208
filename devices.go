package deskctl

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/cmodk/go-simpleflake"

	"github.com/cmodk/deskctl/app"
)

// VisibleTo is a DeviceCriteria field restricting results to devices the user
// owns or that belong to a team the user created or is a member of.
type VisibleTo uint64

func (v VisibleTo) ParseCriteria(sb *squirrel.SelectBuilder) error {
	if v == 0 {
		return nil
	}

	user := uint64(v)
	*sb = sb.Where(squirrel.Or{
		squirrel.Eq{"owner_id": user},
		squirrel.Expr("team_id IN (SELECT team_id FROM team_members WHERE user_id = ?)", user),
		squirrel.Expr("team_id IN (SELECT id FROM teams WHERE created_by = ?)", user),
	})
	return nil
}

// DeviceUpdate carries the user editable fields of a device. Nil fields are
// left unchanged.
type DeviceUpdate struct {
	Name *string `json:"name"`
	Host *string `json:"ip_address"`
	Port *int    `json:"port"`
}

type Devices struct {
	d    *Deskctl
	repo *app.DatabaseRepository
}

func NewDevices(d *Deskctl) *Devices {
	return &Devices{d, app.NewDatabaseRepository(d.Database, "devices")}
}

func (devices *Devices) get(ctx context.Context, id uint64) (*Device, error) {
	var d Device
	if err := devices.repo.Get(ctx, &d, DeviceCriteria{Id: id}); err != nil {
		return nil, notFound(err, "device %d not found", id)
	}
	return &d, nil
}

// load fetches a device and checks that s may perform a on it.
func (devices *Devices) load(ctx context.Context, s Subject, id uint64, a Action) (*Device, error) {
	d, err := devices.get(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := Authorize(s, a, DeviceResource(d)); err != nil {
		return nil, err
	}

	return d, nil
}

func (devices *Devices) Get(ctx context.Context, s Subject, id uint64) (*Device, error) {
	return devices.load(ctx, s, id, ActionDeviceView)
}

// List returns the devices visible to s matching c, oldest first.
func (devices *Devices) List(ctx context.Context, s Subject, c DeviceCriteria) ([]Device, error) {
	switch {
	case s.isUser():
		c.VisibleTo = VisibleTo(s.UserId)
	case s.DeviceId != 0:
		c.Id = s.DeviceId
	default:
		return nil, ErrNotAuthorized
	}

	if c.OrderBy == "" {
		c.OrderBy = "created_at, id"
	}
	c.Token = ""

	ds := []Device{}
	if err := devices.repo.List(ctx, &ds, c); err != nil {
		return nil, err
	}

	return ds, nil
}

// Register creates a device owned by s with unknown liveness, no team and a
// fresh agent token.
func (devices *Devices) Register(ctx context.Context, s Subject, name string, host string, port int) (*Device, error) {
	if !s.isUser() {
		return nil, newError(CodeNotAuthorized, "only users can register devices")
	}

	name = strings.TrimSpace(name)
	host = strings.TrimSpace(host)
	if err := ValidateAddress(name, host, port); err != nil {
		return nil, err
	}

	d := Device{
		Id:        simpleflake.Next(),
		Name:      name,
		Host:      host,
		Port:      port,
		OwnerId:   s.UserId,
		Status:    DeviceUnknown,
		Token:     NewToken(),
		CreatedAt: devices.d.Now(),
	}

	if err := devices.repo.Create(ctx, &d); err != nil {
		return nil, err
	}

	devices.d.Logger.WithField("device", d.Id).WithField("owner", d.OwnerId).Infof("Registered device %s", d.Name)

	return &d, nil
}

func (devices *Devices) Update(ctx context.Context, s Subject, id uint64, u DeviceUpdate) (*Device, error) {
	d, err := devices.load(ctx, s, id, ActionDeviceUpdate)
	if err != nil {
		return nil, err
	}

	if u.Name != nil {
		d.Name = strings.TrimSpace(*u.Name)
	}
	if u.Host != nil {
		d.Host = strings.TrimSpace(*u.Host)
	}
	if u.Port != nil {
		d.Port = *u.Port
	}

	if err := ValidateAddress(d.Name, d.Host, d.Port); err != nil {
		return nil, err
	}

	// Only the address columns, liveness belongs to the agent.
	if err := devices.set(ctx, d.Id, map[string]interface{}{
		"name":       d.Name,
		"ip_address": d.Host,
		"port":       d.Port,
	}); err != nil {
		return nil, err
	}

	return d, nil
}

// AssignTeam moves a device into teamId, or out of any team when teamId is
// nil. The owner must belong to the target team.
func (devices *Devices) AssignTeam(ctx context.Context, s Subject, id uint64, teamId *uint64) (*Device, error) {
	d, err := devices.load(ctx, s, id, ActionDeviceAssignTeam)
	if err != nil {
		return nil, err
	}

	if teamId != nil {
		t, err := devices.d.Teams.get(ctx, *teamId)
		if err != nil {
			return nil, err
		}
		if err := Authorize(s, ActionTeamView, TeamResource(t)); err != nil {
			return nil, err
		}
	}

	if err := devices.set(ctx, d.Id, map[string]interface{}{"team_id": teamId}); err != nil {
		return nil, err
	}
	d.TeamId = teamId

	devices.d.Logger.WithField("device", d.Id).WithField("team", teamId).Info("Device team assigned")

	return d, nil
}

// RotateToken replaces the agent credential of a device. The old token stops
// working immediately.
func (devices *Devices) RotateToken(ctx context.Context, s Subject, id uint64) (*Device, error) {
	d, err := devices.load(ctx, s, id, ActionDeviceRotateToken)
	if err != nil {
		return nil, err
	}

	d.Token = NewToken()
	if err := devices.set(ctx, d.Id, map[string]interface{}{"token": d.Token}); err != nil {
		return nil, err
	}

	return d, nil
}

// Delete removes a device and, through the foreign key, all its commands.
func (devices *Devices) Delete(ctx context.Context, s Subject, id uint64) error {
	d, err := devices.load(ctx, s, id, ActionDeviceDelete)
	if err != nil {
		return err
	}

	if err := devices.repo.Delete(ctx, d.Id); err != nil {
		return notFound(err, "device %d not found", id)
	}

	devices.d.Logger.WithField("device", d.Id).Info("Device deleted")
	return nil
}

// Authenticate resolves an agent token to its device.
func (devices *Devices) Authenticate(ctx context.Context, token string) (*Device, error) {
	if token == "" {
		return nil, newError(CodeNotAuthorized, "missing device token")
	}

	var d Device
	if err := devices.repo.Get(ctx, &d, DeviceCriteria{Token: token}); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, newError(CodeNotAuthorized, "unknown device token")
		}
		return nil, err
	}

	return &d, nil
}

// Heartbeat marks the device online and seen now.
func (devices *Devices) Heartbeat(ctx context.Context, s Subject, id uint64) error {
	if err := Authorize(s, ActionDeviceHeartbeat, Resource{DeviceId: id}); err != nil {
		return err
	}

	now := devices.d.Now()
	if err := devices.set(ctx, id, map[string]interface{}{
		"status":    DeviceOnline,
		"last_seen": now,
	}); err != nil {
		return err
	}

	devices.publish(DeviceHeartbeat{DeviceId: id, Status: DeviceOnline, LastSeen: now})
	return nil
}

// MarkOffline is sent by an agent that shuts down cleanly. last_seen is kept.
func (devices *Devices) MarkOffline(ctx context.Context, s Subject, id uint64) error {
	if err := Authorize(s, ActionDeviceHeartbeat, Resource{DeviceId: id}); err != nil {
		return err
	}

	if err := devices.set(ctx, id, map[string]interface{}{"status": DeviceOffline}); err != nil {
		return err
	}

	devices.d.Logger.WithField("device", id).Info("Device went offline")

	devices.publish(DeviceHeartbeat{DeviceId: id, Status: DeviceOffline})
	return nil
}

func (devices *Devices) publish(e DeviceHeartbeat) {
	if err := devices.d.Event.Publish(e); err != nil {
		devices.d.Logger.WithField("error", err).WithField("device", e.DeviceId).Warn("Publishing device heartbeat")
	}
}

func (devices *Devices) set(ctx context.Context, id uint64, columns map[string]interface{}) error {
	updated, err := devices.d.Database.ExecBuilder(ctx, squirrel.Update("devices").
		SetMap(columns).
		Where(squirrel.Eq{"id": id}))
	if err != nil {
		return err
	}

	if updated == 0 {
		return newError(CodeNotFound, "device %d not found", id)
	}

	return nil
}
