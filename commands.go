package deskctl

import (
	"context"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/cmodk/go-simpleflake"
	"github.com/jmoiron/sqlx"

	"github.com/cmodk/deskctl/app"
)

const (
	DefaultCommandListLimit = 100
	maxErrorLength          = 512
)

// StatusReport carries the optional parts of a status transition.
type StatusReport struct {
	ExecutedAt *time.Time `json:"executed_at,omitempty"`
	Error      string     `json:"error,omitempty"`
}

type Commands struct {
	d    *Deskctl
	repo *app.DatabaseRepository
}

func NewCommands(d *Deskctl) *Commands {
	return &Commands{d, app.NewDatabaseRepository(d.Database, "commands")}
}

func (commands *Commands) get(ctx context.Context, id uint64) (*Command, error) {
	var c Command
	if err := commands.repo.Get(ctx, &c, CommandCriteria{Id: id}); err != nil {
		return nil, notFound(err, "command %d not found", id)
	}
	return &c, nil
}

// Issue queues a pending command for a device on behalf of s. The issuing
// user is always s.
func (commands *Commands) Issue(ctx context.Context, s Subject, deviceId uint64, kind Kind, payload Payload) (*Command, error) {
	d, err := commands.d.Devices.get(ctx, deviceId)
	if err != nil {
		return nil, err
	}

	if err := Authorize(s, ActionCommandIssue, DeviceResource(d)); err != nil {
		return nil, err
	}

	if err := ValidateCommand(kind, payload); err != nil {
		return nil, err
	}

	c := Command{
		Id:       simpleflake.Next(),
		DeviceId: d.Id,
		Kind:     kind,
		Payload:  payload,
		Status:   StatusPending,
		SentBy:   s.UserId,
		SentAt:   commands.d.Now(),
	}

	if err := commands.repo.Create(ctx, &c); err != nil {
		return nil, err
	}

	commands.d.Logger.WithField("command", c.Id).WithField("device", d.Id).Infof("Issued %s", c.Kind)

	if err := commands.d.Event.Publish(CommandCreated(c)); err != nil {
		commands.d.Logger.WithField("error", err).WithField("command", c.Id).Error("Publishing command created")
	}

	return &c, nil
}

// Retry re-issues a failed command as a new pending row.
func (commands *Commands) Retry(ctx context.Context, s Subject, id uint64) (*Command, error) {
	c, err := commands.Get(ctx, s, id)
	if err != nil {
		return nil, err
	}

	if c.Status != StatusFailed {
		return nil, newError(CodeInvalidTransition, "only failed commands can be retried, command %d is %s", c.Id, c.Status)
	}

	return commands.Issue(ctx, s, c.DeviceId, c.Kind, c.Payload)
}

func (commands *Commands) Get(ctx context.Context, s Subject, id uint64) (*Command, error) {
	c, err := commands.get(ctx, id)
	if err != nil {
		return nil, err
	}

	if _, err := commands.d.Devices.load(ctx, s, c.DeviceId, ActionCommandView); err != nil {
		return nil, err
	}

	return c, nil
}

// List returns the commands of a device, newest first.
func (commands *Commands) List(ctx context.Context, s Subject, deviceId uint64, c CommandCriteria) ([]Command, error) {
	if _, err := commands.d.Devices.load(ctx, s, deviceId, ActionCommandView); err != nil {
		return nil, err
	}

	c.DeviceId = deviceId
	c.OrderBy = "sent_at DESC, id DESC"
	if c.Limit <= 0 || c.Limit > DefaultCommandListLimit {
		c.Limit = DefaultCommandListLimit
	}

	cs := []Command{}
	if err := commands.repo.List(ctx, &cs, c); err != nil {
		return nil, err
	}

	return cs, nil
}

// PendingCommands iterates the pending commands of one device in issuance
// order. It holds a database cursor until Close.
type PendingCommands struct {
	rows    *sqlx.Rows
	current Command
	err     error
}

func (p *PendingCommands) Next() bool {
	if p.err != nil || !p.rows.Next() {
		return false
	}

	p.current = Command{}
	if err := p.rows.StructScan(&p.current); err != nil {
		p.err = err
		return false
	}

	return true
}

func (p *PendingCommands) Command() Command {
	return p.current
}

func (p *PendingCommands) Err() error {
	if p.err != nil {
		return p.err
	}
	return p.rows.Err()
}

func (p *PendingCommands) Close() error {
	return p.rows.Close()
}

// Collect drains up to limit commands and closes the iterator.
func (p *PendingCommands) Collect(limit int) ([]Command, error) {
	defer p.Close()

	cs := []Command{}
	for (limit <= 0 || len(cs) < limit) && p.Next() {
		cs = append(cs, p.Command())
	}

	return cs, p.Err()
}

// FetchPending opens an iterator over the pending commands of a device,
// oldest first. Commands issued in the same instant keep their id order.
func (commands *Commands) FetchPending(ctx context.Context, s Subject, deviceId uint64) (*PendingCommands, error) {
	if _, err := commands.d.Devices.load(ctx, s, deviceId, ActionCommandView); err != nil {
		return nil, err
	}

	query, args, err := squirrel.Select("*").From("commands").
		Where(squirrel.Eq{"device_id": deviceId, "status": StatusPending}).
		OrderBy("sent_at ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := commands.d.Database.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	return &PendingCommands{rows: rows}, nil
}

// Claim moves a pending command to delivered. Of several agents claiming the
// same command exactly one succeeds, the others get InvalidTransition.
func (commands *Commands) Claim(ctx context.Context, s Subject, id uint64) (*Command, error) {
	return commands.ReportStatus(ctx, s, id, StatusDelivered, StatusReport{})
}

// ReportStatus applies one lifecycle transition for the agent of the
// command's device.
func (commands *Commands) ReportStatus(ctx context.Context, s Subject, id uint64, to Status, report StatusReport) (*Command, error) {
	c, err := commands.get(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := Authorize(s, ActionCommandReport, Resource{DeviceId: c.DeviceId}); err != nil {
		return nil, err
	}

	return commands.transition(ctx, c, to, report)
}

// Expire fails a command still delivered after its execution deadline. It
// reports false when the command already left delivered or is gone.
func (commands *Commands) Expire(ctx context.Context, id uint64, reason string) (bool, error) {
	c, err := commands.get(ctx, id)
	if err != nil {
		if HasCode(err, CodeNotFound) {
			return false, nil
		}
		return false, err
	}

	if c.Status != StatusDelivered {
		return false, nil
	}

	if _, err := commands.transition(ctx, c, StatusFailed, StatusReport{Error: reason}); err != nil {
		if HasCode(err, CodeInvalidTransition) || HasCode(err, CodeNotFound) {
			return false, nil
		}
		return false, err
	}

	return true, nil
}

// executionTime clamps the time an agent reported to [deliveredAt, now].
func executionTime(reported *time.Time, deliveredAt *time.Time, now time.Time) time.Time {
	if reported == nil || reported.IsZero() {
		return now
	}

	executed := reported.UTC()
	if deliveredAt != nil && executed.Before(*deliveredAt) {
		executed = deliveredAt.UTC()
	}
	if executed.After(now) {
		executed = now
	}
	return executed
}

// transition writes c.Status -> to as a single conditional update on the
// status c was read with, so concurrent writers cannot both win.
func (commands *Commands) transition(ctx context.Context, c *Command, to Status, report StatusReport) (*Command, error) {
	if _, err := ParseStatus(string(to)); err != nil {
		return nil, err
	}

	from := c.Status
	if !from.CanTransition(to) {
		return nil, newError(CodeInvalidTransition, "command %d cannot move from %s to %s", c.Id, from, to)
	}

	now := commands.d.Now()
	columns := map[string]interface{}{"status": to}

	switch to {
	case StatusDelivered:
		c.DeliveredAt = &now
		columns["delivered_at"] = now
	case StatusExecuted:
		executed := executionTime(report.ExecutedAt, c.DeliveredAt, now)
		c.ExecutedAt = &executed
		columns["executed_at"] = executed
	case StatusFailed:
		if report.Error != "" {
			msg := Truncate(report.Error, maxErrorLength)
			c.Error = &msg
			columns["error_message"] = msg
		}
	}

	updated, err := commands.d.Database.ExecBuilder(ctx, squirrel.Update("commands").
		SetMap(columns).
		Where(squirrel.Eq{"id": c.Id, "status": from}))
	if err != nil {
		return nil, err
	}

	if updated == 0 {
		current, err := commands.get(ctx, c.Id)
		if err != nil {
			return nil, err
		}
		return nil, newError(CodeInvalidTransition, "command %d is %s, not %s", c.Id, current.Status, from)
	}

	c.Status = to

	log := commands.d.Logger.WithField("command", c.Id).WithField("device", c.DeviceId)
	if to == StatusFailed {
		log = log.WithField("reason", report.Error)
	}
	log.Infof("Command %s -> %s", from, to)

	if err := commands.d.Event.Publish(CommandStatusChanged{
		Id:          c.Id,
		DeviceId:    c.DeviceId,
		From:        from,
		To:          to,
		DeliveredAt: c.DeliveredAt,
		ExecutedAt:  c.ExecutedAt,
		Error:       c.Error,
	}); err != nil {
		commands.d.Logger.WithField("error", err).WithField("command", c.Id).Error("Publishing command status")
	}

	return c, nil
}
