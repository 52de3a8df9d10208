package deskctl

import (
	"context"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	DeadlineKey       = "command_deadlines"
	DeadlineExpired   = "execution timeout"
	deadlinePopMax    = 100
	defaultReapPeriod = time.Second
)

// Deadlines keeps the execution deadline of every delivered command in a
// redis sorted set scored by unix milliseconds. A command is due Timeout
// plus Grace after delivery.
type Deadlines struct {
	d       *Deskctl
	re      *redis.Client
	Key     string
	Timeout time.Duration
	Grace   time.Duration
}

func NewDeadlines(d *Deskctl, re *redis.Client) *Deadlines {
	return &Deadlines{
		d:       d,
		re:      re,
		Key:     DeadlineKey,
		Timeout: d.Config.Commands.ExecutionTimeout,
		Grace:   d.Config.Commands.ReapGrace,
	}
}

func (dl *Deadlines) Schedule(ctx context.Context, commandId uint64, deadline time.Time) error {
	z := redis.Z{
		Score:  float64(deadline.UnixMilli()),
		Member: strconv.FormatUint(commandId, 10),
	}

	dl.d.Logger.WithField("command", commandId).Debugf("Execution deadline %s", deadline.Format(time.RFC3339))

	return dl.re.ZAdd(ctx, dl.Key, &z).Err()
}

func (dl *Deadlines) Cancel(ctx context.Context, commandId uint64) error {
	return dl.re.ZRem(ctx, dl.Key, strconv.FormatUint(commandId, 10)).Err()
}

// Due removes and returns the commands whose deadline is at or before now.
// An entry removed by another reaper in between is skipped, so every
// deadline is handed out once.
func (dl *Deadlines) Due(ctx context.Context, now time.Time) ([]uint64, error) {
	members, err := dl.re.ZRangeByScore(ctx, dl.Key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: deadlinePopMax,
	}).Result()
	if err != nil {
		return nil, err
	}

	var due []uint64
	for _, m := range members {
		removed, err := dl.re.ZRem(ctx, dl.Key, m).Result()
		if err != nil {
			return due, err
		}
		if removed == 0 {
			continue
		}

		id, err := strconv.ParseUint(m, 10, 64)
		if err != nil {
			dl.d.Logger.WithField("member", m).Warn("Dropping malformed deadline entry")
			continue
		}
		due = append(due, id)
	}

	return due, nil
}

// Reap fails every command past its deadline and returns how many were
// still delivered.
func (dl *Deadlines) Reap(ctx context.Context) (int, error) {
	due, err := dl.Due(ctx, dl.d.Now())
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, id := range due {
		ok, err := dl.d.Commands.Expire(ctx, id, DeadlineExpired)
		if err != nil {
			return expired, err
		}
		if ok {
			expired++
		}
	}

	return expired, nil
}

// Run reaps every period until ctx is cancelled.
func (dl *Deadlines) Run(ctx context.Context, period time.Duration) {
	if period <= 0 {
		period = defaultReapPeriod
	}

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		n, err := dl.Reap(ctx)
		if err != nil {
			dl.d.Logger.WithField("error", err).Error("Reaping command deadlines")
			continue
		}
		if n > 0 {
			dl.d.Logger.Infof("Failed %d commands past their execution deadline", n)
		}
	}
}

// CommandStatusChanged is an event handler keeping the schedule in step with
// the lifecycle.
func (dl *Deadlines) CommandStatusChanged(event interface{}) error {
	e := event.(CommandStatusChanged)
	ctx := context.Background()

	switch e.To {
	case StatusDelivered:
		delivered := dl.d.Now()
		if e.DeliveredAt != nil {
			delivered = *e.DeliveredAt
		}
		return dl.Schedule(ctx, e.Id, delivered.Add(dl.Timeout+dl.Grace))
	case StatusExecuted, StatusFailed:
		return dl.Cancel(ctx, e.Id)
	}

	return nil
}
