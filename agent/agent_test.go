package agent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cmodk/deskctl"
	"github.com/cmodk/deskctl/deskctltest"
)

// localBackend serves the agent straight from the repositories.
type localBackend struct {
	d *deskctltest.Env
	s deskctl.Subject
}

func (b localBackend) Pending(limit int) ([]deskctl.Command, error) {
	it, err := b.d.Commands.FetchPending(context.Background(), b.s, b.s.DeviceId)
	if err != nil {
		return nil, err
	}
	return it.Collect(limit)
}

func (b localBackend) Claim(id uint64) (*deskctl.Command, error) {
	return b.d.Commands.Claim(context.Background(), b.s, id)
}

func (b localBackend) Report(id uint64, status deskctl.Status, report deskctl.StatusReport) error {
	_, err := b.d.Commands.ReportStatus(context.Background(), b.s, id, status, report)
	return err
}

func (b localBackend) Heartbeat() error {
	return b.d.Devices.Heartbeat(context.Background(), b.s, b.s.DeviceId)
}

func (b localBackend) Offline() error {
	return b.d.Devices.MarkOffline(context.Background(), b.s, b.s.DeviceId)
}

// flakyBackend loses the first claim on the way to the server.
type flakyBackend struct {
	localBackend
	failed bool
}

func (b *flakyBackend) Claim(id uint64) (*deskctl.Command, error) {
	if !b.failed {
		b.failed = true
		return nil, errors.New("connection reset by peer")
	}
	return b.localBackend.Claim(id)
}

type executorFunc func(ctx context.Context, c deskctl.Command) error

func (f executorFunc) Execute(ctx context.Context, c deskctl.Command) error {
	return f(ctx, c)
}

type fixture struct {
	env    *deskctltest.Env
	owner  deskctl.Subject
	device *deskctl.Device
	agent  *Agent
}

func newFixture(t *testing.T, executor Executor) *fixture {
	env := deskctltest.New(t)
	u, _ := env.User(t, "alice@example.com")
	d := env.Device(t, u.Id, "Prime")

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	a := New(localBackend{env, deskctl.DeviceSubject(d.Id)}, executor, logger)
	a.Interval = 10 * time.Millisecond
	a.Timeout = time.Second

	return &fixture{env, env.Subject(t, u.Id), d, a}
}

func (f *fixture) issue(t *testing.T, kind deskctl.Kind) *deskctl.Command {
	t.Helper()

	c, err := f.env.Commands.Issue(context.Background(), f.owner, f.device.Id, kind, nil)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func (f *fixture) command(t *testing.T, id uint64) *deskctl.Command {
	t.Helper()

	c, err := f.env.Commands.Get(context.Background(), f.owner, id)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestPollExecutesInOrder(t *testing.T) {
	var mu sync.Mutex
	var order []uint64

	f := newFixture(t, executorFunc(func(ctx context.Context, c deskctl.Command) error {
		if c.Status != deskctl.StatusDelivered {
			return errors.New("executed before claim")
		}
		mu.Lock()
		order = append(order, c.Id)
		mu.Unlock()
		return nil
	}))

	first := f.issue(t, deskctl.KindNextTrack)
	second := f.issue(t, deskctl.KindUnmuteZoom)
	third := f.issue(t, deskctl.KindNextTrack)

	n, err := f.agent.Poll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("Expected 3 executed commands, got %d", n)
	}

	if len(order) != 3 || order[0] != first.Id || order[1] != second.Id || order[2] != third.Id {
		t.Fatalf("Unexpected execution order %v", order)
	}

	for _, id := range order {
		c := f.command(t, id)
		if c.Status != deskctl.StatusExecuted || c.ExecutedAt == nil {
			t.Fatalf("Unexpected command %+v", c)
		}
	}

	d, err := f.env.Devices.Get(context.Background(), f.owner, f.device.Id)
	if err != nil {
		t.Fatal(err)
	}
	if d.Status != deskctl.DeviceOnline || d.LastSeen == nil {
		t.Fatalf("Poll must heartbeat, got %s", d.Status)
	}

	n, err = f.agent.Poll(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("Nothing left to execute, got %d %v", n, err)
	}
}

func TestPollReportsFailure(t *testing.T) {
	f := newFixture(t, executorFunc(func(ctx context.Context, c deskctl.Command) error {
		return errors.New("zoom is not running")
	}))

	c := f.issue(t, deskctl.KindUnmuteZoom)

	if _, err := f.agent.Poll(context.Background()); err != nil {
		t.Fatal(err)
	}

	stored := f.command(t, c.Id)
	if stored.Status != deskctl.StatusFailed || stored.Error == nil || *stored.Error != "zoom is not running" {
		t.Fatalf("Unexpected command %+v", stored)
	}
	if stored.ExecutedAt != nil {
		t.Fatal("Failed command must not have executed_at")
	}
}

func TestPollTimesOut(t *testing.T) {
	f := newFixture(t, executorFunc(func(ctx context.Context, c deskctl.Command) error {
		<-ctx.Done()
		return ctx.Err()
	}))
	f.agent.Timeout = 20 * time.Millisecond

	c := f.issue(t, deskctl.KindNextTrack)

	if _, err := f.agent.Poll(context.Background()); err != nil {
		t.Fatal(err)
	}

	stored := f.command(t, c.Id)
	if stored.Status != deskctl.StatusFailed || stored.Error == nil || *stored.Error != TimeoutMessage {
		t.Fatalf("Unexpected command %+v", stored)
	}
}

func TestPollSkipsClaimedCommands(t *testing.T) {
	executed := 0
	f := newFixture(t, executorFunc(func(ctx context.Context, c deskctl.Command) error {
		executed++
		return nil
	}))

	taken := f.issue(t, deskctl.KindUnmuteZoom)
	free := f.issue(t, deskctl.KindNextTrack)

	// Another poller of the same device gets there first.
	if _, err := f.env.Commands.Claim(context.Background(), deskctl.DeviceSubject(f.device.Id), taken.Id); err != nil {
		t.Fatal(err)
	}

	n, err := f.agent.Poll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 || executed != 1 {
		t.Fatalf("Expected only the free command to run, got %d %d", n, executed)
	}

	if s := f.command(t, taken.Id).Status; s != deskctl.StatusDelivered {
		t.Fatalf("Claimed command must be left alone, got %s", s)
	}
	if s := f.command(t, free.Id).Status; s != deskctl.StatusExecuted {
		t.Fatalf("Free command must execute, got %s", s)
	}
}

func TestPollStopsOnClaimError(t *testing.T) {
	var order []uint64
	f := newFixture(t, executorFunc(func(ctx context.Context, c deskctl.Command) error {
		order = append(order, c.Id)
		return nil
	}))
	f.agent.Backend = &flakyBackend{localBackend: localBackend{f.env, deskctl.DeviceSubject(f.device.Id)}}

	first := f.issue(t, deskctl.KindUnmuteZoom)
	second := f.issue(t, deskctl.KindNextTrack)

	n, err := f.agent.Poll(context.Background())
	if err == nil {
		t.Fatal("Expected the claim error to end the poll")
	}
	if n != 0 || len(order) != 0 {
		t.Fatalf("Nothing may run after a failed claim, ran %v", order)
	}
	if s := f.command(t, second.Id).Status; s != deskctl.StatusPending {
		t.Fatalf("Second command must wait for the first, got %s", s)
	}

	n, err = f.agent.Poll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 || len(order) != 2 || order[0] != first.Id || order[1] != second.Id {
		t.Fatalf("Expected both commands in issue order, got %v", order)
	}
}

func TestPollToleratesDeletedDevice(t *testing.T) {
	var f *fixture
	f = newFixture(t, executorFunc(func(ctx context.Context, c deskctl.Command) error {
		return f.env.Devices.Delete(context.Background(), f.owner, f.device.Id)
	}))

	f.issue(t, deskctl.KindUnmuteZoom)
	f.issue(t, deskctl.KindNextTrack)

	n, err := f.agent.Poll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("Nothing can be reported for a deleted device, got %d", n)
	}
}

func TestRunMarksOffline(t *testing.T) {
	f := newFixture(t, executorFunc(func(ctx context.Context, c deskctl.Command) error {
		return nil
	}))
	c := f.issue(t, deskctl.KindUnmuteZoom)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- f.agent.Run(ctx)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for f.command(t, c.Id).Status != deskctl.StatusExecuted {
		if time.Now().After(deadline) {
			t.Fatal("Command was never executed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatal(err)
	}

	d, err := f.env.Devices.Get(context.Background(), f.owner, f.device.Id)
	if err != nil {
		t.Fatal(err)
	}
	if d.Status != deskctl.DeviceOffline {
		t.Fatalf("Expected offline after shutdown, got %s", d.Status)
	}
}
