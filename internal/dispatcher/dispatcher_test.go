package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"simplane/internal/store"
	"simplane/pkg/api"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeOutbox hands out queued commands and records how each was settled.
type fakeOutbox struct {
	mu        sync.Mutex
	pending   []store.EngineCommand
	completed []int64
	failed    map[int64]string
	dropAfter int
	attempts  map[int64]int
	dequeues  int
}

func newFakeOutbox(cmds ...store.EngineCommand) *fakeOutbox {
	return &fakeOutbox{pending: cmds, failed: map[int64]string{}, attempts: map[int64]int{}, dropAfter: 5}
}

func (f *fakeOutbox) DequeueBatch(ctx context.Context, limit int) ([]store.EngineCommand, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dequeues++
	if limit > len(f.pending) {
		limit = len(f.pending)
	}
	out := append([]store.EngineCommand(nil), f.pending[:limit]...)
	f.pending = f.pending[limit:]
	return out, nil
}

func (f *fakeOutbox) Complete(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, id)
	return nil
}

func (f *fakeOutbox) Fail(ctx context.Context, id int64, errMsg string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[id] = errMsg
	f.attempts[id]++
	return f.attempts[id] >= f.dropAfter, nil
}

func (f *fakeOutbox) snapshot() (completed []int64, failed map[int64]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	failed = make(map[int64]string, len(f.failed))
	for k, v := range f.failed {
		failed[k] = v
	}
	return append([]int64(nil), f.completed...), failed
}

// fakeEngine records deliveries and can fail selected commands.
type fakeEngine struct {
	mu        sync.Mutex
	delivered []api.EngineCommand
	failIDs   map[int64]bool
	inFlight  atomic.Int32
	maxSeen   atomic.Int32
	delay     time.Duration
}

func (e *fakeEngine) Deliver(ctx context.Context, cmd api.EngineCommand) error {
	n := e.inFlight.Add(1)
	defer e.inFlight.Add(-1)
	for {
		m := e.maxSeen.Load()
		if n <= m || e.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	if e.delay > 0 {
		time.Sleep(e.delay)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.delivered = append(e.delivered, cmd)
	if e.failIDs[cmd.CommandID] {
		return errors.New("engine unavailable")
	}
	return nil
}

func (e *fakeEngine) deliveries() []api.EngineCommand {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]api.EngineCommand(nil), e.delivered...)
}

func command(id int64, kind string, data string) store.EngineCommand {
	payload, _ := json.Marshal(api.EngineCommandPayload{Data: json.RawMessage(data)})
	return store.EngineCommand{ID: id, SessionID: uuid.New(), Kind: kind, Payload: payload, Attempt: 1}
}

func runFor(t *testing.T, d *Dispatcher, until func() bool) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- d.Run(ctx) }()

	require.Eventually(t, until, 3*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(3 * time.Second):
		t.Fatal("dispatcher did not stop")
	}
	<-d.Done()
}

func TestDispatcher_DeliversAndCompletes(t *testing.T) {
	outbox := newFakeOutbox(
		command(1, store.CommandStart, `{"status":"running"}`),
		command(2, store.CommandScheduleFault, `{"fault_type":"latency"}`),
	)
	engine := &fakeEngine{}
	d := New(outbox, engine, Config{ID: "test", Concurrency: 2, PollInterval: 10 * time.Millisecond}, nil)

	runFor(t, d, func() bool {
		completed, _ := outbox.snapshot()
		return len(completed) == 2
	})

	delivered := engine.deliveries()
	require.Len(t, delivered, 2)
	kinds := map[string]json.RawMessage{}
	for _, c := range delivered {
		kinds[c.Kind] = c.Data
	}
	assert.JSONEq(t, `{"status":"running"}`, string(kinds[store.CommandStart]))
	assert.JSONEq(t, `{"fault_type":"latency"}`, string(kinds[store.CommandScheduleFault]))
}

func TestDispatcher_FailedDeliveryIsRetriedViaOutbox(t *testing.T) {
	outbox := newFakeOutbox(command(7, store.CommandPause, `{}`))
	engine := &fakeEngine{failIDs: map[int64]bool{7: true}}
	d := New(outbox, engine, Config{Concurrency: 1, PollInterval: 10 * time.Millisecond}, nil)

	runFor(t, d, func() bool {
		_, failed := outbox.snapshot()
		return failed[7] != ""
	})

	completed, failed := outbox.snapshot()
	assert.Empty(t, completed)
	assert.Contains(t, failed[7], "engine unavailable")
}

func TestDispatcher_InvalidPayloadFailsWithoutDelivery(t *testing.T) {
	outbox := newFakeOutbox(store.EngineCommand{ID: 3, SessionID: uuid.New(), Kind: store.CommandStop, Payload: json.RawMessage(`not json`)})
	engine := &fakeEngine{}
	d := New(outbox, engine, Config{PollInterval: 10 * time.Millisecond}, nil)

	runFor(t, d, func() bool {
		_, failed := outbox.snapshot()
		return failed[3] != ""
	})

	assert.Empty(t, engine.deliveries())
}

func TestDispatcher_RespectsConcurrency(t *testing.T) {
	var cmds []store.EngineCommand
	for i := int64(1); i <= 8; i++ {
		cmds = append(cmds, command(i, store.CommandStart, `{}`))
	}
	outbox := newFakeOutbox(cmds...)
	engine := &fakeEngine{delay: 30 * time.Millisecond}
	d := New(outbox, engine, Config{Concurrency: 2, PollInterval: 5 * time.Millisecond}, nil)

	runFor(t, d, func() bool {
		completed, _ := outbox.snapshot()
		return len(completed) == 8
	})

	assert.LessOrEqual(t, engine.maxSeen.Load(), int32(2))
}

func TestDispatcher_DrainsInFlightOnShutdown(t *testing.T) {
	outbox := newFakeOutbox(command(1, store.CommandStart, `{}`))
	engine := &fakeEngine{delay: 100 * time.Millisecond}
	d := New(outbox, engine, Config{Concurrency: 1, PollInterval: 5 * time.Millisecond}, nil)

	// Cancel as soon as the command is in flight; Run must wait for it.
	runFor(t, d, func() bool { return engine.inFlight.Load() == 1 })

	completed, _ := outbox.snapshot()
	assert.Equal(t, []int64{1}, completed)
}
