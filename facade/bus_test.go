package facade_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/momentics/hioload-bus/api"
	"github.com/momentics/hioload-bus/driver"
	"github.com/momentics/hioload-bus/facade"
	"github.com/momentics/hioload-bus/internal/handles"
)

func newBus(t *testing.T, opts ...facade.Option) *facade.Bus {
	t.Helper()
	cfg := facade.DefaultConfig()
	cfg.Dir = t.TempDir()
	cfg.RegistrationTimeout = 2 * time.Second
	opts = append([]facade.Option{facade.WithLogger(zap.NewNop())}, opts...)
	b, err := facade.New(cfg, opts...)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := b.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	t.Cleanup(b.Destroy)
	return b
}

// collector gathers payloads delivered by a poll loop.
type collector struct {
	mu   sync.Mutex
	msgs [][]byte
}

func (c *collector) handle(buf []byte) {
	cp := append([]byte(nil), buf...)
	c.mu.Lock()
	c.msgs = append(c.msgs, cp)
	c.mu.Unlock()
}

func (c *collector) wait(t *testing.T, n int) [][]byte {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		if len(c.msgs) >= n {
			out := c.msgs
			c.mu.Unlock()
			return out
		}
		c.mu.Unlock()
		time.Sleep(time.Millisecond)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	t.Fatalf("received %d of %d messages", len(c.msgs), n)
	return nil
}

func pubSubPair(t *testing.T, b *facade.Bus, stream int32) (handles.Handle, handles.Handle) {
	t.Helper()
	ctx := context.Background()
	sh, err := b.AddSubscription(ctx, "aeron:ipc", stream)
	if err != nil {
		t.Fatalf("add subscription: %v", err)
	}
	ph, err := b.AddPublication(ctx, "aeron:ipc", stream)
	if err != nil {
		t.Fatalf("add publication: %v", err)
	}
	return ph, sh
}

func TestHelloEndToEnd(t *testing.T) {
	b := newBus(t)
	ph, sh := pubSubPair(t, b, 10)
	if ph != 0 || sh != 0 {
		t.Fatalf("first handles = %d/%d, want 0/0", ph, sh)
	}

	var c collector
	if err := b.StartPoll(sh, c.handle, 0); err != nil {
		t.Fatal(err)
	}
	if ok, err := b.PublicationIsConnected(ph); err != nil || !ok {
		t.Fatalf("connected = %v, %v", ok, err)
	}
	if res, err := b.Publish(ph, []byte("hello")); err != nil || res <= 0 {
		t.Fatalf("publish = %d, %v", res, err)
	}
	c.wait(t, 1)
	time.Sleep(50 * time.Millisecond)
	c.mu.Lock()
	got := c.msgs
	c.mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("callback invoked %d times, want 1", len(got))
	}
	if len(got[0]) != 5 || string(got[0]) != "hello" {
		t.Fatalf("got %q", got[0])
	}
}

func TestPublicationHandlesDistinctUntilFull(t *testing.T) {
	b := newBus(t)
	ctx := context.Background()

	seen := make(map[handles.Handle]bool)
	for i := 0; i < api.PublicationCapacity; i++ {
		h, err := b.AddPublication(ctx, "aeron:ipc", 1)
		if err != nil {
			t.Fatalf("add %d: %v", i, err)
		}
		if h != handles.Handle(i) || seen[h] {
			t.Fatalf("add %d returned handle %d", i, h)
		}
		seen[h] = true
	}
	h, err := b.AddPublication(ctx, "aeron:ipc", 1)
	if h != handles.Invalid || !errors.Is(err, api.ErrTableFull) {
		t.Fatalf("over capacity: %d, %v", h, err)
	}

	for _, h := range []handles.Handle{70, 3} {
		if err := b.RemovePublication(h); err != nil {
			t.Fatal(err)
		}
	}
	for _, want := range []handles.Handle{3, 70} {
		h, err := b.AddPublication(ctx, "aeron:ipc", 1)
		if err != nil || h != want {
			t.Fatalf("reuse: got %d (%v), want %d", h, err, want)
		}
	}
}

func TestSubscriptionTableFullLeavesSlotsUntouched(t *testing.T) {
	b := newBus(t)
	ctx := context.Background()
	for i := 0; i < api.SubscriptionCapacity; i++ {
		if _, err := b.AddSubscription(ctx, "aeron:ipc", int32(i)); err != nil {
			t.Fatal(err)
		}
	}
	h, err := b.AddSubscription(ctx, "aeron:ipc", 99)
	if h != handles.Invalid || !errors.Is(err, api.ErrTableFull) {
		t.Fatalf("over capacity: %d, %v", h, err)
	}
	for i := 0; i < api.SubscriptionCapacity; i++ {
		if _, err := b.IsPolling(handles.Handle(i)); err != nil {
			t.Errorf("slot %d disturbed: %v", i, err)
		}
	}
	if got := b.Stats()["subscriptions.in_use"]; got != api.SubscriptionCapacity {
		t.Errorf("in use = %v", got)
	}
}

func TestRoundTripPreservesOrder(t *testing.T) {
	b := newBus(t)
	ph, sh := pubSubPair(t, b, 2)
	var c collector
	if err := b.StartPoll(sh, c.handle, 1); err != nil {
		t.Fatal(err)
	}
	const n = 200
	for i := 0; i < n; i++ {
		if res, err := b.Publish(ph, []byte(fmt.Sprintf("msg-%03d", i))); err != nil || res <= 0 {
			t.Fatalf("publish %d = %d, %v", i, res, err)
		}
	}
	got := c.wait(t, n)
	for i, m := range got {
		if want := fmt.Sprintf("msg-%03d", i); string(m) != want {
			t.Fatalf("message %d = %q, want %q", i, m, want)
		}
	}
}

func TestQueriesAreIdempotent(t *testing.T) {
	b := newBus(t)
	ph, _ := pubSubPair(t, b, 42)

	s1, _ := b.SessionID(ph)
	s2, _ := b.SessionID(ph)
	st1, _ := b.StreamID(ph)
	st2, _ := b.StreamID(ph)
	c1, _ := b.PublicationIsConnected(ph)
	c2, _ := b.PublicationIsConnected(ph)
	cl, err := b.PublicationIsClosed(ph)
	if err != nil {
		t.Fatal(err)
	}
	if s1 != s2 || st1 != st2 || c1 != c2 {
		t.Fatalf("queries changed: session %d/%d stream %d/%d connected %v/%v", s1, s2, st1, st2, c1, c2)
	}
	if st1 != 42 || cl {
		t.Fatalf("stream %d closed %v", st1, cl)
	}
}

func TestPayloadBoundary(t *testing.T) {
	b := newBus(t)
	ph, sh := pubSubPair(t, b, 3)
	var c collector
	if err := b.StartPoll(sh, c.handle, 0); err != nil {
		t.Fatal(err)
	}

	full := bytes.Repeat([]byte{0xab}, api.MaxPayload)
	if res, err := b.Publish(ph, full); err != nil || res <= 0 {
		t.Fatalf("1024-byte publish = %d, %v", res, err)
	}
	if _, err := b.Publish(ph, make([]byte, api.MaxPayload+1)); !errors.Is(err, api.ErrPayloadTooLarge) {
		t.Fatalf("oversize publish: %v", err)
	}
	got := c.wait(t, 1)
	if !bytes.Equal(got[0], full) {
		t.Fatal("1024-byte payload corrupted")
	}
	if b.Stats()["offers.rejected_oversize"] != int64(1) {
		t.Errorf("oversize not counted: %v", b.Stats())
	}
}

func TestPublishWithoutSubscriberIsNotConnected(t *testing.T) {
	b := newBus(t)
	ph, err := b.AddPublication(context.Background(), "aeron:ipc", 77)
	if err != nil {
		t.Fatal(err)
	}
	res, err := b.Publish(ph, []byte("x"))
	if err != nil || res != api.NotConnected {
		t.Fatalf("publish = %d, %v", res, err)
	}
	if b.Stats()["offers.not_connected"] != int64(1) {
		t.Error("result not counted")
	}
}

func TestHandleMisuse(t *testing.T) {
	b := newBus(t)
	if _, err := b.Publish(-1, nil); !errors.Is(err, api.ErrInvalidHandle) {
		t.Errorf("negative handle: %v", err)
	}
	if _, err := b.Publish(5, []byte("x")); !errors.Is(err, api.ErrSlotEmpty) {
		t.Errorf("empty slot: %v", err)
	}
	if err := b.RemovePublication(api.PublicationCapacity); !errors.Is(err, api.ErrInvalidHandle) {
		t.Errorf("out of range remove: %v", err)
	}
	if err := b.StartPoll(api.SubscriptionCapacity, func([]byte) {}, 0); !errors.Is(err, api.ErrInvalidHandle) {
		t.Errorf("out of range start: %v", err)
	}
	if err := b.StartPoll(0, nil, 0); api.CodeOf(err) != api.ErrCodeInvalidArgument {
		t.Errorf("nil callback: %v", err)
	}
}

func TestPollLifecycle(t *testing.T) {
	b := newBus(t)
	ph, sh := pubSubPair(t, b, 4)
	var c collector

	if err := b.StartPoll(sh, c.handle, 1); err != nil {
		t.Fatal(err)
	}
	if err := b.StartPoll(sh, c.handle, 1); !errors.Is(err, api.ErrAlreadyPolling) {
		t.Fatalf("second start: %v", err)
	}
	if err := b.StopPoll(sh); err != nil {
		t.Fatal(err)
	}
	if err := b.StopPoll(sh); !errors.Is(err, api.ErrNotPolling) {
		t.Fatalf("second stop: %v", err)
	}

	b.Publish(ph, []byte("queued"))
	time.Sleep(10 * time.Millisecond)
	c.mu.Lock()
	delivered := len(c.msgs)
	c.mu.Unlock()
	if delivered != 0 {
		t.Fatal("stopped loop delivered a message")
	}

	if err := b.StartPoll(sh, c.handle, -1); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if got := c.wait(t, 1); string(got[0]) != "queued" {
		t.Fatalf("got %q", got[0])
	}
	if b.Stats()["poll_loops.running"] != 1 {
		t.Errorf("running loops = %v", b.Stats()["poll_loops.running"])
	}

	if err := b.RemoveSubscription(sh); err != nil {
		t.Fatal(err)
	}
	if b.Stats()["poll_loops.running"] != 0 {
		t.Error("loop survived subscription removal")
	}
	if _, err := b.IsPolling(sh); !errors.Is(err, api.ErrSlotEmpty) {
		t.Errorf("removed slot: %v", err)
	}
}

func TestCallbackPanicIsReported(t *testing.T) {
	errs := make(chan error, 4)
	b := newBus(t, facade.WithCallbacks(facade.Callbacks{
		OnError: func(err error) { errs <- err },
	}))
	ph, sh := pubSubPair(t, b, 5)

	var c collector
	err := b.StartPoll(sh, func(buf []byte) {
		if string(buf) == "boom" {
			panic("bad payload")
		}
		c.handle(buf)
	}, 0)
	if err != nil {
		t.Fatal(err)
	}
	b.Publish(ph, []byte("boom"))
	b.Publish(ph, []byte("after"))

	select {
	case err := <-errs:
		if err == nil {
			t.Fatal("nil error reported")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("panic not reported")
	}
	if got := c.wait(t, 1); string(got[0]) != "after" {
		t.Fatalf("loop did not continue: %q", got[0])
	}
}

func TestDestroyReleasesEverything(t *testing.T) {
	b := newBus(t)
	ph, sh := pubSubPair(t, b, 6)
	if err := b.StartPoll(sh, func([]byte) {}, 0); err != nil {
		t.Fatal(err)
	}

	b.Destroy()
	b.Destroy()
	if b.Status() != api.SessionClosed {
		t.Fatalf("status = %s", b.Status())
	}
	if _, err := b.Publish(ph, []byte("x")); !errors.Is(err, api.ErrSlotEmpty) {
		t.Errorf("publish after destroy: %v", err)
	}
	if _, err := b.AddPublication(context.Background(), "aeron:ipc", 1); !errors.Is(err, api.ErrNotConnected) {
		t.Errorf("add after destroy: %v", err)
	}
}

func TestDestroyWhileCallbackReadsStats(t *testing.T) {
	b := newBus(t)
	ph, sh := pubSubPair(t, b, 7)

	entered := make(chan struct{})
	var once sync.Once
	err := b.StartPoll(sh, func([]byte) {
		once.Do(func() { close(entered) })
		time.Sleep(50 * time.Millisecond)
		_ = b.Stats()
	}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.Publish(ph, []byte("stats")); err != nil {
		t.Fatal(err)
	}
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("callback never ran")
	}

	done := make(chan struct{})
	go func() {
		b.Destroy()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Destroy blocked behind a callback reading Stats")
	}
	if b.Status() != api.SessionClosed {
		t.Fatalf("status = %s", b.Status())
	}
}

func TestInitializeStatus(t *testing.T) {
	dir := t.TempDir()

	b, status := facade.Initialize(dir)
	if status != api.StatusFailure || b == nil {
		t.Fatalf("without driver: status %d", status)
	}
	if b.Status() == api.SessionActive {
		t.Fatal("failed bus reports active")
	}
	if _, err := b.AddSubscription(context.Background(), "aeron:ipc", 1); !errors.Is(err, api.ErrNotConnected) {
		t.Fatalf("add on failed bus: %v", err)
	}

	md, err := driver.Launch(driver.DefaultConfig(dir))
	if err != nil {
		t.Fatal(err)
	}
	defer md.Close()

	b, status = facade.Initialize(dir)
	if status != api.StatusOK {
		t.Fatalf("with driver: status %d", status)
	}
	defer b.Destroy()
	if info := b.Info(); info.Status != api.SessionActive || info.ClientName == "" {
		t.Errorf("info = %+v", info)
	}
}

func TestTwoBusesShareEmbeddedDriver(t *testing.T) {
	first := newBus(t)
	cfg := facade.DefaultConfig()
	cfg.Dir = first.Info().Dir
	second, err := facade.New(cfg, facade.WithLogger(zap.NewNop()))
	if err != nil {
		t.Fatal(err)
	}
	if err := second.Initialize(context.Background()); err != nil {
		t.Fatalf("second bus: %v", err)
	}
	defer second.Destroy()

	ctx := context.Background()
	sh, err := first.AddSubscription(ctx, "aeron:ipc", 8)
	if err != nil {
		t.Fatal(err)
	}
	ph, err := second.AddPublication(ctx, "aeron:ipc", 8)
	if err != nil {
		t.Fatal(err)
	}
	var c collector
	if err := first.StartPoll(sh, c.handle, 0); err != nil {
		t.Fatal(err)
	}
	second.Publish(ph, []byte("across"))
	if got := c.wait(t, 1); string(got[0]) != "across" {
		t.Fatalf("got %q", got[0])
	}
}
