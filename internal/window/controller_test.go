package window

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeOverrideStore struct {
	mu      sync.Mutex
	enabled bool
	getErr  error
	setErr  error
}

func (f *fakeOverrideStore) GetDevMode(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return false, f.getErr
	}
	return f.enabled, nil
}

func (f *fakeOverrideStore) SetDevMode(ctx context.Context, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	f.enabled = enabled
	return nil
}

func testController(t *testing.T, hour int, opts ...Option) *Controller {
	t.Helper()
	s := seoulSchedule(t)
	clock := func() time.Time {
		return time.Date(2025, 6, 1, hour, 0, 0, 0, s.Location)
	}
	all := append([]Option{WithClock(clock)}, opts...)
	c := NewController(s, all...)
	t.Cleanup(c.Close)
	return c
}

func TestControllerStateClosedMidday(t *testing.T) {
	c := testController(t, 12)
	state := c.State()
	if state.IsOpen {
		t.Fatal("expected closed at noon with no override")
	}
	if state.TimeLeft != 12*time.Hour {
		t.Errorf("TimeLeft = %v, want 12h", state.TimeLeft)
	}
}

func TestControllerLocalOverride(t *testing.T) {
	c := testController(t, 12)
	c.SetLocalOverride(true)
	if !c.State().IsOpen {
		t.Fatal("local override must force open")
	}
	c.SetLocalOverride(false)
	if c.State().IsOpen {
		t.Fatal("clearing local override must close outside the window")
	}
}

func TestControllerSharedOverrideWrite(t *testing.T) {
	store := &fakeOverrideStore{}
	c := testController(t, 12, WithOverrideStore(store))

	if err := c.SetSharedOverride(context.Background(), true); err != nil {
		t.Fatalf("SetSharedOverride: %v", err)
	}
	if !c.State().IsOpen {
		t.Fatal("shared override must force open")
	}
	if !store.enabled {
		t.Fatal("write must reach the store")
	}
}

func TestControllerSharedOverrideWriteRejected(t *testing.T) {
	store := &fakeOverrideStore{setErr: errors.New("permission denied")}
	c := testController(t, 12, WithOverrideStore(store))

	if err := c.SetSharedOverride(context.Background(), true); err == nil {
		t.Fatal("expected write rejection to surface")
	}
	if c.SharedOverride() {
		t.Fatal("cache must be unchanged after rejected write")
	}
	if c.State().IsOpen {
		t.Fatal("rejected write must not open the window")
	}
}

func TestControllerSharedFetchFailureDefaultsOff(t *testing.T) {
	store := &fakeOverrideStore{enabled: true, getErr: errors.New("unavailable")}
	c := testController(t, 12, WithOverrideStore(store))

	c.refreshShared()
	if c.SharedOverride() {
		t.Fatal("fetch failure must default the shared flag to false")
	}
	// State computation still succeeds from the clock alone.
	if c.State().IsOpen {
		t.Fatal("expected closed at noon")
	}
}

func TestControllerNotifyRefreshesCache(t *testing.T) {
	store := &fakeOverrideStore{}
	c := testController(t, 12, WithOverrideStore(store))

	store.mu.Lock()
	store.enabled = true
	store.mu.Unlock()

	c.refreshShared()
	if !c.SharedOverride() {
		t.Fatal("notification must refresh the cached shared flag")
	}
}

func TestControllerSubscribeReceivesTicks(t *testing.T) {
	c := testController(t, 2, WithTickInterval(5*time.Millisecond))
	ch, release := c.Subscribe()
	defer release()
	c.Start()

	select {
	case state := <-ch:
		if !state.IsOpen {
			t.Error("expected open state at 02:00")
		}
	case <-time.After(time.Second):
		t.Fatal("no tick delivered within 1s")
	}
}

func TestControllerReleaseStopsDelivery(t *testing.T) {
	c := testController(t, 2)
	ch, release := c.Subscribe()
	release()

	c.broadcast(c.State())
	select {
	case <-ch:
		t.Fatal("released subscription must not receive broadcasts")
	default:
	}
}

func TestControllerOverrideChangeNotifiesSubscribers(t *testing.T) {
	c := testController(t, 12)
	ch, release := c.Subscribe()
	defer release()

	c.SetLocalOverride(true)
	select {
	case state := <-ch:
		if !state.IsOpen {
			t.Error("broadcast after override change must reflect the new state")
		}
	default:
		t.Fatal("override change must broadcast immediately")
	}
}

func TestControllerSetSharedWithoutStore(t *testing.T) {
	c := testController(t, 12)
	if err := c.SetSharedOverride(context.Background(), true); !errors.Is(err, ErrNoOverrideStore) {
		t.Fatalf("err = %v, want ErrNoOverrideStore", err)
	}
}
