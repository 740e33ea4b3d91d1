package health

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeProbe struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (f *fakeProbe) Health(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

func (f *fakeProbe) set(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeProbe) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestMonitorOfflineUntilFirstProbe(t *testing.T) {
	monitor := NewMonitor(&fakeProbe{}, time.Minute, nil)
	if monitor.Online() {
		t.Error("expected offline before any probe")
	}
}

func TestMonitorCheckTogglesFlag(t *testing.T) {
	probe := &fakeProbe{}
	monitor := NewMonitor(probe, time.Minute, nil)

	if !monitor.Check(context.Background()) {
		t.Fatal("expected successful probe")
	}
	if !monitor.Online() {
		t.Error("expected online after successful probe")
	}

	probe.set(errors.New("connection refused"))
	if monitor.Check(context.Background()) {
		t.Fatal("expected failed probe")
	}
	if monitor.Online() {
		t.Error("expected offline after failed probe")
	}

	probe.set(nil)
	monitor.Check(context.Background())
	if !monitor.Online() {
		t.Error("expected online after recovery")
	}
}

func TestMonitorRunProbesPeriodically(t *testing.T) {
	probe := &fakeProbe{}
	monitor := NewMonitor(probe, 10*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		monitor.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for probe.callCount() < 3 {
		select {
		case <-deadline:
			t.Fatal("monitor did not probe repeatedly")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop on cancellation")
	}
}
