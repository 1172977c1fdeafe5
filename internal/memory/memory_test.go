package memory

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testMonitor(limit int64, alloc *uint64) *Monitor {
	m := NewMonitor(Config{
		Limit:             limit,
		HighWaterMark:     0.7,
		CriticalWaterMark: 0.85,
		CheckInterval:     time.Millisecond,
	})
	m.readAlloc = func() uint64 { return *alloc }
	m.collect = func() {}
	return m
}

func TestMonitorPausesAndResumes(t *testing.T) {
	alloc := uint64(10)
	m := testMonitor(100, &alloc)

	m.check()
	if m.Paused() {
		t.Fatal("Expected monitor not paused at 10%")
	}
	if err := m.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	alloc = 90
	m.check()
	if !m.Paused() {
		t.Fatal("Expected monitor paused at 90%")
	}
	if got := m.Usage(); got != 0.9 {
		t.Errorf("Usage() = %v, want 0.9", got)
	}

	waited := make(chan error, 1)
	go func() { waited <- m.Wait(context.Background()) }()

	// Between the marks the monitor stays paused.
	alloc = 80
	m.check()
	select {
	case err := <-waited:
		t.Fatalf("Wait returned early: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	alloc = 50
	m.check()
	select {
	case err := <-waited:
		if err != nil {
			t.Errorf("Wait() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after recovery")
	}
	if m.Paused() {
		t.Error("Expected monitor resumed")
	}
}

func TestMonitorWaitHonoursContext(t *testing.T) {
	alloc := uint64(99)
	m := testMonitor(100, &alloc)
	m.check()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := m.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() error = %v, want deadline exceeded", err)
	}
}

func TestMonitorStopReleasesWaiters(t *testing.T) {
	alloc := uint64(99)
	m := testMonitor(100, &alloc)
	m.check()

	waited := make(chan error, 1)
	go func() { waited <- m.Wait(context.Background()) }()

	m.Stop()
	select {
	case err := <-waited:
		if !errors.Is(err, ErrStopped) {
			t.Errorf("Wait() error = %v, want ErrStopped", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after Stop")
	}
}

func TestMonitorStartStop(t *testing.T) {
	alloc := uint64(90)
	m := testMonitor(100, &alloc)
	m.Start()
	m.Start()

	deadline := time.Now().Add(time.Second)
	for !m.Paused() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if !m.Paused() {
		t.Error("Expected sampling loop to pause the monitor")
	}

	m.Stop()
	m.Stop()
}

func TestMonitorWithoutLimit(t *testing.T) {
	m := NewMonitor(Config{HighWaterMark: 0.7, CriticalWaterMark: 0.85, CheckInterval: time.Millisecond})
	m.limit = 0
	m.readAlloc = func() uint64 { return 1 << 40 }

	m.Start()
	m.check()
	if m.Enabled() || m.Paused() || m.Usage() != 0 {
		t.Error("Expected a monitor without limit to stay disabled")
	}
	m.Stop()
}
