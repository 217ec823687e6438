package services

import (
	"context"
	"errors"
	"testing"
	"time"

	flog "finboard/internal/log"
)

func TestDefaultSchedulerConfig(t *testing.T) {
	config := DefaultSchedulerConfig()

	if config.Interval != 15*time.Minute {
		t.Errorf("expected Interval 15m, got %v", config.Interval)
	}
	if !config.RunOnStart {
		t.Error("expected RunOnStart to default to true")
	}
}

func TestScheduler_IsRunning(t *testing.T) {
	s := NewScheduler(&fakeRefresher{}, DefaultSchedulerConfig(), flog.Discard())

	if s.IsRunning() {
		t.Error("scheduler should not be running initially")
	}
}

func TestScheduler_StartTwice(t *testing.T) {
	s := NewScheduler(&fakeRefresher{}, SchedulerConfig{Interval: time.Hour}, flog.Discard())
	ctx := context.Background()

	if err := s.Start(ctx); err != nil {
		t.Fatalf("first start: %v", err)
	}
	defer s.Stop(ctx)

	if err := s.Start(ctx); err == nil {
		t.Error("expected error when starting already running scheduler")
	}
}

func TestScheduler_StopNotRunning(t *testing.T) {
	s := NewScheduler(&fakeRefresher{}, DefaultSchedulerConfig(), flog.Discard())

	if err := s.Stop(context.Background()); err != nil {
		t.Errorf("Stop should not error when not running: %v", err)
	}
}

func TestScheduler_RefreshesOnStartAndTick(t *testing.T) {
	r := &fakeRefresher{}
	s := NewScheduler(r, SchedulerConfig{Interval: 10 * time.Millisecond, RunOnStart: true}, flog.Discard())
	ctx := context.Background()

	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for r.count() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("expected at least 3 refreshes, got %d", r.count())
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := s.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if s.IsRunning() {
		t.Error("scheduler should be stopped")
	}

	r.mu.Lock()
	first := r.reasons[0]
	r.mu.Unlock()
	if first != "startup" {
		t.Errorf("expected first refresh reason startup, got %s", first)
	}
}

func TestScheduler_RecordsFailures(t *testing.T) {
	boom := errors.New("sheet unavailable")
	r := &fakeRefresher{err: boom}
	s := NewScheduler(r, SchedulerConfig{RunOnStart: true}, flog.Discard())
	ctx := context.Background()

	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for r.count() < 1 {
		if time.Now().After(deadline) {
			t.Fatal("startup refresh never ran")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	runs, lastErr := s.Runs()
	if runs != 1 || !errors.Is(lastErr, boom) {
		t.Fatalf("expected one failed run, got %d %v", runs, lastErr)
	}
}
