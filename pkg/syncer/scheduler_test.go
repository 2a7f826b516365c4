package syncer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/teliax/ringer-docs/pkg/store"
)

func TestTriggerRejectsConcurrentRun(t *testing.T) {
	client := newRemote()
	client.block = make(chan struct{})

	h := newHarness(t, client)
	log, _ := logtest.NewNullLogger()

	sched := NewScheduler(log, h.syncer, SchedulerOptions{})

	var (
		wg       sync.WaitGroup
		firstRun *store.SyncRun
		firstErr error
	)

	wg.Add(1)

	go func() {
		defer wg.Done()

		firstRun, firstErr = sched.Trigger(context.Background(), store.SyncTriggerAPI, false)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for !sched.Running() {
		if time.Now().After(deadline) {
			t.Fatal("first sync never started")
		}

		time.Sleep(5 * time.Millisecond)
	}

	if _, err := sched.Trigger(context.Background(), store.SyncTriggerAPI, false); !errors.Is(err, ErrSyncInProgress) {
		t.Fatalf("error = %v, want ErrSyncInProgress", err)
	}

	close(client.block)
	wg.Wait()

	if firstErr != nil || firstRun.Status != store.SyncStatusSucceeded {
		t.Fatalf("first run = %+v, %v", firstRun, firstErr)
	}

	if sched.Running() {
		t.Error("scheduler still running after completion")
	}

	if sched.LastRun() != firstRun {
		t.Error("LastRun should return the finished run")
	}
}

func TestTriggerCallsCallback(t *testing.T) {
	h := newHarness(t, newRemote())
	log, _ := logtest.NewNullLogger()

	sched := NewScheduler(log, h.syncer, SchedulerOptions{})

	var got []*store.SyncRun

	sched.SetSyncCallback(func(run *store.SyncRun) {
		got = append(got, run)
	})

	run, err := sched.Trigger(context.Background(), store.SyncTriggerCLI, false)
	if err != nil {
		t.Fatal(err)
	}

	if len(got) != 1 || got[0] != run {
		t.Fatalf("callback runs = %v", got)
	}
}

func TestScheduledSkipsOnLowRateLimit(t *testing.T) {
	client := newRemote()
	client.remaining = 3

	h := newHarness(t, client)
	log, _ := logtest.NewNullLogger()

	sched := NewScheduler(log, h.syncer, SchedulerOptions{RateLimitBuffer: 10}).(*scheduler)
	sched.scheduled(context.Background())

	if listed, _ := client.calls(); len(listed) != 0 {
		t.Errorf("expected no listing, got %v", listed)
	}

	if sched.LastRun() != nil {
		t.Error("expected no run")
	}

	client.remaining = 10
	sched.scheduled(context.Background())

	if run := sched.LastRun(); run == nil || run.Trigger != store.SyncTriggerSchedule {
		t.Errorf("last run = %+v", run)
	}
}

func TestStartRunsInitialSyncAndStops(t *testing.T) {
	h := newHarness(t, newRemote())
	log, _ := logtest.NewNullLogger()

	sched := NewScheduler(log, h.syncer, SchedulerOptions{Interval: time.Hour})

	if err := sched.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for sched.LastRun() == nil {
		if time.Now().After(deadline) {
			t.Fatal("initial sync never ran")
		}

		time.Sleep(5 * time.Millisecond)
	}

	if err := sched.Stop(); err != nil {
		t.Fatal(err)
	}
}

func TestPrune(t *testing.T) {
	h := newHarness(t, newRemote())
	ctx := context.Background()
	log, _ := logtest.NewNullLogger()

	now := time.Now().UTC()

	for id, started := range map[string]time.Time{
		"ancient": now.Add(-40 * 24 * time.Hour),
		"recent":  now.Add(-time.Hour),
	} {
		if err := h.store.CreateSyncRun(ctx, &store.SyncRun{
			ID: id, Trigger: store.SyncTriggerSchedule, Source: "s", Status: store.SyncStatusSucceeded, StartedAt: started,
		}); err != nil {
			t.Fatal(err)
		}
	}

	sched := NewScheduler(log, h.syncer, SchedulerOptions{Retention: 30 * 24 * time.Hour})

	deleted, err := sched.Prune(ctx)
	if err != nil || deleted != 1 {
		t.Fatalf("deleted = %d, %v", deleted, err)
	}

	if run, _ := h.store.GetSyncRun(ctx, "recent"); run == nil {
		t.Error("recent run should be kept")
	}

	action := store.AuditActionHistoryPruned

	entries, total, err := h.store.ListAuditEntries(ctx, store.AuditQueryOpts{Action: &action})
	if err != nil || total != 1 || entries[0].Actor != "system" {
		t.Errorf("audit entries = %+v, %d, %v", entries, total, err)
	}

	disabled := NewScheduler(log, h.syncer, SchedulerOptions{})
	if deleted, err := disabled.Prune(ctx); err != nil || deleted != 0 {
		t.Errorf("disabled prune = %d, %v", deleted, err)
	}
}
