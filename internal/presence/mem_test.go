package presence

import (
	"context"
	"testing"
	"time"
)

func testInfo(clientID string, startedAt time.Time) StreamInfo {
	return StreamInfo{
		ClientID:  clientID,
		Broker:    "mqtt://test.broker.local:1883",
		Topic:     "devices/#",
		RemoteIP:  "203.0.113.9",
		StartedAt: startedAt,
	}
}

func TestMemRegistry_AddAndList(t *testing.T) {
	r := NewMemRegistry()
	ctx := context.Background()
	now := time.Now().UTC()

	if err := r.Add(ctx, testInfo("b", now.Add(time.Second)), time.Minute); err != nil {
		t.Fatal(err)
	}
	if err := r.Add(ctx, testInfo("a", now), time.Minute); err != nil {
		t.Fatal(err)
	}

	infos, err := r.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 2 {
		t.Fatalf("expected 2 entries, got %v", len(infos))
	}
	// ordered by start time
	if infos[0].ClientID != "a" || infos[1].ClientID != "b" {
		t.Errorf("unexpected order: %v, %v", infos[0].ClientID, infos[1].ClientID)
	}
}

func TestMemRegistry_AddOverwritesSameClientID(t *testing.T) {
	r := NewMemRegistry()
	ctx := context.Background()

	info := testInfo("a", time.Now())
	if err := r.Add(ctx, info, time.Minute); err != nil {
		t.Fatal(err)
	}
	info.Topic = "devices/x/telemetry"
	if err := r.Add(ctx, info, time.Minute); err != nil {
		t.Fatal(err)
	}

	infos, _ := r.List(ctx)
	if len(infos) != 1 {
		t.Fatalf("expected 1 entry, got %v", len(infos))
	}
	if infos[0].Topic != "devices/x/telemetry" {
		t.Errorf("entry not overwritten: %v", infos[0].Topic)
	}
}

func TestMemRegistry_Remove(t *testing.T) {
	r := NewMemRegistry()
	ctx := context.Background()

	if err := r.Add(ctx, testInfo("a", time.Now()), time.Minute); err != nil {
		t.Fatal(err)
	}
	if err := r.Remove(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if err := r.Remove(ctx, "a"); err != nil {
		t.Errorf("removing a missing entry should not fail: %v", err)
	}

	infos, _ := r.List(ctx)
	if len(infos) != 0 {
		t.Errorf("expected empty registry, got %v entries", len(infos))
	}
}

func TestMemRegistry_ExpiredEntriesAreHidden(t *testing.T) {
	r := NewMemRegistry()
	ctx := context.Background()

	if err := r.Add(ctx, testInfo("a", time.Now()), 10*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	time.Sleep(30 * time.Millisecond)

	infos, _ := r.List(ctx)
	if len(infos) != 0 {
		t.Errorf("expired entry still listed: %+v", infos)
	}
}

func TestMemRegistry_TouchExtendsTTL(t *testing.T) {
	r := NewMemRegistry()
	ctx := context.Background()

	if err := r.Add(ctx, testInfo("a", time.Now()), 40*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	time.Sleep(25 * time.Millisecond)
	if err := r.Touch(ctx, "a", time.Minute); err != nil {
		t.Fatal(err)
	}
	time.Sleep(30 * time.Millisecond)

	infos, _ := r.List(ctx)
	if len(infos) != 1 {
		t.Errorf("touched entry expired anyway")
	}
}

func TestMemRegistry_TouchUnknownClientIsNoop(t *testing.T) {
	r := NewMemRegistry()
	if err := r.Touch(context.Background(), "ghost", time.Minute); err != nil {
		t.Errorf("touching a missing entry should not fail: %v", err)
	}
}

func TestMemRegistry_HealthCheck(t *testing.T) {
	r := NewMemRegistry()
	if err := r.HealthCheck(); err != nil {
		t.Errorf("HealthCheck() = %v", err)
	}
}
