package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fakeGateway is an in-memory Gateway for engine tests.
type fakeGateway struct {
	state  *State
	policy *PolicyDoc

	acquireErr   error
	saveStateErr error
	savedState   int
	savedPolicy  int
	reports      int
	held         bool
}

func (g *fakeGateway) Acquire() error {
	if g.acquireErr != nil {
		return g.acquireErr
	}
	g.held = true
	return nil
}

func (g *fakeGateway) Release() error {
	g.held = false
	return nil
}

func (g *fakeGateway) LoadState() (*State, error) {
	if g.state == nil {
		return DefaultState(), nil
	}
	return g.state, nil
}

func (g *fakeGateway) LoadPolicy() (*PolicyDoc, error) {
	if g.policy == nil {
		return DefaultPolicy(), nil
	}
	return g.policy, nil
}

func (g *fakeGateway) SaveState(s *State) error {
	if g.saveStateErr != nil {
		return g.saveStateErr
	}
	g.state = s
	g.savedState++
	return nil
}

func (g *fakeGateway) SavePolicy(p *PolicyDoc) error {
	g.policy = p
	g.savedPolicy++
	return nil
}

func (g *fakeGateway) WriteReport(res *CycleResult) (string, error) {
	g.reports++
	return "reports/test.md", nil
}

type fakeNotifier struct {
	published []Change
	err       error
}

func (n *fakeNotifier) PublishChanges(_ context.Context, changes []Change) error {
	if n.err != nil {
		return n.err
	}
	n.published = append(n.published, changes...)
	return nil
}

var engineNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func newTestEngine(gw Gateway, notifier Notifier) *Engine {
	e := NewEngine(DefaultConfig(), gw, notifier, zerolog.Nop())
	e.SetClock(func() time.Time { return engineNow })
	return e
}

func TestEngine_RunCycle_EscalatesS3AtThreshold(t *testing.T) {
	gw := &fakeGateway{}
	notifier := &fakeNotifier{}
	e := newTestEngine(gw, notifier)

	res, err := e.RunCycle(context.Background(), []Finding{
		{Category: CategoryS3Public, Identity: "bucket-a"},
		{Category: CategoryS3Public, Identity: "bucket-b"},
		{Category: CategoryS3Public, Identity: "bucket-c"},
	})
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if got := res.Counters[CounterKey(CategoryS3Public)]; got != 3 {
		t.Errorf("S3_PUBLIC_24h = %d, want 3", got)
	}
	cp := res.Policy.Policy[CategoryS3Public]
	if !cp.Flag("auto_remediate_public") || cp.Flag("auto_tag_only") {
		t.Errorf("expected auto_remediate_public=true auto_tag_only=false, got %+v", cp.Flags)
	}
	if len(res.Changes) != 1 {
		t.Errorf("expected one change, got %d", len(res.Changes))
	}
	if len(notifier.published) != 1 {
		t.Errorf("change not published, got %d", len(notifier.published))
	}
	if gw.savedState != 1 || gw.savedPolicy != 1 || gw.reports != 1 {
		t.Errorf("persistence calls state=%d policy=%d reports=%d, want 1/1/1",
			gw.savedState, gw.savedPolicy, gw.reports)
	}
}

func TestEngine_RunCycle_DuplicateAcrossCycles(t *testing.T) {
	gw := &fakeGateway{}
	e := newTestEngine(gw, nil)
	finding := []Finding{{Category: CategoryS3Public, Identity: "bucket-a"}}

	if _, err := e.RunCycle(context.Background(), finding); err != nil {
		t.Fatalf("first cycle: %v", err)
	}
	res, err := e.RunCycle(context.Background(), finding)
	if err != nil {
		t.Fatalf("second cycle: %v", err)
	}
	if len(res.State.Events) != 1 {
		t.Errorf("expected one stored event after duplicate cycles, got %d", len(res.State.Events))
	}
	if got := res.Counters[CounterKey(CategoryS3Public)]; got != 1 {
		t.Errorf("counter = %d after duplicate cycles, want 1", got)
	}
}

func TestEngine_RunCycle_PrunesAgedEvent(t *testing.T) {
	gw := &fakeGateway{state: &State{
		Events: []Event{{
			Category:   CategoryS3Public,
			Identity:   "ancient-bucket",
			ObservedAt: engineNow.Add(-50 * time.Hour).Format(time.RFC3339Nano),
		}},
		Counters: map[string]int{},
	}}
	e := newTestEngine(gw, nil)

	res, err := e.RunCycle(context.Background(), nil)
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if len(res.State.Events) != 0 {
		t.Errorf("50h-old event survived prune: %+v", res.State.Events)
	}
	if got := res.Counters[CounterKey(CategoryS3Public)]; got != 0 {
		t.Errorf("pruned event contributed to counter: %d", got)
	}
	if res.Pruned != 1 {
		t.Errorf("pruned = %d, want 1", res.Pruned)
	}
}

func TestEngine_RunCycle_RejectsInvalidFindingOnly(t *testing.T) {
	gw := &fakeGateway{}
	e := newTestEngine(gw, nil)
	res, err := e.RunCycle(context.Background(), []Finding{
		{Category: "", Identity: "ignored"},
		{Category: CategoryIAMNoMFA, Identity: "arn:aws:iam::123:user/bob"},
	})
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if res.Added != 1 {
		t.Errorf("added = %d, want 1 (bad finding isolated, not fatal)", res.Added)
	}
	if len(res.Warnings) == 0 {
		t.Error("expected a warning for the rejected finding")
	}
}

func TestEngine_RunCycle_SaveFailureIsFatal(t *testing.T) {
	gw := &fakeGateway{saveStateErr: errors.New("disk full")}
	e := newTestEngine(gw, nil)
	if _, err := e.RunCycle(context.Background(), nil); err == nil {
		t.Fatal("expected error when state save fails")
	}
	if gw.savedPolicy != 0 {
		t.Error("policy saved after state save failed")
	}
	if gw.reports != 0 {
		t.Error("report written for a failed cycle")
	}
}

func TestEngine_RunCycle_LockHeldFailsFast(t *testing.T) {
	gw := &fakeGateway{acquireErr: errors.New("lock held by pid 1234")}
	e := newTestEngine(gw, nil)
	if _, err := e.RunCycle(context.Background(), nil); err == nil {
		t.Fatal("expected error when lock is held")
	}
}

func TestEngine_RunCycle_ReleasesLock(t *testing.T) {
	gw := &fakeGateway{}
	e := newTestEngine(gw, nil)
	if _, err := e.RunCycle(context.Background(), nil); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if gw.held {
		t.Error("lock still held after cycle")
	}
}

func TestEngine_RunCycle_NotifyFailureNotFatal(t *testing.T) {
	gw := &fakeGateway{}
	notifier := &fakeNotifier{err: errors.New("nats down")}
	e := newTestEngine(gw, notifier)
	findings := []Finding{
		{Category: CategoryS3Public, Identity: "a"},
		{Category: CategoryS3Public, Identity: "b"},
		{Category: CategoryS3Public, Identity: "c"},
	}
	if _, err := e.RunCycle(context.Background(), findings); err != nil {
		t.Fatalf("publish failure must not fail the cycle: %v", err)
	}
}

func TestEngine_RunCycle_StampsLastUpdated(t *testing.T) {
	gw := &fakeGateway{}
	e := newTestEngine(gw, nil)
	res, err := e.RunCycle(context.Background(), nil)
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if res.State.LastUpdated != engineNow.Format(time.RFC3339Nano) {
		t.Errorf("last_updated = %q, want evaluation time", res.State.LastUpdated)
	}
	if res.Policy.UpdatedAt != engineNow.Format(time.RFC3339Nano) {
		t.Errorf("policy updated_at = %q, want evaluation time even with no changes", res.Policy.UpdatedAt)
	}
}
