package pipeline

import (
	"testing"
	"time"

	"subsync/internal/types"
)

func TestLookupOperation_ReplaceBranches(t *testing.T) {
	for _, et := range []types.EventType{
		types.EventSubscriptionCreated,
		types.EventSubscriptionResumed,
		types.EventSubscriptionUpdated,
	} {
		op, ok := lookupOperation(et)
		if !ok {
			t.Fatalf("no operation for %s", et)
		}
		if op.kind != opReplace {
			t.Errorf("%s: kind = %v, want opReplace", et, op.kind)
		}
		if op.label != labelUpserted {
			t.Errorf("%s: label = %q, want %q", et, op.label, labelUpserted)
		}
		if op.fields != nil {
			t.Errorf("%s: replace branch should not carry a field set", et)
		}
	}
}

func TestLookupOperation_Unknown(t *testing.T) {
	if _, ok := lookupOperation("customer.subscription.trial_will_end"); ok {
		t.Error("unexpected operation for unhandled event type")
	}
	if _, ok := lookupOperation(""); ok {
		t.Error("unexpected operation for empty event type")
	}
}

func TestDeletedFieldSet(t *testing.T) {
	op, ok := lookupOperation(types.EventSubscriptionDeleted)
	if !ok {
		t.Fatal("no operation for deleted")
	}
	if op.kind != opPartialUpdate {
		t.Fatalf("kind = %v, want opPartialUpdate", op.kind)
	}
	if op.label != labelCanceled {
		t.Errorf("label = %q, want %q", op.label, labelCanceled)
	}

	endDate := int64(1700000500)
	item := &types.SubscriberItem{
		EndDate:     &endDate,
		LastUpdated: "2026-08-31",
	}
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	fields := op.fields(item, now)

	if got := fields["status"]; got != types.SubscriberCanceled {
		t.Errorf("status = %v, want canceled", got)
	}
	if got := fields["end_date"]; got != item.EndDate {
		t.Errorf("end_date = %v", got)
	}
	if got := fields["last_updated"]; got != "2026-08-31" {
		t.Errorf("last_updated = %v", got)
	}
	wantDeletion := now.Add(cancelRetention).Unix()
	if got := fields["planned_deletion_date"]; got != wantDeletion {
		t.Errorf("planned_deletion_date = %v, want %d", got, wantDeletion)
	}
	if len(fields) != 4 {
		t.Errorf("deleted must touch exactly 4 fields, got %d: %v", len(fields), fields)
	}
}

func TestPausedFieldSet(t *testing.T) {
	op, ok := lookupOperation(types.EventSubscriptionPaused)
	if !ok {
		t.Fatal("no operation for paused")
	}
	if op.label != labelPaused {
		t.Errorf("label = %q, want %q", op.label, labelPaused)
	}

	item := &types.SubscriberItem{LastUpdated: "2026-08-31"}
	fields := op.fields(item, time.Now())

	if got := fields["status"]; got != types.SubscriberPaused {
		t.Errorf("status = %v, want paused", got)
	}
	if got := fields["last_updated"]; got != "2026-08-31" {
		t.Errorf("last_updated = %v", got)
	}
	if len(fields) != 2 {
		t.Errorf("paused must touch exactly 2 fields, got %d: %v", len(fields), fields)
	}
}
