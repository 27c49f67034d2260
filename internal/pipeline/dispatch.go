package pipeline

import (
	"time"

	"subsync/internal/store"
	"subsync/internal/types"
)

// operationKind distinguishes the two storage mutation shapes.
type operationKind int

const (
	// opReplace is an unconditional full replace of the row (PutItem).
	opReplace operationKind = iota
	// opPartialUpdate mutates a fixed field set and leaves everything
	// else on the row untouched (UpdateItem).
	opPartialUpdate
)

// Operation labels echoed to the orchestrator in the result payload.
const (
	labelUpserted = "inserted/updated"
	labelCanceled = "canceled"
	labelPaused   = "paused"
)

// cancelRetention is how long a canceled row is kept before the table's TTL
// sweep may expire it. The pipeline only stamps planned_deletion_date; the
// actual expiry is the storage platform's job.
const cancelRetention = 90 * 24 * time.Hour

// operation describes how one event type mutates storage: which call shape
// to use, the label to report, and (for partial updates) the exact field set
// to touch.
type operation struct {
	kind  operationKind
	label string

	// fields builds the partial update set from the derived item and the
	// invocation clock. Nil for full replaces.
	fields func(item *types.SubscriberItem, now time.Time) store.AttributeUpdates
}

// operations is the dispatch table mapping each lifecycle event type to its
// storage operation. created/resumed/updated share a single full-replace
// entry; deleted and paused each touch only their documented field sets.
var operations = map[types.EventType]operation{
	types.EventSubscriptionCreated: {kind: opReplace, label: labelUpserted},
	types.EventSubscriptionResumed: {kind: opReplace, label: labelUpserted},
	types.EventSubscriptionUpdated: {kind: opReplace, label: labelUpserted},

	types.EventSubscriptionDeleted: {
		kind:  opPartialUpdate,
		label: labelCanceled,
		fields: func(item *types.SubscriberItem, now time.Time) store.AttributeUpdates {
			return store.AttributeUpdates{
				"status":                types.SubscriberCanceled,
				"end_date":              item.EndDate,
				"last_updated":          item.LastUpdated,
				"planned_deletion_date": now.Add(cancelRetention).Unix(),
			}
		},
	},

	types.EventSubscriptionPaused: {
		kind:  opPartialUpdate,
		label: labelPaused,
		fields: func(item *types.SubscriberItem, _ time.Time) store.AttributeUpdates {
			return store.AttributeUpdates{
				"status":       types.SubscriberPaused,
				"last_updated": item.LastUpdated,
			}
		},
	},
}

// lookupOperation returns the storage operation for an event type, or false
// for unknown discriminators (which must not mutate storage).
func lookupOperation(t types.EventType) (operation, bool) {
	op, ok := operations[t]
	return op, ok
}
