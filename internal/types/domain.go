// Package types defines the shared domain model for the subscription event
// pipeline: the inbound event envelope, the upstream Stripe snapshots, the
// persisted subscriber item, and the pipeline error taxonomy.
package types

import "time"

// EventType is the subscription lifecycle discriminator carried in the
// EventBridge envelope's detail-type field. The state machine branches on it
// before invoking the upsert handler.
type EventType string

const (
	EventSubscriptionCreated EventType = "customer.subscription.created"
	EventSubscriptionUpdated EventType = "customer.subscription.updated"
	EventSubscriptionDeleted EventType = "customer.subscription.deleted"
	EventSubscriptionPaused  EventType = "customer.subscription.paused"
	EventSubscriptionResumed EventType = "customer.subscription.resumed"
)

// Known reports whether the event type is one of the five lifecycle kinds
// this pipeline handles.
func (t EventType) Known() bool {
	switch t {
	case EventSubscriptionCreated,
		EventSubscriptionUpdated,
		EventSubscriptionDeleted,
		EventSubscriptionPaused,
		EventSubscriptionResumed:
		return true
	default:
		return false
	}
}

// SubscriberStatus is the status stored on a subscriber row. Active mirrors
// whatever Stripe reports for the subscription; canceled and paused are set
// by the partial-update branches.
type SubscriberStatus string

const (
	SubscriberActive   SubscriberStatus = "active"
	SubscriberCanceled SubscriberStatus = "canceled"
	SubscriberPaused   SubscriberStatus = "paused"
)

// TaskInput is the Step Functions task payload wrapper. LambdaInvoke tasks
// deliver the previous step's output under a "Payload" key.
type TaskInput struct {
	Payload InboundEvent `json:"Payload"`
}

// InboundEvent is the EventBridge envelope for a Stripe subscription
// lifecycle event. Only the fields the pipeline consumes are modeled; the
// envelope is otherwise opaque and read-only.
type InboundEvent struct {
	DetailType EventType   `json:"detail-type"`
	Source     string      `json:"source,omitempty"`
	Detail     EventDetail `json:"detail"`
}

// EventDetail is the Stripe event body inside the EventBridge envelope.
type EventDetail struct {
	Data EventData `json:"data"`
}

// EventData wraps the Stripe API object the event describes.
type EventData struct {
	Object EventObject `json:"object"`
}

// EventObject carries the subscription identifier the upserter resolves.
type EventObject struct {
	ID string `json:"id"`
}

// SubscriptionID returns the subscription identifier embedded in the event,
// or "" if absent.
func (e *InboundEvent) SubscriptionID() string {
	return e.Detail.Data.Object.ID
}

// SubscriptionRecord is the authoritative subscription snapshot fetched from
// Stripe per invocation. It is never cached across invocations. Timestamps
// are Unix epoch seconds as reported by the Stripe API.
type SubscriptionRecord struct {
	ID          string
	CustomerID  string
	Status      string
	StartDate   int64
	CanceledAt  *int64
	PlanID      *string
	AmountCents *int64
}

// CustomerRecord is the customer snapshot fetched from Stripe. Email is the
// storage key and is mandatory; everything else is carried as-is onto the
// subscriber row.
type CustomerRecord struct {
	ID      string
	Email   string
	Name    string
	Address *CustomerAddress
}

// CustomerAddress is the customer's address/contact block.
type CustomerAddress struct {
	Line1      string `json:"line1,omitempty" dynamodbav:"line1,omitempty"`
	Line2      string `json:"line2,omitempty" dynamodbav:"line2,omitempty"`
	City       string `json:"city,omitempty" dynamodbav:"city,omitempty"`
	State      string `json:"state,omitempty" dynamodbav:"state,omitempty"`
	PostalCode string `json:"postal_code,omitempty" dynamodbav:"postal_code,omitempty"`
	Country    string `json:"country,omitempty" dynamodbav:"country,omitempty"`
}

// SubscriberItem is the flattened record persisted in the subscribers table.
// Email is the partition key; at most one live row exists per email. Writes
// are idempotent: replaying the same event recomputes the same final state.
//
// Rows are never hard-deleted by the pipeline. A deleted event transitions
// status to canceled and stamps planned_deletion_date, which the table's TTL
// configuration sweeps later.
type SubscriberItem struct {
	Email          string           `json:"email" dynamodbav:"email"`
	SubscriptionID string           `json:"subscription_id" dynamodbav:"subscription_id"`
	CustomerID     string           `json:"customer_id" dynamodbav:"customer_id"`
	FullName       string           `json:"full_name" dynamodbav:"full_name"`
	SubscriberInfo *CustomerAddress `json:"subscriber_info,omitempty" dynamodbav:"subscriber_info,omitempty"`
	Status         SubscriberStatus `json:"status" dynamodbav:"status"`
	StartDate      int64            `json:"start_date" dynamodbav:"start_date"`
	EndDate        *int64           `json:"end_date,omitempty" dynamodbav:"end_date,omitempty"`
	PlanID         *string          `json:"plan_id,omitempty" dynamodbav:"plan_id,omitempty"`
	AmountCents    *int64           `json:"amount,omitempty" dynamodbav:"amount,omitempty"`

	// Stamps derived from the invocation clock, all UTC.
	LastUpdated      string `json:"last_updated" dynamodbav:"last_updated"`           // YYYY-MM-DD
	SubscriptionDate string `json:"subscription_date" dynamodbav:"subscription_date"` // YYYY-MM-DD
	SignupTimestamp  string `json:"signup_timestamp" dynamodbav:"signup_timestamp"`   // RFC 3339
}

// Stamp formats used for SubscriberItem date fields.
const (
	DateStampLayout = "2006-01-02"
	TimestampLayout = time.RFC3339
)

// UpsertResult is the JSON payload returned to the state machine after a
// storage mutation. UpdatedFields echoes the attributes the storage layer
// reported as changed (empty for full replaces, which report nothing).
type UpsertResult struct {
	Message        string         `json:"message"`
	SubscriptionID string         `json:"subscription_id"`
	CustomerID     string         `json:"customer_id"`
	Operation      string         `json:"operation"`
	UpdatedFields  map[string]any `json:"updated_fields"`
}
