package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"subsync/internal/backoff"
	"subsync/internal/config"
	"subsync/internal/external"
	"subsync/internal/store"
	"subsync/internal/types"
)

// Upserter derives a flattened subscriber record from a lifecycle event and
// applies it to the subscribers table. Each invocation is a single-threaded
// sequence of blocking calls; the only intentional suspension point besides
// the network calls themselves is the jittered backoff while waiting for a
// customer to become visible in Stripe.
//
// Nothing is retried here except that customer lookup. Every other failure
// is logged with context and surfaced to the orchestrator, which owns
// invocation-level retries.
type Upserter struct {
	tableParam string
	params     config.ParameterSource
	creds      config.CredentialSource
	stripe     external.SubscriptionService
	store      store.SubscriberStore
	retrier    *backoff.Retrier
	metrics    Metrics
	logger     types.Logger
	now        func() time.Time
}

// UpserterOption is a functional option for configuring an Upserter.
type UpserterOption func(*Upserter)

// WithClock overrides the invocation clock. Intended for tests.
func WithClock(now func() time.Time) UpserterOption {
	return func(u *Upserter) {
		u.now = now
	}
}

// WithRetrier overrides the customer lookup retrier.
func WithRetrier(r *backoff.Retrier) UpserterOption {
	return func(u *Upserter) {
		u.retrier = r
	}
}

// WithMetrics sets the telemetry sink.
func WithMetrics(m Metrics) UpserterOption {
	return func(u *Upserter) {
		u.metrics = m
	}
}

// NewUpserter creates an Upserter. tableParam is the SSM parameter naming
// the subscribers table, resolved fresh on every invocation.
func NewUpserter(
	tableParam string,
	params config.ParameterSource,
	creds config.CredentialSource,
	stripeSvc external.SubscriptionService,
	subscriberStore store.SubscriberStore,
	logger types.Logger,
	opts ...UpserterOption,
) *Upserter {
	if logger == nil {
		logger = types.NopLogger{}
	}

	u := &Upserter{
		tableParam: tableParam,
		params:     params,
		creds:      creds,
		stripe:     stripeSvc,
		store:      subscriberStore,
		retrier:    backoff.NewRetrier(backoff.CustomerLookupPolicy),
		metrics:    NopMetrics{},
		logger:     logger,
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(u)
	}

	return u
}

// Handle processes one routed lifecycle event end to end and returns the
// result payload for the state machine.
func (u *Upserter) Handle(ctx context.Context, input types.TaskInput) (*types.UpsertResult, error) {
	start := u.now()

	result, opLabel, err := u.process(ctx, &input.Payload)
	if err != nil {
		appErr := ensureAppError(err)
		u.logger.Error("event processing failed",
			"invocation_id", types.GetInvocationID(ctx),
			"detail_type", string(input.Payload.DetailType),
			"subscription_id", input.Payload.SubscriptionID(),
			"error_code", string(appErr.Code),
			"retryable", appErr.Retryable(),
			"error", appErr.Error(),
		)
		u.metrics.RecordOperation(ctx, opLabel, MetricFailed)
		u.metrics.RecordLatency(ctx, u.now().Sub(start))
		return nil, appErr
	}

	u.metrics.RecordOperation(ctx, result.Operation, MetricSuccess)
	u.metrics.RecordLatency(ctx, u.now().Sub(start))
	return result, nil
}

// process runs the upsert steps. It returns the operation label alongside
// the result so failures can still be attributed to a branch in metrics.
func (u *Upserter) process(ctx context.Context, event *types.InboundEvent) (*types.UpsertResult, string, error) {
	logger := u.logger.With(
		"invocation_id", types.GetInvocationID(ctx),
		"detail_type", string(event.DetailType),
	)

	// Step 1: resolve configuration through collaborator lookups. Both
	// failures carry configuration error codes already.
	table, err := u.params.GetParameter(ctx, u.tableParam)
	if err != nil {
		return nil, "", err
	}
	if _, err := u.creds.APIKey(ctx); err != nil {
		return nil, "", err
	}

	// Step 2: fetch the subscription snapshot. Not retried.
	subID := event.SubscriptionID()
	if subID == "" {
		return nil, "", types.NewAppError(types.ErrCodeMalformedEvent,
			"event does not carry a subscription identifier", nil)
	}

	sub, err := u.stripe.RetrieveSubscription(ctx, subID)
	if err != nil {
		return nil, "", err
	}

	if sub.CustomerID == "" {
		return nil, "", types.NewAppError(types.ErrCodeValidationMissingCustomer,
			fmt.Sprintf("subscription %s carries no customer reference", subID), nil)
	}

	// Step 3: fetch the customer snapshot, retrying only while Stripe
	// reports the customer as not visible yet.
	cust, err := u.resolveCustomer(ctx, sub.CustomerID, logger)
	if err != nil {
		return nil, "", err
	}

	// Step 4: validate the resolved inputs.
	if err := validateResolved(event, sub, cust); err != nil {
		return nil, "", err
	}

	// Step 5: derive the subscriber item, stamping all three timestamp
	// fields from the invocation clock.
	now := u.now().UTC()
	item := deriveItem(sub, cust, now)

	// Step 6: dispatch on the event type.
	op, ok := lookupOperation(event.DetailType)
	if !ok {
		return nil, "", types.NewAppErrorWithDetails(types.ErrCodeUnsupportedEventType,
			fmt.Sprintf("unhandled event type %q; no operation performed", event.DetailType),
			nil,
			map[string]any{"detail_type": string(event.DetailType)},
		)
	}

	var changed map[string]any
	switch op.kind {
	case opReplace:
		if err := u.store.PutSubscriber(ctx, table, item); err != nil {
			return nil, op.label, err
		}
		changed = map[string]any{}
	case opPartialUpdate:
		changed, err = u.store.UpdateSubscriber(ctx, table, item.Email, op.fields(item, now))
		if err != nil {
			return nil, op.label, err
		}
	}

	logger.Info("storage operation completed",
		"operation", op.label,
		"subscription_id", sub.ID,
		"customer_id", cust.ID,
		"email", item.Email,
	)

	// Step 7: build the result payload.
	return &types.UpsertResult{
		Message:        fmt.Sprintf("Subscription %s %s successfully.", sub.ID, op.label),
		SubscriptionID: sub.ID,
		CustomerID:     cust.ID,
		Operation:      op.label,
		UpdatedFields:  changed,
	}, op.label, nil
}

// resolveCustomer fetches the customer under the lookup retry policy. Only a
// not-found condition is retried; after the attempts are exhausted the error
// is reported as customer_resolution_exhausted.
func (u *Upserter) resolveCustomer(ctx context.Context, customerID string, logger types.Logger) (*types.CustomerRecord, error) {
	var cust *types.CustomerRecord

	attempt := 0
	err := u.retrier.Do(ctx, isCustomerNotFound, func(ctx context.Context) error {
		attempt++
		c, err := u.stripe.RetrieveCustomer(ctx, customerID)
		if err != nil {
			if isCustomerNotFound(err) {
				logger.Warn("customer not visible yet, will retry",
					"customer_id", customerID,
					"attempt", attempt,
				)
			}
			return err
		}
		cust = c
		return nil
	})
	if err != nil {
		if isCustomerNotFound(err) {
			return nil, types.NewAppErrorWithDetails(types.ErrCodeCustomerUnresolved,
				fmt.Sprintf("customer %s not found after %d attempts", customerID, attempt),
				err,
				map[string]any{"customer_id": customerID, "attempts": attempt},
			)
		}
		return nil, err
	}

	return cust, nil
}

// validateResolved confirms that subscription, customer, and event type are
// all present before deriving the item.
func validateResolved(event *types.InboundEvent, sub *types.SubscriptionRecord, cust *types.CustomerRecord) error {
	if sub == nil || sub.ID == "" {
		return types.NewAppError(types.ErrCodeValidationMissingSubscription,
			"resolved subscription is missing", nil)
	}
	if cust == nil || cust.ID == "" {
		return types.NewAppError(types.ErrCodeValidationMissingCustomer,
			"resolved customer is missing", nil)
	}
	if event.DetailType == "" {
		return types.NewAppError(types.ErrCodeValidationMissingEventType,
			"event carries no detail-type discriminator", nil)
	}
	if cust.Email == "" {
		return types.NewAppError(types.ErrCodeValidationMissingEmail,
			fmt.Sprintf("customer %s has no email; cannot key the subscriber row", cust.ID), nil)
	}
	return nil
}

// deriveItem flattens the two upstream snapshots into the persisted record.
// All three stamps come from the same clock reading so a row never carries
// mixed timestamps from one invocation.
func deriveItem(sub *types.SubscriptionRecord, cust *types.CustomerRecord, now time.Time) *types.SubscriberItem {
	return &types.SubscriberItem{
		Email:            cust.Email,
		SubscriptionID:   sub.ID,
		CustomerID:       cust.ID,
		FullName:         cust.Name,
		SubscriberInfo:   cust.Address,
		Status:           types.SubscriberStatus(sub.Status),
		StartDate:        sub.StartDate,
		EndDate:          sub.CanceledAt,
		PlanID:           sub.PlanID,
		AmountCents:      sub.AmountCents,
		LastUpdated:      now.Format(types.DateStampLayout),
		SubscriptionDate: now.Format(types.DateStampLayout),
		SignupTimestamp:  now.Format(types.TimestampLayout),
	}
}

// isCustomerNotFound reports whether the error is the retryable "not visible
// yet" condition.
func isCustomerNotFound(err error) bool {
	var appErr *types.AppError
	return errors.As(err, &appErr) && appErr.Code == types.ErrCodeCustomerNotFound
}

// ensureAppError wraps any non-AppError as the processing catch-all so the
// orchestrator always sees a typed error code.
func ensureAppError(err error) *types.AppError {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return types.NewAppError(types.ErrCodeProcessing, "unexpected processing failure", err)
}
