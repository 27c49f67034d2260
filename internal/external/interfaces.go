package external

import (
	"context"

	"subsync/internal/types"
)

// SubscriptionService is the upstream lookup contract the upserter depends
// on. Implemented by StripeClient; tests substitute a fake.
type SubscriptionService interface {
	// RetrieveSubscription fetches the authoritative subscription snapshot
	// by identifier. Any failure is terminal for the invocation; the
	// upserter does not retry subscription lookups.
	RetrieveSubscription(ctx context.Context, id string) (*types.SubscriptionRecord, error)

	// RetrieveCustomer fetches the customer snapshot by identifier. A
	// customer Stripe has not made visible yet is reported with
	// ErrCodeCustomerNotFound, which is the only condition the upserter
	// retries; every other error class aborts immediately.
	RetrieveCustomer(ctx context.Context, id string) (*types.CustomerRecord, error)
}
