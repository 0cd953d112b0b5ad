package ports

import "context"

// StateStore persists the small per-asset records that survive between
// signals: the intended next order size, the status marker, the purchase
// price history of the current cycle and the last alarmed purchase count.
// Records are scoped by an opaque namespace supplied with each signal.
//
// Implementations must provide per-record atomic reads and writes; no
// cross-record transaction is required.
type StateStore interface {
	// OrderSize returns the persisted notional for the next entry.
	// Returns ErrNotFound when no size is stored.
	OrderSize(ctx context.Context, namespace, asset string) (float64, error)
	SaveOrderSize(ctx context.Context, namespace, asset string, size float64) error
	DeleteOrderSize(ctx context.Context, namespace, asset string) error

	// Status returns the persisted status marker (domain.StatusDirty or a
	// custom tag). Returns ErrNotFound when no marker is set.
	Status(ctx context.Context, namespace, asset string) (string, error)
	SaveStatus(ctx context.Context, namespace, asset, status string) error
	DeleteStatus(ctx context.Context, namespace, asset string) error

	// PurchasePrices returns the ordered entry prices of the current cycle.
	// A missing record yields an empty slice, not an error.
	PurchasePrices(ctx context.Context, namespace, asset string) ([]float64, error)
	AppendPurchasePrice(ctx context.Context, namespace, asset string, price float64) error
	DeletePurchasePrices(ctx context.Context, namespace, asset string) error

	// SaveAlarmCount records the purchase count at which the last alarm fired.
	SaveAlarmCount(ctx context.Context, namespace, asset string, count int) error
}
