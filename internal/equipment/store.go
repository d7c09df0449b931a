package equipment

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no record exists for a name or ID.
	ErrNotFound = errors.New("equipment not found")
	// ErrInvalidPatch is returned when an operator edit carries no changes or no target.
	ErrInvalidPatch = errors.New("invalid equipment edit")
	// ErrInventoryNumberAssigned is returned when an assigned inventory number
	// would be replaced by a different value.
	ErrInventoryNumberAssigned = errors.New("inventory number already assigned")
)

// MergeFunc computes the new state of a record from its stored state,
// which is nil when the name has never been seen.
type MergeFunc func(existing *Record) (*Record, error)

// Store defines equipment record persistence. Implementations must make
// Upsert atomic per name: concurrent calls for one name are serialized and
// never produce two records.
type Store interface {
	// Get retrieves a record by device name.
	Get(ctx context.Context, name string) (*Record, error)

	// GetByID retrieves a record by its ID.
	GetByID(ctx context.Context, id string) (*Record, error)

	// List retrieves records matching the filter, ordered by name.
	List(ctx context.Context, filter *ListFilter) ([]*Record, error)

	// Upsert creates or replaces the record for name with the result of fn.
	Upsert(ctx context.Context, name string, fn MergeFunc) (*Record, error)

	// SetEstimation stores the performance score of a record.
	SetEstimation(ctx context.Context, name string, score float64) error

	// Touch marks a known device online as of at.
	Touch(ctx context.Context, name string, at time.Time) (*Record, error)

	// MarkOffline flips every online record last updated before cutoff and
	// returns the flipped records.
	MarkOffline(ctx context.Context, cutoff time.Time) ([]*Record, error)

	// Update applies an operator edit to the record with the given ID.
	Update(ctx context.Context, id string, patch *RecordPatch) (*Record, error)

	// Delete removes a record by ID.
	Delete(ctx context.Context, id string) error
}

// applyPatch applies an operator edit in place. An assigned inventory number
// may be re-submitted but not replaced.
func applyPatch(r *Record, patch *RecordPatch) error {
	if patch.InventoryNumber != nil {
		next := *patch.InventoryNumber
		if next == "" {
			next = UnknownInventoryNumber
		}
		if r.InventoryNumber != UnknownInventoryNumber && r.InventoryNumber != "" && r.InventoryNumber != next {
			return ErrInventoryNumberAssigned
		}
		r.InventoryNumber = next
	}
	if patch.Owner != nil {
		r.Owner = *patch.Owner
	}
	if patch.Department != nil {
		r.Department = *patch.Department
	}
	if patch.Division != nil {
		r.Division = *patch.Division
	}
	return nil
}
