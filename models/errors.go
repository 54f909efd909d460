package models

import (
	"errors"
	"fmt"
)

// Conservation and business-rule failures surfaced by this package. Every
// one of these aborts the whole transaction: a rejected operation leaves no
// partial mutation behind.
var (
	// yard reservation exceeds the variant's remaining balance
	ErrInsufficientStock = errors.New("not enough fabric available")

	// sewn + damaged pieces would exceed the total cut pieces of the line
	ErrTotalCapacityExceeded = errors.New("sewn and damaged pieces exceed the cut capacity of this line")

	// packing request exceeds the finished product's available quantity
	ErrInsufficientAvailable = errors.New("packing exceeds the available finished quantity")

	// order line exceeds the packed inventory on hand
	ErrInsufficientInventory = errors.New("requested units exceed the packed inventory on hand")

	// a finished product already exists for the cutting batch
	ErrAlreadyApproved = errors.New("this batch has already been approved")

	// cutting line still has daily sewing records referencing it
	ErrHasSewingRecords = errors.New("cutting line has dependent sewing records")

	// cutting batch has a finished product approved from it
	ErrBatchApproved = errors.New("approved batch cannot be deleted")

	// cumulative payments would exceed the order total
	ErrPaymentExceedsTotal = errors.New("payment would exceed the order total")

	// order revert attempted after payments were recorded
	ErrOrderHasPayments = errors.New("order with recorded payments cannot be reverted")
)

// SewingLimitError names the first size whose cumulative sewn count would
// exceed the line's cut count.
type SewingLimitError struct {
	Size      string
	Cut       int
	Sewn      int
	Requested int
}

func (e *SewingLimitError) Error() string {
	return fmt.Sprintf("sewing limit exceeded for size %s: %d cut, %d already sewn, %d requested",
		e.Size, e.Cut, e.Sewn, e.Requested)
}

// InvalidStateTransitionError reports an order action attempted from the
// wrong status.
type InvalidStateTransitionError struct {
	Action string
	From   OrderStatus
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("cannot %s an order in status %q", e.Action, e.From)
}

func IsConservationError(err error) bool {
	if err == nil {
		return false
	}
	var sewingErr *SewingLimitError
	return errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrTotalCapacityExceeded) ||
		errors.Is(err, ErrInsufficientAvailable) ||
		errors.Is(err, ErrInsufficientInventory) ||
		errors.Is(err, ErrPaymentExceedsTotal) ||
		errors.As(err, &sewingErr)
}
