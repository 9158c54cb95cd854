package quotations

import (
	"errors"
	"fmt"

	"github.com/odyssey-erp/odyssey-quotes/internal/shared"
)

// Domain errors for quotes.
var (
	ErrQuoteNotFound = fmt.Errorf("%w: quote", shared.ErrNotFound)

	// Transition errors.
	ErrInvalidStatus = fmt.Errorf("%w: operation not allowed in current status", shared.ErrInvalidTransition)
	ErrArchived      = fmt.Errorf("%w: quote is archived", shared.ErrInvalidTransition)

	// Validation errors.
	ErrInvalidQuantity  = fmt.Errorf("%w: quantity must be greater than zero", shared.ErrValidation)
	ErrInvalidPrice     = fmt.Errorf("%w: unit price cannot be negative", shared.ErrValidation)
	ErrInvalidValidity  = fmt.Errorf("%w: valid_until must be after quote_date", shared.ErrValidation)
	ErrUnknownProduct   = fmt.Errorf("%w: unknown or inactive product", shared.ErrValidation)
	ErrUnknownLine      = fmt.Errorf("%w: line does not belong to quote", shared.ErrValidation)
	ErrDuplicateLine    = fmt.Errorf("%w: line listed more than once", shared.ErrValidation)
	ErrStatusNotAllowed = fmt.Errorf("%w: status can only be set to DRAFT, PRESENTED or CHANGE_REQUESTED", shared.ErrValidation)
	ErrInactiveCustomer = fmt.Errorf("%w: customer is inactive", shared.ErrValidation)
)

// errUnchanged short-circuits idempotent operations without writing.
var errUnchanged = errors.New("quotations: unchanged")
