package shared

import "errors"

// Error taxonomy shared by every lifecycle component. Package level errors wrap
// one of these so callers can branch with errors.Is.
var (
	// ErrNotFound indicates a missing quote, product, customer or invoice.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized indicates the actor does not own the resource.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidTransition indicates the operation is not allowed from the current status.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrValidation indicates a malformed command.
	ErrValidation = errors.New("validation failed")
	// ErrInsufficientStock indicates a reservation would exceed available stock.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrConflict indicates a uniqueness collision that survived retries or a replayed request.
	ErrConflict = errors.New("conflict")

	// ErrNumberTaken marks a single document number collision. Callers retry on it.
	ErrNumberTaken = errors.New("document number already taken")
)
