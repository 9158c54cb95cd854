package customers

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-quotes/internal/shared"
)

// Lookup resolves identities to customer records.
type Lookup interface {
	GetCustomerByApplicationUserID(ctx context.Context, userID uuid.UUID) (*Customer, error)
}

// ResolveActor returns the customer the actor signs in for. An identity without
// a linked customer is unauthorized rather than not found.
func ResolveActor(ctx context.Context, lookup Lookup, actor shared.Actor) (*Customer, error) {
	if actor.UserID == uuid.Nil {
		return nil, fmt.Errorf("%w: anonymous actor", shared.ErrUnauthorized)
	}
	customer, err := lookup.GetCustomerByApplicationUserID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, fmt.Errorf("%w: no customer linked to user %s", shared.ErrUnauthorized, actor.UserID)
		}
		return nil, err
	}
	return customer, nil
}

// EnsureOwner fails with ErrUnauthorized unless the actor acts for ownerID.
func EnsureOwner(ctx context.Context, lookup Lookup, actor shared.Actor, ownerID uuid.UUID) error {
	customer, err := ResolveActor(ctx, lookup, actor)
	if err != nil {
		return err
	}
	if customer.ID != ownerID {
		return fmt.Errorf("%w: user %s does not own this document", shared.ErrUnauthorized, actor.UserID)
	}
	return nil
}
