package service

import (
	"context"
	"fmt"

	"identity-reconciliation/internal/models"
)

// findCandidates returns every contact sharing the given email or phone
// number, oldest first. Downstream tie-breaks depend on that order.
func findCandidates(ctx context.Context, store Store, email, phoneNumber *string) ([]models.Contact, error) {
	filter := models.ContactFilter{Email: email, PhoneNumber: phoneNumber}
	if filter.IsEmpty() {
		return nil, nil
	}
	candidates, err := store.FindMany(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("find candidates: %w", err)
	}
	return candidates, nil
}
