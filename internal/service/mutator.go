package service

import (
	"context"
	"fmt"

	"identity-reconciliation/internal/models"
)

// applyMerge folds every other primary under plan.Keep. Secondaries that
// pointed at a folded primary are re-pointed at Keep so links never chain.
// It returns the ids of the demoted primaries and of the re-pointed
// secondaries.
func applyMerge(ctx context.Context, store Store, state *ClusterState) (demoted, relinked []int64, err error) {
	plan := state.Merge
	keepID := plan.Keep.ID

	for _, f := range plan.FoldIn {
		if _, err := store.Update(ctx, f.ID, models.Demotion(keepID)); err != nil {
			return nil, nil, fmt.Errorf("demote contact %d: %w", f.ID, err)
		}
		demoted = append(demoted, f.ID)

		foldID := f.ID
		children, err := store.FindMany(ctx, models.ContactFilter{LinkedID: &foldID})
		if err != nil {
			return nil, nil, fmt.Errorf("find contacts linked to %d: %w", f.ID, err)
		}
		for _, child := range children {
			if child.ID == keepID {
				continue
			}
			if _, err := store.Update(ctx, child.ID, models.Demotion(keepID)); err != nil {
				return nil, nil, fmt.Errorf("relink contact %d: %w", child.ID, err)
			}
			relinked = append(relinked, child.ID)
		}
	}

	refreshed, err := expandCluster(ctx, store, keepID)
	if err != nil {
		return nil, nil, err
	}
	members := newMemberSet(state.Members...)
	members.add(refreshed...)

	state.Primary = plan.Keep
	for _, m := range refreshed {
		if m.ID == keepID {
			state.Primary = m
		}
	}
	state.Members = members.sorted()
	state.Merge = nil
	return demoted, relinked, nil
}

// linkSecondary records the request as a new secondary when it carries an
// email or phone number the cluster has not seen. Only the fields present in
// the request are stored. It returns nil when nothing was written.
func linkSecondary(ctx context.Context, store Store, state *ClusterState, email, phoneNumber *string) (*models.Contact, error) {
	if !hasNovelValue(state.Members, email, phoneNumber) {
		return nil, nil
	}

	primaryID := state.Primary.ID
	created, err := store.Create(ctx, models.NewContact{
		Email:          email,
		PhoneNumber:    phoneNumber,
		LinkedID:       &primaryID,
		LinkPrecedence: models.PrecedenceSecondary,
	})
	if err != nil {
		return nil, fmt.Errorf("create secondary contact: %w", err)
	}
	state.Members = append(state.Members, created)
	return &created, nil
}

// hasNovelValue reports whether email or phoneNumber is absent from every
// member.
func hasNovelValue(members []models.Contact, email, phoneNumber *string) bool {
	emailSeen := email == nil
	phoneSeen := phoneNumber == nil
	for _, m := range members {
		if !emailSeen && m.Email != nil && *m.Email == *email {
			emailSeen = true
		}
		if !phoneSeen && m.PhoneNumber != nil && *m.PhoneNumber == *phoneNumber {
			phoneSeen = true
		}
	}
	return !emailSeen || !phoneSeen
}
