package service

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"identity-reconciliation/internal/models"
)

// MergePlan names the primary that survives a merge and the primaries that
// get folded under it.
type MergePlan struct {
	Keep   models.Contact
	FoldIn []models.Contact
}

// ClusterState is the cluster a request touches, as read from the store.
type ClusterState struct {
	Primary models.Contact
	Members []models.Contact
	Merge   *MergePlan
}

// assemble turns the match set into the full cluster. It returns nil when
// there are no candidates; the caller then starts a new cluster.
func assemble(ctx context.Context, store Store, candidates []models.Contact, logger *zap.Logger) (*ClusterState, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	r := &rootResolver{store: store, known: make(map[int64]models.Contact, len(candidates))}
	for _, c := range candidates {
		r.known[c.ID] = c
	}

	acting, err := actingPrimary(ctx, r, candidates, logger)
	if err != nil {
		return nil, err
	}

	// every candidate drags in the cluster that owns it, not just itself
	roots := []models.Contact{acting}
	seenRoot := map[int64]bool{acting.ID: true}
	for _, c := range candidates {
		root, _, err := r.resolve(ctx, c)
		if err != nil {
			return nil, err
		}
		if !seenRoot[root.ID] {
			seenRoot[root.ID] = true
			roots = append(roots, root)
		}
	}

	members := newMemberSet(candidates...)
	members.add(roots...)
	for _, root := range roots {
		linked, err := expandCluster(ctx, store, root.ID)
		if err != nil {
			return nil, err
		}
		members.add(linked...)
	}

	state := &ClusterState{Primary: acting, Members: members.sorted()}

	var primaries []models.Contact
	for _, m := range state.Members {
		if m.IsPrimary() {
			primaries = append(primaries, m)
		}
	}
	switch {
	case len(primaries) == 1:
		state.Primary = primaries[0]
	case len(primaries) > 1:
		// members are already sorted by (createdAt, id); the oldest survives
		state.Primary = primaries[0]
		state.Merge = &MergePlan{Keep: primaries[0], FoldIn: primaries[1:]}
	}
	return state, nil
}

// actingPrimary picks the first primary in the match set. Failing that it
// follows the oldest candidate's link, and as a last resort treats the oldest
// candidate itself as primary.
func actingPrimary(ctx context.Context, r *rootResolver, candidates []models.Contact, logger *zap.Logger) (models.Contact, error) {
	for _, c := range candidates {
		if c.IsPrimary() {
			return c, nil
		}
	}

	oldest := candidates[0]
	root, ok, err := r.resolve(ctx, oldest)
	if err != nil {
		return models.Contact{}, err
	}
	if !ok {
		logger.Warn("secondary contact has no resolvable primary, treating it as primary",
			zap.Int64("contact_id", oldest.ID),
			zap.Int64p("linked_id", oldest.LinkedID),
		)
	}
	return root, nil
}

// expandCluster loads a primary and every contact linked to it.
func expandCluster(ctx context.Context, store Store, primaryID int64) ([]models.Contact, error) {
	id := primaryID
	linked, err := store.FindMany(ctx, models.ContactFilter{ID: &id, LinkedID: &id})
	if err != nil {
		return nil, fmt.Errorf("expand cluster %d: %w", primaryID, err)
	}
	return linked, nil
}

// rootResolver maps a contact to the contact that heads its cluster, caching
// lookups for the duration of one request.
type rootResolver struct {
	store Store
	known map[int64]models.Contact
}

// resolve returns the contact's primary. ok is false when a secondary's link
// cannot be followed; the contact itself is returned in that case.
func (r *rootResolver) resolve(ctx context.Context, c models.Contact) (models.Contact, bool, error) {
	if c.IsPrimary() {
		return c, true, nil
	}
	if c.LinkedID == nil {
		return c, false, nil
	}
	if p, ok := r.known[*c.LinkedID]; ok {
		return p, true, nil
	}

	p, err := r.store.FindUnique(ctx, *c.LinkedID)
	if errors.Is(err, models.ErrContactNotFound) {
		return c, false, nil
	}
	if err != nil {
		return models.Contact{}, false, fmt.Errorf("resolve primary of contact %d: %w", c.ID, err)
	}
	r.known[p.ID] = p
	return p, true, nil
}

// memberSet deduplicates contacts by id; later additions replace earlier
// ones so refreshed rows win over stale copies.
type memberSet map[int64]models.Contact

func newMemberSet(contacts ...models.Contact) memberSet {
	s := make(memberSet, len(contacts))
	s.add(contacts...)
	return s
}

func (s memberSet) add(contacts ...models.Contact) {
	for _, c := range contacts {
		s[c.ID] = c
	}
}

func (s memberSet) sorted() []models.Contact {
	out := make([]models.Contact, 0, len(s))
	for _, c := range s {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b models.Contact) int {
		switch {
		case a.Before(b):
			return -1
		case b.Before(a):
			return 1
		}
		return 0
	})
	return out
}
