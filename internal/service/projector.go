package service

import (
	"slices"

	"identity-reconciliation/internal/models"
)

// project builds the consolidated view of a cluster. The primary's own email
// and phone number lead their lists; every value appears once.
func project(members []models.Contact, primary models.Contact) models.ContactResponse {
	emails := newOrderedSet()
	phones := newOrderedSet()
	emails.add(primary.Email)
	phones.add(primary.PhoneNumber)

	secondaryIDs := []int64{}
	seen := map[int64]bool{primary.ID: true}
	for _, m := range members {
		emails.add(m.Email)
		phones.add(m.PhoneNumber)
		if !seen[m.ID] {
			seen[m.ID] = true
			secondaryIDs = append(secondaryIDs, m.ID)
		}
	}
	slices.Sort(secondaryIDs)

	return models.ContactResponse{
		PrimaryContactID:    primary.ID,
		Emails:              emails.values,
		PhoneNumbers:        phones.values,
		SecondaryContactIDs: secondaryIDs,
	}
}

type orderedSet struct {
	seen   map[string]bool
	values []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: map[string]bool{}, values: []string{}}
}

func (s *orderedSet) add(v *string) {
	if v == nil || *v == "" || s.seen[*v] {
		return
	}
	s.seen[*v] = true
	s.values = append(s.values, *v)
}
