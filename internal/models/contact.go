package models

import "time"

// LinkPrecedence marks a contact as the canonical record of its cluster or as
// one linked to it.
type LinkPrecedence string

const (
	PrecedencePrimary   LinkPrecedence = "primary"
	PrecedenceSecondary LinkPrecedence = "secondary"
)

// Contact represents a customer contact in the database
type Contact struct {
	ID             int64          `json:"id"`
	PhoneNumber    *string        `json:"phoneNumber,omitempty"`
	Email          *string        `json:"email,omitempty"`
	LinkedID       *int64         `json:"linkedId,omitempty"`
	LinkPrecedence LinkPrecedence `json:"linkPrecedence"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
	DeletedAt      *time.Time     `json:"deletedAt,omitempty"`
}

// IsPrimary reports whether the contact heads its cluster.
func (c Contact) IsPrimary() bool {
	return c.LinkPrecedence == PrecedencePrimary
}

// Before orders contacts oldest first, falling back to id when two contacts
// share a creation timestamp.
func (c Contact) Before(other Contact) bool {
	if !c.CreatedAt.Equal(other.CreatedAt) {
		return c.CreatedAt.Before(other.CreatedAt)
	}
	return c.ID < other.ID
}

// ContactFilter selects contacts matching ANY of the set fields.
type ContactFilter struct {
	ID          *int64
	LinkedID    *int64
	Email       *string
	PhoneNumber *string
}

// IsEmpty reports whether no field is set.
func (f ContactFilter) IsEmpty() bool {
	return f.ID == nil && f.LinkedID == nil && f.Email == nil && f.PhoneNumber == nil
}

// NewContact holds the fields supplied when a contact is created. The store
// assigns ID and timestamps.
type NewContact struct {
	Email          *string
	PhoneNumber    *string
	LinkedID       *int64
	LinkPrecedence LinkPrecedence
}

// ContactUpdate holds link changes; nil fields are left untouched.
type ContactUpdate struct {
	LinkedID       *int64
	LinkPrecedence *LinkPrecedence
}

// Demotion returns the update that folds a contact under primaryID.
func Demotion(primaryID int64) ContactUpdate {
	precedence := PrecedenceSecondary
	return ContactUpdate{LinkedID: &primaryID, LinkPrecedence: &precedence}
}
