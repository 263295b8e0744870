package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"identity-reconciliation/internal/models"
)

func TestProject(t *testing.T) {
	base := time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC)
	primary := models.Contact{
		ID: 10, Email: strPtr("p@x.com"), PhoneNumber: strPtr("1"),
		LinkPrecedence: models.PrecedencePrimary, CreatedAt: base.Add(time.Hour),
	}
	older := models.Contact{
		ID: 3, Email: strPtr("old@x.com"), PhoneNumber: strPtr("2"),
		LinkedID: int64Ptr(10), LinkPrecedence: models.PrecedenceSecondary, CreatedAt: base,
	}
	dup := models.Contact{
		ID: 11, Email: strPtr("p@x.com"), PhoneNumber: strPtr("2"),
		LinkedID: int64Ptr(10), LinkPrecedence: models.PrecedenceSecondary, CreatedAt: base.Add(2 * time.Hour),
	}

	t.Run("primary values first even when not oldest", func(t *testing.T) {
		view := project([]models.Contact{older, primary, dup}, primary)

		assert.Equal(t, int64(10), view.PrimaryContactID)
		assert.Equal(t, []string{"p@x.com", "old@x.com"}, view.Emails)
		assert.Equal(t, []string{"1", "2"}, view.PhoneNumbers)
	})

	t.Run("secondary ids ascending and unique", func(t *testing.T) {
		view := project([]models.Contact{dup, primary, older, dup}, primary)

		assert.Equal(t, []int64{3, 11}, view.SecondaryContactIDs)
	})

	t.Run("lists are never nil", func(t *testing.T) {
		bare := models.Contact{ID: 1, LinkPrecedence: models.PrecedencePrimary}
		view := project([]models.Contact{bare}, bare)

		assert.NotNil(t, view.Emails)
		assert.NotNil(t, view.PhoneNumbers)
		assert.NotNil(t, view.SecondaryContactIDs)
		assert.Empty(t, view.SecondaryContactIDs)
	})

	t.Run("primary without email", func(t *testing.T) {
		noEmail := primary
		noEmail.Email = nil
		view := project([]models.Contact{noEmail, older}, noEmail)

		assert.Equal(t, []string{"old@x.com"}, view.Emails)
		assert.Equal(t, "1", view.PhoneNumbers[0])
	})
}

func TestHasNovelValue(t *testing.T) {
	members := []models.Contact{
		{ID: 1, Email: strPtr("a@x.com"), PhoneNumber: strPtr("1")},
		{ID: 2, Email: strPtr("b@x.com")},
	}

	tests := []struct {
		name  string
		email *string
		phone *string
		want  bool
	}{
		{"both known", strPtr("b@x.com"), strPtr("1"), false},
		{"email only, known", strPtr("a@x.com"), nil, false},
		{"new email", strPtr("c@x.com"), strPtr("1"), true},
		{"new phone", strPtr("a@x.com"), strPtr("2"), true},
		{"nothing given", nil, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, hasNovelValue(members, tt.email, tt.phone))
		})
	}
}
