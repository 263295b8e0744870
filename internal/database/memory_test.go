package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"identity-reconciliation/internal/models"
)

type MemoryStoreSuite struct {
	suite.Suite
	store *MemoryStore
	ctx   context.Context
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}

func (s *MemoryStoreSuite) SetupTest() {
	now := time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC)
	s.store = NewMemoryStore(WithMemoryClock(func() time.Time {
		now = now.Add(time.Second)
		return now
	}))
	s.ctx = context.Background()
}

func (s *MemoryStoreSuite) primary(email string) models.Contact {
	c, err := s.store.Create(s.ctx, models.NewContact{Email: strPtr(email), LinkPrecedence: models.PrecedencePrimary})
	s.Require().NoError(err)
	return c
}

func (s *MemoryStoreSuite) TestAssignsIncreasingIDs() {
	a := s.primary("a@x.com")
	b := s.primary("b@x.com")

	s.Equal(int64(1), a.ID)
	s.Equal(int64(2), b.ID)
	s.True(a.Before(b))
}

func (s *MemoryStoreSuite) TestFindMany() {
	s.Run("matches any criterion, oldest first", func() {
		a := s.primary("a@x.com")
		_, err := s.store.Create(s.ctx, models.NewContact{
			Email: strPtr("c@x.com"), PhoneNumber: strPtr("1"),
			LinkedID: &a.ID, LinkPrecedence: models.PrecedenceSecondary,
		})
		s.Require().NoError(err)
		s.primary("unrelated@x.com")

		found, err := s.store.FindMany(s.ctx, models.ContactFilter{ID: &a.ID, LinkedID: &a.ID})
		s.Require().NoError(err)
		s.Require().Len(found, 2)
		s.Equal(a.ID, found[0].ID)
	})

	s.Run("rejects empty filter", func() {
		_, err := s.store.FindMany(s.ctx, models.ContactFilter{})
		s.ErrorIs(err, ErrEmptyFilter)
	})

	s.Run("skips soft-deleted contacts", func() {
		deletedAt := time.Now()
		s.store.Put(models.Contact{
			ID: 100, Email: strPtr("gone@x.com"), LinkPrecedence: models.PrecedencePrimary, DeletedAt: &deletedAt,
		})
		found, err := s.store.FindMany(s.ctx, models.ContactFilter{Email: strPtr("gone@x.com")})
		s.Require().NoError(err)
		s.Empty(found)

		_, err = s.store.FindUnique(s.ctx, 100)
		s.ErrorIs(err, ErrNotFound)
	})
}

func (s *MemoryStoreSuite) TestUpdate() {
	a := s.primary("a@x.com")
	b := s.primary("b@x.com")

	updated, err := s.store.Update(s.ctx, b.ID, models.Demotion(a.ID))
	s.Require().NoError(err)
	s.Equal(models.PrecedenceSecondary, updated.LinkPrecedence)
	s.Equal(a.ID, *updated.LinkedID)
	s.True(updated.UpdatedAt.After(b.UpdatedAt))

	_, err = s.store.Update(s.ctx, 404, models.Demotion(a.ID))
	s.ErrorIs(err, ErrNotFound)

	_, err = s.store.Update(s.ctx, a.ID, models.Demotion(404))
	s.ErrorIs(err, ErrConstraint)
}

func (s *MemoryStoreSuite) TestRunInTx() {
	s.Run("discards writes on error", func() {
		a := s.primary("a@x.com")
		boom := errors.New("boom")

		err := s.store.RunInTx(s.ctx, func(tx *MemoryStore) error {
			b, err := tx.Create(s.ctx, models.NewContact{Email: strPtr("b@x.com"), LinkPrecedence: models.PrecedencePrimary})
			s.Require().NoError(err)
			_, err = tx.Update(s.ctx, a.ID, models.Demotion(b.ID))
			s.Require().NoError(err)
			return boom
		})
		s.Require().ErrorIs(err, boom)

		s.Equal(1, s.store.Len())
		got, err := s.store.FindUnique(s.ctx, a.ID)
		s.Require().NoError(err)
		s.True(got.IsPrimary())

		next := s.primary("c@x.com")
		s.Equal(int64(2), next.ID, "ids handed out inside a failed unit are reused")
	})

	s.Run("keeps writes on success", func() {
		before := s.store.Len()
		err := s.store.RunInTx(s.ctx, func(tx *MemoryStore) error {
			_, err := tx.Create(s.ctx, models.NewContact{PhoneNumber: strPtr("9"), LinkPrecedence: models.PrecedencePrimary})
			return err
		})
		s.Require().NoError(err)
		s.Equal(before+1, s.store.Len())
	})
}
