package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"identity-reconciliation/internal/database"
	"identity-reconciliation/internal/models"
)

func TestAssemble(t *testing.T) {
	ctx := context.Background()
	clock := newTickClock()

	seed := func() *database.MemoryStore {
		store := database.NewMemoryStore(database.WithMemoryClock(clock.Now))
		p1, err := store.Create(ctx, models.NewContact{Email: strPtr("a@x.com"), LinkPrecedence: models.PrecedencePrimary})
		require.NoError(t, err)
		_, err = store.Create(ctx, models.NewContact{Email: strPtr("b@x.com"), LinkPrecedence: models.PrecedencePrimary})
		require.NoError(t, err)
		_, err = store.Create(ctx, models.NewContact{
			Email: strPtr("a@x.com"), PhoneNumber: strPtr("9"),
			LinkedID: &p1.ID, LinkPrecedence: models.PrecedenceSecondary,
		})
		require.NoError(t, err)
		return store
	}

	t.Run("no candidates means no cluster", func(t *testing.T) {
		state, err := assemble(ctx, seed(), nil, zap.NewNop())
		require.NoError(t, err)
		assert.Nil(t, state)
	})

	t.Run("secondary-only match resolves through its link", func(t *testing.T) {
		store := seed()
		candidates, err := findCandidates(ctx, store, nil, strPtr("9"))
		require.NoError(t, err)
		require.Len(t, candidates, 1)

		state, err := assemble(ctx, store, candidates, zap.NewNop())
		require.NoError(t, err)
		assert.Equal(t, int64(1), state.Primary.ID)
		assert.Nil(t, state.Merge)
		assert.Len(t, state.Members, 2)
	})

	t.Run("two primaries produce a merge plan keeping the oldest", func(t *testing.T) {
		store := seed()
		candidates, err := findCandidates(ctx, store, strPtr("b@x.com"), strPtr("9"))
		require.NoError(t, err)

		state, err := assemble(ctx, store, candidates, zap.NewNop())
		require.NoError(t, err)
		require.NotNil(t, state.Merge)
		assert.Equal(t, int64(1), state.Merge.Keep.ID)
		require.Len(t, state.Merge.FoldIn, 1)
		assert.Equal(t, int64(2), state.Merge.FoldIn[0].ID)
		assert.Equal(t, []int64{1, 2, 3}, memberIDs(state.Members))
	})

	t.Run("equal timestamps fall back to id", func(t *testing.T) {
		fixed := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
		store := database.NewMemoryStore(database.WithMemoryClock(func() time.Time { return fixed }))
		for _, e := range []string{"x@x.com", "y@x.com"} {
			_, err := store.Create(ctx, models.NewContact{Email: strPtr(e), LinkPrecedence: models.PrecedencePrimary})
			require.NoError(t, err)
		}
		candidates, err := store.FindMany(ctx, models.ContactFilter{Email: strPtr("y@x.com")})
		require.NoError(t, err)
		more, err := store.FindMany(ctx, models.ContactFilter{Email: strPtr("x@x.com")})
		require.NoError(t, err)
		candidates = append(candidates, more...)

		state, err := assemble(ctx, store, candidates, zap.NewNop())
		require.NoError(t, err)
		require.NotNil(t, state.Merge)
		assert.Equal(t, int64(1), state.Merge.Keep.ID)
	})
}

func memberIDs(contacts []models.Contact) []int64 {
	ids := make([]int64, 0, len(contacts))
	for _, c := range contacts {
		ids = append(ids, c.ID)
	}
	return ids
}

type mockStore struct {
	mock.Mock
}

func (m *mockStore) FindMany(ctx context.Context, filter models.ContactFilter) ([]models.Contact, error) {
	args := m.Called(ctx, filter)
	contacts, _ := args.Get(0).([]models.Contact)
	return contacts, args.Error(1)
}

func (m *mockStore) FindUnique(ctx context.Context, id int64) (models.Contact, error) {
	args := m.Called(ctx, id)
	c, _ := args.Get(0).(models.Contact)
	return c, args.Error(1)
}

func (m *mockStore) Create(ctx context.Context, fields models.NewContact) (models.Contact, error) {
	args := m.Called(ctx, fields)
	c, _ := args.Get(0).(models.Contact)
	return c, args.Error(1)
}

func (m *mockStore) Update(ctx context.Context, id int64, fields models.ContactUpdate) (models.Contact, error) {
	args := m.Called(ctx, id, fields)
	c, _ := args.Get(0).(models.Contact)
	return c, args.Error(1)
}

func passthroughTx(store *mockStore) Transactor {
	return TxFunc[*mockStore](func(_ context.Context, fn func(*mockStore) error) error {
		return fn(store)
	})
}

func TestIdentifyPropagatesStorageErrors(t *testing.T) {
	ctx := context.Background()
	unreachable := errors.New("dial tcp: connection refused")

	t.Run("matcher failure", func(t *testing.T) {
		store := new(mockStore)
		store.On("FindMany", mock.Anything, mock.Anything).Return(nil, unreachable)

		_, err := NewReconciliationService(passthroughTx(store)).
			Identify(ctx, models.IdentifyRequest{Email: strPtr("a@x.com")})

		require.ErrorIs(t, err, unreachable)
		store.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("primary lookup failure is not treated as a broken link", func(t *testing.T) {
		store := new(mockStore)
		secondary := models.Contact{
			ID: 2, Email: strPtr("a@x.com"), LinkedID: int64Ptr(1),
			LinkPrecedence: models.PrecedenceSecondary,
		}
		store.On("FindMany", mock.Anything, mock.Anything).Return([]models.Contact{secondary}, nil)
		store.On("FindUnique", mock.Anything, int64(1)).Return(models.Contact{}, unreachable)

		_, err := NewReconciliationService(passthroughTx(store)).
			Identify(ctx, models.IdentifyRequest{Email: strPtr("a@x.com")})

		require.ErrorIs(t, err, unreachable)
		store.AssertExpectations(t)
	})

	t.Run("insert failure", func(t *testing.T) {
		store := new(mockStore)
		store.On("FindMany", mock.Anything, mock.Anything).Return([]models.Contact{}, nil)
		store.On("Create", mock.Anything, mock.MatchedBy(func(f models.NewContact) bool {
			return f.LinkPrecedence == models.PrecedencePrimary && f.LinkedID == nil
		})).Return(models.Contact{}, unreachable)

		_, err := NewReconciliationService(passthroughTx(store)).
			Identify(ctx, models.IdentifyRequest{PhoneNumber: strPtr("1")})

		require.ErrorIs(t, err, unreachable)
		store.AssertExpectations(t)
	})
}
