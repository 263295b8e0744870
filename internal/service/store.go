package service

import (
	"context"

	"identity-reconciliation/internal/models"
)

// Store is the storage collaborator the resolver reads and writes contacts
// through.
type Store interface {
	FindMany(ctx context.Context, filter models.ContactFilter) ([]models.Contact, error)
	FindUnique(ctx context.Context, id int64) (models.Contact, error)
	Create(ctx context.Context, fields models.NewContact) (models.Contact, error)
	Update(ctx context.Context, id int64, fields models.ContactUpdate) (models.Contact, error)
}

// Transactor runs fn as a single unit of work; writes made through the Store
// it is handed are applied all together or not at all.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(Store) error) error
}

// TxFunc adapts a store-specific RunInTx method, such as
// (*database.DB).RunInTx, to a Transactor.
type TxFunc[S Store] func(ctx context.Context, fn func(S) error) error

// RunInTx implements Transactor.
func (f TxFunc[S]) RunInTx(ctx context.Context, fn func(Store) error) error {
	return f(ctx, func(s S) error {
		return fn(s)
	})
}
