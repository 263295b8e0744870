package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"identity-reconciliation/internal/models"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const contactColumns = `id, phone_number, email, linked_id, link_precedence, created_at, updated_at, deleted_at`

// ContactStore reads and writes contact rows. Statements use $N placeholders,
// which both lib/pq and go-sqlite3 accept.
type ContactStore struct {
	q     querier
	clock Clock
}

func newContactStore(q querier, clock Clock) *ContactStore {
	if clock == nil {
		clock = defaultClock
	}
	return &ContactStore{q: q, clock: clock}
}

// NewContactStore builds a store over an existing connection or transaction.
func NewContactStore(conn *sql.DB, clock Clock) *ContactStore {
	return newContactStore(conn, clock)
}

// FindMany returns live contacts matching any criterion in the filter, oldest
// first with id as the tie-break.
func (s *ContactStore) FindMany(ctx context.Context, filter models.ContactFilter) ([]models.Contact, error) {
	if filter.IsEmpty() {
		return nil, ErrEmptyFilter
	}

	var conds []string
	var args []any
	add := func(column string, value any) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if filter.ID != nil {
		add("id", *filter.ID)
	}
	if filter.LinkedID != nil {
		add("linked_id", *filter.LinkedID)
	}
	if filter.Email != nil {
		add("email", *filter.Email)
	}
	if filter.PhoneNumber != nil {
		add("phone_number", *filter.PhoneNumber)
	}

	query := `SELECT ` + contactColumns + ` FROM contacts
			  WHERE (` + strings.Join(conds, " OR ") + `) AND deleted_at IS NULL
			  ORDER BY created_at ASC, id ASC`

	contacts, err := s.queryContacts(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find contacts: %w", classify(err))
	}
	return contacts, nil
}

// FindUnique loads one live contact by id.
func (s *ContactStore) FindUnique(ctx context.Context, id int64) (models.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE id = $1 AND deleted_at IS NULL`
	contacts, err := s.queryContacts(ctx, query, id)
	if err != nil {
		return models.Contact{}, fmt.Errorf("find contact %d: %w", id, classify(err))
	}
	if len(contacts) == 0 {
		return models.Contact{}, fmt.Errorf("contact %d: %w", id, ErrNotFound)
	}
	return contacts[0], nil
}

// Create inserts a contact and returns it with its assigned id and timestamps.
func (s *ContactStore) Create(ctx context.Context, fields models.NewContact) (models.Contact, error) {
	query := `INSERT INTO contacts (phone_number, email, linked_id, link_precedence, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`

	now := s.clock()
	var id int64
	err := s.q.QueryRowContext(ctx, query,
		nullString(fields.PhoneNumber), nullString(fields.Email), nullInt64(fields.LinkedID),
		string(fields.LinkPrecedence), now, now,
	).Scan(&id)
	if err != nil {
		return models.Contact{}, fmt.Errorf("create contact: %w", classify(err))
	}

	return models.Contact{
		ID:             id,
		PhoneNumber:    fields.PhoneNumber,
		Email:          fields.Email,
		LinkedID:       fields.LinkedID,
		LinkPrecedence: fields.LinkPrecedence,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// Update applies link changes and refreshes updated_at.
func (s *ContactStore) Update(ctx context.Context, id int64, fields models.ContactUpdate) (models.Contact, error) {
	sets := []string{}
	args := []any{}
	if fields.LinkedID != nil {
		args = append(args, *fields.LinkedID)
		sets = append(sets, fmt.Sprintf("linked_id = $%d", len(args)))
	}
	if fields.LinkPrecedence != nil {
		args = append(args, string(*fields.LinkPrecedence))
		sets = append(sets, fmt.Sprintf("link_precedence = $%d", len(args)))
	}
	args = append(args, s.clock())
	sets = append(sets, fmt.Sprintf("updated_at = $%d", len(args)))
	args = append(args, id)

	query := fmt.Sprintf(`UPDATE contacts SET %s WHERE id = $%d AND deleted_at IS NULL`,
		strings.Join(sets, ", "), len(args))

	res, err := s.q.ExecContext(ctx, query, args...)
	if err != nil {
		return models.Contact{}, fmt.Errorf("update contact %d: %w", id, classify(err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return models.Contact{}, fmt.Errorf("update contact %d: %w", id, err)
	}
	if affected == 0 {
		return models.Contact{}, fmt.Errorf("contact %d: %w", id, ErrNotFound)
	}
	return s.FindUnique(ctx, id)
}

// queryContacts executes a query and returns contacts
func (s *ContactStore) queryContacts(ctx context.Context, query string, args ...any) ([]models.Contact, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contacts []models.Contact
	for rows.Next() {
		var c models.Contact
		var phone, email sql.NullString
		var linkedID sql.NullInt64
		var precedence string
		var deletedAt sql.NullTime

		err := rows.Scan(&c.ID, &phone, &email, &linkedID, &precedence, &c.CreatedAt, &c.UpdatedAt, &deletedAt)
		if err != nil {
			return nil, err
		}

		c.LinkPrecedence = models.LinkPrecedence(precedence)
		if phone.Valid {
			c.PhoneNumber = &phone.String
		}
		if email.Valid {
			c.Email = &email.String
		}
		if linkedID.Valid {
			c.LinkedID = &linkedID.Int64
		}
		if deletedAt.Valid {
			c.DeletedAt = &deletedAt.Time
		}

		contacts = append(contacts, c)
	}

	return contacts, rows.Err()
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
