package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrItemNotFound = errors.New("item not found")
var ErrNotOwner = errors.New("caller does not own this item")

// Item statuses
const (
	ItemStatusActive  = "active"
	ItemStatusSold    = "sold"
	ItemStatusGifted  = "gifted"
	ItemStatusDonated = "donated"
)

type Item struct {
	ID                    uuid.UUID
	OwnerID               uuid.UUID
	Name                  string
	Description           string
	Status                string
	ImageKey              sql.NullString
	SoldPrice             sql.NullFloat64
	SoldCurrency          sql.NullString
	GiftedRecipientEmail  sql.NullString
	GiftedMessage         sql.NullString
	DonatedOrganizationID sql.NullString
	DonatedNotes          sql.NullString
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

type ItemRepository struct {
	db *DB
}

func NewItemRepository(db *DB) *ItemRepository {
	return &ItemRepository{db: db}
}

const itemColumns = `
	id, owner_id, name, description, status, image_key,
	sold_price, sold_currency, gifted_recipient_email, gifted_message,
	donated_organization_id, donated_notes, created_at, updated_at
`

func (r *ItemRepository) Create(ctx context.Context, item *Item) error {
	query := `
		INSERT INTO items (id, owner_id, name, description, status, image_key, search_text, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	searchText := normalizeSearchText(item.Name + " " + item.Description)
	_, err := r.db.ExecContext(ctx, query,
		item.ID, item.OwnerID, item.Name, item.Description, item.Status, item.ImageKey,
		searchText, item.CreatedAt, item.UpdatedAt,
	)
	return err
}

func (r *ItemRepository) GetByID(ctx context.Context, id uuid.UUID) (*Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

// OwnedBy is the single ownership predicate shared by every item-scoped
// operation (items, sharing, concierge). It distinguishes a missing item
// from one owned by somebody else.
func (r *ItemRepository) OwnedBy(ctx context.Context, itemID, ownerID uuid.UUID) error {
	var actualOwner uuid.UUID
	err := r.db.QueryRowContext(ctx, `SELECT owner_id FROM items WHERE id = $1`, itemID).Scan(&actualOwner)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrItemNotFound
		}
		return err
	}
	if actualOwner != ownerID {
		return ErrNotOwner
	}
	return nil
}

// ListByOwner returns one page of the owner's items, newest first. A
// non-empty query filters by normalized substring match.
func (r *ItemRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID, query string, limit, offset int) ([]*Item, error) {
	args := []any{ownerID}
	sqlQuery := `SELECT ` + itemColumns + ` FROM items WHERE owner_id = $1`

	if query != "" {
		sqlQuery += ` AND search_text LIKE '%' || $2 || '%'`
		args = append(args, normalizeSearchText(query))
	}

	sqlQuery += ` ORDER BY created_at DESC`
	args = append(args, limit, offset)
	if query != "" {
		sqlQuery += ` LIMIT $3 OFFSET $4`
	} else {
		sqlQuery += ` LIMIT $2 OFFSET $3`
	}

	rows, err := r.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item := &Item{}
		if err := scanItem(rows, item); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *ItemRepository) CountByOwner(ctx context.Context, ownerID uuid.UUID, query string) (int, error) {
	var count int
	if query == "" {
		err := r.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM items WHERE owner_id = $1`, ownerID).Scan(&count)
		return count, err
	}
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM items WHERE owner_id = $1 AND search_text LIKE '%' || $2 || '%'`,
		ownerID, normalizeSearchText(query)).Scan(&count)
	return count, err
}

func (r *ItemRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM items WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireRowAffected(result, ErrItemNotFound)
}

func (r *ItemRepository) MarkSold(ctx context.Context, id uuid.UUID, price float64, currency string) (*Item, error) {
	query := `
		UPDATE items
		SET status = $2, sold_price = $3, sold_currency = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + itemColumns

	return r.scanOne(r.db.QueryRowContext(ctx, query, id, ItemStatusSold, price, currency))
}

func (r *ItemRepository) MarkGifted(ctx context.Context, id uuid.UUID, recipientEmail string, message sql.NullString) (*Item, error) {
	query := `
		UPDATE items
		SET status = $2, gifted_recipient_email = $3, gifted_message = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + itemColumns

	return r.scanOne(r.db.QueryRowContext(ctx, query, id, ItemStatusGifted, recipientEmail, message))
}

func (r *ItemRepository) MarkDonated(ctx context.Context, id uuid.UUID, organizationID string, notes sql.NullString) (*Item, error) {
	query := `
		UPDATE items
		SET status = $2, donated_organization_id = $3, donated_notes = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + itemColumns

	return r.scanOne(r.db.QueryRowContext(ctx, query, id, ItemStatusDonated, organizationID, notes))
}

func (r *ItemRepository) SetImageKey(ctx context.Context, id uuid.UUID, imageKey string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE items SET image_key = $2, updated_at = NOW() WHERE id = $1`, id, imageKey)
	if err != nil {
		return err
	}
	return requireRowAffected(result, ErrItemNotFound)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner, item *Item) error {
	return row.Scan(
		&item.ID, &item.OwnerID, &item.Name, &item.Description, &item.Status, &item.ImageKey,
		&item.SoldPrice, &item.SoldCurrency, &item.GiftedRecipientEmail, &item.GiftedMessage,
		&item.DonatedOrganizationID, &item.DonatedNotes, &item.CreatedAt, &item.UpdatedAt,
	)
}

func (r *ItemRepository) scanOne(row *sql.Row) (*Item, error) {
	item := &Item{}
	if err := scanItem(row, item); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrItemNotFound
		}
		return nil, err
	}
	return item, nil
}
