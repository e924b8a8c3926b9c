package cart

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/Noa-ST/asmprn/internal/domain"
)

// Repository is the cart store contract the service operates on.
type Repository interface {
	GetCart(ctx context.Context, userID string) (*domain.Cart, error)
	AddItem(ctx context.Context, userID, productID string, quantity int) error
	SetQuantity(ctx context.Context, userID, lineID string, quantity int) (bool, error)
	RemoveItem(ctx context.Context, userID, lineID string) error
}

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetCart joins live product rows so the subtotal always reflects current
// catalog prices. A missing cart is an empty cart, not an error.
func (r *PostgresRepository) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT ci.id, ci.quantity, p.id, p.name, p.price, p.image
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.user_id = $1
		ORDER BY ci.created_at
	`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	cart := &domain.Cart{UserID: userID, Items: []domain.CartLine{}}
	for rows.Next() {
		var line domain.CartLine
		if err := rows.Scan(&line.ID, &line.Quantity,
			&line.Product.ID, &line.Product.Name, &line.Product.Price, &line.Product.Image); err != nil {
			return nil, err
		}
		cart.Items = append(cart.Items, line)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	cart.Subtotal = cart.ComputeSubtotal()
	return cart, nil
}

// AddItem upserts on (user_id, product_id): a second add of the same
// product increments the existing line instead of creating a duplicate.
func (r *PostgresRepository) AddItem(ctx context.Context, userID, productID string, quantity int) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO cart_items (id, user_id, product_id, quantity, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (user_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity, updated_at = EXCLUDED.updated_at
	`, uuid.New().String(), userID, productID, quantity, now)
	return err
}

func (r *PostgresRepository) SetQuantity(ctx context.Context, userID, lineID string, quantity int) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE cart_items
		SET quantity = $3, updated_at = NOW()
		WHERE id = $1 AND user_id = $2
	`, lineID, userID, quantity)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rowsAffected > 0, nil
}

func (r *PostgresRepository) RemoveItem(ctx context.Context, userID, lineID string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM cart_items
		WHERE id = $1 AND user_id = $2
	`, lineID, userID)
	return err
}
