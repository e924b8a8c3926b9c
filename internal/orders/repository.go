package orders

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/Noa-ST/asmprn/internal/domain"
)

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// CreateFromCart converts the caller's cart into an order inside a single
// transaction: read the cart with live prices, freeze those prices into
// order lines, write the order, clear the cart. Either all of it commits
// or none of it does.
func (r *OrderRepository) CreateFromCart(ctx context.Context, userID string, shippingFee int64) (*domain.Order, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
		SELECT ci.product_id, ci.quantity, p.name, p.price
		FROM cart_items ci
		LEFT JOIN products p ON p.id = ci.product_id
		WHERE ci.user_id = $1
		ORDER BY ci.created_at
		FOR UPDATE OF ci
	`, userID)
	if err != nil {
		return nil, err
	}

	var lines []domain.OrderLine
	for rows.Next() {
		var (
			productID string
			quantity  int
			name      sql.NullString
			price     sql.NullInt64
		)
		if err := rows.Scan(&productID, &quantity, &name, &price); err != nil {
			_ = rows.Close()
			return nil, err
		}
		if !price.Valid {
			_ = rows.Close()
			return nil, ErrProductUnavailable
		}
		lines = append(lines, domain.OrderLine{
			ProductID: productID,
			Name:      name.String,
			Quantity:  quantity,
			Price:     price.Int64,
		})
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	var subtotal int64
	for _, line := range lines {
		subtotal += int64(line.Quantity) * line.Price
	}

	order := &domain.Order{
		ID:          uuid.New().String(),
		UserID:      userID,
		Lines:       lines,
		Subtotal:    subtotal,
		ShippingFee: shippingFee,
		TotalAmount: subtotal + shippingFee,
		Status:      domain.OrderStatusPending,
		CreatedAt:   time.Now().UTC(),
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, status, subtotal, shipping_fee, total, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
	`, order.ID, order.UserID, order.Status, order.Subtotal, order.ShippingFee, order.TotalAmount, order.CreatedAt)
	if err != nil {
		return nil, err
	}

	for position, line := range order.Lines {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, product_id, name, quantity, price, position)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, uuid.New().String(), order.ID, line.ProductID, line.Name, line.Quantity, line.Price, position)
		if err != nil {
			return nil, err
		}
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM cart_items
		WHERE user_id = $1
	`, userID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return order, nil
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	order := &domain.Order{}

	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, status, subtotal, shipping_fee, total, created_at
		FROM orders
		WHERE id = $1
	`, id).Scan(&order.ID, &order.UserID, &order.Status, &order.Subtotal, &order.ShippingFee, &order.TotalAmount, &order.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT product_id, name, quantity, price
		FROM order_items
		WHERE order_id = $1
		ORDER BY position
	`, id)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var line domain.OrderLine
		if err := rows.Scan(&line.ProductID, &line.Name, &line.Quantity, &line.Price); err != nil {
			return nil, err
		}
		order.Lines = append(order.Lines, line)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return order, nil
}

// ListByUser returns the caller's orders most-recent-first with their
// frozen line snapshots. No catalog lookups happen here.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, status, subtotal, shipping_fee, total, created_at
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	orderMap := make(map[string]*domain.Order)
	var orderIDs []string

	for rows.Next() {
		var order domain.Order
		if err := rows.Scan(&order.ID, &order.UserID, &order.Status, &order.Subtotal,
			&order.ShippingFee, &order.TotalAmount, &order.CreatedAt); err != nil {
			return nil, err
		}
		order.Lines = []domain.OrderLine{}
		orderMap[order.ID] = &order
		orderIDs = append(orderIDs, order.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(orderIDs) == 0 {
		return []domain.Order{}, nil
	}

	itemRows, err := r.db.QueryContext(ctx, `
		SELECT order_id, product_id, name, quantity, price
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY position
	`, pq.Array(orderIDs))
	if err != nil {
		return nil, err
	}
	defer func() { _ = itemRows.Close() }()

	for itemRows.Next() {
		var orderID string
		var line domain.OrderLine
		if err := itemRows.Scan(&orderID, &line.ProductID, &line.Name, &line.Quantity, &line.Price); err != nil {
			return nil, err
		}
		order := orderMap[orderID]
		order.Lines = append(order.Lines, line)
	}

	if err := itemRows.Err(); err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		orders = append(orders, *orderMap[id])
	}

	return orders, nil
}

// UpdateStatus applies a fulfillment-driven transition. The state machine
// is enforced here: terminal states never revert, and nothing but
// checkout writes pending.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) (*domain.Order, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var current domain.OrderStatus
	err = tx.QueryRowContext(ctx, `
		SELECT status
		FROM orders
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&current)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	if !current.CanTransitionTo(status) {
		return nil, ErrInvalidTransition
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE orders SET status = $1, updated_at = NOW()
		WHERE id = $2
	`, status, id); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return r.GetByID(ctx, id)
}
