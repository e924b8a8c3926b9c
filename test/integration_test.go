//go:build integration

package test

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Noa-ST/asmprn/internal/cart"
	"github.com/Noa-ST/asmprn/internal/catalog"
	"github.com/Noa-ST/asmprn/internal/domain"
	"github.com/Noa-ST/asmprn/internal/messaging"
	"github.com/Noa-ST/asmprn/internal/orders"
)

const testShippingFee = 15000

type fixture struct {
	db          *sql.DB
	products    *catalog.ProductRepository
	cartService *cart.Service
	orders      *orders.Service
}

func newFixture(t *testing.T, db *sql.DB) *fixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	locks := cart.NewKeyedMutex()

	products := catalog.NewProductRepository(db)
	cartService := cart.NewService(cart.NewPostgresRepository(db), products, nil, locks, logger)
	orderService := orders.NewService(orders.NewOrderRepository(db), locks, cartService, nil, testShippingFee, logger)

	return &fixture{
		db:          db,
		products:    products,
		cartService: cartService,
		orders:      orderService,
	}
}

func (f *fixture) seedUser(t *testing.T) string {
	t.Helper()
	id := uuid.New().String()
	_, err := f.db.Exec(`
		INSERT INTO users (id, email, password_hash)
		VALUES ($1, $2, 'x')
	`, id, id+"@example.com")
	if err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
	return id
}

func (f *fixture) seedProduct(t *testing.T, name string, price int64) string {
	t.Helper()
	p := &domain.Product{Name: name, Price: price}
	if err := f.products.Create(context.Background(), p); err != nil {
		t.Fatalf("failed to seed product: %v", err)
	}
	return p.ID
}

func TestCheckoutFlow(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db := StartPostgres(ctx, t)
	f := newFixture(t, db)
	userID := f.seedUser(t)
	productA := f.seedProduct(t, "Áo thun nam", 100000)
	productB := f.seedProduct(t, "Quần jean nữ", 50000)

	if _, err := f.cartService.AddItem(ctx, userID, productA, 2); err != nil {
		t.Fatalf("failed to add product A: %v", err)
	}
	if _, err := f.cartService.AddItem(ctx, userID, productB, 1); err != nil {
		t.Fatalf("failed to add product B: %v", err)
	}

	current, err := f.cartService.GetCart(ctx, userID)
	if err != nil {
		t.Fatalf("failed to get cart: %v", err)
	}
	if current.Subtotal != 250000 {
		t.Fatalf("expected subtotal 250000, got %d", current.Subtotal)
	}

	order, err := f.orders.Checkout(ctx, userID)
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	if order.TotalAmount != 265000 {
		t.Errorf("expected total 265000, got %d", order.TotalAmount)
	}
	if order.ShippingFee != testShippingFee {
		t.Errorf("expected shipping fee %d, got %d", testShippingFee, order.ShippingFee)
	}
	if order.Status != domain.OrderStatusPending {
		t.Errorf("expected status pending, got %s", order.Status)
	}
	if len(order.Lines) != 2 {
		t.Fatalf("expected 2 order lines, got %d", len(order.Lines))
	}
	if order.Lines[0].Price != 100000 || order.Lines[1].Price != 50000 {
		t.Errorf("unexpected frozen prices: %d, %d", order.Lines[0].Price, order.Lines[1].Price)
	}

	current, err = f.cartService.GetCart(ctx, userID)
	if err != nil {
		t.Fatalf("failed to get cart after checkout: %v", err)
	}
	if len(current.Items) != 0 {
		t.Errorf("expected empty cart after checkout, got %d lines", len(current.Items))
	}

	// an immediate retry must not create a second order
	if _, err := f.orders.Checkout(ctx, userID); err != orders.ErrEmptyCart {
		t.Errorf("expected ErrEmptyCart on retry, got %v", err)
	}

	list, err := f.orders.ListOrders(ctx, userID)
	if err != nil {
		t.Fatalf("failed to list orders: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected exactly 1 order, got %d", len(list))
	}
}

func TestCheckoutFreezesLivePrice(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db := StartPostgres(ctx, t)
	f := newFixture(t, db)
	userID := f.seedUser(t)
	productID := f.seedProduct(t, "Giày sneaker", 100000)

	if _, err := f.cartService.AddItem(ctx, userID, productID, 1); err != nil {
		t.Fatalf("failed to add product: %v", err)
	}

	// price change between add and checkout: the checkout-time price wins
	product, err := f.products.GetByID(ctx, productID)
	if err != nil || product == nil {
		t.Fatalf("failed to load product: %v", err)
	}
	product.Price = 120000
	if _, err := f.products.Update(ctx, product); err != nil {
		t.Fatalf("failed to update price: %v", err)
	}

	order, err := f.orders.Checkout(ctx, userID)
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	if order.Lines[0].Price != 120000 {
		t.Errorf("expected frozen price 120000, got %d", order.Lines[0].Price)
	}
	if order.TotalAmount != 120000+testShippingFee {
		t.Errorf("unexpected total %d", order.TotalAmount)
	}

	// the frozen price must survive later catalog changes
	product.Price = 999999
	if _, err := f.products.Update(ctx, product); err != nil {
		t.Fatalf("failed to update price: %v", err)
	}

	list, err := f.orders.ListOrders(ctx, userID)
	if err != nil {
		t.Fatalf("failed to list orders: %v", err)
	}
	if list[0].Lines[0].Price != 120000 {
		t.Errorf("order price changed after placement: %d", list[0].Lines[0].Price)
	}
}

func TestCheckoutEmptyCart(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db := StartPostgres(ctx, t)
	f := newFixture(t, db)
	userID := f.seedUser(t)

	if _, err := f.orders.Checkout(ctx, userID); err != orders.ErrEmptyCart {
		t.Fatalf("expected ErrEmptyCart, got %v", err)
	}

	list, err := f.orders.ListOrders(ctx, userID)
	if err != nil {
		t.Fatalf("failed to list orders: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("empty-cart checkout must not create orders, got %d", len(list))
	}
}

func TestCheckoutProductVanished(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db := StartPostgres(ctx, t)
	f := newFixture(t, db)
	userID := f.seedUser(t)
	productID := f.seedProduct(t, "Mũ lưỡi trai", 95000)

	if _, err := f.cartService.AddItem(ctx, userID, productID, 1); err != nil {
		t.Fatalf("failed to add product: %v", err)
	}

	if _, err := f.products.Delete(ctx, productID); err != nil {
		t.Fatalf("failed to delete product: %v", err)
	}

	if _, err := f.orders.Checkout(ctx, userID); err != orders.ErrProductUnavailable {
		t.Fatalf("expected ErrProductUnavailable, got %v", err)
	}

	list, err := f.orders.ListOrders(ctx, userID)
	if err != nil {
		t.Fatalf("failed to list orders: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("failed checkout must not create orders, got %d", len(list))
	}

	// the cart row survives the rolled back transaction
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM cart_items WHERE user_id = $1`, userID).Scan(&count); err != nil {
		t.Fatalf("failed to count cart rows: %v", err)
	}
	if count != 1 {
		t.Errorf("expected cart line to survive failed checkout, got %d rows", count)
	}
}

func TestCartUpsertAtDatabaseLevel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db := StartPostgres(ctx, t)
	f := newFixture(t, db)
	userID := f.seedUser(t)
	productID := f.seedProduct(t, "Túi xách da", 1200000)

	for range 3 {
		if _, err := f.cartService.AddItem(ctx, userID, productID, 1); err != nil {
			t.Fatalf("failed to add product: %v", err)
		}
	}

	var rows, quantity int
	if err := db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(quantity), 0)
		FROM cart_items WHERE user_id = $1
	`, userID).Scan(&rows, &quantity); err != nil {
		t.Fatalf("failed to inspect cart rows: %v", err)
	}
	if rows != 1 {
		t.Errorf("expected a single row per product, got %d", rows)
	}
	if quantity != 3 {
		t.Errorf("expected quantity 3, got %d", quantity)
	}
}

func TestOrderStatusLifecycle(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db := StartPostgres(ctx, t)
	f := newFixture(t, db)
	userID := f.seedUser(t)
	productID := f.seedProduct(t, "Áo thun nam", 150000)

	if _, err := f.cartService.AddItem(ctx, userID, productID, 1); err != nil {
		t.Fatalf("failed to add product: %v", err)
	}
	order, err := f.orders.Checkout(ctx, userID)
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	for _, status := range []domain.OrderStatus{
		domain.OrderStatusProcessing,
		domain.OrderStatusShipped,
		domain.OrderStatusDelivered,
	} {
		updated, err := f.orders.UpdateStatus(ctx, order.ID, status)
		if err != nil {
			t.Fatalf("transition to %s failed: %v", status, err)
		}
		if updated.Status != status {
			t.Fatalf("expected status %s, got %s", status, updated.Status)
		}
	}

	// delivered is terminal
	if _, err := f.orders.UpdateStatus(ctx, order.ID, domain.OrderStatusCancelled); err != orders.ErrInvalidTransition {
		t.Errorf("expected ErrInvalidTransition from delivered, got %v", err)
	}
}

func TestOrderPlacedEventRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	brokers := StartKafka(ctx, t)

	producer := messaging.NewProducer(brokers, "order.placed")
	defer func() { _ = producer.Close() }()

	sent := domain.OrderPlacedEvent{
		OrderID:     uuid.New().String(),
		UserID:      uuid.New().String(),
		Lines:       []domain.OrderLine{{ProductID: "p1", Name: "Áo thun nam", Quantity: 2, Price: 150000}},
		TotalAmount: 315000,
		PlacedAt:    time.Now().UTC(),
	}
	if err := producer.Publish(ctx, sent.OrderID, sent); err != nil {
		t.Fatalf("failed to publish: %v", err)
	}

	consumer := messaging.NewConsumer(brokers, "order.placed", "integration-test")
	defer func() { _ = consumer.Close() }()

	received := make(chan domain.OrderPlacedEvent, 1)
	consumeCtx, stop := context.WithCancel(ctx)
	defer stop()

	go func() {
		_ = consumer.Consume(consumeCtx, func(_ context.Context, payload []byte) error {
			var event domain.OrderPlacedEvent
			if err := json.Unmarshal(payload, &event); err != nil {
				return err
			}
			received <- event
			return nil
		})
	}()

	select {
	case event := <-received:
		if event.OrderID != sent.OrderID {
			t.Errorf("expected order id %s, got %s", sent.OrderID, event.OrderID)
		}
		if event.TotalAmount != sent.TotalAmount {
			t.Errorf("expected total %d, got %d", sent.TotalAmount, event.TotalAmount)
		}
	case <-time.After(time.Minute):
		t.Fatal("timed out waiting for event")
	}
}
