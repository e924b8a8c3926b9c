package orders

import (
	"context"
	"log/slog"

	"github.com/Noa-ST/asmprn/internal/cart"
	"github.com/Noa-ST/asmprn/internal/domain"
	"github.com/Noa-ST/asmprn/internal/messaging"
)

// CartInvalidator drops a user's cached cart after checkout clears it.
type CartInvalidator interface {
	Invalidate(userID string)
}

// Service drives checkout. It shares the cart's per-identity mutex so the
// read-freeze-write-clear sequence cannot interleave with a concurrent
// cart mutation for the same user.
type Service struct {
	repo        *OrderRepository
	locks       *cart.KeyedMutex
	invalidator CartInvalidator
	producer    *messaging.Producer
	shippingFee int64
	logger      *slog.Logger
}

func NewService(repo *OrderRepository, locks *cart.KeyedMutex, invalidator CartInvalidator, producer *messaging.Producer, shippingFee int64, logger *slog.Logger) *Service {
	return &Service{
		repo:        repo,
		locks:       locks,
		invalidator: invalidator,
		producer:    producer,
		shippingFee: shippingFee,
		logger:      logger,
	}
}

// Checkout converts the caller's cart into a pending order. The flat
// shipping fee applies to any non-empty cart; an empty cart fails before
// anything is written.
func (s *Service) Checkout(ctx context.Context, userID string) (*domain.Order, error) {
	s.locks.Lock(userID)
	defer s.locks.Unlock(userID)

	order, err := s.repo.CreateFromCart(ctx, userID, s.shippingFee)
	if err != nil {
		return nil, err
	}

	if s.invalidator != nil {
		s.invalidator.Invalidate(userID)
	}

	if s.producer != nil {
		event := domain.OrderPlacedEvent{
			OrderID:     order.ID,
			UserID:      order.UserID,
			Lines:       order.Lines,
			TotalAmount: order.TotalAmount,
			PlacedAt:    order.CreatedAt,
		}
		// The order is already durable at this point, so a publish failure
		// is logged rather than failing the checkout.
		if err := s.producer.Publish(ctx, order.ID, event); err != nil {
			s.logger.Error("failed to publish order placed event", "error", err, "order_id", order.ID)
		}
	}

	return order, nil
}

func (s *Service) ListOrders(ctx context.Context, userID string) ([]domain.Order, error) {
	return s.repo.ListByUser(ctx, userID)
}

func (s *Service) GetOrder(ctx context.Context, userID, orderID string) (*domain.Order, error) {
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil || order.UserID != userID {
		return nil, nil
	}
	return order, nil
}

func (s *Service) UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus) (*domain.Order, error) {
	return s.repo.UpdateStatus(ctx, orderID, status)
}
