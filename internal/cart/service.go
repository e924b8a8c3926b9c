package cart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Noa-ST/asmprn/internal/domain"
)

// Catalog is the read-only product lookup the cart depends on.
type Catalog interface {
	GetByID(ctx context.Context, id string) (*domain.Product, error)
	GetByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)
}

// Service owns one cart per identity. Mutations on the same cart are
// serialized through the shared KeyedMutex; carts of different users never
// contend.
type Service struct {
	repo    Repository
	catalog Catalog
	cache   Cache
	locks   *KeyedMutex
	sfg     singleflight.Group
	logger  *slog.Logger
}

func NewService(repo Repository, catalog Catalog, cache Cache, locks *KeyedMutex, logger *slog.Logger) *Service {
	return &Service{
		repo:    repo,
		catalog: catalog,
		cache:   cache,
		locks:   locks,
		logger:  logger,
	}
}

// GetCart returns the cart with its subtotal recomputed from live catalog
// prices. A user without a cart gets an empty cart with subtotal 0.
func (s *Service) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	if s.cache == nil {
		return s.repo.GetCart(ctx, userID)
	}

	// singleflight collapses concurrent misses for the same user.
	v, err, _ := s.sfg.Do(userID, func() (any, error) {
		lines, err := s.cache.Get(ctx, userID)
		if err == nil {
			return s.hydrate(ctx, userID, lines)
		}
		if !errors.Is(err, ErrCacheMiss) {
			s.logger.Warn("cart cache read failed", "error", err, "user_id", userID)
		}

		// The per-user lock spans the repository read and the cache write:
		// no mutation can commit and invalidate in between, so a stale
		// structure never lands after its own invalidation.
		s.locks.Lock(userID)
		defer s.locks.Unlock(userID)

		cart, err := s.repo.GetCart(ctx, userID)
		if err != nil {
			return nil, err
		}

		cached := make([]CachedLine, 0, len(cart.Items))
		for _, line := range cart.Items {
			cached = append(cached, CachedLine{ID: line.ID, ProductID: line.Product.ID, Quantity: line.Quantity})
		}
		if err := s.cache.Set(ctx, userID, cached); err != nil {
			s.logger.Warn("cart cache write failed", "error", err, "user_id", userID)
		}

		return cart, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*domain.Cart), nil
}

// hydrate rebuilds a cart from cached structure with prices resolved
// against the live catalog. Lines whose product has vanished are dropped,
// matching what the repository join would return.
func (s *Service) hydrate(ctx context.Context, userID string, lines []CachedLine) (*domain.Cart, error) {
	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ProductID)
	}

	products, err := s.catalog.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve cached cart products: %w", err)
	}

	cart := &domain.Cart{UserID: userID, Items: []domain.CartLine{}}
	for _, line := range lines {
		p, ok := products[line.ProductID]
		if !ok {
			continue
		}
		cart.Items = append(cart.Items, domain.CartLine{
			ID:       line.ID,
			Quantity: line.Quantity,
			Product:  domain.CartProduct{ID: p.ID, Name: p.Name, Price: p.Price, Image: p.Image},
		})
	}

	cart.Subtotal = cart.ComputeSubtotal()
	return cart, nil
}

// AddItem adds quantity of a product, incrementing the existing line when
// the product is already in the cart.
func (s *Service) AddItem(ctx context.Context, userID, productID string, quantity int) (*domain.Cart, error) {
	if quantity < 1 {
		quantity = 1
	}

	s.locks.Lock(userID)
	defer s.locks.Unlock(userID)

	product, err := s.catalog.GetByID(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("resolve product: %w", err)
	}
	if product == nil {
		return nil, ErrProductNotFound
	}

	if err := s.repo.AddItem(ctx, userID, productID, quantity); err != nil {
		return nil, fmt.Errorf("add cart item: %w", err)
	}

	s.invalidate(userID)
	return s.repo.GetCart(ctx, userID)
}

// SetQuantity replaces a line's quantity. Zero or negative removes the
// line; removing a line that is already gone is a no-op.
func (s *Service) SetQuantity(ctx context.Context, userID, lineID string, quantity int) (*domain.Cart, error) {
	s.locks.Lock(userID)
	defer s.locks.Unlock(userID)

	if quantity <= 0 {
		if err := s.repo.RemoveItem(ctx, userID, lineID); err != nil {
			return nil, fmt.Errorf("remove cart item: %w", err)
		}
	} else {
		found, err := s.repo.SetQuantity(ctx, userID, lineID, quantity)
		if err != nil {
			return nil, fmt.Errorf("set cart quantity: %w", err)
		}
		if !found {
			return nil, ErrLineNotFound
		}
	}

	s.invalidate(userID)
	return s.repo.GetCart(ctx, userID)
}

// RemoveItem deletes a line if present. Absent lines are a no-op, which is
// what makes retried deletes safe.
func (s *Service) RemoveItem(ctx context.Context, userID, lineID string) error {
	s.locks.Lock(userID)
	defer s.locks.Unlock(userID)

	if err := s.repo.RemoveItem(ctx, userID, lineID); err != nil {
		return fmt.Errorf("remove cart item: %w", err)
	}

	s.invalidate(userID)
	return nil
}

// Invalidate drops the cached cart structure for a user. Checkout calls
// this after clearing the cart.
func (s *Service) Invalidate(userID string) {
	s.invalidate(userID)
}

func (s *Service) invalidate(userID string) {
	if s.cache == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, userID); err != nil {
		s.logger.Warn("cart cache invalidation failed", "error", err, "user_id", userID)
	}
}
