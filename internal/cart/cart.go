// Package cart holds the shopper's cart: a normalized list of lines that is
// written through to a Storage on every mutation.
package cart

import (
	"context"
	"fmt"
	"sync"

	"storefront/internal/util"

	"go.uber.org/zap"
)

// Store is the cart of one cart session. It is not authoritative until
// hydrated: before that Items is empty and Count is zero.
type Store struct {
	mu       sync.Mutex
	storage  Storage
	items    []Line
	hydrated bool
	ready    chan struct{}
	version  uint64
	logger   *zap.Logger
}

// NewStore creates an unhydrated cart over storage.
func NewStore(storage Storage) *Store {
	return &Store{
		storage: storage,
		items:   []Line{},
		ready:   make(chan struct{}),
		logger:  util.GetLogger(),
	}
}

// Hydrate loads the persisted cart. Unreadable or malformed data is treated
// as an empty cart. Calling Hydrate again is a no-op.
func (s *Store) Hydrate(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hydrateLocked(ctx)
}

func (s *Store) hydrateLocked(ctx context.Context) {
	if s.hydrated {
		return
	}

	raw, err := s.storage.Load(ctx)
	if err != nil {
		s.logger.Warn("Cart load failed, starting empty", zap.Error(err))
		raw = nil
	}

	s.items = Decode(raw)
	s.hydrated = true
	s.version++
	close(s.ready)
}

// Hydrated reports whether the persisted cart has been loaded.
func (s *Store) Hydrated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hydrated
}

// Ready is closed once the cart is hydrated.
func (s *Store) Ready() <-chan struct{} {
	return s.ready
}

// Version changes on hydration and after every successful mutation.
func (s *Store) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Items returns a copy of the cart lines.
func (s *Store) Items() []Line {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hydrated {
		return []Line{}
	}
	return cloneLines(s.items)
}

// Count is the total quantity across all lines.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hydrated {
		return 0
	}
	n := 0
	for _, l := range s.items {
		n += l.Qty
	}
	return n
}

// AddItem adds qty units of a price row without metadata.
func (s *Store) AddItem(ctx context.Context, priceRowID string, qty int) error {
	return s.AddItemWithMeta(ctx, priceRowID, nil, qty)
}

// AddItemWithMeta adds qty units of a price row with selection metadata.
func (s *Store) AddItemWithMeta(ctx context.Context, priceRowID string, meta Meta, qty int) error {
	return s.mutate(ctx, "add", func(lines []Line) []Line {
		return append(lines, Line{PriceRowID: priceRowID, Qty: qty, Meta: cloneMeta(meta)})
	})
}

// SetQuantity replaces the quantity of every line of priceRowID.
// A quantity of zero or less removes them.
func (s *Store) SetQuantity(ctx context.Context, priceRowID string, qty int) error {
	return s.mutate(ctx, "set_quantity", func(lines []Line) []Line {
		for i := range lines {
			if lines[i].PriceRowID == priceRowID {
				lines[i].Qty = qty
			}
		}
		return lines
	})
}

// SetLineQuantity replaces the quantity of the line matching priceRowID and
// meta exactly.
func (s *Store) SetLineQuantity(ctx context.Context, priceRowID string, meta Meta, qty int) error {
	return s.mutate(ctx, "set_quantity", func(lines []Line) []Line {
		for i := range lines {
			if lines[i].PriceRowID == priceRowID && SameMeta(lines[i].Meta, meta) {
				lines[i].Qty = qty
			}
		}
		return lines
	})
}

// RemoveItem deletes every line of priceRowID.
func (s *Store) RemoveItem(ctx context.Context, priceRowID string) error {
	return s.mutate(ctx, "remove", func(lines []Line) []Line {
		return filter(lines, func(l Line) bool { return l.PriceRowID != priceRowID })
	})
}

// RemoveLine deletes the line matching priceRowID and meta exactly.
func (s *Store) RemoveLine(ctx context.Context, priceRowID string, meta Meta) error {
	return s.mutate(ctx, "remove", func(lines []Line) []Line {
		return filter(lines, func(l Line) bool {
			return l.PriceRowID != priceRowID || !SameMeta(l.Meta, meta)
		})
	})
}

// Clear empties the cart.
func (s *Store) Clear(ctx context.Context) error {
	return s.mutate(ctx, "clear", func([]Line) []Line {
		return []Line{}
	})
}

// mutate applies fn to a copy of the lines, normalizes and persists the
// result. A mutation on an unhydrated cart hydrates it first so persisted
// lines are never overwritten. In-memory state only changes once the write
// succeeded.
func (s *Store) mutate(ctx context.Context, op string, fn func([]Line) []Line) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.hydrateLocked(ctx)

	next := Normalize(fn(cloneLines(s.items)))
	data, err := Encode(next)
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}
	if err := s.storage.Save(ctx, data); err != nil {
		return fmt.Errorf("persist cart: %w", err)
	}

	s.items = next
	s.version++
	util.CartMutationsTotal.WithLabelValues(op).Inc()
	return nil
}

func filter(lines []Line, keep func(Line) bool) []Line {
	out := lines[:0]
	for _, l := range lines {
		if keep(l) {
			out = append(out, l)
		}
	}
	return out
}
