package main

import (
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PortfolioBackend is where a portfolio is persisted: the document store for
// signed-in users, local storage for guests.
type PortfolioBackend interface {
	Load() ([]Holding, error)
	Save(holdings []Holding) error
	Name() string
}

type documentBackend struct {
	db  *Database
	uid string
}

func (b *documentBackend) Load() ([]Holding, error)      { return b.db.LoadHoldings(b.uid) }
func (b *documentBackend) Save(holdings []Holding) error { return b.db.SaveHoldings(b.uid, holdings) }
func (b *documentBackend) Name() string                  { return "document" }

type localBackend struct {
	storage *LocalStorage
	key     string
}

func (b *localBackend) Load() ([]Holding, error) {
	var holdings []Holding
	if _, err := b.storage.GetItem(b.key, &holdings); err != nil {
		return nil, err
	}
	return holdings, nil
}

func (b *localBackend) Save(holdings []Holding) error { return b.storage.SetItem(b.key, holdings) }
func (b *localBackend) Name() string                  { return "local" }

// PortfolioStore holds the ordered holdings of one owner. Every mutation
// writes the full list to the backend while still holding the lock, so
// writes reach the backend in mutation order. A failed write is logged and
// the in-memory state is kept.
type PortfolioStore struct {
	owner   string
	backend PortfolioBackend
	hub     *EventHub
	logger  *zap.Logger

	mu       sync.Mutex
	holdings []Holding
}

func NewPortfolioStore(owner string, backend PortfolioBackend, hub *EventHub, logger *zap.Logger) *PortfolioStore {
	return &PortfolioStore{
		owner:   owner,
		backend: backend,
		hub:     hub,
		logger:  logger.Named("portfolio").With(zap.String("owner", owner), zap.String("backend", backend.Name())),
	}
}

// Load replaces the in-memory list with the persisted one.
func (s *PortfolioStore) Load() error {
	holdings, err := s.backend.Load()
	if err != nil {
		return fmt.Errorf("failed to load portfolio: %w", err)
	}

	s.mu.Lock()
	s.holdings = normalizeHoldings(holdings)
	s.mu.Unlock()
	return nil
}

// Holdings returns a copy of the current list.
func (s *PortfolioStore) Holdings() []Holding {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Holding(nil), s.holdings...)
}

// Add appends a new holding or merges into the existing one for the same
// symbol, averaging the cost by quantity.
func (s *PortfolioStore) Add(h Holding) error {
	h = sanitizeHolding(h)
	h.Symbol = normalizeSymbol(h.Symbol)
	if h.Symbol == "" {
		s.logger.Error("attempted to add a stock with no symbol")
		return ErrEmptySymbol
	}
	if h.Quantity < 0 {
		s.logger.Error("attempted to add a negative quantity",
			zap.String("symbol", h.Symbol), zap.Float64("quantity", h.Quantity))
		return ErrNegativeQuantity
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexLocked(h.Symbol)
	if idx < 0 {
		s.holdings = append(s.holdings, h)
	} else {
		merged, err := mergeHolding(s.holdings[idx], h)
		if err != nil {
			s.logger.Error("refusing merge", zap.String("symbol", h.Symbol), zap.Error(err))
			return err
		}
		s.holdings[idx] = merged
	}
	s.persistLocked()
	return nil
}

// Remove filters symbol out of the list.
func (s *PortfolioStore) Remove(symbol string) {
	symbol = normalizeSymbol(symbol)

	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.holdings[:0:0]
	for _, h := range s.holdings {
		if h.Symbol != symbol {
			kept = append(kept, h)
		}
	}
	s.holdings = kept
	s.persistLocked()
}

// Replace overwrites the whole list, as done for quantity edits.
func (s *PortfolioStore) Replace(holdings []Holding) {
	normalized := normalizeHoldings(holdings)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.holdings = normalized
	s.persistLocked()
}

// RefreshPrices copies the latest quote values onto matching holdings. The
// portfolio is only saved when a value moved.
func (s *PortfolioStore) RefreshPrices(quotes map[string]Quote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := false
	for i, h := range s.holdings {
		q, ok := quotes[h.Symbol]
		if !ok || q.Price == nil {
			continue
		}
		next := h
		next.CurrentPrice = *q.Price
		if q.Change != nil {
			next.Change = *q.Change
		}
		if q.PercentChange != nil {
			next.PercentChange = *q.PercentChange
		}
		if next.CurrentPrice == h.CurrentPrice && next.Change == h.Change && next.PercentChange == h.PercentChange {
			continue
		}
		s.holdings[i] = next
		changed = true
	}
	if changed {
		s.persistLocked()
	}
}

func (s *PortfolioStore) indexLocked(symbol string) int {
	for i, h := range s.holdings {
		if h.Symbol == symbol {
			return i
		}
	}
	return -1
}

func (s *PortfolioStore) persistLocked() {
	cleaned := make([]Holding, len(s.holdings))
	for i, h := range s.holdings {
		cleaned[i] = sanitizeHolding(h)
	}

	if err := s.backend.Save(cleaned); err != nil {
		s.logger.Error("portfolio save failed", zap.Error(err), zap.Int("holdings", len(cleaned)))
		return
	}
	if s.hub != nil {
		s.hub.Publish(Event{Topic: TopicPortfolio, Owner: s.owner, Payload: cleaned})
	}
}

// mergeHolding folds an additional purchase into an existing holding.
func mergeHolding(existing, add Holding) (Holding, error) {
	q1 := decimal.NewFromFloat(existing.Quantity)
	q2 := decimal.NewFromFloat(add.Quantity)
	total := q1.Add(q2)
	if !total.IsPositive() {
		return existing, ErrZeroQuantity
	}

	cost := q1.Mul(decimal.NewFromFloat(existing.AvgPrice)).
		Add(q2.Mul(decimal.NewFromFloat(add.AvgPrice)))
	avg, _ := cost.Div(total).Float64()
	quantity, _ := total.Float64()

	merged := existing
	merged.Quantity = quantity
	merged.AvgPrice = avg
	merged.CurrentPrice = add.CurrentPrice
	merged.Change = add.Change
	merged.PercentChange = add.PercentChange
	if merged.Name == "" {
		merged.Name = add.Name
	}
	return merged, nil
}

// normalizeHoldings enforces one entry per symbol: entries without a symbol
// are dropped and duplicates keep the first position with the last values.
func normalizeHoldings(holdings []Holding) []Holding {
	out := make([]Holding, 0, len(holdings))
	index := make(map[string]int, len(holdings))
	for _, h := range holdings {
		h = sanitizeHolding(h)
		h.Symbol = normalizeSymbol(h.Symbol)
		if h.Symbol == "" {
			continue
		}
		if h.Quantity < 0 {
			h.Quantity = 0
		}
		if i, ok := index[h.Symbol]; ok {
			out[i] = h
			continue
		}
		index[h.Symbol] = len(out)
		out = append(out, h)
	}
	return out
}

func sanitizeHolding(h Holding) Holding {
	h.Quantity = finiteOrZero(h.Quantity)
	h.AvgPrice = finiteOrZero(h.AvgPrice)
	h.CurrentPrice = finiteOrZero(h.CurrentPrice)
	h.Change = finiteOrZero(h.Change)
	h.PercentChange = finiteOrZero(h.PercentChange)
	return h
}

func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// PortfolioRegistry hands out the store of the current identity, loading it
// from the matching backend the first time it is requested.
type PortfolioRegistry struct {
	db      *Database
	storage *LocalStorage
	hub     *EventHub
	logger  *zap.Logger

	mu     sync.Mutex
	stores map[string]*PortfolioStore
}

func NewPortfolioRegistry(db *Database, storage *LocalStorage, hub *EventHub, logger *zap.Logger) *PortfolioRegistry {
	return &PortfolioRegistry{
		db:      db,
		storage: storage,
		hub:     hub,
		logger:  logger,
		stores:  make(map[string]*PortfolioStore),
	}
}

func (r *PortfolioRegistry) For(id Identity) (*PortfolioStore, error) {
	owner := id.Owner()

	r.mu.Lock()
	defer r.mu.Unlock()
	if store, ok := r.stores[owner]; ok {
		return store, nil
	}

	var backend PortfolioBackend
	if id.SignedIn() {
		backend = &documentBackend{db: r.db, uid: id.UserID}
	} else {
		backend = &localBackend{storage: r.storage, key: "portfolio:" + id.GuestID}
	}

	store := NewPortfolioStore(owner, backend, r.hub, r.logger)
	if err := store.Load(); err != nil {
		return nil, err
	}
	r.stores[owner] = store
	return store, nil
}

// MergeGuest moves the guest's holdings into the signed-in user's portfolio
// and empties the guest copy. Holdings that cannot be merged are skipped.
func (r *PortfolioRegistry) MergeGuest(guest, user Identity) (int, error) {
	if !user.SignedIn() || guest.GuestID == "" {
		return 0, nil
	}
	guestStore, err := r.For(Identity{GuestID: guest.GuestID})
	if err != nil {
		return 0, err
	}
	userStore, err := r.For(user)
	if err != nil {
		return 0, err
	}

	merged := 0
	for _, h := range guestStore.Holdings() {
		if err := userStore.Add(h); err != nil {
			r.logger.Warn("skipping guest holding", zap.String("symbol", h.Symbol), zap.Error(err))
			continue
		}
		merged++
	}
	guestStore.Replace(nil)
	return merged, nil
}

// Each calls fn for every loaded store.
func (r *PortfolioRegistry) Each(fn func(*PortfolioStore)) {
	r.mu.Lock()
	stores := make([]*PortfolioStore, 0, len(r.stores))
	for _, s := range r.stores {
		stores = append(stores, s)
	}
	r.mu.Unlock()

	for _, s := range stores {
		fn(s)
	}
}
