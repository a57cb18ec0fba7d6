package cart

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/dansestudio/internal/obs"
	"github.com/noah-isme/dansestudio/internal/pricing"
)

// DefaultTTL is how long a cart item lives after it was added.
const DefaultTTL = 30 * time.Minute

const copySuffix = " (copy)"

// Catalog supplies the active pricing packages.
type Catalog interface {
	Packages(ctx context.Context) ([]pricing.Package, error)
}

// Config wires a cart Service.
type Config struct {
	Key     string
	Store   Store
	Catalog Catalog
	Engine  *pricing.Engine
	TTL     time.Duration
	Now     func() time.Time
	NewID   func() string
	Logger  zerolog.Logger
}

// Service owns one cart's ordered collection of student items. Every
// mutation is serialised and written back to the Store before it becomes
// visible.
type Service struct {
	mu      sync.Mutex
	key     string
	store   Store
	catalog Catalog
	engine  *pricing.Engine
	ttl     time.Duration
	now     func() time.Time
	newID   func() string
	logger  zerolog.Logger
	items   []Item
}

// Open loads the cart snapshot for cfg.Key, upgrading legacy records. A
// corrupt snapshot is discarded and the cart starts empty.
func Open(ctx context.Context, cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("cart: store not configured")
	}
	if cfg.Key == "" {
		return nil, fmt.Errorf("cart key required: %w", ErrInvalidInput)
	}
	s := &Service{
		key:     cfg.Key,
		store:   cfg.Store,
		catalog: cfg.Catalog,
		engine:  cfg.Engine,
		ttl:     cfg.TTL,
		now:     cfg.Now,
		newID:   cfg.NewID,
		logger:  cfg.Logger.With().Str("cart", cfg.Key).Logger(),
	}
	if s.ttl <= 0 {
		s.ttl = DefaultTTL
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	if s.engine == nil {
		s.engine = pricing.NewEngine(pricing.DefaultRates(), s.logger)
	}

	data, err := cfg.Store.Load(ctx, cfg.Key)
	if err != nil {
		if errors.Is(err, ErrSnapshotNotFound) {
			return s, nil
		}
		return nil, fmt.Errorf("load cart snapshot: %w", err)
	}
	items, migrated, err := decodeSnapshot(data)
	if err != nil {
		s.logger.Warn().Err(err).Msg("discarding corrupt cart snapshot")
		if delErr := cfg.Store.Delete(ctx, cfg.Key); delErr != nil {
			s.logger.Error().Err(delErr).Msg("delete corrupt cart snapshot")
		}
		return s, nil
	}
	s.items = items
	if migrated {
		s.logger.Info().Int("items", len(items)).Msg("upgraded legacy cart items")
		if err := s.persistLocked(ctx, items); err != nil {
			s.logger.Error().Err(err).Msg("persist upgraded cart")
		}
	}
	return s, nil
}

// Key returns the cart identifier.
func (s *Service) Key() string { return s.key }

// TTL returns the configured item time-to-live.
func (s *Service) TTL() time.Duration { return s.ttl }

// Items returns a copy of the cart's items in insertion order.
func (s *Service) Items() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Item, 0, len(s.items))
	for _, it := range s.items {
		out = append(out, it.clone())
	}
	return out
}

// Len returns the number of items in the cart.
func (s *Service) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Add validates the draft, resolves family eligibility against the current
// cart size and appends a new item.
func (s *Service) Add(ctx context.Context, d Draft) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d = d.normalized()
	if msgs := draftMessages(d); len(msgs) > 0 {
		s.record("add", "invalid")
		return Item{}, &ValidationError{Messages: msgs}
	}
	if s.hasNameLocked(d.FirstName, d.LastName, "") {
		s.record("add", "duplicate")
		return Item{}, fmt.Errorf("%s %s: %w", d.FirstName, d.LastName, ErrDuplicateName)
	}

	override := pricing.FromPtr(d.Override)
	item := Item{
		ID:           s.newID(),
		FirstName:    d.FirstName,
		LastName:     d.LastName,
		Age:          d.Age,
		Courses:      append([]pricing.Course(nil), d.Courses...),
		Schedules:    append([]ScheduleRef(nil), d.Schedules...),
		SecondDancer: pricing.ResolveEligibility(pricing.FromPtr(d.SecondDancer), override, len(s.items)),
		Override:     override,
		CreatedAt:    s.now(),
	}
	next := append(s.snapshotLocked(), item)
	if err := s.commitLocked(ctx, next); err != nil {
		s.record("add", "error")
		return Item{}, err
	}
	s.record("add", "ok")
	return item.clone(), nil
}

// Remove deletes the item with the given id.
func (s *Service) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(id)
	if idx < 0 {
		return ErrNotFound
	}
	next := s.snapshotLocked()
	next = append(next[:idx], next[idx+1:]...)
	if err := s.commitLocked(ctx, next); err != nil {
		s.record("remove", "error")
		return err
	}
	s.record("remove", "ok")
	return nil
}

// Update replaces the student details and selections of an existing item.
// Identity, creation time and family eligibility are preserved.
func (s *Service) Update(ctx context.Context, id string, d Draft) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(id)
	if idx < 0 {
		return Item{}, ErrNotFound
	}
	d = d.normalized()
	if msgs := draftMessages(d); len(msgs) > 0 {
		s.record("update", "invalid")
		return Item{}, &ValidationError{Messages: msgs}
	}
	if s.hasNameLocked(d.FirstName, d.LastName, id) {
		s.record("update", "duplicate")
		return Item{}, fmt.Errorf("%s %s: %w", d.FirstName, d.LastName, ErrDuplicateName)
	}
	next := s.snapshotLocked()
	updated := next[idx]
	updated.FirstName = d.FirstName
	updated.LastName = d.LastName
	updated.Age = d.Age
	updated.Courses = append([]pricing.Course(nil), d.Courses...)
	updated.Schedules = append([]ScheduleRef(nil), d.Schedules...)
	next[idx] = updated
	if err := s.commitLocked(ctx, next); err != nil {
		s.record("update", "error")
		return Item{}, err
	}
	s.record("update", "ok")
	return updated.clone(), nil
}

// Duplicate clones an item as an additional family member: the last name
// gains a copy marker and the clone is always family-eligible.
func (s *Service) Duplicate(ctx context.Context, id string) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(id)
	if idx < 0 {
		return Item{}, ErrNotFound
	}
	clone := s.items[idx].clone()
	clone.ID = s.newID()
	clone.LastName = clone.LastName + copySuffix
	for s.hasNameLocked(clone.FirstName, clone.LastName, "") {
		clone.LastName = clone.LastName + copySuffix
	}
	clone.SecondDancer = true
	clone.Override = pricing.Unset()
	clone.CreatedAt = s.now()

	next := append(s.snapshotLocked(), clone)
	if err := s.commitLocked(ctx, next); err != nil {
		s.record("duplicate", "error")
		return Item{}, err
	}
	s.record("duplicate", "ok")
	return clone.clone(), nil
}

// ToggleFamilyDiscount flips an item's family eligibility and pins the new
// value as a manual override.
func (s *Service) ToggleFamilyDiscount(ctx context.Context, id string) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(id)
	if idx < 0 {
		return Item{}, ErrNotFound
	}
	next := s.snapshotLocked()
	toggled := next[idx]
	value := !toggled.FamilyEligible()
	toggled.SecondDancer = value
	toggled.Override = pricing.Forced(value)
	next[idx] = toggled
	if err := s.commitLocked(ctx, next); err != nil {
		s.record("toggle", "error")
		return Item{}, err
	}
	s.record("toggle", "ok")
	return toggled.clone(), nil
}

// Clear removes every item and deletes the persisted snapshot.
func (s *Service) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.commitLocked(ctx, nil); err != nil {
		s.record("clear", "error")
		return err
	}
	s.record("clear", "ok")
	return nil
}

// RemoveItems drops the items with the given ids and keeps everything else,
// including items written to the store by another holder since Open. It
// returns how many items were removed.
func (s *Service) RemoveItems(ctx context.Context, ids []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.items
	data, err := s.store.Load(ctx, s.key)
	switch {
	case errors.Is(err, ErrSnapshotNotFound):
		current = nil
	case err != nil:
		s.record("remove_items", "error")
		return 0, fmt.Errorf("load cart snapshot: %w", err)
	default:
		if stored, _, decErr := decodeSnapshot(data); decErr == nil {
			current = stored
		} else {
			s.logger.Warn().Err(decErr).Msg("stored cart snapshot unreadable, using loaded items")
		}
	}

	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	next := make([]Item, 0, len(current))
	for _, it := range current {
		if _, ok := drop[it.ID]; ok {
			continue
		}
		next = append(next, it)
	}
	removed := len(current) - len(next)
	if err := s.commitLocked(ctx, next); err != nil {
		s.record("remove_items", "error")
		return 0, err
	}
	s.record("remove_items", "ok")
	return removed, nil
}

// Refresh removes items whose time-to-live has elapsed and returns how many were removed.
func (s *Service) Refresh(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	next := make([]Item, 0, len(s.items))
	for _, it := range s.items {
		if s.expiredAt(it, now) {
			continue
		}
		next = append(next, it)
	}
	removed := len(s.items) - len(next)
	if removed == 0 {
		return 0, nil
	}
	if err := s.commitLocked(ctx, next); err != nil {
		return 0, err
	}
	obs.AddCounter(obs.CartItemsExpiredTotal, removed)
	s.logger.Info().Int("removed", removed).Msg("expired cart items removed")
	return removed, nil
}

// Expired reports whether any item in the cart is past its time-to-live.
func (s *Service) Expired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for _, it := range s.items {
		if s.expiredAt(it, now) {
			return true
		}
	}
	return false
}

// Validate runs the pre-checkout gate without mutating the cart.
func (s *Service) Validate() ValidationResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := validateItems(s.items)
	if len(s.items) == 0 {
		result.Valid = false
		result.Errors = append(result.Errors, "Handlekurven er tom")
	}
	return result
}

func (s *Service) expiredAt(it Item, now time.Time) bool {
	return now.After(it.ExpiresAt(s.ttl))
}

func (s *Service) indexLocked(id string) int {
	for i, it := range s.items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

func (s *Service) hasNameLocked(first, last, exceptID string) bool {
	key := nameKey(first, last)
	for _, it := range s.items {
		if it.ID == exceptID {
			continue
		}
		if nameKey(it.FirstName, it.LastName) == key {
			return true
		}
	}
	return false
}

func (s *Service) snapshotLocked() []Item {
	return append(make([]Item, 0, len(s.items)+1), s.items...)
}

// commitLocked persists next and only then swaps it in.
func (s *Service) commitLocked(ctx context.Context, next []Item) error {
	if err := s.persistLocked(ctx, next); err != nil {
		return err
	}
	s.items = next
	return nil
}

func (s *Service) persistLocked(ctx context.Context, items []Item) error {
	if len(items) == 0 {
		if err := s.store.Delete(ctx, s.key); err != nil {
			return fmt.Errorf("delete cart snapshot: %w", err)
		}
		return nil
	}
	data, err := encodeSnapshot(items)
	if err != nil {
		return fmt.Errorf("encode cart snapshot: %w", err)
	}
	if err := s.store.Save(ctx, s.key, data); err != nil {
		return fmt.Errorf("save cart snapshot: %w", err)
	}
	return nil
}

func (s *Service) record(op, result string) {
	obs.IncCounterVec(obs.CartMutationsTotal, op, result)
}
