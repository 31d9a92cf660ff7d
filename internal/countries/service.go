// Package countries implements the cache-backed country search service.
//
// Each search kind (capital, name, region) owns one slot of a CacheStore.
// A completed search replaces its slot and the whole store is written back
// to storage, so a later process can restore the last results without
// querying the API again.
package countries

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/smileynet/countrylookup/internal/cache"
	"github.com/smileynet/countrylookup/internal/country"
	"github.com/smileynet/countrylookup/internal/lookup"
)

// Lookup is the subset of *lookup.Client the service depends on.
type Lookup interface {
	Fetch(ctx context.Context, url string) lookup.Result
	First(ctx context.Context, url string) (country.Country, bool, error)
	CapitalURL(term string) string
	NameURL(term string) string
	RegionURL(r country.Region) string
	AlphaURL(code string) string
}

var _ Lookup = (*lookup.Client)(nil)

// FailurePolicy decides what a failed lookup does to its cache slot.
type FailurePolicy int

const (
	// CollapseFailures caches a failed lookup as an empty result, exactly
	// like a search that matched nothing.
	CollapseFailures FailurePolicy = iota
	// KeepOnFailure leaves the slot and the persisted store untouched when a
	// lookup fails. The caller still receives an empty result.
	KeepOnFailure
)

func (p FailurePolicy) String() string {
	switch p {
	case CollapseFailures:
		return "collapse"
	case KeepOnFailure:
		return "keep"
	default:
		return fmt.Sprintf("FailurePolicy(%d)", int(p))
	}
}

// ParseFailurePolicy maps "collapse" or "keep" to a FailurePolicy.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch s {
	case "", "collapse":
		return CollapseFailures, nil
	case "keep":
		return KeepOnFailure, nil
	default:
		return 0, fmt.Errorf("countries: unknown failure policy %q (want \"collapse\" or \"keep\")", s)
	}
}

type kind int

const (
	kindCapital kind = iota
	kindCountries
	kindRegion
	numKinds
)

func (k kind) String() string {
	return [...]string{"capital", "name", "region"}[k]
}

// Service runs searches and keeps the CacheStore in step with the latest
// search of each kind. It is safe for concurrent use.
type Service struct {
	lookup  Lookup
	storage cache.Storage
	key     string
	policy  FailurePolicy
	log     zerolog.Logger

	mu    sync.Mutex
	store cache.CacheStore
	// issued counts searches started per kind; applied is the ticket of the
	// search whose result currently occupies the slot.
	issued  [numKinds]uint64
	applied [numKinds]uint64
}

// Option configures a Service.
type Option func(*Service)

// WithKey sets the storage key the store is persisted under.
func WithKey(key string) Option {
	return func(s *Service) { s.key = key }
}

// WithFailurePolicy sets how failed lookups affect the cache.
func WithFailurePolicy(p FailurePolicy) Option {
	return func(s *Service) { s.policy = p }
}

// WithLogger sets the diagnostic logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.log = l }
}

// New creates a Service and restores any store previously saved in storage.
// A missing, unreadable, or corrupt blob leaves the store empty.
func New(l Lookup, storage cache.Storage, opts ...Option) *Service {
	s := &Service{
		lookup:  l,
		storage: storage,
		key:     cache.DefaultKey,
		policy:  CollapseFailures,
		log:     zerolog.Nop(),
		store:   cache.NewStore(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.hydrate()
	return s
}

func (s *Service) hydrate() {
	data, found, err := s.storage.Load(s.key)
	if err != nil {
		s.log.Warn().Err(err).Str("key", s.key).Msg("cache store unreadable, starting empty")
		return
	}
	if !found {
		return
	}
	store, err := cache.Decode(data)
	if err != nil {
		s.log.Warn().Err(err).Str("key", s.key).Msg("cache store corrupt, starting empty")
		return
	}
	s.store = store
}

// Store returns a snapshot of the current CacheStore.
func (s *Service) Store() cache.CacheStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Clone()
}

// SearchCapital searches countries by capital and caches the result under term.
func (s *Service) SearchCapital(ctx context.Context, term string) []country.Country {
	return s.search(ctx, kindCapital, s.lookup.CapitalURL(term), func(st *cache.CacheStore, cs []country.Country) {
		st.ByCapital = cache.TermSlot{Term: term, Countries: cs}
	})
}

// SearchCountry searches countries by partial name and caches the result under term.
func (s *Service) SearchCountry(ctx context.Context, term string) []country.Country {
	return s.search(ctx, kindCountries, s.lookup.NameURL(term), func(st *cache.CacheStore, cs []country.Country) {
		st.ByCountries = cache.TermSlot{Term: term, Countries: cs}
	})
}

// SearchRegion lists the countries of region and caches the result under it.
func (s *Service) SearchRegion(ctx context.Context, region country.Region) []country.Country {
	return s.search(ctx, kindRegion, s.lookup.RegionURL(region), func(st *cache.CacheStore, cs []country.Country) {
		st.ByRegion = cache.RegionSlot{Region: region, Countries: cs}
	})
}

// SearchCountryByAlphaCode returns the first country matching code.
// The cache is not consulted or updated.
func (s *Service) SearchCountryByAlphaCode(ctx context.Context, code string) (country.Country, bool) {
	c, ok, err := s.lookup.First(ctx, s.lookup.AlphaURL(code))
	if err != nil {
		s.log.Debug().Err(err).Str("code", code).Msg("alpha lookup failed")
	}
	return c, ok
}

func (s *Service) search(ctx context.Context, k kind, url string, apply func(*cache.CacheStore, []country.Country)) []country.Country {
	s.mu.Lock()
	s.issued[k]++
	ticket := s.issued[k]
	s.mu.Unlock()

	res := s.lookup.Fetch(ctx, url)
	if ctx.Err() != nil {
		s.log.Debug().Err(ctx.Err()).Str("kind", k.String()).Msg("search cancelled, cache untouched")
		return []country.Country{}
	}
	if res.Failed() {
		s.log.Warn().Err(res.Err).Str("kind", k.String()).Msg("lookup failed, returning empty result")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if res.Failed() && s.policy == KeepOnFailure {
		return res.Countries
	}
	// A search issued later has already written this slot.
	if ticket <= s.applied[k] {
		s.log.Debug().Str("kind", k.String()).Uint64("ticket", ticket).Msg("stale result not cached")
		return res.Countries
	}
	s.applied[k] = ticket

	apply(&s.store, append([]country.Country{}, res.Countries...))
	s.persistLocked()
	return res.Countries
}

// persistLocked writes the whole store. Failures are logged; the in-memory
// store stays updated. Callers must hold s.mu.
func (s *Service) persistLocked() {
	data, err := cache.Encode(s.store)
	if err != nil {
		s.log.Error().Err(err).Msg("encoding cache store")
		return
	}
	if err := s.storage.Save(s.key, data); err != nil {
		s.log.Error().Err(err).Str("key", s.key).Msg("persisting cache store")
	}
}
