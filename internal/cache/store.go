// Package cache holds the three-slot CacheStore of latest search results and
// the key/value backends it is persisted to.
package cache

import (
	"encoding/json"
	"fmt"

	"github.com/smileynet/countrylookup/internal/country"
)

// TermSlot is the latest free-text search and its result.
type TermSlot struct {
	Term      string            `json:"term"`
	Countries []country.Country `json:"countries"`
}

// RegionSlot is the latest region search and its result.
type RegionSlot struct {
	Region    country.Region    `json:"region"`
	Countries []country.Country `json:"countries"`
}

// CacheStore holds exactly one slot per search kind.
// It is persisted and restored as a single blob.
type CacheStore struct {
	ByCapital   TermSlot   `json:"byCapital"`
	ByCountries TermSlot   `json:"byCountries"`
	ByRegion    RegionSlot `json:"byRegion"`
}

// NewStore returns a CacheStore with every slot empty.
func NewStore() CacheStore {
	return CacheStore{
		ByCapital:   TermSlot{Countries: []country.Country{}},
		ByCountries: TermSlot{Countries: []country.Country{}},
		ByRegion:    RegionSlot{Countries: []country.Country{}},
	}
}

// Clone returns a copy that shares no slices with s.
func (s CacheStore) Clone() CacheStore {
	return CacheStore{
		ByCapital:   TermSlot{Term: s.ByCapital.Term, Countries: cloneCountries(s.ByCapital.Countries)},
		ByCountries: TermSlot{Term: s.ByCountries.Term, Countries: cloneCountries(s.ByCountries.Countries)},
		ByRegion:    RegionSlot{Region: s.ByRegion.Region, Countries: cloneCountries(s.ByRegion.Countries)},
	}
}

// Encode serializes the store to its persisted JSON form.
func Encode(s CacheStore) ([]byte, error) {
	data, err := json.Marshal(s.normalized())
	if err != nil {
		return nil, fmt.Errorf("cache: encoding store: %w", err)
	}
	return data, nil
}

// Decode restores a store from its persisted form. The blob is taken as-is;
// only nil country lists are normalized to empty ones.
func Decode(data []byte) (CacheStore, error) {
	var s CacheStore
	if err := json.Unmarshal(data, &s); err != nil {
		return CacheStore{}, fmt.Errorf("cache: decoding store: %w", err)
	}
	return s.normalized(), nil
}

func (s CacheStore) normalized() CacheStore {
	if s.ByCapital.Countries == nil {
		s.ByCapital.Countries = []country.Country{}
	}
	if s.ByCountries.Countries == nil {
		s.ByCountries.Countries = []country.Country{}
	}
	if s.ByRegion.Countries == nil {
		s.ByRegion.Countries = []country.Country{}
	}
	return s
}

func cloneCountries(in []country.Country) []country.Country {
	out := make([]country.Country, len(in))
	for i, c := range in {
		out[i] = c.Clone()
	}
	return out
}
