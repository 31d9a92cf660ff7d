// Package country defines the country records returned by the lookup API
// and the closed set of regions that can be searched.
package country

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Country is one nation as returned by the REST API.
// Fields are passed through as received; nothing here is validated.
// Members without a typed field are kept in Extra and written back on
// marshal, so a record survives a decode/encode round trip intact.
type Country struct {
	Name       Name     `json:"name"`
	CCA2       string   `json:"cca2,omitempty"`
	CCA3       string   `json:"cca3,omitempty"`
	Capital    []string `json:"capital,omitempty"`
	Region     string   `json:"region,omitempty"`
	Subregion  string   `json:"subregion,omitempty"`
	Population int64    `json:"population,omitempty"`
	Flag       string   `json:"flag,omitempty"`
	Flags      Flags    `json:"flags"`

	Extra map[string]json.RawMessage `json:"-"`
}

var countryFields = []string{"name", "cca2", "cca3", "capital", "region", "subregion", "population", "flag", "flags"}

// UnmarshalJSON decodes the typed fields and keeps every other member in Extra.
func (c *Country) UnmarshalJSON(data []byte) error {
	type plain Country
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	extra, err := extraFields(data, countryFields)
	if err != nil {
		return err
	}
	p.Extra = extra
	*c = Country(p)
	return nil
}

// MarshalJSON encodes the typed fields merged with Extra.
func (c Country) MarshalJSON() ([]byte, error) {
	type plain Country
	return withExtra(plain(c), c.Extra)
}

// Clone returns a copy that shares no slices or maps with c.
func (c Country) Clone() Country {
	if c.Capital != nil {
		c.Capital = append([]string(nil), c.Capital...)
	}
	c.Name.Extra = cloneExtra(c.Name.Extra)
	c.Extra = cloneExtra(c.Extra)
	return c
}

// Name holds the common and official country names.
// Other members, such as nativeName, are kept in Extra.
type Name struct {
	Common   string `json:"common"`
	Official string `json:"official,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// UnmarshalJSON decodes the typed fields and keeps every other member in Extra.
func (n *Name) UnmarshalJSON(data []byte) error {
	type plain Name
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	extra, err := extraFields(data, []string{"common", "official"})
	if err != nil {
		return err
	}
	p.Extra = extra
	*n = Name(p)
	return nil
}

// MarshalJSON encodes the typed fields merged with Extra.
func (n Name) MarshalJSON() ([]byte, error) {
	type plain Name
	return withExtra(plain(n), n.Extra)
}

// Flags holds flag image URLs.
type Flags struct {
	PNG string `json:"png,omitempty"`
	SVG string `json:"svg,omitempty"`
	Alt string `json:"alt,omitempty"`
}

// extraFields returns the members of the JSON object data whose keys are
// not in known, or nil if there are none.
func extraFields(data []byte, known []string) (map[string]json.RawMessage, error) {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	for _, k := range known {
		delete(all, k)
	}
	if len(all) == 0 {
		return nil, nil
	}
	return all, nil
}

// withExtra marshals v and adds the members of extra that v does not set.
func withExtra(v any, extra map[string]json.RawMessage) ([]byte, error) {
	typed, err := json.Marshal(v)
	if err != nil || len(extra) == 0 {
		return typed, err
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(typed, &merged); err != nil {
		return nil, err
	}
	for k, raw := range extra {
		if _, set := merged[k]; !set {
			merged[k] = raw
		}
	}
	return json.Marshal(merged)
}

func cloneExtra(in map[string]json.RawMessage) map[string]json.RawMessage {
	if in == nil {
		return nil
	}
	out := make(map[string]json.RawMessage, len(in))
	for k, raw := range in {
		out[k] = append(json.RawMessage(nil), raw...)
	}
	return out
}

// CapitalList returns the capitals joined for display, or "-" if none.
func (c Country) CapitalList() string {
	if len(c.Capital) == 0 {
		return "-"
	}
	return strings.Join(c.Capital, ", ")
}

// Region is one of the five continental groupings the API searches by.
type Region string

const (
	Africa   Region = "Africa"
	Americas Region = "Americas"
	Asia     Region = "Asia"
	Europe   Region = "Europe"
	Oceania  Region = "Oceania"
)

// ErrInvalidRegion indicates a string outside the closed region set.
var ErrInvalidRegion = errors.New("country: invalid region")

// Regions returns the searchable regions in display order.
func Regions() []Region {
	return []Region{Africa, Americas, Asia, Europe, Oceania}
}

// ParseRegion maps s onto a Region, ignoring case.
func ParseRegion(s string) (Region, error) {
	s = strings.TrimSpace(s)
	for _, r := range Regions() {
		if strings.EqualFold(s, string(r)) {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w: %q (want one of %s)", ErrInvalidRegion, s, regionNames())
}

// Valid reports whether r is a member of the closed region set.
func (r Region) Valid() bool {
	for _, known := range Regions() {
		if r == known {
			return true
		}
	}
	return false
}

func regionNames() string {
	names := make([]string, 0, len(Regions()))
	for _, r := range Regions() {
		names = append(names, string(r))
	}
	return strings.Join(names, ", ")
}
