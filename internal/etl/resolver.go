package etl

import (
	"slices"
	"strings"
)

// Property is one hotel and the evidence that ties a record to it.
type Property struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	UUID        string   `yaml:"uuid"`
	Locations   []string `yaml:"locations"`
	Staff       []string `yaml:"staff"`
	StaffPrefix string   `yaml:"staff_prefix"`
}

// Resolver assigns records to properties.
//
// Properties are tried in order and the first one with any evidence wins:
// its location set holds the location code, or a staff field matches one of
// its staff names or its staff prefix. A code listed under two properties thus
// belongs to the first, and so does a record whose location points at the
// second while its staff points at the first.
type Resolver struct {
	props    []Property
	fallback string
}

// NewResolver returns a resolver over props. fallback is the property id used
// when nothing matches; empty leaves such records unresolved.
func NewResolver(props []Property, fallback string) *Resolver {
	return &Resolver{props: props, fallback: fallback}
}

// Resolve returns the property id for a location code and the staff fields
// of a record.
func (r *Resolver) Resolve(location string, staff ...string) string {
	loc := strings.TrimSpace(location)
	for _, p := range r.props {
		if loc != "" && slices.Contains(p.Locations, loc) {
			return p.ID
		}
		if p.hasStaff(staff) {
			return p.ID
		}
	}
	return r.fallback
}

func (p Property) hasStaff(staff []string) bool {
	for _, s := range staff {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if slices.Contains(p.Staff, s) || (p.StaffPrefix != "" && strings.HasPrefix(s, p.StaffPrefix)) {
			return true
		}
	}
	return false
}

// ByUUID returns the id of the property with the given uuid, or "".
func (r *Resolver) ByUUID(uuid string) string {
	uuid = strings.TrimSpace(uuid)
	if uuid == "" {
		return ""
	}
	for _, p := range r.props {
		if p.UUID == uuid {
			return p.ID
		}
	}
	return ""
}
