package etl

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// curatedTables are the tables created by schema.sql.
var curatedTables = []string{
	"properties",
	"staff",
	"payroll",
	"cleaning_orders",
	"service_requests",
	"property_locations",
	"property_staff",
	"locations",
}

// ErrInvalidMapping wraps every mapping validation failure.
var ErrInvalidMapping = errors.New("invalid mapping")

// Mapping declares how the CSV exports land in the curated schema.
type Mapping struct {
	Properties       []Property `yaml:"properties"`
	FallbackProperty string     `yaml:"fallback_property"`
	Sources          []Source   `yaml:"sources"`
}

// Source copies columns of one CSV file into one table. A file may feed
// several tables.
type Source struct {
	File     string        `yaml:"file"`
	Table    string        `yaml:"table"`
	Columns  []ColumnMap   `yaml:"columns"`
	Distinct bool          `yaml:"distinct"` // INSERT OR IGNORE
	Property *PropertyRule `yaml:"property,omitempty"`
}

// ColumnMap fills Column from the cleaned CSV header From.
type ColumnMap struct {
	Column string `yaml:"column"`
	From   string `yaml:"from"`
}

// PropertyRule resolves a property id into Column. The UUID columns are tried
// first, then the location and staff columns go through the Resolver. Listed
// columns missing from the file are ignored.
type PropertyRule struct {
	Column   string   `yaml:"column"`
	UUID     []string `yaml:"uuid"`
	Location []string `yaml:"location"`
	Staff    []string `yaml:"staff"`
}

// Resolver builds the property resolver the mapping describes.
func (m *Mapping) Resolver() *Resolver {
	return NewResolver(m.Properties, m.FallbackProperty)
}

// Files lists the distinct source files in first-use order.
func (m *Mapping) Files() []string {
	var files []string
	for _, s := range m.Sources {
		if !slices.Contains(files, s.File) {
			files = append(files, s.File)
		}
	}
	return files
}

// Validate checks that the mapping only writes known tables and columns are named.
func (m *Mapping) Validate() error {
	ids := make(map[string]bool, len(m.Properties))
	for _, p := range m.Properties {
		if p.ID == "" {
			return fmt.Errorf("%w: property %q has no id", ErrInvalidMapping, p.Name)
		}
		if ids[p.ID] {
			return fmt.Errorf("%w: duplicate property id %q", ErrInvalidMapping, p.ID)
		}
		ids[p.ID] = true
	}
	if m.FallbackProperty != "" && !ids[m.FallbackProperty] {
		return fmt.Errorf("%w: fallback property %q is not defined", ErrInvalidMapping, m.FallbackProperty)
	}

	for i, s := range m.Sources {
		if s.File == "" {
			return fmt.Errorf("%w: source %d has no file", ErrInvalidMapping, i)
		}
		if !slices.Contains(curatedTables, s.Table) {
			return fmt.Errorf("%w: %s: unknown table %q", ErrInvalidMapping, s.File, s.Table)
		}
		if len(s.Columns) == 0 {
			return fmt.Errorf("%w: %s -> %s: no columns", ErrInvalidMapping, s.File, s.Table)
		}
		for _, c := range s.Columns {
			if c.Column == "" || c.From == "" {
				return fmt.Errorf("%w: %s -> %s: column and from are required", ErrInvalidMapping, s.File, s.Table)
			}
		}
		if s.Property != nil && s.Property.Column == "" {
			return fmt.Errorf("%w: %s -> %s: property rule has no column", ErrInvalidMapping, s.File, s.Table)
		}
	}
	return nil
}

// LoadMapping reads a YAML mapping file. An empty path returns DefaultMapping.
func LoadMapping(path string) (*Mapping, error) {
	if path == "" {
		return DefaultMapping(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mapping: %w", err)
	}
	return ParseMapping(data)
}

// ParseMapping decodes and validates a YAML mapping.
func ParseMapping(data []byte) (*Mapping, error) {
	var m Mapping
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse mapping: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// DefaultMapping describes the exports of the two-property deployment.
func DefaultMapping() *Mapping {
	return &Mapping{
		Properties: []Property{
			{
				ID:   "P1",
				Name: "Property 1",
				UUID: "2e76cf52-1334-4f22-9653-60b003b227b2",
				Locations: []string{
					"2001", "2002", "2105", "2102", "2108", "2207", "2210", "2211", "2213",
					"2218", "2502", "2503", "6811", "6847", "6863", "6895",
				},
				Staff:       []string{"HN RS1", "HN RS2", "HN RS3"},
				StaffPrefix: "HN",
			},
			{
				ID:   "P2",
				Name: "Property 2",
				UUID: "4498c15d-50c5-4cf5-879a-dd5d674e7228",
				Locations: []string{
					"2207", "2301", "2302", "2303", "2305", "2306", "2307", "2308", "2310",
					"2311", "2313", "2315", "2316", "2318", "2319", "2320", "2321", "2322",
					"2323", "2324", "88888888",
				},
				Staff:       []string{"CN RS1", "CN RS2", "CN RS3"},
				StaffPrefix: "CN",
			},
		},
		Sources: []Source{
			{
				File:     "payroll.csv",
				Table:    "staff",
				Distinct: true,
				Columns: []ColumnMap{
					{"stf_id", "uuid"},
					{"stf_name", "employee_name"},
					{"nationality", "nationality"},
					{"job_title", "job_title"},
					{"employment_type", "employment_type"},
				},
				Property: &PropertyRule{
					Column: "prop_id",
					UUID:   []string{"property_uuid"},
					Staff:  []string{"employee_name"},
				},
			},
			{
				File:  "payroll.csv",
				Table: "payroll",
				Columns: []ColumnMap{
					{"stf_id", "uuid"},
					{"pay_period_start", "payroll_period_start"},
					{"pay_period_end", "payroll_period_end"},
					{"pay_frequency", "pay_frequency"},
					{"gross_pay", "gross_pay_sgd"},
					{"net_pay", "net_pay_sgd"},
					{"cpf_contribution", "cpf_contribution_sgd"},
					{"bonuses", "performance_bonus_sgd"},
				},
			},
			{
				File:  "cleaning-orders.csv",
				Table: "cleaning_orders",
				Columns: []ColumnMap{
					{"stf_id", "staff_uuid"},
					{"cleaning_service_type", "cleaning_service_type"},
					{"location_uuid", "location_uuid"},
					{"location_name", "location_name"},
					{"start_time", "start_time"},
					{"complete_time", "complete_time"},
					{"duration", "cleaning_duration"},
					{"inspector_name", "inspector"},
					{"inspection_result", "pass_fail"},
				},
				Property: &PropertyRule{
					Column:   "prop_id",
					UUID:     []string{"property_uuid", "property"},
					Location: []string{"location_name"},
					Staff:    []string{"inspector"},
				},
			},
			{
				File:     "service-requests.csv",
				Table:    "service_requests",
				Distinct: true,
				Columns: []ColumnMap{
					{"sr_id", "job_order"},
					{"guest_name", "guest_name"},
					{"location", "location"},
					{"service_category", "service_item_category"},
					{"service_item", "service_item"},
					{"quantity", "quantity"},
					{"remarks", "remarks"},
					{"status", "job_status"},
					{"created_time", "date_time_created"},
					{"deadline_time", "date_time_deadline"},
					{"completed_time", "date_time_completed"},
					{"assigned_stf_id", "assigned_to_user"},
				},
				Property: &PropertyRule{
					Column:   "prop_id",
					Location: []string{"location", "room_number"},
					Staff:    []string{"created_by_user", "assigned_to_user", "acknowledged_by_user", "completed_by_user"},
				},
			},
		},
	}
}
