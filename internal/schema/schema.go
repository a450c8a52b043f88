// Package schema is the registry of tables reachable through the access gateway.
//
// Each entry records whether the table is tenant-scoped, whether it supports
// soft delete, which tenant quota (if any) a Create counts against, and the
// foreign keys the consistency auditor checks.
package schema

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"
)

// Well-known column names shared by every tenant-scoped table.
const (
	ColumnID       = "id"
	ColumnTenantID = "tenant_id"
	ColumnIsActive = "is_active"
)

//go:embed default_schema.yaml
var defaultSchema []byte

// QuotaKind names the tenant limit a table's rows count against.
type QuotaKind string

const (
	QuotaNone     QuotaKind = ""
	QuotaStudents QuotaKind = "students"
	QuotaTeachers QuotaKind = "teachers"
	QuotaClasses  QuotaKind = "classes"
)

func (q QuotaKind) IsValid() bool {
	switch q {
	case QuotaNone, QuotaStudents, QuotaTeachers, QuotaClasses:
		return true
	}
	return false
}

// Reference is a foreign key from Column to the id of Table.
type Reference struct {
	Column string `yaml:"column"`
	Table  string `yaml:"table"`
}

// Table describes one registered table.
type Table struct {
	Name         string      `yaml:"-"`
	TenantScoped bool        `yaml:"tenant_scoped"`
	SoftDelete   bool        `yaml:"soft_delete"`
	Quota        QuotaKind   `yaml:"quota"`
	References   []Reference `yaml:"references"`
}

type document struct {
	Tables map[string]*Table `yaml:"tables"`
}

// Registry is an immutable, validated set of tables.
type Registry struct {
	tables map[string]*Table
	names  []string
}

var identifier = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// Default returns the embedded school schema.
func Default() *Registry {
	reg, err := Parse(defaultSchema)
	if err != nil {
		panic(fmt.Sprintf("embedded schema is invalid: %v", err))
	}
	return reg
}

// Load reads a registry from path, or returns Default when path is empty.
func Load(path string) (*Registry, error) {
	if path == "" {
		return Default(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema file: %w", err)
	}
	return Parse(raw)
}

// Parse decodes and validates a YAML registry document.
func Parse(raw []byte) (*Registry, error) {
	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	if len(doc.Tables) == 0 {
		return nil, fmt.Errorf("schema declares no tables")
	}

	reg := &Registry{tables: make(map[string]*Table, len(doc.Tables))}
	for name, t := range doc.Tables {
		if t == nil {
			t = &Table{}
		}
		t.Name = name
		reg.tables[name] = t
		reg.names = append(reg.names, name)
	}
	sort.Strings(reg.names)

	if err := reg.validate(); err != nil {
		return nil, err
	}
	return reg, nil
}

func (r *Registry) validate() error {
	for _, name := range r.names {
		t := r.tables[name]
		if !identifier.MatchString(name) {
			return fmt.Errorf("table %q: invalid identifier", name)
		}
		if !t.Quota.IsValid() {
			return fmt.Errorf("table %q: unknown quota %q", name, t.Quota)
		}
		if t.Quota != QuotaNone && !t.TenantScoped {
			return fmt.Errorf("table %q: quota requires tenant_scoped", name)
		}
		for _, ref := range t.References {
			if !identifier.MatchString(ref.Column) {
				return fmt.Errorf("table %q: invalid reference column %q", name, ref.Column)
			}
			target, ok := r.tables[ref.Table]
			if !ok {
				return fmt.Errorf("table %q: reference %s points at unknown table %q", name, ref.Column, ref.Table)
			}
			if t.TenantScoped && !target.TenantScoped {
				return fmt.Errorf("table %q: reference %s points at non tenant-scoped table %q", name, ref.Column, ref.Table)
			}
		}
	}
	return nil
}

// Table returns the named table.
func (r *Registry) Table(name string) (*Table, bool) {
	t, ok := r.tables[name]
	return t, ok
}

// Names returns every registered table name in sorted order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// TenantScoped returns the tenant-scoped tables in sorted order.
func (r *Registry) TenantScoped() []*Table {
	var out []*Table
	for _, name := range r.names {
		if t := r.tables[name]; t.TenantScoped {
			out = append(out, t)
		}
	}
	return out
}

// QuotaTable returns the table whose rows count against kind.
func (r *Registry) QuotaTable(kind QuotaKind) (*Table, bool) {
	for _, name := range r.names {
		if t := r.tables[name]; t.Quota == kind && kind != QuotaNone {
			return t, true
		}
	}
	return nil, false
}

// IsValidIdentifier reports whether s is safe to use as a table or column name.
func IsValidIdentifier(s string) bool {
	return identifier.MatchString(s)
}
