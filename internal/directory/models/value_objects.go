package models

type TenantStatus string

const (
	TenantStatusActive    TenantStatus = "active"
	TenantStatusInactive  TenantStatus = "inactive"
	TenantStatusSuspended TenantStatus = "suspended"
)

// IsValid reports whether s is a known status.
func (s TenantStatus) IsValid() bool {
	switch s {
	case TenantStatusActive, TenantStatusInactive, TenantStatusSuspended:
		return true
	}
	return false
}

type SubscriptionPlan string

const (
	PlanBasic    SubscriptionPlan = "basic"
	PlanStandard SubscriptionPlan = "standard"
	PlanPremium  SubscriptionPlan = "premium"
)

func (p SubscriptionPlan) IsValid() bool {
	switch p {
	case PlanBasic, PlanStandard, PlanPremium:
		return true
	}
	return false
}

// Default limits applied when a tenant is created without explicit quotas.
const (
	DefaultMaxStudents = 500
	DefaultMaxTeachers = 50
	DefaultMaxClasses  = 20
)

// Quotas caps how many active rows a school may hold in the capped tables.
type Quotas struct {
	MaxStudents int `json:"max_students"`
	MaxTeachers int `json:"max_teachers"`
	MaxClasses  int `json:"max_classes"`
}

// WithDefaults fills unset (zero or negative) limits with the defaults.
func (q Quotas) WithDefaults() Quotas {
	if q.MaxStudents <= 0 {
		q.MaxStudents = DefaultMaxStudents
	}
	if q.MaxTeachers <= 0 {
		q.MaxTeachers = DefaultMaxTeachers
	}
	if q.MaxClasses <= 0 {
		q.MaxClasses = DefaultMaxClasses
	}
	return q
}

// Limit returns the cap for a quota kind ("students", "teachers", "classes").
func (q Quotas) Limit(kind string) (int, bool) {
	switch kind {
	case "students":
		return q.MaxStudents, true
	case "teachers":
		return q.MaxTeachers, true
	case "classes":
		return q.MaxClasses, true
	}
	return 0, false
}
