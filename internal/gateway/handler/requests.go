package handler

import (
	"strings"

	"tenantguard/internal/gateway"
	"tenantguard/internal/ownership"
	"tenantguard/internal/storage"
)

type ConditionRequest struct {
	Column string `json:"column" validate:"required,max=63"`
	Op     string `json:"op" validate:"required,oneof=eq neq gt gte lt lte in is_null"`
	Value  any    `json:"value,omitempty"`
}

type OrderRequest struct {
	Column     string `json:"column" validate:"required,max=63"`
	Descending bool   `json:"descending,omitempty"`
}

type ExecuteRequest struct {
	Table        string             `json:"table" validate:"required,max=63"`
	Operation    string             `json:"operation" validate:"required,oneof=read create update delete"`
	Filter       []ConditionRequest `json:"filter,omitempty" validate:"max=32,dive"`
	Payload      map[string]any     `json:"payload,omitempty" validate:"max=64"`
	DeletePolicy string             `json:"delete_policy,omitempty" validate:"omitempty,oneof=soft hard"`
	Limit        int                `json:"limit,omitempty" validate:"gte=0,lte=1000"`
	Offset       int                `json:"offset,omitempty" validate:"gte=0"`
	OrderBy      []OrderRequest     `json:"order_by,omitempty" validate:"max=4,dive"`
}

func (r *ExecuteRequest) Normalize() {
	r.Table = strings.TrimSpace(r.Table)
	r.Operation = strings.ToLower(strings.TrimSpace(r.Operation))
	r.DeletePolicy = strings.ToLower(strings.TrimSpace(r.DeletePolicy))
}

func (r *ExecuteRequest) ToRequest(token string) gateway.Request {
	req := gateway.Request{
		SessionToken: token,
		Table:        r.Table,
		Operation:    ownership.Operation(r.Operation),
		Payload:      storage.Row(r.Payload),
		DeletePolicy: gateway.DeletePolicy(r.DeletePolicy),
		Limit:        r.Limit,
		Offset:       r.Offset,
	}
	for _, c := range r.Filter {
		req.Filter = append(req.Filter, storage.Condition{Column: c.Column, Op: storage.Op(c.Op), Value: c.Value})
	}
	for _, o := range r.OrderBy {
		req.OrderBy = append(req.OrderBy, storage.Order{Column: o.Column, Descending: o.Descending})
	}
	return req
}

type DependentsRequest struct {
	Table      string           `json:"table" validate:"required,max=63"`
	LinkColumn string           `json:"link_column" validate:"required,max=63"`
	Payloads   []map[string]any `json:"payloads" validate:"required,min=1,max=1000"`
}

// CreateWithDependentsRequest creates a parent row and its children together.
type CreateWithDependentsRequest struct {
	Table      string            `json:"table" validate:"required,max=63"`
	Payload    map[string]any    `json:"payload" validate:"required,max=64"`
	Dependents DependentsRequest `json:"dependents"`
}

func (r *CreateWithDependentsRequest) Normalize() {
	r.Table = strings.TrimSpace(r.Table)
	r.Dependents.Table = strings.TrimSpace(r.Dependents.Table)
	r.Dependents.LinkColumn = strings.TrimSpace(r.Dependents.LinkColumn)
}

func (r *CreateWithDependentsRequest) ToRequest(token string) (gateway.Request, gateway.Dependents) {
	deps := gateway.Dependents{Table: r.Dependents.Table, LinkColumn: r.Dependents.LinkColumn}
	for _, p := range r.Dependents.Payloads {
		deps.Payloads = append(deps.Payloads, storage.Row(p))
	}
	return gateway.Request{
		SessionToken: token,
		Table:        r.Table,
		Operation:    ownership.OpCreate,
		Payload:      storage.Row(r.Payload),
	}, deps
}
