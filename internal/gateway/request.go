package gateway

import (
	"fmt"

	"tenantguard/internal/ownership"
	"tenantguard/internal/schema"
	"tenantguard/internal/storage"
	id "tenantguard/pkg/domain"
	dErrors "tenantguard/pkg/domain-errors"
	"tenantguard/pkg/platform/validation"
)

// DeletePolicy must be chosen explicitly on every delete.
type DeletePolicy string

const (
	DeleteUnspecified DeletePolicy = ""
	DeleteSoft        DeletePolicy = "soft"
	DeleteHard        DeletePolicy = "hard"
)

// Request is one data-access call on behalf of a session.
type Request struct {
	SessionToken string
	Table        string
	Operation    ownership.Operation
	Filter       storage.Filter
	// Payload is the row for Create and the patch for Update.
	Payload      storage.Row
	DeletePolicy DeletePolicy
	Limit        int
	Offset       int
	OrderBy      []storage.Order
}

// Result of an allowed call. Rows holds read rows, the created row, or the
// updated rows; Affected counts rows written or deleted.
type Result struct {
	Rows     []storage.Row
	Affected int
	TenantID id.TenantID
	UserID   id.UserID
	Stages   []Stage
}

func validationErr(format string, args ...any) error {
	return dErrors.New(dErrors.CodeValidation, fmt.Sprintf(format, args...))
}

// validate checks the request shape against the registry. It returns the
// table so callers don't look it up twice.
func (g *Gateway) validate(req *Request) (*schema.Table, error) {
	if !req.Operation.IsValid() {
		return nil, validationErr("unknown operation %q", req.Operation)
	}
	table, ok := g.registry.Table(req.Table)
	if !ok {
		return nil, validationErr("unknown table %q", req.Table)
	}
	if !table.TenantScoped {
		return nil, validationErr("table %q is not tenant-scoped", req.Table)
	}
	if err := validation.CheckSliceCount("filter conditions", len(req.Filter), validation.MaxFilterConditions); err != nil {
		return nil, err
	}
	if err := req.Filter.Validate(); err != nil {
		return nil, dErrors.New(dErrors.CodeValidation, err.Error())
	}
	if ids, pinned := req.Filter.PinnedIDs(); pinned {
		if err := validation.CheckSliceCount("pinned ids", len(ids), validation.MaxPinnedIDs); err != nil {
			return nil, err
		}
	}
	if err := validation.CheckSliceCount("order columns", len(req.OrderBy), validation.MaxOrderColumns); err != nil {
		return nil, err
	}
	for _, o := range req.OrderBy {
		if !schema.IsValidIdentifier(o.Column) {
			return nil, validationErr("invalid order column %q", o.Column)
		}
	}
	if err := validation.CheckRange("limit", req.Limit, 0, validation.MaxQueryLimit); err != nil {
		return nil, err
	}
	if req.Offset < 0 {
		return nil, validationErr("offset must not be negative")
	}
	if err := validation.CheckSliceCount("payload columns", len(req.Payload), validation.MaxPayloadColumns); err != nil {
		return nil, err
	}
	for column := range req.Payload {
		if !schema.IsValidIdentifier(column) {
			return nil, validationErr("invalid payload column %q", column)
		}
	}

	switch req.Operation {
	case ownership.OpCreate:
		if len(req.Payload) == 0 {
			return nil, validationErr("create requires a payload")
		}
	case ownership.OpUpdate:
		if len(req.Payload) == 0 {
			return nil, validationErr("update requires a patch")
		}
		if _, ok := req.Payload[schema.ColumnID]; ok {
			return nil, validationErr("update may not change id")
		}
	case ownership.OpDelete:
		switch req.DeletePolicy {
		case DeleteSoft:
			if !table.SoftDelete {
				return nil, validationErr("table %q does not support soft delete", req.Table)
			}
		case DeleteHard:
		case DeleteUnspecified:
			return nil, validationErr("delete requires an explicit policy (soft or hard)")
		default:
			return nil, validationErr("unknown delete policy %q", req.DeletePolicy)
		}
	}
	return table, nil
}
