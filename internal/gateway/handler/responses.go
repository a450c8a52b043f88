package handler

import (
	"tenantguard/internal/gateway"
	"tenantguard/internal/storage"
)

type ExecuteResponse struct {
	Rows     []storage.Row `json:"rows"`
	Affected int           `json:"affected"`
	TenantID string        `json:"tenant_id"`
	Stages   []string      `json:"stages"`
}

type CompositeResponse struct {
	Parent   storage.Row   `json:"parent"`
	Children []storage.Row `json:"children"`
}

// DeniedResponse is the body of every authorization denial.
type DeniedResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Reason           string `json:"reason"`
	Stage            string `json:"stage"`
}

func toExecuteResponse(res *gateway.Result) *ExecuteResponse {
	rows := res.Rows
	if rows == nil {
		rows = []storage.Row{}
	}
	return &ExecuteResponse{
		Rows:     rows,
		Affected: res.Affected,
		TenantID: res.TenantID.String(),
		Stages:   stageNames(res.Stages),
	}
}

func stageNames(stages []gateway.Stage) []string {
	out := make([]string, len(stages))
	for i, s := range stages {
		out[i] = s.String()
	}
	return out
}
