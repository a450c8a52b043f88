package handler

import (
	"tenantguard/internal/auditor"
	"tenantguard/internal/auditor/review"
)

type ScanResponse struct {
	Summary   auditor.Summary   `json:"summary"`
	Anomalies []auditor.Anomaly `json:"anomalies"`
}

type ReviewListResponse struct {
	Items []*review.Item `json:"items"`
}
