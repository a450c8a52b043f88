package audit

import "time"

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out. Business payloads
// (student names, fee amounts, message bodies) never go in an event.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	UserID    string    `json:"user_id,omitempty"`
	TenantID  string    `json:"tenant_id,omitempty"`
	Table     string    `json:"table,omitempty"`
	Operation string    `json:"operation,omitempty"`
	Decision  string    `json:"decision,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Subject   string    `json:"subject,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	ActorID   string    `json:"actor_id,omitempty"`
}

type AuditEvent string

const (
	EventAccessDecision       AuditEvent = "access_decision"
	EventMaintenanceAccess    AuditEvent = "maintenance_cross_tenant_access"
	EventTenantAssigned       AuditEvent = "tenant_assigned"
	EventTenantCreated        AuditEvent = "tenant_created"
	EventTenantDeactivated    AuditEvent = "tenant_deactivated"
	EventTenantReactivated    AuditEvent = "tenant_reactivated"
	EventUserRegistered       AuditEvent = "user_registered"
	EventUserDeactivated      AuditEvent = "user_deactivated"
	EventTenantHintMismatch   AuditEvent = "tenant_hint_mismatch"
	EventAnomalyRepaired      AuditEvent = "anomaly_repaired"
	EventAnomalyFlagged       AuditEvent = "anomaly_flagged"
	EventCompensationExecuted AuditEvent = "compensation_executed"
	EventScanCompleted        AuditEvent = "consistency_scan_completed"
)
