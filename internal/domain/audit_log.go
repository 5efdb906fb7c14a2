package domain

import "time"

// AuditActionType captures the kind of mutation an audit entry records.
type AuditActionType string

const (
	AuditActionCreate     AuditActionType = "create"
	AuditActionUpdate     AuditActionType = "update"
	AuditActionDelete     AuditActionType = "delete"
	AuditActionSoftDelete AuditActionType = "soft_delete"
	AuditActionRestore    AuditActionType = "restore"
)

// AuditCategory groups audit entries by subsystem.
type AuditCategory string

const (
	AuditCategoryTicket       AuditCategory = "ticket"
	AuditCategorySubTicket    AuditCategory = "subticket"
	AuditCategoryUser         AuditCategory = "user"
	AuditCategoryDepartment   AuditCategory = "department"
	AuditCategoryApproval     AuditCategory = "approval"
	AuditCategoryAttachment   AuditCategory = "attachment"
	AuditCategoryChat         AuditCategory = "chat"
	AuditCategoryNotification AuditCategory = "notification"
	AuditCategorySystem       AuditCategory = "system"
)

// Subject type names stored in AuditLog.ModelName.
const (
	SubjectTicket    = "Ticket"
	SubjectSubTicket = "SubTicket"
	SubjectApproval  = "Approval"
)

// FieldChange is one entry of AuditLog.Changes.
type FieldChange struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// AuditLog is an immutable audit trail entry. Only ArchivedAt is ever updated.
type AuditLog struct {
	ID            string
	Sequence      int64
	ActionType    AuditActionType
	Category      AuditCategory
	ModelName     string
	ObjectID      string
	OldState      map[string]any
	NewState      map[string]any
	Changes       map[string]FieldChange
	PerformedByID *string
	Reason        string
	IPAddress     *string
	Timestamp     time.Time
	ArchivedAt    *time.Time
	Checksum      string
}
