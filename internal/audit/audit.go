package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/psyphiuk/marcello-whatsapp-pa-web/model"
)

var auditRepo AuditRepository
var initOnce sync.Once

func Initialize(repo AuditRepository) {
	initOnce.Do(func() {
		auditRepo = repo
	})
}

const (
	ActionLoginSuccess       = "login_success"
	ActionLoginFailure       = "login_failure"
	ActionLogout             = "logout"
	ActionSessionRefresh     = "session_refresh"
	ActionSessionRevoked     = "session_revoked"
	ActionMFAEnrolled        = "mfa_enrolled"
	ActionMFADisabled        = "mfa_disabled"
	ActionMFAVerifySuccess   = "mfa_verify_success"
	ActionMFAVerifyFailure   = "mfa_verify_failure"
	ActionBackupCodesRenewed = "mfa_backup_codes_renewed"
	ActionSuspiciousActivity = "suspicious_activity"
	ActionDataRead           = "data_read"
	ActionDataWrite          = "data_write"
	ActionDataDelete         = "data_delete"
)

// SecurityEvent mirrors the columns of the security audit log; zero fields are
// simply omitted from the row.
type SecurityEvent struct {
	CustomerID    uint
	Action        string
	Resource      string
	ResourceID    string
	IP            string
	UserAgent     string
	RequestMethod string
	RequestPath   string
	StatusCode    int
	ErrorMessage  string
	Metadata      map[string]any
}

// RecordEvent appends one security event. Storage failures are logged locally
// and swallowed; audit writes never fail the caller's operation.
func RecordEvent(ctx context.Context, event SecurityEvent) {
	if auditRepo == nil {
		return
	}
	err := auditRepo.RecordEvent(ctx, &model.SecurityEvent{
		CustomerID:    event.CustomerID,
		Action:        event.Action,
		Resource:      event.Resource,
		ResourceID:    event.ResourceID,
		IP:            event.IP,
		UserAgent:     event.UserAgent,
		RequestMethod: event.RequestMethod,
		RequestPath:   event.RequestPath,
		StatusCode:    event.StatusCode,
		ErrorMessage:  event.ErrorMessage,
		Metadata:      encodeMetadata(event.Metadata),
	})
	if err != nil {
		slog.Error("Failed to record security event", "action", event.Action, "error", err)
	}
}

// RecordAdminAction appends one admin audit row. Callers of admin operations
// are expected to invoke this for every allowed action.
func RecordAdminAction(ctx context.Context, customerID uint, action string, resource string, details map[string]any) {
	if auditRepo == nil {
		return
	}
	err := auditRepo.RecordAdminAction(ctx, &model.AdminAction{
		CustomerID: customerID,
		Action:     action,
		Resource:   resource,
		Details:    encodeMetadata(details),
	})
	if err != nil {
		slog.Error("Failed to record admin action", "action", action, "error", err)
	}
}

type FailedLoginRecord struct {
	Email     string
	IP        string
	UserAgent string
	ErrorType string
}

func RecordFailedLogin(ctx context.Context, record FailedLoginRecord) {
	if auditRepo == nil {
		return
	}
	err := auditRepo.RecordFailedLogin(ctx, &model.FailedLogin{
		Email:     record.Email,
		IP:        record.IP,
		UserAgent: record.UserAgent,
		ErrorType: record.ErrorType,
	})
	if err != nil {
		slog.Error("Failed to record failed login", "error", err)
	}
}

func RecordSuspiciousActivity(ctx context.Context, description string, ip string, userAgent string, metadata map[string]any) {
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["description"] = description
	RecordEvent(ctx, SecurityEvent{
		Action:    ActionSuspiciousActivity,
		Resource:  "system",
		IP:        ip,
		UserAgent: userAgent,
		Metadata:  metadata,
	})
}

func encodeMetadata(metadata map[string]any) string {
	if len(metadata) == 0 {
		return ""
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return ""
	}
	return string(raw)
}
