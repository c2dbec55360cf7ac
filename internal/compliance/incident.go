package compliance

import (
	"context"
	"time"

	"github.com/orbitreg/compliance-workflow/internal/domain/workflow"
)

// Incident states
const (
	IncDetected         workflow.State = "detected"
	IncTriaged          workflow.State = "triaged"
	IncEarlyWarningDue  workflow.State = "early_warning_due"
	IncEarlyWarningSent workflow.State = "early_warning_sent"
	IncNotificationSent workflow.State = "notification_sent"
	IncFinalReportSent  workflow.State = "final_report_sent"
	IncClosed           workflow.State = "closed"
)

// Incident events
const (
	EventTriage           workflow.Event = "triage"
	EventEscalate         workflow.Event = "escalate"
	EventSendEarlyWarning workflow.Event = "send_early_warning"
	EventSendNotification workflow.Event = "send_notification"
	EventSendFinalReport  workflow.Event = "send_final_report"
	EventAcknowledged     workflow.Event = "acknowledged"
	EventClose            workflow.Event = "close"
)

// Incident context keys
const (
	FieldSeverity              = "severity"
	FieldSignificant           = "significant"
	FieldReportedBy            = "reported_by"
	FieldTriagedAt             = "triaged_at"
	FieldResolutionSummary     = "resolution_summary"
	FieldEarlyWarningSummary   = "early_warning_summary"
	FieldEarlyWarningDeadline  = "early_warning_deadline"
	FieldNotificationDeadline  = "notification_deadline"
	FieldImpactAssessment      = "impact_assessment"
	FieldFinalReportDeadline   = "final_report_deadline"
	FieldRootCause             = "root_cause"
	FieldMitigation            = "mitigation"
	FieldAuthorityAcknowledged = "authority_acknowledged"
)

// Reporting windows counted from the moment an incident is found significant
// (early warning, notification) or notified (final report).
const (
	EarlyWarningWindow = 24 * time.Hour
	NotificationWindow = 72 * time.Hour
	FinalReportWindow  = 30 * 24 * time.Hour
)

// IsSignificant reports whether an incident triggers mandatory reporting
func IsSignificant(data workflow.Context) bool {
	if data.Bool(FieldSignificant) {
		return true
	}
	switch data.String(FieldSeverity) {
	case "high", "critical":
		return true
	}
	return false
}

// IncidentDefinition models staged incident reporting to the competent
// authority. Significant incidents escalate automatically after triage;
// the rest may be closed directly.
func IncidentDefinition(opts ...Option) *workflow.Definition {
	s := newSettings(opts)

	b := workflow.NewBuilder(IncidentID).Version(1).Initial(IncDetected)

	b.Configure(IncDetected).
		Label("Detected").
		Progress(0).
		PermitIf(EventTriage, IncTriaged, requireFields(FieldSeverity, FieldReportedBy),
			workflow.WithDescription("Classify severity"),
			workflow.WithAction(s.stamp(FieldTriagedAt)))

	b.Configure(IncTriaged).
		Label("Triaged").
		Progress(20).
		PermitAuto(EventEscalate, IncEarlyWarningDue, IsSignificant,
			workflow.WithDescription("Significant incident requires reporting")).
		PermitIf(EventClose, IncClosed, func(_ context.Context, data workflow.Context) (bool, error) {
			return !IsSignificant(data) && hasFields(data, FieldResolutionSummary), nil
		}, workflow.WithDescription("Close a non-significant incident"))

	b.Configure(IncEarlyWarningDue).
		Label("Early warning due").
		Progress(35).
		OnEnter(func(ctx context.Context, data workflow.Context) error {
			if err := s.deadline(FieldEarlyWarningDeadline, EarlyWarningWindow)(ctx, data); err != nil {
				return err
			}
			return s.deadline(FieldNotificationDeadline, NotificationWindow)(ctx, data)
		}).
		PermitIf(EventSendEarlyWarning, IncEarlyWarningSent, requireFields(FieldEarlyWarningSummary),
			workflow.WithDescription("Send the early warning")).
		PermitIf(EventClose, IncClosed, requireFields(FieldResolutionSummary),
			workflow.WithDescription("Close as false positive"))

	b.Configure(IncEarlyWarningSent).
		Label("Early warning sent").
		Progress(50).
		PermitIf(EventSendNotification, IncNotificationSent, requireFields(FieldImpactAssessment),
			workflow.WithDescription("Send the incident notification"))

	b.Configure(IncNotificationSent).
		Label("Notification sent").
		Progress(75).
		OnEnter(s.deadline(FieldFinalReportDeadline, FinalReportWindow)).
		PermitIf(EventSendFinalReport, IncFinalReportSent, requireFields(FieldRootCause, FieldMitigation),
			workflow.WithDescription("Send the final report"))

	b.Configure(IncFinalReportSent).
		Label("Final report sent").
		Progress(90).
		PermitAuto(EventAcknowledged, IncClosed, func(data workflow.Context) bool {
			return data.Bool(FieldAuthorityAcknowledged)
		}, workflow.WithDescription("Authority acknowledged the final report"))

	b.Configure(IncClosed).
		Label("Closed").
		Terminal().
		OnEnter(s.stamp(FieldClosedAt))

	return b.MustBuild()
}
