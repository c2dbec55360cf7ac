package compliance

import (
	"context"

	"github.com/orbitreg/compliance-workflow/internal/domain/workflow"
)

// Authorization states
const (
	AuthDraft            workflow.State = "draft"
	AuthDocumentsPending workflow.State = "documents_pending"
	AuthReadyForReview   workflow.State = "ready_for_review"
	AuthSubmitted        workflow.State = "submitted"
	AuthUnderReview      workflow.State = "under_review"
	AuthChangesRequested workflow.State = "changes_requested"
	AuthApproved         workflow.State = "approved"
	AuthRejected         workflow.State = "rejected"
	AuthWithdrawn        workflow.State = "withdrawn"
)

// Authorization events
const (
	EventStartDocuments workflow.Event = "start_documents"
	EventDocumentsReady workflow.Event = "documents_ready"
	EventSubmit         workflow.Event = "submit"
	EventBeginReview    workflow.Event = "begin_review"
	EventApprove        workflow.Event = "approve"
	EventReject         workflow.Event = "reject"
	EventRequestChanges workflow.Event = "request_changes"
	EventRevise         workflow.Event = "revise"
	EventWithdraw       workflow.Event = "withdraw"
)

// Authorization context keys
const (
	FieldOperatorName      = "operator_name"
	FieldMissionType       = "mission_type"
	FieldDocumentsComplete = "documents_complete"
	FieldAttested          = "attested"
	FieldRiskAssessment    = "risk_assessment_complete"
	FieldDecisionReason    = "decision_reason"
	FieldSubmittedAt       = "submitted_at"
	FieldReviewStartedAt   = "review_started_at"
	FieldDecidedAt         = "decided_at"
	FieldClosedAt          = "closed_at"
	FieldRevisionCount     = "revision_count"
)

// AuthorizationDefinition models an operator's authorization application
// from first draft to the authority's decision. Once the required documents
// are flagged complete the application moves to ready_for_review on its own.
func AuthorizationDefinition(opts ...Option) *workflow.Definition {
	s := newSettings(opts)

	b := workflow.NewBuilder(AuthorizationID).Version(1).Initial(AuthDraft)

	b.Configure(AuthDraft).
		Label("Draft").
		Progress(0).
		PermitIf(EventStartDocuments, AuthDocumentsPending, requireFields(FieldOperatorName, FieldMissionType),
			workflow.WithDescription("Begin collecting supporting documents")).
		Permit(EventWithdraw, AuthWithdrawn, workflow.WithDescription("Withdraw the application"))

	b.Configure(AuthDocumentsPending).
		Label("Documents pending").
		Progress(20).
		PermitAuto(EventDocumentsReady, AuthReadyForReview, func(data workflow.Context) bool {
			return data.Bool(FieldDocumentsComplete)
		}, workflow.WithDescription("All required documents uploaded")).
		Permit(EventWithdraw, AuthWithdrawn, workflow.WithDescription("Withdraw the application"))

	b.Configure(AuthReadyForReview).
		Label("Ready for review").
		Progress(40).
		PermitIf(EventSubmit, AuthSubmitted, func(_ context.Context, data workflow.Context) (bool, error) {
			return data.Bool(FieldDocumentsComplete) && data.Bool(FieldAttested), nil
		}, workflow.WithDescription("Submit to the national authority")).
		Permit(EventWithdraw, AuthWithdrawn, workflow.WithDescription("Withdraw the application"))

	b.Configure(AuthSubmitted).
		Label("Submitted").
		Progress(60).
		OnEnter(s.stamp(FieldSubmittedAt)).
		Permit(EventBeginReview, AuthUnderReview, workflow.WithDescription("Authority starts the assessment")).
		Permit(EventWithdraw, AuthWithdrawn, workflow.WithDescription("Withdraw the application"))

	b.Configure(AuthUnderReview).
		Label("Under review").
		Progress(80).
		OnEnter(s.stamp(FieldReviewStartedAt)).
		PermitIf(EventApprove, AuthApproved, func(_ context.Context, data workflow.Context) (bool, error) {
			return data.Bool(FieldRiskAssessment), nil
		}, workflow.WithDescription("Grant the authorization")).
		PermitIf(EventReject, AuthRejected, requireFields(FieldDecisionReason),
			workflow.WithDescription("Refuse the authorization")).
		Permit(EventRequestChanges, AuthChangesRequested, workflow.WithDescription("Ask the operator for changes"))

	b.Configure(AuthChangesRequested).
		Label("Changes requested").
		Progress(50).
		Permit(EventRevise, AuthDocumentsPending,
			workflow.WithDescription("Rework the documents"),
			workflow.WithAction(func(_ context.Context, data workflow.Context) error {
				data.Set(FieldDocumentsComplete, false)
				data.Set(FieldAttested, false)
				data.Set(FieldRevisionCount, data.Int(FieldRevisionCount)+1)
				return nil
			})).
		Permit(EventWithdraw, AuthWithdrawn, workflow.WithDescription("Withdraw the application"))

	b.Configure(AuthApproved).Label("Approved").Terminal().OnEnter(s.stamp(FieldDecidedAt))
	b.Configure(AuthRejected).Label("Rejected").Terminal().OnEnter(s.stamp(FieldDecidedAt))
	b.Configure(AuthWithdrawn).Label("Withdrawn").Terminal().OnEnter(s.stamp(FieldClosedAt))

	return b.MustBuild()
}
