package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure — no infrastructure dependency.

var (
	// Ingestion errors
	ErrMalformedEvent   = errors.New("malformed event — missing required field")
	ErrDuplicateEvent   = errors.New("duplicate event within dedup window")
	ErrUnknownEventKind = errors.New("unrecognized event kind")

	// Aggregation errors
	ErrInsufficientData = errors.New("insufficient data — window holds fewer than 2 points")
	ErrUnknownMetric    = errors.New("metric not tracked")
	ErrUnknownWindow    = errors.New("unrecognized aggregation window")

	// Detection errors
	ErrNoActiveModel   = errors.New("no active model deployed for detector")
	ErrFeatureMismatch = errors.New("feature vector length does not match model input")

	// Assessment errors
	ErrAssessmentIncomplete = errors.New("threat signal missing fields required for scoring")

	// Alerting errors
	ErrAlertSuppressed   = errors.New("alert suppressed by duplicate/flood filter")
	ErrNoRouteMatched    = errors.New("no routing rule matched")
	ErrEscalationAtMax   = errors.New("escalation already at maximum level")
	ErrNotificationSend  = errors.New("notification channel send failed")

	// Remediation errors
	ErrPlaybookNotFound   = errors.New("remediation playbook not found")
	ErrNoExecutor         = errors.New("no executor registered for action kind")
	ErrStepTimeout        = errors.New("remediation step exceeded its timeout")
	ErrRollbackFailed     = errors.New("rollback of completed step failed")
	ErrExecutionNotFound  = errors.New("remediation execution not found")

	// Incident errors
	ErrIncidentNotFound      = errors.New("incident not found")
	ErrInvalidTransition     = errors.New("incident status transition is not forward-only")
	ErrIncidentAlreadyActive = errors.New("threat already has an active incident")
	ErrTooManyIncidents      = errors.New("active incident cap reached")

	// Workflow errors
	ErrWorkflowNotFound  = errors.New("workflow execution not found")
	ErrWorkflowCancelled = errors.New("workflow cancelled")

	// Region errors
	ErrRegionUnknown       = errors.New("region not configured")
	ErrRegionUnavailable   = errors.New("region is unavailable")
	ErrNoBackupRegions     = errors.New("no active backup regions for failover")
	ErrWorkloadNotFound    = errors.New("workload not found")
	ErrMissingPrimary      = errors.New("active workload missing primary-region replica")
	ErrReplicationTimeout  = errors.New("state replication timed out")

	// Training errors
	ErrDatasetTooSmall  = errors.New("dataset below minimum sample count")
	ErrModelNotFound    = errors.New("model not found in registry")
	ErrNotAnImprovement = errors.New("candidate model does not beat deployed accuracy threshold")

	// Event bus errors
	ErrTopicClosed      = errors.New("event bus topic is closed")
	ErrSubscriberClosed = errors.New("subscriber queue is closed")

	// Storage errors
	ErrStoreClosed     = errors.New("store is closed")
	ErrInvalidStep     = errors.New("query step must be one of 1s, 1m, 5m, 1h, 1d")
	ErrNoSuchRetention = errors.New("retention policy not found")
)
