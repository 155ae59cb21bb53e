package domain

import "time"

// ─── Operational Feedback ───────────────────────────────────────────────────

// FeedbackVerdict is the operator label on a prior prediction.
type FeedbackVerdict string

const (
	FeedbackCorrect   FeedbackVerdict = "correct"
	FeedbackIncorrect FeedbackVerdict = "incorrect"
	FeedbackPartial   FeedbackVerdict = "partial"
)

// OperationalFeedback is one labeled outcome used to retrain models.
type OperationalFeedback struct {
	ID          string          `json:"id"`
	WorkflowID  string          `json:"workflow_id"`
	ThreatID    string          `json:"threat_id"`
	Verdict     FeedbackVerdict `json:"verdict"`
	Confidence  float64         `json:"confidence"`
	Features    []float64       `json:"features,omitempty"`
	Label       float64         `json:"label"` // target risk score
	Correction  string          `json:"correction,omitempty"`
	SubmittedAt time.Time       `json:"submitted_at"`
}

// ─── Datasets ───────────────────────────────────────────────────────────────

// Dataset is a projected training set of feature rows and labels.
type Dataset struct {
	Features [][]float64 `json:"features"`
	Labels   []float64   `json:"labels"`
}

// Len returns the number of examples.
func (d Dataset) Len() int { return len(d.Labels) }

// Split partitions the dataset at the given train ratio.
func (d Dataset) Split(trainRatio float64) (train, val Dataset) {
	n := int(float64(d.Len()) * trainRatio)
	train = Dataset{Features: d.Features[:n], Labels: d.Labels[:n]}
	val = Dataset{Features: d.Features[n:], Labels: d.Labels[n:]}
	return train, val
}

// ─── Model Registry ─────────────────────────────────────────────────────────

// TrainingStatus is the lifecycle state of a training job.
type TrainingStatus int

const (
	TrainingPending TrainingStatus = iota
	TrainingPreparingData
	TrainingRunning
	TrainingEvaluating
	TrainingCompleted
	TrainingFailed
)

// String returns the status as a human-readable string.
func (s TrainingStatus) String() string {
	switch s {
	case TrainingPending:
		return "PENDING"
	case TrainingPreparingData:
		return "PREPARING_DATA"
	case TrainingRunning:
		return "TRAINING"
	case TrainingEvaluating:
		return "EVALUATING"
	case TrainingCompleted:
		return "COMPLETED"
	case TrainingFailed:
		return "FAILED"
	}
	return "UNKNOWN"
}

// ModelVersion is a versioned entry in the model registry.
type ModelVersion struct {
	ID                 string             `json:"id"`
	ModelName          string             `json:"model_name"`
	Version            int                `json:"version"`
	TrainedAt          time.Time          `json:"trained_at"`
	ValidationAccuracy float64            `json:"validation_accuracy"`
	TestAccuracy       float64            `json:"test_accuracy"`
	Hyperparameters    map[string]float64 `json:"hyperparameters,omitempty"`
	TrainingSamples    int                `json:"training_samples"`
	Active             bool               `json:"active"`
}

// TrainingJob is the record of one retraining run for one model.
type TrainingJob struct {
	ID              string         `json:"id"`
	ModelName       string         `json:"model_name"`
	Status          TrainingStatus `json:"status"`
	StartedAt       time.Time      `json:"started_at"`
	CompletedAt     time.Time      `json:"completed_at,omitempty"`
	TrainingSamples int            `json:"training_samples"`
	NewVersion      *ModelVersion  `json:"new_version,omitempty"`
	Deployed        bool           `json:"deployed"`
	SkipReason      string         `json:"skip_reason,omitempty"`
	Error           string         `json:"error,omitempty"`
}

// ─── Workflow Execution ─────────────────────────────────────────────────────

// WorkflowStatus is the terminal-or-running state of a response workflow.
type WorkflowStatus int

const (
	WorkflowPending WorkflowStatus = iota
	WorkflowRunning
	WorkflowSuccess
	WorkflowFailed
	WorkflowRolledBack
)

// String returns the status as a human-readable string.
func (s WorkflowStatus) String() string {
	switch s {
	case WorkflowPending:
		return "PENDING"
	case WorkflowRunning:
		return "RUNNING"
	case WorkflowSuccess:
		return "SUCCESS"
	case WorkflowFailed:
		return "FAILED"
	case WorkflowRolledBack:
		return "ROLLED_BACK"
	}
	return "UNKNOWN"
}

// WorkflowExecution is the single source of truth for one threat-response
// workflow run.
type WorkflowExecution struct {
	ID            string            `json:"id"`
	ThreatID      string            `json:"threat_id"`
	Status        WorkflowStatus    `json:"status"`
	StartedAt     time.Time         `json:"started_at"`
	CompletedAt   time.Time         `json:"completed_at,omitempty"`
	StepsExecuted []string          `json:"steps_executed,omitempty"`
	Assessment    *ThreatAssessment `json:"assessment,omitempty"`
	Alert         *RoutedAlert      `json:"alert,omitempty"`
	Remediation   *RemediationExecution `json:"remediation,omitempty"`
	IncidentID    string            `json:"incident_id,omitempty"`
	Error         string            `json:"error,omitempty"`
	Duration      time.Duration     `json:"duration"`
}
