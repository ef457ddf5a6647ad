package job

import "time"

type ExecutionOutcome string

const (
	OutcomeSuccess   ExecutionOutcome = "success"
	OutcomePartial   ExecutionOutcome = "partial"
	OutcomeFailed    ExecutionOutcome = "failed"
	OutcomeCancelled ExecutionOutcome = "cancelled"
)

// ExecutionRecord is written once per finished run and never updated.
type ExecutionRecord struct {
	ID               string            `json:"id"`
	JobID            string            `json:"job_id"`
	ExecutedAt       time.Time         `json:"executed_at"`
	Duration         time.Duration     `json:"execution_duration"`
	TotalSent        int               `json:"total_sent"`
	SuccessCount     int               `json:"success_count"`
	FailedCount      int               `json:"failed_count"`
	Outcome          ExecutionOutcome  `json:"status"`
	FailedRecipients []FailedRecipient `json:"failed_recipients"`
	ExecutedBy       string            `json:"executed_by"`
}

// OutcomeFor classifies a run by its counters.
func OutcomeFor(success, failed int) ExecutionOutcome {
	switch {
	case success == 0:
		return OutcomeFailed
	case failed == 0:
		return OutcomeSuccess
	default:
		return OutcomePartial
	}
}
