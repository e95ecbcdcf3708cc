package domain

import "fmt"

// RejectReason classifies a row-level rejection produced by the normalizer.
type RejectReason string

const (
	RejectMissingField    RejectReason = "MISSING_FIELD"
	RejectInvalidDate     RejectReason = "INVALID_DATE"
	RejectInvalidQuantity RejectReason = "INVALID_QUANTITY"
)

// RowRejection records why a single input row was dropped. Row numbers are
// 1-based and count data rows only (the header row is row 0).
type RowRejection struct {
	Row    int          `json:"row"`
	Reason RejectReason `json:"reason"`
	Detail string       `json:"detail,omitempty"`
}

func (r RowRejection) String() string {
	if r.Detail == "" {
		return fmt.Sprintf("row %d: %s", r.Row, r.Reason)
	}
	return fmt.Sprintf("row %d: %s (%s)", r.Row, r.Reason, r.Detail)
}

// ContractViolationError marks a programming-contract violation: validated
// input that nonetheless reaches a stage in an impossible state, or an
// illegal job status transition. Always job-fatal, never retried.
type ContractViolationError struct {
	Msg string
}

func (e *ContractViolationError) Error() string {
	return "contract violation: " + e.Msg
}

// ContractViolationf builds a ContractViolationError with a formatted message.
func ContractViolationf(format string, args ...interface{}) error {
	return &ContractViolationError{Msg: fmt.Sprintf(format, args...)}
}

// StoreError wraps a database failure that is not explainable by normal
// duplicate-upsert flow. Job-fatal.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store failure during %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
