// Package errors provides standardized error handling for the broadcast core
// and its BPMN admission workflow.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

// Broadcast / admission business errors
const (
	ErrCodeCaseNotFound         ErrorCode = "CASE_NOT_FOUND"
	ErrCodeAreaUnresolved       ErrorCode = "AREA_UNRESOLVED"
	ErrCodeNoEligibleTargets    ErrorCode = "NO_ELIGIBLE_TARGETS"
	ErrCodeNoRemainingSlots     ErrorCode = "NO_REMAINING_SLOTS"
	ErrCodeInvalidToken         ErrorCode = "INVALID_TOKEN"
	ErrCodeTokenAlreadyConsumed ErrorCode = "TOKEN_ALREADY_CONSUMED"
	ErrCodeRoundNotFound        ErrorCode = "ROUND_NOT_FOUND"
	ErrCodeQuotaExceeded        ErrorCode = "QUOTA_EXCEEDED"

	ErrCodeInvalidParameter ErrorCode = "INVALID_PARAMETER"
	ErrCodeUnknownAction    ErrorCode = "UNKNOWN_ACTION"
)

// Infrastructure errors
const (
	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeDatabaseQueryFailed      ErrorCode = "DATABASE_QUERY_FAILED"
	ErrCodeNotificationSendFailed   ErrorCode = "NOTIFICATION_SEND_FAILED"
	ErrCodeWorkflowStartFailed      ErrorCode = "WORKFLOW_START_FAILED"
	ErrCodeInternal                 ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	cause     error
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped cause so errors.Is keeps working on sentinels.
func (e *StandardError) Unwrap() error {
	return e.cause
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

func newError(code ErrorCode, message, details string, retryable bool, cause error) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

// NewCaseNotFoundError creates a non-retryable lookup error.
func NewCaseNotFoundError(caseID string, cause error) *StandardError {
	return newError(ErrCodeCaseNotFound, "案件が見つかりません", fmt.Sprintf("caseId: %s", caseID), false, cause)
}

func NewAreaUnresolvedError(caseID string, cause error) *StandardError {
	return newError(ErrCodeAreaUnresolved, "案件のエリア（都道府県）を特定できません", fmt.Sprintf("caseId: %s", caseID), false, cause)
}

func NewNoEligibleTargetsError(area string, cause error) *StandardError {
	return newError(ErrCodeNoEligibleTargets, "配信対象の加盟店がありません", fmt.Sprintf("area: %s", area), false, cause)
}

func NewNoRemainingSlotsError(quota, delivered int, cause error) *StandardError {
	return newError(ErrCodeNoRemainingSlots, "残り枠がありません",
		fmt.Sprintf("quota: %d, delivered: %d", quota, delivered), false, cause)
}

func NewInvalidTokenError(cause error) *StandardError {
	return newError(ErrCodeInvalidToken, "無効なリンクです", "", false, cause)
}

func NewTokenAlreadyConsumedError(cause error) *StandardError {
	return newError(ErrCodeTokenAlreadyConsumed, "このリンクは既に使用されています", "", false, cause)
}

func NewRoundNotFoundError(roundID string, cause error) *StandardError {
	return newError(ErrCodeRoundNotFound, "配信ラウンドが見つかりません", fmt.Sprintf("roundId: %s", roundID), false, cause)
}

// NewQuotaExceededError is thrown by the admission workflow when the case is full.
func NewQuotaExceededError(caseID string, quota, delivered int, cause error) *StandardError {
	return newError(ErrCodeQuotaExceeded, "Case quota already filled",
		fmt.Sprintf("caseId: %s, quota: %d, delivered: %d", caseID, quota, delivered), false, cause)
}

func NewInvalidParameterError(details string) *StandardError {
	return newError(ErrCodeInvalidParameter, "パラメータが不正です: "+details, details, false, nil)
}

func NewUnknownActionError(action string) *StandardError {
	return newError(ErrCodeUnknownAction, "不明なアクションです: "+action, fmt.Sprintf("action: %s", action), false, nil)
}

// NewDatabaseConnectionFailedError creates a retryable database connection error.
func NewDatabaseConnectionFailedError(err error) *StandardError {
	return newError(ErrCodeDatabaseConnectionFailed, "Database connection error", err.Error(), true, err)
}

// NewDatabaseQueryFailedError creates a retryable query execution error.
func NewDatabaseQueryFailedError(op string, err error) *StandardError {
	return newError(ErrCodeDatabaseQueryFailed, "Database query execution error",
		fmt.Sprintf("op: %s, error: %s", op, err.Error()), true, err)
}

// NewNotificationSendFailedError creates a retryable notification send error.
func NewNotificationSendFailedError(channel string, err error) *StandardError {
	return newError(ErrCodeNotificationSendFailed, "Notification delivery failed",
		fmt.Sprintf("channel: %s, error: %s", channel, err.Error()), true, err)
}

func NewWorkflowStartFailedError(processID string, err error) *StandardError {
	return newError(ErrCodeWorkflowStartFailed, "Failed to start admission workflow",
		fmt.Sprintf("processId: %s, error: %s", processID, err.Error()), true, err)
}

func NewInternalError(err error) *StandardError {
	return newError(ErrCodeInternal, "Unexpected error", err.Error(), false, err)
}

// ==========================
// 4. Mapping & Classification
// ==========================

var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeCaseNotFound:             "CASE_NOT_FOUND",
	ErrCodeQuotaExceeded:            "QUOTA_EXCEEDED",
	ErrCodeDatabaseConnectionFailed: "DATABASE_CONNECTION_FAILED",
	ErrCodeDatabaseQueryFailed:      "DATABASE_QUERY_FAILED",
	ErrCodeNotificationSendFailed:   "NOTIFICATION_SEND_FAILED",
}

func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeDatabaseConnectionFailed,
		ErrCodeDatabaseQueryFailed,
		ErrCodeNotificationSendFailed,
		ErrCodeWorkflowStartFailed:
		return 3 // Retryable technical errors

	default:
		return 0 // Business errors: no retry
	}
}

func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, exists := BPMNErrorMapping[stdErr.Code]
	if !exists {
		bpmnCode = string(stdErr.Code)
	}

	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	return &BPMNError{
		Code:      bpmnCode,
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		ErrorVariables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "TOKEN"):
		return "TOKEN"
	case strings.Contains(codeStr, "SLOTS") || strings.Contains(codeStr, "QUOTA") || strings.Contains(codeStr, "TARGETS"):
		return "QUOTA"
	case strings.Contains(codeStr, "DATABASE"):
		return "DATABASE"
	case strings.Contains(codeStr, "NOTIFICATION"):
		return "NOTIFICATION"
	case strings.Contains(codeStr, "WORKFLOW"):
		return "WORKFLOW"
	case strings.Contains(codeStr, "NOT_FOUND") || strings.Contains(codeStr, "UNRESOLVED"):
		return "LOOKUP"
	case strings.Contains(codeStr, "INVALID") || strings.Contains(codeStr, "UNKNOWN"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}

// AsStandardError extracts a StandardError from an error chain.
func AsStandardError(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// CodeOf returns the error code carried by err, or INTERNAL_ERROR.
func CodeOf(err error) ErrorCode {
	if stdErr, ok := AsStandardError(err); ok {
		return stdErr.Code
	}
	return ErrCodeInternal
}
