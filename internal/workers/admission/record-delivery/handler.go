// Package recorddelivery is the job worker behind the human admission step:
// once an operator approves an apply click it appends the delivery record,
// re-checking the case quota under a row lock.
package recorddelivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	apperrors "kuraberu-broadcast/internal/common/errors"
	"kuraberu-broadcast/internal/common/logger"
	"kuraberu-broadcast/internal/common/metrics"
	"kuraberu-broadcast/internal/store"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "record-delivery"

	ResultAdmitted         = "admitted"
	ResultAlreadyDelivered = "already_delivered"
	ResultRejected         = "rejected"
)

var (
	ErrInvalidInput  = errors.New("INVALID_INPUT")
	ErrCaseNotFound  = errors.New("CASE_NOT_FOUND")
	ErrQuotaExceeded = errors.New("QUOTA_EXCEEDED")
	ErrLedgerFailed  = errors.New("LEDGER_WRITE_FAILED")
)

// Admitter is satisfied by store.Ledger.
type Admitter interface {
	AdmitWithinQuota(ctx context.Context, caseID, franchiseID, source string) (*store.AdmitResult, error)
}

type Handler struct {
	config *Config
	ledger Admitter
	errors *apperrors.ErrorHandler
	logger logger.Logger
}

func NewHandler(config *Config, ledger Admitter, log logger.Logger) *Handler {
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config: config,
		ledger: ledger,
		errors: apperrors.NewErrorHandler(l),
		logger: l,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.errors.HandleJobError(ctx, client, job,
			apperrors.NewInvalidParameterError(fmt.Sprintf("parse input: %v", err)))
		return
	}

	output, err := h.execute(ctx, &input)
	if err != nil {
		metrics.AdmissionRecords.WithLabelValues(string(apperrors.CodeOf(err))).Inc()
		h.errors.HandleJobError(ctx, client, job, err)
		return
	}
	metrics.AdmissionRecords.WithLabelValues(output.AdmissionResult).Inc()

	h.completeJob(client, job, output)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if input.CaseID == "" || input.FranchiseID == "" {
		return nil, apperrors.NewInvalidParameterError(
			fmt.Sprintf("%v: caseId and franchiseId are required", ErrInvalidInput))
	}

	if input.Approved == nil || !*input.Approved {
		h.logger.Info("admission rejected by operator", map[string]interface{}{
			"caseId":      input.CaseID,
			"roundId":     input.RoundID,
			"franchiseId": input.FranchiseID,
		})
		return &Output{AdmissionResult: ResultRejected}, nil
	}

	res, err := h.ledger.AdmitWithinQuota(ctx, input.CaseID, input.FranchiseID, h.config.Source)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.NewCaseNotFoundError(input.CaseID, fmt.Errorf("%w: %v", ErrCaseNotFound, err))
		}
		return nil, apperrors.NewDatabaseQueryFailedError("admit delivery", fmt.Errorf("%w: %v", ErrLedgerFailed, err))
	}

	fields := map[string]interface{}{
		"caseId":      input.CaseID,
		"roundId":     input.RoundID,
		"franchiseId": input.FranchiseID,
		"quota":       res.Quota,
		"delivered":   res.Delivered,
	}

	switch res.Outcome {
	case store.AdmitQuotaExceeded:
		return nil, apperrors.NewQuotaExceededError(input.CaseID, res.Quota, res.Delivered, ErrQuotaExceeded)
	case store.AdmitAlreadyDelivered:
		h.logger.Info("franchise already holds case", fields)
		return &Output{AdmissionResult: ResultAlreadyDelivered, DeliveredCount: res.Delivered, Quota: res.Quota}, nil
	}

	h.logger.Info("delivery recorded", fields)
	return &Output{AdmissionResult: ResultAdmitted, DeliveredCount: res.Delivered, Quota: res.Quota}, nil
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	_, err = cmd.Send(context.Background())
	if err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err,
		})
	} else {
		h.logger.Info("job completed successfully", map[string]interface{}{
			"jobKey": job.Key,
		})
	}
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
