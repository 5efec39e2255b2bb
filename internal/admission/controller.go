// Package admission handles the one-time apply/interest links sent in a
// broadcast round. A click never admits a franchise; it only records the
// response and asks an operator to confirm.
package admission

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	apperrors "kuraberu-broadcast/internal/common/errors"
	"kuraberu-broadcast/internal/common/logger"
	"kuraberu-broadcast/internal/common/metrics"
	"kuraberu-broadcast/internal/common/observability"
	"kuraberu-broadcast/internal/models"
	"kuraberu-broadcast/internal/store"

	"go.opentelemetry.io/otel/attribute"
)

var (
	ErrTokenNotFound   = errors.New("TOKEN_NOT_FOUND")
	ErrWrongAction     = errors.New("TOKEN_WRONG_ACTION")
	ErrRoundMismatch   = errors.New("TOKEN_ROUND_MISMATCH")
	ErrAlreadyConsumed = errors.New("TOKEN_ALREADY_CONSUMED")
	ErrRoundNotFound   = errors.New("ROUND_NOT_FOUND")
)

type TokenStore interface {
	Get(ctx context.Context, token string) (*models.ResponseToken, error)
	TryConsume(ctx context.Context, token string, outcome models.Outcome, at time.Time) (bool, *models.ResponseToken, error)
	ListApplied(ctx context.Context, caseID string) ([]models.AppliedFranchise, error)
}

type RoundStore interface {
	Get(ctx context.Context, id string) (*models.BroadcastRound, error)
	AppendApplicant(ctx context.Context, id, name string) error
}

type AdminNotifier interface {
	NotifyAdmin(ctx context.Context, alert models.AdminAlert)
}

// Confirmation is what the clicking franchise is shown on success.
type Confirmation struct {
	Page          Page
	FranchiseName string
}

type Controller struct {
	tokens    TokenStore
	rounds    RoundStore
	notifier  AdminNotifier
	requester Requester
	obs       *observability.Observability
	logger    logger.Logger
	now       func() time.Time

	wg sync.WaitGroup
}

// NewController builds a controller. requester may be nil, in which case
// the operator alert is the only admission signal.
func NewController(tokens TokenStore, rounds RoundStore, notifier AdminNotifier, requester Requester, obs *observability.Observability, log logger.Logger) *Controller {
	if obs == nil {
		obs = observability.NewNoop()
	}
	return &Controller{
		tokens:    tokens,
		rounds:    rounds,
		notifier:  notifier,
		requester: requester,
		obs:       obs,
		logger:    log.WithFields(map[string]interface{}{"component": "admission"}),
		now:       time.Now,
	}
}

// HandleApply consumes an apply token, records the franchise on the round
// and requests operator admission in the background.
func (c *Controller) HandleApply(ctx context.Context, token, roundID string) (*Confirmation, error) {
	start := c.now()
	ctx, span := c.obs.StartSpan(ctx, "admission.apply", attribute.String("roundId", roundID))
	defer span.End()

	conf, err := c.handleApply(ctx, token, roundID)
	c.record(ctx, models.ActionApply, start, err)
	if err != nil {
		span.RecordError(err)
	}
	return conf, err
}

func (c *Controller) handleApply(ctx context.Context, token, roundID string) (*Confirmation, error) {
	tok, err := c.lookup(ctx, token, models.ActionApply)
	if err != nil {
		return nil, err
	}
	if tok.RoundID != roundID {
		return nil, apperrors.NewInvalidTokenError(ErrRoundMismatch)
	}

	round, err := c.rounds.Get(ctx, roundID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.NewRoundNotFoundError(roundID, fmt.Errorf("%w: %v", ErrRoundNotFound, err))
		}
		return nil, apperrors.NewDatabaseQueryFailedError("get round", err)
	}

	consumed, err := c.consume(ctx, token, models.ActionApply)
	if err != nil {
		return nil, err
	}

	log := c.logger.WithFields(map[string]interface{}{
		"roundId":     round.ID,
		"caseId":      round.CaseID,
		"franchiseId": consumed.FranchiseID,
	})

	if err := c.rounds.AppendApplicant(ctx, round.ID, consumed.FranchiseName); err != nil {
		// the token is already spent; the click stays recorded on it
		log.Error("failed to append applicant", map[string]interface{}{"error": err})
	}

	req := Request{
		CaseID:        round.CaseID,
		RoundID:       round.ID,
		FranchiseID:   consumed.FranchiseID,
		FranchiseName: consumed.FranchiseName,
		Token:         consumed.Token,
	}
	c.wg.Add(1)
	go c.requestAdmission(context.WithoutCancel(ctx), log, req)

	log.Info("apply recorded", nil)
	return &Confirmation{Page: PageApplied, FranchiseName: consumed.FranchiseName}, nil
}

// HandleInterest consumes an interest token. It touches neither the round
// nor the quota.
func (c *Controller) HandleInterest(ctx context.Context, token string) (*Confirmation, error) {
	start := c.now()
	ctx, span := c.obs.StartSpan(ctx, "admission.interest")
	defer span.End()

	conf, err := c.handleInterest(ctx, token)
	c.record(ctx, models.ActionInterest, start, err)
	if err != nil {
		span.RecordError(err)
	}
	return conf, err
}

func (c *Controller) handleInterest(ctx context.Context, token string) (*Confirmation, error) {
	if _, err := c.lookup(ctx, token, models.ActionInterest); err != nil {
		return nil, err
	}
	consumed, err := c.consume(ctx, token, models.ActionInterest)
	if err != nil {
		return nil, err
	}
	c.logger.Info("interest recorded", map[string]interface{}{
		"roundId":     consumed.RoundID,
		"franchiseId": consumed.FranchiseID,
	})
	return &Confirmation{Page: PageInterested, FranchiseName: consumed.FranchiseName}, nil
}

// GetAppliedFranchises lists franchises that applied in any round of the
// case, one entry per franchise at its first click.
func (c *Controller) GetAppliedFranchises(ctx context.Context, caseID string) ([]models.AppliedFranchise, error) {
	applied, err := c.tokens.ListApplied(ctx, caseID)
	if err != nil {
		return nil, apperrors.NewDatabaseQueryFailedError("list applied", err)
	}

	sort.SliceStable(applied, func(i, j int) bool {
		return applied[i].AppliedAt.Before(applied[j].AppliedAt)
	})
	seen := make(map[string]struct{}, len(applied))
	out := make([]models.AppliedFranchise, 0, len(applied))
	for _, a := range applied {
		if _, dup := seen[a.FranchiseID]; dup {
			continue
		}
		seen[a.FranchiseID] = struct{}{}
		out = append(out, a)
	}
	return out, nil
}

// Wait blocks until background admission requests and alerts have finished.
func (c *Controller) Wait() {
	c.wg.Wait()
}

func (c *Controller) lookup(ctx context.Context, token string, kind models.ActionKind) (*models.ResponseToken, error) {
	tok, err := c.tokens.Get(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.NewInvalidTokenError(fmt.Errorf("%w: %v", ErrTokenNotFound, err))
		}
		return nil, apperrors.NewDatabaseQueryFailedError("get token", err)
	}
	if tok.Action != kind {
		return nil, apperrors.NewInvalidTokenError(ErrWrongAction)
	}
	return tok, nil
}

func (c *Controller) consume(ctx context.Context, token string, kind models.ActionKind) (*models.ResponseToken, error) {
	ok, row, err := c.tokens.TryConsume(ctx, token, models.OutcomeFor(kind), c.now().UTC())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.NewInvalidTokenError(fmt.Errorf("%w: %v", ErrTokenNotFound, err))
		}
		return nil, apperrors.NewDatabaseQueryFailedError("consume token", err)
	}
	if !ok {
		return nil, apperrors.NewTokenAlreadyConsumedError(ErrAlreadyConsumed)
	}
	return row, nil
}

func (c *Controller) requestAdmission(ctx context.Context, log logger.Logger, req Request) {
	defer c.wg.Done()

	alert := admissionAlert(req)
	if c.requester != nil {
		ref, err := c.requester.RequestAdmission(ctx, req)
		if err != nil {
			log.Error("admission workflow not started", map[string]interface{}{"error": err})
			alert.Body += "\n\n※ 承認ワークフローを開始できませんでした。手動で確認してください。"
		} else {
			alert.Body += "\n\n承認ワークフロー: " + ref
		}
	}
	c.notifier.NotifyAdmin(ctx, alert)
}

func admissionAlert(req Request) models.AdminAlert {
	return models.AdminAlert{
		Subject: fmt.Sprintf("【追加配信】%s が案件 %s に申し込みました", req.FranchiseName, req.CaseID),
		Body: fmt.Sprintf("案件ID: %s\n配信ラウンド: %s\n加盟店: %s (%s)\n\n現在の配信数を確認のうえ、配信を確定してください。",
			req.CaseID, req.RoundID, req.FranchiseName, req.FranchiseID),
	}
}

func (c *Controller) record(ctx context.Context, kind models.ActionKind, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = string(apperrors.CodeOf(err))
		fields := map[string]interface{}{"action": string(kind), "code": result}
		if isTokenError(err) {
			c.logger.Info("click rejected", fields)
		} else {
			fields["error"] = err
			c.logger.Error("click failed", fields)
		}
	}
	metrics.AdmissionClicks.WithLabelValues(string(kind), result).Inc()
	c.obs.RecordOperation(ctx, "handle_"+string(kind), result, time.Since(start))
}

func isTokenError(err error) bool {
	switch apperrors.CodeOf(err) {
	case apperrors.ErrCodeInvalidToken, apperrors.ErrCodeTokenAlreadyConsumed, apperrors.ErrCodeRoundNotFound:
		return true
	}
	return false
}
