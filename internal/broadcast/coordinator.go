// Package broadcast offers a case's remaining slots to every eligible
// franchise in its area.
package broadcast

import (
	"context"
	"errors"
	"fmt"
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
	ErrCaseNotFound      = errors.New("CASE_NOT_FOUND")
	ErrAreaUnresolved    = errors.New("AREA_UNRESOLVED")
	ErrNoEligibleTargets = errors.New("NO_ELIGIBLE_TARGETS")
	ErrNoRemainingSlots  = errors.New("NO_REMAINING_SLOTS")
)

type CaseRepository interface {
	Get(ctx context.Context, id string) (*models.Case, error)
}

type DeliveryLedger interface {
	ListByCase(ctx context.Context, caseID string) ([]models.DeliveryRecord, error)
}

type RoundWriter interface {
	Create(ctx context.Context, r *models.BroadcastRound) error
	SetNotifiedCount(ctx context.Context, id string, n int) error
}

type TokenIssuer interface {
	Issue(ctx context.Context, roundID, franchiseID, franchiseName string, kind models.ActionKind) (*models.ResponseToken, error)
}

type Notifier interface {
	Send(ctx context.Context, msg models.Message) error
}

type FeeCalculator interface {
	ComputeFee(c *models.Case, concurrentRecipients int) int
}

type Config struct {
	BaseURL string
	// CapToRemainingSlots limits one round to remainingSlots recipients.
	CapToRemainingSlots bool
}

type Coordinator struct {
	cfg       Config
	cases     CaseRepository
	directory store.Directory
	ledger    DeliveryLedger
	rounds    RoundWriter
	tokens    TokenIssuer
	notifier  Notifier
	fees      FeeCalculator
	obs       *observability.Observability
	logger    logger.Logger
	now       func() time.Time
}

func NewCoordinator(
	cfg Config,
	cases CaseRepository,
	directory store.Directory,
	ledger DeliveryLedger,
	rounds RoundWriter,
	tokens TokenIssuer,
	notifier Notifier,
	fees FeeCalculator,
	obs *observability.Observability,
	log logger.Logger,
) *Coordinator {
	if obs == nil {
		obs = observability.NewNoop()
	}
	return &Coordinator{
		cfg:       cfg,
		cases:     cases,
		directory: directory,
		ledger:    ledger,
		rounds:    rounds,
		tokens:    tokens,
		notifier:  notifier,
		fees:      fees,
		obs:       obs,
		logger:    log.WithFields(map[string]interface{}{"component": "broadcast"}),
		now:       time.Now,
	}
}

// Targets is the eligibility snapshot for one case.
type Targets struct {
	Area             Area
	TotalEligible    int
	Quota            int
	AlreadyDelivered int
	RemainingSlots   int
	Franchises       []models.Franchise

	caseData *models.Case
}

type Preview struct {
	Text           string
	IncludedFields []string
	ExcludedFields []string
}

type SendResult struct {
	RoundID        string
	SentCount      int
	RemainingSlots int
	TotalEligible  int
	Fee            int
}

// GetTargets lists active in-area franchises that do not already hold the case.
func (c *Coordinator) GetTargets(ctx context.Context, caseID string) (*Targets, error) {
	cs, err := c.cases.Get(ctx, caseID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.NewCaseNotFoundError(caseID, fmt.Errorf("%w: %v", ErrCaseNotFound, err))
		}
		return nil, apperrors.NewDatabaseQueryFailedError("get case", err)
	}

	area, ok := ResolveArea(cs)
	if !ok {
		return nil, apperrors.NewAreaUnresolvedError(caseID, ErrAreaUnresolved)
	}

	inArea, err := c.directory.ActiveInArea(ctx, area.Key())
	if err != nil {
		return nil, apperrors.NewDatabaseQueryFailedError("directory lookup", err)
	}

	delivered, err := c.ledger.ListByCase(ctx, caseID)
	if err != nil {
		return nil, apperrors.NewDatabaseQueryFailedError("list deliveries", err)
	}

	holders := make(map[string]struct{}, len(delivered))
	for _, d := range delivered {
		holders[d.FranchiseID] = struct{}{}
	}

	seen := make(map[string]struct{}, len(inArea))
	eligible := make([]models.Franchise, 0, len(inArea))
	for _, f := range inArea {
		if !f.Active {
			continue
		}
		if _, held := holders[f.ID]; held {
			continue
		}
		if _, dup := seen[f.ID]; dup {
			continue
		}
		seen[f.ID] = struct{}{}
		eligible = append(eligible, f)
	}

	quota := cs.EffectiveQuota()
	remaining := quota - len(holders)
	if remaining < 0 {
		remaining = 0
	}

	return &Targets{
		Area:             area,
		TotalEligible:    len(eligible),
		Quota:            quota,
		AlreadyDelivered: len(holders),
		RemainingSlots:   remaining,
		Franchises:       eligible,
		caseData:         cs,
	}, nil
}

// GetPreview renders the redacted summary franchises would receive.
func (c *Coordinator) GetPreview(ctx context.Context, caseID string) (*Preview, error) {
	t, err := c.GetTargets(ctx, caseID)
	if err != nil {
		return nil, err
	}
	return &Preview{
		Text:           c.summarize(t).text(),
		IncludedFields: append([]string(nil), IncludedFields...),
		ExcludedFields: append([]string(nil), ExcludedFields...),
	}, nil
}

func (c *Coordinator) summarize(t *Targets) summary {
	return summary{
		Area:           t.Area,
		PropertyType:   t.caseData.PropertyType,
		Floors:         t.caseData.Floors,
		WorkItems:      t.caseData.WorkItems,
		Fee:            c.fees.ComputeFee(t.caseData, t.RemainingSlots),
		RemainingSlots: t.RemainingSlots,
	}
}

// Send opens a broadcast round: it mints an apply and an interest token per
// target and mails each target once. A failed send is logged and skipped.
// Once the round exists the fan-out ignores cancellation of ctx.
func (c *Coordinator) Send(ctx context.Context, caseID string) (*SendResult, error) {
	start := c.now()
	ctx, span := c.obs.StartSpan(ctx, "broadcast.send", attribute.String("caseId", caseID))
	defer span.End()

	res, err := c.send(ctx, caseID)
	outcome := "ok"
	if err != nil {
		outcome = string(apperrors.CodeOf(err))
		span.RecordError(err)
	}
	c.obs.RecordOperation(ctx, "send", outcome, time.Since(start))
	return res, err
}

func (c *Coordinator) send(ctx context.Context, caseID string) (*SendResult, error) {
	t, err := c.GetTargets(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if t.RemainingSlots <= 0 {
		return nil, apperrors.NewNoRemainingSlotsError(t.Quota, t.AlreadyDelivered, ErrNoRemainingSlots)
	}
	if len(t.Franchises) == 0 {
		return nil, apperrors.NewNoEligibleTargetsError(t.Area.String(), ErrNoEligibleTargets)
	}

	sum := c.summarize(t)
	targets := t.Franchises
	if c.cfg.CapToRemainingSlots && len(targets) > t.RemainingSlots {
		targets = targets[:t.RemainingSlots]
	}

	round := &models.BroadcastRound{
		CaseID:         caseID,
		Quota:          t.Quota,
		DeliveredCount: t.AlreadyDelivered,
		RemainingSlots: t.RemainingSlots,
		Fee:            sum.Fee,
		Status:         models.RoundInProgress,
	}
	if err := c.rounds.Create(ctx, round); err != nil {
		return nil, apperrors.NewDatabaseQueryFailedError("create round", err)
	}
	metrics.BroadcastRounds.Inc()

	log := c.logger.WithFields(map[string]interface{}{"caseId": caseID, "roundId": round.ID})
	fanCtx := context.WithoutCancel(ctx)

	sent := 0
	for _, f := range targets {
		if c.offer(fanCtx, log, round.ID, f, sum) {
			sent++
		}
	}

	if err := c.rounds.SetNotifiedCount(fanCtx, round.ID, sent); err != nil {
		log.Error("failed to record notified count", map[string]interface{}{"sentCount": sent, "error": err})
	}

	log.Info("broadcast round sent", map[string]interface{}{
		"eligible":       t.TotalEligible,
		"offered":        len(targets),
		"sentCount":      sent,
		"remainingSlots": t.RemainingSlots,
		"fee":            sum.Fee,
	})

	return &SendResult{
		RoundID:        round.ID,
		SentCount:      sent,
		RemainingSlots: t.RemainingSlots,
		TotalEligible:  t.TotalEligible,
		Fee:            sum.Fee,
	}, nil
}

// offer mints both tokens for one franchise and sends its message.
func (c *Coordinator) offer(ctx context.Context, log logger.Logger, roundID string, f models.Franchise, sum summary) bool {
	fields := map[string]interface{}{"franchiseId": f.ID}

	apply, err := c.tokens.Issue(ctx, roundID, f.ID, f.Name, models.ActionApply)
	if err != nil {
		fields["error"] = err
		log.Warn("apply token not issued, skipping franchise", fields)
		metrics.BroadcastMessages.WithLabelValues("token_failed").Inc()
		return false
	}
	metrics.BroadcastTokensIssued.WithLabelValues(string(models.ActionApply)).Inc()

	interest, err := c.tokens.Issue(ctx, roundID, f.ID, f.Name, models.ActionInterest)
	if err != nil {
		fields["error"] = err
		log.Warn("interest token not issued, skipping franchise", fields)
		metrics.BroadcastMessages.WithLabelValues("token_failed").Inc()
		return false
	}
	metrics.BroadcastTokensIssued.WithLabelValues(string(models.ActionInterest)).Inc()

	msg := composeOffer(c.cfg.BaseURL, f, sum, roundID, apply.Token, interest.Token)
	if err := c.notifier.Send(ctx, msg); err != nil {
		fields["error"] = err
		log.Warn("offer not delivered, skipping franchise", fields)
		metrics.BroadcastMessages.WithLabelValues("failed").Inc()
		return false
	}
	metrics.BroadcastMessages.WithLabelValues("sent").Inc()
	return true
}
