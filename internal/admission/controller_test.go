package admission

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	apperrors "kuraberu-broadcast/internal/common/errors"
	"kuraberu-broadcast/internal/common/logger"
	"kuraberu-broadcast/internal/models"
	"kuraberu-broadcast/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Fakes
// ==========================

type memTokens struct {
	mu     sync.Mutex
	tokens map[string]*models.ResponseToken
	rounds map[string]string // roundID -> caseID
}

func (m *memTokens) Get(_ context.Context, token string) (*models.ResponseToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[token]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memTokens) TryConsume(_ context.Context, token string, outcome models.Outcome, at time.Time) (bool, *models.ResponseToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[token]
	if !ok {
		return false, nil, store.ErrNotFound
	}
	if t.Consumed {
		cp := *t
		return false, &cp, nil
	}
	t.Consumed = true
	t.ClickedAt = &at
	t.Outcome = &outcome
	cp := *t
	return true, &cp, nil
}

func (m *memTokens) ListApplied(_ context.Context, caseID string) ([]models.AppliedFranchise, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AppliedFranchise
	for _, t := range m.tokens {
		if m.rounds[t.RoundID] != caseID || t.Action != models.ActionApply || t.Outcome == nil || *t.Outcome != models.OutcomeApplied {
			continue
		}
		out = append(out, models.AppliedFranchise{FranchiseID: t.FranchiseID, FranchiseName: t.FranchiseName, AppliedAt: *t.ClickedAt})
	}
	return out, nil
}

type memRounds struct {
	mu     sync.Mutex
	rounds map[string]*models.BroadcastRound
}

func (m *memRounds) Get(_ context.Context, id string) (*models.BroadcastRound, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rounds[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memRounds) AppendApplicant(_ context.Context, id, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rounds[id]
	if !ok {
		return store.ErrNotFound
	}
	r.Applicants = append(r.Applicants, name)
	return nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []models.AdminAlert
}

func (n *recordingNotifier) NotifyAdmin(_ context.Context, alert models.AdminAlert) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, alert)
}

type recordingRequester struct {
	mu       sync.Mutex
	requests []Request
	err      error
}

func (r *recordingRequester) RequestAdmission(_ context.Context, req Request) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)
	if r.err != nil {
		return "", r.err
	}
	return "franchise-admission/42", nil
}

// ==========================
// Helpers
// ==========================

type harness struct {
	tokens    *memTokens
	rounds    *memRounds
	notifier  *recordingNotifier
	requester *recordingRequester
	ctrl      *Controller
}

func newHarness(t *testing.T) *harness {
	h := &harness{
		tokens: &memTokens{
			tokens: map[string]*models.ResponseToken{
				"apply-1":    {Token: "apply-1", RoundID: "R1", FranchiseID: "F1", FranchiseName: "山田塗装", Action: models.ActionApply},
				"interest-1": {Token: "interest-1", RoundID: "R1", FranchiseID: "F1", FranchiseName: "山田塗装", Action: models.ActionInterest},
				"apply-2":    {Token: "apply-2", RoundID: "R1", FranchiseID: "F2", FranchiseName: "佐藤建装", Action: models.ActionApply},
				"apply-3":    {Token: "apply-3", RoundID: "R2", FranchiseID: "F1", FranchiseName: "山田塗装", Action: models.ActionApply},
				"orphan":     {Token: "orphan", RoundID: "R9", FranchiseID: "F3", FranchiseName: "鈴木工務店", Action: models.ActionApply},
			},
			rounds: map[string]string{"R1": "C100", "R2": "C100"},
		},
		rounds: &memRounds{rounds: map[string]*models.BroadcastRound{
			"R1": {ID: "R1", CaseID: "C100", Status: models.RoundInProgress},
			"R2": {ID: "R2", CaseID: "C100", Status: models.RoundClosed},
		}},
		notifier:  &recordingNotifier{},
		requester: &recordingRequester{},
	}
	h.ctrl = NewController(h.tokens, h.rounds, h.notifier, h.requester, nil, logger.NewTestLogger(t))
	return h
}

// ==========================
// HandleApply
// ==========================

func TestHandleApply_RecordsAndRequestsAdmission(t *testing.T) {
	h := newHarness(t)

	conf, err := h.ctrl.HandleApply(context.Background(), "apply-1", "R1")
	require.NoError(t, err)
	h.ctrl.Wait()

	assert.Equal(t, PageApplied, conf.Page)
	assert.Equal(t, []string{"山田塗装"}, h.rounds.rounds["R1"].Applicants)

	tok := h.tokens.tokens["apply-1"]
	assert.True(t, tok.Consumed)
	require.NotNil(t, tok.Outcome)
	assert.Equal(t, models.OutcomeApplied, *tok.Outcome)
	assert.NotNil(t, tok.ClickedAt)

	require.Len(t, h.requester.requests, 1)
	assert.Equal(t, Request{CaseID: "C100", RoundID: "R1", FranchiseID: "F1", FranchiseName: "山田塗装", Token: "apply-1"}, h.requester.requests[0])

	require.Len(t, h.notifier.alerts, 1)
	assert.Contains(t, h.notifier.alerts[0].Subject, "山田塗装")
	assert.Contains(t, h.notifier.alerts[0].Body, "franchise-admission/42")
}

func TestHandleApply_SecondClickHasNoSideEffects(t *testing.T) {
	h := newHarness(t)

	_, err := h.ctrl.HandleApply(context.Background(), "apply-1", "R1")
	require.NoError(t, err)

	_, err = h.ctrl.HandleApply(context.Background(), "apply-1", "R1")
	require.Error(t, err)
	h.ctrl.Wait()

	assert.True(t, errors.Is(err, ErrAlreadyConsumed))
	assert.Equal(t, PageAlreadyUsed, PageFor(err))
	assert.Len(t, h.rounds.rounds["R1"].Applicants, 1)
	assert.Len(t, h.notifier.alerts, 1)
	assert.Len(t, h.requester.requests, 1)
}

func TestHandleApply_ConcurrentClicksConsumeOnce(t *testing.T) {
	h := newHarness(t)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.ctrl.HandleApply(context.Background(), "apply-2", "R1"); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	h.ctrl.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, []string{"佐藤建装"}, h.rounds.rounds["R1"].Applicants)
	assert.Len(t, h.notifier.alerts, 1)
}

func TestHandleApply_InvalidLinks(t *testing.T) {
	tests := []struct {
		name     string
		token    string
		roundID  string
		sentinel error
		code     apperrors.ErrorCode
	}{
		{"unknown token", "nope", "R1", ErrTokenNotFound, apperrors.ErrCodeInvalidToken},
		{"interest token on apply link", "interest-1", "R1", ErrWrongAction, apperrors.ErrCodeInvalidToken},
		{"round id tampered", "apply-1", "R2", ErrRoundMismatch, apperrors.ErrCodeInvalidToken},
		{"round gone", "orphan", "R9", ErrRoundNotFound, apperrors.ErrCodeRoundNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)

			_, err := h.ctrl.HandleApply(context.Background(), tt.token, tt.roundID)
			require.Error(t, err)
			h.ctrl.Wait()

			assert.True(t, errors.Is(err, tt.sentinel))
			assert.Equal(t, tt.code, apperrors.CodeOf(err))
			assert.Equal(t, PageInvalid, PageFor(err))
			assert.Empty(t, h.notifier.alerts)
			if tok, ok := h.tokens.tokens[tt.token]; ok {
				assert.False(t, tok.Consumed)
			}
		})
	}
}

func TestHandleApply_ClosedRoundStillAccepted(t *testing.T) {
	h := newHarness(t)

	conf, err := h.ctrl.HandleApply(context.Background(), "apply-3", "R2")
	require.NoError(t, err)
	h.ctrl.Wait()
	assert.Equal(t, PageApplied, conf.Page)
}

func TestHandleApply_WorkflowFailureStillAlerts(t *testing.T) {
	h := newHarness(t)
	h.requester.err = apperrors.NewWorkflowStartFailedError("franchise-admission", errors.New("unavailable"))

	_, err := h.ctrl.HandleApply(context.Background(), "apply-1", "R1")
	require.NoError(t, err)
	h.ctrl.Wait()

	require.Len(t, h.notifier.alerts, 1)
	assert.Contains(t, h.notifier.alerts[0].Body, "手動で確認してください")
}

func TestHandleApply_WithoutRequester(t *testing.T) {
	h := newHarness(t)
	ctrl := NewController(h.tokens, h.rounds, h.notifier, nil, nil, logger.NewNoOpLogger())

	_, err := ctrl.HandleApply(context.Background(), "apply-1", "R1")
	require.NoError(t, err)
	ctrl.Wait()
	assert.Len(t, h.notifier.alerts, 1)
}

// ==========================
// HandleInterest
// ==========================

func TestHandleInterest(t *testing.T) {
	h := newHarness(t)

	conf, err := h.ctrl.HandleInterest(context.Background(), "interest-1")
	require.NoError(t, err)
	h.ctrl.Wait()

	assert.Equal(t, PageInterested, conf.Page)
	tok := h.tokens.tokens["interest-1"]
	require.NotNil(t, tok.Outcome)
	assert.Equal(t, models.OutcomeNotified, *tok.Outcome)
	assert.Empty(t, h.rounds.rounds["R1"].Applicants)
	assert.Empty(t, h.notifier.alerts)
	assert.Empty(t, h.requester.requests)

	_, err = h.ctrl.HandleInterest(context.Background(), "interest-1")
	assert.Equal(t, apperrors.ErrCodeTokenAlreadyConsumed, apperrors.CodeOf(err))

	_, err = h.ctrl.HandleInterest(context.Background(), "apply-1")
	assert.True(t, errors.Is(err, ErrWrongAction))
	assert.False(t, h.tokens.tokens["apply-1"].Consumed)
}

// ==========================
// GetAppliedFranchises
// ==========================

func TestGetAppliedFranchises_OnePerFranchise(t *testing.T) {
	h := newHarness(t)
	base := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	clock := base
	h.ctrl.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}

	for _, c := range []struct{ token, round string }{
		{"apply-1", "R1"},
		{"apply-2", "R1"},
		{"apply-3", "R2"},
	} {
		_, err := h.ctrl.HandleApply(context.Background(), c.token, c.round)
		require.NoError(t, err)
	}
	_, err := h.ctrl.HandleInterest(context.Background(), "interest-1")
	require.NoError(t, err)
	h.ctrl.Wait()

	applied, err := h.ctrl.GetAppliedFranchises(context.Background(), "C100")
	require.NoError(t, err)
	require.Len(t, applied, 2)
	assert.Equal(t, "F1", applied[0].FranchiseID)
	assert.Equal(t, "F2", applied[1].FranchiseID)
	assert.True(t, applied[0].AppliedAt.Before(applied[1].AppliedAt))

	none, err := h.ctrl.GetAppliedFranchises(context.Background(), "C999")
	require.NoError(t, err)
	assert.Empty(t, none)
}

// ==========================
// Pages
// ==========================

func TestRender(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, PageFor(apperrors.NewDatabaseQueryFailedError("consume token", errors.New("pq: password authentication failed")))))

	html := buf.String()
	assert.Contains(t, html, "ただいま処理できません")
	assert.NotContains(t, html, "pq:")
	assert.Contains(t, html, `<html lang="ja">`)
}

func TestZeebeRequester(t *testing.T) {
	starter := &fakeStarter{key: 2251799813685249}
	r := NewZeebeRequester(starter, "franchise-admission")

	ref, err := r.RequestAdmission(context.Background(), Request{CaseID: "C1", RoundID: "R1", FranchiseID: "F1", FranchiseName: "山田塗装", Token: "t"})
	require.NoError(t, err)

	assert.Equal(t, "franchise-admission/2251799813685249", ref)
	assert.Equal(t, "franchise-admission", starter.processID)
	assert.Equal(t, "C1", starter.vars["caseId"])
	assert.Equal(t, "山田塗装", starter.vars["franchiseName"])
	assert.Len(t, starter.vars, 5)
}

type fakeStarter struct {
	key       int64
	processID string
	vars      map[string]interface{}
}

func (f *fakeStarter) StartProcess(_ context.Context, processID string, vars map[string]interface{}) (int64, error) {
	f.processID = processID
	f.vars = vars
	return f.key, nil
}
