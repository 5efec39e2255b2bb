package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"kuraberu-broadcast/internal/admission"
	"kuraberu-broadcast/internal/broadcast"
	apperrors "kuraberu-broadcast/internal/common/errors"
	"kuraberu-broadcast/internal/models"
	"kuraberu-broadcast/internal/store"
)

// actionTable maps every action name to its handler. It is built once.
func (s *Server) actionTable() map[string]handler {
	return map[string]handler{
		"getBroadcastTargets":    {serve: s.getBroadcastTargets, fail: failJSON},
		"getBroadcastPreview":    {serve: s.getBroadcastPreview, fail: failJSON},
		"sendBroadcast":          {serve: s.sendBroadcast, fail: failJSON},
		"getAppliedFranchises":   {serve: s.getAppliedFranchises, fail: failJSON},
		"getBroadcastRounds":     {serve: s.getBroadcastRounds, fail: failJSON},
		"exportBroadcastRound":   {serve: s.exportBroadcastRound, fail: failJSON},
		broadcast.ActionApply:    {serve: s.broadcastApply, fail: failPage},
		broadcast.ActionInterest: {serve: s.broadcastInterest, fail: failPage},
	}
}

func failJSON(w http.ResponseWriter, p params, err error) {
	writeError(w, p, err)
}

func failPage(w http.ResponseWriter, _ params, err error) {
	writePage(w, admission.PageFor(err))
}

func writePage(w http.ResponseWriter, page admission.Page) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_ = admission.Render(w, page)
}

func (s *Server) getBroadcastTargets(w http.ResponseWriter, r *http.Request, p params) error {
	t, err := s.deps.Broadcast.GetTargets(r.Context(), p.str("caseId"))
	if err != nil {
		return err
	}
	franchises := make([]models.FranchiseRef, 0, len(t.Franchises))
	for _, f := range t.Franchises {
		franchises = append(franchises, models.FranchiseRef{ID: f.ID, Name: f.Name})
	}
	writeJSON(w, p, map[string]interface{}{
		"success":        true,
		"area":           t.Area.String(),
		"totalTargets":   t.TotalEligible,
		"maxCompanies":   t.Quota,
		"deliveredCount": t.AlreadyDelivered,
		"remainingSlots": t.RemainingSlots,
		"franchises":     franchises,
	})
	return nil
}

func (s *Server) getBroadcastPreview(w http.ResponseWriter, r *http.Request, p params) error {
	preview, err := s.deps.Broadcast.GetPreview(r.Context(), p.str("caseId"))
	if err != nil {
		return err
	}
	writeJSON(w, p, map[string]interface{}{
		"success":      true,
		"preview":      preview.Text,
		"includedInfo": preview.IncludedFields,
		"excludedInfo": preview.ExcludedFields,
	})
	return nil
}

func (s *Server) sendBroadcast(w http.ResponseWriter, r *http.Request, p params) error {
	res, err := s.deps.Broadcast.Send(r.Context(), p.str("caseId"))
	if err != nil {
		return err
	}
	writeJSON(w, p, map[string]interface{}{
		"success":        true,
		"broadcastId":    res.RoundID,
		"sentCount":      res.SentCount,
		"remainingSlots": res.RemainingSlots,
		"message":        sendMessage(res),
	})
	return nil
}

func sendMessage(res *broadcast.SendResult) string {
	msg := fmt.Sprintf("%d社に一斉配信しました（残り枠: %d社）", res.SentCount, res.RemainingSlots)
	if res.TotalEligible > res.SentCount {
		msg += fmt.Sprintf("。対象%d社のうち%d社には送信していません", res.TotalEligible, res.TotalEligible-res.SentCount)
	}
	return msg
}

func (s *Server) getAppliedFranchises(w http.ResponseWriter, r *http.Request, p params) error {
	applied, err := s.deps.Admission.GetAppliedFranchises(r.Context(), p.str("caseId"))
	if err != nil {
		return err
	}
	if applied == nil {
		applied = []models.AppliedFranchise{}
	}
	writeJSON(w, p, map[string]interface{}{
		"success":           true,
		"appliedFranchises": applied,
	})
	return nil
}

type roundView struct {
	BroadcastID    string   `json:"broadcastId"`
	CreatedAt      string   `json:"createdAt"`
	NotifiedCount  int      `json:"notifiedCount"`
	RemainingSlots int      `json:"remainingSlots"`
	Applicants     []string `json:"applicants"`
	Status         string   `json:"status"`
}

func (s *Server) getBroadcastRounds(w http.ResponseWriter, r *http.Request, p params) error {
	rounds, err := s.deps.Rounds.ListByCase(r.Context(), p.str("caseId"))
	if err != nil {
		return apperrors.NewDatabaseQueryFailedError("list rounds", err)
	}
	views := make([]roundView, 0, len(rounds))
	for _, rd := range rounds {
		applicants := rd.Applicants
		if applicants == nil {
			applicants = []string{}
		}
		views = append(views, roundView{
			BroadcastID:    rd.ID,
			CreatedAt:      rd.CreatedAt.UTC().Format(time.RFC3339),
			NotifiedCount:  rd.NotifiedCount,
			RemainingSlots: rd.RemainingSlots,
			Applicants:     applicants,
			Status:         string(rd.Status),
		})
	}
	writeJSON(w, p, map[string]interface{}{
		"success": true,
		"rounds":  views,
	})
	return nil
}

func (s *Server) exportBroadcastRound(w http.ResponseWriter, r *http.Request, p params) error {
	roundID := p.str("roundId")
	round, err := s.deps.Rounds.Get(r.Context(), roundID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperrors.NewRoundNotFoundError(roundID, err)
		}
		return apperrors.NewDatabaseQueryFailedError("get round", err)
	}
	tokens, err := s.deps.Tokens.ListByRound(r.Context(), roundID)
	if err != nil {
		return apperrors.NewDatabaseQueryFailedError("list tokens", err)
	}

	data, err := roundWorkbook(round, tokens)
	if err != nil {
		return apperrors.NewInternalError(err)
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=broadcast-round-%s.xlsx", round.ID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
	return nil
}

func (s *Server) broadcastApply(w http.ResponseWriter, r *http.Request, p params) error {
	conf, err := s.deps.Admission.HandleApply(r.Context(), p.str("token"), p.str("roundId"))
	if err != nil {
		return err
	}
	writePage(w, conf.Page)
	return nil
}

func (s *Server) broadcastInterest(w http.ResponseWriter, r *http.Request, p params) error {
	conf, err := s.deps.Admission.HandleInterest(r.Context(), p.str("token"))
	if err != nil {
		return err
	}
	writePage(w, conf.Page)
	return nil
}
