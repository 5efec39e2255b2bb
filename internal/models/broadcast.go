// internal/models/broadcast.go
package models

import "time"

type ActionKind string

const (
	ActionApply    ActionKind = "apply"
	ActionInterest ActionKind = "interest"
)

type Outcome string

const (
	OutcomeApplied  Outcome = "applied"
	OutcomeNotified Outcome = "notified"
)

// OutcomeFor maps an action kind to the outcome recorded on click.
func OutcomeFor(kind ActionKind) Outcome {
	if kind == ActionApply {
		return OutcomeApplied
	}
	return OutcomeNotified
}

type RoundStatus string

const (
	RoundInProgress RoundStatus = "in_progress"
	RoundClosed     RoundStatus = "closed"
)

// BroadcastRound is one fan-out of a case's remaining slots.
type BroadcastRound struct {
	ID             string      `json:"broadcastId"`
	CaseID         string      `json:"caseId"`
	CreatedAt      time.Time   `json:"createdAt"`
	NotifiedCount  int         `json:"notifiedCount"`
	Quota          int         `json:"quota"`
	DeliveredCount int         `json:"deliveredCount"`
	RemainingSlots int         `json:"remainingSlots"`
	Fee            int         `json:"fee"`
	Applicants     []string    `json:"applicants"`
	Status         RoundStatus `json:"status"`
}

// ResponseToken is a single-use click-through for one (round, franchise, action).
type ResponseToken struct {
	Token         string     `json:"token"`
	RoundID       string     `json:"roundId"`
	FranchiseID   string     `json:"franchiseId"`
	FranchiseName string     `json:"franchiseName"`
	Action        ActionKind `json:"action"`
	CreatedAt     time.Time  `json:"createdAt"`
	ClickedAt     *time.Time `json:"clickedAt,omitempty"`
	Outcome       *Outcome   `json:"outcome,omitempty"`
	Consumed      bool       `json:"consumed"`
}

// AppliedFranchise is one "already applied" entry for a case.
type AppliedFranchise struct {
	FranchiseID   string    `json:"franchiseId"`
	FranchiseName string    `json:"franchiseName"`
	AppliedAt     time.Time `json:"appliedAt"`
}
