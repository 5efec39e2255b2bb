package admission

import (
	"context"
	"strconv"
)

// Request carries what an operator needs to confirm one admission.
type Request struct {
	CaseID        string `json:"caseId"`
	RoundID       string `json:"roundId"`
	FranchiseID   string `json:"franchiseId"`
	FranchiseName string `json:"franchiseName"`
	Token         string `json:"token"`
}

func (r Request) variables() map[string]interface{} {
	return map[string]interface{}{
		"caseId":        r.CaseID,
		"roundId":       r.RoundID,
		"franchiseId":   r.FranchiseID,
		"franchiseName": r.FranchiseName,
		"token":         r.Token,
	}
}

// Requester hands an apply click to the human admission step and returns a
// reference operators can look up.
type Requester interface {
	RequestAdmission(ctx context.Context, req Request) (string, error)
}

// ProcessStarter is satisfied by camunda.Client.
type ProcessStarter interface {
	StartProcess(ctx context.Context, processID string, variables map[string]interface{}) (int64, error)
}

// ZeebeRequester starts one admission process instance per apply click.
type ZeebeRequester struct {
	starter   ProcessStarter
	processID string
}

func NewZeebeRequester(starter ProcessStarter, processID string) *ZeebeRequester {
	return &ZeebeRequester{starter: starter, processID: processID}
}

func (z *ZeebeRequester) RequestAdmission(ctx context.Context, req Request) (string, error) {
	key, err := z.starter.StartProcess(ctx, z.processID, req.variables())
	if err != nil {
		return "", err
	}
	return z.processID + "/" + strconv.FormatInt(key, 10), nil
}
