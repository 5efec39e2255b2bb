package recorddelivery

// Input is the process instance state after the operator's approval task.
type Input struct {
	CaseID        string `json:"caseId"`
	RoundID       string `json:"roundId"`
	FranchiseID   string `json:"franchiseId"`
	FranchiseName string `json:"franchiseName"`
	Token         string `json:"token"`
	Approved      *bool  `json:"approved"`
}

type Output struct {
	AdmissionResult string `json:"admissionResult"` // admitted | already_delivered | rejected
	DeliveredCount  int    `json:"deliveredCount"`
	Quota           int    `json:"quota"`
}
