// internal/models/delivery.go
package models

import "time"

// DeliveryRecord marks that a franchise holds a case.
type DeliveryRecord struct {
	CaseID      string    `json:"caseId"`
	FranchiseID string    `json:"franchiseId"`
	Source      string    `json:"source"` // "targeted" or "broadcast"
	DeliveredAt time.Time `json:"deliveredAt"`
}
