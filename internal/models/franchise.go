// internal/models/franchise.go
package models

type Franchise struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Email        string   `json:"email"`
	Active       bool     `json:"active"`
	ServiceAreas []string `json:"serviceAreas"` // declared municipalities, e.g. "横浜市港北区"
}

// FranchiseRef is the id/name pair returned to operators.
type FranchiseRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
