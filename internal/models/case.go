// internal/models/case.go
package models

// PropertyType is the single property-type choice on a case.
type PropertyType string

const (
	PropertyDetachedHouse PropertyType = "戸建て住宅"
	PropertyApartment     PropertyType = "アパート・マンション"
	PropertyShopOffice    PropertyType = "店舗・事務所"
	PropertyFactory       PropertyType = "工場・倉庫"
	PropertyOther         PropertyType = "その他"
)

// DefaultQuota is the number of franchises a case may be delivered to when
// the case row carries no explicit quota.
const DefaultQuota = 4

// Case is a customer lead as seen by the broadcast core. Address is the
// free-text street address and must never be shown to franchises.
type Case struct {
	ID           string       `json:"id"`
	Province     string       `json:"province"`
	Municipality string       `json:"municipality"`
	Address      string       `json:"-"`
	PropertyType PropertyType `json:"propertyType"`
	Floors       int          `json:"floors"`
	WorkItems    []string     `json:"workItems"`
	Quota        int          `json:"quota"`
}

// EffectiveQuota returns the case quota, falling back to DefaultQuota.
func (c *Case) EffectiveQuota() int {
	if c.Quota <= 0 {
		return DefaultQuota
	}
	return c.Quota
}
