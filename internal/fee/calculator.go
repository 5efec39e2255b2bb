// Package fee prices a broadcast offer from case attributes and slot scarcity.
package fee

import (
	"kuraberu-broadcast/internal/common/config"
	"kuraberu-broadcast/internal/models"
)

const (
	DefaultSingleRecipient = 20000
	DefaultStandard        = 20000
	DefaultHighRise        = 30000
)

// Kind classifies a requested work item.
type Kind int

const (
	KindFullJob Kind = iota
	KindAddOn
)

type tier struct {
	kind  Kind
	price int // 0 means "standard rate"
}

// workItems is the static classification table. Full jobs price at the
// standard multi-recipient rate; add-on-only items carry their own tier.
var workItems = map[string]tier{
	"外壁塗装":        {kind: KindFullJob},
	"屋根塗装":        {kind: KindFullJob},
	"外壁・屋根塗装":     {kind: KindFullJob},
	"外壁張替え":       {kind: KindFullJob},
	"屋根葺き替え・張り替え": {kind: KindFullJob},
	"屋根カバー工法":     {kind: KindFullJob},
	"外壁カバー工法":     {kind: KindFullJob},

	"屋根補修単品":      {kind: KindAddOn, price: 10000},
	"ベランダ防水単品":    {kind: KindAddOn, price: 10000},
	"屋上防水単品":      {kind: KindAddOn, price: 10000},
	"外壁補修単品":      {kind: KindAddOn, price: 5000},
	"雨樋修理単品":      {kind: KindAddOn, price: 5000},
	"シーリング打ち替え単品": {kind: KindAddOn, price: 5000},
	"付帯部塗装単品":     {kind: KindAddOn, price: 3000},
	"破風板補修単品":     {kind: KindAddOn, price: 3000},
}

// Classify reports the kind of a work item. Unknown items count as full jobs.
func Classify(item string) Kind {
	if t, ok := workItems[item]; ok {
		return t.kind
	}
	return KindFullJob
}

// Calculator computes referral fees. It holds no state beyond its rate table.
type Calculator struct {
	singleRecipient int
	standard        int
	highRise        int
}

// NewCalculator applies non-zero overrides from cfg on top of the default rates.
func NewCalculator(cfg config.FeeTableConfig) *Calculator {
	c := &Calculator{
		singleRecipient: DefaultSingleRecipient,
		standard:        DefaultStandard,
		highRise:        DefaultHighRise,
	}
	if cfg.SingleRecipient > 0 {
		c.singleRecipient = cfg.SingleRecipient
	}
	if cfg.Standard > 0 {
		c.standard = cfg.Standard
	}
	if cfg.HighRise > 0 {
		c.highRise = cfg.HighRise
	}
	return c
}

// ComputeFee returns the fee charged to each of concurrentRecipients franchises.
//
// A lone recipient always pays the flat single-recipient fee. Otherwise a
// building of three or more floors that is not a detached house pays the
// high-rise rate, unless every requested item is add-on-only. Everything else
// pays the highest tier among the requested items.
func (c *Calculator) ComputeFee(cs *models.Case, concurrentRecipients int) int {
	if concurrentRecipients == 1 {
		return c.singleRecipient
	}

	allAddOn := len(cs.WorkItems) > 0
	highest := 0
	for _, item := range cs.WorkItems {
		price := c.standard
		if t, ok := workItems[item]; ok && t.kind == KindAddOn {
			price = t.price
		} else {
			allAddOn = false
		}
		if price > highest {
			highest = price
		}
	}

	if !allAddOn && cs.Floors >= 3 && cs.PropertyType != models.PropertyDetachedHouse {
		return c.highRise
	}
	if highest == 0 {
		return c.standard
	}
	return highest
}
