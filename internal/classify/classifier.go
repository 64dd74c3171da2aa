// Package classify buckets raw upstream charge descriptions into the fixed
// fee-group taxonomy. Classification is two-stage: an exact-match override
// table for known operation codes, then ordered substring heuristics.
package classify

import (
	"strings"

	"github.com/marginlens/reconciler/internal/domain"
)

// overrides maps known raw operation/service codes to a group directly.
// Case-sensitive on purpose: these are machine codes, not descriptions.
// The sales group is only reachable through this table.
var overrides = map[string]domain.FeeGroup{
	"OperationAgentDeliveredToCustomer":                   domain.GroupSales,
	"MarketplaceRedistributionOfAcquiringOperation":       domain.GroupAcquiring,
	"MarketplaceServiceItemDirectFlowLogistic":            domain.GroupDelivery,
	"MarketplaceServiceItemReturnFlowLogistic":            domain.GroupDelivery,
	"MarketplaceServiceItemRedistributionLastMileCourier": domain.GroupDelivery,
	"MarketplaceSaleCommission":                           domain.GroupCommission,
}

// rule is one substring heuristic. Rules run in slice order and the first
// match wins, so a name carrying both commission and delivery tokens always
// classifies as commission. Reordering would silently reclassify history.
type rule struct {
	tokens []string
	group  domain.FeeGroup
}

var rules = []rule{
	{
		tokens: []string{"вознаграж", "комисс", "commission"},
		group:  domain.GroupCommission,
	},
	{
		tokens: []string{"logistic", "логист", "достав", "last mile", "courier"},
		group:  domain.GroupDelivery,
	},
	{
		tokens: []string{"эквайр", "acquiring"},
		group:  domain.GroupAcquiring,
	},
	{
		tokens: []string{"клик", "cpc", "cpo", "реклам", "продвиж", "promotion"},
		group:  domain.GroupAdvertising,
	},
}

// Classify maps a raw charge description to its fee group.
func Classify(rawName string) domain.FeeGroup {
	if g, ok := overrides[rawName]; ok {
		return g
	}

	s := strings.ToLower(rawName)
	for _, r := range rules {
		for _, tok := range r.tokens {
			if strings.Contains(s, tok) {
				return r.group
			}
		}
	}
	return domain.GroupOther
}

// feeNames renames known upstream service codes to something a human can
// read in a report. Unknown names pass through untouched.
var feeNames = map[string]string{
	"MarketplaceServiceItemDirectFlowLogistic":            "Logistics (delivery)",
	"MarketplaceServiceItemReturnFlowLogistic":            "Logistics (return)",
	"MarketplaceServiceItemRedistributionLastMileCourier": "Last mile (courier)",
	"MarketplaceRedistributionOfAcquiringOperation":       "Acquiring",
	"OperationAgentDeliveredToCustomer":                   "Delivered to customer",
}

// NormalizeFeeName applies the exact-match rename table.
func NormalizeFeeName(raw string) string {
	if raw == "" {
		return "UNKNOWN"
	}
	if name, ok := feeNames[raw]; ok {
		return name
	}
	return raw
}
