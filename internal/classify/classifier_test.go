package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/marginlens/reconciler/internal/domain"
)

func TestClassifyHeuristics(t *testing.T) {
	cases := []struct {
		name string
		want domain.FeeGroup
	}{
		{"Sale commission", domain.GroupCommission},
		{"Вознаграждение за продажу", domain.GroupCommission},
		{"Logistics last mile", domain.GroupDelivery},
		{"Доставка до покупателя", domain.GroupDelivery},
		{"Acquiring operation", domain.GroupAcquiring},
		{"Эквайринг", domain.GroupAcquiring},
		{"CPC клики", domain.GroupAdvertising},
		{"Продвижение в поиске", domain.GroupAdvertising},
		{"Storage services", domain.GroupOther},
		{"", domain.GroupOther},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, Classify(tc.name), "name %q", tc.name)
	}
}

func TestClassifyPriorityOrder(t *testing.T) {
	// Commission tokens are checked before delivery tokens: a description
	// carrying both always classifies as commission.
	assert.Equal(t, domain.GroupCommission, Classify("Commission for delivery service"))
	assert.Equal(t, domain.GroupCommission, Classify("Комиссия за доставку"))

	// Delivery beats acquiring, acquiring beats advertising.
	assert.Equal(t, domain.GroupDelivery, Classify("logistic acquiring fee"))
	assert.Equal(t, domain.GroupAcquiring, Classify("acquiring cpc"))
}

func TestClassifyOverridesWin(t *testing.T) {
	// Override codes resolve regardless of what the heuristics would say.
	assert.Equal(t, domain.GroupSales, Classify("OperationAgentDeliveredToCustomer"))
	assert.Equal(t, domain.GroupAcquiring, Classify("MarketplaceRedistributionOfAcquiringOperation"))
	assert.Equal(t, domain.GroupDelivery, Classify("MarketplaceServiceItemDirectFlowLogistic"))

	// Overrides are case-sensitive machine codes.
	assert.Equal(t, domain.GroupOther, Classify("operationagentdeliveredtocustomer"))
}

func TestNormalizeFeeName(t *testing.T) {
	assert.Equal(t, "Logistics (delivery)", NormalizeFeeName("MarketplaceServiceItemDirectFlowLogistic"))
	assert.Equal(t, "Last mile (courier)", NormalizeFeeName("MarketplaceServiceItemRedistributionLastMileCourier"))
	assert.Equal(t, "Acquiring", NormalizeFeeName("MarketplaceRedistributionOfAcquiringOperation"))
	assert.Equal(t, "Some custom charge", NormalizeFeeName("Some custom charge"))
	assert.Equal(t, "UNKNOWN", NormalizeFeeName(""))
}
