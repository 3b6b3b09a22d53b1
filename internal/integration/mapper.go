package integration

import (
	"github.com/odyssey-erp/odyssey-resort/internal/billing"
	"github.com/odyssey-erp/odyssey-resort/internal/ledger"
)

// RevenueRole maps an invoice revenue category to the ledger role credited.
func RevenueRole(category billing.RevenueCategory) ledger.Role {
	switch category {
	case billing.RevenueDining:
		return ledger.RoleDiningRevenue
	case billing.RevenueRecreation:
		return ledger.RoleRecreationRevenue
	default:
		return ledger.RoleDefaultRevenue
	}
}
