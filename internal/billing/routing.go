package billing

import (
	"strings"

	"github.com/google/uuid"
)

// CategorizeRevenue derives the revenue category from an item description.
func CategorizeRevenue(description string) RevenueCategory {
	switch {
	case strings.Contains(description, "Order"):
		return RevenueDining
	case strings.Contains(description, "Pass"),
		strings.Contains(description, "Pool"),
		strings.Contains(description, "Beach"):
		return RevenueRecreation
	default:
		return RevenueGeneral
	}
}

// Invoice number prefixes and the length of their random suffix.
const (
	orderPrefix   = "INV-"
	bookingPrefix = "INV-ROOM-"
	passPrefix    = "INV-REC-"
)

func invoiceNumber(prefix string, n int) string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return prefix + strings.ToUpper(hex[:n])
}

func suffixLen(prefix string) int {
	if prefix == orderPrefix {
		return 8
	}
	return 6
}
