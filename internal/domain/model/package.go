package model

import "strings"

// PackageDescriptor is the package metadata the storefront sends at checkout.
// It travels inside the transaction's raw context so the callback reconciler
// can resolve subscription duration without another lookup.
type PackageDescriptor struct {
	ID          string  `json:"id"` // e.g. STANDARD_1M, PRO_3M
	Code        string  `json:"code"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
}

// DurationMonths resolves subscription duration from a package identifier:
// ids containing "3M" grant three months, everything else one. Every site
// that needs the month count calls this, there is no second copy of the rule.
func DurationMonths(packageID string) int {
	if strings.Contains(packageID, "3M") {
		return 3
	}
	return 1
}
