package common

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// PrintBoxSeparator prints a box-drawing separator line (for sub-sections)
func PrintBoxSeparator(width int) {
	fmt.Println("├" + strings.Repeat("─", width))
}

// BoxPrefix returns the appropriate box-drawing prefix for list items
func BoxPrefix(isLast bool) string {
	if isLast {
		return "└  "
	}
	return "│  "
}

// FormatAmount renders a balance for console output, trimming trailing
// zeros: "1.50000000" becomes "1.5 SOLANA".
func FormatAmount(amount decimal.Decimal, symbol string) string {
	return fmt.Sprintf("%s %s", amount.String(), symbol)
}
