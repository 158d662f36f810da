package intel

import (
	"fmt"
	"strings"

	"threatScope/internal/model"
)

var threatClasses = []string{
	"rug pull",
	"flash loan attack",
	"MEV (maximal extractable value) extraction",
	"suspicious contract interaction",
	"liquidity drain",
	"front-running",
}

// BuildPrompt describes tx and the threat classes of interest.
func BuildPrompt(tx model.Transaction) string {
	to := tx.Recipient()
	if to == "" {
		to = "none (contract creation)"
	}

	var b strings.Builder
	b.WriteString("Analyze this Ethereum transaction for security threats.\n\n")
	fmt.Fprintf(&b, "Transaction hash: %s\n", tx.Hash)
	fmt.Fprintf(&b, "Block: %d\n", tx.BlockNumber)
	fmt.Fprintf(&b, "From: %s\n", tx.From.Hex())
	fmt.Fprintf(&b, "To: %s\n", to)
	fmt.Fprintf(&b, "Value: %s ETH\n", formatTokenAmount(tx.ValueOrZero(), etherDecimals))
	fmt.Fprintf(&b, "Gas price: %s gwei\n", formatTokenAmount(tx.GasPriceOrZero(), gweiDecimals))
	fmt.Fprintf(&b, "Input data size: %d bytes\n\n", len(tx.Input))
	b.WriteString("Check for: ")
	b.WriteString(strings.Join(threatClasses, ", "))
	b.WriteString(".\n")
	b.WriteString("For each threat that applies, state the risk level (high, medium, low or no risk) and how confident you are.")
	return b.String()
}
