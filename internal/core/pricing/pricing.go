// Package pricing contains pure normalization functions for provider
// prices and hardware units. This is part of the Functional Core - all
// functions are pure with no I/O.
package pricing

// VATMultiplier converts a net (tax-exclusive) price into a gross one.
// The 27% rate is a fixed assumed VAT, not derived from the purchaser's
// actual jurisdiction: an approximation for cross-provider comparison,
// not a compliance guarantee.
const VATMultiplier = 1.27

// Unit conversion factors.
const (
	gbPerTB     = 1024.0
	mbpsPerGbps = 1000.0
	bytesPerGB  = 1024.0 * 1024.0 * 1024.0
)

// Convert applies a spot exchange rate to an amount. The rate is the
// price of one unit of the source currency in the target currency.
func Convert(amount, rate float64) float64 {
	return amount * rate
}

// GrossUp converts a net price into a tax-inclusive one using the fixed
// VAT multiplier. Apply only to providers whose API returns net prices;
// providers that already quote gross prices must bypass this.
func GrossUp(net float64) float64 {
	return net * VATMultiplier
}

// AddSurcharge folds a flat, non-optional line item (for example a public
// IPv4 address fee) into an advertised unit price, so canonical figures
// stay comparable across providers.
func AddSurcharge(amount, surcharge float64) float64 {
	return amount + surcharge
}

// TBToGB converts terabytes to gigabytes.
func TBToGB(tb float64) float64 { return tb * gbPerTB }

// GBToTB converts gigabytes to terabytes.
func GBToTB(gb float64) float64 { return gb / gbPerTB }

// MbpsToGbps converts megabits per second to gigabits per second.
func MbpsToGbps(mbps float64) float64 { return mbps / mbpsPerGbps }

// BytesToGB converts bytes to gigabytes.
func BytesToGB(b float64) float64 { return b / bytesPerGB }
