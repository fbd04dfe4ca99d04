package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGrossUp(t *testing.T) {
	assert.InDelta(t, 12.7, GrossUp(10), 1e-9)
	assert.Zero(t, GrossUp(0))
}

func TestConvert(t *testing.T) {
	assert.InDelta(t, 10.8, Convert(10, 1.08), 1e-9)
}

func TestAddSurcharge(t *testing.T) {
	assert.InDelta(t, 5.6, AddSurcharge(5, 0.60), 1e-9)
	assert.InDelta(t, 5.0, AddSurcharge(5, 0), 1e-9)
}

// A net EUR monthly price normalizes by IPv4 surcharge, then VAT, then
// currency, in that order.
func TestNetEURNormalizationPipeline(t *testing.T) {
	netEUR := 49.0
	surchargeEUR := 0.0
	eurToUSD := 1.08

	gross := Convert(GrossUp(AddSurcharge(netEUR, surchargeEUR)), eurToUSD)
	assert.InDelta(t, 67.2084, gross, 1e-6)
}

func TestUnitConversions(t *testing.T) {
	assert.Equal(t, 2048.0, TBToGB(2))
	assert.Equal(t, 2.0, GBToTB(2048))
	assert.Equal(t, 0.75, MbpsToGbps(750))
	assert.Equal(t, 1.0, BytesToGB(1024*1024*1024))
	assert.InDelta(t, 20480.0, BytesToGB(20480*1024*1024*1024), 1e-6)
}

func TestUnitConversionsRoundTrip(t *testing.T) {
	assert.InDelta(t, 3.5, GBToTB(TBToGB(3.5)), 1e-9)
}
