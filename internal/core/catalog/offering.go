// Package catalog contains the canonical, provider-agnostic model for
// rentable server offerings. This is part of the Functional Core - all
// functions are pure with no I/O.
package catalog

// MachineType classifies an offering by the kind of hardware backing it.
type MachineType string

const (
	// TypeVPS is a virtual machine on shared hardware.
	TypeVPS MachineType = "VPS"

	// TypeBareMetal is a dedicated physical machine.
	TypeBareMetal MachineType = "Bare Metal"
)

// Period is a billing period name used as a key in an offering's price map.
type Period string

const (
	PeriodHourly       Period = "hourly"
	PeriodMonthly      Period = "monthly"
	PeriodQuarterly    Period = "quarterly"
	PeriodSemiannually Period = "semiannually"
	PeriodYearly       Period = "yearly"
)

// AlwaysAvailable is the stock count used for providers that have no
// native stock concept: the offering is considered orderable at any time.
const AlwaysAvailable = 1_000_000_000

// CPU describes the processor of an offering.
type CPU struct {
	Cores   int     `json:"cores"`
	Threads int     `json:"threads,omitempty"`
	GHz     float64 `json:"ghz,omitempty"`
	Name    string  `json:"name,omitempty"`
}

// RAM describes the memory of an offering. Capacity is in GB.
type RAM struct {
	CapacityGB float64 `json:"capacity"`
	GHz        float64 `json:"ghz,omitempty"`
}

// Drive is a single physical or virtual disk. Capacity is in GB.
// Multi-slot storage configs are exploded into one Drive per slot.
type Drive struct {
	CapacityGB float64 `json:"capacity"`
	Type       string  `json:"type,omitempty"`
}

// GPU describes a single GPU. VRAM is in GB.
type GPU struct {
	VRAMGB float64 `json:"vram"`
	Type   string  `json:"type,omitempty"`
}

// Network describes the network allowance of an offering.
// Speed is in Gbps, MaxUsage in GB.
type Network struct {
	SpeedGbps  float64 `json:"speed,omitempty"`
	MaxUsageGB float64 `json:"max_usage,omitempty"`
}

// Offering is one rentable machine configuration in one region, after
// normalization: all capacities in GB, all speeds in Gbps, all prices
// tax-inclusive USD.
type Offering struct {
	// ID is "{productKey}_{regionKey}", reversible via DecodeID into the
	// provider-specific keys needed to place an order.
	ID string `json:"id"`

	Type         MachineType `json:"type"`
	ProviderName string      `json:"providerName"`
	ProductName  string      `json:"productName"`

	// Location is "City, CC" when the provider's region data resolves,
	// otherwise the raw region code.
	Location string `json:"location"`

	// Available is the stock count. 0 means the offering cannot be
	// ordered (including provider-flagged deprecation).
	Available int `json:"available"`

	CPU     CPU     `json:"cpu"`
	RAM     RAM     `json:"ram"`
	Storage []Drive `json:"storage"`
	GPU     []GPU   `json:"gpu"`
	Network Network `json:"network"`

	// Price maps billing period to a tax-inclusive USD amount. An absent
	// key means the provider does not offer that period.
	Price map[Period]float64 `json:"price"`
}

// MonthlyPrice returns the monthly USD price and whether one exists.
func (o Offering) MonthlyPrice() (float64, bool) {
	p, ok := o.Price[PeriodMonthly]
	return p, ok
}

// TotalStorageGB returns the summed capacity of all drives.
func (o Offering) TotalStorageGB() float64 {
	var total float64
	for _, d := range o.Storage {
		total += d.CapacityGB
	}
	return total
}

// StorageOption is a provider-specific add-on volume that can be attached
// to a machine after provisioning.
type StorageOption struct {
	SizeGB     int     `json:"size"`
	MonthlyUSD float64 `json:"price_monthly"`
}
