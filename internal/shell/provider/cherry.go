package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/artpar/rackmarket/internal/core/catalog"
	"github.com/artpar/rackmarket/internal/core/pricing"
	"github.com/artpar/rackmarket/internal/shell/currency"
	"github.com/artpar/rackmarket/internal/shell/forward"
)

// CherryName is the canonical Cherry Servers provider name.
const CherryName = "CherryServers"

// CherryBaseURL is the default Cherry Servers API root.
const CherryBaseURL = "https://api.cherryservers.com"

// CherryProvider is the catalog adapter for Cherry Servers. The plan
// listing is public, prices are net EUR, and stock is reported per
// region. Cherry Servers is catalog-only.
type CherryProvider struct {
	client *forward.Client
	rates  currency.RateSource
	logger *slog.Logger
}

// NewCherryProvider creates the Cherry Servers catalog adapter.
// baseURL defaults to the public API when empty.
func NewCherryProvider(baseURL string, rates currency.RateSource, logger *slog.Logger) *CherryProvider {
	if baseURL == "" {
		baseURL = CherryBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CherryProvider{
		client: forward.NewClient(forward.Config{
			Provider:         CherryName,
			BaseURL:          baseURL,
			CredentialHeader: "Authorization",
			CredentialPrefix: "Bearer ",
		}),
		rates:  rates,
		logger: logger.With("provider", CherryName),
	}
}

// Name implements Catalog.
func (c *CherryProvider) Name() string { return CherryName }

// cherryPlan is the provider's /v1/plans response element, limited to
// the fields the mapping needs.
type cherryPlan struct {
	Name  string `json:"name"`
	Slug  string `json:"slug"`
	Type  string `json:"type"` // "baremetal" or "vps"
	Specs struct {
		CPUs struct {
			Count     int     `json:"count"`
			Name      string  `json:"name"`
			Cores     int     `json:"cores"`
			Frequency float64 `json:"frequency"`
		} `json:"cpus"`
		Memory struct {
			Total float64 `json:"total"`
			Unit  string  `json:"unit"` // "GB" or "TB"
		} `json:"memory"`
		Storage []struct {
			Count int     `json:"count"`
			Size  float64 `json:"size"`
			Unit  string  `json:"unit"` // "GB" or "TB"
			Type  string  `json:"type"` // "SSD", "NVME", "HDD"
		} `json:"storage"`
		NICs struct {
			Name string `json:"name"` // e.g. "1Gbps", "750Mbps"
		} `json:"nics"`
		Bandwidth struct {
			Name string `json:"name"` // e.g. "30TB"
		} `json:"bandwidth"`
	} `json:"specs"`
	Pricing []struct {
		Unit     string  `json:"unit"` // "Hourly", "Monthly", "Quarterly", "Semiannually", "Annually"
		Price    float64 `json:"price"`
		Currency string  `json:"currency"`
	} `json:"pricing"`
	AvailableRegions []struct {
		Name       string `json:"name"`
		RegionISO2 string `json:"region_iso_2"`
		StockQty   int    `json:"stock_qty"`
		Slug       string `json:"slug"`
		Location   string `json:"location"` // e.g. "Lithuania, Siauliai"
	} `json:"available_regions"`
}

// cherryPeriods maps Cherry's pricing unit names onto canonical billing
// periods.
var cherryPeriods = map[string]catalog.Period{
	"Hourly":       catalog.PeriodHourly,
	"Monthly":      catalog.PeriodMonthly,
	"Quarterly":    catalog.PeriodQuarterly,
	"Semiannually": catalog.PeriodSemiannually,
	"Annually":     catalog.PeriodYearly,
}

// FetchOfferings lists plans and explodes each into one offering per
// available region. Net EUR prices are grossed up with the assumed VAT
// and converted to USD with a live rate; a rate lookup failure fails
// the whole fetch closed.
func (c *CherryProvider) FetchOfferings(ctx context.Context, cred Credential) ([]catalog.Offering, error) {
	var plans []cherryPlan
	err := c.client.DoJSON(ctx, http.MethodGet, "v1/plans?fields=plan,specs,pricing,region", nil, &plans, string(cred))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch Cherry Servers plans: %w", err)
	}

	eurToUSD, err := c.rates.Rate(ctx, "EUR", "USD")
	if err != nil {
		return nil, err
	}

	var offerings []catalog.Offering
	for _, plan := range plans {
		price := make(map[catalog.Period]float64, len(plan.Pricing))
		for _, p := range plan.Pricing {
			period, ok := cherryPeriods[p.Unit]
			if !ok {
				continue // e.g. "Spot hourly"
			}
			price[period] = pricing.Convert(pricing.GrossUp(p.Price), eurToUSD)
		}

		machineType := catalog.TypeBareMetal
		if strings.Contains(plan.Type, "vps") {
			machineType = catalog.TypeVPS
		}

		drives := make([]catalog.Drive, 0)
		for _, s := range plan.Specs.Storage {
			capacity := s.Size
			if s.Unit == "TB" {
				capacity = pricing.TBToGB(capacity)
			}
			for i := 0; i < s.Count; i++ {
				drives = append(drives, catalog.Drive{CapacityGB: capacity, Type: s.Type})
			}
		}

		ramGB := plan.Specs.Memory.Total
		if plan.Specs.Memory.Unit == "TB" {
			ramGB = pricing.TBToGB(ramGB)
		}

		cpu := catalog.CPU{
			Cores: plan.Specs.CPUs.Cores,
			GHz:   plan.Specs.CPUs.Frequency,
		}
		// Virtual plans report a synthetic "N vCores" CPU name.
		if !strings.Contains(plan.Specs.CPUs.Name, "vCores") {
			cpu.Name = plan.Specs.CPUs.Name
		}

		for _, region := range plan.AvailableRegions {
			id, err := catalog.EncodeID(plan.Slug, region.Slug)
			if err != nil {
				c.logger.Warn("skipping offering with unencodable id",
					"product", plan.Slug, "region", region.Slug, "error", err)
				continue
			}

			offering := catalog.Offering{
				ID:           id,
				Type:         machineType,
				ProviderName: CherryName,
				ProductName:  plan.Name,
				Location:     cherryLocationLabel(region.Location, region.RegionISO2),
				Available:    region.StockQty,
				CPU:          cpu,
				RAM:          catalog.RAM{CapacityGB: ramGB},
				Storage:      drives,
				GPU:          []catalog.GPU{},
				Network: catalog.Network{
					SpeedGbps:  cherryNICSpeed(plan.Specs.NICs.Name),
					MaxUsageGB: cherryBandwidthGB(plan.Specs.Bandwidth.Name),
				},
				Price: price,
			}
			offerings = append(offerings, offering)
		}
	}

	c.logger.Debug("catalog fetched", "offerings", len(offerings))
	return offerings, nil
}

// cherryLocationLabel turns "Country, City" + ISO code into "City, CC",
// falling back to the ISO code when the location string has no city.
func cherryLocationLabel(location, iso2 string) string {
	parts := strings.Split(location, ", ")
	if len(parts) < 2 || parts[1] == "" {
		return iso2
	}
	return fmt.Sprintf("%s, %s", parts[1], iso2)
}

// cherryNICSpeed parses NIC names like "1Gbps" or "750Mbps" into Gbps.
func cherryNICSpeed(name string) float64 {
	if strings.HasSuffix(name, "Mbps") {
		mbps, err := strconv.ParseFloat(strings.TrimSuffix(name, "Mbps"), 64)
		if err != nil {
			return 0
		}
		return pricing.MbpsToGbps(mbps)
	}
	gbps, err := strconv.ParseFloat(strings.TrimSuffix(name, "Gbps"), 64)
	if err != nil {
		return 0
	}
	return gbps
}

// cherryBandwidthGB parses bandwidth names like "30TB" into GB.
func cherryBandwidthGB(name string) float64 {
	tb, err := strconv.ParseFloat(strings.TrimSuffix(name, "TB"), 64)
	if err != nil {
		return 0
	}
	return pricing.TBToGB(tb)
}
