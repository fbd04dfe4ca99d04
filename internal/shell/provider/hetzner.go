package provider

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"
	"golang.org/x/sync/errgroup"

	"github.com/artpar/rackmarket/internal/core/catalog"
	"github.com/artpar/rackmarket/internal/core/pricing"
	"github.com/artpar/rackmarket/internal/shell/currency"
)

// HetznerName is the canonical Hetzner provider name.
const HetznerName = "Hetzner"

// Hetzner quotes net EUR prices and bills a public IPv4 address as a
// separate non-optional line item; both surcharges are folded into the
// advertised unit prices before normalization.
const (
	hetznerIPv4HourlyEUR  = 0.001
	hetznerIPv4MonthlyEUR = 0.60
	hetznerPageSize       = 50
)

// HetznerProvider is the catalog adapter for Hetzner Cloud, backed by
// the official SDK. Hetzner is catalog-only: machines cannot be ordered
// through this adapter.
type HetznerProvider struct {
	endpoint string // overrides the SDK's API endpoint when non-empty
	rates    currency.RateSource
	logger   *slog.Logger
}

// HetznerConfig holds configuration for the Hetzner adapter.
type HetznerConfig struct {
	// Endpoint overrides the Hetzner Cloud API endpoint (tests).
	Endpoint string
}

// NewHetznerProvider creates the Hetzner catalog adapter.
func NewHetznerProvider(cfg HetznerConfig, rates currency.RateSource, logger *slog.Logger) *HetznerProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &HetznerProvider{
		endpoint: cfg.Endpoint,
		rates:    rates,
		logger:   logger.With("provider", HetznerName),
	}
}

// Name implements Catalog.
func (h *HetznerProvider) Name() string { return HetznerName }

func (h *HetznerProvider) newClient(cred Credential) *hcloud.Client {
	opts := []hcloud.ClientOption{hcloud.WithToken(string(cred))}
	if h.endpoint != "" {
		opts = append(opts, hcloud.WithEndpoint(h.endpoint))
	}
	return hcloud.NewClient(opts...)
}

// FetchOfferings lists server types and locations (paging through both
// until the API reports no next page), then explodes each x86 server
// type into one offering per priced location. Net EUR prices are
// surcharged for IPv4, grossed up with the assumed VAT and converted to
// USD with a live rate; a rate lookup failure fails the whole fetch
// closed.
func (h *HetznerProvider) FetchOfferings(ctx context.Context, cred Credential) ([]catalog.Offering, error) {
	client := h.newClient(cred)

	var (
		serverTypes []*hcloud.ServerType
		locations   []*hcloud.Location
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		serverTypes, err = h.allServerTypes(gctx, client)
		return err
	})
	g.Go(func() error {
		var err error
		locations, err = h.allLocations(gctx, client)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to fetch Hetzner inventory: %w", err)
	}

	eurToUSD, err := h.rates.Rate(ctx, "EUR", "USD")
	if err != nil {
		return nil, err
	}

	locationsByName := make(map[string]*hcloud.Location, len(locations))
	for _, loc := range locations {
		locationsByName[loc.Name] = loc
	}

	var offerings []catalog.Offering
	for _, st := range serverTypes {
		if st.Architecture != hcloud.ArchitectureX86 {
			continue
		}

		machineType := catalog.TypeBareMetal
		if st.CPUType == hcloud.CPUTypeShared {
			machineType = catalog.TypeVPS
		}

		deprecated := make(map[string]bool, len(st.Locations))
		for _, stl := range st.Locations {
			if stl.Location == nil {
				continue
			}
			deprecated[stl.Location.Name] = stl.IsDeprecated()
		}

		for _, price := range st.Pricings {
			if price.Location == nil {
				continue
			}

			id, err := catalog.EncodeID(st.Name, price.Location.Name)
			if err != nil {
				h.logger.Warn("skipping offering with unencodable id",
					"product", st.Name, "region", price.Location.Name, "error", err)
				continue
			}

			hourlyNet, hourlyErr := strconv.ParseFloat(price.Hourly.Net, 64)
			monthlyNet, monthlyErr := strconv.ParseFloat(price.Monthly.Net, 64)
			if hourlyErr != nil || monthlyErr != nil {
				h.logger.Warn("skipping offering with unparsable price", "product", st.Name, "region", price.Location.Name)
				continue
			}

			available := catalog.AlwaysAvailable
			if deprecated[price.Location.Name] {
				available = 0
			}

			offerings = append(offerings, catalog.Offering{
				ID:           id,
				Type:         machineType,
				ProviderName: HetznerName,
				ProductName:  st.Name,
				Location:     hetznerLocationLabel(locationsByName, price.Location.Name),
				Available:    available,
				CPU:          catalog.CPU{Cores: st.Cores},
				RAM:          catalog.RAM{CapacityGB: float64(st.Memory)},
				Storage:      []catalog.Drive{{CapacityGB: float64(st.Disk)}},
				GPU:          []catalog.GPU{},
				Network: catalog.Network{
					MaxUsageGB: pricing.BytesToGB(float64(price.IncludedTraffic)),
				},
				Price: map[catalog.Period]float64{
					catalog.PeriodHourly: pricing.Convert(
						pricing.GrossUp(pricing.AddSurcharge(hourlyNet, hetznerIPv4HourlyEUR)), eurToUSD),
					catalog.PeriodMonthly: pricing.Convert(
						pricing.GrossUp(pricing.AddSurcharge(monthlyNet, hetznerIPv4MonthlyEUR)), eurToUSD),
				},
			})
		}
	}

	h.logger.Debug("catalog fetched", "offerings", len(offerings))
	return offerings, nil
}

func (h *HetznerProvider) allServerTypes(ctx context.Context, client *hcloud.Client) ([]*hcloud.ServerType, error) {
	var all []*hcloud.ServerType
	page := 1
	for page > 0 {
		types, resp, err := client.ServerType.List(ctx, hcloud.ServerTypeListOpts{
			ListOpts: hcloud.ListOpts{Page: page, PerPage: hetznerPageSize},
		})
		if err != nil {
			return nil, err
		}
		all = append(all, types...)
		page = nextPage(resp)
	}
	return all, nil
}

func (h *HetznerProvider) allLocations(ctx context.Context, client *hcloud.Client) ([]*hcloud.Location, error) {
	var all []*hcloud.Location
	page := 1
	for page > 0 {
		locations, resp, err := client.Location.List(ctx, hcloud.LocationListOpts{
			ListOpts: hcloud.ListOpts{Page: page, PerPage: hetznerPageSize},
		})
		if err != nil {
			return nil, err
		}
		all = append(all, locations...)
		page = nextPage(resp)
	}
	return all, nil
}

// nextPage extracts the next page number from response metadata, 0 when
// the last page was reached.
func nextPage(resp *hcloud.Response) int {
	if resp == nil || resp.Meta.Pagination == nil {
		return 0
	}
	return resp.Meta.Pagination.NextPage
}

// hetznerLocationLabel resolves a region code to "City, CC", falling
// back to the raw code when the locations listing did not contain it.
func hetznerLocationLabel(locations map[string]*hcloud.Location, name string) string {
	loc, ok := locations[name]
	if !ok {
		return name
	}
	return fmt.Sprintf("%s, %s", loc.City, loc.Country)
}
