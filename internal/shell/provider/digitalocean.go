package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/digitalocean/godo"

	"github.com/artpar/rackmarket/internal/core/catalog"
	"github.com/artpar/rackmarket/internal/core/pricing"
)

// DigitalOceanName is the canonical DigitalOcean provider name.
const DigitalOceanName = "DigitalOcean"

// digitalOceanImageSlug selects Ubuntu 24.04 LTS x64 for new droplets.
const digitalOceanImageSlug = "ubuntu-24-04-x64"

// DigitalOceanProvider serves the droplet size catalog and creates
// droplets. DigitalOcean has no user-facing reimage-with-user-data
// call, so the adapter stops at provisioning.
type DigitalOceanProvider struct {
	endpoint string // non-empty overrides the public API, used in tests
	logger   *slog.Logger
}

// NewDigitalOceanProvider creates the DigitalOcean adapter.
func NewDigitalOceanProvider(endpoint string, logger *slog.Logger) *DigitalOceanProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &DigitalOceanProvider{
		endpoint: endpoint,
		logger:   logger.With("provider", DigitalOceanName),
	}
}

// newClient builds a godo client bound to the caller's token.
func (d *DigitalOceanProvider) newClient(cred Credential) (*godo.Client, error) {
	client := godo.NewFromToken(string(cred))
	if d.endpoint != "" {
		base, err := url.Parse(d.endpoint)
		if err != nil {
			return nil, fmt.Errorf("invalid DigitalOcean endpoint %q: %w", d.endpoint, err)
		}
		client.BaseURL = base
	}
	return client, nil
}

// Name implements Catalog.
func (d *DigitalOceanProvider) Name() string { return DigitalOceanName }

// FetchOfferings lists droplet sizes and explodes each per region it is
// sold in. Prices are gross USD.
func (d *DigitalOceanProvider) FetchOfferings(ctx context.Context, cred Credential) ([]catalog.Offering, error) {
	client, err := d.newClient(cred)
	if err != nil {
		return nil, err
	}

	regions := make(map[string]string)
	doRegions, _, err := client.Regions.List(ctx, &godo.ListOptions{PerPage: 200})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch DigitalOcean regions: %w", err)
	}
	for _, r := range doRegions {
		regions[r.Slug] = r.Name
	}

	var sizes []godo.Size
	opts := &godo.ListOptions{Page: 1, PerPage: 200}
	for {
		page, resp, err := client.Sizes.List(ctx, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch DigitalOcean sizes: %w", err)
		}
		sizes = append(sizes, page...)
		if resp == nil || resp.Links == nil || resp.Links.IsLastPage() {
			break
		}
		current, err := resp.Links.CurrentPage()
		if err != nil {
			break
		}
		opts.Page = current + 1
	}

	var offerings []catalog.Offering
	for _, size := range sizes {
		available := catalog.AlwaysAvailable
		if !size.Available {
			available = 0
		}
		for _, regionSlug := range size.Regions {
			id, err := catalog.EncodeID(size.Slug, regionSlug)
			if err != nil {
				d.logger.Warn("skipping offering with unencodable id",
					"size", size.Slug, "region", regionSlug, "error", err)
				continue
			}

			location := regionSlug
			if name, ok := regions[regionSlug]; ok {
				location = name
			}

			offerings = append(offerings, catalog.Offering{
				ID:           id,
				Type:         catalog.TypeVPS,
				ProviderName: DigitalOceanName,
				ProductName:  size.Description,
				Location:     location,
				Available:    available,
				CPU:          catalog.CPU{Cores: size.Vcpus},
				RAM:          catalog.RAM{CapacityGB: float64(size.Memory) / 1024},
				Storage:      []catalog.Drive{{CapacityGB: float64(size.Disk), Type: "SSD"}},
				GPU:          []catalog.GPU{},
				Network:      catalog.Network{MaxUsageGB: pricing.TBToGB(size.Transfer)},
				Price: map[catalog.Period]float64{
					catalog.PeriodHourly:  size.PriceHourly,
					catalog.PeriodMonthly: size.PriceMonthly,
				},
			})
		}
	}

	d.logger.Debug("catalog fetched", "offerings", len(offerings))
	return offerings, nil
}

// CreateMachine creates a droplet with the bootstrap payload as user
// data. Droplets report no address until they go active; callers poll
// GetMachine.
func (d *DigitalOceanProvider) CreateMachine(ctx context.Context, cred Credential, req CreateRequest) (Machine, error) {
	client, err := d.newClient(cred)
	if err != nil {
		return Machine{}, err
	}

	droplet, _, err := client.Droplets.Create(ctx, &godo.DropletCreateRequest{
		Name:     req.Hostname,
		Region:   req.RegionKey,
		Size:     req.ProductKey,
		Image:    godo.DropletCreateImage{Slug: digitalOceanImageSlug},
		UserData: req.Bootstrap,
		Tags:     []string{"xnode"},
	})
	if err != nil {
		return Machine{}, fmt.Errorf("failed to create droplet: %w", err)
	}

	ip, _ := droplet.PublicIPv4()
	machine := Machine{
		ResourcePath: fmt.Sprintf("droplets/%d", droplet.ID),
		IPAddress:    ip,
	}
	d.logger.Info("droplet created", "resource", machine.ResourcePath)
	return machine, nil
}

// GetMachine fetches a droplet's current state.
func (d *DigitalOceanProvider) GetMachine(ctx context.Context, cred Credential, resourcePath string) (Machine, error) {
	client, err := d.newClient(cred)
	if err != nil {
		return Machine{}, err
	}

	idPart := strings.TrimPrefix(resourcePath, "droplets/")
	dropletID, err := strconv.Atoi(idPart)
	if err != nil {
		return Machine{}, fmt.Errorf("invalid DigitalOcean resource path %q: %w", resourcePath, err)
	}

	droplet, _, err := client.Droplets.Get(ctx, dropletID)
	if err != nil {
		return Machine{}, err
	}

	ip := ""
	if droplet.Status == "active" {
		ip, _ = droplet.PublicIPv4()
	}
	return Machine{ResourcePath: resourcePath, IPAddress: ip}, nil
}
