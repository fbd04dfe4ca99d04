package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/artpar/rackmarket/internal/core/catalog"
	"github.com/artpar/rackmarket/internal/shell/forward"
)

// VultrName is the canonical Vultr provider name.
const VultrName = "Vultr"

// VultrBaseURL is the default Vultr API root.
const VultrBaseURL = "https://api.vultr.com"

// vultrOSID selects Ubuntu 24.04 LTS x64 for installs and reinstalls.
const vultrOSID = 2284

// vultrLabel tags machines created by this service in the Vultr panel.
const vultrLabel = "Xnode"

// VultrProvider serves the Vultr catalog and orders cloud instances and
// bare-metal machines. Vultr reinstalls do not require a separate
// power-off step, so the adapter deliberately does not power-cycle.
type VultrProvider struct {
	client *forward.Client
	logger *slog.Logger
}

// NewVultrProvider creates the Vultr adapter. baseURL defaults to the
// public API when empty.
func NewVultrProvider(baseURL string, logger *slog.Logger) *VultrProvider {
	if baseURL == "" {
		baseURL = VultrBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &VultrProvider{
		client: forward.NewClient(forward.Config{
			Provider:         VultrName,
			BaseURL:          baseURL,
			CredentialHeader: "Authorization",
			CredentialPrefix: "Bearer ",
		}),
		logger: logger.With("provider", VultrName),
	}
}

// Name implements Catalog.
func (v *VultrProvider) Name() string { return VultrName }

// =============================================================================
// Catalog
// =============================================================================

// vultrPlan covers both the cloud and bare-metal plan schemas; the two
// differ only in which CPU count field is set.
type vultrPlan struct {
	ID          string   `json:"id"`
	VCPUCount   int      `json:"vcpu_count"` // cloud plans
	CPUCount    int      `json:"cpu_count"`  // bare-metal plans
	CPUModel    string   `json:"cpu_model"`
	RAM         float64  `json:"ram"`  // MB
	Disk        float64  `json:"disk"` // GB
	DiskCount   int      `json:"disk_count"`
	Bandwidth   float64  `json:"bandwidth"` // GB per month
	MonthlyCost float64  `json:"monthly_cost"`
	HourlyCost  float64  `json:"hourly_cost"`
	Locations   []string `json:"locations"`
}

// vultrMeta is the shared pagination envelope.
type vultrMeta struct {
	Links struct {
		Next string `json:"next"`
	} `json:"links"`
}

// vultrRegion is one entry from the regions endpoint.
type vultrRegion struct {
	ID      string `json:"id"`
	City    string `json:"city"`
	Country string `json:"country"`
}

// FetchOfferings lists cloud and bare-metal plans and explodes each one
// per region it is sold in. Vultr prices are gross USD and plans have no
// stock counter, so everything is treated as always available.
func (v *VultrProvider) FetchOfferings(ctx context.Context, cred Credential) ([]catalog.Offering, error) {
	regions, err := v.allRegions(ctx, cred)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch Vultr regions: %w", err)
	}

	cloudPlans, err := v.allPlans(ctx, cred, "v2/plans", "plans")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch Vultr plans: %w", err)
	}
	metalPlans, err := v.allPlans(ctx, cred, "v2/plans-metal", "plans_metal")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch Vultr bare-metal plans: %w", err)
	}

	var offerings []catalog.Offering
	offerings = append(offerings, v.explodePlans(cloudPlans, catalog.TypeVPS, regions)...)
	offerings = append(offerings, v.explodePlans(metalPlans, catalog.TypeBareMetal, regions)...)

	v.logger.Debug("catalog fetched", "offerings", len(offerings))
	return offerings, nil
}

// allPlans walks a cursor-paginated plan listing to exhaustion. The
// plans and bare-metal endpoints share the envelope shape apart from the
// array key.
func (v *VultrProvider) allPlans(ctx context.Context, cred Credential, path, key string) ([]vultrPlan, error) {
	var plans []vultrPlan
	cursor := ""
	for {
		var payload struct {
			Plans      []vultrPlan `json:"plans"`
			PlansMetal []vultrPlan `json:"plans_metal"`
			Meta       vultrMeta   `json:"meta"`
		}
		page := path
		if cursor != "" {
			page = path + "?cursor=" + url.QueryEscape(cursor)
		}
		if err := v.client.DoJSON(ctx, http.MethodGet, page, nil, &payload, string(cred)); err != nil {
			return nil, err
		}
		if key == "plans_metal" {
			plans = append(plans, payload.PlansMetal...)
		} else {
			plans = append(plans, payload.Plans...)
		}
		if payload.Meta.Links.Next == "" {
			return plans, nil
		}
		cursor = payload.Meta.Links.Next
	}
}

// allRegions walks the cursor-paginated region listing and indexes the
// entries by id.
func (v *VultrProvider) allRegions(ctx context.Context, cred Credential) (map[string]vultrRegion, error) {
	regions := make(map[string]vultrRegion)
	cursor := ""
	for {
		var payload struct {
			Regions []vultrRegion `json:"regions"`
			Meta    vultrMeta     `json:"meta"`
		}
		page := "v2/regions"
		if cursor != "" {
			page += "?cursor=" + url.QueryEscape(cursor)
		}
		if err := v.client.DoJSON(ctx, http.MethodGet, page, nil, &payload, string(cred)); err != nil {
			return nil, err
		}
		for _, r := range payload.Regions {
			regions[r.ID] = r
		}
		if payload.Meta.Links.Next == "" {
			return regions, nil
		}
		cursor = payload.Meta.Links.Next
	}
}

// explodePlans emits one offering per plan and region pair.
func (v *VultrProvider) explodePlans(plans []vultrPlan, machineType catalog.MachineType, regions map[string]vultrRegion) []catalog.Offering {
	var offerings []catalog.Offering
	for _, p := range plans {
		cores := p.VCPUCount
		if cores == 0 {
			cores = p.CPUCount
		}

		drives := make([]catalog.Drive, 0, 1)
		diskCount := p.DiskCount
		if diskCount == 0 {
			diskCount = 1
		}
		for i := 0; i < diskCount; i++ {
			drives = append(drives, catalog.Drive{CapacityGB: p.Disk, Type: "SSD"})
		}

		for _, regionID := range p.Locations {
			id, err := catalog.EncodeID(p.ID, regionID)
			if err != nil {
				v.logger.Warn("skipping offering with unencodable id",
					"plan", p.ID, "region", regionID, "error", err)
				continue
			}

			location := regionID
			if r, ok := regions[regionID]; ok && r.City != "" {
				location = fmt.Sprintf("%s, %s", r.City, r.Country)
			}

			offerings = append(offerings, catalog.Offering{
				ID:           id,
				Type:         machineType,
				ProviderName: VultrName,
				ProductName:  p.ID,
				Location:     location,
				Available:    catalog.AlwaysAvailable,
				CPU: catalog.CPU{
					Cores: cores,
					Name:  p.CPUModel,
				},
				RAM:     catalog.RAM{CapacityGB: p.RAM / 1024},
				Storage: drives,
				GPU:     []catalog.GPU{},
				Network: catalog.Network{MaxUsageGB: p.Bandwidth},
				Price: map[catalog.Period]float64{
					catalog.PeriodHourly:  p.HourlyCost,
					catalog.PeriodMonthly: p.MonthlyCost,
				},
			})
		}
	}
	return offerings
}

// =============================================================================
// Provisioning
// =============================================================================

// vultrSurface returns the API surface for a machine type.
func vultrSurface(t catalog.MachineType) string {
	if t == catalog.TypeVPS {
		return "instances"
	}
	return "bare-metals"
}

// vultrMachine is the shared create/get response body.
type vultrMachine struct {
	ID     string `json:"id"`
	MainIP string `json:"main_ip"`
}

// vultrEnvelope unwraps the singular resource key of either surface.
type vultrEnvelope struct {
	Instance  *vultrMachine `json:"instance"`
	BareMetal *vultrMachine `json:"bare_metal"`
}

func (e vultrEnvelope) machine() (vultrMachine, error) {
	switch {
	case e.Instance != nil:
		return *e.Instance, nil
	case e.BareMetal != nil:
		return *e.BareMetal, nil
	default:
		return vultrMachine{}, fmt.Errorf("Vultr response carried no machine body")
	}
}

// CreateMachine orders an instance or bare-metal machine with the
// bootstrap payload as base64 user data. The main IP is typically
// "0.0.0.0" at first; callers poll GetMachine until it resolves.
func (v *VultrProvider) CreateMachine(ctx context.Context, cred Credential, req CreateRequest) (Machine, error) {
	body := map[string]any{
		"region":    req.RegionKey,
		"plan":      req.ProductKey,
		"os_id":     vultrOSID,
		"user_data": base64.StdEncoding.EncodeToString([]byte(req.Bootstrap)),
		"hostname":  req.Hostname,
		"label":     vultrLabel,
	}

	surface := vultrSurface(req.Type)
	var envelope vultrEnvelope
	if err := v.client.DoJSON(ctx, http.MethodPost, "v2/"+surface, body, &envelope, string(cred)); err != nil {
		return Machine{}, err
	}
	machine, err := envelope.machine()
	if err != nil {
		return Machine{}, err
	}

	result := Machine{
		ResourcePath: surface + "/" + machine.ID,
		IPAddress:    machine.MainIP,
	}
	v.logger.Info("machine created", "resource", result.ResourcePath)
	return result, nil
}

// GetMachine fetches a machine's current state.
func (v *VultrProvider) GetMachine(ctx context.Context, cred Credential, resourcePath string) (Machine, error) {
	var envelope vultrEnvelope
	if err := v.client.DoJSON(ctx, http.MethodGet, "v2/"+resourcePath, nil, &envelope, string(cred)); err != nil {
		return Machine{}, err
	}
	machine, err := envelope.machine()
	if err != nil {
		return Machine{}, err
	}
	return Machine{ResourcePath: resourcePath, IPAddress: machine.MainIP}, nil
}

// =============================================================================
// Reset
// =============================================================================

// Reimage reinstalls the machine's OS with fresh user data. Vultr
// handles the power transition itself, so no separate shutdown is
// needed.
func (v *VultrProvider) Reimage(ctx context.Context, cred Credential, resourcePath, bootstrap string) error {
	body := map[string]any{
		"os_id":     vultrOSID,
		"user_data": base64.StdEncoding.EncodeToString([]byte(bootstrap)),
	}
	if err := v.client.DoJSON(ctx, http.MethodPatch, "v2/"+resourcePath, body, nil, string(cred)); err != nil {
		return err
	}
	if !strings.HasPrefix(resourcePath, "bare-metals/") {
		// Cloud instances additionally need the reinstall trigger after
		// the user-data update lands.
		return v.client.DoJSON(ctx, http.MethodPost, "v2/"+resourcePath+"/reinstall", nil, nil, string(cred))
	}
	return nil
}
