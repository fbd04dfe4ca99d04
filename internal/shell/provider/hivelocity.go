package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/artpar/rackmarket/internal/core/catalog"
	"github.com/artpar/rackmarket/internal/core/deploy"
	"github.com/artpar/rackmarket/internal/core/pricing"
	"github.com/artpar/rackmarket/internal/shell/forward"
)

// HivelocityName is the canonical Hivelocity provider name.
const HivelocityName = "Hivelocity"

// HivelocityBaseURL is the default Hivelocity API root.
const HivelocityBaseURL = "https://core.hivelocity.net/api"

// hivelocityOSName is the image installed on new and reloaded machines.
// The VPS surface expects a distinct image name.
const (
	hivelocityOSName    = "Ubuntu 24.04"
	hivelocityOSNameVPS = "Ubuntu 24.04 (VPS)"
)

// HivelocityProvider is the full-lifecycle adapter for Hivelocity: it
// serves the catalog, orders machines on the compute (VPS) and
// bare-metal surfaces, attaches VPS volumes, and power-cycles devices
// for a reimage.
type HivelocityProvider struct {
	client *forward.Client
	logger *slog.Logger
}

// NewHivelocityProvider creates the Hivelocity adapter. baseURL defaults
// to the public API when empty.
func NewHivelocityProvider(baseURL string, logger *slog.Logger) *HivelocityProvider {
	if baseURL == "" {
		baseURL = HivelocityBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HivelocityProvider{
		client: forward.NewClient(forward.Config{
			Provider:         HivelocityName,
			BaseURL:          baseURL,
			CredentialHeader: "X-API-KEY",
		}),
		logger: logger.With("provider", HivelocityName),
	}
}

// Name implements Catalog.
func (h *HivelocityProvider) Name() string { return HivelocityName }

// =============================================================================
// Catalog
// =============================================================================

// hivelocityProduct is one stock entry from the inventory endpoint.
// Hardware specs arrive as display strings and are parsed into
// structured form.
type hivelocityProduct struct {
	ProductID     int    `json:"product_id"`
	ProductName   string `json:"product_name"`
	DataCenter    string `json:"data_center"`
	Stock         string `json:"stock"` // "available", "limited", "unavailable"
	IsVPS         bool   `json:"is_vps"`
	ProcessorInfo struct {
		Cores   int `json:"cores"`
		Threads int `json:"threads"`
	} `json:"processor_info"`
	ProductCPU       string  `json:"product_cpu"`       // e.g. "E-2136 3.3GHz Coffee Lake"
	ProductMemory    string  `json:"product_memory"`    // e.g. "16GB"
	ProductDrive     string  `json:"product_drive"`     // e.g. "2x 960GB SSD"
	ProductBandwidth string  `json:"product_bandwidth"` // e.g. "20TB / 1Gbps"
	ProductGPU       string  `json:"product_gpu"`       // e.g. "None"
	HourlyPrice      float64 `json:"product_hourly_price"`
	MonthlyPrice     float64 `json:"product_monthly_price"`
	QuarterlyPrice   float64 `json:"product_quarterly_price"`
	SemiAnnualPrice  float64 `json:"product_semi_annually_price"`
	AnnualPrice      float64 `json:"product_annually_price"`
	HourlyPremium    float64 `json:"hourly_location_premium"`
	MonthlyPremium   float64 `json:"monthly_location_premium"`
	QuarterlyPremium float64 `json:"quarterly_location_premium"`
	SemiAnnPremium   float64 `json:"semi_annually_location_premium"`
	AnnualPremium    float64 `json:"annually_location_premium"`
}

// hivelocityLocation is one entry from the location endpoint.
type hivelocityLocation struct {
	Code     string `json:"code"` // e.g. "TPA1"
	Title    string `json:"title"`
	Location struct {
		City    string `json:"city"`
		State   string `json:"state"`
		Country string `json:"country"`
	} `json:"location"`
}

// FetchOfferings lists the per-datacenter stock and cross-references the
// location endpoint for display names. Prices are gross USD; the
// per-location premium line items are folded into each period's figure.
func (h *HivelocityProvider) FetchOfferings(ctx context.Context, cred Credential) ([]catalog.Offering, error) {
	var stock map[string][]hivelocityProduct
	if err := h.client.DoJSON(ctx, http.MethodGet, "v2/inventory/product", nil, &stock, string(cred)); err != nil {
		return nil, fmt.Errorf("failed to fetch Hivelocity inventory: %w", err)
	}

	// Location resolution is best effort: an unresolved region falls
	// back to its raw code rather than failing the fetch.
	labels := make(map[string]string)
	var locations []hivelocityLocation
	if err := h.client.DoJSON(ctx, http.MethodGet, "v2/location", nil, &locations, string(cred)); err != nil {
		h.logger.Warn("location lookup failed, using raw region codes", "error", err)
	} else {
		for _, loc := range locations {
			if loc.Location.City != "" {
				labels[loc.Code] = fmt.Sprintf("%s, %s", loc.Location.City, loc.Location.Country)
			}
		}
	}

	var offerings []catalog.Offering
	for _, products := range stock {
		for _, p := range products {
			id, err := catalog.EncodeID(strconv.Itoa(p.ProductID), p.DataCenter)
			if err != nil {
				h.logger.Warn("skipping offering with unencodable id",
					"product", p.ProductID, "region", p.DataCenter, "error", err)
				continue
			}

			machineType := catalog.TypeBareMetal
			if p.IsVPS {
				machineType = catalog.TypeVPS
			}

			available := catalog.AlwaysAvailable
			if p.Stock == "unavailable" {
				available = 0
			}

			location, ok := labels[p.DataCenter]
			if !ok {
				location = p.DataCenter
			}

			speed, maxUsage := parseHivelocityBandwidth(p.ProductBandwidth)

			offerings = append(offerings, catalog.Offering{
				ID:           id,
				Type:         machineType,
				ProviderName: HivelocityName,
				ProductName:  p.ProductName,
				Location:     location,
				Available:    available,
				CPU: catalog.CPU{
					Cores:   p.ProcessorInfo.Cores,
					Threads: p.ProcessorInfo.Threads,
					GHz:     parseHivelocityGHz(p.ProductCPU),
					Name:    p.ProductCPU,
				},
				RAM:     catalog.RAM{CapacityGB: parseHivelocityCapacityGB(p.ProductMemory)},
				Storage: parseHivelocityDrives(p.ProductDrive),
				GPU:     parseHivelocityGPU(p.ProductGPU),
				Network: catalog.Network{SpeedGbps: speed, MaxUsageGB: maxUsage},
				Price:   hivelocityPrices(p),
			})
		}
	}

	h.logger.Debug("catalog fetched", "offerings", len(offerings))
	return offerings, nil
}

// hivelocityPrices folds the non-optional location premium into each
// billing period's advertised price. Figures are already gross USD.
func hivelocityPrices(p hivelocityProduct) map[catalog.Period]float64 {
	price := make(map[catalog.Period]float64, 5)
	set := func(period catalog.Period, base, premium float64) {
		if base > 0 {
			price[period] = pricing.AddSurcharge(base, premium)
		}
	}
	set(catalog.PeriodHourly, p.HourlyPrice, p.HourlyPremium)
	set(catalog.PeriodMonthly, p.MonthlyPrice, p.MonthlyPremium)
	set(catalog.PeriodQuarterly, p.QuarterlyPrice, p.QuarterlyPremium)
	set(catalog.PeriodSemiannually, p.SemiAnnualPrice, p.SemiAnnPremium)
	set(catalog.PeriodYearly, p.AnnualPrice, p.AnnualPremium)
	return price
}

var (
	hivelocityGHzRe   = regexp.MustCompile(`(\d+(?:\.\d+)?)GHz`)
	hivelocityDriveRe = regexp.MustCompile(`^(?:(\d+)x\s*)?(\d+(?:\.\d+)?)(GB|TB)\s*(.*)$`)
)

// parseHivelocityCapacityGB parses sizes like "16GB" or "1TB" into GB.
func parseHivelocityCapacityGB(s string) float64 {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasSuffix(s, "TB"):
		v, err := strconv.ParseFloat(strings.TrimSuffix(s, "TB"), 64)
		if err != nil {
			return 0
		}
		return pricing.TBToGB(v)
	case strings.HasSuffix(s, "GB"):
		v, err := strconv.ParseFloat(strings.TrimSuffix(s, "GB"), 64)
		if err != nil {
			return 0
		}
		return v
	default:
		return 0
	}
}

// parseHivelocityDrives explodes a drive string like "2x 480GB SSD" into
// individual drive entries.
func parseHivelocityDrives(s string) []catalog.Drive {
	drives := make([]catalog.Drive, 0, 1)
	for _, part := range strings.Split(s, "+") {
		m := hivelocityDriveRe.FindStringSubmatch(strings.TrimSpace(part))
		if m == nil {
			continue
		}
		count := 1
		if m[1] != "" {
			if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
				count = n
			}
		}
		size, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			continue
		}
		if m[3] == "TB" {
			size = pricing.TBToGB(size)
		}
		driveType := strings.TrimSpace(m[4])
		for i := 0; i < count; i++ {
			drives = append(drives, catalog.Drive{CapacityGB: size, Type: driveType})
		}
	}
	return drives
}

// parseHivelocityBandwidth parses "20TB / 1Gbps" into (speed Gbps,
// allowance GB).
func parseHivelocityBandwidth(s string) (speedGbps, maxUsageGB float64) {
	parts := strings.Split(s, "/")
	if len(parts) > 0 {
		if tb, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(parts[0]), "TB"), 64); err == nil {
			maxUsageGB = pricing.TBToGB(tb)
		}
	}
	if len(parts) > 1 {
		nic := strings.TrimSpace(parts[1])
		if strings.HasSuffix(nic, "Mbps") {
			if mbps, err := strconv.ParseFloat(strings.TrimSuffix(nic, "Mbps"), 64); err == nil {
				speedGbps = pricing.MbpsToGbps(mbps)
			}
		} else if gbps, err := strconv.ParseFloat(strings.TrimSuffix(nic, "Gbps"), 64); err == nil {
			speedGbps = gbps
		}
	}
	return speedGbps, maxUsageGB
}

// parseHivelocityGHz extracts the clock speed token from a CPU display
// string, 0 when absent.
func parseHivelocityGHz(cpu string) float64 {
	m := hivelocityGHzRe.FindStringSubmatch(cpu)
	if m == nil {
		return 0
	}
	ghz, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	return ghz
}

// parseHivelocityGPU maps the GPU display string; "None" and empty mean
// no GPU, anything else is carried as a typed entry with unknown VRAM.
func parseHivelocityGPU(s string) []catalog.GPU {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "none") {
		return []catalog.GPU{}
	}
	return []catalog.GPU{{Type: s}}
}

// FetchStorageOptions lists the VPS add-on volume products.
func (h *HivelocityProvider) FetchStorageOptions(ctx context.Context, cred Credential) ([]catalog.StorageOption, error) {
	var payload struct {
		VolumeProducts []struct {
			MonthlyPrice float64 `json:"monthlyPrice"`
			Size         int     `json:"size"`
		} `json:"volumeProducts"`
	}
	if err := h.client.DoJSON(ctx, http.MethodGet, "v2/vps/available-volume-sizes", nil, &payload, string(cred)); err != nil {
		return nil, fmt.Errorf("failed to fetch Hivelocity volume sizes: %w", err)
	}

	options := make([]catalog.StorageOption, 0, len(payload.VolumeProducts))
	for _, v := range payload.VolumeProducts {
		options = append(options, catalog.StorageOption{
			SizeGB:     v.Size,
			MonthlyUSD: v.MonthlyPrice,
		})
	}
	return options, nil
}

// =============================================================================
// Provisioning
// =============================================================================

// hivelocityDevice is the create/get response for both machine surfaces.
type hivelocityDevice struct {
	DeviceID  int    `json:"deviceId"`
	PrimaryIP string `json:"primaryIp"`
}

// hivelocitySurface returns the API surface for a machine type.
func hivelocitySurface(t catalog.MachineType) string {
	if t == catalog.TypeVPS {
		return "compute"
	}
	return "bare-metal-devices"
}

// hivelocityPeriod maps a canonical billing period onto Hivelocity's
// order period names.
func hivelocityPeriod(p catalog.Period) string {
	if p == catalog.PeriodYearly {
		return "annually"
	}
	return string(p)
}

// CreateMachine orders a device. The returned machine may still carry a
// placeholder address; callers poll GetMachine until a real one appears.
func (h *HivelocityProvider) CreateMachine(ctx context.Context, cred Credential, req CreateRequest) (Machine, error) {
	productID, err := strconv.Atoi(req.ProductKey)
	if err != nil {
		return Machine{}, fmt.Errorf("invalid Hivelocity product id %q: %w", req.ProductKey, err)
	}

	osName := hivelocityOSName
	if req.Type == catalog.TypeVPS {
		osName = hivelocityOSNameVPS
	}

	body := map[string]any{
		"osName":       osName,
		"hostname":     req.Hostname,
		"script":       req.Bootstrap,
		"period":       hivelocityPeriod(req.Period),
		"locationName": req.RegionKey,
		"productId":    productID,
	}

	surface := hivelocitySurface(req.Type)
	var device hivelocityDevice
	if err := h.client.DoJSON(ctx, http.MethodPost, "v2/"+surface, body, &device, string(cred)); err != nil {
		return Machine{}, err
	}

	machine := Machine{
		ResourcePath: fmt.Sprintf("%s/%d", surface, device.DeviceID),
		IPAddress:    device.PrimaryIP,
	}
	h.logger.Info("device created", "resource", machine.ResourcePath)
	return machine, nil
}

// GetMachine fetches a device's current state.
func (h *HivelocityProvider) GetMachine(ctx context.Context, cred Credential, resourcePath string) (Machine, error) {
	var device hivelocityDevice
	if err := h.client.DoJSON(ctx, http.MethodGet, "v2/"+resourcePath, nil, &device, string(cred)); err != nil {
		return Machine{}, err
	}
	return Machine{ResourcePath: resourcePath, IPAddress: device.PrimaryIP}, nil
}

// AttachStorage orders an add-on volume for an existing device.
func (h *HivelocityProvider) AttachStorage(ctx context.Context, cred Credential, resourcePath string, sizeGB int) error {
	deviceID, err := hivelocityDeviceID(resourcePath)
	if err != nil {
		return err
	}
	body := map[string]any{
		"deviceId": deviceID,
		"size":     sizeGB,
	}
	return h.client.DoJSON(ctx, http.MethodPost, "v2/vps/volume", body, nil, string(cred))
}

// =============================================================================
// Reset
// =============================================================================

// Shutdown issues a graceful power-off.
func (h *HivelocityProvider) Shutdown(ctx context.Context, cred Credential, resourcePath string) error {
	deviceID, err := hivelocityDeviceID(resourcePath)
	if err != nil {
		return err
	}
	path := fmt.Sprintf("v2/device/%d/power?action=shutdown", deviceID)
	return h.client.DoJSON(ctx, http.MethodPost, path, nil, nil, string(cred))
}

// GetPowerState reports the device's power status.
func (h *HivelocityProvider) GetPowerState(ctx context.Context, cred Credential, resourcePath string) (PowerState, error) {
	deviceID, err := hivelocityDeviceID(resourcePath)
	if err != nil {
		return "", err
	}
	var payload struct {
		PowerStatus string `json:"powerStatus"`
	}
	path := fmt.Sprintf("v2/device/%d/power", deviceID)
	if err := h.client.DoJSON(ctx, http.MethodGet, path, nil, &payload, string(cred)); err != nil {
		return "", err
	}
	if payload.PowerStatus == string(PowerOff) {
		return PowerOff, nil
	}
	return PowerOn, nil
}

// Reimage reloads the device's OS with a fresh bootstrap payload. The
// device must be powered off first.
func (h *HivelocityProvider) Reimage(ctx context.Context, cred Credential, resourcePath, bootstrap string) error {
	osName := hivelocityOSName
	if strings.Contains(resourcePath, "compute") {
		osName = hivelocityOSNameVPS
	}
	body := map[string]any{
		"osName":      osName,
		"hostname":    deploy.DefaultHostname,
		"script":      bootstrap,
		"forceReload": true,
	}
	return h.client.DoJSON(ctx, http.MethodPut, "v2/"+resourcePath, body, nil, string(cred))
}

// hivelocityDeviceID extracts the numeric device id from a resource path
// like "compute/12345".
func hivelocityDeviceID(resourcePath string) (int, error) {
	parts := strings.Split(resourcePath, "/")
	idPart := parts[len(parts)-1]
	deviceID, err := strconv.Atoi(idPart)
	if err != nil {
		return 0, fmt.Errorf("invalid Hivelocity resource path %q: %w", resourcePath, err)
	}
	return deviceID, nil
}
