package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/rackmarket/internal/core/catalog"
)

const hivelocityInventoryPayload = `{
  "TPA1": [
    {
      "product_id": 580,
      "product_name": "Intel E-2136",
      "data_center": "TPA1",
      "stock": "available",
      "is_vps": false,
      "processor_info": {"cores": 6, "threads": 12},
      "product_cpu": "E-2136 3.3GHz Coffee Lake",
      "product_memory": "16GB",
      "product_drive": "2x 960GB SSD",
      "product_bandwidth": "20TB / 1Gbps",
      "product_gpu": "None",
      "product_hourly_price": 0.15,
      "product_monthly_price": 105,
      "product_annually_price": 1150,
      "monthly_location_premium": 5,
      "annually_location_premium": 50
    },
    {
      "product_id": 581,
      "product_name": "Sold Out Metal",
      "data_center": "TPA1",
      "stock": "unavailable",
      "is_vps": false,
      "processor_info": {"cores": 8, "threads": 16},
      "product_cpu": "E-2288G 3.7GHz",
      "product_memory": "32GB",
      "product_drive": "1TB HDD",
      "product_bandwidth": "20TB / 1Gbps",
      "product_gpu": "None",
      "product_monthly_price": 150
    }
  ],
  "AMS1": [
    {
      "product_id": 900,
      "product_name": "VPS 4",
      "data_center": "AMS1",
      "stock": "available",
      "is_vps": true,
      "processor_info": {"cores": 4, "threads": 4},
      "product_cpu": "4 vCPU",
      "product_memory": "8GB",
      "product_drive": "160GB SSD",
      "product_bandwidth": "10TB / 750Mbps",
      "product_gpu": "",
      "product_hourly_price": 0.03,
      "product_monthly_price": 20
    }
  ]
}`

const hivelocityLocationsPayload = `[
  {"code": "TPA1", "title": "Tampa 1", "location": {"city": "Tampa", "state": "FL", "country": "US"}},
  {"code": "AMS1", "title": "Amsterdam 1", "location": {"city": "Amsterdam", "state": "", "country": "NL"}}
]`

func hivelocityCatalogServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "hv-key", r.Header.Get("X-API-KEY"))
		switch r.URL.Path {
		case "/v2/inventory/product":
			w.Write([]byte(hivelocityInventoryPayload))
		case "/v2/location":
			w.Write([]byte(hivelocityLocationsPayload))
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestHivelocityFetchOfferings(t *testing.T) {
	server := hivelocityCatalogServer(t)
	defer server.Close()

	p := NewHivelocityProvider(server.URL, nil)
	offerings, err := p.FetchOfferings(context.Background(), "hv-key")
	require.NoError(t, err)
	require.Len(t, offerings, 3)

	byID := make(map[string]catalog.Offering, len(offerings))
	for _, o := range offerings {
		byID[o.ID] = o
	}

	metal, ok := byID["580_TPA1"]
	require.True(t, ok)
	assert.Equal(t, catalog.TypeBareMetal, metal.Type)
	assert.Equal(t, "Hivelocity", metal.ProviderName)
	assert.Equal(t, "Tampa, US", metal.Location)
	assert.Equal(t, catalog.AlwaysAvailable, metal.Available)
	assert.Equal(t, 6, metal.CPU.Cores)
	assert.Equal(t, 12, metal.CPU.Threads)
	assert.InDelta(t, 3.3, metal.CPU.GHz, 1e-9)
	assert.InDelta(t, 16, metal.RAM.CapacityGB, 1e-9)

	require.Len(t, metal.Storage, 2)
	assert.InDelta(t, 960, metal.Storage[0].CapacityGB, 1e-9)
	assert.Equal(t, "SSD", metal.Storage[0].Type)

	assert.InDelta(t, 1.0, metal.Network.SpeedGbps, 1e-9)
	assert.InDelta(t, 20480, metal.Network.MaxUsageGB, 1e-9)
	assert.Empty(t, metal.GPU)

	// Gross USD with the location premium folded in, no VAT applied.
	assert.InDelta(t, 110, metal.Price[catalog.PeriodMonthly], 1e-9)
	assert.InDelta(t, 0.15, metal.Price[catalog.PeriodHourly], 1e-9)
	assert.InDelta(t, 1200, metal.Price[catalog.PeriodYearly], 1e-9)

	soldOut, ok := byID["581_TPA1"]
	require.True(t, ok)
	assert.Equal(t, 0, soldOut.Available)
	require.Len(t, soldOut.Storage, 1)
	assert.InDelta(t, 1024, soldOut.Storage[0].CapacityGB, 1e-9)
	assert.Equal(t, "HDD", soldOut.Storage[0].Type)

	vps, ok := byID["900_AMS1"]
	require.True(t, ok)
	assert.Equal(t, catalog.TypeVPS, vps.Type)
	assert.Equal(t, "Amsterdam, NL", vps.Location)
	assert.InDelta(t, 0.75, vps.Network.SpeedGbps, 1e-9)
}

func TestHivelocityFetchStorageOptions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/vps/available-volume-sizes", r.URL.Path)
		w.Write([]byte(`{"volumeProducts": [{"monthlyPrice": 10, "size": 100}, {"monthlyPrice": 18, "size": 200}]}`))
	}))
	defer server.Close()

	p := NewHivelocityProvider(server.URL, nil)
	options, err := p.FetchStorageOptions(context.Background(), "hv-key")
	require.NoError(t, err)
	require.Len(t, options, 2)
	assert.Equal(t, 100, options[0].SizeGB)
	assert.InDelta(t, 10, options[0].MonthlyUSD, 1e-9)
}

func TestHivelocityCreateMachine(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/compute", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(`{"deviceId": 12345, "primaryIp": ""}`))
	}))
	defer server.Close()

	p := NewHivelocityProvider(server.URL, nil)
	machine, err := p.CreateMachine(context.Background(), "hv-key", CreateRequest{
		ProductKey: "900",
		RegionKey:  "AMS1",
		Type:       catalog.TypeVPS,
		Period:     catalog.PeriodYearly,
		Hostname:   "xnode.openmesh.network",
		Bootstrap:  "#cloud-config\n",
	})
	require.NoError(t, err)

	assert.Equal(t, "compute/12345", machine.ResourcePath)
	assert.Empty(t, machine.IPAddress)

	assert.Equal(t, "Ubuntu 24.04 (VPS)", gotBody["osName"])
	assert.Equal(t, "annually", gotBody["period"])
	assert.Equal(t, "AMS1", gotBody["locationName"])
	assert.Equal(t, float64(900), gotBody["productId"])
	assert.Equal(t, "#cloud-config\n", gotBody["script"])
}

func TestHivelocityCreateBareMetalUsesOtherSurface(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/bare-metal-devices", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Ubuntu 24.04", body["osName"])
		assert.Equal(t, "monthly", body["period"])
		w.Write([]byte(`{"deviceId": 77, "primaryIp": "203.0.113.4"}`))
	}))
	defer server.Close()

	p := NewHivelocityProvider(server.URL, nil)
	machine, err := p.CreateMachine(context.Background(), "hv-key", CreateRequest{
		ProductKey: "580",
		RegionKey:  "TPA1",
		Type:       catalog.TypeBareMetal,
		Period:     catalog.PeriodMonthly,
	})
	require.NoError(t, err)
	assert.Equal(t, "bare-metal-devices/77", machine.ResourcePath)
	assert.Equal(t, "203.0.113.4", machine.IPAddress)
}

func TestHivelocityGetMachine(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/compute/12345", r.URL.Path)
		w.Write([]byte(`{"deviceId": 12345, "primaryIp": "203.0.113.9"}`))
	}))
	defer server.Close()

	p := NewHivelocityProvider(server.URL, nil)
	machine, err := p.GetMachine(context.Background(), "hv-key", "compute/12345")
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.9", machine.IPAddress)
}

func TestHivelocityAttachStorage(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/vps/volume", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	p := NewHivelocityProvider(server.URL, nil)
	err := p.AttachStorage(context.Background(), "hv-key", "compute/12345", 200)
	require.NoError(t, err)
	assert.Equal(t, float64(12345), gotBody["deviceId"])
	assert.Equal(t, float64(200), gotBody["size"])
}

func TestHivelocityPowerCycle(t *testing.T) {
	state := "ON"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/device/77/power", r.URL.Path)
		if r.Method == http.MethodPost {
			assert.Equal(t, "shutdown", r.URL.Query().Get("action"))
			state = "OFF"
			w.Write([]byte(`{}`))
			return
		}
		w.Write([]byte(`{"powerStatus": "` + state + `"}`))
	}))
	defer server.Close()

	p := NewHivelocityProvider(server.URL, nil)

	got, err := p.GetPowerState(context.Background(), "hv-key", "bare-metal-devices/77")
	require.NoError(t, err)
	assert.Equal(t, PowerOn, got)

	require.NoError(t, p.Shutdown(context.Background(), "hv-key", "bare-metal-devices/77"))

	got, err = p.GetPowerState(context.Background(), "hv-key", "bare-metal-devices/77")
	require.NoError(t, err)
	assert.Equal(t, PowerOff, got)
}

func TestHivelocityReimage(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/compute/12345", r.URL.Path)
		assert.Equal(t, http.MethodPut, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	p := NewHivelocityProvider(server.URL, nil)
	err := p.Reimage(context.Background(), "hv-key", "compute/12345", "#cloud-config\nfresh")
	require.NoError(t, err)

	assert.Equal(t, "Ubuntu 24.04 (VPS)", gotBody["osName"])
	assert.Equal(t, true, gotBody["forceReload"])
	assert.Equal(t, "#cloud-config\nfresh", gotBody["script"])
}

func TestParseHivelocitySpecStrings(t *testing.T) {
	assert.InDelta(t, 16, parseHivelocityCapacityGB("16GB"), 1e-9)
	assert.InDelta(t, 1536, parseHivelocityCapacityGB("1.5TB"), 1e-9)
	assert.Zero(t, parseHivelocityCapacityGB("lots"))

	drives := parseHivelocityDrives("2x 480GB SSD + 1TB HDD")
	require.Len(t, drives, 3)
	assert.InDelta(t, 480, drives[0].CapacityGB, 1e-9)
	assert.Equal(t, "SSD", drives[1].Type)
	assert.InDelta(t, 1024, drives[2].CapacityGB, 1e-9)
	assert.Equal(t, "HDD", drives[2].Type)

	speed, usage := parseHivelocityBandwidth("20TB / 1Gbps")
	assert.InDelta(t, 1.0, speed, 1e-9)
	assert.InDelta(t, 20480, usage, 1e-9)

	assert.InDelta(t, 3.3, parseHivelocityGHz("E-2136 3.3GHz Coffee Lake"), 1e-9)
	assert.Zero(t, parseHivelocityGHz("4 vCPU"))
}
