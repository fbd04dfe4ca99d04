package deploy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/rackmarket/internal/core/apierr"
	"github.com/artpar/rackmarket/internal/core/catalog"
	"github.com/artpar/rackmarket/internal/core/poll"
	"github.com/artpar/rackmarket/internal/shell/provider"
)

// fakeProvider is a scriptable full-capability adapter.
type fakeProvider struct {
	name string

	createErr    error
	createdPath  string
	createIP     string
	creates      int
	gotCreate    provider.CreateRequest
	gotBootstrap []string

	// ips is consumed by successive GetMachine calls; the last entry
	// repeats.
	ips     []string
	getErr  error
	gets    int
	attach  error
	attches []int

	powerStates []provider.PowerState
	powerReads  int
	shutdowns   int
	shutdownErr error
	reimages    int
	reimageErr  error
	reimagePath string
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) FetchOfferings(ctx context.Context, cred provider.Credential) ([]catalog.Offering, error) {
	return nil, nil
}

func (f *fakeProvider) CreateMachine(ctx context.Context, cred provider.Credential, req provider.CreateRequest) (provider.Machine, error) {
	f.creates++
	f.gotCreate = req
	if f.createErr != nil {
		return provider.Machine{}, f.createErr
	}
	return provider.Machine{ResourcePath: f.createdPath, IPAddress: f.createIP}, nil
}

func (f *fakeProvider) GetMachine(ctx context.Context, cred provider.Credential, resourcePath string) (provider.Machine, error) {
	if f.getErr != nil {
		return provider.Machine{}, f.getErr
	}
	idx := f.gets
	if idx >= len(f.ips) {
		idx = len(f.ips) - 1
	}
	f.gets++
	return provider.Machine{ResourcePath: resourcePath, IPAddress: f.ips[idx]}, nil
}

func (f *fakeProvider) AttachStorage(ctx context.Context, cred provider.Credential, resourcePath string, sizeGB int) error {
	f.attches = append(f.attches, sizeGB)
	return f.attach
}

func (f *fakeProvider) Shutdown(ctx context.Context, cred provider.Credential, resourcePath string) error {
	f.shutdowns++
	return f.shutdownErr
}

func (f *fakeProvider) GetPowerState(ctx context.Context, cred provider.Credential, resourcePath string) (provider.PowerState, error) {
	idx := f.powerReads
	if idx >= len(f.powerStates) {
		idx = len(f.powerStates) - 1
	}
	f.powerReads++
	return f.powerStates[idx], nil
}

func (f *fakeProvider) Reimage(ctx context.Context, cred provider.Credential, resourcePath, bootstrap string) error {
	f.reimages++
	f.reimagePath = resourcePath
	f.gotBootstrap = append(f.gotBootstrap, bootstrap)
	return f.reimageErr
}

// catalogOnly has no lifecycle capabilities at all.
type catalogOnly struct{ name string }

func (c *catalogOnly) Name() string { return c.name }

func (c *catalogOnly) FetchOfferings(ctx context.Context, cred provider.Credential) ([]catalog.Offering, error) {
	return nil, nil
}

func fastConfig() Config {
	return Config{
		AddressPoll: poll.Config{Interval: time.Millisecond, Timeout: 200 * time.Millisecond},
		PowerPoll:   poll.Config{Interval: time.Millisecond, Timeout: 200 * time.Millisecond},
	}
}

func newService(adapters ...provider.Catalog) *Service {
	return NewService(provider.NewRegistry(nil, adapters...), fastConfig(), nil)
}

func TestProvisionWaitsForRealAddress(t *testing.T) {
	fake := &fakeProvider{
		name:        "Hivelocity",
		createdPath: "compute/12345",
		createIP:    "",
		ips:         []string{"0.0.0.0", "0.0.0.0", "203.0.113.7"},
	}
	svc := newService(fake)

	result := svc.Provision(context.Background(), ProvisionRequest{
		Provider:   "Hivelocity",
		OfferingID: "900_AMS1",
		Type:       catalog.TypeVPS,
		Period:     catalog.PeriodMonthly,
		OwnerTag:   "eth:0xabc",
	})

	require.True(t, result.OK, "error: %+v", result.Error)
	assert.Equal(t, "203.0.113.7", result.IPAddress)
	assert.Equal(t, "Hivelocity::compute/12345", result.Handle)
	assert.Nil(t, result.Error)

	// The placeholder addresses were rejected and polling continued.
	assert.Equal(t, 3, fake.gets)

	assert.Equal(t, "900", fake.gotCreate.ProductKey)
	assert.Equal(t, "AMS1", fake.gotCreate.RegionKey)
	assert.Contains(t, fake.gotCreate.Bootstrap, `XNODE_OWNER="eth:0xabc"`)
	assert.Equal(t, "xnode.openmesh.network", fake.gotCreate.Hostname)
}

func TestProvisionUsesCreateAddressWhenAlreadyAssigned(t *testing.T) {
	fake := &fakeProvider{
		name:        "Hivelocity",
		createdPath: "compute/1",
		createIP:    "203.0.113.50",
	}
	svc := newService(fake)

	result := svc.Provision(context.Background(), ProvisionRequest{
		Provider:   "Hivelocity",
		OfferingID: "580_TPA1",
		OwnerTag:   "o",
	})

	require.True(t, result.OK)
	assert.Equal(t, "203.0.113.50", result.IPAddress)
	assert.Zero(t, fake.gets)
}

func TestProvisionAddressTimeoutStillCarriesHandle(t *testing.T) {
	fake := &fakeProvider{
		name:        "Hivelocity",
		createdPath: "compute/2",
		ips:         []string{"0.0.0.0"},
	}
	svc := newService(fake)

	result := svc.Provision(context.Background(), ProvisionRequest{
		Provider:   "Hivelocity",
		OfferingID: "580_TPA1",
		OwnerTag:   "o",
	})

	require.False(t, result.OK)
	require.NotNil(t, result.Error)
	assert.Equal(t, apierr.KindTimeout, result.Error.Kind)
	// The machine exists and bills; the handle must not be lost.
	assert.Equal(t, "Hivelocity::compute/2", result.Handle)
}

func TestProvisionStorageAttachFailureIsHard(t *testing.T) {
	fake := &fakeProvider{
		name:        "Hivelocity",
		createdPath: "compute/3",
		createIP:    "203.0.113.8",
		attach:      &apierr.ProviderError{Provider: "Hivelocity", Status: 500, Body: []byte(`{"message": "volume backend down"}`)},
	}
	svc := newService(fake)

	result := svc.Provision(context.Background(), ProvisionRequest{
		Provider:       "Hivelocity",
		OfferingID:     "900_AMS1",
		ExtraStorageGB: 200,
		OwnerTag:       "o",
	})

	// No rollback: the failure is reported but the machine stays.
	require.False(t, result.OK)
	require.NotNil(t, result.Error)
	assert.Equal(t, apierr.KindProviderAPI, result.Error.Kind)
	assert.Equal(t, "volume backend down", result.Error.Message)
	assert.Equal(t, "Hivelocity::compute/3", result.Handle)
	assert.Equal(t, []int{200}, fake.attches)
}

func TestProvisionValidationFailures(t *testing.T) {
	fake := &fakeProvider{name: "Hivelocity", createdPath: "compute/4", createIP: "203.0.113.9"}
	svc := newService(fake, &catalogOnly{name: "Hetzner"})

	tests := []struct {
		name string
		req  ProvisionRequest
	}{
		{"unknown provider", ProvisionRequest{Provider: "Nope", OfferingID: "a_b", OwnerTag: "o"}},
		{"catalog-only provider", ProvisionRequest{Provider: "Hetzner", OfferingID: "a_b", OwnerTag: "o"}},
		{"malformed offering id", ProvisionRequest{Provider: "Hivelocity", OfferingID: "nounderscore", OwnerTag: "o"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := svc.Provision(context.Background(), tt.req)
			require.False(t, result.OK)
			require.NotNil(t, result.Error)
			assert.Equal(t, apierr.KindValidation, result.Error.Kind)
			assert.Empty(t, result.Handle)
		})
	}
	// No machine was ever ordered for invalid input.
	assert.Zero(t, fake.creates)
}

func TestProvisionRejectsStorageRequestWithoutCapabilityBeforeCreating(t *testing.T) {
	fake := &fakeProvider{name: "Vultr", createdPath: "instances/1", createIP: "203.0.113.9"}
	// Hide the attach capability behind a wrapper exposing only
	// Catalog+Provisioner.
	svc := newService(provisionerOnly{fake})

	result := svc.Provision(context.Background(), ProvisionRequest{
		Provider:       "Vultr",
		OfferingID:     "vc2-1c-1gb_ewr",
		ExtraStorageGB: 100,
		OwnerTag:       "o",
	})

	require.False(t, result.OK)
	assert.Equal(t, apierr.KindValidation, result.Error.Kind)
	assert.Zero(t, fake.creates)
}

// provisionerOnly strips every capability except Catalog and Provisioner.
type provisionerOnly struct{ inner *fakeProvider }

func (p provisionerOnly) Name() string { return p.inner.name }

func (p provisionerOnly) FetchOfferings(ctx context.Context, cred provider.Credential) ([]catalog.Offering, error) {
	return p.inner.FetchOfferings(ctx, cred)
}

func (p provisionerOnly) CreateMachine(ctx context.Context, cred provider.Credential, req provider.CreateRequest) (provider.Machine, error) {
	return p.inner.CreateMachine(ctx, cred, req)
}

func (p provisionerOnly) GetMachine(ctx context.Context, cred provider.Credential, resourcePath string) (provider.Machine, error) {
	return p.inner.GetMachine(ctx, cred, resourcePath)
}

func TestProvisionCreateFailure(t *testing.T) {
	fake := &fakeProvider{
		name:      "Hivelocity",
		createErr: &apierr.ProviderError{Provider: "Hivelocity", Status: 402, Body: []byte(`{"message": "payment required"}`)},
	}
	svc := newService(fake)

	result := svc.Provision(context.Background(), ProvisionRequest{
		Provider:   "Hivelocity",
		OfferingID: "580_TPA1",
		OwnerTag:   "o",
	})

	require.False(t, result.OK)
	assert.Equal(t, apierr.KindProviderAPI, result.Error.Kind)
	assert.Equal(t, "payment required", result.Error.Message)
	assert.Empty(t, result.Handle)
}

func TestResetPowersOffBeforeReimage(t *testing.T) {
	fake := &fakeProvider{
		name:        "Hivelocity",
		powerStates: []provider.PowerState{provider.PowerOn, provider.PowerOn, provider.PowerOff},
	}
	svc := newService(fake)

	result := svc.Reset(context.Background(), ResetRequest{
		Handle:   "Hivelocity::bare-metal-devices/77",
		OwnerTag: "eth:0xabc",
	})

	require.True(t, result.OK, "error: %+v", result.Error)
	assert.Equal(t, 1, fake.shutdowns)
	// The reimage waited for the OFF report.
	assert.Equal(t, 3, fake.powerReads)
	assert.Equal(t, 1, fake.reimages)
	assert.Equal(t, "bare-metal-devices/77", fake.reimagePath)
	require.Len(t, fake.gotBootstrap, 1)
	assert.Contains(t, fake.gotBootstrap[0], `XNODE_OWNER="eth:0xabc"`)
}

func TestResetWithoutPowerCyclerReimagesDirectly(t *testing.T) {
	fake := &fakeProvider{name: "Vultr"}
	svc := newService(reimagerOnly{fake})

	result := svc.Reset(context.Background(), ResetRequest{
		Handle:   "Vultr::instances/abc-123",
		OwnerTag: "o",
	})

	require.True(t, result.OK)
	assert.Equal(t, 1, fake.reimages)
	assert.Zero(t, fake.shutdowns)
}

// reimagerOnly strips the power-cycling capability.
type reimagerOnly struct{ inner *fakeProvider }

func (r reimagerOnly) Name() string { return r.inner.name }

func (r reimagerOnly) FetchOfferings(ctx context.Context, cred provider.Credential) ([]catalog.Offering, error) {
	return r.inner.FetchOfferings(ctx, cred)
}

func (r reimagerOnly) Reimage(ctx context.Context, cred provider.Credential, resourcePath, bootstrap string) error {
	return r.inner.Reimage(ctx, cred, resourcePath, bootstrap)
}

func TestResetFailures(t *testing.T) {
	fake := &fakeProvider{
		name:        "Hivelocity",
		powerStates: []provider.PowerState{provider.PowerOff},
	}
	svc := newService(fake, &catalogOnly{name: "Hetzner"})

	t.Run("malformed handle", func(t *testing.T) {
		result := svc.Reset(context.Background(), ResetRequest{Handle: "garbage", OwnerTag: "o"})
		require.False(t, result.OK)
		assert.Equal(t, apierr.KindValidation, result.Error.Kind)
	})

	t.Run("unknown provider", func(t *testing.T) {
		result := svc.Reset(context.Background(), ResetRequest{Handle: "Nope::compute/1", OwnerTag: "o"})
		require.False(t, result.OK)
		assert.Equal(t, apierr.KindValidation, result.Error.Kind)
	})

	t.Run("catalog-only provider", func(t *testing.T) {
		result := svc.Reset(context.Background(), ResetRequest{Handle: "Hetzner::compute/1", OwnerTag: "o"})
		require.False(t, result.OK)
		assert.Equal(t, apierr.KindValidation, result.Error.Kind)
	})

	t.Run("shutdown error", func(t *testing.T) {
		fake.shutdownErr = errors.New("power api down")
		defer func() { fake.shutdownErr = nil }()

		result := svc.Reset(context.Background(), ResetRequest{Handle: "Hivelocity::compute/1", OwnerTag: "o"})
		require.False(t, result.OK)
		assert.Equal(t, apierr.KindUnknown, result.Error.Kind)
	})

	t.Run("stuck powered on times out", func(t *testing.T) {
		stuck := &fakeProvider{
			name:        "Hivelocity",
			powerStates: []provider.PowerState{provider.PowerOn},
		}
		svc := newService(stuck)

		result := svc.Reset(context.Background(), ResetRequest{Handle: "Hivelocity::compute/1", OwnerTag: "o"})
		require.False(t, result.OK)
		assert.Equal(t, apierr.KindTimeout, result.Error.Kind)
		assert.Zero(t, stuck.reimages)
	})
}
