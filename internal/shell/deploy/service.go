// Package deploy orchestrates the provisioning and reset workflows
// across provider adapters. This is part of the Imperative Shell - it
// sequences provider API calls and polling around the pure workflow
// types in core.
package deploy

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/artpar/rackmarket/internal/core/apierr"
	"github.com/artpar/rackmarket/internal/core/catalog"
	coredeploy "github.com/artpar/rackmarket/internal/core/deploy"
	"github.com/artpar/rackmarket/internal/core/poll"
	"github.com/artpar/rackmarket/internal/shell/provider"
)

// Config bounds the two poll loops the workflows run: waiting for a new
// machine's public address and waiting for a machine to reach the OFF
// state before a reimage.
type Config struct {
	AddressPoll poll.Config
	PowerPoll   poll.Config
}

// DefaultConfig returns the standard polling bounds.
func DefaultConfig() Config {
	return Config{
		AddressPoll: poll.Config{Interval: time.Second, Timeout: 10 * time.Minute},
		PowerPoll:   poll.Config{Interval: 3 * time.Second, Timeout: 10 * time.Minute},
	}
}

// Service runs the provisioning and reset workflows. All outcomes are
// returned as result values; the only errors that escape as Go errors
// are programming mistakes.
type Service struct {
	registry *provider.Registry
	cfg      Config
	logger   *slog.Logger
}

// NewService creates the workflow service.
func NewService(registry *provider.Registry, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		registry: registry,
		cfg:      cfg,
		logger:   logger.With("component", "deploy"),
	}
}

// ProvisionRequest carries one machine order.
type ProvisionRequest struct {
	// Provider is the canonical provider name.
	Provider string

	// OfferingID is the "{product}_{region}" offering identifier.
	OfferingID string

	// Type selects the provider's VPS or bare-metal surface.
	Type catalog.MachineType

	// Period is the billing period for the order.
	Period catalog.Period

	// ExtraStorageGB, when positive, orders an add-on volume after the
	// machine is reachable.
	ExtraStorageGB int

	// Credential is the caller's provider API credential.
	Credential provider.Credential

	// OwnerTag binds the machine's management agent to its owner.
	OwnerTag string
}

// ResetRequest carries one machine reset.
type ResetRequest struct {
	// Handle is the "{provider}::{resourcePath}" deployment handle.
	Handle string

	// Credential is the caller's provider API credential.
	Credential provider.Credential

	// OwnerTag rebinds the management agent after the wipe.
	OwnerTag string
}

// Provision orders a machine, waits for its public address, and
// optionally attaches extra storage. The deployment handle is included
// in the result as soon as the provider resource exists, even when a
// later step fails, so a billable machine is never silently orphaned.
func (s *Service) Provision(ctx context.Context, req ProvisionRequest) coredeploy.ProvisionResult {
	op := uuid.NewString()
	logger := s.logger.With("op", op, "provider", req.Provider, "offering", req.OfferingID)

	adapter, err := s.registry.Lookup(req.Provider)
	if err != nil {
		return coredeploy.ProvisionFailure("", err)
	}
	prov, ok := adapter.(provider.Provisioner)
	if !ok {
		return coredeploy.ProvisionFailure("", apierr.Validationf("provider %q does not support provisioning", req.Provider))
	}

	productKey, regionKey, err := catalog.DecodeID(req.OfferingID)
	if err != nil {
		return coredeploy.ProvisionFailure("", apierr.Validationf("invalid offering id: %v", err))
	}

	var attacher provider.StorageAttacher
	if req.ExtraStorageGB > 0 {
		// Refuse before ordering a billable machine rather than after.
		attacher, ok = adapter.(provider.StorageAttacher)
		if !ok {
			return coredeploy.ProvisionFailure("", apierr.Validationf("provider %q does not support extra storage", req.Provider))
		}
	}

	machine, err := prov.CreateMachine(ctx, req.Credential, provider.CreateRequest{
		ProductKey: productKey,
		RegionKey:  regionKey,
		Type:       req.Type,
		Period:     req.Period,
		Hostname:   coredeploy.DefaultHostname,
		Bootstrap:  coredeploy.BootstrapScript(req.OwnerTag),
	})
	if err != nil {
		logger.Error("machine creation failed", "error", err)
		return coredeploy.ProvisionFailure("", err)
	}

	handle := coredeploy.Handle{Provider: adapter.Name(), ResourcePath: machine.ResourcePath}
	logger = logger.With("handle", handle.String())
	logger.Info("machine created, waiting for address")

	ip := machine.IPAddress
	err = poll.Until(ctx, s.cfg.AddressPoll, func(ctx context.Context) (bool, error) {
		if coredeploy.ValidAddress(ip) {
			return true, nil
		}
		current, err := prov.GetMachine(ctx, req.Credential, machine.ResourcePath)
		if err != nil {
			// Transient lookup failures do not abort the wait; the
			// deadline bounds them.
			logger.Warn("machine lookup failed during address wait", "error", err)
			return false, nil
		}
		ip = current.IPAddress
		return coredeploy.ValidAddress(ip), nil
	})
	if err != nil {
		logger.Error("address wait failed", "error", err)
		return coredeploy.ProvisionFailure(handle.String(), err)
	}

	if req.ExtraStorageGB > 0 {
		if err := attacher.AttachStorage(ctx, req.Credential, machine.ResourcePath, req.ExtraStorageGB); err != nil {
			// The machine stays up and keeps billing; the handle in the
			// result is the caller's way back to it.
			logger.Error("storage attach failed", "error", err, "size_gb", req.ExtraStorageGB)
			return coredeploy.ProvisionFailure(handle.String(), err)
		}
		logger.Info("extra storage attached", "size_gb", req.ExtraStorageGB)
	}

	logger.Info("provisioning complete", "ip", ip)
	return coredeploy.ProvisionSuccess(ip, handle)
}

// Reset wipes a machine back to a fresh install of its image with a new
// bootstrap payload. Providers that require it are powered off first,
// and the reimage is only issued once the machine reports OFF.
func (s *Service) Reset(ctx context.Context, req ResetRequest) coredeploy.ResetResult {
	op := uuid.NewString()

	handle, err := coredeploy.ParseHandle(req.Handle)
	if err != nil {
		return coredeploy.ResetFailure(apierr.Validationf("invalid deployment handle: %v", err))
	}
	logger := s.logger.With("op", op, "handle", req.Handle, "provider", handle.Provider)

	adapter, err := s.registry.Lookup(handle.Provider)
	if err != nil {
		return coredeploy.ResetFailure(err)
	}
	reimager, ok := adapter.(provider.Reimager)
	if !ok {
		return coredeploy.ResetFailure(apierr.Validationf("provider %q does not support resets", handle.Provider))
	}

	if cycler, ok := adapter.(provider.PowerCycler); ok {
		if err := cycler.Shutdown(ctx, req.Credential, handle.ResourcePath); err != nil {
			logger.Error("shutdown failed", "error", err)
			return coredeploy.ResetFailure(err)
		}
		logger.Info("shutdown issued, waiting for power off")

		err = poll.Until(ctx, s.cfg.PowerPoll, func(ctx context.Context) (bool, error) {
			state, err := cycler.GetPowerState(ctx, req.Credential, handle.ResourcePath)
			if err != nil {
				logger.Warn("power state lookup failed during wait", "error", err)
				return false, nil
			}
			return state == provider.PowerOff, nil
		})
		if err != nil {
			logger.Error("power-off wait failed", "error", err)
			return coredeploy.ResetFailure(err)
		}
	}

	if err := reimager.Reimage(ctx, req.Credential, handle.ResourcePath, coredeploy.BootstrapScript(req.OwnerTag)); err != nil {
		logger.Error("reimage failed", "error", err)
		return coredeploy.ResetFailure(err)
	}

	logger.Info("reset complete")
	return coredeploy.ResetSuccess()
}
