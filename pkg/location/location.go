// Package location resolves the device holder's position through a
// platform-provided positioning service, with permission handling and a
// graduated accuracy fallback.
package location

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// AccuracyTier identifies which fallback level produced a fix.
type AccuracyTier int

const (
	// TierHigh requests the best available fix (GPS-grade)
	TierHigh AccuracyTier = iota

	// TierBalanced accepts a coarser, faster fix (network/cell-grade)
	TierBalanced
)

func (t AccuracyTier) String() string {
	switch t {
	case TierHigh:
		return "high"
	case TierBalanced:
		return "balanced"
	default:
		return "unknown"
	}
}

// PermissionState is the app-level location permission status.
type PermissionState int

const (
	PermissionUndetermined PermissionState = iota
	PermissionGranted
	PermissionDenied
)

// Platform selects the remediation messaging and the default tier cascade.
type Platform string

const (
	PlatformAndroid Platform = "android"
	PlatformIOS     Platform = "ios"
)

// Fix is the device holder's resolved location.
type Fix struct {
	// Latitude in decimal degrees (-90 to +90)
	Latitude float64

	// Longitude in decimal degrees (-180 to +180)
	Longitude float64

	// AccuracyTier records which fallback level succeeded
	AccuracyTier AccuracyTier

	// ResolvedAt is when the fix was produced
	ResolvedAt time.Time
}

// Sentinel errors providers return so failures can be classified.
var (
	// ErrServicesDisabled means OS-level location services are off
	ErrServicesDisabled = errors.New("location services disabled")

	// ErrPermissionDenied means the user declined app-level access
	ErrPermissionDenied = errors.New("location permission denied")
)

// FailureClass is the classified reason a resolution failed.
type FailureClass int

const (
	FailureUnknown FailureClass = iota
	FailureServicesDisabled
	FailurePermissionDenied
	FailureTimeout
)

func (c FailureClass) String() string {
	switch c {
	case FailureServicesDisabled:
		return "services_disabled"
	case FailurePermissionDenied:
		return "permission_denied"
	case FailureTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Advice returns the platform-appropriate remedial message for a failure.
// Platform differences live here, not in the resolution control flow.
func (c FailureClass) Advice(p Platform) string {
	switch c {
	case FailureServicesDisabled:
		if p == PlatformIOS {
			return "Turn on Location Services in Settings > Privacy & Security > Location Services"
		}
		return "Turn on Location in Settings > Location"
	case FailurePermissionDenied:
		if p == PlatformIOS {
			return "Allow location access for Go Bangladesh in Settings > Go Bangladesh > Location"
		}
		return "Allow location access in Settings > Apps > Go Bangladesh > Permissions"
	case FailureTimeout:
		return "Could not determine your location, please try again"
	default:
		return "Location is unavailable right now, please try again"
	}
}

// Failure is a classified resolution error.
type Failure struct {
	Class FailureClass
	Err   error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("location %s: %v", f.Class, f.Err)
	}
	return fmt.Sprintf("location %s", f.Class)
}

func (f *Failure) Unwrap() error { return f.Err }

// ClassOf extracts the failure class from an error.
// Errors that did not come from a Resolver classify as FailureUnknown.
func ClassOf(err error) FailureClass {
	var f *Failure
	if errors.As(err, &f) {
		return f.Class
	}
	return FailureUnknown
}

// Provider is the platform positioning collaborator.
// Implementations wrap the OS geolocation service (or a stand-in such as
// the IP provider) and must honor context deadlines in Locate.
type Provider interface {
	// ServicesEnabled reports whether OS-level location services are on.
	ServicesEnabled(ctx context.Context) (bool, error)

	// Permission returns the current app-level permission without prompting.
	Permission(ctx context.Context) (PermissionState, error)

	// RequestPermission may display the OS prompt and blocks until the
	// user responds.
	RequestPermission(ctx context.Context) (PermissionState, error)

	// Locate produces a fix at the requested accuracy. The context carries
	// the per-tier timeout; a stuck positioning chip must not outlive it.
	Locate(ctx context.Context, tier AccuracyTier) (Fix, error)
}

// Tier is one step of the fallback cascade: an accuracy level with a
// bounded wait.
type Tier struct {
	Accuracy AccuracyTier
	Timeout  time.Duration
}

// DefaultTiers returns the fallback cascade for a platform. iOS retries the
// high tier once before degrading; Android goes straight to balanced. The
// difference is data, not control flow.
func DefaultTiers(p Platform) []Tier {
	if p == PlatformIOS {
		return []Tier{
			{Accuracy: TierHigh, Timeout: 12 * time.Second},
			{Accuracy: TierHigh, Timeout: 8 * time.Second},
			{Accuracy: TierBalanced, Timeout: 10 * time.Second},
		}
	}
	return []Tier{
		{Accuracy: TierHigh, Timeout: 10 * time.Second},
		{Accuracy: TierBalanced, Timeout: 10 * time.Second},
	}
}

// Config holds resolver settings.
type Config struct {
	// Platform selects remediation messages and the default cascade
	Platform Platform

	// Tiers overrides the fallback cascade. Empty means the platform default.
	Tiers []Tier
}

// Resolver produces a Fix or a classified failure, honoring platform
// permission and service-availability semantics.
type Resolver struct {
	provider Provider
	platform Platform
	tiers    []Tier
}

// NewResolver creates a resolver over the given provider.
func NewResolver(provider Provider, cfg Config) *Resolver {
	tiers := cfg.Tiers
	if len(tiers) == 0 {
		tiers = DefaultTiers(cfg.Platform)
	}
	return &Resolver{
		provider: provider,
		platform: cfg.Platform,
		tiers:    tiers,
	}
}

// Platform returns the platform the resolver was configured for.
func (r *Resolver) Platform() Platform { return r.platform }

// CheckPermission is a non-blocking status query. It never prompts.
func (r *Resolver) CheckPermission(ctx context.Context) (PermissionState, error) {
	return r.provider.Permission(ctx)
}

// RequestPermission verifies location services are enabled, then may show
// the OS prompt. Prompting while services are off is misleading, so that
// case fails fast with a ServicesDisabled classification instead.
func (r *Resolver) RequestPermission(ctx context.Context) (PermissionState, error) {
	enabled, err := r.provider.ServicesEnabled(ctx)
	if err != nil {
		return PermissionUndetermined, &Failure{Class: FailureUnknown, Err: err}
	}
	if !enabled {
		return PermissionUndetermined, &Failure{Class: FailureServicesDisabled, Err: ErrServicesDisabled}
	}
	return r.provider.RequestPermission(ctx)
}

// Resolve runs the full flow: services check, permission check/request,
// then the accuracy cascade. Tier fallback is a retry, not a failure path;
// only exhaustion of the whole cascade is reported upward, classified.
func (r *Resolver) Resolve(ctx context.Context) (Fix, error) {
	enabled, err := r.provider.ServicesEnabled(ctx)
	if err != nil {
		return Fix{}, &Failure{Class: FailureUnknown, Err: err}
	}
	if !enabled {
		return Fix{}, &Failure{Class: FailureServicesDisabled, Err: ErrServicesDisabled}
	}

	state, err := r.provider.Permission(ctx)
	if err != nil {
		return Fix{}, &Failure{Class: FailureUnknown, Err: err}
	}
	if state != PermissionGranted {
		state, err = r.provider.RequestPermission(ctx)
		if err != nil {
			return Fix{}, &Failure{Class: FailureUnknown, Err: err}
		}
		if state != PermissionGranted {
			return Fix{}, &Failure{Class: FailurePermissionDenied, Err: ErrPermissionDenied}
		}
	}

	var lastErr error
	sawTimeout := false
	for _, tier := range r.tiers {
		fix, err := r.locateTier(ctx, tier)
		if err == nil {
			return fix, nil
		}
		// Permission revoked mid-flow is not retryable at a lower tier.
		if errors.Is(err, ErrPermissionDenied) {
			return Fix{}, &Failure{Class: FailurePermissionDenied, Err: err}
		}
		if errors.Is(err, ErrServicesDisabled) {
			return Fix{}, &Failure{Class: FailureServicesDisabled, Err: err}
		}
		if errors.Is(err, context.DeadlineExceeded) {
			sawTimeout = true
		}
		if errors.Is(err, context.Canceled) {
			return Fix{}, &Failure{Class: FailureUnknown, Err: err}
		}
		lastErr = err
	}

	if sawTimeout {
		return Fix{}, &Failure{Class: FailureTimeout, Err: lastErr}
	}
	return Fix{}, &Failure{Class: FailureUnknown, Err: lastErr}
}

// locateTier attempts one cascade step with its bounded wait.
func (r *Resolver) locateTier(ctx context.Context, tier Tier) (Fix, error) {
	tierCtx, cancel := context.WithTimeout(ctx, tier.Timeout)
	defer cancel()

	fix, err := r.provider.Locate(tierCtx, tier.Accuracy)
	if err != nil {
		// Surface the deadline so the caller can classify a stuck chip
		// as a timeout rather than a provider quirk.
		if tierCtx.Err() != nil && ctx.Err() == nil {
			return Fix{}, fmt.Errorf("tier %s: %w", tier.Accuracy, context.DeadlineExceeded)
		}
		return Fix{}, err
	}

	fix.AccuracyTier = tier.Accuracy
	if fix.ResolvedAt.IsZero() {
		fix.ResolvedAt = time.Now()
	}
	return fix, nil
}
