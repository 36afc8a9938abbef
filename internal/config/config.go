// Package config holds the options the outer program (CLI flags, JSON-RPC
// front end) surfaces to the core, per the external interfaces the core
// accepts (verbosity, discovery cadence, watchdog thresholds).
package config

import (
	"fmt"
	"time"

	"github.com/lightsd-go/lightsd/internal/lifxerr"
)

// errInvalid is the sentinel Validate wraps every rejection in, so callers
// can distinguish a bad Config from any other startup failure and map it to
// exit code 2.
var errInvalid = lifxerr.ErrInvalidCommand

// Verbosity is a log threshold. The only accepted values are the four
// named levels below; anything else is rejected by Validate rather than
// silently clamped.
type Verbosity string

const (
	VerbosityDebug   Verbosity = "debug"
	VerbosityInfo    Verbosity = "info"
	VerbosityWarning Verbosity = "warning"
	VerbosityError   Verbosity = "error"
)

func (v Verbosity) valid() bool {
	switch v {
	case VerbosityDebug, VerbosityInfo, VerbosityWarning, VerbosityError:
		return true
	}
	return false
}

// Defaults match the values named in the external interface table.
const (
	DefaultActiveDiscoveryInterval  = 2000 * time.Millisecond
	DefaultPassiveDiscoveryInterval = 60000 * time.Millisecond
	DefaultDeviceTimeout            = 30000 * time.Millisecond
	DefaultWatchdogInterval         = 5000 * time.Millisecond
	DefaultRefreshPeriod            = 1000 * time.Millisecond
	DefaultForceRefreshInterval     = 5000 * time.Millisecond
	DefaultQueryTimeout             = 2000 * time.Millisecond
	DefaultMaxPacketsPerSec         = 50
)

// Config is the full set of options the core accepts from the outer
// program. Zero-value fields are filled in with Defaults by Normalize.
type Config struct {
	Verbosity Verbosity

	ActiveDiscoveryInterval  time.Duration
	PassiveDiscoveryInterval time.Duration
	DeviceTimeout            time.Duration
	WatchdogInterval         time.Duration
	RefreshPeriod            time.Duration
	ForceRefreshInterval     time.Duration
	QueryTimeout             time.Duration

	// MaxPacketsPerSec bounds the per-gateway outbound refresh rate (§4.C.3).
	MaxPacketsPerSec int
}

// Default returns a Config with every option set to its documented default.
func Default() *Config {
	return &Config{
		Verbosity:                VerbosityInfo,
		ActiveDiscoveryInterval:  DefaultActiveDiscoveryInterval,
		PassiveDiscoveryInterval: DefaultPassiveDiscoveryInterval,
		DeviceTimeout:            DefaultDeviceTimeout,
		WatchdogInterval:         DefaultWatchdogInterval,
		RefreshPeriod:            DefaultRefreshPeriod,
		ForceRefreshInterval:     DefaultForceRefreshInterval,
		QueryTimeout:             DefaultQueryTimeout,
		MaxPacketsPerSec:         DefaultMaxPacketsPerSec,
	}
}

// Normalize fills any zero-value duration/count field with its default.
// It does not touch Verbosity: an empty Verbosity is caught by Validate.
func (c *Config) Normalize() {
	d := Default()
	if c.ActiveDiscoveryInterval == 0 {
		c.ActiveDiscoveryInterval = d.ActiveDiscoveryInterval
	}
	if c.PassiveDiscoveryInterval == 0 {
		c.PassiveDiscoveryInterval = d.PassiveDiscoveryInterval
	}
	if c.DeviceTimeout == 0 {
		c.DeviceTimeout = d.DeviceTimeout
	}
	if c.WatchdogInterval == 0 {
		c.WatchdogInterval = d.WatchdogInterval
	}
	if c.RefreshPeriod == 0 {
		c.RefreshPeriod = d.RefreshPeriod
	}
	if c.ForceRefreshInterval == 0 {
		c.ForceRefreshInterval = d.ForceRefreshInterval
	}
	if c.QueryTimeout == 0 {
		c.QueryTimeout = d.QueryTimeout
	}
	if c.MaxPacketsPerSec == 0 {
		c.MaxPacketsPerSec = d.MaxPacketsPerSec
	}
}

// Validate rejects a Config the outer program must not be allowed to start
// with. Every duration must be non-negative, MaxPacketsPerSec positive, and
// Verbosity one of the four named levels -- unknown levels are rejected
// here rather than silently mapped to a default (spec's §9 open question).
func (c *Config) Validate() error {
	if !c.Verbosity.valid() {
		return fmt.Errorf("%w: unknown verbosity %q", errInvalid, c.Verbosity)
	}
	for name, d := range map[string]time.Duration{
		"active_discovery_interval_ms":  c.ActiveDiscoveryInterval,
		"passive_discovery_interval_ms": c.PassiveDiscoveryInterval,
		"device_timeout_ms":             c.DeviceTimeout,
		"watchdog_interval_ms":          c.WatchdogInterval,
		"refresh_period_ms":             c.RefreshPeriod,
		"force_refresh_interval_ms":     c.ForceRefreshInterval,
		"query_timeout_ms":              c.QueryTimeout,
	} {
		if d < 0 {
			return fmt.Errorf("%w: %s must be non-negative, got %s", errInvalid, name, d)
		}
	}
	if c.PassiveDiscoveryInterval < c.ActiveDiscoveryInterval {
		return fmt.Errorf("%w: passive_discovery_interval_ms must be >= active_discovery_interval_ms", errInvalid)
	}
	if c.MaxPacketsPerSec <= 0 {
		return fmt.Errorf("%w: max_packets_per_sec must be positive, got %d", errInvalid, c.MaxPacketsPerSec)
	}
	return nil
}
