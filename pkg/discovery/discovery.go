// Package discovery implements the discovery controller (component E): the
// adaptive broadcast timer that finds new gateways and the watchdog timer
// that reaps stale bulbs/gateways and keeps sluggish ones refreshed.
package discovery

import (
	"net"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/lightsd-go/lightsd/internal/config"
	"github.com/lightsd-go/lightsd/internal/lifxerr"
	"github.com/lightsd-go/lightsd/internal/protocol"
	"github.com/lightsd-go/lightsd/pkg/broadcast"
	"github.com/lightsd-go/lightsd/pkg/bulb"
	"github.com/lightsd-go/lightsd/pkg/gateway"
	"github.com/lightsd-go/lightsd/pkg/tagindex"
)

// Controller owns the discovery and watchdog timers and the gateway list
// they operate on.
type Controller struct {
	cfg      *config.Config
	bc       *broadcast.Socket
	registry *bulb.Registry
	tagIdx   *tagindex.Index

	mu       sync.Mutex
	interval time.Duration
	gateways map[string]*gateway.Gateway

	nudge chan struct{}
}

// New returns a Controller in its initial active-discovery state.
func New(cfg *config.Config, bc *broadcast.Socket, registry *bulb.Registry, tagIdx *tagindex.Index) *Controller {
	return &Controller{
		cfg:      cfg,
		bc:       bc,
		registry: registry,
		tagIdx:   tagIdx,
		interval: cfg.ActiveDiscoveryInterval,
		gateways: make(map[string]*gateway.Gateway),
		nudge:    make(chan struct{}, 1),
	}
}

// Gateways returns every currently open gateway session.
func (c *Controller) Gateways() []*gateway.Gateway {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*gateway.Gateway, 0, len(c.gateways))
	for _, gw := range c.gateways {
		out = append(out, gw)
	}
	return out
}

// Gateway returns the open session for key, or nil.
func (c *Controller) Gateway(key string) *gateway.Gateway {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gateways[key]
}

// Interval returns the discovery timer's current period.
func (c *Controller) Interval() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interval
}

// Nudge requests one immediate broadcast without disturbing the discovery
// timer's phase, per the source's start_discovery flag and §4.E's watchdog
// behaviour.
func (c *Controller) Nudge() {
	select {
	case c.nudge <- struct{}{}:
	default:
	}
}

// OnGatewaySeen opens a new gateway session for (siteId, addr) if one isn't
// already open, and starts its receive and refresh loops.
func (c *Controller) OnGatewaySeen(siteId protocol.SiteId, addr *net.UDPAddr, stop <-chan struct{}) {
	key := addr.String()

	c.mu.Lock()
	if _, ok := c.gateways[key]; ok {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	gw, err := gateway.Open(siteId, addr, c.cfg, c.registry, c.tagIdx)
	if err != nil {
		log.WithError(err).WithField("addr", addr).Warn("Declining new gateway")
		return
	}
	gw.MarkOpen()

	c.mu.Lock()
	c.gateways[key] = gw
	c.mu.Unlock()

	go gw.RunRecvLoop(stop)
	go gw.RunRefreshLoop(stop)
}

func (c *Controller) closeGateway(gw *gateway.Gateway) {
	c.mu.Lock()
	delete(c.gateways, gw.Key())
	c.mu.Unlock()
	if err := gw.Close(); err != nil {
		log.WithError(err).WithField("gateway", gw.Key()).Warn("Error closing gateway")
	}
}

func (c *Controller) gatewayCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.gateways)
}

// Run drives the discovery and watchdog timers until stop is closed.
func (c *Controller) Run(stop <-chan struct{}) {
	discoveryTimer := time.NewTimer(c.Interval())
	watchdogTicker := time.NewTicker(c.cfg.WatchdogInterval)
	defer discoveryTimer.Stop()
	defer watchdogTicker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-c.nudge:
			_ = c.bc.SendDiscover()
		case <-discoveryTimer.C:
			c.fireDiscoveryTimer()
			discoveryTimer.Reset(c.Interval())
		case <-watchdogTicker.C:
			c.fireWatchdog()
		}
	}
}

// fireDiscoveryTimer implements §4.E's active/passive back-off: if no
// gateways exist the interval resets to ACTIVE_INTERVAL_MS, otherwise it
// doubles up to PASSIVE_INTERVAL_MS. Either way it broadcasts.
func (c *Controller) fireDiscoveryTimer() {
	c.mu.Lock()
	if len(c.gateways) == 0 {
		c.interval = c.cfg.ActiveDiscoveryInterval
	} else {
		next := c.interval * 2
		if next > c.cfg.PassiveDiscoveryInterval {
			next = c.cfg.PassiveDiscoveryInterval
		}
		c.interval = next
	}
	c.mu.Unlock()

	if err := c.bc.SendDiscover(); err != nil {
		log.WithError(err).Warn("Discovery broadcast failed")
	}
}

// fireWatchdog reaps stale bulbs and gateways, force-refreshes sluggish
// gateways, and requests an immediate re-discovery broadcast if anything
// was reaped, without resetting the discovery timer's phase.
func (c *Controller) fireWatchdog() {
	now := time.Now()
	startDiscovery := false

	for _, b := range c.registry.Iterate() {
		if b.IsStale(now, c.cfg.DeviceTimeout) {
			c.registry.Remove(b.DeviceId)
			startDiscovery = true
		}
	}

	for _, gw := range c.Gateways() {
		lag := gw.Lag(now)
		switch {
		case lag >= c.cfg.DeviceTimeout:
			log.WithError(lifxerr.ErrGatewayTimeout).WithField("gateway", gw.Key()).WithField("lag", lag).Warn("Gateway unresponsive, closing")
			c.closeGateway(gw)
			startDiscovery = true
		case lag >= c.cfg.ForceRefreshInterval:
			gw.ForceRefresh()
		}
	}

	if startDiscovery {
		c.Nudge()
	}
}
