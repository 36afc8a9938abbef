// Package core implements the event core (component G): it owns the bulb
// registry, gateway list, and tag index, and wires the broadcast socket,
// discovery controller, and command dispatcher together behind a single
// init -> run -> shutdown lifecycle (§4.G, §9 Design Note b).
//
// Shared state (the registry, the gateway list, the tag index, and each
// Bulb) is reached from more than one goroutine family: discovery's
// per-gateway recv/refresh loops, the watchdog, and the dispatcher called
// from each JSON-RPC connection's own goroutine. Each owns its own locking
// (bulb.Registry.mu, bulb.Bulb.mu, gateway.Gateway.mu, tagindex.Index.mu);
// Core itself does no locking of its own, it is a thin assembly point, not
// a second serialization point.
package core

import (
	"net"

	log "github.com/sirupsen/logrus"

	"github.com/lightsd-go/lightsd/internal/config"
	"github.com/lightsd-go/lightsd/internal/protocol"
	"github.com/lightsd-go/lightsd/internal/protocol/packets"
	"github.com/lightsd-go/lightsd/pkg/broadcast"
	"github.com/lightsd-go/lightsd/pkg/bulb"
	"github.com/lightsd-go/lightsd/pkg/discovery"
	"github.com/lightsd-go/lightsd/pkg/dispatch"
	"github.com/lightsd-go/lightsd/pkg/tagindex"
)

// Core is the assembled daemon: the shared state plus every goroutine that
// drives it. Zero value is not usable; construct with New.
type Core struct {
	cfg *config.Config

	registry *bulb.Registry
	tagIdx   *tagindex.Index
	bc       *broadcast.Socket
	discCtrl *discovery.Controller
	disp     *dispatch.Dispatcher

	stop chan struct{}
}

// New performs init: it binds the broadcast socket and assembles the bulb
// registry, tag index, discovery controller, and dispatcher around it. It
// does not yet start any goroutine; call Run for that.
func New(cfg *config.Config) (*Core, error) {
	bc, err := broadcast.Open()
	if err != nil {
		return nil, err
	}

	registry := bulb.NewRegistry(nil)
	tagIdx := tagindex.New()
	discCtrl := discovery.New(cfg, bc, registry, tagIdx)
	disp := dispatch.New(registry, tagIdx, discCtrl.Gateway, cfg)

	return &Core{
		cfg:      cfg,
		registry: registry,
		tagIdx:   tagIdx,
		bc:       bc,
		discCtrl: discCtrl,
		disp:     disp,
		stop:     make(chan struct{}),
	}, nil
}

// Run starts the broadcast recv loop and the discovery/watchdog timer loop.
// It blocks until Shutdown is called.
func (c *Core) Run() {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := c.bc.Serve(c.handleBroadcast); err != nil {
			log.WithError(err).Error("Broadcast serve loop exited")
		}
	}()

	c.discCtrl.Run(c.stop)
	c.bc.Close()
	<-done
}

// handleBroadcast runs on the broadcast socket's dedicated I/O goroutine; it
// only decodes and forwards, never touches shared state directly except
// through OnGatewaySeen, which does its own locking (§4.G).
func (c *Core) handleBroadcast(msg *protocol.Message, addr *net.UDPAddr) {
	pg, ok := msg.Payload.(*packets.PanGateway)
	if !ok {
		return
	}
	gatewayAddr := &net.UDPAddr{IP: addr.IP, Port: int(pg.Port)}
	c.discCtrl.OnGatewaySeen(msg.Header.Site, gatewayAddr, c.stop)
}

// Dispatch runs a single command through the command dispatcher (§4.F).
func (c *Core) Dispatch(cmd dispatch.Command) (*dispatch.Result, error) {
	return c.disp.Dispatch(cmd)
}

// BulbCount returns the number of bulbs currently known, for diagnostics.
func (c *Core) BulbCount() int {
	return c.registry.Len()
}

// Shutdown stops every gateway and broadcast goroutine and releases the
// broadcast socket; Run returns once the broadcast loop has drained.
func (c *Core) Shutdown() {
	close(c.stop)
	for _, gw := range c.discCtrl.Gateways() {
		if err := gw.Close(); err != nil {
			log.WithError(err).WithField("gateway", gw.Key()).Warn("Error closing gateway during shutdown")
		}
	}
}
