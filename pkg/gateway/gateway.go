// Package gateway implements the gateway session (component C): the peer
// that owns the outbound request pipeline toward a site's bulbs, tracks
// jitter-corrected latency, staggers per-bulb refreshes, and maintains the
// gateway-local tag-label table.
package gateway

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/lightsd-go/lightsd/internal/config"
	"github.com/lightsd-go/lightsd/internal/lifxerr"
	"github.com/lightsd-go/lightsd/internal/protocol"
	"github.com/lightsd-go/lightsd/internal/protocol/packets"
	"github.com/lightsd-go/lightsd/pkg/bulb"
	"github.com/lightsd-go/lightsd/pkg/tagindex"
)

const closeDrainWindow = 500 * time.Millisecond

// ReplyHandler is invoked once a pending request resolves: msg is the
// matching reply, or nil with err set to lifxerr.ErrCancelled if the
// gateway closed first.
type ReplyHandler func(msg *protocol.Message, err error)

type pendingRequest struct {
	replyType uint16
	target    protocol.DeviceId
	issuedAt  time.Time
	handler   ReplyHandler
}

type tagSlot struct {
	known    bool
	label    string
	lastSeen time.Time
}

// Gateway is one open peer representing a LIFX site's gateway bulb.
type Gateway struct {
	SiteId protocol.SiteId
	Addr   *net.UDPAddr

	conn     *net.UDPConn
	cfg      *config.Config
	registry *bulb.Registry
	tagIdx   *tagindex.Index

	mu            sync.Mutex
	state         State
	pending       []*pendingRequest
	tags          [64]tagSlot
	tagRequested  [64]bool
	bulbs         map[protocol.DeviceId]struct{}
	lastPktAt     time.Time
	latencyMs     float64
	haveLatencyMs bool
}

// Open dials the gateway's UDP peer and returns a session in StateOpening.
// registry and tagIdx are the shared components this session mutates as
// traffic arrives.
func Open(siteId protocol.SiteId, addr *net.UDPAddr, cfg *config.Config, registry *bulb.Registry, tagIdx *tagindex.Index) (*Gateway, error) {
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		if isResourceExhausted(err) {
			return nil, fmt.Errorf("%w: opening gateway %s: %v", lifxerr.ErrResourceExhausted, addr, err)
		}
		return nil, fmt.Errorf("%w: opening gateway %s: %v", lifxerr.ErrGatewayIO, addr, err)
	}

	return &Gateway{
		SiteId:   siteId,
		Addr:     addr,
		conn:     conn,
		cfg:      cfg,
		registry: registry,
		tagIdx:   tagIdx,
		state:    StateOpening,
		bulbs:    make(map[protocol.DeviceId]struct{}),
	}, nil
}

func isResourceExhausted(err error) bool {
	return errors.Is(err, syscall.EMFILE) || errors.Is(err, syscall.ENFILE)
}

// Key identifies this gateway session across the daemon (registry owning
// gateway, tag index slot namespace). It is the peer's address string.
func (g *Gateway) Key() string {
	return g.Addr.String()
}

// State returns the session's current lifecycle stage.
func (g *Gateway) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// LastPacketAt returns the last time any inbound packet was handled.
func (g *Gateway) LastPacketAt() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastPktAt
}

// Lag reports how long it has been since the last inbound packet, relative
// to now. Used by the watchdog's gw_lag checks (§4.E).
func (g *Gateway) Lag(now time.Time) time.Duration {
	last := g.LastPacketAt()
	if last.IsZero() {
		return 0
	}
	return now.Sub(last)
}

// LatencyEstimate returns the current EWMA latency estimate.
func (g *Gateway) LatencyEstimate() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return time.Duration(g.latencyMs * float64(time.Millisecond))
}

// BulbIds returns the device ids this session currently believes it owns,
// in no particular order.
func (g *Gateway) BulbIds() []protocol.DeviceId {
	g.mu.Lock()
	defer g.mu.Unlock()
	ids := make([]protocol.DeviceId, 0, len(g.bulbs))
	for id := range g.bulbs {
		ids = append(ids, id)
	}
	return ids
}

// PendingCount returns the number of outstanding requests.
func (g *Gateway) PendingCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}

// SendCommand writes a fire-and-forget packet to target with no pending
// reply tracking.
func (g *Gateway) SendCommand(payload packets.Payload, target protocol.DeviceId) error {
	return g.send(payload, target)
}

// SendQuery writes a packet to target and, if handler is non-nil, enqueues
// a PendingRequest awaiting replyType from target. Replies resolve FIFO
// over the pending queue filtered by (target, replyType).
func (g *Gateway) SendQuery(payload packets.Payload, target protocol.DeviceId, replyType uint16, handler ReplyHandler) error {
	if handler != nil {
		g.mu.Lock()
		g.pending = append(g.pending, &pendingRequest{
			replyType: replyType,
			target:    target,
			issuedAt:  time.Now(),
			handler:   handler,
		})
		g.mu.Unlock()
	}
	return g.send(payload, target)
}

func (g *Gateway) send(payload packets.Payload, target protocol.DeviceId) error {
	msg := protocol.NewMessage(payload)
	msg.SetTargetDeviceId(target)
	msg.SetSite(g.SiteId)

	data, err := msg.MarshalBinary()
	if err != nil {
		return fmt.Errorf("gateway: marshal: %w", err)
	}

	if _, err := g.conn.Write(data); err != nil {
		return fmt.Errorf("%w: %v", lifxerr.ErrGatewayIO, err)
	}
	return nil
}

// MarkOpen transitions Opening -> Open, on socket connect confirmation for
// UDP that is the first accepted reply.
func (g *Gateway) MarkOpen() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == StateOpening {
		g.state = StateOpen
	}
}

// HandleInbound applies a decoded message from this gateway's peer: it
// updates bulb state, the tag-label table, and resolves any matching
// pending request.
func (g *Gateway) HandleInbound(msg *protocol.Message, now time.Time) {
	g.mu.Lock()
	g.lastPktAt = now
	if g.state == StateOpening {
		g.state = StateOpen
	}
	g.mu.Unlock()

	switch p := msg.Payload.(type) {
	case *packets.LightStatus:
		g.applyLightStatus(msg.Header.TargetDeviceId(), p, now)
	case *packets.TagLabels:
		g.applyTagLabels(p, now)
	}

	g.resolve(msg.Payload.PayloadType(), msg.Header.TargetDeviceId(), msg, now)
}

func (g *Gateway) applyLightStatus(id protocol.DeviceId, p *packets.LightStatus, now time.Time) {
	b := g.registry.Upsert(id, g.SiteId, g.Key())
	b.ApplyLightStatus(p, now)

	g.mu.Lock()
	g.bulbs[id] = struct{}{}
	g.mu.Unlock()

	g.requestUnknownTagLabels(p.Tags)
}

// requestUnknownTagLabels issues GetTagLabels for every tag slot referenced
// by bitmap that this gateway hasn't yet resolved or already asked about.
func (g *Gateway) requestUnknownTagLabels(bitmap uint64) {
	var toRequest uint64
	g.mu.Lock()
	for i := range tagindex.ScanTagIds(bitmap) {
		if !g.tags[i].known && !g.tagRequested[i] {
			toRequest |= 1 << i
			g.tagRequested[i] = true
		}
	}
	g.mu.Unlock()

	if toRequest == 0 {
		return
	}
	if err := g.SendQuery(packets.NewGetTagLabels(toRequest), protocol.DeviceId{}, packets.TypeTagLabels, nil); err != nil {
		log.WithError(err).WithField("gateway", g.Key()).Warn("Failed to request tag labels")
	}
}

// applyTagLabels updates slot labels. A Tags==0 reply is a no-op: it must
// not clear any existing label (§8 boundary behaviour).
func (g *Gateway) applyTagLabels(p *packets.TagLabels, now time.Time) {
	if p.Tags == 0 {
		return
	}
	label := p.LabelString()

	g.mu.Lock()
	for i := range tagindex.ScanTagIds(p.Tags) {
		g.tags[i] = tagSlot{known: true, label: label, lastSeen: now}
		g.tagRequested[i] = false
	}
	g.mu.Unlock()

	for i := range tagindex.ScanTagIds(p.Tags) {
		g.tagIdx.SetLabel(g.Key(), i, label)
	}
}

// TagLabel returns the label known for tag slot i, and whether it is known.
func (g *Gateway) TagLabel(i uint) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if i >= 64 {
		return "", false
	}
	return g.tags[i].label, g.tags[i].known
}

// AllocateTagSlot returns the existing slot already carrying label, or
// claims the first free slot for it, issuing SetTagLabels to the gateway
// and updating the global tag index. The second return is false if every
// slot is already in use by a different label.
func (g *Gateway) AllocateTagSlot(label string) (uint, bool) {
	g.mu.Lock()
	slot := uint(0)
	found := false
	for i := range g.tags {
		if g.tags[i].known && g.tags[i].label == label {
			slot, found = uint(i), true
			break
		}
	}
	if !found {
		for i := range g.tags {
			if !g.tags[i].known {
				g.tags[i] = tagSlot{known: true, label: label, lastSeen: time.Now()}
				slot, found = uint(i), true
				break
			}
		}
	}
	g.mu.Unlock()

	if !found {
		return 0, false
	}

	if err := g.SendCommand(packets.NewSetTagLabels(slot, label), protocol.DeviceId{}); err != nil {
		log.WithError(err).WithField("gateway", g.Key()).Warn("Failed to send SetTagLabels")
	}
	g.tagIdx.SetLabel(g.Key(), slot, label)
	return slot, true
}

func (g *Gateway) resolve(replyType uint16, target protocol.DeviceId, msg *protocol.Message, now time.Time) {
	g.mu.Lock()
	var pr *pendingRequest
	for i, p := range g.pending {
		if p.replyType == replyType && p.target == target {
			pr = p
			g.pending = append(g.pending[:i], g.pending[i+1:]...)
			break
		}
	}
	if pr != nil {
		g.updateLatencyLocked(now.Sub(pr.issuedAt))
	}
	g.mu.Unlock()

	if pr != nil && pr.handler != nil {
		pr.handler(msg, nil)
	}
}

// updateLatencyLocked applies the EWMA: latency = 0.125*sample + 0.875*previous.
func (g *Gateway) updateLatencyLocked(sample time.Duration) {
	ms := float64(sample) / float64(time.Millisecond)
	if !g.haveLatencyMs {
		g.latencyMs = ms
		g.haveLatencyMs = true
		return
	}
	g.latencyMs = 0.125*ms + 0.875*g.latencyMs
}

// ForceRefresh fans out a GetLightState to every bulb this gateway owns,
// used by the watchdog when a gateway is sluggish but not yet stale
// (§4.E, supplemented from the source's lgtd_lifx_gateway_force_refresh).
func (g *Gateway) ForceRefresh() {
	for _, id := range g.BulbIds() {
		if err := g.SendQuery(&packets.GetLightState{}, id, packets.TypeLightStatus, nil); err != nil {
			log.WithError(err).WithField("gateway", g.Key()).Debug("Force refresh send failed")
		}
	}
}

// RunRefreshLoop staggers a GetLightState across this gateway's bulb set
// so the per-gateway outbound rate stays bounded by cfg.MaxPacketsPerSec,
// until stop is closed.
func (g *Gateway) RunRefreshLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(g.staggerInterval())
	defer ticker.Stop()

	idx := 0
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ids := g.BulbIds()
			if len(ids) > 0 {
				id := ids[idx%len(ids)]
				idx++
				if err := g.SendQuery(&packets.GetLightState{}, id, packets.TypeLightStatus, nil); err != nil {
					log.WithError(err).WithField("gateway", g.Key()).Debug("Refresh send failed")
				}
			}
			ticker.Reset(g.staggerInterval())
		}
	}
}

func (g *Gateway) staggerInterval() time.Duration {
	g.mu.Lock()
	n := len(g.bulbs)
	g.mu.Unlock()

	rate := n
	if rate > g.cfg.MaxPacketsPerSec {
		rate = g.cfg.MaxPacketsPerSec
	}
	if rate < 1 {
		rate = 1
	}
	return g.cfg.RefreshPeriod / time.Duration(rate)
}

// RunRecvLoop reads from this gateway's dedicated UDP socket until it is
// closed or stop fires, decoding each datagram and handing it to
// HandleInbound. Malformed frames are dropped.
func (g *Gateway) RunRecvLoop(stop <-chan struct{}) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, 1024)
		for {
			n, err := g.conn.Read(buf)
			if err != nil {
				return
			}

			var msg protocol.Message
			if err := msg.UnmarshalBinary(buf[:n]); err != nil {
				log.WithError(err).WithField("gateway", g.Key()).Debug("Dropping malformed frame")
				continue
			}
			g.HandleInbound(&msg, time.Now())
		}
	}()

	select {
	case <-stop:
		g.conn.Close()
		<-done
	case <-done:
	}
}

// Close transitions Closing -> Closed: it closes the socket immediately (so
// RunRecvLoop's blocking Read unblocks and stops handing this gateway any
// more inbound packets), then drains for up to 500ms on its own goroutine
// before cancelling remaining pending requests and releasing owned bulbs
// and this gateway's tag slots. Close itself returns as soon as the socket
// is closed, without waiting out the drain window, so a watchdog sweep
// closing several gateways in the same tick doesn't serialize behind it.
func (g *Gateway) Close() error {
	g.mu.Lock()
	if g.state == StateClosing || g.state == StateClosed {
		g.mu.Unlock()
		return nil
	}
	g.state = StateClosing
	pending := g.pending
	g.pending = nil
	g.mu.Unlock()

	closeErr := g.conn.Close()
	if closeErr != nil && errors.Is(closeErr, net.ErrClosed) {
		closeErr = nil
	}

	go g.finishClose(pending)

	return closeErr
}

// finishClose runs the drain window and subsequent teardown off of Close's
// caller, so closing many gateways at once costs at most one drain window
// of wall-clock time, not one per gateway.
func (g *Gateway) finishClose(pending []*pendingRequest) {
	if len(pending) > 0 {
		time.Sleep(closeDrainWindow)
	}

	for _, pr := range pending {
		if pr.handler != nil {
			pr.handler(nil, lifxerr.ErrCancelled)
		}
	}

	g.mu.Lock()
	g.state = StateClosed
	g.mu.Unlock()

	g.registry.RemoveByGateway(g.Key())
	g.tagIdx.ClearGateway(g.Key())
}
