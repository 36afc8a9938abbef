// Package bulb holds the per-device state cache (component B): a Bulb's
// latest known light state plus the ordered registry that owns every Bulb
// the daemon currently knows about.
package bulb

import (
	"sync"
	"time"

	"github.com/lightsd-go/lightsd/internal/protocol"
	"github.com/lightsd-go/lightsd/internal/protocol/packets"
)

// State is a bulb's latest known light state, as last reported by a
// LightStatus packet.
type State struct {
	Label      string
	Power      uint16
	Hue        uint16
	Saturation uint16
	Brightness uint16
	Kelvin     uint16
	Dim        int16
}

// Bulb is one LIFX light known to the daemon. It is created on first
// observed LightStatus; a Bulb is handed out by Registry and may be held
// by several goroutines at once (the owning gateway's recv loop, the
// dispatcher, the tag index), so every field below that changes after
// creation is guarded by mu and must only be touched through the methods
// on this type, never by direct field access. The registry destroys the
// Bulb when the watchdog finds it stale or when its gateway closes.
type Bulb struct {
	DeviceId protocol.DeviceId
	SiteId   protocol.SiteId

	// OwningGateway is the peer address string (host:port) of the gateway
	// session this bulb currently belongs to. Only written by Registry
	// under its own lock (Upsert), so it needs no mutex of its own here.
	OwningGateway string

	mu               sync.Mutex
	state            State
	tagIds           uint64
	lastLightStateAt time.Time
}

// ApplyLightStatus overwrites State from p and bumps LastLightStateAt. The
// write is idempotent: applying the same packet twice leaves State
// unchanged but still refreshes the timestamp, matching §8 invariant 4.
func (b *Bulb) ApplyLightStatus(p *packets.LightStatus, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = State{
		Label:      p.LabelString(),
		Power:      p.Power,
		Hue:        p.Color.Hue,
		Saturation: p.Color.Saturation,
		Brightness: p.Color.Brightness,
		Kelvin:     p.Color.Kelvin,
		Dim:        p.Dim,
	}
	b.tagIds = p.Tags
	b.lastLightStateAt = now
}

// StateSnapshot returns a copy of the bulb's latest known light state.
func (b *Bulb) StateSnapshot() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// TagIds returns the bulb's current tag_ids bitmap.
func (b *Bulb) TagIds() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tagIds
}

// SetTagIds overwrites the bulb's tag_ids bitmap directly, e.g. to seed a
// bulb's tags in a test.
func (b *Bulb) SetTagIds(bitmap uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tagIds = bitmap
}

// UpdateTagIds holds the bulb's lock across fn, so a read-modify-write
// sequence (e.g. allocate a tag slot, send SetTags, then record the new
// bitmap) is atomic with respect to any other caller updating the same
// bulb's tag_ids. fn receives the current bitmap and returns the bitmap to
// store; if fn returns an error, tag_ids is left unchanged.
func (b *Bulb) UpdateTagIds(fn func(current uint64) (next uint64, err error)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	next, err := fn(b.tagIds)
	if err != nil {
		return err
	}
	b.tagIds = next
	return nil
}

// IsStale reports whether b has not reported a LightStatus within timeout
// of now, the watchdog's reap condition (§4.E).
func (b *Bulb) IsStale(now time.Time, timeout time.Duration) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return now.Sub(b.lastLightStateAt) >= timeout
}

// SetLastLightStateAt overrides the bulb's last-seen timestamp, for tests
// that need to simulate staleness without waiting out a real timeout.
func (b *Bulb) SetLastLightStateAt(t time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastLightStateAt = t
}
