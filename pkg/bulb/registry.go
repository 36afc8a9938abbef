package bulb

import (
	"bytes"
	"slices"
	"sync"

	"github.com/lightsd-go/lightsd/internal/protocol"
)

// Registry is the ordered map keyed by device id described in §4.B. It is
// the single owner of every live Bulb; nothing else is allowed to hold one
// past a call to Remove.
type Registry struct {
	mu        sync.Mutex
	bulbs     map[protocol.DeviceId]*Bulb
	onRemoved func(*Bulb)
}

// NewRegistry returns an empty Registry. onRemoved, if non-nil, fires
// synchronously from Remove with the bulb that was just evicted.
func NewRegistry(onRemoved func(*Bulb)) *Registry {
	return &Registry{
		bulbs:     make(map[protocol.DeviceId]*Bulb),
		onRemoved: onRemoved,
	}
}

// Upsert inserts a new Bulb bound to owningGateway if one doesn't already
// exist for id, or rebinds an existing one's owning gateway. It never
// returns nil.
func (r *Registry) Upsert(id protocol.DeviceId, siteId protocol.SiteId, owningGateway string) *Bulb {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bulbs[id]
	if !ok {
		b = &Bulb{DeviceId: id, SiteId: siteId, OwningGateway: owningGateway}
		r.bulbs[id] = b
		return b
	}
	b.OwningGateway = owningGateway
	return b
}

// Get returns the bulb for id, or nil if unknown.
func (r *Registry) Get(id protocol.DeviceId) *Bulb {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bulbs[id]
}

// Remove deletes id from the registry. It is idempotent: removing an
// unknown id is a no-op. Fires onRemoved with the evicted Bulb.
func (r *Registry) Remove(id protocol.DeviceId) {
	r.mu.Lock()
	b, ok := r.bulbs[id]
	if ok {
		delete(r.bulbs, id)
	}
	r.mu.Unlock()

	if ok && r.onRemoved != nil {
		r.onRemoved(b)
	}
}

// RemoveByGateway removes every bulb currently owned by owningGateway,
// e.g. when that gateway session closes.
func (r *Registry) RemoveByGateway(owningGateway string) {
	for _, b := range r.Iterate() {
		if b.OwningGateway == owningGateway {
			r.Remove(b.DeviceId)
		}
	}
}

// Iterate returns every known Bulb ordered deterministically by device id,
// per §4.B.
func (r *Registry) Iterate() []*Bulb {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Bulb, 0, len(r.bulbs))
	for _, b := range r.bulbs {
		out = append(out, b)
	}
	slices.SortFunc(out, func(a, b *Bulb) int {
		return bytes.Compare(a.DeviceId[:], b.DeviceId[:])
	})
	return out
}

// Len returns the number of known bulbs.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bulbs)
}
