// Package tagindex maintains the global view of user-defined tags
// (component H): label -> set of (gateway, tag_id), synthesised from the
// per-gateway tag tables gateway sessions own.
package tagindex

import (
	"sync"

	"github.com/lightsd-go/lightsd/pkg/bulb"
	"github.com/lightsd-go/lightsd/pkg/iterator"
)

// slot identifies one gateway's tag table entry.
type slot struct {
	gateway string
	tagID   uint
}

// Index aggregates label -> set<(gateway, tag_id)>, per §4.H.
type Index struct {
	mu     sync.Mutex
	labels map[string]map[slot]struct{}
}

// New returns an empty Index.
func New() *Index {
	return &Index{labels: make(map[string]map[slot]struct{})}
}

// SetLabel records that gateway's tag slot tagID carries label, replacing
// whatever label that slot previously carried.
func (idx *Index) SetLabel(gateway string, tagID uint, label string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	s := slot{gateway: gateway, tagID: tagID}
	for l, slots := range idx.labels {
		if _, ok := slots[s]; ok {
			delete(slots, s)
			if len(slots) == 0 {
				delete(idx.labels, l)
			}
		}
	}

	if idx.labels[label] == nil {
		idx.labels[label] = make(map[slot]struct{})
	}
	idx.labels[label][s] = struct{}{}
}

// ClearGateway drops every slot belonging to gateway, e.g. on gateway
// close: tag labels are gateway-private and do not survive a reopen.
func (idx *Index) ClearGateway(gateway string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	for l, slots := range idx.labels {
		for s := range slots {
			if s.gateway == gateway {
				delete(slots, s)
			}
		}
		if len(slots) == 0 {
			delete(idx.labels, l)
		}
	}
}

// Resolve returns the deduplicated set of bulbs whose owning gateway has a
// tag slot labelled label and whose tag_ids bit for that slot is set.
func (idx *Index) Resolve(label string, reg *bulb.Registry) []*bulb.Bulb {
	idx.mu.Lock()
	slots := make([]slot, 0, len(idx.labels[label]))
	for s := range idx.labels[label] {
		slots = append(slots, s)
	}
	idx.mu.Unlock()

	if len(slots) == 0 {
		return nil
	}

	wanted := make(map[string]uint64, len(slots))
	for _, s := range slots {
		wanted[s.gateway] |= 1 << s.tagID
	}

	var out []*bulb.Bulb
	for _, b := range reg.Iterate() {
		if mask, ok := wanted[b.OwningGateway]; ok && b.TagIds()&mask != 0 {
			out = append(out, b)
		}
	}
	return out
}

// ScanTagIds yields every tag slot index set in bitmap, 0..63.
func ScanTagIds(bitmap uint64) func(yield func(uint) bool) {
	return func(yield func(uint) bool) {
		for i := range iterator.IterateUp(0, 64) {
			if bitmap&(1<<uint(i)) != 0 {
				if !yield(uint(i)) {
					return
				}
			}
		}
	}
}
