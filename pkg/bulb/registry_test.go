package bulb

import (
	"testing"

	"github.com/lightsd-go/lightsd/internal/protocol"
	"github.com/stretchr/testify/assert"
)

func id(b byte) protocol.DeviceId {
	return protocol.DeviceId{b, b, b, b, b, b}
}

func TestUpsertInsertsThenRebinds(t *testing.T) {
	r := NewRegistry(nil)

	b := r.Upsert(id(1), protocol.SiteId{}, "gw1:56700")
	assert.NotNil(t, b)
	assert.Equal(t, "gw1:56700", b.OwningGateway)

	same := r.Upsert(id(1), protocol.SiteId{}, "gw2:56700")
	assert.Same(t, b, same)
	assert.Equal(t, "gw2:56700", b.OwningGateway)
	assert.Equal(t, 1, r.Len())
}

func TestRemoveIsIdempotentAndFiresCallback(t *testing.T) {
	var removed []protocol.DeviceId
	r := NewRegistry(func(b *Bulb) { removed = append(removed, b.DeviceId) })

	r.Upsert(id(1), protocol.SiteId{}, "gw1:56700")
	r.Remove(id(1))
	r.Remove(id(1)) // idempotent, no second callback

	assert.Equal(t, []protocol.DeviceId{id(1)}, removed)
	assert.Equal(t, 0, r.Len())
	assert.Nil(t, r.Get(id(1)))
}

func TestIterateIsOrderedByDeviceId(t *testing.T) {
	r := NewRegistry(nil)
	r.Upsert(id(3), protocol.SiteId{}, "gw")
	r.Upsert(id(1), protocol.SiteId{}, "gw")
	r.Upsert(id(2), protocol.SiteId{}, "gw")

	var got []protocol.DeviceId
	for _, b := range r.Iterate() {
		got = append(got, b.DeviceId)
	}
	assert.Equal(t, []protocol.DeviceId{id(1), id(2), id(3)}, got)
}

func TestRemoveByGateway(t *testing.T) {
	r := NewRegistry(nil)
	r.Upsert(id(1), protocol.SiteId{}, "gw1:56700")
	r.Upsert(id(2), protocol.SiteId{}, "gw2:56700")
	r.Upsert(id(3), protocol.SiteId{}, "gw1:56700")

	r.RemoveByGateway("gw1:56700")

	assert.Equal(t, 1, r.Len())
	assert.NotNil(t, r.Get(id(2)))
}
