package dispatch

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightsd-go/lightsd/internal/config"
	"github.com/lightsd-go/lightsd/internal/lifxerr"
	"github.com/lightsd-go/lightsd/internal/protocol"
	"github.com/lightsd-go/lightsd/internal/protocol/packets"
	"github.com/lightsd-go/lightsd/internal/testutil"
	"github.com/lightsd-go/lightsd/pkg/bulb"
	"github.com/lightsd-go/lightsd/pkg/gateway"
	"github.com/lightsd-go/lightsd/pkg/tagindex"
)

func devId(b byte) protocol.DeviceId {
	return protocol.DeviceId{b, b, b, b, b, b}
}

// testHarness wires a registry, tag index, and a single open gateway behind
// a mock UDP peer, exactly as the Core loop would for a single site.
type testHarness struct {
	reg *bulb.Registry
	idx *tagindex.Index
	gw  *gateway.Gateway
	d   *Dispatcher
}

func newHarness(t *testing.T, cfg *config.Config) *testHarness {
	t.Helper()
	_, addr := testutil.NewMockUDPServer(t, func(*protocol.Message, *net.UDPAddr) {})

	reg := bulb.NewRegistry(nil)
	idx := tagindex.New()
	gw, err := gateway.Open(protocol.SiteId{1}, addr, cfg, reg, idx)
	require.NoError(t, err)
	t.Cleanup(func() { gw.Close() })

	lookup := func(key string) *gateway.Gateway {
		if key == gw.Key() {
			return gw
		}
		return nil
	}

	return &testHarness{reg: reg, idx: idx, gw: gw, d: New(reg, idx, lookup, cfg)}
}

func (h *testHarness) seedBulb(t *testing.T, id protocol.DeviceId) *bulb.Bulb {
	t.Helper()
	msg := protocol.NewMessage(&packets.LightStatus{Power: 65535})
	msg.SetTargetDeviceId(id)
	h.gw.HandleInbound(msg, time.Now())
	b := h.reg.Get(id)
	require.NotNil(t, b)
	return b
}

func TestDispatchPowerOnResolvesWildcard(t *testing.T) {
	h := newHarness(t, config.Default())
	h.seedBulb(t, devId(1))
	h.seedBulb(t, devId(2))

	res, err := h.d.Dispatch(Command{TargetSpec: "*", Verb: VerbPowerOn})
	require.NoError(t, err)
	require.Len(t, res.Targets, 2)
	for _, tr := range res.Targets {
		assert.Equal(t, StatusOK, tr.Status)
	}
}

func TestDispatchRejectsSpecWithoutHashOrStar(t *testing.T) {
	h := newHarness(t, config.Default())
	h.seedBulb(t, devId(1))

	_, err := h.d.Dispatch(Command{TargetSpec: "kitchen", Verb: VerbPowerOn})
	assert.ErrorIs(t, err, lifxerr.ErrInvalidCommand)
}

func TestDispatchResolvesByExactDeviceIdHex(t *testing.T) {
	h := newHarness(t, config.Default())
	id := devId(0xAB)
	h.seedBulb(t, id)

	spec := "#" + hexString(id)
	res, err := h.d.Dispatch(Command{TargetSpec: spec, Verb: VerbPowerOn})
	require.NoError(t, err)
	require.Len(t, res.Targets, 1)
	assert.Equal(t, id, res.Targets[0].DeviceId)
}

func TestDispatchUnknownDeviceIdReturnsTargetNotFound(t *testing.T) {
	h := newHarness(t, config.Default())
	spec := "#" + hexString(devId(0xFF))
	_, err := h.d.Dispatch(Command{TargetSpec: spec, Verb: VerbPowerOn})
	assert.ErrorIs(t, err, lifxerr.ErrTargetNotFound)
}

func TestDispatchSetLightFromHSBKValidatesKelvin(t *testing.T) {
	h := newHarness(t, config.Default())
	h.seedBulb(t, devId(5))

	_, err := h.d.Dispatch(Command{
		TargetSpec: "*",
		Verb:       VerbSetLightFromHSBK,
		Args:       Args{Kelvin: 1000},
	})
	assert.ErrorIs(t, err, lifxerr.ErrInvalidCommand)

	_, err = h.d.Dispatch(Command{
		TargetSpec: "*",
		Verb:       VerbSetLightFromHSBK,
		Args:       Args{Kelvin: 3500},
	})
	assert.NoError(t, err)
}

func TestDispatchGetLightStateTimesOutWithoutReply(t *testing.T) {
	cfg := config.Default()
	cfg.QueryTimeout = 20 * time.Millisecond
	h := newHarness(t, cfg)
	h.seedBulb(t, devId(7))

	res, err := h.d.Dispatch(Command{TargetSpec: "*", Verb: VerbGetLightState})
	require.NoError(t, err)
	require.Len(t, res.Targets, 1)
	assert.Equal(t, StatusTimeout, res.Targets[0].Status)
}

func TestDispatchGetLightStateCollectsReply(t *testing.T) {
	cfg := config.Default()
	cfg.QueryTimeout = 200 * time.Millisecond
	h := newHarness(t, cfg)
	id := devId(9)
	h.seedBulb(t, id)

	go func() {
		time.Sleep(10 * time.Millisecond)
		reply := protocol.NewMessage(&packets.LightStatus{Power: 65535, Color: packets.HSBK{Kelvin: 4000}})
		reply.SetTargetDeviceId(id)
		h.gw.HandleInbound(reply, time.Now())
	}()

	res, err := h.d.Dispatch(Command{TargetSpec: "*", Verb: VerbGetLightState})
	require.NoError(t, err)
	require.Len(t, res.Targets, 1)
	assert.Equal(t, StatusOK, res.Targets[0].Status)
	require.NotNil(t, res.Targets[0].State)
	assert.Equal(t, uint16(4000), res.Targets[0].State.Kelvin)
}

func TestDispatchTagAllocatesSlotAndUpdatesBitmap(t *testing.T) {
	h := newHarness(t, config.Default())
	id := devId(11)
	h.seedBulb(t, id)

	res, err := h.d.Dispatch(Command{Verb: VerbTag, Args: Args{DeviceId: id, Label: "kitchen"}})
	require.NoError(t, err)
	require.Len(t, res.Targets, 1)
	assert.Equal(t, StatusOK, res.Targets[0].Status)

	b := h.reg.Get(id)
	require.NotNil(t, b)
	assert.NotZero(t, b.TagIds())

	res, err = h.d.Dispatch(Command{Verb: VerbUntag, Args: Args{DeviceId: id, Label: "kitchen"}})
	require.NoError(t, err)
	assert.Equal(t, StatusOK, res.Targets[0].Status)
	assert.Zero(t, h.reg.Get(id).TagIds())
}

func TestDispatchUntagUnknownDeviceFails(t *testing.T) {
	h := newHarness(t, config.Default())
	_, err := h.d.Dispatch(Command{Verb: VerbUntag, Args: Args{DeviceId: devId(0xEE), Label: "x"}})
	assert.ErrorIs(t, err, lifxerr.ErrTargetNotFound)
}

func hexString(id protocol.DeviceId) string {
	const hexDigits = "0123456789abcdef"
	buf := make([]byte, 0, len(id)*2)
	for _, b := range id {
		buf = append(buf, hexDigits[b>>4], hexDigits[b&0x0F])
	}
	return string(buf)
}
