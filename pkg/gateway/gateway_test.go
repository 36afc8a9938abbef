package gateway

import (
	"net"
	"testing"
	"time"

	"github.com/lightsd-go/lightsd/internal/config"
	"github.com/lightsd-go/lightsd/internal/lifxerr"
	"github.com/lightsd-go/lightsd/internal/protocol"
	"github.com/lightsd-go/lightsd/internal/protocol/packets"
	"github.com/lightsd-go/lightsd/internal/testutil"
	"github.com/lightsd-go/lightsd/pkg/bulb"
	"github.com/lightsd-go/lightsd/pkg/tagindex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func devId(b byte) protocol.DeviceId {
	return protocol.DeviceId{b, b, b, b, b, b}
}

func newTestGateway(t *testing.T, peer *net.UDPAddr) (*Gateway, *bulb.Registry, *tagindex.Index) {
	t.Helper()
	reg := bulb.NewRegistry(nil)
	idx := tagindex.New()
	gw, err := Open(protocol.SiteId{1}, peer, config.Default(), reg, idx)
	require.NoError(t, err)
	return gw, reg, idx
}

func TestHandleInboundLightStatusUpdatesRegistry(t *testing.T) {
	recvCh := make(chan *protocol.Message, 1)
	conn, addr := testutil.NewMockUDPServer(t, func(msg *protocol.Message, _ *net.UDPAddr) { recvCh <- msg })
	defer conn.Close()

	gw, reg, _ := newTestGateway(t, addr)
	defer gw.conn.Close()

	id := devId(1)
	msg := protocol.NewMessage(&packets.LightStatus{Power: 65535, Tags: 0})
	msg.SetTargetDeviceId(id)

	gw.HandleInbound(msg, time.Now())

	b := reg.Get(id)
	require.NotNil(t, b)
	assert.Equal(t, uint16(65535), b.StateSnapshot().Power)
	assert.Equal(t, gw.Key(), b.OwningGateway)
	assert.Equal(t, StateOpen, gw.State())
}

func TestPipelineFIFOResolution(t *testing.T) {
	_, addr := mockPeer(t)
	gw, _, _ := newTestGateway(t, addr)
	defer gw.conn.Close()

	id := devId(2)
	var order []int
	require.NoError(t, gw.SendQuery(&packets.GetLightState{}, id, packets.TypeLightStatus, func(msg *protocol.Message, err error) {
		order = append(order, 1)
	}))
	require.NoError(t, gw.SendQuery(&packets.GetLightState{}, id, packets.TypeLightStatus, func(msg *protocol.Message, err error) {
		order = append(order, 2)
	}))
	assert.Equal(t, 2, gw.PendingCount())

	reply := protocol.NewMessage(&packets.LightStatus{})
	reply.SetTargetDeviceId(id)

	gw.HandleInbound(reply, time.Now())
	gw.HandleInbound(reply, time.Now())

	assert.Equal(t, []int{1, 2}, order)
	assert.Equal(t, 0, gw.PendingCount())
}

func TestTagLabelsEmptyReplyDoesNotClearExistingLabel(t *testing.T) {
	_, addr := mockPeer(t)
	gw, _, idx := newTestGateway(t, addr)
	defer gw.conn.Close()

	set := protocol.NewMessage(&packets.TagLabels{Tags: 1 << 42, Label: labelBytes("kitchen")})
	gw.HandleInbound(set, time.Now())

	label, known := gw.TagLabel(42)
	assert.True(t, known)
	assert.Equal(t, "kitchen", label)

	empty := protocol.NewMessage(&packets.TagLabels{Tags: 0})
	gw.HandleInbound(empty, time.Now())

	label, known = gw.TagLabel(42)
	assert.True(t, known)
	assert.Equal(t, "kitchen", label)

	bulbs := idx.Resolve("kitchen", gw.registry)
	_ = bulbs // index resolution is exercised in tagindex's own tests
}

func TestCloseCancelsPendingAndReleasesBulbs(t *testing.T) {
	_, addr := mockPeer(t)
	gw, reg, idx := newTestGateway(t, addr)

	id := devId(3)
	status := protocol.NewMessage(&packets.LightStatus{})
	status.SetTargetDeviceId(id)
	gw.HandleInbound(status, time.Now())
	require.NotNil(t, reg.Get(id))

	var gotErr error
	require.NoError(t, gw.SendQuery(&packets.GetLightState{}, id, packets.TypeLightStatus, func(msg *protocol.Message, err error) {
		gotErr = err
	}))

	require.NoError(t, gw.Close())

	// Teardown (pending cancellation, bulb/tag release, the Closed state
	// transition) finishes on Close's own goroutine after the drain window.
	require.Eventually(t, func() bool {
		return gw.State() == StateClosed
	}, 2*closeDrainWindow, 10*time.Millisecond)

	assert.ErrorIs(t, gotErr, lifxerr.ErrCancelled)
	assert.Nil(t, reg.Get(id))
	assert.Empty(t, idx.Resolve("anything", reg))
}

func mockPeer(t *testing.T) (*net.UDPConn, *net.UDPAddr) {
	t.Helper()
	return testutil.NewMockUDPServer(t, func(*protocol.Message, *net.UDPAddr) {})
}

func labelBytes(s string) [32]byte {
	var b [32]byte
	copy(b[:], s)
	return b
}
