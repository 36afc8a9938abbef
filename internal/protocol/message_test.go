package protocol_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/lightsd-go/lightsd/internal/protocol"
	"github.com/lightsd-go/lightsd/internal/protocol/packets"
)

// roundTripCases covers every registered packet type with a populated
// payload, per spec.md §8's round-trip law: decode(encode(hdr, payload)) ==
// (hdr, payload).
var roundTripCases = []struct {
	name    string
	payload packets.Payload
}{
	{"GetPanGateway", &packets.GetPanGateway{}},
	{"PanGateway", &packets.PanGateway{Service: 1, Port: 56700}},
	{"GetLightState", &packets.GetLightState{}},
	{"SetLightColor", &packets.SetLightColor{Color: packets.HSBK{Hue: 100, Saturation: 200, Brightness: 300, Kelvin: 4000}, Transition: 500}},
	{"SetPower", &packets.SetPower{Level: 65535}},
	{"LightStatus", &packets.LightStatus{Power: 65535, Color: packets.HSBK{Hue: 1, Saturation: 2, Brightness: 3, Kelvin: 2700}, Dim: -5, Tags: 1 << 3}},
	{"GetTagLabels", packets.NewGetTagLabels(1 << 7)},
	{"TagLabels", &packets.TagLabels{Tags: 1 << 7}},
	{"SetTags", &packets.SetTags{Tags: 1<<2 | 1<<9}},
	{"SetTagLabels", packets.NewSetTagLabels(7, "kitchen")},
	{"GetMeshInfo", &packets.GetMeshInfo{}},
	{"MeshInfo", &packets.MeshInfo{Signal: 0.5, TX: 10, RX: 20, McuTemperature: 42}},
	{"SetLabel", &packets.SetLabel{Label: [32]byte{'l', 'a', 'b'}}},
}

func TestRoundTripEveryRegisteredPacketType(t *testing.T) {
	for _, tc := range roundTripCases {
		t.Run(tc.name, func(t *testing.T) {
			msg := protocol.NewMessage(tc.payload)
			msg.SetTargetDeviceId(protocol.DeviceId{1, 2, 3, 4, 5, 6})
			msg.SetSite(protocol.SiteId{6, 5, 4, 3, 2, 1})

			encoded, err := msg.MarshalBinary()
			require.NoError(t, err)
			require.Equal(t, int(msg.Header.Size), len(encoded), "encoded.size_field == len(encoded)")

			var decoded protocol.Message
			require.NoError(t, decoded.UnmarshalBinary(encoded))

			if diff := cmp.Diff(msg.Header, decoded.Header); diff != "" {
				t.Errorf("header mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tc.payload, decoded.Payload); diff != "" {
				t.Errorf("payload mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestUnmarshalRejectsShortFrame(t *testing.T) {
	var msg protocol.Message
	err := msg.UnmarshalBinary(make([]byte, protocol.HeaderSize-1))
	require.ErrorIs(t, err, protocol.ErrShortFrame)
}

func TestUnmarshalRejectsUnknownPacketType(t *testing.T) {
	msg := protocol.NewMessage(&packets.GetPanGateway{})
	encoded, err := msg.MarshalBinary()
	require.NoError(t, err)
	encoded[32] = 0xFF
	encoded[33] = 0xFF

	var decoded protocol.Message
	err = decoded.UnmarshalBinary(encoded)
	require.ErrorIs(t, err, protocol.ErrUnknownPacketType)
}

func TestUnmarshalRejectsOversizedFrame(t *testing.T) {
	msg := protocol.NewMessage(&packets.GetPanGateway{})
	encoded, err := msg.MarshalBinary()
	require.NoError(t, err)

	padded := append(encoded, 0x00)

	var decoded protocol.Message
	err = decoded.UnmarshalBinary(padded)
	require.ErrorIs(t, err, protocol.ErrOversizedFrame)
}
