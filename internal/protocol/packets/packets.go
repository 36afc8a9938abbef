// Package packets declares the legacy LIFX packet-info table: one record per
// payload type, each able to encode/decode its own byte-swapped wire form.
// The table is consulted by internal/protocol.Message to dispatch decoding by
// packet type, the way the teacher's generated lifxprotocol-go package does
// for the modern protocol.
package packets

import "fmt"

// Packet type identifiers, per the legacy lightsd wire_proto packet table.
const (
	TypeGetPanGateway uint16 = 0x02
	TypePanGateway    uint16 = 0x03
	TypeGetLightState uint16 = 0x65
	TypeSetLightColor uint16 = 0x66
	TypeSetPower      uint16 = 0x15
	TypeLightStatus   uint16 = 0x6B
	TypeGetTagLabels  uint16 = 0x1F
	TypeTagLabels     uint16 = 0x20
	TypeSetTags       uint16 = 0x1D
	TypeSetTagLabels  uint16 = 0x1E
	TypeGetMeshInfo   uint16 = 0x0C
	TypeMeshInfo      uint16 = 0x0D
	TypeSetLabel      uint16 = 0x18
)

// Payload is implemented by every packet's payload type.
type Payload interface {
	PayloadType() uint16
	Size() int
	MarshalBinary() ([]byte, error)
	UnmarshalBinary([]byte) error
}

// Payloads maps a packet type to a constructor for its zero-value payload,
// used to decode a frame once its type has been read off the header.
var Payloads = map[uint16]func() Payload{
	TypeGetPanGateway: func() Payload { return &GetPanGateway{} },
	TypePanGateway:    func() Payload { return &PanGateway{} },
	TypeGetLightState: func() Payload { return &GetLightState{} },
	TypeSetLightColor: func() Payload { return &SetLightColor{} },
	TypeSetPower:      func() Payload { return &SetPower{} },
	TypeLightStatus:   func() Payload { return &LightStatus{} },
	TypeGetTagLabels:  func() Payload { return &GetTagLabels{} },
	TypeTagLabels:     func() Payload { return &TagLabels{} },
	TypeSetTags:       func() Payload { return &SetTags{} },
	TypeSetTagLabels:  func() Payload { return &SetTagLabels{} },
	TypeGetMeshInfo:   func() Payload { return &GetMeshInfo{} },
	TypeMeshInfo:      func() Payload { return &MeshInfo{} },
	TypeSetLabel:      func() Payload { return &SetLabel{} },
}

func errShort(name string, got, want int) error {
	return fmt.Errorf("packets: %s payload too short: got %d bytes, want %d", name, got, want)
}

// parseLabel trims the C-style null padding off a fixed-size label field.
func parseLabel(b [32]byte) string {
	n := 0
	for ; n < len(b); n++ {
		if b[n] == 0 {
			break
		}
	}
	return string(b[:n])
}

// putLabel copies s into a fixed 32-byte field, truncating if necessary.
func putLabel(s string) [32]byte {
	var b [32]byte
	copy(b[:], s)
	return b
}
