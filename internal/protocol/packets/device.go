package packets

import (
	"encoding/binary"
	"math"
)

// GetPanGateway requests the gateway(s) serving a site. Sent tagged/broadcast
// during discovery; carries no payload.
type GetPanGateway struct{}

func (p *GetPanGateway) PayloadType() uint16 { return TypeGetPanGateway }
func (p *GetPanGateway) Size() int           { return 0 }

func (p *GetPanGateway) MarshalBinary() ([]byte, error) { return nil, nil }

func (p *GetPanGateway) UnmarshalBinary(data []byte) error { return nil }

// PanGateway announces a gateway's service and port, in reply to GetPanGateway.
type PanGateway struct {
	Service uint8
	Port    uint32
}

func (p *PanGateway) PayloadType() uint16 { return TypePanGateway }
func (p *PanGateway) Size() int           { return 5 }

func (p *PanGateway) MarshalBinary() ([]byte, error) {
	buf := make([]byte, p.Size())
	buf[0] = p.Service
	binary.LittleEndian.PutUint32(buf[1:], p.Port)
	return buf, nil
}

func (p *PanGateway) UnmarshalBinary(data []byte) error {
	if len(data) < p.Size() {
		return errShort("PanGateway", len(data), p.Size())
	}
	p.Service = data[0]
	p.Port = binary.LittleEndian.Uint32(data[1:])
	return nil
}

// SetLabel renames a bulb. It isn't part of the minimum packet set §4.A
// enumerates but is required to implement the set_label control verb.
type SetLabel struct {
	Label [32]byte
}

func (p *SetLabel) PayloadType() uint16 { return TypeSetLabel }
func (p *SetLabel) Size() int           { return 32 }

func (p *SetLabel) MarshalBinary() ([]byte, error) {
	buf := make([]byte, p.Size())
	copy(buf, p.Label[:])
	return buf, nil
}

func (p *SetLabel) UnmarshalBinary(data []byte) error {
	if len(data) < p.Size() {
		return errShort("SetLabel", len(data), p.Size())
	}
	copy(p.Label[:], data[:32])
	return nil
}

// GetMeshInfo requests mesh radio diagnostics from a gateway; no payload.
type GetMeshInfo struct{}

func (p *GetMeshInfo) PayloadType() uint16 { return TypeGetMeshInfo }
func (p *GetMeshInfo) Size() int           { return 0 }

func (p *GetMeshInfo) MarshalBinary() ([]byte, error) { return nil, nil }

func (p *GetMeshInfo) UnmarshalBinary(data []byte) error { return nil }

// MeshInfo reports mesh radio signal strength and traffic counters.
type MeshInfo struct {
	Signal         float32
	TX             uint32
	RX             uint32
	McuTemperature int16
}

func (p *MeshInfo) PayloadType() uint16 { return TypeMeshInfo }
func (p *MeshInfo) Size() int           { return 14 }

func (p *MeshInfo) MarshalBinary() ([]byte, error) {
	buf := make([]byte, p.Size())
	binary.LittleEndian.PutUint32(buf[0:], math.Float32bits(p.Signal))
	binary.LittleEndian.PutUint32(buf[4:], p.TX)
	binary.LittleEndian.PutUint32(buf[8:], p.RX)
	binary.LittleEndian.PutUint16(buf[12:], uint16(p.McuTemperature))
	return buf, nil
}

func (p *MeshInfo) UnmarshalBinary(data []byte) error {
	if len(data) < p.Size() {
		return errShort("MeshInfo", len(data), p.Size())
	}
	p.Signal = math.Float32frombits(binary.LittleEndian.Uint32(data[0:]))
	p.TX = binary.LittleEndian.Uint32(data[4:])
	p.RX = binary.LittleEndian.Uint32(data[8:])
	p.McuTemperature = int16(binary.LittleEndian.Uint16(data[12:]))
	return nil
}
