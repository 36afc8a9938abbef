package packets

import "encoding/binary"

// HSBK is the hue/saturation/brightness/kelvin color tuple used on the wire.
// Each channel but Kelvin is a device value in [0, 65535]; Kelvin is degrees.
type HSBK struct {
	Hue        uint16
	Saturation uint16
	Brightness uint16
	Kelvin     uint16
}

func (c HSBK) marshalInto(buf []byte) {
	binary.LittleEndian.PutUint16(buf[0:], c.Hue)
	binary.LittleEndian.PutUint16(buf[2:], c.Saturation)
	binary.LittleEndian.PutUint16(buf[4:], c.Brightness)
	binary.LittleEndian.PutUint16(buf[6:], c.Kelvin)
}

func (c *HSBK) unmarshalFrom(buf []byte) {
	c.Hue = binary.LittleEndian.Uint16(buf[0:])
	c.Saturation = binary.LittleEndian.Uint16(buf[2:])
	c.Brightness = binary.LittleEndian.Uint16(buf[4:])
	c.Kelvin = binary.LittleEndian.Uint16(buf[6:])
}

// GetLightState requests the current light state of a device; no payload.
type GetLightState struct{}

func (p *GetLightState) PayloadType() uint16 { return TypeGetLightState }
func (p *GetLightState) Size() int           { return 0 }

func (p *GetLightState) MarshalBinary() ([]byte, error) { return nil, nil }

func (p *GetLightState) UnmarshalBinary(data []byte) error { return nil }

// SetLightColor sets a device's color over the given transition duration.
type SetLightColor struct {
	Stream     uint8 // reserved, always 0
	Color      HSBK
	Transition uint32 // milliseconds
}

func (p *SetLightColor) PayloadType() uint16 { return TypeSetLightColor }
func (p *SetLightColor) Size() int           { return 13 }

func (p *SetLightColor) MarshalBinary() ([]byte, error) {
	buf := make([]byte, p.Size())
	buf[0] = p.Stream
	p.Color.marshalInto(buf[1:])
	binary.LittleEndian.PutUint32(buf[9:], p.Transition)
	return buf, nil
}

func (p *SetLightColor) UnmarshalBinary(data []byte) error {
	if len(data) < p.Size() {
		return errShort("SetLightColor", len(data), p.Size())
	}
	p.Stream = data[0]
	p.Color.unmarshalFrom(data[1:])
	p.Transition = binary.LittleEndian.Uint32(data[9:])
	return nil
}

// SetPower sets a device's power level: 0xFFFF for on, 0x0000 for off.
type SetPower struct {
	Level uint16
}

func (p *SetPower) PayloadType() uint16 { return TypeSetPower }
func (p *SetPower) Size() int           { return 2 }

func (p *SetPower) MarshalBinary() ([]byte, error) {
	buf := make([]byte, p.Size())
	binary.LittleEndian.PutUint16(buf[0:], p.Level)
	return buf, nil
}

func (p *SetPower) UnmarshalBinary(data []byte) error {
	if len(data) < p.Size() {
		return errShort("SetPower", len(data), p.Size())
	}
	p.Level = binary.LittleEndian.Uint16(data[0:])
	return nil
}

// LightStatus is a device's full light state, sent unsolicited or in reply
// to GetLightState; it is the sole source of Bulb state updates.
type LightStatus struct {
	Stream uint8 // reserved
	Color  HSBK
	Dim    int16
	Power  uint16
	Label  [32]byte
	Tags   uint64
}

func (p *LightStatus) PayloadType() uint16 { return TypeLightStatus }
func (p *LightStatus) Size() int           { return 53 }

func (p *LightStatus) MarshalBinary() ([]byte, error) {
	buf := make([]byte, p.Size())
	buf[0] = p.Stream
	p.Color.marshalInto(buf[1:])
	binary.LittleEndian.PutUint16(buf[9:], uint16(p.Dim))
	binary.LittleEndian.PutUint16(buf[11:], p.Power)
	copy(buf[13:45], p.Label[:])
	binary.LittleEndian.PutUint64(buf[45:], p.Tags)
	return buf, nil
}

func (p *LightStatus) UnmarshalBinary(data []byte) error {
	if len(data) < p.Size() {
		return errShort("LightStatus", len(data), p.Size())
	}
	p.Stream = data[0]
	p.Color.unmarshalFrom(data[1:])
	p.Dim = int16(binary.LittleEndian.Uint16(data[9:]))
	p.Power = binary.LittleEndian.Uint16(data[11:])
	copy(p.Label[:], data[13:45])
	p.Tags = binary.LittleEndian.Uint64(data[45:])
	return nil
}

// LabelString returns the Label field with its C-style null padding trimmed.
func (p *LightStatus) LabelString() string { return parseLabel(p.Label) }
