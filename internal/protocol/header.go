// Package protocol implements the legacy LIFX LAN wire format: the 36-byte
// frame header, the device/site identifiers it carries, and the Message
// envelope built on top of it.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// HeaderSize is the fixed size, in bytes, of a LIFX packet header.
	HeaderSize = 36

	// Version is the protocol version carried in the 12 low bits of
	// ProtocolFlags. Any frame with a different version is rejected.
	Version uint16 = 1024
)

// ErrInvalidHeaderLength is returned when decoding a byte slice shorter than HeaderSize.
var ErrInvalidHeaderLength = errors.New("protocol: invalid header length")

// ErrProtocolVersionMismatch is returned when a decoded header carries a
// protocol version other than Version.
var ErrProtocolVersionMismatch = fmt.Errorf("protocol: version mismatch, want %d", Version)

// DeviceId is the 48-bit opaque identifier of a bulb, displayed as 12 hex digits.
type DeviceId [6]byte

// String renders the device id as 12 lowercase hex digits.
func (d DeviceId) String() string {
	return fmt.Sprintf("%x", [6]byte(d))
}

// IsZero reports whether d is the all-zero id (used to address "all devices").
func (d DeviceId) IsZero() bool {
	return d == DeviceId{}
}

// SiteId is the 48-bit identifier of the LIFX site (gateway-bulb bus) a device belongs to.
type SiteId [6]byte

// String renders the site id as 12 lowercase hex digits.
func (s SiteId) String() string {
	return fmt.Sprintf("%x", [6]byte(s))
}

// TargetBroadcast is the zero target used to address every device on a site.
var TargetBroadcast = [8]byte{}

// TagBitmap interprets an 8-byte header Target field as a 64-bit tag bitmap,
// valid only when the header's tagged bit is set.
type TagBitmap uint64

// Header represents the 36-byte LIFX legacy packet header, little-endian on
// the wire and host-endian once decoded.
//
//	Size          uint16 // 0-1
//	ProtocolFlags uint16 // 2-3  (protocol:12, addressable:1, tagged:1, origin:2)
//	Reserved1     uint32 // 4-7
//	Target        [8]byte // 8-15 (DeviceId, or a tag bitmap when tagged=1)
//	Site          [6]byte // 16-21 (SiteId)
//	Reserved2     uint16 // 22-23
//	Timestamp     uint64 // 24-31
//	Type          uint16 // 32-33
//	Reserved3     uint16 // 34-35
type Header struct {
	Size          uint16
	ProtocolFlags uint16
	Reserved1     uint32
	Target        [8]byte
	Site          [6]byte
	Reserved2     uint16
	Timestamp     uint64
	Type          uint16
	Reserved3     uint16
}

// Protocol returns the 12-bit protocol version field of ProtocolFlags.
func (h *Header) Protocol() uint16 {
	return h.ProtocolFlags & 0x0FFF
}

// SetProtocol sets the 12-bit protocol version field of ProtocolFlags.
func (h *Header) SetProtocol(p uint16) {
	h.ProtocolFlags = (h.ProtocolFlags & 0xF000) | (p & 0x0FFF)
}

// IsAddressable reports whether the addressable bit (bit 12) is set.
func (h *Header) IsAddressable() bool {
	return (h.ProtocolFlags>>12)&0x1 == 1
}

// SetAddressable sets or clears the addressable bit (bit 12).
func (h *Header) SetAddressable(v bool) {
	if v {
		h.ProtocolFlags |= 1 << 12
	} else {
		h.ProtocolFlags &^= 1 << 12
	}
}

// IsTagged reports whether the tagged bit (bit 13) is set, meaning Target
// should be interpreted as a tag bitmap rather than a device id.
func (h *Header) IsTagged() bool {
	return (h.ProtocolFlags>>13)&0x1 == 1
}

// SetTagged sets or clears the tagged bit (bit 13).
func (h *Header) SetTagged(v bool) {
	if v {
		h.ProtocolFlags |= 1 << 13
	} else {
		h.ProtocolFlags &^= 1 << 13
	}
}

// Origin returns the 2-bit origin field (bits 14-15).
func (h *Header) Origin() uint8 {
	return uint8((h.ProtocolFlags >> 14) & 0x3)
}

// SetOrigin sets the 2-bit origin field (bits 14-15).
func (h *Header) SetOrigin(o uint8) {
	h.ProtocolFlags = (h.ProtocolFlags & 0x3FFF) | (uint16(o&0x3) << 14)
}

// TargetDeviceId interprets Target as a DeviceId. Only meaningful when IsTagged is false.
func (h *Header) TargetDeviceId() DeviceId {
	var d DeviceId
	copy(d[:], h.Target[:6])
	return d
}

// SetTargetDeviceId sets Target to d and clears the tagged bit.
func (h *Header) SetTargetDeviceId(d DeviceId) {
	h.Target = [8]byte{}
	copy(h.Target[:6], d[:])
	h.SetTagged(false)
}

// TargetTagBitmap interprets Target as a little-endian 64-bit tag bitmap.
// Only meaningful when IsTagged is true.
func (h *Header) TargetTagBitmap() TagBitmap {
	return TagBitmap(binary.LittleEndian.Uint64(h.Target[:]))
}

// SetTargetTagBitmap sets Target to the given tag bitmap and sets the tagged bit.
func (h *Header) SetTargetTagBitmap(bm TagBitmap) {
	binary.LittleEndian.PutUint64(h.Target[:], uint64(bm))
	h.SetTagged(true)
}

// MarshalBinary encodes the header into its 36-byte little-endian wire form.
func (h *Header) MarshalBinary() ([]byte, error) {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint16(buf[0:], h.Size)
	binary.LittleEndian.PutUint16(buf[2:], h.ProtocolFlags)
	binary.LittleEndian.PutUint32(buf[4:], h.Reserved1)
	copy(buf[8:16], h.Target[:])
	copy(buf[16:22], h.Site[:])
	binary.LittleEndian.PutUint16(buf[22:], h.Reserved2)
	binary.LittleEndian.PutUint64(buf[24:], h.Timestamp)
	binary.LittleEndian.PutUint16(buf[32:], h.Type)
	binary.LittleEndian.PutUint16(buf[34:], h.Reserved3)
	return buf, nil
}

// UnmarshalBinary decodes a 36-byte little-endian header and validates the protocol version.
func (h *Header) UnmarshalBinary(data []byte) error {
	if len(data) < HeaderSize {
		return ErrInvalidHeaderLength
	}
	h.Size = binary.LittleEndian.Uint16(data[0:])
	h.ProtocolFlags = binary.LittleEndian.Uint16(data[2:])
	h.Reserved1 = binary.LittleEndian.Uint32(data[4:])
	copy(h.Target[:], data[8:16])
	copy(h.Site[:], data[16:22])
	h.Reserved2 = binary.LittleEndian.Uint16(data[22:])
	h.Timestamp = binary.LittleEndian.Uint64(data[24:])
	h.Type = binary.LittleEndian.Uint16(data[32:])
	h.Reserved3 = binary.LittleEndian.Uint16(data[34:])

	if h.Protocol() != Version {
		return ErrProtocolVersionMismatch
	}
	return nil
}
