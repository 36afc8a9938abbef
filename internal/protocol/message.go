package protocol

import (
	"fmt"

	"github.com/lightsd-go/lightsd/internal/protocol/packets"
)

// Message pairs a decoded header with its typed payload.
type Message struct {
	Header  Header
	Payload packets.Payload
}

// NewMessage builds a Message around payload, with Addressable set and the
// protocol version and type filled in. Target and Site are left for the
// caller (or the gateway session) to set before sending.
func NewMessage(payload packets.Payload) *Message {
	var h Header
	h.SetProtocol(Version)
	h.SetAddressable(true)
	h.Type = payload.PayloadType()
	h.Size = uint16(HeaderSize + payload.Size())

	return &Message{Header: h, Payload: payload}
}

// SetTargetDeviceId addresses the message at a single device.
func (m *Message) SetTargetDeviceId(d DeviceId) {
	m.Header.SetTargetDeviceId(d)
}

// SetTargetTagBitmap addresses the message at every device matching the bitmap.
func (m *Message) SetTargetTagBitmap(bm TagBitmap) {
	m.Header.SetTargetTagBitmap(bm)
}

// SetBroadcast addresses the message at every device on the site (tagged, zero target).
func (m *Message) SetBroadcast() {
	m.Header.Target = TargetBroadcast
	m.Header.SetTagged(true)
}

// SetSite sets the destination site id.
func (m *Message) SetSite(s SiteId) {
	m.Header.Site = s
}

func (m *Message) String() string {
	return fmt.Sprintf("Message{Type: %#x, Size: %d, Payload: %#v}", m.Header.Type, m.Header.Size, m.Payload)
}

// MarshalBinary encodes the header and payload into the packet's wire form.
// It recomputes Size/Type from the current payload so callers never need to
// keep the header in sync by hand.
func (m *Message) MarshalBinary() ([]byte, error) {
	if m.Payload == nil {
		return nil, fmt.Errorf("protocol: cannot marshal message with nil payload")
	}

	payloadBytes, err := m.Payload.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal payload: %w", err)
	}

	m.Header.Type = m.Payload.PayloadType()
	m.Header.Size = uint16(HeaderSize + len(payloadBytes))

	headerBytes, err := m.Header.MarshalBinary()
	if err != nil {
		return nil, err
	}

	return append(headerBytes, payloadBytes...), nil
}

// UnmarshalBinary decodes a full frame: the header, then the payload selected
// by the header's packet type. It rejects frames whose declared size field
// disagrees with the length of data (OversizedFrame/ShortFrame) and unknown
// packet types (UnknownPacketType).
func (m *Message) UnmarshalBinary(data []byte) error {
	if len(data) < HeaderSize {
		return fmt.Errorf("protocol: %w: got %d bytes, want at least %d", ErrShortFrame, len(data), HeaderSize)
	}

	if err := m.Header.UnmarshalBinary(data[:HeaderSize]); err != nil {
		return err
	}

	if int(m.Header.Size) != len(data) {
		if int(m.Header.Size) < len(data) {
			return fmt.Errorf("protocol: %w: header declares %d bytes, frame has %d", ErrOversizedFrame, m.Header.Size, len(data))
		}
		return fmt.Errorf("protocol: %w: header declares %d bytes, frame has %d", ErrShortFrame, m.Header.Size, len(data))
	}

	newPayload, ok := packets.Payloads[m.Header.Type]
	if !ok {
		return fmt.Errorf("protocol: %w: %#x", ErrUnknownPacketType, m.Header.Type)
	}

	payload := newPayload()
	if err := payload.UnmarshalBinary(data[HeaderSize:]); err != nil {
		return err
	}

	m.Payload = payload
	return nil
}
