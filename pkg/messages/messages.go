// Package messages builds outbound protocol.Message values for the verbs the
// command dispatcher understands, so dispatch itself only deals with target
// resolution and reply correlation.
package messages

import (
	"math"
	"time"

	"github.com/lightsd-go/lightsd/internal/protocol"
	"github.com/lightsd-go/lightsd/internal/protocol/packets"
)

// SetPowerOn sets a device power to its maximum value of 65535.
func SetPowerOn() *protocol.Message {
	return protocol.NewMessage(&packets.SetPower{Level: math.MaxUint16})
}

// SetPowerOff sets a device power to 0.
func SetPowerOff() *protocol.Message {
	return protocol.NewMessage(&packets.SetPower{Level: 0})
}

// SetLightFromHSBK sets a device's full color state over the given transition.
func SetLightFromHSBK(hue, saturation, brightness, kelvin uint16, transition time.Duration) *protocol.Message {
	return protocol.NewMessage(&packets.SetLightColor{
		Color: packets.HSBK{
			Hue:        hue,
			Saturation: saturation,
			Brightness: brightness,
			Kelvin:     kelvin,
		},
		Transition: uint32(transition.Milliseconds()),
	})
}

// GetLightState requests a device's current light state.
func GetLightState() *protocol.Message {
	return protocol.NewMessage(&packets.GetLightState{})
}

// GetPanGateway builds the discovery broadcast request.
func GetPanGateway() *protocol.Message {
	return protocol.NewMessage(&packets.GetPanGateway{})
}

// GetMeshInfo requests mesh radio diagnostics from a gateway.
func GetMeshInfo() *protocol.Message {
	return protocol.NewMessage(&packets.GetMeshInfo{})
}

// SetLabel renames a bulb.
func SetLabel(label string) *protocol.Message {
	var b [32]byte
	copy(b[:], label)
	return protocol.NewMessage(&packets.SetLabel{Label: b})
}

// SetTagLabel allocates or renames a gateway tag slot with the given label.
func SetTagLabel(tagID uint, label string) *protocol.Message {
	return protocol.NewMessage(packets.NewSetTagLabels(tagID, label))
}

// GetTagLabels requests the labels for the tag slots set in bitmap.
func GetTagLabels(bitmap uint64) *protocol.Message {
	return protocol.NewMessage(packets.NewGetTagLabels(bitmap))
}

// SetBulbTags overwrites a bulb's tag_ids bitmap.
func SetBulbTags(bitmap uint64) *protocol.Message {
	return protocol.NewMessage(&packets.SetTags{Tags: bitmap})
}
