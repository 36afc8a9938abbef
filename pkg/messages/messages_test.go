package messages

import (
	"math"
	"testing"
	"time"

	"github.com/lightsd-go/lightsd/internal/protocol/packets"
	"github.com/stretchr/testify/assert"
)

func TestSetPowerOnOff(t *testing.T) {
	on := SetPowerOn()
	assert.Equal(t, &packets.SetPower{Level: math.MaxUint16}, on.Payload)

	off := SetPowerOff()
	assert.Equal(t, &packets.SetPower{Level: 0}, off.Payload)
}

func TestSetLightFromHSBK(t *testing.T) {
	m := SetLightFromHSBK(120, 65535, 32768, 3500, 500*time.Millisecond)
	assert.Equal(t, &packets.SetLightColor{
		Color:      packets.HSBK{Hue: 120, Saturation: 65535, Brightness: 32768, Kelvin: 3500},
		Transition: 500,
	}, m.Payload)
}

func TestGetLightState(t *testing.T) {
	m := GetLightState()
	assert.Equal(t, &packets.GetLightState{}, m.Payload)
}

func TestTagLabelMessages(t *testing.T) {
	set := SetTagLabel(3, "kitchen")
	want := packets.NewSetTagLabels(3, "kitchen")
	assert.Equal(t, want, set.Payload)

	get := GetTagLabels(1 << 42)
	assert.Equal(t, &packets.GetTagLabels{Tags: 1 << 42}, get.Payload)
}

func TestSetBulbTags(t *testing.T) {
	m := SetBulbTags(1<<2 | 1<<4)
	assert.Equal(t, &packets.SetTags{Tags: 1<<2 | 1<<4}, m.Payload)
}
