// Package dispatch implements the command dispatcher (component F): it
// resolves a target spec against the bulb registry and tag index,
// translates a verb into outbound LIFX packets, and collects replies for
// query verbs.
package dispatch

import (
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/lightsd-go/lightsd/internal/config"
	"github.com/lightsd-go/lightsd/internal/lifxerr"
	"github.com/lightsd-go/lightsd/internal/protocol"
	"github.com/lightsd-go/lightsd/internal/protocol/packets"
	"github.com/lightsd-go/lightsd/pkg/bulb"
	"github.com/lightsd-go/lightsd/pkg/gateway"
	"github.com/lightsd-go/lightsd/pkg/messages"
	"github.com/lightsd-go/lightsd/pkg/tagindex"
)

// Verb names the high-level operations a Command may request (§4.F, §6).
type Verb string

const (
	VerbPowerOn          Verb = "power_on"
	VerbPowerOff         Verb = "power_off"
	VerbSetLightFromHSBK Verb = "set_light_from_hsbk"
	VerbGetLightState    Verb = "get_light_state"
	VerbTag              Verb = "tag"
	VerbUntag            Verb = "untag"
	VerbSetLabel         Verb = "set_label"
	VerbGetMeshInfo      Verb = "get_mesh_info"
)

// HSBK argument bounds from §6: h and s/b span the full device range,
// kelvin is bounded to the color-temperature range, transition is never
// negative.
const (
	minKelvin = 2500
	maxKelvin = 9000
)

// Args carries every verb's possible arguments; only the fields relevant
// to Command.Verb are read.
type Args struct {
	Hue, Saturation, Brightness uint16
	Kelvin                      uint16
	TransitionMs                uint32
	Label                       string
	DeviceId                    protocol.DeviceId
}

// Command is a single dispatch request: a target spec, a verb, and its args.
type Command struct {
	TargetSpec string
	Verb       Verb
	Args       Args
}

// TargetStatus reports how a single target fared in a query Command.
type TargetStatus string

const (
	StatusOK      TargetStatus = "ok"
	StatusTimeout TargetStatus = "timeout"
)

// TargetResult is one resolved target's outcome.
type TargetResult struct {
	DeviceId protocol.DeviceId
	Status   TargetStatus
	State    *bulb.State
}

// Result is what Dispatch returns: command verbs resolve immediately with
// every target marked ok once packets are written; query verbs may return
// a mix of ok and timeout per §4.F/§8 scenario 6.
type Result struct {
	Targets []TargetResult
}

// GatewayLookup resolves a bulb's OwningGateway key to its open session.
type GatewayLookup func(key string) *gateway.Gateway

// Dispatcher is the command dispatcher (component F).
type Dispatcher struct {
	registry *bulb.Registry
	tagIdx   *tagindex.Index
	lookup   GatewayLookup
	cfg      *config.Config
}

// New returns a Dispatcher wired to the shared bulb registry, tag index,
// and a way to find the gateway session owning a given bulb.
func New(registry *bulb.Registry, tagIdx *tagindex.Index, lookup GatewayLookup, cfg *config.Config) *Dispatcher {
	return &Dispatcher{registry: registry, tagIdx: tagIdx, lookup: lookup, cfg: cfg}
}

// Dispatch resolves cmd's target spec and executes its verb. Command verbs
// return as soon as packets are written; query verbs block up to
// cfg.QueryTimeout collecting replies.
func (d *Dispatcher) Dispatch(cmd Command) (*Result, error) {
	if cmd.Verb == VerbTag || cmd.Verb == VerbUntag {
		return d.tagUntag(cmd)
	}

	targets, err := d.resolve(cmd.TargetSpec)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, lifxerr.ErrTargetNotFound
	}

	switch cmd.Verb {
	case VerbPowerOn:
		return d.fireAndForget(targets, messages.SetPowerOn().Payload)
	case VerbPowerOff:
		return d.fireAndForget(targets, messages.SetPowerOff().Payload)
	case VerbSetLightFromHSBK:
		if err := validateHSBK(cmd.Args); err != nil {
			return nil, err
		}
		transition := time.Duration(cmd.Args.TransitionMs) * time.Millisecond
		msg := messages.SetLightFromHSBK(cmd.Args.Hue, cmd.Args.Saturation, cmd.Args.Brightness, cmd.Args.Kelvin, transition)
		return d.fireAndForget(targets, msg.Payload)
	case VerbSetLabel:
		return d.fireAndForget(targets, messages.SetLabel(cmd.Args.Label).Payload)
	case VerbGetLightState:
		return d.query(targets)
	case VerbGetMeshInfo:
		return d.queryMeshInfo(targets)
	default:
		return nil, fmt.Errorf("%w: unknown verb %q", lifxerr.ErrInvalidCommand, cmd.Verb)
	}
}

// resolve turns a target spec into the set of bulbs it names (§4.F).
func (d *Dispatcher) resolve(spec string) ([]*bulb.Bulb, error) {
	if spec == "*" {
		return d.registry.Iterate(), nil
	}
	if !strings.HasPrefix(spec, "#") {
		return nil, fmt.Errorf("%w: target spec must start with # or be *, got %q", lifxerr.ErrInvalidCommand, spec)
	}

	rest := spec[1:]
	if id, ok := parseDeviceId(rest); ok {
		if b := d.registry.Get(id); b != nil {
			return []*bulb.Bulb{b}, nil
		}
		return nil, nil
	}

	return d.tagIdx.Resolve(rest, d.registry), nil
}

func parseDeviceId(s string) (protocol.DeviceId, bool) {
	var id protocol.DeviceId
	if len(s) != 12 {
		return id, false
	}
	for i := range id {
		b, ok := hexByte(s[i*2], s[i*2+1])
		if !ok {
			return protocol.DeviceId{}, false
		}
		id[i] = b
	}
	return id, true
}

func hexByte(hi, lo byte) (byte, bool) {
	h, ok := hexNibble(hi)
	if !ok {
		return 0, false
	}
	l, ok := hexNibble(lo)
	if !ok {
		return 0, false
	}
	return h<<4 | l, true
}

func hexNibble(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	default:
		return 0, false
	}
}

func validateHSBK(a Args) error {
	if a.Kelvin < minKelvin || a.Kelvin > maxKelvin {
		return fmt.Errorf("%w: kelvin %d out of range [%d, %d]", lifxerr.ErrInvalidCommand, a.Kelvin, minKelvin, maxKelvin)
	}
	return nil
}

func (d *Dispatcher) gatewayFor(b *bulb.Bulb) *gateway.Gateway {
	if d.lookup == nil {
		return nil
	}
	return d.lookup(b.OwningGateway)
}

// fireAndForget sends payload to every target and returns success as soon
// as the packets are written; eventual consistency is verified by the next
// refresh cycle (§4.F).
func (d *Dispatcher) fireAndForget(targets []*bulb.Bulb, payload packets.Payload) (*Result, error) {
	results := make([]TargetResult, len(targets))
	for i, b := range targets {
		results[i] = TargetResult{DeviceId: b.DeviceId, Status: StatusOK}
		gw := d.gatewayFor(b)
		if gw == nil {
			continue
		}
		if err := gw.SendCommand(payload, b.DeviceId); err != nil {
			log.WithError(err).WithField("device", b.DeviceId).Warn("Command send failed")
		}
	}
	return &Result{Targets: results}, nil
}

// query issues GetLightState to every target and blocks up to
// cfg.QueryTimeout collecting LightStatus replies (§4.F, §8 scenario 6).
func (d *Dispatcher) query(targets []*bulb.Bulb) (*Result, error) {
	return d.collect(targets, func(gw *gateway.Gateway, id protocol.DeviceId, handler gateway.ReplyHandler) error {
		return gw.SendQuery(&packets.GetLightState{}, id, packets.TypeLightStatus, handler)
	}, func(msg *protocol.Message) *bulb.State {
		ls, ok := msg.Payload.(*packets.LightStatus)
		if !ok {
			return nil
		}
		return &bulb.State{
			Label:      ls.LabelString(),
			Power:      ls.Power,
			Hue:        ls.Color.Hue,
			Saturation: ls.Color.Saturation,
			Brightness: ls.Color.Brightness,
			Kelvin:     ls.Color.Kelvin,
			Dim:        ls.Dim,
		}
	})
}

// queryMeshInfo issues GetMeshInfo to every target. MeshInfo carries no
// bulb State, so successful replies are reported ok with State left nil.
func (d *Dispatcher) queryMeshInfo(targets []*bulb.Bulb) (*Result, error) {
	return d.collect(targets, func(gw *gateway.Gateway, id protocol.DeviceId, handler gateway.ReplyHandler) error {
		return gw.SendQuery(&packets.GetMeshInfo{}, id, packets.TypeMeshInfo, handler)
	}, func(msg *protocol.Message) *bulb.State {
		return nil
	})
}

func (d *Dispatcher) collect(
	targets []*bulb.Bulb,
	send func(gw *gateway.Gateway, id protocol.DeviceId, handler gateway.ReplyHandler) error,
	toState func(*protocol.Message) *bulb.State,
) (*Result, error) {
	type reply struct {
		idx   int
		state *bulb.State
	}

	results := make([]TargetResult, len(targets))
	repliesCh := make(chan reply, len(targets))
	outstanding := 0

	for i, b := range targets {
		results[i] = TargetResult{DeviceId: b.DeviceId, Status: StatusTimeout}
		gw := d.gatewayFor(b)
		if gw == nil {
			continue
		}

		idx := i
		err := send(gw, b.DeviceId, func(msg *protocol.Message, err error) {
			if err != nil {
				return
			}
			repliesCh <- reply{idx: idx, state: toState(msg)}
		})
		if err != nil {
			log.WithError(err).WithField("device", b.DeviceId).Warn("Query send failed")
			continue
		}
		outstanding++
	}

	timer := time.NewTimer(d.cfg.QueryTimeout)
	defer timer.Stop()

	for outstanding > 0 {
		select {
		case r := <-repliesCh:
			results[r.idx] = TargetResult{DeviceId: targets[r.idx].DeviceId, Status: StatusOK, State: r.state}
			outstanding--
		case <-timer.C:
			log.WithError(lifxerr.ErrQueryTimeout).WithField("outstanding", outstanding).Warn("Query collector timed out waiting for replies")
			return &Result{Targets: results}, nil
		}
	}
	return &Result{Targets: results}, nil
}

// tagUntag implements the tag/untag verbs: locate or allocate a tag slot on
// the device's gateway, then set/clear that bit in the bulb's tag_ids.
func (d *Dispatcher) tagUntag(cmd Command) (*Result, error) {
	b := d.registry.Get(cmd.Args.DeviceId)
	if b == nil {
		return nil, lifxerr.ErrTargetNotFound
	}
	gw := d.gatewayFor(b)
	if gw == nil {
		return nil, lifxerr.ErrTargetNotFound
	}

	slot, ok := gw.AllocateTagSlot(cmd.Args.Label)
	if !ok {
		return nil, fmt.Errorf("%w: no free tag slot on gateway %s", lifxerr.ErrInvalidCommand, gw.Key())
	}

	// Hold b's lock across the send so a concurrent tag/untag on the same
	// bulb can't interleave its own read-modify-write of tag_ids with this
	// one (internal/jsonrpc dispatches each connection on its own goroutine).
	err := b.UpdateTagIds(func(current uint64) (uint64, error) {
		bitmap := current
		if cmd.Verb == VerbTag {
			bitmap |= 1 << slot
		} else {
			bitmap &^= 1 << slot
		}
		if err := gw.SendCommand(&packets.SetTags{Tags: bitmap}, b.DeviceId); err != nil {
			return current, fmt.Errorf("%w: %v", lifxerr.ErrGatewayIO, err)
		}
		return bitmap, nil
	})
	if err != nil {
		return nil, err
	}

	return &Result{Targets: []TargetResult{{DeviceId: b.DeviceId, Status: StatusOK}}}, nil
}
