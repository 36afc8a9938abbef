// Package jsonrpc is the daemon's control-plane ingress: a minimal
// line-delimited JSON-RPC 2.0 listener (TCP or Unix socket) that decodes one
// request per line into a dispatch.Command and writes back one JSON-encoded
// response per line. Per spec.md §1 this framing/parsing layer is explicitly
// out of scope for the core's invariants; it exists only so the daemon is
// runnable end to end.
package jsonrpc

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"

	log "github.com/sirupsen/logrus"

	"github.com/lightsd-go/lightsd/internal/protocol"
	"github.com/lightsd-go/lightsd/pkg/dispatch"
)

const jsonrpcVersion = "2.0"

// request is one JSON-RPC 2.0 call. Method names the verb directly
// (power_on, get_light_state, ...); Params carries the command's args.
type request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  requestParams   `json:"params"`
	ID      json.RawMessage `json:"id"`
}

// requestParams mirrors dispatch.Args plus the target spec every verb needs.
type requestParams struct {
	Target       string `json:"target"`
	Hue          uint16 `json:"hue"`
	Saturation   uint16 `json:"saturation"`
	Brightness   uint16 `json:"brightness"`
	Kelvin       uint16 `json:"kelvin"`
	TransitionMs uint32 `json:"transition_ms"`
	Label        string `json:"label"`
	DeviceId     string `json:"device_id"`
}

type response struct {
	JSONRPC string           `json:"jsonrpc"`
	Result  *dispatch.Result `json:"result,omitempty"`
	Error   *rpcError        `json:"error,omitempty"`
	ID      json.RawMessage  `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

const (
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeApplicationErr = -32000
)

// Dispatcher is the subset of *dispatch.Dispatcher the server needs; the
// core package wires its real dispatcher in, tests can supply a stub.
type Dispatcher interface {
	Dispatch(cmd dispatch.Command) (*dispatch.Result, error)
}

// Server accepts connections and serves JSON-RPC requests against disp
// until its listener is closed.
type Server struct {
	disp Dispatcher
}

// New returns a Server that routes every request to disp.
func New(disp Dispatcher) *Server {
	return &Server{disp: disp}
}

// Serve accepts connections on ln until it is closed, handling each one on
// its own goroutine. It returns nil when the listener closes gracefully.
func (s *Server) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	enc := json.NewEncoder(conn)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req request
		if err := json.Unmarshal(line, &req); err != nil {
			enc.Encode(response{JSONRPC: jsonrpcVersion, Error: &rpcError{Code: codeInvalidRequest, Message: err.Error()}})
			continue
		}

		resp := s.handleRequest(req)
		if err := enc.Encode(resp); err != nil {
			log.WithError(err).Debug("jsonrpc: failed to write response")
			return
		}
	}
}

func (s *Server) handleRequest(req request) response {
	cmd, err := toCommand(req)
	if err != nil {
		return response{JSONRPC: jsonrpcVersion, ID: req.ID, Error: &rpcError{Code: codeMethodNotFound, Message: err.Error()}}
	}

	result, err := s.disp.Dispatch(cmd)
	if err != nil {
		return response{JSONRPC: jsonrpcVersion, ID: req.ID, Error: &rpcError{Code: codeApplicationErr, Message: err.Error()}}
	}
	return response{JSONRPC: jsonrpcVersion, ID: req.ID, Result: result}
}

func toCommand(req request) (dispatch.Command, error) {
	verb := dispatch.Verb(req.Method)
	switch verb {
	case dispatch.VerbPowerOn, dispatch.VerbPowerOff, dispatch.VerbSetLightFromHSBK,
		dispatch.VerbGetLightState, dispatch.VerbSetLabel, dispatch.VerbGetMeshInfo:
		return dispatch.Command{
			TargetSpec: req.Params.Target,
			Verb:       verb,
			Args: dispatch.Args{
				Hue:          req.Params.Hue,
				Saturation:   req.Params.Saturation,
				Brightness:   req.Params.Brightness,
				Kelvin:       req.Params.Kelvin,
				TransitionMs: req.Params.TransitionMs,
				Label:        req.Params.Label,
			},
		}, nil
	case dispatch.VerbTag, dispatch.VerbUntag:
		id, err := parseDeviceId(req.Params.DeviceId)
		if err != nil {
			return dispatch.Command{}, err
		}
		return dispatch.Command{
			Verb: verb,
			Args: dispatch.Args{DeviceId: id, Label: req.Params.Label},
		}, nil
	default:
		return dispatch.Command{}, fmt.Errorf("jsonrpc: unknown method %q", req.Method)
	}
}

func parseDeviceId(s string) (protocol.DeviceId, error) {
	var id protocol.DeviceId
	if len(s) != 12 {
		return id, fmt.Errorf("jsonrpc: device_id must be 12 hex digits, got %q", s)
	}
	decoded := make([]byte, 6)
	if _, err := fmt.Sscanf(s, "%02x%02x%02x%02x%02x%02x",
		&decoded[0], &decoded[1], &decoded[2], &decoded[3], &decoded[4], &decoded[5]); err != nil {
		return id, fmt.Errorf("jsonrpc: invalid device_id %q: %w", s, err)
	}
	copy(id[:], decoded)
	return id, nil
}
