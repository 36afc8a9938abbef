package jsonrpc

import (
	"bufio"
	"encoding/json"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightsd-go/lightsd/pkg/dispatch"
)

type stubDispatcher struct {
	gotCmd dispatch.Command
	result *dispatch.Result
	err    error
}

func (s *stubDispatcher) Dispatch(cmd dispatch.Command) (*dispatch.Result, error) {
	s.gotCmd = cmd
	return s.result, s.err
}

func serveOnce(t *testing.T, disp Dispatcher) (net.Conn, func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := New(disp)
	go srv.Serve(ln)

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)

	return conn, func() { conn.Close(); ln.Close() }
}

func TestPowerOnRoundTrip(t *testing.T) {
	disp := &stubDispatcher{result: &dispatch.Result{Targets: []dispatch.TargetResult{{Status: dispatch.StatusOK}}}}
	conn, cleanup := serveOnce(t, disp)
	defer cleanup()

	_, err := conn.Write([]byte(`{"jsonrpc":"2.0","method":"power_on","params":{"target":"*"},"id":1}` + "\n"))
	require.NoError(t, err)

	line, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)

	var resp response
	require.NoError(t, json.Unmarshal([]byte(line), &resp))
	assert.Nil(t, resp.Error)
	require.NotNil(t, resp.Result)
	assert.Equal(t, dispatch.StatusOK, resp.Result.Targets[0].Status)
	assert.Equal(t, dispatch.VerbPowerOn, disp.gotCmd.Verb)
	assert.Equal(t, "*", disp.gotCmd.TargetSpec)
}

func TestSetLightFromHSBKForwardsArgs(t *testing.T) {
	disp := &stubDispatcher{result: &dispatch.Result{}}
	conn, cleanup := serveOnce(t, disp)
	defer cleanup()

	req := `{"jsonrpc":"2.0","method":"set_light_from_hsbk","params":{"target":"#aabbccddeeff","hue":100,"saturation":200,"brightness":300,"kelvin":4000,"transition_ms":500},"id":2}` + "\n"
	_, err := conn.Write([]byte(req))
	require.NoError(t, err)

	_, err = bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)

	assert.Equal(t, dispatch.VerbSetLightFromHSBK, disp.gotCmd.Verb)
	assert.Equal(t, uint16(4000), disp.gotCmd.Args.Kelvin)
	assert.Equal(t, uint32(500), disp.gotCmd.Args.TransitionMs)
}

func TestUnknownMethodReturnsError(t *testing.T) {
	disp := &stubDispatcher{}
	conn, cleanup := serveOnce(t, disp)
	defer cleanup()

	_, err := conn.Write([]byte(`{"jsonrpc":"2.0","method":"bogus","params":{},"id":3}` + "\n"))
	require.NoError(t, err)

	line, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)

	var resp response
	require.NoError(t, json.Unmarshal([]byte(line), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeMethodNotFound, resp.Error.Code)
}

func TestDispatchErrorIsSurfaced(t *testing.T) {
	disp := &stubDispatcher{err: assert.AnError}
	conn, cleanup := serveOnce(t, disp)
	defer cleanup()

	_, err := conn.Write([]byte(`{"jsonrpc":"2.0","method":"get_light_state","params":{"target":"*"},"id":4}` + "\n"))
	require.NoError(t, err)

	line, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)

	var resp response
	require.NoError(t, json.Unmarshal([]byte(line), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeApplicationErr, resp.Error.Code)
}

func TestTagParsesDeviceIdHex(t *testing.T) {
	disp := &stubDispatcher{result: &dispatch.Result{}}
	conn, cleanup := serveOnce(t, disp)
	defer cleanup()

	req := `{"jsonrpc":"2.0","method":"tag","params":{"device_id":"aabbccddeeff","label":"kitchen"},"id":5}` + "\n"
	_, err := conn.Write([]byte(req))
	require.NoError(t, err)

	_, err = bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)

	assert.Equal(t, dispatch.VerbTag, disp.gotCmd.Verb)
	assert.Equal(t, "kitchen", disp.gotCmd.Args.Label)
	assert.Equal(t, "aabbccddeeff", disp.gotCmd.Args.DeviceId.String())
}
