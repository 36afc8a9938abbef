package broadcast

import (
	"net"
	"testing"
	"time"

	"github.com/lightsd-go/lightsd/internal/protocol"
	"github.com/lightsd-go/lightsd/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendDiscover(t *testing.T) {
	recvCh := make(chan *protocol.Message, 1)
	conn, saddr := testutil.NewMockUDPServer(t, func(msg *protocol.Message, _ *net.UDPAddr) {
		recvCh <- msg
	})
	defer conn.Close()

	s := &Socket{broadcastAddr: saddr}
	c, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	require.NoError(t, err)
	s.conn = c
	defer s.Close()

	require.NoError(t, s.SendDiscover())

	select {
	case msg := <-recvCh:
		assert.True(t, msg.Header.IsTagged())
		assert.Equal(t, protocol.TargetBroadcast, msg.Header.Target)
	case <-time.After(time.Second):
		t.Fatal("expected discover packet but got timeout")
	}
}

func TestServeDropsMalformedFrames(t *testing.T) {
	c, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	require.NoError(t, err)
	s := &Socket{conn: c}

	client, err := net.DialUDP("udp", nil, c.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)
	defer client.Close()

	done := make(chan struct{})
	go func() {
		_ = s.Serve(func(msg *protocol.Message, addr *net.UDPAddr) {})
		close(done)
	}()

	_, err = client.Write([]byte{0x01, 0x02})
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	s.Close()
	<-done
}
