package protocol

import (
	"bytes"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/doghair/pkg/types"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer

	original := Frame{Type: FramePullAck, Payload: []byte("hello")}
	require.NoError(t, WriteFrame(&buf, original))

	decoded, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, original.Type, decoded.Type)
	assert.Equal(t, original.Payload, decoded.Payload)
}

func TestFrameRoundTrip_EmptyPayload(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, WriteFrame(&buf, Frame{Type: FrameQuit}))

	decoded, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, FrameQuit, decoded.Type)
	assert.Empty(t, decoded.Payload)
}

func TestReadFrame_OversizePayload(t *testing.T) {
	var buf bytes.Buffer
	header := make([]byte, 5)
	header[0] = FrameInit
	binary.BigEndian.PutUint32(header[1:5], maxPayloadLength+1)
	buf.Write(header)

	_, err := ReadFrame(&buf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds maximum")
}

func TestReadFrame_TruncatedStream(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, Frame{Type: FrameInit, Payload: []byte("payload")}))
	truncated := buf.Bytes()[:buf.Len()-3]

	_, err := ReadFrame(bytes.NewReader(truncated))
	require.Error(t, err)
}

func TestNewFrame_DecodePayload(t *testing.T) {
	init := Init{
		Mode:        ModeReboot,
		Coordinator: "coord-1",
		Config:      types.CollectConfig{Interval: 60000, TopN: 10, SMP: false},
	}

	frame, err := NewFrame(FrameInit, init)
	require.NoError(t, err)
	assert.Equal(t, FrameInit, frame.Type)

	var decoded Init
	require.NoError(t, frame.Decode(&decoded))
	assert.Equal(t, init, decoded)
}

func TestNewFrame_NilPayload(t *testing.T) {
	frame, err := NewFrame(FrameStartCollect, nil)
	require.NoError(t, err)
	assert.Empty(t, frame.Payload)
}

func TestConn_SendRecv(t *testing.T) {
	left, right := net.Pipe()
	defer left.Close()
	defer right.Close()

	sender := NewConn(left)
	receiver := NewConn(right)

	go func() {
		_ = sender.Send(FramePullAck, PullAck{Node: "n1", Filename: "samples_n1_1.log", Size: 42})
	}()

	frame, err := receiver.RecvTimeout(2 * time.Second)
	require.NoError(t, err)
	require.Equal(t, FramePullAck, frame.Type)

	var ack PullAck
	require.NoError(t, frame.Decode(&ack))
	assert.Equal(t, types.PeerID("n1"), ack.Node)
	assert.Equal(t, "samples_n1_1.log", ack.Filename)
	assert.Equal(t, int64(42), ack.Size)
}

func TestConn_RecvTimeout(t *testing.T) {
	left, right := net.Pipe()
	defer left.Close()
	defer right.Close()

	conn := NewConn(right)
	_, err := conn.RecvTimeout(50 * time.Millisecond)
	require.Error(t, err)
}

func TestTypeName(t *testing.T) {
	assert.Equal(t, "init", TypeName(FrameInit))
	assert.Equal(t, "trans_req", TypeName(FrameTransferReq))
	assert.Contains(t, TypeName(0xee), "unknown")
}
