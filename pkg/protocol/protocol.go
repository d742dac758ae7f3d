package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Frame type constants for the doghair control protocol wire format.
// Each frame is a 5-byte header (1 byte type + 4 byte big-endian payload
// length) followed by a CBOR-encoded payload.
const (
	// FrameHello carries the coordinator's build version. Coordinator →
	// collector, once per distribution pass. The collector answers with
	// FrameHelloAck.
	FrameHello byte = 0x01

	// FrameHelloAck is the collector's version handshake reply.
	FrameHelloAck byte = 0x02

	// FrameInit boots or reboots the collector worker with a sampling
	// config. The collector answers with FrameInitAck.
	FrameInit byte = 0x03

	// FrameInitAck is the collector's boot/reboot acknowledgement.
	FrameInitAck byte = 0x04

	// FrameStartCollect starts sampling. Fire-and-forget.
	FrameStartCollect byte = 0x05

	// FrameStopCollect stops sampling. Fire-and-forget.
	FrameStopCollect byte = 0x06

	// FramePull asks the collector to announce its accumulated sample
	// files. The collector answers with zero or more FramePullAck frames.
	FramePull byte = 0x07

	// FramePullAck announces one sample file ready for transfer.
	FramePullAck byte = 0x08

	// FrameTransferReq tells the collector where to stream one announced
	// file: a freshly opened, already-accepting TCP listener.
	FrameTransferReq byte = 0x09

	// FrameQuit asks the collector to exit cleanly. Fire-and-forget.
	FrameQuit byte = 0x0a

	// FrameUnload asks the collector to discard its local sample state.
	// Best-effort, sent on coordinated shutdown.
	FrameUnload byte = 0x0b

	// FrameCommand carries an operator command on the admin channel.
	FrameCommand byte = 0x10

	// FrameCommandAck acknowledges an operator command.
	FrameCommandAck byte = 0x11

	// FrameStatus carries the coordinator status report on the admin
	// channel.
	FrameStatus byte = 0x12
)

// frameHeaderLength is the fixed size of a frame header: 1 byte type
// + 4 bytes payload length.
const frameHeaderLength = 5

// maxPayloadLength is the maximum allowed payload size. Control payloads
// are tiny; 16 MB leaves room without letting a corrupt length prefix
// allocate unbounded memory.
const maxPayloadLength = 16 * 1024 * 1024

// Frame is a single control protocol frame.
type Frame struct {
	Type    byte
	Payload []byte
}

// WriteFrame writes a framed message to w. The frame format is:
// [1 byte type] [4 bytes payload length, big-endian uint32] [payload].
func WriteFrame(w io.Writer, frame Frame) error {
	var header [frameHeaderLength]byte
	header[0] = frame.Type
	binary.BigEndian.PutUint32(header[1:5], uint32(len(frame.Payload)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if len(frame.Payload) > 0 {
		if _, err := w.Write(frame.Payload); err != nil {
			return fmt.Errorf("write frame payload: %w", err)
		}
	}
	return nil
}

// ReadFrame reads a framed message from r. Returns an error if the stream
// is malformed or the payload exceeds maxPayloadLength.
func ReadFrame(r io.Reader) (Frame, error) {
	var header [frameHeaderLength]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Frame{}, fmt.Errorf("read frame header: %w", err)
	}
	frameType := header[0]
	payloadLength := binary.BigEndian.Uint32(header[1:5])
	if payloadLength > maxPayloadLength {
		return Frame{}, fmt.Errorf("payload length %d exceeds maximum %d", payloadLength, maxPayloadLength)
	}
	payload := make([]byte, payloadLength)
	if payloadLength > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return Frame{}, fmt.Errorf("read frame payload: %w", err)
		}
	}
	return Frame{Type: frameType, Payload: payload}, nil
}

// NewFrame encodes payload to CBOR and wraps it in a frame of the given
// type. A nil payload produces an empty frame body.
func NewFrame(frameType byte, payload any) (Frame, error) {
	if payload == nil {
		return Frame{Type: frameType}, nil
	}
	data, err := Marshal(payload)
	if err != nil {
		return Frame{}, fmt.Errorf("encode %s payload: %w", TypeName(frameType), err)
	}
	return Frame{Type: frameType, Payload: data}, nil
}

// Decode decodes the frame's CBOR payload into v.
func (f Frame) Decode(v any) error {
	if err := Unmarshal(f.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", TypeName(f.Type), err)
	}
	return nil
}

// TypeName returns a human-readable name for a frame type, for logging.
func TypeName(frameType byte) string {
	switch frameType {
	case FrameHello:
		return "hello"
	case FrameHelloAck:
		return "hello_ack"
	case FrameInit:
		return "init"
	case FrameInitAck:
		return "init_ack"
	case FrameStartCollect:
		return "start_collect"
	case FrameStopCollect:
		return "stop_collect"
	case FramePull:
		return "pull"
	case FramePullAck:
		return "pull_ack"
	case FrameTransferReq:
		return "trans_req"
	case FrameQuit:
		return "quit"
	case FrameUnload:
		return "unload"
	case FrameCommand:
		return "command"
	case FrameCommandAck:
		return "command_ack"
	case FrameStatus:
		return "status"
	default:
		return fmt.Sprintf("unknown(0x%02x)", frameType)
	}
}
