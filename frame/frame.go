// Package frame implements the wire codec for uvrpc messages: a
// fixed-shape header followed by method, topic, and payload fields. The
// byte order is fixed little-endian across every transport so two peers
// built from this package always agree on the wire regardless of which
// transport carries the bytes.
package frame

import (
	"encoding/binary"

	"github.com/adam-ikari/uvrpc/errs"
)

// Kind tags what a Frame carries.
type Kind uint8

const (
	Request Kind = iota + 1
	Response
	OnewayRequest
	PubMessage
)

func (k Kind) Valid() bool {
	return k >= Request && k <= PubMessage
}

func (k Kind) String() string {
	switch k {
	case Request:
		return "Request"
	case Response:
		return "Response"
	case OnewayRequest:
		return "OnewayRequest"
	case PubMessage:
		return "PubMessage"
	default:
		return "Unknown"
	}
}

const (
	// MaxMethodLen is the largest method (or topic) name in bytes; the
	// length is encoded in a single byte on the wire.
	MaxMethodLen = 255

	// headerSize is the fixed portion of a frame, excluding the
	// stream-transport length prefix: kind(1) + status(4) + msgid(4) +
	// method_len(1) + topic_len(1) + payload_len(4).
	headerSize = 1 + 4 + 4 + 1 + 1 + 4

	// LengthPrefixSize is the size of the length prefix stream
	// transports (TCP, IPC) add ahead of the header.
	LengthPrefixSize = 4

	// MaxDatagramPayload is the largest payload a UDP frame may carry:
	// 64KiB minus header overhead. The UDP adapter checks payloads
	// against this limit only; recv_buffer_bytes is not consulted.
	MaxDatagramPayload = 65535 - headerSize
)

// Frame is one unit of protocol traffic: header plus variable fields.
// Method and Topic are normally mutually exclusive depending on Kind,
// but the type does not enforce that beyond what Validate checks.
type Frame struct {
	Kind    Kind
	MsgID   uint32
	Status  int32
	Method  string
	Topic   string
	Payload []byte
}

// Validate enforces the length constraints before encode.
func (f *Frame) Validate() error {
	if !f.Kind.Valid() {
		return errs.New(errs.Protocol, "frame: invalid kind %d", f.Kind)
	}
	if len(f.Method) > MaxMethodLen {
		return errs.New(errs.InvalidArgument, "frame: method name %q exceeds %d bytes", f.Method, MaxMethodLen)
	}
	if len(f.Topic) > MaxMethodLen {
		return errs.New(errs.InvalidArgument, "frame: topic %q exceeds %d bytes", f.Topic, MaxMethodLen)
	}
	if uint64(len(f.Payload)) > 0xFFFFFFFF {
		return errs.New(errs.InvalidArgument, "frame: payload too large")
	}
	return nil
}

// Encode writes the header and variable fields, in that order, without a
// stream length prefix. Use EncodeStream for TCP/IPC framing.
func Encode(f *Frame) ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	buf := make([]byte, headerSize+len(f.Method)+len(f.Topic)+len(f.Payload))
	buf[0] = byte(f.Kind)
	binary.LittleEndian.PutUint32(buf[1:5], uint32(f.Status))
	binary.LittleEndian.PutUint32(buf[5:9], f.MsgID)
	buf[9] = byte(len(f.Method))
	buf[10] = byte(len(f.Topic))
	binary.LittleEndian.PutUint32(buf[11:15], uint32(len(f.Payload)))

	off := headerSize
	off += copy(buf[off:], f.Method)
	off += copy(buf[off:], f.Topic)
	copy(buf[off:], f.Payload)

	return buf, nil
}

// Decode parses exactly one frame from b, with no surrounding length
// prefix. Extra trailing bytes are an error: datagram transports hand
// Decode exactly one datagram, and stream transports slice exactly
// frame_length bytes before calling Decode.
func Decode(b []byte) (*Frame, error) {
	if len(b) < headerSize {
		return nil, errs.New(errs.Protocol, "frame: truncated header (%d bytes)", len(b))
	}

	kind := Kind(b[0])
	if !kind.Valid() {
		return nil, errs.New(errs.Protocol, "frame: impossible kind %d", b[0])
	}
	status := int32(binary.LittleEndian.Uint32(b[1:5]))
	msgid := binary.LittleEndian.Uint32(b[5:9])
	methodLen := int(b[9])
	topicLen := int(b[10])
	payloadLen := int(binary.LittleEndian.Uint32(b[11:15]))

	want := headerSize + methodLen + topicLen + payloadLen
	if len(b) != want {
		return nil, errs.New(errs.Protocol, "frame: length mismatch, have %d want %d", len(b), want)
	}

	off := headerSize
	method := string(b[off : off+methodLen])
	off += methodLen
	topic := string(b[off : off+topicLen])
	off += topicLen
	var payload []byte
	if payloadLen > 0 {
		payload = make([]byte, payloadLen)
		copy(payload, b[off:off+payloadLen])
	}

	return &Frame{
		Kind:    kind,
		MsgID:   msgid,
		Status:  status,
		Method:  method,
		Topic:   topic,
		Payload: payload,
	}, nil
}

// EncodeStream encodes f the way stream transports (TCP, IPC) put it on
// the wire: a 4-byte little-endian length prefix, then the frame body
// produced by Encode.
func EncodeStream(f *Frame) ([]byte, error) {
	body, err := Encode(f)
	if err != nil {
		return nil, err
	}
	out := make([]byte, LengthPrefixSize+len(body))
	binary.LittleEndian.PutUint32(out[:LengthPrefixSize], uint32(len(body)))
	copy(out[LengthPrefixSize:], body)
	return out, nil
}

// PeekStreamLength reads the length prefix from the head of buf, which
// must contain at least LengthPrefixSize bytes.
func PeekStreamLength(buf []byte) uint32 {
	return binary.LittleEndian.Uint32(buf[:LengthPrefixSize])
}
