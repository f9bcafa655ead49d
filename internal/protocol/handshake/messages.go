package handshake

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Version is the layout version of every structured handshake payload.
const Version = 1

// MessageType tags a structured handshake payload.
type MessageType uint8

const (
	TypePublicKey MessageType = iota + 1
	TypeWrappedKey
	TypeTestMessage
	TypeTestResponse
)

const (
	// TestMarker identifies the server's encrypted test message.
	TestMarker = "TestEncryptionMessage"
	// TestResponseMarker identifies the client's encrypted answer.
	TestResponseMarker = "TestEncryptionMessageResponse"
	// FillBytes is the size of the random challenge carried by the test
	// message.
	FillBytes = 32
)

var (
	// ErrMalformedMessage is returned when a handshake payload cannot be decoded.
	ErrMalformedMessage = errors.New("malformed handshake message")
	// ErrFieldTooLarge is returned by Marshal when a field does not fit the
	// 16-bit length prefix.
	ErrFieldTooLarge = errors.New("handshake field too large")
)

// PublicKeyMessage carries the server's PEM public key. It is sent verbatim,
// without version or type header.
type PublicKeyMessage struct {
	PEM []byte
}

// Marshal returns the PEM bytes.
func (m PublicKeyMessage) Marshal() []byte { return m.PEM }

// UnmarshalPublicKey wraps a received frame. Validation happens when the key
// is parsed for wrapping.
func UnmarshalPublicKey(b []byte) (PublicKeyMessage, error) {
	if len(b) == 0 {
		return PublicKeyMessage{}, fmt.Errorf("%w: empty public key", ErrMalformedMessage)
	}
	return PublicKeyMessage{PEM: b}, nil
}

// WrappedKeyMessage carries the session key encrypted under the server's
// public key.
type WrappedKeyMessage struct {
	EncSessionKey []byte
}

// Marshal encodes m as version | type | len:u16 | enc_session_key.
func (m WrappedKeyMessage) Marshal() ([]byte, error) {
	return appendField(header(TypeWrappedKey), m.EncSessionKey)
}

// UnmarshalWrappedKey decodes a WrappedKeyMessage.
func UnmarshalWrappedKey(b []byte) (WrappedKeyMessage, error) {
	rest, err := checkHeader(b, TypeWrappedKey)
	if err != nil {
		return WrappedKeyMessage{}, err
	}
	key, rest, err := readField(rest)
	if err != nil {
		return WrappedKeyMessage{}, err
	}
	if len(rest) != 0 || len(key) == 0 {
		return WrappedKeyMessage{}, ErrMalformedMessage
	}
	return WrappedKeyMessage{EncSessionKey: key}, nil
}

// TestMessage is the server's encryption self-test.
type TestMessage struct {
	Marker string
	Fill   []byte
}

// Marshal encodes m as version | type | marker | fill.
func (m TestMessage) Marshal() ([]byte, error) { return marshalTest(TypeTestMessage, m.Marker, m.Fill) }

// UnmarshalTestMessage decodes a TestMessage.
func UnmarshalTestMessage(b []byte) (TestMessage, error) {
	marker, fill, err := unmarshalTest(TypeTestMessage, b)
	return TestMessage{Marker: marker, Fill: fill}, err
}

// TestResponse answers a TestMessage with the fill reversed.
type TestResponse struct {
	Marker string
	Fill   []byte
}

// Marshal encodes m as version | type | marker | fill.
func (m TestResponse) Marshal() ([]byte, error) { return marshalTest(TypeTestResponse, m.Marker, m.Fill) }

// UnmarshalTestResponse decodes a TestResponse.
func UnmarshalTestResponse(b []byte) (TestResponse, error) {
	marker, fill, err := unmarshalTest(TypeTestResponse, b)
	return TestResponse{Marker: marker, Fill: fill}, err
}

func marshalTest(t MessageType, marker string, fill []byte) ([]byte, error) {
	b, err := appendField(header(t), []byte(marker))
	if err != nil {
		return nil, err
	}
	return appendField(b, fill)
}

func unmarshalTest(t MessageType, b []byte) (string, []byte, error) {
	rest, err := checkHeader(b, t)
	if err != nil {
		return "", nil, err
	}
	marker, rest, err := readField(rest)
	if err != nil {
		return "", nil, err
	}
	fill, rest, err := readField(rest)
	if err != nil {
		return "", nil, err
	}
	if len(rest) != 0 {
		return "", nil, fmt.Errorf("%w: trailing bytes", ErrMalformedMessage)
	}
	return string(marker), fill, nil
}

func header(t MessageType) []byte {
	return []byte{Version, byte(t)}
}

func checkHeader(b []byte, want MessageType) ([]byte, error) {
	if len(b) < 2 {
		return nil, fmt.Errorf("%w: short header", ErrMalformedMessage)
	}
	if b[0] != Version {
		return nil, fmt.Errorf("%w: version %d", ErrMalformedMessage, b[0])
	}
	if MessageType(b[1]) != want {
		return nil, fmt.Errorf("%w: type %d, want %d", ErrMalformedMessage, b[1], want)
	}
	return b[2:], nil
}

func appendField(b, f []byte) ([]byte, error) {
	if len(f) > math.MaxUint16 {
		return nil, fmt.Errorf("%w: %d bytes", ErrFieldTooLarge, len(f))
	}
	b = binary.BigEndian.AppendUint16(b, uint16(len(f)))
	return append(b, f...), nil
}

func readField(b []byte) (field, rest []byte, err error) {
	if len(b) < 2 {
		return nil, nil, fmt.Errorf("%w: short field length", ErrMalformedMessage)
	}
	n := int(binary.BigEndian.Uint16(b))
	b = b[2:]
	if len(b) < n {
		return nil, nil, fmt.Errorf("%w: truncated field", ErrMalformedMessage)
	}
	return append([]byte(nil), b[:n]...), b[n:], nil
}

// reversed returns a reversed copy of b.
func reversed(b []byte) []byte {
	out := make([]byte, len(b))
	for i, c := range b {
		out[len(b)-1-i] = c
	}
	return out
}
