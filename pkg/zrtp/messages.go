// Package zrtp implements the ZRTP key-agreement handshake (RFC 6189): a
// five-phase exchange run over the same UDP socket as the media, producing
// a shared secret the session keys its SRTP context from.
//
// No example repo in the retrieval pack implements ZRTP, so the message
// layout and phase sequencing follow RFC 6189 directly; the state-machine
// idiom (github.com/looplab/fsm driving named phase transitions) matches
// how the broader pack wires call/session state machines for adjacent
// protocols.
package zrtp

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
)

// MsgType names a ZRTP message by its 8-octet ASCII type block (RFC 6189
// §5.2), including any trailing space padding.
type MsgType string

const (
	MsgHello    MsgType = "Hello   "
	MsgHelloACK MsgType = "HelloACK"
	MsgCommit   MsgType = "Commit  "
	MsgDHPart1  MsgType = "DHPart1 "
	MsgDHPart2  MsgType = "DHPart2 "
	MsgConfirm1 MsgType = "Confirm1"
	MsgConfirm2 MsgType = "Confirm2"
	MsgConf2ACK MsgType = "Conf2ACK"
	MsgError    MsgType = "Error   "
	MsgGoClear  MsgType = "GoClear "
)

const (
	zidSize = 12
	hashSize = 32 // SHA-256 image size used for H0..H3 and retained-secret IDs
	dhPublicSize = 32 // X25519 public value size
	macSize = 8 // truncated HMAC used in Confirm per RFC 6189 §5.1
)

var errTruncated = errors.New("zrtp: message truncated")
var errBadCRC = errors.New("zrtp: CRC mismatch")
var errUnknownType = errors.New("zrtp: unknown message type")

// frame wraps a message body with the 8-octet type block and 4-octet
// CRC-32 footer every ZRTP message carries.
func frame(msgType MsgType, body []byte) []byte {
	buf := make([]byte, 8+len(body)+4)
	copy(buf[:8], []byte(msgType))
	copy(buf[8:], body)
	crc := crc32.ChecksumIEEE(buf[:8+len(body)])
	binary.BigEndian.PutUint32(buf[8+len(body):], crc)
	return buf
}

// unframe validates the CRC footer and returns the message type and body.
func unframe(datagram []byte) (MsgType, []byte, error) {
	if len(datagram) < 12 {
		return "", nil, errTruncated
	}

	bodyEnd := len(datagram) - 4
	want := binary.BigEndian.Uint32(datagram[bodyEnd:])
	got := crc32.ChecksumIEEE(datagram[:bodyEnd])
	if want != got {
		return "", nil, errBadCRC
	}

	return MsgType(datagram[:8]), datagram[8:bodyEnd], nil
}

// Hello is the first message of the handshake: it advertises the sender's
// ZID and H3 (the top of the hash-image chain). It carries no algorithm
// lists; both sides always use X25519, SHA-256 and HMAC-SHA256.
type Hello struct {
	ZID [zidSize]byte
	H3  [hashSize]byte
}

func (h *Hello) marshal() []byte {
	body := make([]byte, zidSize+hashSize)
	copy(body[:zidSize], h.ZID[:])
	copy(body[zidSize:], h.H3[:])
	return frame(MsgHello, body)
}

func unmarshalHello(body []byte) (*Hello, error) {
	if len(body) < zidSize+hashSize {
		return nil, errTruncated
	}
	h := &Hello{}
	copy(h.ZID[:], body[:zidSize])
	copy(h.H3[:], body[zidSize:zidSize+hashSize])
	return h, nil
}

// HelloACK acknowledges receipt of Hello; RFC 6189 gives it an empty body.
type HelloACK struct{}

func (HelloACK) marshal() []byte { return frame(MsgHelloACK, nil) }

// Commit carries the sender's ZID and H2 (no algorithm choice), and commits the sender to
// the DH public value it would reveal in DHPart2 via Hvi (the hash of that
// DHPart2 message). Because neither side knows in advance which role it
// will play, both sides send a Commit after the Hello exchange; Hvi is what
// resolves the resulting race (RFC 6189 §4.2): the sender of the lower Hvi
// becomes the responder.
type Commit struct {
	ZID [zidSize]byte
	H2  [hashSize]byte
	Hvi [hashSize]byte
}

func (c *Commit) marshal() []byte {
	body := make([]byte, zidSize+hashSize+hashSize)
	copy(body[:zidSize], c.ZID[:])
	copy(body[zidSize:zidSize+hashSize], c.H2[:])
	copy(body[zidSize+hashSize:], c.Hvi[:])
	return frame(MsgCommit, body)
}

func unmarshalCommit(body []byte) (*Commit, error) {
	if len(body) < zidSize+hashSize+hashSize {
		return nil, errTruncated
	}
	c := &Commit{}
	copy(c.ZID[:], body[:zidSize])
	copy(c.H2[:], body[zidSize:zidSize+hashSize])
	copy(c.Hvi[:], body[zidSize+hashSize:zidSize+hashSize+hashSize])
	return c, nil
}

// dhPart carries one side's DH public value and the hash-chain image one
// step below the value it previously committed to. DHPart1 is the
// responder's reply, DHPart2 the initiator's.
type dhPart struct {
	H1        [hashSize]byte
	PublicKey [dhPublicSize]byte
}

func (d *dhPart) marshal(t MsgType) []byte {
	body := make([]byte, hashSize+dhPublicSize)
	copy(body[:hashSize], d.H1[:])
	copy(body[hashSize:], d.PublicKey[:])
	return frame(t, body)
}

func unmarshalDHPart(body []byte) (*dhPart, error) {
	if len(body) < hashSize+dhPublicSize {
		return nil, errTruncated
	}
	d := &dhPart{}
	copy(d.H1[:], body[:hashSize])
	copy(d.PublicKey[:], body[hashSize:hashSize+dhPublicSize])
	return d, nil
}

// DHPart1 is the responder's DH reply to Commit.
type DHPart1 struct{ dhPart }

func (d *DHPart1) marshal() []byte { return d.dhPart.marshal(MsgDHPart1) }

// DHPart2 is the initiator's DH value, completing the exchange.
type DHPart2 struct{ dhPart }

func (d *DHPart2) marshal() []byte { return d.dhPart.marshal(MsgDHPart2) }

// confirm carries H0 (the hash-chain root) and a truncated HMAC proving
// possession of the just-derived shared secret.
type confirm struct {
	H0  [hashSize]byte
	MAC [macSize]byte
}

func (c *confirm) marshal(t MsgType) []byte {
	body := make([]byte, hashSize+macSize)
	copy(body[:hashSize], c.H0[:])
	copy(body[hashSize:], c.MAC[:])
	return frame(t, body)
}

func unmarshalConfirm(body []byte) (*confirm, error) {
	if len(body) < hashSize+macSize {
		return nil, errTruncated
	}
	c := &confirm{}
	copy(c.H0[:], body[:hashSize])
	copy(c.MAC[:], body[hashSize:hashSize+macSize])
	return c, nil
}

// Confirm1 is the responder's confirmation.
type Confirm1 struct{ confirm }

func (c *Confirm1) marshal() []byte { return c.confirm.marshal(MsgConfirm1) }

// Confirm2 is the initiator's confirmation, completing key agreement.
type Confirm2 struct{ confirm }

func (c *Confirm2) marshal() []byte { return c.confirm.marshal(MsgConfirm2) }

// Conf2ACK closes the handshake; RFC 6189 gives it an empty body.
type Conf2ACK struct{}

func (Conf2ACK) marshal() []byte { return frame(MsgConf2ACK, nil) }

// ErrorCode enumerates the RFC 6189 §5.9 error codes this implementation
// can emit.
type ErrorCode uint32

const (
	ErrorMalformedPacket   ErrorCode = 0x10
	ErrorUnsupportedVersion ErrorCode = 0x20
	ErrorHelloMismatch     ErrorCode = 0x30
	ErrorUnsupportedAlgo   ErrorCode = 0x40
	ErrorDHValidationFail  ErrorCode = 0x50
	ErrorConfirmMACFail    ErrorCode = 0x60
)

// Error aborts the handshake with a reason code.
type Error struct {
	Code ErrorCode
}

func (e *Error) marshal() []byte {
	body := make([]byte, 4)
	binary.BigEndian.PutUint32(body, uint32(e.Code))
	return frame(MsgError, body)
}

func unmarshalError(body []byte) (*Error, error) {
	if len(body) < 4 {
		return nil, errTruncated
	}
	return &Error{Code: ErrorCode(binary.BigEndian.Uint32(body))}, nil
}

// GoClear requests falling back to unencrypted media; rarely sent, kept
// for protocol completeness.
type GoClear struct{}

func (GoClear) marshal() []byte { return frame(MsgGoClear, nil) }

// Parse decodes one received ZRTP datagram into its type and typed body.
func Parse(datagram []byte) (MsgType, interface{}, error) {
	msgType, body, err := unframe(datagram)
	if err != nil {
		return "", nil, err
	}

	switch msgType {
	case MsgHello:
		m, err := unmarshalHello(body)
		return msgType, m, err
	case MsgHelloACK:
		return msgType, HelloACK{}, nil
	case MsgCommit:
		m, err := unmarshalCommit(body)
		return msgType, m, err
	case MsgDHPart1:
		m, err := unmarshalDHPart(body)
		return msgType, &DHPart1{dhPart: *m}, err
	case MsgDHPart2:
		m, err := unmarshalDHPart(body)
		return msgType, &DHPart2{dhPart: *m}, err
	case MsgConfirm1:
		m, err := unmarshalConfirm(body)
		return msgType, &Confirm1{confirm: *m}, err
	case MsgConfirm2:
		m, err := unmarshalConfirm(body)
		return msgType, &Confirm2{confirm: *m}, err
	case MsgConf2ACK:
		return msgType, Conf2ACK{}, nil
	case MsgError:
		m, err := unmarshalError(body)
		return msgType, m, err
	case MsgGoClear:
		return msgType, GoClear{}, nil
	default:
		return "", nil, errUnknownType
	}
}
