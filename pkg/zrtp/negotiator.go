package zrtp

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/looplab/fsm"
)

var (
	// ErrHashChainMismatch is returned when a later-phase message reveals a
	// hash image that doesn't fold back to the one committed to earlier.
	ErrHashChainMismatch = errors.New("zrtp: revealed hash does not match earlier commitment")
	// ErrConfirmMAC is returned when a Confirm message's MAC doesn't
	// authenticate under the just-derived shared secret.
	ErrConfirmMAC = errors.New("zrtp: confirm MAC verification failed")
	// ErrAborted is returned by any call made after the handshake has
	// entered its terminal error state.
	ErrAborted = errors.New("zrtp: handshake aborted")
	// ErrCommitHviMismatch is returned when the initiator's DHPart2 doesn't
	// hash to the hvi its Commit advertised.
	ErrCommitHviMismatch = errors.New("zrtp: DHPart2 does not match the hvi committed to")
)

// Negotiator drives one side of a ZRTP handshake to completion. One
// Negotiator exists per MediaStream that has ZRTP enabled; it is not safe
// for concurrent use from outside its own callback goroutines, all of
// which it serializes internally.
type Negotiator struct {
	// Send transmits one ZRTP datagram to the peer over the same socket
	// the media stream uses.
	Send func([]byte) error

	// OnSecure is called once with the derived session keys when the
	// handshake completes successfully.
	OnSecure func(*SessionKeys)

	// OnError is called once if the handshake aborts.
	OnError func(error)

	mutex sync.Mutex
	fsm   *fsm.FSM

	zid     [zidSize]byte
	peerZID [zidSize]byte
	isInitiator bool
	roleDecided bool

	chain   *hashChain
	peerH3  [hashSize]byte
	peerH2  [hashSize]byte
	peerH1  [hashSize]byte

	// ownDH2 is built as soon as Hello has exchanged (its fields need only
	// our own hash chain and keypair, both already generated), so its hash
	// can be advertised as hvi in our Commit before we know whether we'll
	// end up sending it for real.
	ownDH2  *DHPart2
	ownHvi  [hashSize]byte
	peerHvi [hashSize]byte

	kp      *keyPair
	peerPub [32]byte

	s0   []byte
	keys *SessionKeys

	retransmit *retransmitter
}

const (
	stateInit            = "init"
	stateHelloSent       = "helloSent"
	stateCommitSent      = "commitSent"
	stateDH1Sent         = "dh1Sent"
	stateDH2Sent         = "dh2Sent"
	stateConfirm1Sent    = "confirm1Sent"
	stateConfirm2Sent    = "confirm2Sent"
	stateSecure          = "secure"
	stateError           = "error"
)

// Initialize generates this side's ZID, hash chain, and DH keypair, and
// sends the opening Hello message.
func (n *Negotiator) Initialize() error {
	if _, err := io.ReadFull(rand.Reader, n.zid[:]); err != nil {
		return err
	}

	chain, err := newHashChain()
	if err != nil {
		return err
	}
	n.chain = chain

	kp, err := generateKeyPair()
	if err != nil {
		return err
	}
	n.kp = kp

	n.fsm = fsm.NewFSM(
		stateInit,
		fsm.Events{
			{Name: "start", Src: []string{stateInit}, Dst: stateHelloSent},
			{Name: "helloExchanged", Src: []string{stateHelloSent}, Dst: stateCommitSent},
			{Name: "wonAsResponder", Src: []string{stateCommitSent}, Dst: stateDH1Sent},
			{Name: "peerDHPart1", Src: []string{stateCommitSent}, Dst: stateDH2Sent},
			{Name: "peerDHPart2", Src: []string{stateDH1Sent}, Dst: stateConfirm1Sent},
			{Name: "peerConfirm1", Src: []string{stateDH2Sent}, Dst: stateConfirm2Sent},
			{Name: "peerConfirm2", Src: []string{stateConfirm1Sent}, Dst: stateSecure},
			{Name: "peerConf2ACK", Src: []string{stateConfirm2Sent}, Dst: stateSecure},
			{Name: "abort", Src: []string{
				stateInit, stateHelloSent, stateCommitSent,
				stateDH1Sent, stateDH2Sent, stateConfirm1Sent, stateConfirm2Sent,
			}, Dst: stateError},
		},
		fsm.Callbacks{},
	)

	n.retransmit = newRetransmitter(t1Initial, t1Cap, t1MaxResends)

	hello := &Hello{ZID: n.zid, H3: n.chain.H3}
	payload := hello.marshal()
	n.retransmit.Start(n.send(payload), func() { n.abort(errors.New("zrtp: hello retransmission exhausted")) })

	return n.fsm.Event(context.Background(), "start")
}

func (n *Negotiator) send(datagram []byte) func() {
	return func() {
		if n.Send != nil {
			_ = n.Send(datagram)
		}
	}
}

// Close stops any pending retransmission timer.
func (n *Negotiator) Close() {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	if n.retransmit != nil {
		n.retransmit.Stop()
	}
}

// ProcessPacket feeds one received ZRTP datagram into the handshake.
func (n *Negotiator) ProcessPacket(datagram []byte) error {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	if n.fsm.Current() == stateSecure || n.fsm.Current() == stateError {
		return nil
	}

	msgType, msg, err := Parse(datagram)
	if err != nil {
		return err
	}

	switch m := msg.(type) {
	case *Hello:
		return n.handleHello(m)
	case *Commit:
		return n.handleCommit(m)
	case *DHPart1:
		return n.handleDHPart1(m)
	case *DHPart2:
		return n.handleDHPart2(m)
	case *Confirm1:
		return n.handleConfirm1(m)
	case *Confirm2:
		return n.handleConfirm2(m)
	case Conf2ACK:
		return n.handleConf2ACK()
	case *Error:
		n.abort(fmt.Errorf("zrtp: peer signaled error code 0x%x", uint32(m.Code)))
		return nil
	default:
		_ = msgType
		return nil
	}
}

func (n *Negotiator) handleHello(peer *Hello) error {
	if n.fsm.Current() != stateHelloSent {
		return nil
	}

	n.peerZID = peer.ZID
	n.peerH3 = peer.H3
	n.retransmit.Stop()

	// Neither side knows yet which role it will play (this implementation
	// keeps no cache of prior sessions to shortcut that), so both sides
	// build and send a Commit. ownDH2 only needs our own chain.H1 and
	// keypair, so it can be built now; its hash becomes hvi, letting the
	// peer verify later that the DHPart2 we eventually send (if we turn out
	// to be the initiator) is the one we committed to here.
	n.ownDH2 = &DHPart2{dhPart: dhPart{H1: n.chain.H1, PublicKey: n.kp.public}}
	n.ownHvi = sha256.Sum256(n.ownDH2.marshal())

	commit := &Commit{ZID: n.zid, H2: n.chain.H2, Hvi: n.ownHvi}
	n.retransmit = newRetransmitter(t2Initial, t2Cap, t2MaxResends)
	payload := commit.marshal()
	n.retransmit.Start(n.send(payload), func() { n.abort(errors.New("zrtp: commit retransmission exhausted")) })

	return n.fsm.Event(context.Background(), "helloExchanged")
}

// handleCommit resolves the Commit race every handshake runs (RFC 6189
// §4.2): whichever side advertised the lower hvi becomes the responder and
// replies with DHPart1; the other remains the initiator, its own Commit
// already in flight, and waits for that DHPart1 in handleDHPart1. A
// retransmitted duplicate of the peer's Commit after the role has already
// been decided is ignored.
func (n *Negotiator) handleCommit(peer *Commit) error {
	if n.fsm.Current() != stateCommitSent {
		return nil
	}
	if n.roleDecided {
		return nil
	}

	if sha256.Sum256(peer.H2[:]) != n.peerH3 {
		n.abort(ErrHashChainMismatch)
		return ErrHashChainMismatch
	}
	n.peerH2 = peer.H2
	n.peerHvi = peer.Hvi

	won := bytes.Compare(peer.Hvi[:], n.ownHvi[:]) < 0
	if !won {
		// a tie (practically impossible for SHA-256 outputs) falls back to
		// comparing ZIDs, the same tie-break RFC 6189 §4.1 uses elsewhere.
		won = bytes.Equal(peer.Hvi[:], n.ownHvi[:]) && bytes.Compare(n.peerZID[:], n.zid[:]) < 0
	}

	if !won {
		// our hvi is lower: we are the responder.
		n.isInitiator = false
		n.roleDecided = true
		n.retransmit.Stop()

		dh1 := &DHPart1{dhPart: dhPart{H1: n.chain.H1, PublicKey: n.kp.public}}
		n.retransmit = newRetransmitter(t2Initial, t2Cap, t2MaxResends)
		payload := dh1.marshal()
		n.retransmit.Start(n.send(payload), func() { n.abort(errors.New("zrtp: DHPart1 retransmission exhausted")) })

		return n.fsm.Event(context.Background(), "wonAsResponder")
	}

	// the peer's hvi is lower than ours, so the peer becomes the responder
	// and we remain the initiator: keep retransmitting our own Commit until
	// the peer's DHPart1 arrives.
	n.isInitiator = true
	n.roleDecided = true
	return nil
}

func (n *Negotiator) handleDHPart1(peer *DHPart1) error {
	if n.fsm.Current() != stateCommitSent {
		return nil
	}

	if sha256.Sum256(peer.H1[:]) != n.peerH2 {
		n.abort(ErrHashChainMismatch)
		return ErrHashChainMismatch
	}
	n.peerH1 = peer.H1
	n.peerPub = peer.PublicKey

	secret, err := n.kp.sharedSecret(n.peerPub)
	if err != nil {
		n.abort(err)
		return err
	}
	n.s0 = secret

	// send the exact DHPart2 whose hash we already advertised as hvi in our
	// Commit, so the responder's handleDHPart2 check against that hvi holds.
	n.retransmit.Stop()
	n.retransmit = newRetransmitter(t2Initial, t2Cap, t2MaxResends)
	payload := n.ownDH2.marshal()
	n.retransmit.Start(n.send(payload), func() { n.abort(errors.New("zrtp: DHPart2 retransmission exhausted")) })

	return n.fsm.Event(context.Background(), "peerDHPart1")
}

func (n *Negotiator) handleDHPart2(peer *DHPart2) error {
	if n.fsm.Current() != stateDH1Sent {
		return nil
	}

	if sha256.Sum256(peer.H1[:]) != n.peerH2 {
		n.abort(ErrHashChainMismatch)
		return ErrHashChainMismatch
	}
	if sha256.Sum256(peer.marshal()) != n.peerHvi {
		n.abort(ErrCommitHviMismatch)
		return ErrCommitHviMismatch
	}
	n.peerH1 = peer.H1
	n.peerPub = peer.PublicKey

	secret, err := n.kp.sharedSecret(n.peerPub)
	if err != nil {
		n.abort(err)
		return err
	}
	n.s0 = secret

	confirm1 := &Confirm1{confirm: confirm{H0: n.chain.H0, MAC: confirmMAC(n.s0, n.chain.H0)}}
	n.retransmit.Stop()
	n.retransmit = newRetransmitter(t2Initial, t2Cap, t2MaxResends)
	payload := confirm1.marshal()
	n.retransmit.Start(n.send(payload), func() { n.abort(errors.New("zrtp: Confirm1 retransmission exhausted")) })

	return n.fsm.Event(context.Background(), "peerDHPart2")
}

func (n *Negotiator) handleConfirm1(peer *Confirm1) error {
	if n.fsm.Current() != stateDH2Sent {
		return nil
	}

	if sha256.Sum256(peer.H0[:]) != n.peerH1 {
		n.abort(ErrHashChainMismatch)
		return ErrHashChainMismatch
	}
	if !verifyConfirmMAC(n.s0, peer.H0, peer.MAC) {
		n.abort(ErrConfirmMAC)
		return ErrConfirmMAC
	}

	confirm2 := &Confirm2{confirm: confirm{H0: n.chain.H0, MAC: confirmMAC(n.s0, n.chain.H0)}}
	n.retransmit.Stop()
	n.retransmit = newRetransmitter(t2Initial, t2Cap, t2MaxResends)
	payload := confirm2.marshal()
	n.retransmit.Start(n.send(payload), func() { n.abort(errors.New("zrtp: Confirm2 retransmission exhausted")) })

	// keys are derived and handed to OnSecure once Conf2ACK arrives, in
	// handleConf2ACK.
	return n.fsm.Event(context.Background(), "peerConfirm1")
}

func (n *Negotiator) handleConfirm2(peer *Confirm2) error {
	if n.fsm.Current() != stateConfirm1Sent {
		return nil
	}

	if sha256.Sum256(peer.H0[:]) != n.peerH1 {
		n.abort(ErrHashChainMismatch)
		return ErrHashChainMismatch
	}
	if !verifyConfirmMAC(n.s0, peer.H0, peer.MAC) {
		n.abort(ErrConfirmMAC)
		return ErrConfirmMAC
	}

	n.retransmit.Stop()
	ack := Conf2ACK{}
	if n.Send != nil {
		_ = n.Send(ack.marshal())
	}

	if err := n.fsm.Event(context.Background(), "peerConfirm2"); err != nil {
		return err
	}
	return n.finish()
}

func (n *Negotiator) handleConf2ACK() error {
	if n.fsm.Current() != stateConfirm2Sent {
		return nil
	}
	n.retransmit.Stop()
	if err := n.fsm.Event(context.Background(), "peerConf2ACK"); err != nil {
		return err
	}
	return n.finish()
}

func (n *Negotiator) finish() error {
	zidInitiator, zidResponder := n.zid[:], n.peerZID[:]
	if !n.isInitiator {
		zidInitiator, zidResponder = n.peerZID[:], n.zid[:]
	}

	keys, err := deriveSessionKeys(n.s0, zidInitiator, zidResponder)
	if err != nil {
		n.abort(err)
		return err
	}
	n.keys = keys

	if n.OnSecure != nil {
		n.OnSecure(keys)
	}
	return nil
}

func (n *Negotiator) abort(err error) {
	if n.retransmit != nil {
		n.retransmit.Stop()
	}
	_ = n.fsm.Event(context.Background(), "abort")
	if n.OnError != nil {
		n.OnError(err)
	}
}

// Secure reports whether the handshake has completed successfully.
func (n *Negotiator) Secure() bool {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	return n.fsm != nil && n.fsm.Current() == stateSecure
}

// SessionKeys returns the derived SRTP keying material. It returns nil
// until Secure reports true.
func (n *Negotiator) SessionKeys() *SessionKeys {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	return n.keys
}

// IsInitiator reports which role this side took once the Commit race has
// decided it (see handleCommit). It is only meaningful once roleDecided is
// set, typically shortly after the peer's Commit has been processed.
func (n *Negotiator) IsInitiator() bool {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	return n.roleDecided && n.isInitiator
}
