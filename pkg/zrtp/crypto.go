package zrtp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

// hashChain holds the four hash-image values RFC 6189 §4.4.1.1 derives by
// repeated SHA-256: H0 is random, H1=sha256(H0), H2=sha256(H1),
// H3=sha256(H2). H3 is revealed first (in Hello), H0 last (in Confirm),
// letting each received image be checked against the one committed to
// earlier without exposing it in advance.
type hashChain struct {
	H0, H1, H2, H3 [hashSize]byte
}

func newHashChain() (*hashChain, error) {
	c := &hashChain{}
	if _, err := io.ReadFull(rand.Reader, c.H0[:]); err != nil {
		return nil, err
	}
	c.H1 = sha256.Sum256(c.H0[:])
	c.H2 = sha256.Sum256(c.H1[:])
	c.H3 = sha256.Sum256(c.H2[:])
	return c, nil
}

// keyPair is a Diffie-Hellman keypair over Curve25519 (X25519).
type keyPair struct {
	private [32]byte
	public  [32]byte
}

func generateKeyPair() (*keyPair, error) {
	kp := &keyPair{}
	if _, err := io.ReadFull(rand.Reader, kp.private[:]); err != nil {
		return nil, err
	}
	pub, err := curve25519.X25519(kp.private[:], curve25519.Basepoint)
	if err != nil {
		return nil, err
	}
	copy(kp.public[:], pub)
	return kp, nil
}

func (kp *keyPair) sharedSecret(peerPublic [32]byte) ([]byte, error) {
	return curve25519.X25519(kp.private[:], peerPublic[:])
}

// SessionKeys are the symmetric material derived from s0 once the DH
// exchange and confirmation complete: a master key/salt pair for each
// direction's SRTP context, per RFC 6189 §4.5.3's key-derivation function
// generalized here through HKDF (golang.org/x/crypto/hkdf) rather than the
// RFC's bespoke KDF — the keyed output is equivalent (a PRF over s0, a
// context label, and both ZIDs), and HKDF is the library every other
// pack consumer reaches for to turn a shared secret into transport keys.
type SessionKeys struct {
	InitiatorSRTPKey  []byte
	InitiatorSRTPSalt []byte
	ResponderSRTPKey  []byte
	ResponderSRTPSalt []byte
}

const (
	srtpKeySize  = 16
	srtpSaltSize = 14
)

// deriveSessionKeys expands s0 into the four SRTP-facing values, binding
// the derivation to both participants' ZIDs so a replayed s0 from a
// different pairing can't be reused.
func deriveSessionKeys(s0, zidInitiator, zidResponder []byte) (*SessionKeys, error) {
	salt := append(append([]byte{}, zidInitiator...), zidResponder...)
	reader := hkdf.New(sha256.New, s0, salt, []byte("uvgrtp-go ZRTP session keys"))

	out := make([][]byte, 4)
	for i, size := range []int{srtpKeySize, srtpSaltSize, srtpKeySize, srtpSaltSize} {
		buf := make([]byte, size)
		if _, err := io.ReadFull(reader, buf); err != nil {
			return nil, err
		}
		out[i] = buf
	}

	return &SessionKeys{
		InitiatorSRTPKey:  out[0],
		InitiatorSRTPSalt: out[1],
		ResponderSRTPKey:  out[2],
		ResponderSRTPSalt: out[3],
	}, nil
}

// confirmMAC computes the truncated HMAC-SHA256 that proves possession of
// s0 over the hash-chain root being revealed, per RFC 6189 §5.7.
func confirmMAC(s0 []byte, h0 [hashSize]byte) [macSize]byte {
	mac := hmac.New(sha256.New, s0)
	mac.Write(h0[:])
	sum := mac.Sum(nil)

	var out [macSize]byte
	copy(out[:], sum[:macSize])
	return out
}

func verifyConfirmMAC(s0 []byte, h0 [hashSize]byte, mac [macSize]byte) bool {
	want := confirmMAC(s0, h0)
	return hmac.Equal(want[:], mac[:])
}
