// Package wrapper implements WrapperCodec: decoding, canonicalizing, and
// signature-verifying the AuthWrapper envelope that every stored identity
// wraps. Parsing and verification are kept as separate steps (see Parse and
// Verify) so that callers needing the payload digest for token validation
// never re-hash the payload.
package wrapper

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/gcash/bchd/bchec"

	"github.com/quebin31/keyserver/kssproto"
)

// Error kinds returned by Parse and Verify. They are sentinel values so
// callers can classify a failure with errors.Is without string matching.
var (
	ErrPublicKey         = errors.New("wrapper: invalid public key")
	ErrSignature         = errors.New("wrapper: invalid signature encoding")
	ErrUnsupportedScheme = errors.New("wrapper: unsupported signature scheme")
	ErrPreimageMismatch  = errors.New("wrapper: payload digest does not match payload")
	ErrInvalidSignature  = errors.New("wrapper: signature does not verify")
)

// Decode parses the wire bytes into an AuthWrapper without performing any
// semantic validation.
func Decode(raw []byte) (*kssproto.AuthWrapper, error) {
	w := &kssproto.AuthWrapper{}
	if err := w.Unmarshal(raw); err != nil {
		return nil, fmt.Errorf("wrapper: could not decode: %w", err)
	}
	return w, nil
}

// Parsed is the result of Parse: a wrapper whose public key and signature
// have been deserialized into usable curve types, alongside the payload
// digest that downstream token validation needs.
type Parsed struct {
	Wrapper       *kssproto.AuthWrapper
	PublicKey     *bchec.PublicKey
	Signature     *bchec.Signature
	PayloadDigest [32]byte
}

// Parse validates the structural invariants of an AuthWrapper: the public
// key parses as a curve point, the scheme is supported, the signature
// parses, and the payload digest is present-and-correct or absent (in
// which case it is computed). It performs no curve arithmetic; call Verify
// for that.
func Parse(w *kssproto.AuthWrapper) (*Parsed, error) {
	pub, err := bchec.ParsePubKey(w.PublicKey, bchec.S256())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPublicKey, err)
	}

	if w.Scheme != kssproto.SchemeECDSA {
		return nil, fmt.Errorf("%w: scheme %d", ErrUnsupportedScheme, w.Scheme)
	}

	sig, err := bchec.ParseDERSignature(w.Signature, bchec.S256())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignature, err)
	}

	digest, err := resolveDigest(w.Payload, w.PayloadDigest)
	if err != nil {
		return nil, err
	}

	p := &Parsed{
		Wrapper:       w,
		PublicKey:     pub,
		Signature:     sig,
		PayloadDigest: digest,
	}
	return p, nil
}

// resolveDigest implements the payload-digest tri-state rule: absent or
// non-32-byte is treated as missing (compute it); 32 bytes present must
// match SHA-256(payload) exactly or the wrapper is rejected.
func resolveDigest(payload, claimed []byte) ([32]byte, error) {
	computed := sha256.Sum256(payload)
	if len(claimed) != 32 {
		return computed, nil
	}
	if !bytes.Equal(claimed, computed[:]) {
		return [32]byte{}, ErrPreimageMismatch
	}
	return computed, nil
}

// Verify performs the ECDSA curve operation: it checks that the signature
// verifies over the payload digest under the public key.
func Verify(p *Parsed) error {
	if !p.Signature.Verify(p.PayloadDigest[:], p.PublicKey) {
		return ErrInvalidSignature
	}
	return nil
}

// DecodeParseVerify runs the full pipeline in one call, the form most
// handlers want.
func DecodeParseVerify(raw []byte) (*Parsed, error) {
	w, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	p, err := Parse(w)
	if err != nil {
		return nil, err
	}
	if err := Verify(p); err != nil {
		return nil, err
	}
	return p, nil
}
