package token

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/gcash/bchd/chaincfg/chainhash"

	"github.com/quebin31/keyserver/chainrpc"
)

// headerPrefix is the scheme prefix on the Authorization header value.
const headerPrefix = "POP "

// raw token layout: 32-byte tx id (internal byte order) followed by a
// 4-byte little-endian output index. The encoding is opaque to clients;
// nothing outside this package interprets it.
const rawLength = chainhash.HashSize + 4

// Encode builds the raw token bytes binding a transaction id and output
// index.
func Encode(txID *chainhash.Hash, vout uint32) []byte {
	raw := make([]byte, rawLength)
	copy(raw, txID[:])
	binary.LittleEndian.PutUint32(raw[chainhash.HashSize:], vout)
	return raw
}

// ErrMalformedToken is returned when raw token bytes don't have the
// expected layout.
var ErrMalformedToken = errors.New("token: malformed token bytes")

// Decode splits raw token bytes back into a transaction id and output
// index.
func Decode(raw []byte) (txID *chainhash.Hash, vout uint32, err error) {
	if len(raw) != rawLength {
		return nil, 0, ErrMalformedToken
	}
	hash, err := chainhash.NewHash(raw[:chainhash.HashSize])
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	vout = binary.LittleEndian.Uint32(raw[chainhash.HashSize:])
	return hash, vout, nil
}

// Header formats raw token bytes as the external Authorization header
// value: "POP " + base64url(raw).
func Header(raw []byte) string {
	return headerPrefix + base64.URLEncoding.EncodeToString(raw)
}

// ParseHeader is the inverse of Header.
func ParseHeader(value string) ([]byte, error) {
	if len(value) <= len(headerPrefix) || value[:len(headerPrefix)] != headerPrefix {
		return nil, fmt.Errorf("%w: missing %q prefix", ErrMalformedToken, headerPrefix)
	}
	raw, err := base64.URLEncoding.DecodeString(value[len(headerPrefix):])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	return raw, nil
}

// Validation error kinds.
var (
	// ErrChain is returned when the chain node could not be reached or
	// refused to answer about the referenced transaction.
	ErrChain = errors.New("token: chain rpc failed")
	// ErrNoCommitment is returned when the referenced output does not
	// carry the expected commitment script.
	ErrNoCommitment = errors.New("token: referenced output is not the expected commitment")
)

// Validate implements TokenScheme.validate_token: it decodes the token,
// fetches the referenced transaction from the chain, and checks that the
// output at the given index carries the expected commitment script for
// (pubkeyHash, metadataDigest). On success it returns the raw token bytes,
// ready to be stored.
func Validate(ctx context.Context, client chainrpc.Client, pubkeyHash, metadataDigest [32]byte, popHeader string) ([]byte, error) {
	raw, err := ParseHeader(popHeader)
	if err != nil {
		return nil, err
	}

	txID, vout, err := Decode(raw)
	if err != nil {
		return nil, err
	}

	rawTx, err := client.GetRawTransaction(ctx, txID.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrChain, err)
	}

	tx, err := deserializeTx(rawTx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoCommitment, err)
	}

	if int(vout) >= len(tx.TxOut) {
		return nil, ErrNoCommitment
	}

	commitment := Commitment(pubkeyHash, metadataDigest)
	expected, err := CommitmentScript(commitment)
	if err != nil {
		return nil, err
	}

	if !bytes.Equal(tx.TxOut[vout].PkScript, expected) {
		return nil, ErrNoCommitment
	}

	return raw, nil
}
