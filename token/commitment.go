// Package token implements TokenScheme: deriving the on-chain commitment a
// PoP token proves, minting and validating that proof against chain state,
// and extracting a commitment from a client-submitted Payment.
package token

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/gcash/bchd/txscript"
	"github.com/gcash/bchd/wire"
)

// PreimageLength is the length of the commitment preimage: a 32-byte
// pubkey hash followed by a 32-byte metadata digest.
const PreimageLength = 64

// ErrIncorrectLengthPreimage is returned when a merchant_data field is not
// exactly PreimageLength bytes.
var ErrIncorrectLengthPreimage = errors.New("token: preimage must be 64 bytes")

// ErrUnsupportedIdentityLength is returned when an identity is neither a
// 20-byte hash160 nor a 32-byte hash, the two lengths PubkeyHashArray can
// fit into the commitment preimage.
var ErrUnsupportedIdentityLength = errors.New("token: unsupported identity length")

// PubkeyHashArray adapts a 20- or 32-byte identity to the fixed 32-byte
// form the commitment preimage uses. 20-byte hash160 identities (the
// common P2PKH/P2SH case) are left-padded with zeroes; 32-byte identities
// are used as-is.
func PubkeyHashArray(identity []byte) ([32]byte, error) {
	var out [32]byte
	switch len(identity) {
	case 32:
		copy(out[:], identity)
	case 20:
		copy(out[12:], identity)
	default:
		return out, ErrUnsupportedIdentityLength
	}
	return out, nil
}

// Commitment computes SHA256(pubkey_hash || metadata_digest).
func Commitment(pubkeyHash, metadataDigest [32]byte) [32]byte {
	preimage := make([]byte, 0, PreimageLength)
	preimage = append(preimage, pubkeyHash[:]...)
	preimage = append(preimage, metadataDigest[:]...)
	return sha256.Sum256(preimage)
}

// SplitPreimage validates and splits a 64-byte commitment preimage into
// its pubkey-hash and metadata-digest halves.
func SplitPreimage(preimage []byte) (pubkeyHash, metadataDigest [32]byte, err error) {
	if len(preimage) != PreimageLength {
		return pubkeyHash, metadataDigest, ErrIncorrectLengthPreimage
	}
	copy(pubkeyHash[:], preimage[:32])
	copy(metadataDigest[:], preimage[32:])
	return pubkeyHash, metadataDigest, nil
}

// CommitmentScript builds the 34-byte OP_RETURN script a commitment output
// must carry: 0x6A 0x20 <32-byte commitment>.
func CommitmentScript(commitment [32]byte) ([]byte, error) {
	script, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_RETURN).
		AddData(commitment[:]).
		Script()
	if err != nil {
		return nil, fmt.Errorf("token: could not build commitment script: %w", err)
	}
	return script, nil
}

// ErrMissingCommitment is returned when no output across any provided
// transaction matches the expected commitment script.
var ErrMissingCommitment = errors.New("token: no output matches the expected commitment")

// ExtractCommitment scans each of the provided raw transactions for an
// output whose script is exactly the commitment script derived from
// preimage. It returns the transaction id and output index of the first
// match, in the order the transactions were provided.
func ExtractCommitment(preimage []byte, rawTxs [][]byte) (txID string, vout uint32, err error) {
	pubkeyHash, metadataDigest, err := SplitPreimage(preimage)
	if err != nil {
		return "", 0, err
	}

	commitment := Commitment(pubkeyHash, metadataDigest)
	expected, err := CommitmentScript(commitment)
	if err != nil {
		return "", 0, err
	}

	for _, raw := range rawTxs {
		tx, err := deserializeTx(raw)
		if err != nil {
			continue
		}
		for i, out := range tx.TxOut {
			if scriptsEqual(out.PkScript, expected) {
				return tx.TxHash().String(), uint32(i), nil
			}
		}
	}

	return "", 0, ErrMissingCommitment
}

func scriptsEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func deserializeTx(raw []byte) (*wire.MsgTx, error) {
	tx := &wire.MsgTx{}
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("token: malformed transaction: %w", err)
	}
	return tx, nil
}
