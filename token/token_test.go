package token

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/gcash/bchd/chaincfg/chainhash"
	"github.com/gcash/bchd/txscript"
	"github.com/gcash/bchd/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFakeTransport = errors.New("fake transport failure")

type fakeChainClient struct {
	raw []byte
	err error
}

func (f *fakeChainClient) GetRawTransaction(ctx context.Context, txID string) ([]byte, error) {
	return f.raw, f.err
}

func (f *fakeChainClient) SendRawTransaction(ctx context.Context, raw []byte) (string, error) {
	panic("not used")
}

func commitmentTx(t *testing.T, commitment [32]byte) []byte {
	t.Helper()
	script, err := txscript.NewScriptBuilder().AddOp(txscript.OP_RETURN).AddData(commitment[:]).Script()
	require.NoError(t, err)

	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxOut(wire.NewTxOut(0, script))

	var buf bytes.Buffer
	require.NoError(t, tx.Serialize(&buf))
	return buf.Bytes()
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	var h chainhash.Hash
	h[0] = 0xaa
	raw := Encode(&h, 3)

	gotHash, gotVout, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, h, *gotHash)
	assert.Equal(t, uint32(3), gotVout)
}

func TestDecode_WrongLength(t *testing.T) {
	_, _, err := Decode([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrMalformedToken)
}

func TestHeaderRoundTrip(t *testing.T) {
	raw := []byte{1, 2, 3, 4}
	header := Header(raw)
	assert.Contains(t, header, headerPrefix)

	got, err := ParseHeader(header)
	require.NoError(t, err)
	assert.Equal(t, raw, got)
}

func TestParseHeader_MissingPrefix(t *testing.T) {
	_, err := ParseHeader("garbage")
	assert.ErrorIs(t, err, ErrMalformedToken)
}

func TestValidate_Success(t *testing.T) {
	var pubkeyHash, metadataDigest [32]byte
	pubkeyHash[0] = 1
	metadataDigest[0] = 2

	commitment := Commitment(pubkeyHash, metadataDigest)
	rawTx := commitmentTx(t, commitment)

	tx := wire.MsgTx{}
	require.NoError(t, tx.Deserialize(bytes.NewReader(rawTx)))
	txID := tx.TxHash()

	client := &fakeChainClient{raw: rawTx}
	popHeader := Header(Encode(&txID, 0))

	got, err := Validate(context.Background(), client, pubkeyHash, metadataDigest, popHeader)
	require.NoError(t, err)
	assert.Equal(t, Encode(&txID, 0), got)
}

func TestValidate_NoCommitment(t *testing.T) {
	var pubkeyHash, metadataDigest, wrongDigest [32]byte
	pubkeyHash[0] = 1
	metadataDigest[0] = 2
	wrongDigest[0] = 9

	commitment := Commitment(pubkeyHash, wrongDigest)
	rawTx := commitmentTx(t, commitment)

	tx := wire.MsgTx{}
	require.NoError(t, tx.Deserialize(bytes.NewReader(rawTx)))
	txID := tx.TxHash()

	client := &fakeChainClient{raw: rawTx}
	popHeader := Header(Encode(&txID, 0))

	_, err := Validate(context.Background(), client, pubkeyHash, metadataDigest, popHeader)
	assert.ErrorIs(t, err, ErrNoCommitment)
}

func TestValidate_ChainError(t *testing.T) {
	var pubkeyHash, metadataDigest [32]byte
	var txID chainhash.Hash

	client := &fakeChainClient{err: errFakeTransport}
	popHeader := Header(Encode(&txID, 0))

	_, err := Validate(context.Background(), client, pubkeyHash, metadataDigest, popHeader)
	assert.ErrorIs(t, err, ErrChain)
}

func TestValidate_MalformedHeader(t *testing.T) {
	var pubkeyHash, metadataDigest [32]byte
	client := &fakeChainClient{}

	_, err := Validate(context.Background(), client, pubkeyHash, metadataDigest, "not a token")
	assert.ErrorIs(t, err, ErrMalformedToken)
}
