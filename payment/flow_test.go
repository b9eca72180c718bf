package payment

import (
	"bytes"
	"context"
	"testing"

	"github.com/gcash/bchd/chaincfg"
	"github.com/gcash/bchd/txscript"
	"github.com/gcash/bchd/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quebin31/keyserver/kssproto"
	"github.com/quebin31/keyserver/token"
)

func paymentWithTx(merchantData []byte, rawTx []byte) *kssproto.Payment {
	return &kssproto.Payment{
		MerchantData: merchantData,
		Transactions: [][]byte{rawTx},
	}
}

type fakeChainClient struct {
	sent    [][]byte
	sendErr error
}

func (f *fakeChainClient) GetRawTransaction(ctx context.Context, txID string) ([]byte, error) {
	panic("not used")
}

func (f *fakeChainClient) SendRawTransaction(ctx context.Context, raw []byte) (string, error) {
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.sent = append(f.sent, raw)
	tx := &wire.MsgTx{}
	_ = tx.Deserialize(bytes.NewReader(raw))
	return tx.TxHash().String(), nil
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

func TestCheckHeaders(t *testing.T) {
	assert.NoError(t, CheckHeaders(AcceptHeaderValue, ContentTypeHeaderValue))
	assert.ErrorIs(t, CheckHeaders("wrong", ContentTypeHeaderValue), ErrMissingAccept)
	assert.ErrorIs(t, CheckHeaders(AcceptHeaderValue, "wrong"), ErrMissingContentType)
}

func TestConstructInvoice(t *testing.T) {
	var pubkeyHash, metadataDigest [32]byte
	pubkeyHash[0] = 1
	metadataDigest[0] = 2

	request, raw, err := ConstructInvoice(pubkeyHash, metadataDigest, "main", "https://keyserver.example/payments", "pay up")
	require.NoError(t, err)
	assert.NotEmpty(t, raw)
	assert.Equal(t, "none", request.PKIType)
	assert.EqualValues(t, 1, request.PaymentDetailsVersion)

	var details kssproto.PaymentDetails
	require.NoError(t, details.Unmarshal(request.SerializedPaymentDetails))
	assert.Equal(t, "main", details.Network)
	assert.Len(t, details.Outputs, 1)
	assert.Nil(t, details.Outputs[0].Amount)
}

func TestProcessPayment_Success(t *testing.T) {
	var pubkeyHash, metadataDigest [32]byte
	pubkeyHash[0] = 5
	metadataDigest[0] = 6

	commitment := token.Commitment(pubkeyHash, metadataDigest)
	rawTx := commitmentTx(t, commitment)

	preimage := append(append([]byte{}, pubkeyHash[:]...), metadataDigest[:]...)
	pay := paymentWithTx(preimage, rawTx)

	client := &fakeChainClient{}
	settlement, err := ProcessPayment(context.Background(), client, &chaincfg.MainNetParams, pay, "thanks")
	require.NoError(t, err)
	assert.NotEmpty(t, settlement.Address)
	assert.Contains(t, settlement.TokenHeader, "POP ")
	assert.Len(t, client.sent, 1)
}

func TestProcessPayment_MissingMerchantData(t *testing.T) {
	pay := paymentWithTx(nil, []byte{})
	client := &fakeChainClient{}
	_, err := ProcessPayment(context.Background(), client, &chaincfg.MainNetParams, pay, "")
	assert.ErrorIs(t, err, ErrMissingMerchantData)
}

func TestProcessPayment_IncorrectLengthPreimage(t *testing.T) {
	pay := paymentWithTx([]byte{1, 2, 3}, commitmentTx(t, [32]byte{}))
	client := &fakeChainClient{}
	_, err := ProcessPayment(context.Background(), client, &chaincfg.MainNetParams, pay, "")
	assert.ErrorIs(t, err, ErrIncorrectLengthPreimage)
}

func TestProcessPayment_MissingCommitment(t *testing.T) {
	var pubkeyHash, metadataDigest [32]byte
	preimage := append(append([]byte{}, pubkeyHash[:]...), metadataDigest[:]...)

	otherScript, err := txscript.NewScriptBuilder().AddOp(txscript.OP_RETURN).AddData([]byte("nope")).Script()
	require.NoError(t, err)
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxOut(wire.NewTxOut(0, otherScript))
	var buf bytes.Buffer
	require.NoError(t, tx.Serialize(&buf))

	pay := paymentWithTx(preimage, buf.Bytes())
	client := &fakeChainClient{}
	_, err = ProcessPayment(context.Background(), client, &chaincfg.MainNetParams, pay, "")
	assert.ErrorIs(t, err, ErrMissingCommitment)
}

func TestProcessPayment_MalformedTx(t *testing.T) {
	pay := paymentWithTx([]byte(bytes.Repeat([]byte{0}, 64)), []byte{0xff, 0xff})
	client := &fakeChainClient{}
	_, err := ProcessPayment(context.Background(), client, &chaincfg.MainNetParams, pay, "")
	assert.ErrorIs(t, err, ErrMalformedTx)
}
