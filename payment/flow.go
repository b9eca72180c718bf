// Package payment implements PaymentFlow: generating BIP70-style invoices
// that carry a chain commitment, and settling a client's Payment against
// the chain node.
package payment

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/gcash/bchd/chaincfg"
	"github.com/gcash/bchd/chaincfg/chainhash"
	"github.com/gcash/bchd/wire"

	"github.com/quebin31/keyserver/addr"
	"github.com/quebin31/keyserver/chainrpc"
	"github.com/quebin31/keyserver/kssproto"
	"github.com/quebin31/keyserver/token"
)

// AcceptHeaderValue and ContentTypeHeaderValue are the BIP70-style media
// types the payment endpoint requires on POST /payments.
const (
	AcceptHeaderValue      = "application/bitcoincash-paymentack"
	ContentTypeHeaderValue = "application/bitcoincash-payment"
)

// CheckHeaders validates the Accept/Content-Type headers of an incoming
// payment request. It is a pure function so the HTTP layer can call it
// before even attempting to decode the body.
func CheckHeaders(accept, contentType string) error {
	if accept != AcceptHeaderValue {
		return ErrMissingAccept
	}
	if contentType != ContentTypeHeaderValue {
		return ErrMissingContentType
	}
	return nil
}

// ConstructInvoice builds the PaymentDetails/PaymentRequest pair returned
// with an HTTP 402 when a PUT lacks a valid PoP token. The commitment
// preimage is the 64-byte (pubkey_hash || metadata_digest) pair the client
// must pay to.
func ConstructInvoice(pubkeyHash, metadataDigest [32]byte, network, paymentURL, memo string) (*kssproto.PaymentRequest, []byte, error) {
	commitment := token.Commitment(pubkeyHash, metadataDigest)
	script, err := token.CommitmentScript(commitment)
	if err != nil {
		return nil, nil, err
	}

	preimage := make([]byte, 0, token.PreimageLength)
	preimage = append(preimage, pubkeyHash[:]...)
	preimage = append(preimage, metadataDigest[:]...)

	details := &kssproto.PaymentDetails{
		Network:      network,
		Outputs:      []kssproto.Output{{Amount: nil, Script: script}},
		Time:         uint64(time.Now().Unix()),
		Expires:      nil,
		MerchantData: preimage,
		Memo:         memo,
		PaymentURL:   paymentURL,
	}

	serializedDetails, err := details.Marshal()
	if err != nil {
		return nil, nil, fmt.Errorf("payment: could not serialize payment details: %w", err)
	}

	request := &kssproto.PaymentRequest{
		PaymentDetailsVersion:    1,
		PKIType:                  "none",
		SerializedPaymentDetails: serializedDetails,
	}

	serializedRequest, err := request.Marshal()
	if err != nil {
		return nil, nil, fmt.Errorf("payment: could not serialize payment request: %w", err)
	}

	return request, serializedRequest, nil
}

// Settlement is the result of successfully processing a Payment: the
// acknowledgement to return to the client, the textual address identifying
// the paid-for identity, and the PoP token minted from the broadcast
// transaction.
type Settlement struct {
	Ack           *kssproto.PaymentAck
	Address       string
	TokenRaw      []byte
	TokenHeader   string
}

// ProcessPayment implements PaymentFlow.process_payment: it validates and
// broadcasts every transaction in pay, extracts the chain commitment,
// mints the resulting PoP token, and resolves the settlement address.
func ProcessPayment(ctx context.Context, client chainrpc.Client, params *chaincfg.Params, pay *kssproto.Payment, memo string) (*Settlement, error) {
	if len(pay.MerchantData) == 0 {
		return nil, ErrMissingMerchantData
	}

	for _, raw := range pay.Transactions {
		if _, err := deserializeTx(raw); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedTx, err)
		}
	}

	txID, vout, err := token.ExtractCommitment(pay.MerchantData, pay.Transactions)
	if err != nil {
		switch {
		case err == token.ErrIncorrectLengthPreimage:
			return nil, ErrIncorrectLengthPreimage
		case err == token.ErrMissingCommitment:
			return nil, ErrMissingCommitment
		default:
			return nil, err
		}
	}

	for _, raw := range pay.Transactions {
		if _, err := client.SendRawTransaction(ctx, raw); err != nil {
			if chainrpc.IsRejected(err) {
				return nil, fmt.Errorf("%w: %v", ErrNode, err)
			}
			return nil, fmt.Errorf("payment: chain rpc transport error: %w", err)
		}
	}

	pubkeyHash, _, err := token.SplitPreimage(pay.MerchantData)
	if err != nil {
		return nil, ErrIncorrectLengthPreimage
	}

	address, err := addr.Encode(pubkeyHash[12:], params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAddress, err)
	}

	hash, err := chainhash.NewHashFromStr(txID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTx, err)
	}

	rawToken := token.Encode(hash, vout)

	return &Settlement{
		Ack:         &kssproto.PaymentAck{Payment: *pay, Memo: memo},
		Address:     address,
		TokenRaw:    rawToken,
		TokenHeader: token.Header(rawToken),
	}, nil
}

func deserializeTx(raw []byte) (*wire.MsgTx, error) {
	tx := &wire.MsgTx{}
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	return tx, nil
}
