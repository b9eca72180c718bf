package kssproto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthWrapperRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		in   AuthWrapper
	}{
		{
			name: "full wrapper",
			in: AuthWrapper{
				PublicKey:     []byte{0x02, 0x01, 0x02, 0x03},
				Signature:     []byte{0x30, 0x44, 0x02},
				Scheme:        SchemeECDSA,
				Payload:       []byte("hello world"),
				PayloadDigest: make([]byte, 32),
			},
		},
		{
			name: "no payload digest",
			in: AuthWrapper{
				PublicKey: []byte{0x03, 0xff},
				Signature: []byte{0x01},
				Scheme:    SchemeECDSA,
				Payload:   []byte("x"),
			},
		},
		{
			name: "schnorr scheme",
			in: AuthWrapper{
				PublicKey: []byte{0x02},
				Signature: []byte{0x02},
				Scheme:    SchemeSchnorr,
				Payload:   []byte{},
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			b, err := test.in.Marshal()
			require.NoError(t, err)

			var out AuthWrapper
			err = out.Unmarshal(b)
			require.NoError(t, err)

			assert.Equal(t, test.in.PublicKey, out.PublicKey)
			assert.Equal(t, test.in.Signature, out.Signature)
			assert.Equal(t, test.in.Scheme, out.Scheme)
			assert.Equal(t, test.in.Payload, out.Payload)
			if len(test.in.PayloadDigest) > 0 {
				assert.Equal(t, test.in.PayloadDigest, out.PayloadDigest)
			} else {
				assert.Empty(t, out.PayloadDigest)
			}

			// Re-encoding the decoded wrapper reproduces the same bytes.
			b2, err := out.Marshal()
			require.NoError(t, err)
			assert.Equal(t, b, b2)
		})
	}
}

func TestDatabaseWrapperRoundTrip(t *testing.T) {
	in := DatabaseWrapper{
		SerializedAuthWrapper: []byte{0x01, 0x02, 0x03},
		Token:                 []byte{0xaa, 0xbb},
	}

	b, err := in.Marshal()
	require.NoError(t, err)

	var out DatabaseWrapper
	require.NoError(t, out.Unmarshal(b))
	assert.Equal(t, in, out)
}

func TestPeersRoundTrip(t *testing.T) {
	in := PeersFromURLs([]string{"https://a.example", "https://b.example"})

	b, err := in.Marshal()
	require.NoError(t, err)

	var out Peers
	require.NoError(t, out.Unmarshal(b))
	assert.Equal(t, in.URLs(), out.URLs())
}

func TestPaymentRoundTrip(t *testing.T) {
	amount := uint64(1000)
	in := Payment{
		MerchantData: make([]byte, 64),
		Transactions: [][]byte{{0x01, 0x02}, {0x03}},
		RefundTo: []Output{
			{Amount: &amount, Script: []byte{0x76, 0xa9}},
		},
		Memo: "thanks",
	}

	b, err := in.Marshal()
	require.NoError(t, err)

	var out Payment
	require.NoError(t, out.Unmarshal(b))
	assert.Equal(t, in.MerchantData, out.MerchantData)
	assert.Equal(t, in.Transactions, out.Transactions)
	assert.Equal(t, in.Memo, out.Memo)
	require.Len(t, out.RefundTo, 1)
	assert.Equal(t, *in.RefundTo[0].Amount, *out.RefundTo[0].Amount)
	assert.Equal(t, in.RefundTo[0].Script, out.RefundTo[0].Script)
}

func TestPaymentRequestRoundTrip(t *testing.T) {
	details := PaymentDetails{
		Network:      "regtest",
		Outputs:      []Output{{Script: []byte{0x6a, 0x20}}},
		Time:         1700000000,
		MerchantData: make([]byte, 64),
		PaymentURL:   "/payments",
	}
	detailBytes, err := details.Marshal()
	require.NoError(t, err)

	in := PaymentRequest{
		PaymentDetailsVersion:    1,
		PKIType:                  "none",
		SerializedPaymentDetails: detailBytes,
	}
	b, err := in.Marshal()
	require.NoError(t, err)

	var out PaymentRequest
	require.NoError(t, out.Unmarshal(b))
	assert.Equal(t, in.PaymentDetailsVersion, out.PaymentDetailsVersion)
	assert.Equal(t, in.PKIType, out.PKIType)
	assert.Equal(t, in.SerializedPaymentDetails, out.SerializedPaymentDetails)

	var outDetails PaymentDetails
	require.NoError(t, outDetails.Unmarshal(out.SerializedPaymentDetails))
	assert.Equal(t, details.Network, outDetails.Network)
	assert.Equal(t, details.Time, outDetails.Time)
	assert.Equal(t, details.MerchantData, outDetails.MerchantData)
	assert.Equal(t, details.PaymentURL, outDetails.PaymentURL)
	require.Len(t, outDetails.Outputs, 1)
	assert.Equal(t, details.Outputs[0].Script, outDetails.Outputs[0].Script)
	assert.Nil(t, outDetails.Expires)
}
