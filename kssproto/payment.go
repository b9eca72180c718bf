package kssproto

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Output is a single payment output: an optional amount (nil means
// "unspecified", used by invoice outputs that only carry a commitment
// script) and the locking script. BIP70 defines amount as an unsigned
// 64-bit satoshi count, so it is encoded as a plain varint rather than a
// zigzag-coded signed one.
type Output struct {
	Amount *uint64
	Script []byte
}

const (
	fieldOutputAmount = 1
	fieldOutputScript = 2
)

func (o *Output) marshalInto(b []byte) []byte {
	if o.Amount != nil {
		b = protowire.AppendTag(b, fieldOutputAmount, protowire.VarintType)
		b = protowire.AppendVarint(b, *o.Amount)
	}
	if len(o.Script) > 0 {
		b = protowire.AppendTag(b, fieldOutputScript, protowire.BytesType)
		b = protowire.AppendBytes(b, o.Script)
	}
	return b
}

func (o *Output) unmarshal(b []byte) error {
	*o = Output{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("kssproto: invalid output tag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		switch num {
		case fieldOutputAmount:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return fmt.Errorf("kssproto: invalid output amount: %w", protowire.ParseError(n))
			}
			amount := v
			o.Amount = &amount
			b = b[n:]
		case fieldOutputScript:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return fmt.Errorf("kssproto: invalid output script: %w", protowire.ParseError(n))
			}
			o.Script = append([]byte(nil), v...)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("kssproto: invalid output field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return nil
}

// PaymentDetails describes what a PaymentRequest expects on-chain. Time
// and Expires are BIP70 unsigned Unix timestamps, encoded as plain
// varints rather than zigzag-coded signed ones.
type PaymentDetails struct {
	Network      string
	Outputs      []Output
	Time         uint64
	Expires      *uint64
	MerchantData []byte
	Memo         string
	PaymentURL   string
}

const (
	fieldDetailsNetwork      = 1
	fieldDetailsOutputs      = 2
	fieldDetailsTime         = 3
	fieldDetailsExpires      = 4
	fieldDetailsMerchantData = 5
	fieldDetailsMemo         = 6
	fieldDetailsPaymentURL   = 7
)

func (d *PaymentDetails) Marshal() ([]byte, error) {
	var b []byte
	if d.Network != "" {
		b = protowire.AppendTag(b, fieldDetailsNetwork, protowire.BytesType)
		b = protowire.AppendString(b, d.Network)
	}
	for i := range d.Outputs {
		var inner []byte
		inner = d.Outputs[i].marshalInto(inner)
		b = protowire.AppendTag(b, fieldDetailsOutputs, protowire.BytesType)
		b = protowire.AppendBytes(b, inner)
	}
	b = protowire.AppendTag(b, fieldDetailsTime, protowire.VarintType)
	b = protowire.AppendVarint(b, d.Time)
	if d.Expires != nil {
		b = protowire.AppendTag(b, fieldDetailsExpires, protowire.VarintType)
		b = protowire.AppendVarint(b, *d.Expires)
	}
	if len(d.MerchantData) > 0 {
		b = protowire.AppendTag(b, fieldDetailsMerchantData, protowire.BytesType)
		b = protowire.AppendBytes(b, d.MerchantData)
	}
	if d.Memo != "" {
		b = protowire.AppendTag(b, fieldDetailsMemo, protowire.BytesType)
		b = protowire.AppendString(b, d.Memo)
	}
	if d.PaymentURL != "" {
		b = protowire.AppendTag(b, fieldDetailsPaymentURL, protowire.BytesType)
		b = protowire.AppendString(b, d.PaymentURL)
	}
	return b, nil
}

func (d *PaymentDetails) Unmarshal(b []byte) error {
	*d = PaymentDetails{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("kssproto: invalid tag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		switch num {
		case fieldDetailsNetwork:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return fmt.Errorf("kssproto: invalid network: %w", protowire.ParseError(n))
			}
			d.Network = v
			b = b[n:]
		case fieldDetailsOutputs:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return fmt.Errorf("kssproto: invalid output entry: %w", protowire.ParseError(n))
			}
			var out Output
			if err := out.unmarshal(v); err != nil {
				return err
			}
			d.Outputs = append(d.Outputs, out)
			b = b[n:]
		case fieldDetailsTime:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return fmt.Errorf("kssproto: invalid time: %w", protowire.ParseError(n))
			}
			d.Time = v
			b = b[n:]
		case fieldDetailsExpires:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return fmt.Errorf("kssproto: invalid expires: %w", protowire.ParseError(n))
			}
			expires := v
			d.Expires = &expires
			b = b[n:]
		case fieldDetailsMerchantData:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return fmt.Errorf("kssproto: invalid merchant_data: %w", protowire.ParseError(n))
			}
			d.MerchantData = append([]byte(nil), v...)
			b = b[n:]
		case fieldDetailsMemo:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return fmt.Errorf("kssproto: invalid memo: %w", protowire.ParseError(n))
			}
			d.Memo = v
			b = b[n:]
		case fieldDetailsPaymentURL:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return fmt.Errorf("kssproto: invalid payment_url: %w", protowire.ParseError(n))
			}
			d.PaymentURL = v
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("kssproto: invalid field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return nil
}

// PaymentRequest is the BIP70-style envelope returned with HTTP 402.
type PaymentRequest struct {
	PaymentDetailsVersion   int32
	PKIType                 string
	PKIData                 []byte
	SerializedPaymentDetails []byte
	Signature               []byte
}

const (
	fieldRequestVersion    = 1
	fieldRequestPKIType    = 2
	fieldRequestPKIData    = 3
	fieldRequestDetails    = 4
	fieldRequestSignature  = 5
)

func (r *PaymentRequest) Marshal() ([]byte, error) {
	var b []byte
	b = protowire.AppendTag(b, fieldRequestVersion, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(int64(r.PaymentDetailsVersion)))
	if r.PKIType != "" {
		b = protowire.AppendTag(b, fieldRequestPKIType, protowire.BytesType)
		b = protowire.AppendString(b, r.PKIType)
	}
	if len(r.PKIData) > 0 {
		b = protowire.AppendTag(b, fieldRequestPKIData, protowire.BytesType)
		b = protowire.AppendBytes(b, r.PKIData)
	}
	b = protowire.AppendTag(b, fieldRequestDetails, protowire.BytesType)
	b = protowire.AppendBytes(b, r.SerializedPaymentDetails)
	if len(r.Signature) > 0 {
		b = protowire.AppendTag(b, fieldRequestSignature, protowire.BytesType)
		b = protowire.AppendBytes(b, r.Signature)
	}
	return b, nil
}

func (r *PaymentRequest) Unmarshal(b []byte) error {
	*r = PaymentRequest{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("kssproto: invalid tag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		switch num {
		case fieldRequestVersion:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return fmt.Errorf("kssproto: invalid payment_details_version: %w", protowire.ParseError(n))
			}
			r.PaymentDetailsVersion = int32(v)
			b = b[n:]
		case fieldRequestPKIType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return fmt.Errorf("kssproto: invalid pki_type: %w", protowire.ParseError(n))
			}
			r.PKIType = v
			b = b[n:]
		case fieldRequestPKIData:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return fmt.Errorf("kssproto: invalid pki_data: %w", protowire.ParseError(n))
			}
			r.PKIData = append([]byte(nil), v...)
			b = b[n:]
		case fieldRequestDetails:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return fmt.Errorf("kssproto: invalid serialized_payment_details: %w", protowire.ParseError(n))
			}
			r.SerializedPaymentDetails = append([]byte(nil), v...)
			b = b[n:]
		case fieldRequestSignature:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return fmt.Errorf("kssproto: invalid signature: %w", protowire.ParseError(n))
			}
			r.Signature = append([]byte(nil), v...)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("kssproto: invalid field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return nil
}

// Payment is the client's response to a PaymentRequest: the raw
// transactions that satisfy it plus the merchant_data echoed back.
type Payment struct {
	MerchantData []byte
	Transactions [][]byte
	RefundTo     []Output
	Memo         string
}

const (
	fieldPaymentMerchantData = 1
	fieldPaymentTransactions = 2
	fieldPaymentRefundTo     = 3
	fieldPaymentMemo         = 4
)

func (p *Payment) marshalInto(b []byte) []byte {
	if len(p.MerchantData) > 0 {
		b = protowire.AppendTag(b, fieldPaymentMerchantData, protowire.BytesType)
		b = protowire.AppendBytes(b, p.MerchantData)
	}
	for _, tx := range p.Transactions {
		b = protowire.AppendTag(b, fieldPaymentTransactions, protowire.BytesType)
		b = protowire.AppendBytes(b, tx)
	}
	for i := range p.RefundTo {
		var inner []byte
		inner = p.RefundTo[i].marshalInto(inner)
		b = protowire.AppendTag(b, fieldPaymentRefundTo, protowire.BytesType)
		b = protowire.AppendBytes(b, inner)
	}
	if p.Memo != "" {
		b = protowire.AppendTag(b, fieldPaymentMemo, protowire.BytesType)
		b = protowire.AppendString(b, p.Memo)
	}
	return b
}

func (p *Payment) Marshal() ([]byte, error) {
	return p.marshalInto(nil), nil
}

func (p *Payment) unmarshal(b []byte) error {
	*p = Payment{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("kssproto: invalid tag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		switch num {
		case fieldPaymentMerchantData:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return fmt.Errorf("kssproto: invalid merchant_data: %w", protowire.ParseError(n))
			}
			p.MerchantData = append([]byte(nil), v...)
			b = b[n:]
		case fieldPaymentTransactions:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return fmt.Errorf("kssproto: invalid transaction entry: %w", protowire.ParseError(n))
			}
			p.Transactions = append(p.Transactions, append([]byte(nil), v...))
			b = b[n:]
		case fieldPaymentRefundTo:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return fmt.Errorf("kssproto: invalid refund_to entry: %w", protowire.ParseError(n))
			}
			var out Output
			if err := out.unmarshal(v); err != nil {
				return err
			}
			p.RefundTo = append(p.RefundTo, out)
			b = b[n:]
		case fieldPaymentMemo:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return fmt.Errorf("kssproto: invalid memo: %w", protowire.ParseError(n))
			}
			p.Memo = v
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("kssproto: invalid field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return nil
}

func (p *Payment) Unmarshal(b []byte) error {
	return p.unmarshal(b)
}

// PaymentAck acknowledges a settled Payment.
type PaymentAck struct {
	Payment Payment
	Memo    string
}

const (
	fieldAckPayment = 1
	fieldAckMemo    = 2
)

func (a *PaymentAck) Marshal() ([]byte, error) {
	var b []byte
	var inner []byte
	inner = a.Payment.marshalInto(inner)
	b = protowire.AppendTag(b, fieldAckPayment, protowire.BytesType)
	b = protowire.AppendBytes(b, inner)
	if a.Memo != "" {
		b = protowire.AppendTag(b, fieldAckMemo, protowire.BytesType)
		b = protowire.AppendString(b, a.Memo)
	}
	return b, nil
}

func (a *PaymentAck) Unmarshal(b []byte) error {
	*a = PaymentAck{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("kssproto: invalid tag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		switch num {
		case fieldAckPayment:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return fmt.Errorf("kssproto: invalid payment: %w", protowire.ParseError(n))
			}
			if err := a.Payment.unmarshal(v); err != nil {
				return err
			}
			b = b[n:]
		case fieldAckMemo:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return fmt.Errorf("kssproto: invalid memo: %w", protowire.ParseError(n))
			}
			a.Memo = v
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("kssproto: invalid field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return nil
}
