// Package kssproto defines the wire messages exchanged between keyservers
// and clients. Each message implements its own Marshal/Unmarshal pair
// directly against the protobuf wire format via protowire, so the message
// family needs no protoc step to stay in sync with the wire spec.
package kssproto

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Scheme identifies the signature algorithm used by an AuthWrapper.
type Scheme int32

const (
	SchemeUnspecified Scheme = 0
	SchemeECDSA       Scheme = 1
	SchemeSchnorr     Scheme = 2
)

// AuthWrapper is the canonical signed envelope stored per identity.
type AuthWrapper struct {
	PublicKey     []byte
	Signature     []byte
	Scheme        Scheme
	Payload       []byte
	PayloadDigest []byte
}

const (
	fieldWrapperPublicKey     = 1
	fieldWrapperSignature     = 2
	fieldWrapperScheme        = 3
	fieldWrapperPayload       = 4
	fieldWrapperPayloadDigest = 5
)

// Marshal encodes the wrapper in the protobuf wire format, without a
// length prefix.
func (w *AuthWrapper) Marshal() ([]byte, error) {
	var b []byte
	if len(w.PublicKey) > 0 {
		b = protowire.AppendTag(b, fieldWrapperPublicKey, protowire.BytesType)
		b = protowire.AppendBytes(b, w.PublicKey)
	}
	if len(w.Signature) > 0 {
		b = protowire.AppendTag(b, fieldWrapperSignature, protowire.BytesType)
		b = protowire.AppendBytes(b, w.Signature)
	}
	if w.Scheme != SchemeUnspecified {
		b = protowire.AppendTag(b, fieldWrapperScheme, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(w.Scheme))
	}
	if len(w.Payload) > 0 {
		b = protowire.AppendTag(b, fieldWrapperPayload, protowire.BytesType)
		b = protowire.AppendBytes(b, w.Payload)
	}
	if len(w.PayloadDigest) > 0 {
		b = protowire.AppendTag(b, fieldWrapperPayloadDigest, protowire.BytesType)
		b = protowire.AppendBytes(b, w.PayloadDigest)
	}
	return b, nil
}

// Unmarshal decodes a wrapper from its wire representation. It performs no
// semantic validation beyond what is needed to parse the fields.
func (w *AuthWrapper) Unmarshal(b []byte) error {
	*w = AuthWrapper{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("kssproto: invalid tag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		switch num {
		case fieldWrapperPublicKey:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return fmt.Errorf("kssproto: invalid public_key: %w", protowire.ParseError(n))
			}
			w.PublicKey = append([]byte(nil), v...)
			b = b[n:]
		case fieldWrapperSignature:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return fmt.Errorf("kssproto: invalid signature: %w", protowire.ParseError(n))
			}
			w.Signature = append([]byte(nil), v...)
			b = b[n:]
		case fieldWrapperScheme:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return fmt.Errorf("kssproto: invalid scheme: %w", protowire.ParseError(n))
			}
			w.Scheme = Scheme(v)
			b = b[n:]
		case fieldWrapperPayload:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return fmt.Errorf("kssproto: invalid payload: %w", protowire.ParseError(n))
			}
			w.Payload = append([]byte(nil), v...)
			b = b[n:]
		case fieldWrapperPayloadDigest:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return fmt.Errorf("kssproto: invalid payload_digest: %w", protowire.ParseError(n))
			}
			w.PayloadDigest = append([]byte(nil), v...)
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

// DatabaseWrapper is the value stored per identity in the metadata
// namespace: the wrapper bytes exactly as accepted, plus the PoP token that
// validated them.
type DatabaseWrapper struct {
	SerializedAuthWrapper []byte
	Token                 []byte
}

const (
	fieldDBWrapperAuthWrapper = 1
	fieldDBWrapperToken       = 2
)

func (d *DatabaseWrapper) Marshal() ([]byte, error) {
	var b []byte
	b = protowire.AppendTag(b, fieldDBWrapperAuthWrapper, protowire.BytesType)
	b = protowire.AppendBytes(b, d.SerializedAuthWrapper)
	b = protowire.AppendTag(b, fieldDBWrapperToken, protowire.BytesType)
	b = protowire.AppendBytes(b, d.Token)
	return b, nil
}

func (d *DatabaseWrapper) Unmarshal(b []byte) error {
	*d = DatabaseWrapper{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("kssproto: invalid tag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		switch num {
		case fieldDBWrapperAuthWrapper:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return fmt.Errorf("kssproto: invalid serialized_auth_wrapper: %w", protowire.ParseError(n))
			}
			d.SerializedAuthWrapper = append([]byte(nil), v...)
			b = b[n:]
		case fieldDBWrapperToken:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return fmt.Errorf("kssproto: invalid token: %w", protowire.ParseError(n))
			}
			d.Token = append([]byte(nil), v...)
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
