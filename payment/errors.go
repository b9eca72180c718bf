package payment

import "errors"

// Preprocess errors are raised before the request body is even
// interpreted as a Payment: missing or wrong Accept/Content-Type headers,
// or a body that doesn't decode as a Payment message.
var (
	ErrMissingAccept      = errors.New("payment: missing or incorrect Accept header")
	ErrMissingContentType = errors.New("payment: missing or incorrect Content-Type header")
	ErrDecode             = errors.New("payment: could not decode payment body")
)

// Settlement errors, raised while processing an already-decoded Payment.
var (
	ErrMalformedTx            = errors.New("payment: malformed transaction")
	ErrMissingMerchantData    = errors.New("payment: missing merchant data")
	ErrIncorrectLengthPreimage = errors.New("payment: merchant data is not a valid commitment preimage")
	ErrMissingCommitment      = errors.New("payment: no output matches the expected commitment")
	ErrNode                   = errors.New("payment: chain node rejected the transaction")
	ErrAddress                = errors.New("payment: could not encode settlement address")
)
