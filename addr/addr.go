// Package addr decodes and encodes the textual identity addresses clients
// use to name a keyserver entry: CashAddr and legacy Base58Check, over
// whichever Bitcoin Cash network the server is configured for.
package addr

import (
	"errors"
	"fmt"

	"github.com/gcash/bchd/chaincfg"
	"github.com/gcash/bchutil"
)

// ErrUnrecognized is returned when a textual address is neither a valid
// CashAddr nor a valid Base58Check address for the configured network.
var ErrUnrecognized = errors.New("addr: unrecognized address format")

// Decode turns a textual address into the raw public-key (or script) hash
// that keys the metadata store. It accepts both address families the
// network supports; decoding is total over their union, so any failure
// collapses to ErrUnrecognized.
func Decode(text string, params *chaincfg.Params) ([]byte, error) {
	address, err := bchutil.DecodeAddress(text, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnrecognized, err)
	}

	switch a := address.(type) {
	case *bchutil.AddressPubKeyHash:
		hash := a.Hash160()
		return hash[:], nil
	case *bchutil.AddressScriptHash:
		hash := a.Hash160()
		return hash[:], nil
	default:
		return nil, fmt.Errorf("%w: unsupported address type %T", ErrUnrecognized, address)
	}
}

// Encode turns a public-key hash back into its canonical CashAddr textual
// form, the representation handed back in Location headers.
func Encode(hash []byte, params *chaincfg.Params) (string, error) {
	address, err := bchutil.NewAddressPubKeyHash(hash, params)
	if err != nil {
		return "", fmt.Errorf("addr: could not build address: %w", err)
	}
	return address.EncodeAddress(), nil
}
