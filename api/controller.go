// Package api implements ApiFront: the echo-based HTTP surface clients
// and peers use to read and write identity metadata, and the BIP70
// payment endpoint that gates writes.
package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/gcash/bchd/chaincfg"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/quebin31/keyserver/addr"
	"github.com/quebin31/keyserver/chainrpc"
	"github.com/quebin31/keyserver/kssproto"
	"github.com/quebin31/keyserver/payment"
	"github.com/quebin31/keyserver/peer"
	"github.com/quebin31/keyserver/store"
	"github.com/quebin31/keyserver/token"
	"github.com/quebin31/keyserver/tokencache"
	"github.com/quebin31/keyserver/wrapper"
)

// authorizationHeader is the header name used both for the PoP token on a
// GET/PUT and for the minted token on a settled payment.
const authorizationHeader = "Authorization"

// samplePeersHeader, when set to "false", disables the read-miss fallback
// to peer sampling (required on peer-to-peer GETs so sampling never
// cascades).
const samplePeersHeader = "Sample-Peers"

// Controller wires every request handler to the components it needs.
// PeeringEnabled gates both GET-miss sampling and the write fan-out; when
// false, Handler and Cache are expected to be nil.
type Controller struct {
	Store   *store.Store
	Chain   chainrpc.Client
	Handler *peer.Handler
	Cache   *tokencache.Cache
	Params  *chaincfg.Params

	NetworkName    string
	PaymentURL     string
	PaymentMemo    string
	PullFanSize    int
	PushFanSize    int
	PeeringEnabled bool

	Log zerolog.Logger
}

// GetKeys implements GET /keys/{addr}.
func (c *Controller) GetKeys(ctx echo.Context) error {
	text := ctx.Param("addr")

	identity, err := addr.Decode(text, c.Params)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	raw, err := c.Store.GetRawMetadata(identity)
	if err == nil {
		return c.respondWithWrapper(ctx, raw)
	}
	if !errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	if c.PeeringEnabled && c.Handler != nil && ctx.Request().Header.Get(samplePeersHeader) != "false" {
		metadata, sampleErr := c.Handler.SampleMetadata(ctx.Request().Context(), text, c.PullFanSize)
		if sampleErr != nil {
			c.Log.Warn().Err(sampleErr).Msg("peer sampling failed")
		}
		if metadata != nil {
			ctx.Response().Header().Set(authorizationHeader, metadata.TokenHeader)
			return ctx.Blob(http.StatusOK, echo.MIMEOctetStream, metadata.RawWrapper)
		}
	}

	return echo.NewHTTPError(http.StatusNotFound, "identity not found")
}

func (c *Controller) respondWithWrapper(ctx echo.Context, raw []byte) error {
	var dbw kssproto.DatabaseWrapper
	if err := dbw.Unmarshal(raw); err != nil {
		c.Log.Fatal().Err(err).Msg("corrupted metadata entry")
	}
	if len(dbw.Token) > 0 {
		ctx.Response().Header().Set(authorizationHeader, token.Header(dbw.Token))
	}
	return ctx.Blob(http.StatusOK, echo.MIMEOctetStream, dbw.SerializedAuthWrapper)
}

// PutKeys implements PUT /keys/{addr}.
func (c *Controller) PutKeys(ctx echo.Context) error {
	text := ctx.Param("addr")

	identity, err := addr.Decode(text, c.Params)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	raw, err := readBody(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	parsed, err := wrapper.DecodeParseVerify(raw)
	if err != nil {
		if errors.Is(err, wrapper.ErrUnsupportedScheme) {
			return echo.NewHTTPError(http.StatusNotImplemented, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	pubkeyHash, err := token.PubkeyHashArray(identity)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	popHeader := ctx.Request().Header.Get(authorizationHeader)
	if popHeader == "" {
		return c.respondWithPaymentRequest(ctx, pubkeyHash, parsed.PayloadDigest)
	}

	rawToken, err := token.Validate(ctx.Request().Context(), c.Chain, pubkeyHash, parsed.PayloadDigest, popHeader)
	if err != nil {
		if errors.Is(err, token.ErrMalformedToken) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		if errors.Is(err, token.ErrChain) || errors.Is(err, token.ErrNoCommitment) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	dbw := &kssproto.DatabaseWrapper{
		SerializedAuthWrapper: raw,
		Token:                 rawToken,
	}
	serialized, err := dbw.Marshal()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	if err := c.Store.PutMetadata(identity, serialized); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	if c.PeeringEnabled && c.Cache != nil {
		c.Cache.AddToken(identity)
	}

	return ctx.NoContent(http.StatusOK)
}

func (c *Controller) respondWithPaymentRequest(ctx echo.Context, pubkeyHash, metadataDigest [32]byte) error {
	_, serialized, err := payment.ConstructInvoice(pubkeyHash, metadataDigest, c.NetworkName, c.PaymentURL, c.PaymentMemo)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return ctx.Blob(http.StatusPaymentRequired, echo.MIMEOctetStream, serialized)
}

func readBody(ctx echo.Context) ([]byte, error) {
	req := ctx.Request()
	defer req.Body.Close()
	return io.ReadAll(req.Body)
}

// GetPeers implements GET /peers.
func (c *Controller) GetPeers(ctx echo.Context) error {
	if !c.PeeringEnabled || c.Handler == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "peering disabled")
	}
	return ctx.Blob(http.StatusOK, echo.MIMEOctetStream, c.Handler.Peers())
}

// PostPayments implements POST /payments.
func (c *Controller) PostPayments(ctx echo.Context) error {
	if err := payment.CheckHeaders(ctx.Request().Header.Get("Accept"), ctx.Request().Header.Get(echo.HeaderContentType)); err != nil {
		status := http.StatusBadRequest
		switch {
		case errors.Is(err, payment.ErrMissingAccept):
			status = http.StatusNotAcceptable
		case errors.Is(err, payment.ErrMissingContentType):
			status = http.StatusUnsupportedMediaType
		}
		return echo.NewHTTPError(status, err.Error())
	}

	raw, err := readBody(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, payment.ErrDecode.Error())
	}

	var pay kssproto.Payment
	if err := pay.Unmarshal(raw); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, payment.ErrDecode.Error())
	}

	settlement, err := payment.ProcessPayment(ctx.Request().Context(), c.Chain, c.Params, &pay, c.PaymentMemo)
	if err != nil {
		return echo.NewHTTPError(paymentErrorStatus(err), err.Error())
	}

	ackRaw, err := settlement.Ack.Marshal()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	ctx.Response().Header().Set(authorizationHeader, settlement.TokenHeader)
	ctx.Response().Header().Set("Location", "/keys/"+settlement.Address)
	return ctx.Blob(http.StatusOK, echo.MIMEOctetStream, ackRaw)
}

func paymentErrorStatus(err error) int {
	switch {
	case errors.Is(err, payment.ErrNode):
		return http.StatusBadRequest
	case errors.Is(err, payment.ErrMalformedTx),
		errors.Is(err, payment.ErrMissingMerchantData),
		errors.Is(err, payment.ErrIncorrectLengthPreimage),
		errors.Is(err, payment.ErrMissingCommitment),
		errors.Is(err, payment.ErrAddress):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
