package wrapper

import (
	"crypto/sha256"
	"testing"

	"github.com/gcash/bchd/bchec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quebin31/keyserver/kssproto"
)

func signedWrapper(t *testing.T, payload []byte, digest []byte) *kssproto.AuthWrapper {
	t.Helper()

	priv, err := bchec.NewPrivateKey(bchec.S256())
	require.NoError(t, err)

	sum := sha256.Sum256(payload)
	sig, err := priv.Sign(sum[:])
	require.NoError(t, err)

	return &kssproto.AuthWrapper{
		PublicKey:     priv.PubKey().SerializeCompressed(),
		Signature:     sig.Serialize(),
		Scheme:        kssproto.SchemeECDSA,
		Payload:       payload,
		PayloadDigest: digest,
	}
}

func TestParseVerify_ValidWrapperNoDigest(t *testing.T) {
	w := signedWrapper(t, []byte("metadata"), nil)

	parsed, err := Parse(w)
	require.NoError(t, err)
	require.NoError(t, Verify(parsed))
}

func TestParseVerify_ValidWrapperWithDigest(t *testing.T) {
	payload := []byte("metadata")
	sum := sha256.Sum256(payload)
	w := signedWrapper(t, payload, sum[:])

	parsed, err := Parse(w)
	require.NoError(t, err)
	require.NoError(t, Verify(parsed))
}

func TestParse_DigestMismatchRejected(t *testing.T) {
	w := signedWrapper(t, []byte("metadata"), make([]byte, 32))

	_, err := Parse(w)
	assert.ErrorIs(t, err, ErrPreimageMismatch)
}

func TestParse_NonStandardDigestLengthTreatedAsAbsent(t *testing.T) {
	w := signedWrapper(t, []byte("metadata"), []byte{0x01, 0x02})

	parsed, err := Parse(w)
	require.NoError(t, err)
	require.NoError(t, Verify(parsed))
}

func TestParse_UnsupportedScheme(t *testing.T) {
	w := signedWrapper(t, []byte("metadata"), nil)
	w.Scheme = kssproto.SchemeSchnorr

	_, err := Parse(w)
	assert.ErrorIs(t, err, ErrUnsupportedScheme)
}

func TestParse_InvalidPublicKey(t *testing.T) {
	w := signedWrapper(t, []byte("metadata"), nil)
	w.PublicKey = []byte{0x01, 0x02, 0x03}

	_, err := Parse(w)
	assert.ErrorIs(t, err, ErrPublicKey)
}

func TestVerify_WrongSignatureRejected(t *testing.T) {
	w := signedWrapper(t, []byte("metadata"), nil)
	other := signedWrapper(t, []byte("other payload"), nil)
	w.Signature = other.Signature

	parsed, err := Parse(w)
	require.NoError(t, err)
	assert.ErrorIs(t, Verify(parsed), ErrInvalidSignature)
}
