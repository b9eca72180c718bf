package store

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quebin31/keyserver/kssproto"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestMetadataRoundTrip(t *testing.T) {
	s := openTest(t)
	identity := []byte{0xde, 0xad, 0xbe, 0xef}

	_, err := s.GetMetadata(identity)
	assert.ErrorIs(t, err, ErrNotFound)

	dbw := &kssproto.DatabaseWrapper{
		SerializedAuthWrapper: []byte("wrapper-bytes"),
		Token:                 []byte("token-bytes"),
	}
	raw, err := dbw.Marshal()
	require.NoError(t, err)

	require.NoError(t, s.PutMetadata(identity, raw))

	got, err := s.GetMetadata(identity)
	require.NoError(t, err)
	assert.Equal(t, dbw.SerializedAuthWrapper, got.SerializedAuthWrapper)
	assert.Equal(t, dbw.Token, got.Token)

	gotRaw, err := s.GetRawMetadata(identity)
	require.NoError(t, err)
	assert.Equal(t, raw, gotRaw)
}

func TestMetadataLastWriteWins(t *testing.T) {
	s := openTest(t)
	identity := []byte{0x01}

	first := &kssproto.DatabaseWrapper{SerializedAuthWrapper: []byte("first"), Token: []byte("t1")}
	firstRaw, _ := first.Marshal()
	require.NoError(t, s.PutMetadata(identity, firstRaw))

	second := &kssproto.DatabaseWrapper{SerializedAuthWrapper: []byte("second"), Token: []byte("t2")}
	secondRaw, _ := second.Marshal()
	require.NoError(t, s.PutMetadata(identity, secondRaw))

	got, err := s.GetMetadata(identity)
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), got.SerializedAuthWrapper)
}

func TestNamespaceIsolation(t *testing.T) {
	s := openTest(t)

	// An identity whose bytes happen to be exactly the peers-namespace
	// prefix must never be visible through GetPeers, and vice versa.
	identity := []byte{prefixPeers}

	dbw := &kssproto.DatabaseWrapper{SerializedAuthWrapper: []byte("x"), Token: []byte("y")}
	raw, _ := dbw.Marshal()
	require.NoError(t, s.PutMetadata(identity, raw))

	_, err := s.GetPeers()
	assert.ErrorIs(t, err, ErrNotFound)

	peers := kssproto.PeersFromURLs([]string{"https://peer.example"})
	peersRaw, _ := peers.Marshal()
	require.NoError(t, s.PutPeers(peersRaw))

	got, err := s.GetMetadata(identity)
	require.NoError(t, err)
	assert.Equal(t, dbw.SerializedAuthWrapper, got.SerializedAuthWrapper)

	gotPeers, err := s.GetPeers()
	require.NoError(t, err)
	assert.Equal(t, []string{"https://peer.example"}, gotPeers.URLs())
}

func TestPeersRoundTrip(t *testing.T) {
	s := openTest(t)

	_, err := s.GetPeers()
	assert.ErrorIs(t, err, ErrNotFound)

	peers := kssproto.PeersFromURLs([]string{"https://a.example", "https://b.example"})
	raw, err := peers.Marshal()
	require.NoError(t, err)
	require.NoError(t, s.PutPeers(raw))

	got, err := s.GetPeers()
	require.NoError(t, err)
	assert.ElementsMatch(t, peers.URLs(), got.URLs())
}
