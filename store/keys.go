package store

// Namespace prefixes. A single keyspace holds both metadata entries and the
// peer-list blob; the leading byte keeps them from ever colliding,
// regardless of identity byte length: every metadata key starts with 'm',
// while the peers key is the single byte 'p', so no metadata key can
// equal it.
const (
	prefixMetadata byte = 'm'
	prefixPeers    byte = 'p'
)

func metadataKey(identity []byte) []byte {
	key := make([]byte, 1+len(identity))
	key[0] = prefixMetadata
	copy(key[1:], identity)
	return key
}

func peersKey() []byte {
	return []byte{prefixPeers}
}
