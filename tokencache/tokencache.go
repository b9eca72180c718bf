// Package tokencache implements the deferred-gossip sliding window: newly
// stored identities sit in the front block until enough blocks have
// passed, then get rebroadcast to the federation in one batch per block.
package tokencache

import (
	"context"
	"errors"
	"sync"

	"github.com/gammazero/deque"
	"github.com/gcash/bchd/chaincfg"
	"github.com/rs/zerolog"

	"github.com/quebin31/keyserver/addr"
	"github.com/quebin31/keyserver/kssproto"
	"github.com/quebin31/keyserver/peer"
	"github.com/quebin31/keyserver/store"
	"github.com/quebin31/keyserver/token"
)

// block maps an identity's string form to its raw bytes, so the same
// identity added twice within one block still rebroadcasts once.
type block map[string][]byte

// Cache is TokenCache: a fixed-depth sliding window of blocks backed by a
// deque, one block per block-tick. Concurrency safety, per the deque's own
// documentation, is the consumer's responsibility — provided here by mu,
// the way the teacher's SafeDeque wraps the same library.
type Cache struct {
	mu      sync.Mutex
	windows *deque.Deque

	params *chaincfg.Params
	log    zerolog.Logger
}

// New builds a Cache whose window holds depth blocks (the configured
// broadcast_delay).
func New(depth int, params *chaincfg.Params, log zerolog.Logger) *Cache {
	windows := deque.New()
	for i := 0; i < depth; i++ {
		windows.PushFront(make(block))
	}
	return &Cache{
		windows: windows,
		params:  params,
		log:     log.With().Str("component", "token_cache").Logger(),
	}
}

// AddToken inserts identity into the front (most recent) block.
func (c *Cache) AddToken(identity []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	front := c.windows.Front().(block)
	front[string(identity)] = append([]byte(nil), identity...)
}

// BroadcastBlock rotates the window: an empty block is pushed to the
// front and the oldest block is popped off the back, all under the same
// lock acquisition so no concurrent AddToken can be lost between the two
// steps. Every identity in the popped block that still has a store entry
// is rebroadcast to the federation with the entry's current value;
// identities whose store lookup misses are silently dropped.
func (c *Cache) BroadcastBlock(ctx context.Context, handler *peer.Handler, s *store.Store, fanSize int) {
	c.mu.Lock()
	c.windows.PushFront(make(block))
	popped := c.windows.PopBack().(block)
	c.mu.Unlock()

	for _, identity := range popped {
		c.rebroadcast(ctx, handler, s, identity, fanSize)
	}
}

func (c *Cache) rebroadcast(ctx context.Context, handler *peer.Handler, s *store.Store, identity []byte, fanSize int) {
	raw, err := s.GetRawMetadata(identity)
	if errors.Is(err, store.ErrNotFound) {
		return
	}
	if err != nil {
		c.log.Error().Err(err).Msg("could not read metadata for deferred broadcast")
		return
	}

	var dbw kssproto.DatabaseWrapper
	if err := dbw.Unmarshal(raw); err != nil {
		c.log.Error().Err(err).Msg("could not decode metadata for deferred broadcast")
		return
	}

	addrText, err := addr.Encode(identity, c.params)
	if err != nil {
		c.log.Error().Err(err).Msg("could not encode address for deferred broadcast")
		return
	}

	tokenHeader := ""
	if len(dbw.Token) > 0 {
		tokenHeader = token.Header(dbw.Token)
	}

	if err := handler.BroadcastMetadata(ctx, addrText, dbw.SerializedAuthWrapper, tokenHeader, fanSize); err != nil {
		c.log.Warn().Err(err).Str("identity", addrText).Msg("deferred broadcast had failures")
	}
}
