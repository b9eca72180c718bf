package peer

import (
	"context"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/quebin31/keyserver/kssproto"
	"github.com/quebin31/keyserver/store"
)

// Handler is PeerHandler: it owns the live peer set, crawls the
// federation to keep it fresh, and fans sampling/broadcast requests out
// across it.
type Handler struct {
	mu     sync.RWMutex
	live   map[string]struct{}
	cached []byte

	client *Client
	ownURL string
	log    zerolog.Logger
}

// NewHandler builds a Handler with an empty peer set. ownURL, if
// non-empty, is never added to the live set or persisted peer list: a
// keyserver never crawls into itself.
func NewHandler(client *Client, ownURL string, log zerolog.Logger) *Handler {
	return &Handler{
		live:   make(map[string]struct{}),
		client: client,
		ownURL: ownURL,
		log:    log.With().Str("component", "peer_handler").Logger(),
	}
}

// Seed adds a set of bootstrap peer URLs directly to the live set,
// without a network round trip. It's how configured `peering.peers`
// enter the set before the first Traverse.
func (h *Handler) Seed(urls []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, url := range urls {
		if url == "" || url == h.ownURL {
			continue
		}
		h.live[url] = struct{}{}
	}
	h.recomputeCacheLocked()
}

// Traverse performs a bounded breadth-first crawl of the federation
// starting from the current live set, growing it until either the
// frontier is exhausted or maxPeers is reached.
func (h *Handler) Traverse(ctx context.Context, maxPeers int) error {
	h.mu.RLock()
	frontier := make([]string, 0, len(h.live))
	visited := make(map[string]struct{}, len(h.live))
	for url := range h.live {
		frontier = append(frontier, url)
		visited[url] = struct{}{}
	}
	h.mu.RUnlock()

	discovered := make(map[string]struct{}, len(visited))
	for url := range visited {
		discovered[url] = struct{}{}
	}

	for len(frontier) > 0 && len(discovered) < maxPeers {
		next := make([]string, 0)
		for _, url := range frontier {
			if len(discovered) >= maxPeers {
				break
			}
			peers, err := h.client.GetPeers(ctx, url)
			if err != nil {
				h.log.Warn().Err(err).Str("peer", url).Msg("could not crawl peer")
				continue
			}
			for _, candidate := range peers {
				if candidate == "" || candidate == h.ownURL {
					continue
				}
				if _, ok := visited[candidate]; ok {
					continue
				}
				visited[candidate] = struct{}{}
				discovered[candidate] = struct{}{}
				next = append(next, candidate)
				if len(discovered) >= maxPeers {
					break
				}
			}
		}
		frontier = next
	}

	h.mu.Lock()
	h.live = discovered
	h.recomputeCacheLocked()
	h.mu.Unlock()

	return nil
}

func (h *Handler) recomputeCacheLocked() {
	urls := make([]string, 0, len(h.live))
	for url := range h.live {
		urls = append(urls, url)
	}
	peers := kssproto.PeersFromURLs(urls)
	raw, err := peers.Marshal()
	if err != nil {
		h.log.Error().Err(err).Msg("could not serialize peer set")
		return
	}
	h.cached = raw
}

// Peers returns the cached serialized Peers blob.
func (h *Handler) Peers() []byte {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cached
}

// Persist writes the cached peer set to the store.
func (h *Handler) Persist(s *store.Store) error {
	h.mu.RLock()
	raw := h.cached
	h.mu.RUnlock()
	if raw == nil {
		return nil
	}
	return s.PutPeers(raw)
}

func (h *Handler) sample(n int) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if n > len(h.live) {
		n = len(h.live)
	}
	urls := make([]string, 0, n)
	for url := range h.live {
		if len(urls) >= n {
			break
		}
		urls = append(urls, url)
	}
	return urls
}

// SampleMetadata fans a get_metadata request out to up to fanSize live
// peers and returns the first verified entry one of them reports, or nil
// if none of them have it (or all are unreachable).
func (h *Handler) SampleMetadata(ctx context.Context, addrText string, fanSize int) (*Metadata, error) {
	urls := h.sample(fanSize)
	if len(urls) == 0 {
		return nil, nil
	}

	type result struct {
		metadata *Metadata
	}

	resultCh := make(chan result, len(urls))
	eg, egCtx := errgroup.WithContext(ctx)
	for _, url := range urls {
		url := url
		eg.Go(func() error {
			metadata, err := h.client.GetMetadata(egCtx, url, addrText)
			if err != nil {
				h.log.Warn().Err(err).Str("peer", url).Msg("sample failed")
				return nil
			}
			if metadata != nil {
				resultCh <- result{metadata: metadata}
			}
			return nil
		})
	}

	_ = eg.Wait()
	close(resultCh)

	for r := range resultCh {
		if r.metadata != nil {
			return r.metadata, nil
		}
	}
	return nil, nil
}

// BroadcastMetadata fans a put_metadata request out to up to fanSize live
// peers. Every failure is collected and returned as a single
// *multierror.Error; the caller decides whether a partial broadcast is
// fatal (it normally isn't — this is best-effort gossip).
func (h *Handler) BroadcastMetadata(ctx context.Context, addrText string, rawWrapper []byte, tokenHeader string, fanSize int) error {
	urls := h.sample(fanSize)
	if len(urls) == 0 {
		return nil
	}

	var mu sync.Mutex
	var errs error

	eg, egCtx := errgroup.WithContext(ctx)
	for _, url := range urls {
		url := url
		eg.Go(func() error {
			if err := h.client.PutMetadata(egCtx, url, addrText, rawWrapper, tokenHeader); err != nil {
				mu.Lock()
				errs = multierror.Append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = eg.Wait()

	return errs
}
