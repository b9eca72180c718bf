package chainrpc

import (
	"context"
	"fmt"
	"time"

	"github.com/lightninglabs/gozmq"
	"github.com/rs/zerolog"
)

// blockHashTopic is the ZMQ topic the node publishes a 32-byte block hash
// to every time a new block is connected.
const blockHashTopic = "hashblock"

// receiveTimeout bounds each Receive call so the run loop can notice a
// cancelled context promptly instead of blocking on the socket forever.
const receiveTimeout = 5 * time.Second

// BlockTicker is the lazy sequence of "new block" tick events the
// heartbeat consumes. Only the tick matters, not the hash content, so the
// channel carries no payload.
type BlockTicker struct {
	ticks chan struct{}
	log   zerolog.Logger
}

// NewBlockTicker subscribes to the node's block-hash ZMQ publisher and
// begins translating published messages into ticks. The returned ticker
// must be stopped by cancelling ctx.
func NewBlockTicker(ctx context.Context, zmqAddress string, log zerolog.Logger) (*BlockTicker, error) {
	conn, err := gozmq.Subscribe(zmqAddress, []string{blockHashTopic}, receiveTimeout)
	if err != nil {
		return nil, fmt.Errorf("chainrpc: could not subscribe to block hash stream: %w", err)
	}

	t := &BlockTicker{
		ticks: make(chan struct{}, 1),
		log:   log.With().Str("component", "block_ticker").Logger(),
	}

	go t.run(ctx, conn)

	return t, nil
}

func (t *BlockTicker) run(ctx context.Context, conn *gozmq.Conn) {
	defer close(t.ticks)
	defer conn.Close()

	for {
		_, err := conn.Receive()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			t.log.Error().Err(err).Msg("block hash subscription error")
			continue
		}

		select {
		case t.ticks <- struct{}{}:
		default:
			// A tick is already pending; the heartbeat processes one
			// block at a time, so coalescing bursts is correct.
		}

		if ctx.Err() != nil {
			return
		}
	}
}

// Ticks returns the channel that receives a value on every new block.
func (t *BlockTicker) Ticks() <-chan struct{} {
	return t.ticks
}
