package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/quebin31/keyserver/api"
	"github.com/quebin31/keyserver/chainrpc"
	"github.com/quebin31/keyserver/peer"
	"github.com/quebin31/keyserver/settings"
	"github.com/quebin31/keyserver/store"
	"github.com/quebin31/keyserver/tokencache"
)

const (
	success = 0
	failure = 1

	// paymentsPath is the relative invoice callback path advertised in
	// every minted PaymentDetails.
	paymentsPath = "/payments"
)

func main() {
	os.Exit(run())
}

func run() int {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)

	var (
		flagConfig string
		flagLevel  string
	)
	pflag.StringVarP(&flagConfig, "config", "c", "keyserver.yaml", "path to the YAML configuration file")
	pflag.StringVarP(&flagLevel, "level", "l", "info", "log output level")
	pflag.Parse()

	zerolog.TimestampFunc = func() time.Time { return time.Now().UTC() }
	log := zerolog.New(os.Stderr).With().Timestamp().Logger()
	level, err := zerolog.ParseLevel(flagLevel)
	if err != nil {
		log.Error().Str("level", flagLevel).Err(err).Msg("could not parse log level")
		return failure
	}
	log = log.Level(level)

	cfg, err := settings.Load(flagConfig)
	if err != nil {
		log.Error().Err(err).Msg("could not load configuration")
		return failure
	}

	params, err := cfg.ChainParams()
	if err != nil {
		log.Error().Err(err).Msg("could not resolve network parameters")
		return failure
	}

	wireNetwork, err := cfg.WireNetwork()
	if err != nil {
		log.Error().Err(err).Msg("could not resolve wire network name")
		return failure
	}

	db, err := store.Open(cfg.DBPath, log)
	if err != nil {
		log.Error().Err(err).Msg("could not open store")
		return failure
	}
	defer db.Close()

	chain := chainrpc.NewJSONRPCClient(chainrpc.Config{
		Address:  cfg.Bitcoin.Address,
		Username: cfg.Bitcoin.Username,
		Password: cfg.Bitcoin.Password,
	}, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var handler *peer.Handler
	var cache *tokencache.Cache
	if cfg.Peering.Enabled {
		client := peer.NewClient(cfg.Peering.Timeout)
		handler = peer.NewHandler(client, cfg.Peering.OwnURL, log)
		handler.Seed(cfg.Peering.Peers)
		if err := handler.Traverse(ctx, cfg.Peering.MaxPeers); err != nil {
			log.Warn().Err(err).Msg("initial peer traversal failed")
		}
		if err := handler.Persist(db); err != nil {
			log.Warn().Err(err).Msg("could not persist initial peer set")
		}
		cache = tokencache.New(cfg.Peering.BroadcastDelay, params, log)
	}

	controller := &api.Controller{
		Store:          db,
		Chain:          chain,
		Handler:        handler,
		Cache:          cache,
		Params:         params,
		NetworkName:    wireNetwork,
		PaymentURL:     paymentsPath,
		PaymentMemo:    cfg.Payment.Memo,
		PullFanSize:    cfg.Peering.PullFanSize,
		PushFanSize:    cfg.Peering.PushFanSize,
		PeeringEnabled: cfg.Peering.Enabled,
		Log:            log,
	}

	server := api.NewServer(controller, cfg.Limits.MetadataSize)

	var wg sync.WaitGroup
	done := make(chan struct{})
	failed := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Str("bind", cfg.Bind).Msg("keyserver starting")
		err := server.Start(cfg.Bind)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server failed")
			close(failed)
			return
		}
		close(done)
	}()

	if cfg.Peering.Enabled {
		ticker, err := chainrpc.NewBlockTicker(ctx, cfg.Bitcoin.ZMQAddress, log)
		if err != nil {
			log.Error().Err(err).Msg("could not subscribe to block ticks")
			return failure
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			heartbeat(ctx, ticker, handler, cache, db, cfg.Peering.PushFanSize, cfg.Peering.MaxPeers, log)
		}()
	}

	select {
	case <-sig:
		log.Info().Msg("keyserver stopping")
	case <-done:
		log.Info().Msg("keyserver done")
	case <-failed:
		log.Warn().Msg("keyserver failed")
		return failure
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("could not shut down server cleanly")
		return failure
	}

	wg.Wait()
	return success
}

// heartbeat consumes the block-tick stream and drives exactly one
// sequential broadcast_block per tick. pushFanSize bounds how many peers
// each deferred broadcast fans out to; maxPeers bounds the live peer set
// itself and is passed to Traverse, kept distinct so re-crawling on every
// tick never shrinks the mesh down to the broadcast fan-out size.
func heartbeat(ctx context.Context, ticker *chainrpc.BlockTicker, handler *peer.Handler, cache *tokencache.Cache, db *store.Store, pushFanSize, maxPeers int, log zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ticker.Ticks():
			if !ok {
				return
			}
			cache.BroadcastBlock(ctx, handler, db, pushFanSize)
			if err := handler.Traverse(ctx, maxPeers); err != nil {
				log.Warn().Err(err).Msg("periodic peer traversal failed")
			}
			if err := handler.Persist(db); err != nil {
				log.Warn().Err(err).Msg("could not persist peer set")
			}
		}
	}
}

