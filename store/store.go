// Package store implements the single-writer, multi-reader persistent map
// that backs the keyserver: one Badger database holding both the metadata
// namespace (one entry per identity) and the peers namespace (one blob).
package store

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v2"
	"github.com/rs/zerolog"

	"github.com/quebin31/keyserver/kssproto"
)

// ErrNotFound is returned by the Get methods when the key is absent.
var ErrNotFound = errors.New("store: not found")

// Store wraps a Badger database and exposes exactly the two namespaces the
// keyserver needs. It is internally synchronized by Badger; callers do not
// need an external lock.
type Store struct {
	db  *badger.DB
	log zerolog.Logger
}

// Open opens (creating if missing) the Badger database at dir.
func Open(dir string, log zerolog.Logger) (*Store, error) {
	db, err := badger.Open(DefaultOptions(dir))
	if err != nil {
		return nil, fmt.Errorf("store: could not open database: %w", err)
	}
	s := &Store{
		db:  db,
		log: log.With().Str("component", "store").Logger(),
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetMetadata returns the decoded DatabaseWrapper stored for identity, or
// ErrNotFound if none exists. A value that fails to decode was written by
// this process in an earlier run and cannot be recovered from; that is a
// fatal condition, not something callers can meaningfully handle.
func (s *Store) GetMetadata(identity []byte) (*kssproto.DatabaseWrapper, error) {
	raw, err := s.GetRawMetadata(identity)
	if err != nil {
		return nil, err
	}

	dbw := &kssproto.DatabaseWrapper{}
	if err := dbw.Unmarshal(raw); err != nil {
		s.log.Fatal().Err(err).Str("identity", fmt.Sprintf("%x", identity)).
			Msg("corrupted metadata entry on disk")
	}
	return dbw, nil
}

// GetRawMetadata returns the raw stored bytes for identity without
// decoding them, the form peer reads and gossip re-broadcast need.
func (s *Store) GetRawMetadata(identity []byte) ([]byte, error) {
	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(metadataKey(identity))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: could not read metadata: %w", err)
	}
	return raw, nil
}

// PutMetadata atomically writes the already-serialized DatabaseWrapper
// bytes for identity. The caller serializes once; the store writes once.
func (s *Store) PutMetadata(identity []byte, raw []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(metadataKey(identity), raw)
	})
	if err != nil {
		return fmt.Errorf("store: could not write metadata: %w", err)
	}
	return nil
}

// GetPeers returns the decoded peer list, or ErrNotFound if it was never
// persisted (a fresh database).
func (s *Store) GetPeers() (*kssproto.Peers, error) {
	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(peersKey())
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: could not read peers: %w", err)
	}

	peers := &kssproto.Peers{}
	if err := peers.Unmarshal(raw); err != nil {
		s.log.Fatal().Err(err).Msg("corrupted peers entry on disk")
	}
	return peers, nil
}

// PutPeers atomically writes the already-serialized Peers bytes.
func (s *Store) PutPeers(raw []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(peersKey(), raw)
	})
	if err != nil {
		return fmt.Errorf("store: could not write peers: %w", err)
	}
	return nil
}
