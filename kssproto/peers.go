package kssproto

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Peer is a single reachable keyserver, identified by its base URL.
type Peer struct {
	URL string
}

// Peers is the set of peers a keyserver knows about. Order carries no
// meaning; it is a list only because protobuf has no native set type.
type Peers struct {
	Peers []Peer
}

const (
	fieldPeerURL       = 1
	fieldPeersPeersRep = 1
)

func (p *Peer) marshalAppend(b []byte) []byte {
	var inner []byte
	if p.URL != "" {
		inner = protowire.AppendTag(inner, fieldPeerURL, protowire.BytesType)
		inner = protowire.AppendString(inner, p.URL)
	}
	b = protowire.AppendTag(b, fieldPeersPeersRep, protowire.BytesType)
	b = protowire.AppendBytes(b, inner)
	return b
}

func (p *Peer) unmarshal(b []byte) error {
	*p = Peer{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("kssproto: invalid peer tag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		switch num {
		case fieldPeerURL:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return fmt.Errorf("kssproto: invalid peer url: %w", protowire.ParseError(n))
			}
			p.URL = v
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("kssproto: invalid peer field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return nil
}

func (p *Peers) Marshal() ([]byte, error) {
	var b []byte
	for i := range p.Peers {
		b = p.Peers[i].marshalAppend(b)
	}
	return b, nil
}

func (p *Peers) Unmarshal(b []byte) error {
	*p = Peers{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("kssproto: invalid tag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		switch num {
		case fieldPeersPeersRep:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return fmt.Errorf("kssproto: invalid peers entry: %w", protowire.ParseError(n))
			}
			var peer Peer
			if err := peer.unmarshal(v); err != nil {
				return err
			}
			p.Peers = append(p.Peers, peer)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("kssproto: invalid field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return nil
}

// URLs extracts the plain URL list from a Peers message.
func (p *Peers) URLs() []string {
	urls := make([]string, 0, len(p.Peers))
	for _, peer := range p.Peers {
		urls = append(urls, peer.URL)
	}
	return urls
}

// PeersFromURLs builds a Peers message from a plain URL list.
func PeersFromURLs(urls []string) *Peers {
	p := &Peers{Peers: make([]Peer, 0, len(urls))}
	for _, url := range urls {
		p.Peers = append(p.Peers, Peer{URL: url})
	}
	return p
}
