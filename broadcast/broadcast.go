// Package broadcast implements the publish/subscribe topology layered
// over the same transport.Adapter contract as the request/response
// cores: a Publisher fans one publish() out to every connected
// Subscriber, and each Subscriber filters inbound messages locally by
// topic prefix. There is no server-side filtering — every subscriber
// receives every message and discards what it didn't ask for — which
// keeps the publisher a dumb fan-out point with no per-subscriber
// state beyond "is this peer still connected".
package broadcast

import (
	"context"
	"strings"
	"sync"

	"github.com/adam-ikari/uvrpc/address"
	"github.com/adam-ikari/uvrpc/errs"
	"github.com/adam-ikari/uvrpc/frame"
	"github.com/adam-ikari/uvrpc/loop"
	"github.com/adam-ikari/uvrpc/transport"
	"github.com/adam-ikari/uvrpc/transport/inproc"
	"github.com/adam-ikari/uvrpc/transport/ipc"
	"github.com/adam-ikari/uvrpc/transport/tcp"
	"github.com/adam-ikari/uvrpc/transport/udp"
	"github.com/adam-ikari/uvrpc/ulog"
	"github.com/sirupsen/logrus"
)

// AdapterParams is the subset of engine configuration broadcast needs
// to build a transport.Adapter without importing the root package
// (which imports broadcast) — the address, and the two knobs that
// affect adapter construction rather than runtime behavior.
type AdapterParams struct {
	Address        address.Address
	LowLatency     bool
	InprocCapacity int
}

func newAdapter(lp loop.Loop, p AdapterParams, cb transport.Callbacks) (transport.Adapter, error) {
	deps := transport.Deps{Loop: lp, Callbacks: cb}
	switch p.Address.Transport {
	case address.TCP:
		return tcp.New(deps, p.LowLatency), nil
	case address.UDP:
		return udp.New(deps), nil
	case address.IPC:
		return ipc.New(deps), nil
	case address.Inproc:
		return inproc.New(deps, p.InprocCapacity), nil
	default:
		return nil, errs.New(errs.InvalidArgument, "broadcast: unknown transport %q", p.Address.Transport)
	}
}

// Publisher is the broadcast source. Like Client and Server, it is only
// ever touched from its loop.Loop goroutine.
type Publisher struct {
	adapter transport.Adapter
	log     *logrus.Entry

	peers map[transport.PeerID]struct{}
}

// NewPublisher constructs a Publisher and starts listening on params.Address.
func NewPublisher(lp loop.Loop, params AdapterParams) (*Publisher, error) {
	p := &Publisher{
		log:   ulog.For("publisher"),
		peers: make(map[transport.PeerID]struct{}),
	}
	adapter, err := newAdapter(lp, params, transport.Callbacks{
		OnRecv:       p.onRecv,
		OnConnect:    p.onConnect,
		OnDisconnect: p.onDisconnect,
	})
	if err != nil {
		return nil, err
	}
	p.adapter = adapter
	if err := adapter.Listen(bgCtxBroadcast, params.Address); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Publisher) onConnect(peer transport.PeerID, err error) {
	if err != nil {
		p.log.WithError(err).Warn("accept failed")
		return
	}
	p.peers[peer] = struct{}{}
}

func (p *Publisher) onDisconnect(peer transport.PeerID, err error) {
	delete(p.peers, peer)
}

func (p *Publisher) onRecv(peer transport.PeerID, f *frame.Frame) {
	// Subscribers never send application frames to the publisher in
	// this topology; anything received here is unexpected.
	p.log.WithField("peer", peer).WithField("kind", f.Kind).Warn("unexpected frame at publisher")
}

// Publish fans payload out to every connected subscriber under topic.
// A peer whose outbound queue is saturated (Backpressure) is skipped
// and logged without blocking delivery to the others; Publish then
// returns the first such send error so the skip is visible to the
// caller. Ordering is preserved per subscriber on stream transports;
// UDP subscribers may see messages reordered or dropped exactly as any
// other UDP traffic would.
func (p *Publisher) Publish(topic string, payload []byte) error {
	if len(topic) > frame.MaxMethodLen {
		return errs.New(errs.InvalidArgument, "broadcast: topic %q exceeds %d bytes", topic, frame.MaxMethodLen)
	}
	f := &frame.Frame{Kind: frame.PubMessage, Topic: topic, Payload: payload}

	var firstErr error
	for peer := range p.peers {
		if err := p.adapter.Send(peer, f); err != nil {
			p.log.WithField("peer", peer).WithError(err).Debug("publish skipped for a saturated subscriber")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// SubscriberCount reports the number of currently connected subscribers.
func (p *Publisher) SubscriberCount() int { return len(p.peers) }

// Close tears down the publisher's listener and every subscriber peer.
func (p *Publisher) Close() error { return p.adapter.Close() }

// Subscription is one registered (topic-prefix, callback) pair.
type Subscription struct {
	Prefix string
	Cb     func(topic string, payload []byte)
}

// Subscriber is the broadcast sink: it connects to one publisher and
// maintains a local, ordered set of (topic-prefix, callback)
// subscriptions. An empty prefix matches every topic. A single inbound
// message fires every subscription whose prefix is a prefix of the
// message's topic, in registration order — two subscriptions with
// overlapping prefixes both fire, and distinct callbacks can be
// registered for distinct prefixes.
type Subscriber struct {
	adapter transport.Adapter
	log     *logrus.Entry

	mu   sync.Mutex
	subs []Subscription
}

// NewSubscriber constructs a Subscriber and connects to params.Address.
// Call Subscribe before Connect resolves to avoid missing the first few
// deliveries.
func NewSubscriber(lp loop.Loop, params AdapterParams) (*Subscriber, error) {
	s := &Subscriber{
		log: ulog.For("subscriber"),
	}
	adapter, err := newAdapter(lp, params, transport.Callbacks{
		OnRecv:       s.onRecv,
		OnConnect:    s.onConnect,
		OnDisconnect: s.onDisconnect,
	})
	if err != nil {
		return nil, err
	}
	s.adapter = adapter
	if err := adapter.Connect(bgCtxBroadcast, params.Address); err != nil {
		return nil, err
	}
	return s, nil
}

var bgCtxBroadcast = context.Background()

// Subscribe adds a subscription: cb fires for every message whose topic
// has prefix as a prefix. The same prefix may be subscribed more than
// once, with different callbacks, and each registered pair fires
// independently. Subscribing is purely local bookkeeping — nothing is
// sent to the publisher, which has no concept of per-subscriber filters.
func (s *Subscriber) Subscribe(prefix string, cb func(topic string, payload []byte)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, Subscription{Prefix: prefix, Cb: cb})
}

// Unsubscribe removes every subscription registered under prefix.
// Subscriptions under a different prefix are unaffected.
func (s *Subscriber) Unsubscribe(prefix string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.subs[:0]
	for _, sub := range s.subs {
		if sub.Prefix != prefix {
			kept = append(kept, sub)
		}
	}
	s.subs = kept
}

// matching returns, in registration order, the callbacks of every
// subscription whose prefix matches topic.
func (s *Subscriber) matching(topic string) []func(topic string, payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var cbs []func(topic string, payload []byte)
	for _, sub := range s.subs {
		if sub.Prefix == "" || strings.HasPrefix(topic, sub.Prefix) {
			cbs = append(cbs, sub.Cb)
		}
	}
	return cbs
}

func (s *Subscriber) onConnect(peer transport.PeerID, err error) {
	if err != nil {
		s.log.WithError(err).Warn("connect failed")
	}
}

func (s *Subscriber) onDisconnect(peer transport.PeerID, err error) {
	s.log.WithError(err).Debug("disconnected from publisher")
}

func (s *Subscriber) onRecv(peer transport.PeerID, f *frame.Frame) {
	if f.Kind != frame.PubMessage {
		s.log.WithField("kind", f.Kind).Warn("unexpected frame kind at subscriber")
		return
	}
	for _, cb := range s.matching(f.Topic) {
		cb(f.Topic, f.Payload)
	}
}

// Close disconnects from the publisher.
func (s *Subscriber) Close() error { return s.adapter.Close() }
