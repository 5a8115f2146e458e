package broadcast

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/adam-ikari/uvrpc/address"
	"github.com/adam-ikari/uvrpc/loop"
	"github.com/stretchr/testify/require"
)

func noopCb(string, []byte) {}

func TestSubscriberMatchesEmptyPrefixAgainstEverything(t *testing.T) {
	s := &Subscriber{}
	s.Subscribe("", noopCb)
	require.Len(t, s.matching("orders.created"), 1)
	require.Len(t, s.matching(""), 1)
}

func TestSubscriberMatchesByPrefix(t *testing.T) {
	s := &Subscriber{}
	s.Subscribe("orders.", noopCb)
	require.Len(t, s.matching("orders.created"), 1)
	require.Len(t, s.matching("orders."), 1)
	require.Len(t, s.matching("payments.created"), 0)
}

func TestSubscribeUnsubscribe(t *testing.T) {
	s := &Subscriber{}
	s.Subscribe("a.", noopCb)
	require.Len(t, s.matching("a.b"), 1)

	s.Unsubscribe("a.")
	require.Len(t, s.matching("a.b"), 0)
}

func TestSubscriberMatchesAcrossMultiplePrefixes(t *testing.T) {
	s := &Subscriber{}
	s.Subscribe("a.", noopCb)
	s.Subscribe("b.", noopCb)
	require.Len(t, s.matching("a.x"), 1)
	require.Len(t, s.matching("b.x"), 1)
	require.Len(t, s.matching("c.x"), 0)
}

// TestDistinctCallbacksPerPrefixBothFire proves two subscriptions under
// distinct prefixes with distinct callbacks are both represented and
// both fire independently — the shape a single shared OnMessage
// callback cannot express.
func TestDistinctCallbacksPerPrefixBothFire(t *testing.T) {
	s := &Subscriber{}
	var aCalls, bCalls []string
	s.Subscribe("a.", func(topic string, _ []byte) { aCalls = append(aCalls, topic) })
	s.Subscribe("b.", func(topic string, _ []byte) { bCalls = append(bCalls, topic) })

	for _, cb := range s.matching("a.x") {
		cb("a.x", nil)
	}
	for _, cb := range s.matching("b.y") {
		cb("b.y", nil)
	}

	require.Equal(t, []string{"a.x"}, aCalls)
	require.Equal(t, []string{"b.y"}, bCalls)
}

// TestOverlappingPrefixesFireOncePerMatch proves a topic matching two
// overlapping prefixes fires once per matching registration, in
// registration order, rather than collapsing to a single delivery.
func TestOverlappingPrefixesFireOncePerMatch(t *testing.T) {
	s := &Subscriber{}
	var fired []string
	s.Subscribe("", func(topic string, _ []byte) { fired = append(fired, "empty:"+topic) })
	s.Subscribe("news.", func(topic string, _ []byte) { fired = append(fired, "news:"+topic) })

	for _, cb := range s.matching("news.sport") {
		cb("news.sport", nil)
	}

	require.Equal(t, []string{"empty:news.sport", "news:news.sport"}, fired)
}

// TestBroadcastPrefixFilterEndToEnd is scenario S6: a publisher and two
// subscribers over tcp://, one subscribed to "news." and one subscribed
// to "" (everything). The publisher emits a non-matching message
// followed by a matching one; the prefix-scoped subscriber must only
// see the second, while the wildcard subscriber sees both, in order.
func TestBroadcastPrefixFilterEndToEnd(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	lp := loop.New(0)
	go lp.Run(ctx)

	addr := address.Address{Transport: address.TCP, Host: "127.0.0.1", Port: 35003}
	params := AdapterParams{Address: addr}

	pubReady := make(chan *Publisher, 1)
	pubErr := make(chan error, 1)
	lp.Post(func() {
		pub, err := NewPublisher(lp, params)
		if err != nil {
			pubErr <- err
			return
		}
		pubReady <- pub
	})
	var pub *Publisher
	select {
	case pub = <-pubReady:
	case err := <-pubErr:
		t.Fatalf("publisher failed: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("publisher never started")
	}

	var mu sync.Mutex
	var aReceived, bReceived []string
	newSubscriber := func(prefix string) {
		done := make(chan struct{})
		lp.Post(func() {
			sub, err := NewSubscriber(lp, params)
			require.NoError(t, err)
			sub.Subscribe(prefix, func(topic string, _ []byte) {
				mu.Lock()
				defer mu.Unlock()
				if prefix == "news." {
					aReceived = append(aReceived, topic)
				} else {
					bReceived = append(bReceived, topic)
				}
			})
			close(done)
		})
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("subscriber never registered")
		}
	}
	newSubscriber("news.")
	newSubscriber("")

	// Give both subscribers time to complete their TCP handshake with
	// the publisher before the first message is emitted.
	time.Sleep(200 * time.Millisecond)

	publishDone := make(chan struct{})
	lp.Post(func() {
		require.Equal(t, 2, pub.SubscriberCount())
		require.NoError(t, pub.Publish("weather", []byte("sunny")))
		require.NoError(t, pub.Publish("news.sport", []byte("g")))
		close(publishDone)
	})
	select {
	case <-publishDone:
	case <-time.After(2 * time.Second):
		t.Fatal("publish never completed")
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(bReceived) == 2
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"news.sport"}, aReceived)
	require.Equal(t, []string{"weather", "news.sport"}, bReceived)
}
