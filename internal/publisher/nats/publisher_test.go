package nats

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"
)

type fakeJetStream struct {
	mu       sync.Mutex
	failures int
	msgs     []*nats.Msg
	seq      uint64
}

func (f *fakeJetStream) PublishMsg(m *nats.Msg, _ ...nats.PubOpt) (*nats.PubAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, m)
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("no responders")
	}
	f.seq++
	return &nats.PubAck{Stream: "DOCKET", Sequence: f.seq}, nil
}

func testConfig() Config {
	cfg := DefaultConfig("nats://127.0.0.1:4222")
	cfg.RetryDelay = time.Millisecond
	return cfg
}

func TestPublish(t *testing.T) {
	t.Parallel()

	js := &fakeJetStream{}
	pub := New(js, testConfig(), nil)
	id, err := pub.Publish(context.Background(), "docket.runs", map[string]int{"records": 2})
	require.NoError(t, err)
	require.Equal(t, "DOCKET-1", id)

	require.Len(t, js.msgs, 1)
	msg := js.msgs[0]
	require.Equal(t, "docket.runs", msg.Subject)
	require.JSONEq(t, `{"records":2}`, string(msg.Data))
	require.NotEmpty(t, msg.Header.Get(nats.MsgIdHdr))
	require.Equal(t, "application/json", msg.Header.Get("Content-Type"))
}

func TestPublishRetries(t *testing.T) {
	t.Parallel()

	js := &fakeJetStream{failures: 2}
	pub := New(js, testConfig(), nil)
	id, err := pub.Publish(context.Background(), "docket.runs", "x")
	require.NoError(t, err)
	require.Equal(t, "DOCKET-1", id)
	require.Len(t, js.msgs, 3)
	require.Equal(t, js.msgs[0].Header.Get(nats.MsgIdHdr), js.msgs[2].Header.Get(nats.MsgIdHdr))
}

func TestPublishGivesUp(t *testing.T) {
	t.Parallel()

	js := &fakeJetStream{failures: 10}
	cfg := testConfig()
	cfg.PublishMaxRetries = 1
	pub := New(js, cfg, nil)
	_, err := pub.Publish(context.Background(), "docket.runs", "x")
	require.ErrorContains(t, err, "no responders")
	require.Len(t, js.msgs, 2)
}

func TestPublishValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, testConfig(), nil).Publish(context.Background(), "s", "x")
	require.Error(t, err)
	pub := New(&fakeJetStream{}, testConfig(), nil)
	_, err = pub.Publish(context.Background(), "", "x")
	require.Error(t, err)
	_, err = pub.Publish(context.Background(), "s", func() {})
	require.Error(t, err)
}

func TestConnectValidation(t *testing.T) {
	t.Parallel()

	_, err := Connect(context.Background(), Config{}, nil)
	require.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cfg := testConfig()
	cfg.URL = "nats://192.0.2.1:4222"
	_, err = Connect(ctx, cfg, nil)
	require.Error(t, err)
	require.NoError(t, Close(nil))
}
