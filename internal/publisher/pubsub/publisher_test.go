package pubsub

import (
	"context"
	"errors"
	"testing"

	"cloud.google.com/go/pubsub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishMarshalsPayload(t *testing.T) {
	t.Parallel()

	var got *pubsub.Message
	p := &Publisher{publish: func(_ context.Context, msg *pubsub.Message) (string, error) {
		got = msg
		return "msg-1", nil
	}}

	attrs := map[string]string{"event": "scan.completed"}
	id, err := p.Publish(context.Background(), attrs, map[string]any{"scan_id": "scan-1", "failed_count": 2})
	require.NoError(t, err)
	assert.Equal(t, "msg-1", id)
	require.NotNil(t, got)
	assert.JSONEq(t, `{"scan_id":"scan-1","failed_count":2}`, string(got.Data))
	assert.Equal(t, "scan.completed", got.Attributes["event"])

	attrs["event"] = "mutated"
	assert.Equal(t, "scan.completed", got.Attributes["event"])
}

func TestPublishErrors(t *testing.T) {
	t.Parallel()

	_, err := New(nil).Publish(context.Background(), nil, "x")
	require.ErrorContains(t, err, "not configured")

	p := &Publisher{publish: func(context.Context, *pubsub.Message) (string, error) {
		return "", errors.New("permission denied")
	}}
	_, err = p.Publish(context.Background(), nil, "x")
	require.ErrorContains(t, err, "permission denied")

	_, err = p.Publish(context.Background(), nil, func() {})
	require.ErrorContains(t, err, "marshal payload")
}

func TestDialRequiresTopic(t *testing.T) {
	t.Parallel()

	_, err := Dial(context.Background(), "proj", "")
	require.Error(t, err)
}

func TestCloseRunsClosersOnce(t *testing.T) {
	t.Parallel()

	calls := 0
	p := &Publisher{closers: []func() error{func() error { calls++; return nil }}}
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.Equal(t, 1, calls)
}
