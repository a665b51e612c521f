package pubsub

import (
	"context"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/classic-hero/classichero/internal/publisher"
)

func fakeServer(t *testing.T) (*pstest.Server, []option.ClientOption) {
	t.Helper()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return srv, []option.ClientOption{option.WithGRPCConn(conn)}
}

func TestPublisherPublishes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	srv, opts := fakeServer(t)
	client, err := pubsub.NewClient(ctx, "classichero", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	_, err = client.CreateTopic(ctx, "runs")
	require.NoError(t, err)

	pub := NewWithClient(client, "runs")
	id, err := pub.Publish(ctx, publisher.Message{
		Data:       []byte(`{"stage":"COLLECTED"}`),
		Attributes: map[string]string{"run_id": "run-1"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	require.NoError(t, pub.Close())

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	assert.JSONEq(t, `{"stage":"COLLECTED"}`, string(msgs[0].Data))
	assert.Equal(t, "run-1", msgs[0].Attributes["run_id"])
}

func TestNewRequiresExistingTopic(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	_, opts := fakeServer(t)

	_, err := New(ctx, Config{ProjectID: "classichero", TopicID: "missing"}, opts...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")

	_, err = New(ctx, Config{ProjectID: "classichero"}, opts...)
	require.Error(t, err)
}
