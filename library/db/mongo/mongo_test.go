package mongo

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/Laisky/errors/v2"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// stubDriver replaces the driver hooks for one test.
func stubDriver(t *testing.T, pingErr error) (connects, disconnects *int32) {
	t.Helper()

	connects, disconnects = new(int32), new(int32)
	oldConnect, oldPing, oldDisconnect := connectMongo, pingMongo, disconnectMongo

	connectMongo = func(ctx context.Context, opts *options.ClientOptions) (*mongo.Client, error) {
		atomic.AddInt32(connects, 1)
		cli, err := mongo.NewClient(options.Client().ApplyURI("mongodb://example.com"))
		if err != nil {
			return nil, errors.Wrap(err, "new client")
		}
		return cli, nil
	}
	pingMongo = func(ctx context.Context, cli *mongo.Client) error {
		return pingErr
	}
	disconnectMongo = func(ctx context.Context, cli *mongo.Client) error {
		atomic.AddInt32(disconnects, 1)
		return nil
	}

	t.Cleanup(func() {
		connectMongo, pingMongo, disconnectMongo = oldConnect, oldPing, oldDisconnect
		clientsMu.Lock()
		clients = map[string]*sharedClient{}
		clientsMu.Unlock()
	})

	return connects, disconnects
}

// TestNewDBSharesClient verifies that databases on one server share a client.
func TestNewDBSharesClient(t *testing.T) {
	connects, disconnects := stubDriver(t, nil)
	ctx := context.Background()

	drafts, err := NewDB(ctx, DialInfo{Addr: "localhost:27017", DBName: "drafts", User: "u", Pwd: "p"})
	require.NoError(t, err)
	other, err := NewDB(ctx, DialInfo{Addr: "localhost:27017", DBName: "other", User: "u", Pwd: "p"})
	require.NoError(t, err)

	require.Equal(t, int32(1), atomic.LoadInt32(connects))
	require.Same(t, drafts.(*db).shared, other.(*db).shared)
	require.Equal(t, "drafts", drafts.GetCol("drafts").Database().Name())
	require.Equal(t, "other", other.GetCol("x").Database().Name())

	require.NoError(t, drafts.Close(ctx))
	require.NoError(t, drafts.Close(ctx))
	require.Equal(t, int32(0), atomic.LoadInt32(disconnects))

	require.NoError(t, other.Close(ctx))
	require.Equal(t, int32(1), atomic.LoadInt32(disconnects))
}

func TestNewDBPingFailure(t *testing.T) {
	_, disconnects := stubDriver(t, errors.New("no primary"))

	_, err := NewDB(context.Background(), DialInfo{Addr: "localhost:27017", DBName: "drafts"})
	require.ErrorContains(t, err, "no primary")
	require.Equal(t, int32(1), atomic.LoadInt32(disconnects))

	clientsMu.Lock()
	require.Empty(t, clients)
	clientsMu.Unlock()
}

func TestDialInfoURI(t *testing.T) {
	require.Equal(t, "mongodb://localhost:27017/blog",
		DialInfo{Addr: "localhost:27017", DBName: "blog"}.URI())
	require.Equal(t, "mongodb://u:p@localhost:27017/blog?authSource=admin",
		DialInfo{Addr: "localhost:27017", DBName: "blog", User: "u", Pwd: "p", AuthDB: "admin"}.URI())

	_, err := NewDB(context.Background(), DialInfo{})
	require.Error(t, err)
}

func TestNotFound(t *testing.T) {
	require.True(t, NotFound(mongo.ErrNoDocuments))
	require.True(t, NotFound(errors.Wrap(mongo.ErrNoDocuments, "find draft")))
	require.False(t, NotFound(errors.New("timeout")))
	require.False(t, NotFound(nil))
}
