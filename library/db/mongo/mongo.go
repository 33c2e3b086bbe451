// Package mongo shares MongoDB clients between stores.
package mongo

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/Laisky/laisky-blog-web/library/log"
)

const (
	connectTimeout = 10 * time.Second
	closeTimeout   = 10 * time.Second
)

// DB is a handle on one database of a shared client
type DB interface {
	Close(ctx context.Context) error
	GetCol(colName string) *mongo.Collection
	Ping(ctx context.Context) error
}

// DialInfo defines the MongoDB connection information.
type DialInfo struct {
	Addr,
	DBName,
	User,
	Pwd string
	AuthDB string
}

// URI renders the connection string of d.
func (d DialInfo) URI() string {
	u := &url.URL{Scheme: "mongodb", Host: d.Addr, Path: "/" + d.DBName}
	if d.User != "" || d.Pwd != "" {
		u.User = url.UserPassword(d.User, d.Pwd)
	}
	if d.AuthDB != "" {
		u.RawQuery = url.Values{"authSource": []string{d.AuthDB}}.Encode()
	}

	return u.String()
}

// clientKey ignores the database name so every database on a server shares one client.
func (d DialInfo) clientKey() string {
	return d.Addr + "|" + d.User + "|" + d.Pwd + "|" + d.AuthDB
}

type sharedClient struct {
	cli  *mongo.Client
	refs int
}

var (
	clientsMu sync.Mutex
	clients   = map[string]*sharedClient{}
)

var (
	connectMongo = func(ctx context.Context, opts *options.ClientOptions) (*mongo.Client, error) {
		return mongo.Connect(ctx, opts)
	}
	pingMongo = func(ctx context.Context, cli *mongo.Client) error {
		return cli.Ping(ctx, readpref.Primary())
	}
	disconnectMongo = func(ctx context.Context, cli *mongo.Client) error {
		return cli.Disconnect(ctx)
	}
)

type db struct {
	key    string
	dbName string
	shared *sharedClient
	once   sync.Once
}

// NewDB connects to dialInfo, reusing a live client to the same server.
func NewDB(ctx context.Context, dialInfo DialInfo) (DB, error) {
	if dialInfo.Addr == "" || dialInfo.DBName == "" {
		return nil, errors.New("mongo addr and db name are required")
	}

	key := dialInfo.clientKey()
	clientsMu.Lock()
	defer clientsMu.Unlock()

	if sc, ok := clients[key]; ok {
		sc.refs++
		return &db{key: key, dbName: dialInfo.DBName, shared: sc}, nil
	}

	log.Logger.Info("try to connect to mongodb",
		zap.String("addr", dialInfo.Addr),
		zap.String("db", dialInfo.DBName))

	connCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	cli, err := connectMongo(connCtx, options.Client().
		ApplyURI(dialInfo.URI()).
		SetConnectTimeout(connectTimeout).
		SetServerSelectionTimeout(connectTimeout).
		SetRetryReads(true).
		SetRetryWrites(true).
		SetMaxPoolSize(50))
	if err != nil {
		return nil, errors.Wrap(err, "connect mongo")
	}
	if err = pingMongo(connCtx, cli); err != nil {
		_ = disconnectMongo(context.Background(), cli)
		return nil, errors.Wrap(err, "ping mongo")
	}

	sc := &sharedClient{cli: cli, refs: 1}
	clients[key] = sc
	return &db{key: key, dbName: dialInfo.DBName, shared: sc}, nil
}

// GetCol returns a collection handle by name.
func (d *db) GetCol(colName string) *mongo.Collection {
	return d.shared.cli.Database(d.dbName).Collection(colName)
}

// Ping checks the primary is reachable.
func (d *db) Ping(ctx context.Context) error {
	if err := pingMongo(ctx, d.shared.cli); err != nil {
		return errors.Wrap(err, "ping mongo")
	}

	return nil
}

// Close releases the handle, the client disconnects with its last handle.
// Closing twice is a no-op.
func (d *db) Close(ctx context.Context) (err error) {
	d.once.Do(func() {
		clientsMu.Lock()
		d.shared.refs--
		last := d.shared.refs == 0
		if last && clients[d.key] == d.shared {
			delete(clients, d.key)
		}
		clientsMu.Unlock()

		if !last {
			return
		}

		closeCtx, cancel := context.WithTimeout(ctx, closeTimeout)
		defer cancel()
		if err = disconnectMongo(closeCtx, d.shared.cli); err != nil {
			err = errors.Wrap(err, "disconnect mongo")
		}
	})

	return err
}

// NotFound reports whether err means no document matched.
func NotFound(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}
