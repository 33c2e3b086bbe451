package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/Laisky/errors/v2"
	gconfig "github.com/Laisky/go-config/v2"
	gcmd "github.com/Laisky/go-utils/v6/cmd"
	"github.com/Laisky/zap"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/Laisky/laisky-blog-web/internal/web"
	"github.com/Laisky/laisky-blog-web/internal/web/blog/controller"
	"github.com/Laisky/laisky-blog-web/internal/web/blog/draft"
	"github.com/Laisky/laisky-blog-web/internal/web/blog/feed"
	"github.com/Laisky/laisky-blog-web/internal/web/blog/service"
	"github.com/Laisky/laisky-blog-web/internal/web/blog/session"
	"github.com/Laisky/laisky-blog-web/library/blogapi"
	"github.com/Laisky/laisky-blog-web/library/cache"
	"github.com/Laisky/laisky-blog-web/library/config"
	rdb "github.com/Laisky/laisky-blog-web/library/db/redis"
	"github.com/Laisky/laisky-blog-web/library/db/mongo"
	"github.com/Laisky/laisky-blog-web/library/jwt"
	"github.com/Laisky/laisky-blog-web/library/log"
	"github.com/Laisky/laisky-blog-web/library/throttle"
)

const (
	defaultBackendTimeout  = 5 * time.Second
	defaultRevalidate      = 60 * time.Second
	defaultSessionTTL      = 7 * 24 * time.Hour
	defaultCommentsPerMin  = 6
	defaultCommentsBurst   = 3
	memoryCacheSize        = 10000
	feedRegistrySize       = 10000
	commentsTotalPerMinute = 600
)

var webCMD = &cobra.Command{
	Use:   "web",
	Short: "web",
	Long:  `serve the blog pages and comment endpoints`,
	Args:  gcmd.NoExtraArgs,
	PreRun: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		if err := initialize(ctx, cmd); err != nil {
			log.Logger.Panic("init", zap.Error(err))
		}
	},
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := runWeb(ctx); err != nil {
			log.Logger.Panic("run web", zap.Error(err))
		}
	},
}

func init() {
	webCMD.Flags().String("listen", "localhost:8080", "like `localhost:8080`")
	webCMD.Flags().Bool("prewarm", false, "load every post into the cache before serving")
	rootCMD.AddCommand(webCMD)
}

func runWeb(ctx context.Context) error {
	logger := log.Logger.Named("web")

	api, err := newBackendClient()
	if err != nil {
		return errors.Wrap(err, "new backend client")
	}

	redisDB := newRedisDB()
	sessionTTL := durationSetting("settings.web.session_ttl", defaultSessionTTL)
	sessionCache, err := newCache(redisDB, rdb.KeyPrefixSession, sessionTTL)
	if err != nil {
		return errors.Wrap(err, "new session cache")
	}
	revalidate := durationSetting("settings.web.revalidate", defaultRevalidate)
	postCache, err := newCache(redisDB, rdb.KeyPrefixPost, revalidate)
	if err != nil {
		return errors.Wrap(err, "new post cache")
	}

	drafts, closeDrafts, err := newDraftService(ctx)
	if err != nil {
		return errors.Wrap(err, "new draft service")
	}
	defer closeDrafts()

	commentThrottle, err := newCommentThrottle()
	if err != nil {
		return errors.Wrap(err, "new comment throttle")
	}
	feeds, err := feed.NewRegistry(feedRegistrySize, sessionTTL)
	if err != nil {
		return errors.Wrap(err, "new feed registry")
	}

	svc, err := service.New(logger.Named("blog"), api,
		service.WithPostCache(postCache, revalidate),
		service.WithFeedRegistry(feeds),
		service.WithCommentThrottle(commentThrottle),
		service.WithDrafts(drafts),
	)
	if err != nil {
		return errors.Wrap(err, "new blog service")
	}

	signer, err := jwt.NewSigner([]byte(gconfig.Shared.GetString("settings.web.secret")), sessionTTL)
	if err != nil {
		return errors.Wrap(err, "new session signer")
	}
	store, err := session.NewStore(sessionCache, signer)
	if err != nil {
		return errors.Wrap(err, "new session store")
	}
	sessions := session.NewManager(store, gconfig.Shared.GetBool("settings.web.cookie_secure"))

	ctrlOpts := []controller.Option{
		controller.WithLogger(logger.Named("controller")),
		controller.WithBaseURL(gconfig.Shared.GetString("settings.web.base_url")),
	}
	if secret := gconfig.Shared.GetString("settings.web.turnstile.secret_key"); secret != "" {
		ts, err := controller.NewTurnstile(secret, gconfig.Shared.GetString("settings.web.turnstile.site_key"))
		if err != nil {
			return errors.Wrap(err, "new turnstile")
		}
		ctrlOpts = append(ctrlOpts, controller.WithTurnstile(ts))
	}
	ctrl, err := controller.New(svc, sessions, ctrlOpts...)
	if err != nil {
		return errors.Wrap(err, "new controller")
	}

	if gconfig.Shared.GetBool("prewarm") {
		n, err := svc.PrewarmPosts(ctx)
		if err != nil {
			logger.Warn("prewarm posts", zap.Error(err))
		} else {
			logger.Info("prewarmed posts", zap.Int("n", n))
		}
	}

	return web.RunServer(ctx, gconfig.Shared.GetString("listen"), ctrl,
		web.WithServerLogger(logger.Named("gin")),
		web.WithAllowedOrigins(gconfig.Shared.GetStringSlice("settings.web.allowed_origins")),
		web.WithHealthCheck(svc),
		web.WithStaticDir(config.ResolvePath(gconfig.Shared.GetString("settings.web.static_dir"))),
	)
}

// newBackendClient builds the REST client from settings.backend.
func newBackendClient() (*blogapi.Client, error) {
	opts := []blogapi.Option{
		blogapi.WithTimeout(durationSetting("settings.backend.timeout", defaultBackendTimeout)),
		blogapi.WithLogger(log.Logger.Named("blogapi")),
	}
	if name := gconfig.Shared.GetString("settings.backend.cookie_name"); name != "" {
		opts = append(opts, blogapi.WithCookieName(name))
	}

	return blogapi.New(gconfig.Shared.GetString("settings.backend.url"), opts...)
}

// newRedisDB returns nil when redis is not configured.
func newRedisDB() *rdb.DB {
	addr := gconfig.Shared.GetString("settings.db.redis.addr")
	if addr == "" {
		return nil
	}

	return rdb.NewDB(&redis.Options{
		Addr:     addr,
		Password: gconfig.Shared.GetString("settings.db.redis.pwd"),
		DB:       gconfig.Shared.GetInt("settings.db.redis.db"),
	})
}

// newCache stores in redis when db is set, in process memory otherwise.
func newCache(db *rdb.DB, prefix string, ttl time.Duration) (cache.Cache, error) {
	if db == nil {
		return cache.NewMemory(memoryCacheSize, ttl)
	}

	return cache.NewRedis(db, prefix, ttl)
}

// newDraftService stores drafts in mongo when settings.db.drafts is set.
// The returned func releases the database.
func newDraftService(ctx context.Context) (*draft.Service, func(), error) {
	logger := log.Logger.Named("draft")
	addr := gconfig.Shared.GetString("settings.db.drafts.addr")
	if addr == "" {
		svc, err := draft.NewService(draft.NewMemoryStore(), logger)
		return svc, func() {}, err
	}

	db, err := mongo.NewDB(ctx, mongo.DialInfo{
		Addr:   addr,
		DBName: gconfig.Shared.GetString("settings.db.drafts.db"),
		User:   gconfig.Shared.GetString("settings.db.drafts.user"),
		Pwd:    gconfig.Shared.GetString("settings.db.drafts.pwd"),
	})
	if err != nil {
		return nil, nil, errors.Wrap(err, "connect drafts db")
	}
	closeDB := func() {
		if err := db.Close(context.Background()); err != nil {
			logger.Warn("close drafts db", zap.Error(err))
		}
	}

	store, err := draft.NewMongoStore(ctx, db)
	if err != nil {
		closeDB()
		return nil, nil, errors.Wrap(err, "new mongo draft store")
	}
	svc, err := draft.NewService(store, logger)
	if err != nil {
		closeDB()
		return nil, nil, errors.Wrap(err, "new draft service")
	}

	return svc, closeDB, nil
}

func newCommentThrottle() (*throttle.KeyedThrottle, error) {
	perMinute := intSetting("settings.web.comments.per_minute", defaultCommentsPerMin)
	burst := intSetting("settings.web.comments.burst", defaultCommentsBurst)
	return throttle.NewKeyedThrottle(throttle.KeyedThrottleCfg{
		TotalPerMinute: commentsTotalPerMinute,
		TotalBurst:     commentsTotalPerMinute / 10,
		EachPerMinute:  perMinute,
		EachBurst:      burst,
	})
}

func durationSetting(key string, fallback time.Duration) time.Duration {
	if gconfig.Shared.Get(key) == nil {
		return fallback
	}
	if d, err := parseStrictDuration(gconfig.Shared.Get(key)); err == nil && d > 0 {
		return d
	}

	return fallback
}

func intSetting(key string, fallback int) int {
	if gconfig.Shared.Get(key) == nil {
		return fallback
	}
	if n, err := parseStrictInt(gconfig.Shared.Get(key)); err == nil && n > 0 {
		return n
	}

	return fallback
}
