package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/codeGROOVE-dev/retry"
	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/bazaar/internal/config"
	"github.com/mbeoliero/bazaar/internal/docstore"
	"github.com/mbeoliero/bazaar/internal/feed"
	"github.com/mbeoliero/bazaar/internal/gateway"
	"github.com/mbeoliero/bazaar/internal/handler"
	"github.com/mbeoliero/bazaar/internal/repository"
	"github.com/mbeoliero/bazaar/internal/router"
	"github.com/mbeoliero/bazaar/internal/service"
	"github.com/mbeoliero/bazaar/internal/tracker"
	"github.com/mbeoliero/bazaar/pkg/constant"
	"github.com/mbeoliero/bazaar/pkg/idgen"
)

// stores is the conversation store selected by store.driver
type stores struct {
	tracker tracker.Store
	chats   service.ChatStore
	close   func(ctx context.Context) error
}

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the config file")
	machineId := flag.Uint("machine-id", 1, "sonyflake machine id of this instance")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.CtxError(ctx, "failed to load config: %v", err)
		os.Exit(1)
	}
	log.CtxInfo(ctx, "config loaded: mode=%s, store=%s, feed=%s", cfg.Server.Mode, cfg.Store.Driver, cfg.Feed.Driver)

	constant.InitRedisKeyPrefix(cfg.Redis.KeyPrefix)
	log.CtxInfo(ctx, "redis key prefix: %s", constant.GetRedisKeyPrefix())

	gen, err := idgen.NewSonyflakeGenerator(uint16(*machineId))
	if err != nil {
		log.CtxError(ctx, "failed to create id generator: %v", err)
		os.Exit(1)
	}
	idgen.SetDefaultGenerator(gen)

	if err := run(ctx, cfg); err != nil {
		log.CtxError(ctx, "server exited: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	repos, err := repository.NewRepositories(cfg)
	if err != nil {
		return fmt.Errorf("init repositories: %w", err)
	}
	defer repos.Close()

	if err := withRetry(ctx, "mysql and redis", func() error { return repos.CheckConnection(ctx) }); err != nil {
		return err
	}
	if err := repos.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	log.CtxInfo(ctx, "database connection established")

	changeFeed, err := openFeed(ctx, cfg, repos)
	if err != nil {
		return err
	}
	defer changeFeed.Close()

	st, err := openStores(ctx, cfg, repos, changeFeed)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := st.close(closeCtx); err != nil {
			log.CtxWarn(closeCtx, "close store failed: %v", err)
		}
	}()

	opts := trackerOptions(cfg.Tracker)
	counter := tracker.NewCounter(st.tracker, opts.Tolerance, nil)

	authService := service.NewAuthService(repos.User, cfg, repos.Redis)
	userService := service.NewUserService(repos.User)
	chatService := service.NewChatService(st.chats, repos.Listing, changeFeed, counter)
	unreadService := service.NewUnreadService(st.tracker, st.chats, counter, opts.Concurrency)
	listingService := service.NewListingService(repos.Listing)
	reviewService := service.NewReviewService(repos.Listing)

	wsServer := gateway.NewWsServer(cfg, repos.Redis, authService, chatService, st.tracker, opts)
	wsServer.Run(ctx)
	log.CtxInfo(ctx, "websocket server started")

	handlers := &router.Handlers{
		Auth:    handler.NewAuthHandler(authService, wsServer),
		User:    handler.NewUserHandler(userService, wsServer),
		Listing: handler.NewListingHandler(listingService),
		Review:  handler.NewReviewHandler(reviewService),
		Chat:    handler.NewChatHandler(chatService),
		Unread:  handler.NewUnreadHandler(unreadService),
	}

	h := server.Default(
		server.WithHostPorts(fmt.Sprintf(":%d", cfg.Server.HTTPPort)),
	)
	router.SetupRouter(h, cfg, handlers, authService, wsServer)

	log.CtxInfo(ctx, "server starting on port %d", cfg.Server.HTTPPort)
	go h.Spin()

	<-ctx.Done()
	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := h.Shutdown(shutdownCtx); err != nil {
		log.CtxError(shutdownCtx, "server shutdown error: %v", err)
	}

	log.Info("server stopped")
	return nil
}

// openFeed connects the change feed named by feed.driver
func openFeed(ctx context.Context, cfg *config.Config, repos *repository.Repositories) (feed.Feed, error) {
	switch cfg.Feed.Driver {
	case config.FeedDriverNats:
		var f *feed.NatsFeed
		err := withRetry(ctx, "nats", func() error {
			nc, err := feed.ConnectNats(cfg.Nats)
			if err != nil {
				return err
			}
			f, err = feed.NewNatsFeed(nc, cfg.Nats.SubjectPrefix)
			if err != nil {
				nc.Close()
			}
			return err
		})
		if err != nil {
			return nil, err
		}
		return f, nil

	case config.FeedDriverLocal:
		log.CtxWarn(ctx, "local change feed in use, trackers only see writes of this instance")
		return feed.NewLocalFeed(), nil

	default:
		f, err := feed.NewRedisFeed(ctx, repos.Redis)
		if err != nil {
			return nil, fmt.Errorf("redis feed: %w", err)
		}
		return f, nil
	}
}

// openStores builds the conversation store named by store.driver
func openStores(ctx context.Context, cfg *config.Config, repos *repository.Repositories, f feed.Feed) (*stores, error) {
	if cfg.Store.Driver != config.StoreDriverMongo {
		return &stores{
			tracker: repository.NewTrackerStore(repos, f, cfg.Tracker.OpTimeout),
			chats:   repository.NewChatStore(repos),
			close:   func(context.Context) error { return nil },
		}, nil
	}

	var store *docstore.Store
	err := withRetry(ctx, "mongodb", func() error {
		client, err := docstore.Connect(ctx, cfg.Mongo)
		if err != nil {
			return err
		}
		store = docstore.New(client, cfg.Mongo, f, cfg.Tracker.OpTimeout)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := store.EnsureIndexes(ctx); err != nil {
		_ = store.Close(ctx)
		return nil, fmt.Errorf("mongodb indexes: %w", err)
	}
	log.CtxInfo(ctx, "mongodb store ready: database=%s, change_streams=%v", cfg.Mongo.Database, cfg.Mongo.ChangeStreams)

	return &stores{tracker: store, chats: store, close: store.Close}, nil
}

// withRetry retries a startup dependency check with backoff
func withRetry(ctx context.Context, name string, fn func() error) error {
	err := retry.Do(
		fn,
		retry.Attempts(10),
		retry.Delay(time.Second),
		retry.MaxDelay(30*time.Second),
		retry.MaxJitter(time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			log.CtxWarn(ctx, "%s not ready, retrying: attempt=%d, error=%v", name, n+1, err)
		}),
	)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func trackerOptions(c config.TrackerConfig) tracker.Options {
	return tracker.Options{
		Tolerance:    c.Tolerance,
		ShortConfirm: c.ShortConfirm,
		LongConfirm:  c.LongConfirm,
		Settle:       c.Settle,
		Retry:        c.Retry,
		OpTimeout:    c.OpTimeout,
		Concurrency:  c.Concurrency,
	}
}
