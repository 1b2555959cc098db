package app

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/you-humble/pdftoxml/internal/auth"
	"github.com/you-humble/pdftoxml/internal/converter"
	"github.com/you-humble/pdftoxml/internal/distributor"
	"github.com/you-humble/pdftoxml/internal/extractor"
	"github.com/you-humble/pdftoxml/internal/infra/config"
	"github.com/you-humble/pdftoxml/internal/infra/queue"
	"github.com/you-humble/pdftoxml/internal/infra/ratelimit"
	conversionstore "github.com/you-humble/pdftoxml/internal/infra/store/conversion"
	filestore "github.com/you-humble/pdftoxml/internal/infra/store/file"
	idemstore "github.com/you-humble/pdftoxml/internal/infra/store/idempotency"
	userstore "github.com/you-humble/pdftoxml/internal/infra/store/user"
	"github.com/you-humble/pdftoxml/internal/libs/gormdb"
	mio "github.com/you-humble/pdftoxml/internal/libs/minio"
	natsq "github.com/you-humble/pdftoxml/internal/libs/nats"
	rediscli "github.com/you-humble/pdftoxml/internal/libs/redis"
	"github.com/you-humble/pdftoxml/internal/transport"
	"github.com/you-humble/pdftoxml/internal/usecase"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Dispatcher accepts conversion ids and runs them in the background.
type Dispatcher interface {
	usecase.Dispatcher
	Run(ctx context.Context) error
	Stop(ctx context.Context) error
}

type Sweeper interface {
	StartCleanup(ctx context.Context)
}

type ConversionStore interface {
	usecase.ConversionStore
	converter.StatusStore
	distributor.StaleFailer
	Migrate(ctx context.Context) error
}

type FileStore interface {
	usecase.FileStore
	Close(ctx context.Context) error
}

type dbPinger struct {
	db *gorm.DB
}

func (p dbPinger) Ping(ctx context.Context) error {
	return gormdb.Ping(ctx, p.db)
}

type dependencyInjector struct {
	cfgPath string
	cfg     *config.Config
	logger  *slog.Logger

	db              *gorm.DB
	conversionStore ConversionStore
	userStore       usecase.UserStore

	redis       *redis.Client
	redisLoaded bool

	fileStore FileStore

	natsConn *nats.Conn
	js       nats.JetStreamContext

	processor   distributor.Processor
	dispatcher  Dispatcher
	sweeper     Sweeper
	tokens      usecase.TokenIssuer
	verifier    transport.TokenVerifier
	conversions transport.Conversions
	accounts    transport.Accounts
	router      http.Handler
}

func newDI(cfgPath string) *dependencyInjector {
	return &dependencyInjector{cfgPath: cfgPath}
}

func (di *dependencyInjector) Config() *config.Config {
	if di.cfg == nil {
		di.cfg = config.MustLoad(di.cfgPath)
	}

	return di.cfg
}

func (di *dependencyInjector) Logger() *slog.Logger {
	if di.logger == nil {
		var level slog.Level
		if err := level.UnmarshalText([]byte(strings.ToUpper(di.Config().LogLevel))); err != nil {
			level = slog.LevelInfo
		}

		di.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		}))
		slog.SetDefault(di.logger)
	}

	return di.logger
}

func (di *dependencyInjector) DB() *gorm.DB {
	if di.db == nil {
		cfg := di.Config().Database
		db, err := gormdb.Open(gormdb.Config{
			Driver:          cfg.Driver,
			DSN:             cfg.DSN,
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
		})
		if err != nil {
			log.Fatalf("DB open: %+v", err)
		}

		di.db = db
		di.Logger().Info("connected to database", slog.String("driver", cfg.Driver))
	}
	return di.db
}

func (di *dependencyInjector) HealthChecker() dbPinger {
	return dbPinger{db: di.DB()}
}

// Migrate creates or updates the tables of both stores.
func (di *dependencyInjector) Migrate(ctx context.Context) error {
	if err := di.ConversionStore().Migrate(ctx); err != nil {
		return err
	}
	return userstore.NewGormUserStore(di.DB()).Migrate(ctx)
}

func (di *dependencyInjector) ConversionStore() ConversionStore {
	if di.conversionStore == nil {
		di.conversionStore = conversionstore.NewGormConversionStore(di.DB())
	}
	return di.conversionStore
}

func (di *dependencyInjector) UserStore() usecase.UserStore {
	if di.userStore == nil {
		di.userStore = userstore.NewGormUserStore(di.DB())
	}
	return di.userStore
}

// RedisClient returns nil when no redis addr is configured.
func (di *dependencyInjector) RedisClient(ctx context.Context) *redis.Client {
	if !di.redisLoaded {
		di.redisLoaded = true

		cfg := di.Config().Redis
		if cfg.Addr == "" {
			di.Logger().Info("redis is not configured; rate limiting and idempotency keys are off")
			return nil
		}

		client, err := rediscli.NewClient(ctx, rediscli.Config{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
		if err != nil {
			log.Fatalf("Redis client: %+v", err)
		}

		di.redis = client
		di.Logger().Info("connected to redis", slog.String("addr", cfg.Addr))
	}
	return di.redis
}

func (di *dependencyInjector) FileStore(ctx context.Context) FileStore {
	if di.fileStore == nil {
		cfg := di.Config()

		local, err := filestore.NewLocalStore(cfg.Storage.BaseDir, usecase.SourceDir, usecase.OutputDir)
		if err != nil {
			log.Fatalf("FileStore local: %+v", err)
		}
		di.Logger().Info("initialized local file store", slog.String("base_dir", cfg.Storage.BaseDir))

		var remote filestore.Remote
		if cfg.MinIO.Endpoint != "" {
			remote, err = filestore.NewMinIOStore(ctx, mio.Config{
				Endpoint:        cfg.MinIO.Endpoint,
				AccessKeyID:     cfg.MinIO.AccessKeyID,
				SecretAccessKey: cfg.MinIO.SecretAccessKey,
				UseSSL:          cfg.MinIO.UseSSL,
				Bucket:          cfg.MinIO.Bucket,
				BasePath:        cfg.MinIO.BasePath,
			})
			if err != nil {
				log.Fatalf("FileStore minio: %+v", err)
			}
			di.Logger().Info(
				"initialized MinIO replica",
				slog.String("endpoint", cfg.MinIO.Endpoint),
				slog.String("bucket", cfg.MinIO.Bucket),
			)
		}

		di.fileStore = filestore.NewAsyncStore(ctx, local, remote, filestore.ReplicationConfig{
			QueueSize:  cfg.MinIO.QueueSize,
			Workers:    cfg.MinIO.Workers,
			MaxRetries: cfg.MinIO.MaxRetries,
		})
	}

	return di.fileStore
}

func (di *dependencyInjector) NATSConn() *nats.Conn {
	if di.natsConn == nil {
		cfg := di.Config().NATS
		nc, err := natsq.NewConnect(cfg.URL, natsq.Config{
			Name:          cfg.Consumer,
			MaxReconnects: cfg.MaxReconnects,
			ReconnectWait: cfg.ReconnectWait,
		})
		if err != nil {
			log.Fatalf("NATS connect: %+v", err)
		}
		di.natsConn = nc
		di.Logger().Info("connected to NATS", slog.String("url", cfg.URL))
	}
	return di.natsConn
}

func (di *dependencyInjector) JetStream() nats.JetStreamContext {
	if di.js == nil {
		cfg := di.Config()
		js, err := natsq.NewJetStream(di.NATSConn(), &nats.StreamConfig{
			Name:      cfg.NATS.Stream,
			Subjects:  []string{cfg.NATS.Subject},
			Storage:   nats.FileStorage,
			Retention: nats.WorkQueuePolicy,
			Replicas:  1,
			MaxAge:    2 * cfg.Conversion.StaleAfter,
		})
		if err != nil {
			log.Fatalf("DI JetStream: %+v", err)
		}

		di.js = js
	}
	return di.js
}

func (di *dependencyInjector) Processor(ctx context.Context) distributor.Processor {
	if di.processor == nil {
		pipeline := converter.New(di.ConversionStore(), extractor.New())
		di.processor = usecase.NewProcessor(
			di.Config().Conversion.Timeout,
			di.ConversionStore(),
			di.FileStore(ctx),
			pipeline,
		)
	}
	return di.processor
}

func (di *dependencyInjector) Dispatcher(ctx context.Context) Dispatcher {
	if di.dispatcher == nil {
		cfg := di.Config()
		switch cfg.Queue.Driver {
		case config.QueueNATS:
			di.dispatcher = &natsDispatcher{
				Dispatcher: queue.New(di.JetStream(), cfg.NATS.Subject),
				consumer: distributor.NewNATS(di.JetStream(), distributor.NATSConfig{
					Stream:   cfg.NATS.Stream,
					Subject:  cfg.NATS.Subject,
					Consumer: cfg.NATS.Consumer,
					Workers:  cfg.Queue.Workers,
				}, di.Processor(ctx)),
			}
		default:
			di.dispatcher = distributor.NewPool(cfg.Queue.Capacity, cfg.Queue.Workers, di.Processor(ctx))
		}
		di.Logger().Info("conversion dispatcher ready", slog.String("driver", cfg.Queue.Driver))
	}
	return di.dispatcher
}

func (di *dependencyInjector) Sweeper() Sweeper {
	if di.sweeper == nil {
		cfg := di.Config().Conversion
		di.sweeper = distributor.NewSweeper(di.ConversionStore(), cfg.SweepInterval, cfg.StaleAfter)
	}
	return di.sweeper
}

func (di *dependencyInjector) tokenIssuer() {
	cfg := di.Config().Auth
	issuer, err := auth.NewTokenIssuer(cfg.JWTSecret, cfg.Issuer, cfg.TokenTTL)
	if err != nil {
		log.Fatalf("DI token issuer: %+v", err)
	}
	di.tokens = issuer
	di.verifier = issuer
}

func (di *dependencyInjector) TokenIssuer() usecase.TokenIssuer {
	if di.tokens == nil {
		di.tokenIssuer()
	}
	return di.tokens
}

func (di *dependencyInjector) TokenVerifier() transport.TokenVerifier {
	if di.verifier == nil {
		di.tokenIssuer()
	}
	return di.verifier
}

func (di *dependencyInjector) Conversions(ctx context.Context) transport.Conversions {
	if di.conversions == nil {
		var idem usecase.IdempotencyStore
		if rdb := di.RedisClient(ctx); rdb != nil {
			idem = idemstore.NewRedisIdempotencyStore(rdb, di.Config().Redis.IdempotencyTTL)
		}

		di.conversions = usecase.NewConversions(
			di.ConversionStore(),
			di.FileStore(ctx),
			di.Dispatcher(ctx),
			idem,
		)
	}
	return di.conversions
}

func (di *dependencyInjector) Accounts() transport.Accounts {
	if di.accounts == nil {
		di.accounts = usecase.NewAccounts(
			di.UserStore(),
			auth.NewBcryptHasher(di.Config().Auth.BcryptCost),
			di.TokenIssuer(),
		)
	}
	return di.accounts
}

func (di *dependencyInjector) Router(ctx context.Context) http.Handler {
	if di.router == nil {
		cfg := di.Config()

		routerCfg := transport.RouterConfig{CORSOrigins: cfg.HTTP.CORSOrigins}
		if rdb := di.RedisClient(ctx); rdb != nil {
			routerCfg.Limiter = ratelimit.NewRedisLimiter(rdb, ratelimit.Config{
				Limit:  cfg.RateLimit.Limit,
				Window: cfg.RateLimit.Window,
			})
		}

		h := transport.NewHandler(
			cfg.MaxUploadBytes(),
			di.Conversions(ctx),
			di.Accounts(),
			di.HealthChecker(),
		)
		di.router = transport.NewRouter(h, di.TokenVerifier(), routerCfg)
	}

	return di.router
}

// Close releases the connections opened so far.
func (di *dependencyInjector) Close(ctx context.Context) {
	if di.fileStore != nil {
		if err := di.fileStore.Close(ctx); err != nil {
			slog.Warn("file store close", slog.String("error", err.Error()))
		}
	}
	if di.natsConn != nil {
		if err := di.natsConn.Drain(); err != nil {
			slog.Warn("NATS drain", slog.String("error", err.Error()))
		}
	}
	if di.redis != nil {
		if err := di.redis.Close(); err != nil {
			slog.Warn("redis close", slog.String("error", err.Error()))
		}
	}
	if di.db != nil {
		if err := gormdb.Close(di.db); err != nil {
			slog.Warn("database close", slog.String("error", err.Error()))
		}
	}
}

// natsDispatcher publishes to JetStream and consumes the same subject.
type natsDispatcher struct {
	usecase.Dispatcher
	consumer interface {
		Run(ctx context.Context) error
		Stop(ctx context.Context) error
	}
}

func (d *natsDispatcher) Run(ctx context.Context) error {
	return d.consumer.Run(ctx)
}

func (d *natsDispatcher) Stop(ctx context.Context) error {
	return d.consumer.Stop(ctx)
}
