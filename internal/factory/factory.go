package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"

	"stepup-auth/internal/attempts"
	"stepup-auth/internal/bucketing"
	"stepup-auth/internal/channel"
	"stepup-auth/internal/client"
	"stepup-auth/internal/config"
	"stepup-auth/internal/encryption"
	"stepup-auth/internal/events"
	"stepup-auth/internal/federation"
	"stepup-auth/internal/handler"
	"stepup-auth/internal/hashing"
	"stepup-auth/internal/identity"
	"stepup-auth/internal/otp"
	"stepup-auth/internal/service"
	"stepup-auth/internal/session"
	"stepup-auth/internal/token"
	"stepup-auth/internal/util"
)

const pepperRotationInterval = 24 * time.Hour

// Factory manages the lifecycle of all application dependencies
type Factory struct {
	config *config.Config

	// Clients
	redisClient      *client.RedisClient
	kafkaProducer    *client.KafkaProducer
	esClient         *client.ESClient
	clickhouseClient *client.ClickHouseClient

	// Managers
	hasher            *hashing.Hasher
	encryptionManager *encryption.Manager
	bucketingManager  *bucketing.Manager

	// Domain
	sessionStore  session.Store
	identityStore identity.Store
	scyllaStore   *identity.ScyllaStore
	tracker       *attempts.Tracker
	dispatcher    *channel.Dispatcher
	generator     *otp.Generator
	issuer        *token.Issuer
	provider      federation.Provider
	emitter       *events.Emitter
	authService   *service.AuthService

	pepperStop chan struct{}
	closeOnce  sync.Once
	closed     chan struct{}
}

// NewFactory creates and initializes all application dependencies
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	factory := &Factory{
		config: cfg,
		closed: make(chan struct{}),
	}

	if err := factory.initializeClients(); err != nil {
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}
	factory.initializeManagers()
	if err := factory.initializeDomain(); err != nil {
		return nil, fmt.Errorf("failed to initialize domain components: %w", err)
	}

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.Bool("kafka_enabled", cfg.Kafka.Enabled),
		util.Bool("scylla_enabled", cfg.Scylla.Enabled),
		util.Bool("kms_enabled", cfg.KMS.Enabled),
	)

	return factory, nil
}

// initializeClients initializes all external service clients with health
// checks. Redis is mandatory; the rest degrade to local fallbacks in
// development.
func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Redis backs sessions and attempt tracking; without it nothing works.
	redisClient, err := client.NewRedisClient(f.config, util.Get())
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	if err := redisClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("redis health check: %w", err)
	}
	f.redisClient = redisClient
	util.Info("Redis client initialized and healthy")

	var initErrors []error

	if f.config.Kafka.Enabled {
		if producer, err := client.NewKafkaProducer(f.config, util.Get()); err != nil {
			initErrors = append(initErrors, fmt.Errorf("kafka: %w", err))
		} else {
			f.kafkaProducer = producer
			util.Info("Kafka producer initialized")
		}
	}

	if f.config.ClickHouse.Enabled {
		if chClient, err := client.NewClickHouseClient(f.config, util.Get()); err != nil {
			initErrors = append(initErrors, fmt.Errorf("clickhouse: %w", err))
		} else if err := chClient.HealthCheck(ctx); err != nil {
			initErrors = append(initErrors, fmt.Errorf("clickhouse health check: %w", err))
		} else {
			f.clickhouseClient = chClient
			util.Info("ClickHouse client initialized and healthy")
		}
	}

	if f.config.Elasticsearch.Enabled {
		if esClient, err := client.NewElasticsearchClient(f.config, util.Get()); err != nil {
			initErrors = append(initErrors, fmt.Errorf("elasticsearch: %w", err))
		} else if err := esClient.HealthCheck(); err != nil {
			initErrors = append(initErrors, fmt.Errorf("elasticsearch health check: %w", err))
		} else {
			f.esClient = esClient
			util.Info("Elasticsearch client initialized and healthy")
		}
	}

	if len(initErrors) > 0 {
		if f.config.IsProduction() {
			return fmt.Errorf("critical service initialization failed: %v", initErrors)
		}
		for _, err := range initErrors {
			util.Warn("Service initialization warning", util.ErrorField(err))
		}
	}

	return nil
}

// initializeManagers initializes hashing, encryption, and bucketing managers
func (f *Factory) initializeManagers() {
	f.hasher = hashing.NewHasher(hashing.DefaultParams())
	f.bucketingManager = bucketing.NewManager()

	var kmsClient *kms.Client
	if f.config.KMS.Enabled {
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(f.config.KMS.Region))
		if err != nil {
			util.Warn("Failed to load AWS config - falling back to local encryption keys",
				util.ErrorField(err))
		} else {
			kmsClient = kms.NewFromConfig(awsCfg, func(o *kms.Options) {
				o.RetryMaxAttempts = 3
				o.RetryMode = aws.RetryModeAdaptive
			})
		}
	}
	f.encryptionManager = encryption.NewManager(f.config, kmsClient)

	if f.config.IsProduction() {
		f.pepperStop = make(chan struct{})
		f.hasher.StartPepperRotation(pepperRotationInterval, f.pepperStop)
	}

	util.Info("Managers initialized successfully",
		util.Bool("kms_backed_encryption", kmsClient != nil))
}

// initializeDomain wires stores, transports, sinks and the orchestrating
// service.
func (f *Factory) initializeDomain() error {
	f.sessionStore = session.NewRedisStore(f.redisClient, util.Get())

	if f.config.Scylla.Enabled {
		scyllaStore, err := identity.NewScyllaStore(f.config, f.bucketingManager)
		if err != nil {
			if f.config.IsProduction() {
				return err
			}
			util.Warn("Scylla unavailable - using in-memory identity store",
				util.ErrorField(err))
			f.identityStore = identity.NewMemoryStore()
		} else {
			f.scyllaStore = scyllaStore
			f.identityStore = scyllaStore
		}
	} else {
		f.identityStore = identity.NewMemoryStore()
	}

	f.tracker = attempts.NewTracker(f.redisClient, attempts.Config{
		MaxOTPAttempts:  f.config.OTP.MaxAttempts,
		OTPAttemptTTL:   f.config.OTP.TTL,
		LoginThreshold:  f.config.Lockout.Threshold,
		LoginWindow:     f.config.Lockout.Window,
		LockoutDuration: f.config.Lockout.Duration,
	}, util.Get())

	f.dispatcher = channel.NewDispatcher(util.Get())
	if f.kafkaProducer != nil {
		topic := f.config.Kafka.NotificationTopic
		f.dispatcher.Register(channel.KindEmail, channel.NewKafkaTransport(f.kafkaProducer, topic, channel.KindEmail))
		f.dispatcher.Register(channel.KindMessaging, channel.NewKafkaTransport(f.kafkaProducer, topic, channel.KindMessaging))
	} else {
		f.dispatcher.Register(channel.KindEmail, channel.NewLogTransport(channel.KindEmail, util.Get()))
		f.dispatcher.Register(channel.KindMessaging, channel.NewLogTransport(channel.KindMessaging, util.Get()))
	}

	generator, err := otp.NewGenerator(f.config.OTP.Digits)
	if err != nil {
		return err
	}
	f.generator = generator

	issuer, err := token.NewIssuer(f.config)
	if err != nil {
		return err
	}
	f.issuer = issuer

	f.provider = federation.NewHTTPProvider(f.config)

	var sinks []events.Sink
	if f.kafkaProducer != nil {
		sinks = append(sinks, events.NewKafkaSink(f.kafkaProducer, f.config.Kafka.SecurityEventTopic))
	}
	if f.clickhouseClient != nil {
		sinks = append(sinks, events.NewClickHouseSink(f.clickhouseClient, f.bucketingManager))
	}
	if f.esClient != nil {
		sinks = append(sinks, events.NewESSink(f.esClient, f.config.Elasticsearch.Index))
	}
	f.emitter = events.NewEmitter(0, sinks...)

	f.authService = service.NewAuthService(
		f.config,
		f.sessionStore,
		f.identityStore,
		f.tracker,
		f.dispatcher,
		f.generator,
		f.hasher,
		f.encryptionManager,
		f.issuer,
		f.provider,
		f.emitter,
	)

	return nil
}

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) AuthService() *service.AuthService {
	return f.authService
}

func (f *Factory) AuthHandler() *handler.AuthHandler {
	return handler.NewAuthHandler(f.authService, util.Get())
}

// HealthCheckers lists the dependency probes exposed on /health.
func (f *Factory) HealthCheckers() []handler.HealthChecker {
	checkers := []handler.HealthChecker{
		{Name: "redis", Check: func(ctx context.Context) error {
			return f.redisClient.HealthCheck(ctx)
		}},
	}

	if f.kafkaProducer != nil {
		checkers = append(checkers, handler.HealthChecker{Name: "kafka", Check: func(ctx context.Context) error {
			return f.kafkaProducer.HealthCheck(ctx)
		}})
	}
	if f.clickhouseClient != nil {
		checkers = append(checkers, handler.HealthChecker{Name: "clickhouse", Check: func(ctx context.Context) error {
			return f.clickhouseClient.HealthCheck(ctx)
		}})
	}
	if f.esClient != nil {
		checkers = append(checkers, handler.HealthChecker{Name: "elasticsearch", Check: func(ctx context.Context) error {
			return f.esClient.HealthCheck()
		}})
	}
	if f.scyllaStore != nil {
		checkers = append(checkers, handler.HealthChecker{Name: "scylla", Check: func(ctx context.Context) error {
			return f.scyllaStore.HealthCheck()
		}})
	}

	return checkers
}

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		util.Info("Shutting down factory...")

		if f.emitter != nil {
			f.emitter.Close()
			util.Info("Event emitter drained and closed")
		}

		if f.pepperStop != nil {
			close(f.pepperStop)
		}

		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.Close(); err != nil {
				util.Error("Failed to close ClickHouse client", util.ErrorField(err))
			} else {
				util.Info("ClickHouse client closed")
			}
		}

		if f.esClient != nil {
			f.esClient.Close()
			util.Info("Elasticsearch client closed")
		}

		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("Failed to close Kafka producer", util.ErrorField(err))
			} else {
				util.Info("Kafka producer closed")
			}
		}

		if f.scyllaStore != nil {
			f.scyllaStore.Close()
		}

		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			} else {
				util.Info("Redis client closed")
			}
		}

		if f.encryptionManager != nil {
			f.encryptionManager.ClearCache()
			util.Info("Encryption manager cache cleared")
		}

		util.Sync()
		util.Info("Factory shutdown completed")
	})

	return nil
}

func (f *Factory) WaitForClose() {
	<-f.closed
}
