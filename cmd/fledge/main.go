package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/url"
	"os"
	"time"

	"github.com/0x6flab/namegenerator"
	"github.com/absmach/fledge"
	"github.com/absmach/fledge/client"
	"github.com/absmach/fledge/client/api"
	"github.com/absmach/fledge/client/middleware"
	"github.com/absmach/fledge/engine"
	"github.com/absmach/fledge/pkg/jaeger"
	"github.com/absmach/fledge/pkg/mqtt"
	"github.com/absmach/fledge/pkg/prometheus"
	"github.com/absmach/fledge/pkg/server"
	httpserver "github.com/absmach/fledge/pkg/server/http"
	"github.com/absmach/fledge/pkg/storage"
	"github.com/absmach/fledge/pkg/transport"
	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"
)

const (
	svcName       = "fledge"
	defHTTPPort   = "9090"
	envPrefixHTTP = "FLEDGE_HTTP_"
	envPrefixMQTT = "FLEDGE_MQTT_"
	pathEnv       = ".env"
)

type envConfig struct {
	LogLevel          string        `env:"FLEDGE_LOG_LEVEL"          envDefault:"info"`
	InstanceID        string        `env:"FLEDGE_INSTANCE_ID"`
	ClientID          string        `env:"FLEDGE_CLIENT_ID"`
	ConfigFile        string        `env:"FLEDGE_CONFIG_FILE"        envDefault:"config.toml"`
	ServerHost        string        `env:"FLEDGE_SERVER_HOST"        envDefault:"127.0.0.1"`
	ServerPort        int           `env:"FLEDGE_SERVER_PORT"        envDefault:"9092"`
	Slice             string        `env:"FLEDGE_SLICE"`
	DatasetURL        string        `env:"FLEDGE_DATASET_URL"`
	DefaultEpochs     int           `env:"FLEDGE_DEFAULT_EPOCHS"     envDefault:"5"`
	RoundTimeout      time.Duration `env:"FLEDGE_ROUND_TIMEOUT"      envDefault:"10m"`
	GRPCCompression   bool          `env:"FLEDGE_GRPC_COMPRESSION"   envDefault:"false"`
	TensorCompression bool          `env:"FLEDGE_TENSOR_COMPRESSION" envDefault:"false"`
	ReconnectRetries  uint64        `env:"FLEDGE_RECONNECT_RETRIES"  envDefault:"5"`
	ReconnectDelay    time.Duration `env:"FLEDGE_RECONNECT_DELAY"    envDefault:"1s"`
	ReconnectMaxDelay time.Duration `env:"FLEDGE_RECONNECT_MAX_DELAY" envDefault:"1m"`
	MQTTEnabled       bool          `env:"FLEDGE_MQTT_ENABLED"       envDefault:"false"`
	Storage           storage.Config
	OTELURL           url.URL `env:"FLEDGE_OTEL_URL"`
	TraceRatio        float64 `env:"FLEDGE_TRACE_RATIO" envDefault:"0"`
}

// applyFile fills values left unset in the environment from the TOML file
// written by the configure command.
func (c *envConfig) applyFile(f *fledge.Config) {
	if c.ClientID == "" {
		c.ClientID = f.Client.ClientID
	}
	if c.Slice == "" {
		c.Slice = f.Client.Slice
	}
	if _, ok := os.LookupEnv("FLEDGE_DEFAULT_EPOCHS"); !ok && f.Client.Epochs > 0 {
		c.DefaultEpochs = f.Client.Epochs
	}
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)

	if _, err := os.Stat(pathEnv); err == nil {
		_ = godotenv.Load(pathEnv)
	}

	cfg := envConfig{}
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("failed to load configuration : %s", err.Error())
	}

	mqttCfg := mqtt.Config{}
	if err := env.ParseWithOptions(&mqttCfg, env.Options{Prefix: envPrefixMQTT}); err != nil {
		log.Fatalf("failed to load mqtt configuration : %s", err.Error())
	}

	if _, err := os.Stat(cfg.ConfigFile); err == nil {
		fileCfg, err := fledge.LoadConfig(cfg.ConfigFile)
		if err != nil {
			log.Fatalf("failed to load config file: %s", err.Error())
		}
		cfg.applyFile(fileCfg)
		if _, ok := os.LookupEnv(envPrefixMQTT + "ADDRESS"); !ok && fileCfg.MQTT.Address != "" {
			mqttCfg.Address = fileCfg.MQTT.Address
			mqttCfg.Username = fileCfg.MQTT.Username
			mqttCfg.Password = fileCfg.MQTT.Password
			cfg.MQTTEnabled = true
		}
	}

	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}
	if cfg.ClientID == "" {
		cfg.ClientID = namegenerator.NewGenerator().Generate()
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		log.Fatalf("failed to parse log level: %s", err.Error())
	}
	logHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})
	logger := slog.New(logHandler).With(slog.String("client_id", cfg.ClientID))
	slog.SetDefault(logger)

	var tp trace.TracerProvider
	switch {
	case cfg.OTELURL == (url.URL{}):
		tp = noop.NewTracerProvider()
	default:
		sdktp, err := jaeger.NewProvider(ctx, svcName, cfg.OTELURL, cfg.InstanceID, cfg.TraceRatio)
		if err != nil {
			logger.Error("failed to initialize opentelemetry", slog.String("error", err.Error()))

			return
		}
		defer func() {
			if err := sdktp.Shutdown(context.Background()); err != nil {
				logger.Error("error shutting down tracer provider", slog.Any("error", err))
			}
		}()
		tp = sdktp
	}
	tracer := tp.Tracer(svcName)

	repos, err := storage.NewRepositories(cfg.Storage)
	if err != nil {
		logger.Error("failed to initialize storage", slog.String("error", err.Error()))

		return
	}
	if repos.Closer != nil {
		defer repos.Closer.Close()
	}

	var engOpts []engine.Option
	if cfg.DatasetURL != "" {
		engOpts = append(engOpts, engine.WithDatasetSource(engine.NewHTTPSource(cfg.DatasetURL, nil)))
	}
	eng := engine.NewLinear(logger, engOpts...)

	tracker := client.NewTracker()
	observers := client.Observers{tracker, client.NewHistory(repos.Rounds, logger)}

	var ps mqtt.PubSub
	if cfg.MQTTEnabled {
		ps, err = mqtt.NewPubSub(mqttCfg, cfg.ClientID, logger)
		if err != nil {
			logger.Error("failed to initialize mqtt pubsub", slog.String("error", err.Error()))

			return
		}
		defer func() {
			if err := ps.Disconnect(context.Background()); err != nil {
				logger.Warn("failed to disconnect mqtt", slog.Any("error", err))
			}
		}()
		observers = append(observers, client.NewPublisher(cfg.ClientID, ps, logger))
	}

	clientCfg := client.Config{
		ClientID:            cfg.ClientID,
		DefaultEpochs:       cfg.DefaultEpochs,
		RoundTimeout:        cfg.RoundTimeout,
		CompressTensors:     cfg.TensorCompression,
		ReconnectMaxRetries: cfg.ReconnectRetries,
		ReconnectBaseDelay:  cfg.ReconnectDelay,
		ReconnectMaxDelay:   cfg.ReconnectMaxDelay,
	}

	svc := client.NewService(clientCfg, eng, observers, logger)
	svc = middleware.Logging(logger, svc)
	svc = middleware.Tracing(tracer, svc)
	counter, latency := prometheus.MakeMetrics(svcName, "api")
	svc = middleware.Metrics(counter, latency, svc)

	runner := client.NewRunner(clientCfg, eng, svc, logger,
		client.WithTracker(tracker),
		client.WithRoundRepository(repos.Rounds),
	)

	if ps != nil {
		if err := client.SubscribeStop(ctx, ps, cfg.ClientID, runner, logger); err != nil {
			logger.Error("failed to subscribe to stop topic", slog.String("error", err.Error()))

			return
		}
		defer func() {
			if err := client.UnsubscribeStop(context.Background(), ps, cfg.ClientID); err != nil {
				logger.Warn("failed to unsubscribe from stop topic", slog.Any("error", err))
			}
		}()
	}

	httpServerConfig := server.Config{Port: defHTTPPort}
	if err := env.ParseWithOptions(&httpServerConfig, env.Options{Prefix: envPrefixHTTP}); err != nil {
		logger.Error(fmt.Sprintf("failed to load %s HTTP server configuration : %s", svcName, err.Error()))

		return
	}

	hs := httpserver.NewServer(ctx, cancel, svcName, httpServerConfig, api.MakeHandler(runner, logger, cfg.InstanceID), logger)

	g.Go(func() error {
		return hs.Start()
	})

	g.Go(func() error {
		return server.StopSignalHandler(ctx, cancel, logger, svcName, hs)
	})

	g.Go(func() error {
		defer cancel()

		dialCfg := transport.DialConfig{
			Host:     cfg.ServerHost,
			Port:     cfg.ServerPort,
			Compress: cfg.GRPCCompression,
		}
		report, err := runner.Start(ctx, dialCfg, cfg.Slice)
		logger.Info("client finished",
			slog.String("end_reason", string(report.EndReason)),
			slog.Int("sessions", report.Sessions),
			slog.Int("completed_rounds", report.CompletedRounds),
			slog.Int("failed_rounds", report.FailedRounds),
			slog.Float64("last_loss", report.LastLoss),
		)

		return err
	})

	if err := g.Wait(); err != nil {
		logger.Error(fmt.Sprintf("%s service exited with error: %s", svcName, err))
	}
}
