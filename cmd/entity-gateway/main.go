package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/diwise/entity-gateway/internal/pkg/application/gateway"
	"github.com/diwise/entity-gateway/internal/pkg/application/query"
	"github.com/diwise/entity-gateway/internal/pkg/application/sources"
	"github.com/diwise/entity-gateway/internal/pkg/infrastructure/database/dynamodb"
	"github.com/diwise/entity-gateway/internal/pkg/infrastructure/database/postgres"
	"github.com/diwise/entity-gateway/internal/pkg/infrastructure/remote"
	"github.com/diwise/entity-gateway/internal/pkg/infrastructure/router"
	"github.com/diwise/entity-gateway/internal/pkg/presentation/api"
	"github.com/diwise/service-chassis/pkg/infrastructure/buildinfo"
	"github.com/diwise/service-chassis/pkg/infrastructure/env"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
)

const serviceName string = "entity-gateway"

func defaultFlags() FlagMap {
	return FlagMap{
		listenAddress:   "",
		servicePort:     "8080",
		configPath:      "/opt/diwise/config/sources.yaml",
		serverErrorCode: gateway.DefaultServerErrorCode,
		logFormat:       "json",
	}
}

func main() {
	ctx, flags := parseExternalConfig(context.Background(), defaultFlags())

	serviceVersion := buildinfo.SourceVersion()
	ctx, logger, cleanup := o11y.Init(ctx, serviceName, serviceVersion, flags[logFormat])
	defer cleanup()

	cfgFile, err := os.Open(flags[configPath])
	exitIf(err, logger.Error, "failed to open sources configuration", "path", flags[configPath])

	handler, closeSources, err := initialize(ctx, flags, cfgFile)
	cfgFile.Close()
	exitIf(err, logger.Error, "failed to initialize service")
	defer closeSources()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:    net.JoinHostPort(flags[listenAddress], flags[servicePort]),
		Handler: handler,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shut down gracefully", "err", err.Error())
		}
	}()

	logger.Info("starting to listen for connections", "addr", srv.Addr)

	err = srv.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("failed to listen for connections", "err", err.Error())
		os.Exit(1)
	}

	logger.Info("service stopped")
}

// initialize builds an executor per configured source and wires them through
// a registry, dispatcher and router into a single handler. The returned func
// closes any resources held by the sources.
func initialize(ctx context.Context, flags FlagMap, cfgFile io.Reader) (http.Handler, func(), error) {
	cfg, err := sources.LoadConfiguration(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load sources configuration: %w", err)
	}

	closers := []func(){}
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	executors := map[string]query.Executor{}

	for _, src := range cfg.Sources {
		executor, closer, err := newExecutor(ctx, src)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("failed to create executor for source %s: %w", src.ID, err)
		}

		if closer != nil {
			closers = append(closers, closer)
		}

		executors[src.ID] = executor
	}

	registry, err := sources.NewRegistry(*cfg, executors)
	if err != nil {
		closeAll()
		return nil, nil, err
	}

	dispatcher := gateway.NewDispatcher(registry, gateway.WithServerErrorCode(flags[serverErrorCode]))

	r := router.New(serviceName, flags[logFormat])
	api.RegisterHandlers(ctx, r, dispatcher)

	return r, closeAll, nil
}

func newExecutor(ctx context.Context, src sources.SourceConfig) (query.Executor, func(), error) {
	logger := logging.GetFromContext(ctx).With("source", src.ID, "kind", src.Kind)

	switch src.Kind {
	case sources.KindPostgres:
		connStr := src.DSN
		if connStr == "" {
			connStr = postgres.LoadConfiguration(ctx).ConnStr()
		}

		pool, err := postgres.Connect(ctx, connStr)
		if err != nil {
			return nil, nil, err
		}

		logger.Info("connected to database")
		return postgres.NewExecutor(pool, src.Schema), pool.Close, nil

	case sources.KindDynamoDB:
		region := src.Region
		if region == "" {
			region = env.GetVariableOrDefault(ctx, "AWS_REGION", "eu-north-1")
		}

		client, err := dynamodb.NewClient(ctx, dynamodb.ClientConfig{
			Region:          region,
			Endpoint:        src.Endpoint,
			AccessKeyID:     env.GetVariableOrDefault(ctx, "DYNAMODB_ACCESS_KEY_ID", ""),
			SecretAccessKey: env.GetVariableOrDefault(ctx, "DYNAMODB_SECRET_ACCESS_KEY", ""),
		})
		if err != nil {
			return nil, nil, err
		}

		logger.Info("created dynamodb client", "region", region)
		return dynamodb.NewExecutor(client, src.TablePrefix), nil, nil

	case sources.KindHTTP:
		if src.Endpoint == "" {
			return nil, nil, fmt.Errorf("source %s has no endpoint", src.ID)
		}

		options := []func(*remote.Executor){}
		for name, value := range src.Headers {
			options = append(options, remote.WithHeader(name, value))
		}

		logger.Info("forwarding to remote source", "endpoint", src.Endpoint)
		return remote.NewExecutor(src.Endpoint, options...), nil, nil
	}

	return nil, nil, fmt.Errorf("unknown source kind %q", src.Kind)
}

func parseExternalConfig(ctx context.Context, flags FlagMap) (context.Context, FlagMap) {
	// Allow environment variables to override certain defaults
	envOrDef := env.GetVariableOrDefault
	flags[servicePort] = envOrDef(ctx, "SERVICE_PORT", flags[servicePort])
	flags[configPath] = envOrDef(ctx, "SOURCES_CONFIG_PATH", flags[configPath])
	flags[serverErrorCode] = envOrDef(ctx, "SERVER_ERROR_CODE", flags[serverErrorCode])

	apply := func(f FlagType) func(string) error {
		return func(value string) error {
			flags[f] = value
			return nil
		}
	}

	// Allow command line arguments to override defaults and environment variables
	flag.Func("config", "path to the sources configuration file", apply(configPath))
	flag.Func("port", "port to listen for connections on", apply(servicePort))
	flag.Func("server-error-code", "error code reported for unexpected failures", apply(serverErrorCode))
	flag.Func("log-format", "log format, json or text", apply(logFormat))
	flag.Parse()

	return ctx, flags
}

func exitIf(err error, log func(string, ...any), msg string, args ...any) {
	if err != nil {
		log(msg, append(args, "err", err.Error())...)
		os.Exit(1)
	}
}
