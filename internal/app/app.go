package app

import (
	"context"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/fastygo/magiclink/api/client"
	"github.com/fastygo/magiclink/internal/config"
	redisInfra "github.com/fastygo/magiclink/internal/infrastructure/redis"
	"github.com/fastygo/magiclink/internal/services/lifecycle"
	"github.com/fastygo/magiclink/pkg/httpcontext"
	"github.com/fastygo/magiclink/pkg/logger"
	"github.com/fastygo/magiclink/repository"
	"github.com/fastygo/magiclink/repository/boltdb"
	"github.com/fastygo/magiclink/repository/memory"
	redisRepo "github.com/fastygo/magiclink/repository/redis"
	authUC "github.com/fastygo/magiclink/usecase/auth"
	profileUC "github.com/fastygo/magiclink/usecase/profile"
	sessionUC "github.com/fastygo/magiclink/usecase/session"
)

// App holds the wired dependencies of one client invocation.
type App struct {
	cfg       *config.Config
	logger    *zap.Logger
	lifecycle *lifecycle.Manager
	adapter   *httpcontext.Adapter

	api      *client.Client
	sessions repository.SessionRepository
	auth     *authUC.UseCase
	profile  *profileUC.UseCase
	session  *sessionUC.Manager

	in     io.Reader
	out    io.Writer
	errOut io.Writer
}

type options struct {
	doer   client.Doer
	repo   repository.SessionRepository
	logger *zap.Logger
	in     io.Reader
	out    io.Writer
	errOut io.Writer
}

type Option func(*options)

// WithDoer replaces the HTTP transport, mainly for tests.
func WithDoer(doer client.Doer) Option {
	return func(o *options) { o.doer = doer }
}

// WithSessionRepository bypasses the configured session driver.
func WithSessionRepository(repo repository.SessionRepository) Option {
	return func(o *options) { o.repo = repo }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithIO sets the streams commands read from and write to.
func WithIO(in io.Reader, out, errOut io.Writer) Option {
	return func(o *options) {
		o.in, o.out, o.errOut = in, out, errOut
	}
}

// New wires the client from cfg. Close must be called to release the session store.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	o := options{in: os.Stdin, out: os.Stdout, errOut: os.Stderr}
	for _, opt := range opts {
		opt(&o)
	}

	zapLogger := o.logger
	if zapLogger == nil {
		var err error
		zapLogger, err = logger.New(logger.Config{
			Level:    cfg.Logger.Level,
			Encoding: cfg.Logger.Encoding,
			Output:   o.errOut,
		})
		if err != nil {
			return nil, err
		}
	}
	zapLogger = zapLogger.With(zap.String("app", cfg.AppName))

	manager := lifecycle.New(cfg.Context.ShutdownTimeout, zapLogger)
	manager.Register("logger", func(context.Context) error {
		_ = zapLogger.Sync()
		return nil
	})

	repo := o.repo
	if repo == nil {
		var err error
		repo, err = openSessionRepository(ctx, cfg, manager, zapLogger)
		if err != nil {
			_ = manager.Shutdown(ctx)
			return nil, err
		}
	}

	api, err := client.New(cfg.API.BaseURL,
		client.WithDoer(o.doer),
		client.WithLogger(zapLogger),
		client.WithTimeout(cfg.API.Timeout),
		client.WithUserAgent(cfg.API.UserAgent),
	)
	if err != nil {
		_ = manager.Shutdown(ctx)
		return nil, err
	}

	return &App{
		cfg:       cfg,
		logger:    zapLogger,
		lifecycle: manager,
		adapter:   httpcontext.NewAdapter(cfg.Context.RequestTimeout),
		api:       api,
		sessions:  repo,
		auth:      authUC.New(api, zapLogger),
		profile:   profileUC.New(api, zapLogger),
		session:   sessionUC.New(repo, cfg.Session.Profile, zapLogger),
		in:        o.in,
		out:       o.out,
		errOut:    o.errOut,
	}, nil
}

func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Listen returns a context that is cancelled on SIGINT or SIGTERM.
func (a *App) Listen(parent context.Context) (context.Context, context.CancelFunc) {
	return a.lifecycle.Listen(parent)
}

// Close releases every resource opened by New.
func (a *App) Close(ctx context.Context) error {
	return a.lifecycle.Shutdown(ctx)
}

func openSessionRepository(ctx context.Context, cfg *config.Config, manager *lifecycle.Manager, zapLogger *zap.Logger) (repository.SessionRepository, error) {
	switch cfg.Session.Driver {
	case config.DriverMemory:
		return memory.NewSessionRepository(), nil
	case config.DriverRedis:
		redisClient, err := redisInfra.NewClient(ctx, cfg.Redis, zapLogger)
		if err != nil {
			return nil, err
		}
		manager.RegisterCloser("redis", redisClient)
		return redisRepo.NewSessionRepository(redisClient, cfg.Redis.Prefix), nil
	default:
		store, err := boltdb.Open(cfg.Session.Path)
		if err != nil {
			return nil, err
		}
		manager.RegisterCloser("session_store", store)
		return store, nil
	}
}
