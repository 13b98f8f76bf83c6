package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/botlinkhq/botlink/internal/ai"
	"github.com/botlinkhq/botlink/internal/auth"
	"github.com/botlinkhq/botlink/internal/channel"
	"github.com/botlinkhq/botlink/internal/channel/adapters/instagram"
	"github.com/botlinkhq/botlink/internal/channel/adapters/telegram"
	"github.com/botlinkhq/botlink/internal/channel/adapters/whatsapp"
	"github.com/botlinkhq/botlink/internal/config"
	"github.com/botlinkhq/botlink/internal/conversation"
	"github.com/botlinkhq/botlink/internal/db"
	"github.com/botlinkhq/botlink/internal/gateway"
	"github.com/botlinkhq/botlink/internal/handlers"
	"github.com/botlinkhq/botlink/internal/healthcheck"
	"github.com/botlinkhq/botlink/internal/knowledge"
	"github.com/botlinkhq/botlink/internal/logger"
	"github.com/botlinkhq/botlink/internal/message"
	"github.com/botlinkhq/botlink/internal/server"
	"github.com/botlinkhq/botlink/internal/tenant"
	"github.com/botlinkhq/botlink/internal/vault"
	"github.com/botlinkhq/botlink/internal/version"
)

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideDBPool,
			provideVault,
			provideTelegramAdapter,
			provideWhatsAppAdapter,
			provideInstagramAdapter,
			provideChannelRegistry,
			provideTenantService,
			provideConversationResolver,
			provideMessageStore,
			provideKnowledgeStore,
			provideKnowledgeProvider,
			provideAccountStore,
			provideAIConfigStore,
			provideEngine,
			provideDispatcher,
			provideGateway,
			provideSweeper,
			providePingHandler,
			provideAuthHandler,
			provideWebhookHandler,
			provideTenantsHandler,
			provideBindingsHandler,
			provideAIConfigHandler,
			provideKnowledgeHandler,
			provideServer,
		),
		fx.Invoke(
			startHealthSweep,
			startServer,
		),
		fx.WithLogger(func(log *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: log.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideConfig() (config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideDBPool(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.Postgres); err != nil {
		return nil, err
	}
	pool, err := db.Open(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})
	return pool, nil
}

func provideVault(cfg config.Config, log *slog.Logger) (*vault.Vault, error) {
	return vault.New(log, cfg.Vault.EncryptionKey)
}

func provideTelegramAdapter(log *slog.Logger) *telegram.Adapter {
	return telegram.NewAdapter(log)
}

func provideWhatsAppAdapter(cfg config.Config, log *slog.Logger) *whatsapp.Adapter {
	return whatsapp.NewAdapter(log, cfg.Graph.Endpoint(""))
}

func provideInstagramAdapter(cfg config.Config, log *slog.Logger) *instagram.Adapter {
	return instagram.NewAdapter(log, cfg.Graph.Endpoint(""))
}

func provideChannelRegistry(tg *telegram.Adapter, wa *whatsapp.Adapter, ig *instagram.Adapter) *channel.Registry {
	registry := channel.NewRegistry()
	registry.MustRegister(tg)
	registry.MustRegister(wa)
	registry.MustRegister(ig)
	return registry
}

func provideTenantService(pool *pgxpool.Pool, v *vault.Vault, log *slog.Logger) *tenant.Service {
	return tenant.NewService(tenant.NewPostgresStore(pool), v, log)
}

func provideConversationResolver(pool *pgxpool.Pool, log *slog.Logger) *conversation.Resolver {
	return conversation.NewResolver(conversation.NewPostgresStore(pool), log)
}

func provideMessageStore(pool *pgxpool.Pool) *message.PostgresStore {
	return message.NewPostgresStore(pool)
}

func provideKnowledgeStore(pool *pgxpool.Pool) *knowledge.PostgresStore {
	return knowledge.NewPostgresStore(pool)
}

func provideKnowledgeProvider(store *knowledge.PostgresStore) *knowledge.Provider {
	return knowledge.NewProvider(store)
}

func provideAccountStore(pool *pgxpool.Pool) *auth.AccountStore {
	return auth.NewAccountStore(pool)
}

func provideAIConfigStore(pool *pgxpool.Pool, v *vault.Vault) *ai.ConfigStore {
	return ai.NewConfigStore(pool, v)
}

func provideEngine(cfg config.Config, log *slog.Logger) *ai.Engine {
	return ai.NewEngine(log,
		ai.NewGeminiClient(cfg.AI.GeminiBaseURL, cfg.AI.GeminiAPIKey),
		ai.NewOpenAIClient(cfg.AI.OpenAIBaseURL),
	)
}

func provideDispatcher(registry *channel.Registry, messages *message.PostgresStore, log *slog.Logger) *gateway.Dispatcher {
	return gateway.NewDispatcher(registry, messages, log)
}

func provideGateway(
	registry *channel.Registry,
	tenants *tenant.Service,
	conversations *conversation.Resolver,
	messages *message.PostgresStore,
	aiConfigs *ai.ConfigStore,
	engine *ai.Engine,
	knowledgeProvider *knowledge.Provider,
	dispatcher *gateway.Dispatcher,
	log *slog.Logger,
) *gateway.Gateway {
	return gateway.New(registry, tenants, conversations, messages, aiConfigs, engine, knowledgeProvider, dispatcher, log)
}

func provideSweeper(cfg config.Config, tenants *tenant.Service, tg *telegram.Adapter, log *slog.Logger) *healthcheck.Sweeper {
	return healthcheck.NewSweeper(cfg.Healthcheck.Spec, tenants, map[channel.Platform]healthcheck.Prober{
		channel.PlatformTelegram: tg,
	}, log)
}

func providePingHandler(log *slog.Logger) *handlers.PingHandler {
	return handlers.NewPingHandler(log)
}

func provideAuthHandler(cfg config.Config, accounts *auth.AccountStore, log *slog.Logger) (*handlers.AuthHandler, error) {
	expiresIn, err := time.ParseDuration(cfg.Auth.JWTExpiresIn)
	if err != nil {
		return nil, fmt.Errorf("parse jwt_expires_in: %w", err)
	}
	return handlers.NewAuthHandler(log, accounts, cfg.Auth.JWTSecret, expiresIn), nil
}

func provideWebhookHandler(gw *gateway.Gateway, registry *channel.Registry, log *slog.Logger) *handlers.WebhookHandler {
	return handlers.NewWebhookHandler(log, gw, registry)
}

func provideTenantsHandler(tenants *tenant.Service, conversations *conversation.Resolver, messages *message.PostgresStore, log *slog.Logger) *handlers.TenantsHandler {
	return handlers.NewTenantsHandler(log, tenants, conversations, messages)
}

func provideBindingsHandler(cfg config.Config, tenants *tenant.Service, registry *channel.Registry, log *slog.Logger) *handlers.BindingsHandler {
	return handlers.NewBindingsHandler(log, tenants, registry, cfg.Server.PublicBaseURL)
}

func provideAIConfigHandler(configs *ai.ConfigStore, log *slog.Logger) *handlers.AIConfigHandler {
	return handlers.NewAIConfigHandler(log, configs)
}

func provideKnowledgeHandler(store *knowledge.PostgresStore, log *slog.Logger) *handlers.KnowledgeHandler {
	return handlers.NewKnowledgeHandler(log, store)
}

func provideServer(
	cfg config.Config,
	log *slog.Logger,
	pingHandler *handlers.PingHandler,
	authHandler *handlers.AuthHandler,
	webhookHandler *handlers.WebhookHandler,
	tenantsHandler *handlers.TenantsHandler,
	bindingsHandler *handlers.BindingsHandler,
	aiConfigHandler *handlers.AIConfigHandler,
	knowledgeHandler *handlers.KnowledgeHandler,
) *server.Server {
	return server.NewServer(log, cfg.Server.Addr, cfg.Auth.JWTSecret,
		pingHandler, authHandler, webhookHandler, tenantsHandler,
		bindingsHandler, aiConfigHandler, knowledgeHandler)
}

func startHealthSweep(lc fx.Lifecycle, cfg config.Config, sweeper *healthcheck.Sweeper) {
	if !cfg.Healthcheck.Enabled {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error { return sweeper.Start() },
		OnStop: func(context.Context) error {
			sweeper.Stop()
			return nil
		},
	})
}

func startServer(
	lc fx.Lifecycle,
	log *slog.Logger,
	srv *server.Server,
	shutdowner fx.Shutdowner,
	cfg config.Config,
	accounts *auth.AccountStore,
	tenants *tenant.Service,
) {
	fmt.Printf("Starting botlink %s\n", version.GetInfo())
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := ensureAdminAccount(ctx, log, cfg, accounts, tenants); err != nil {
				return err
			}
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}

// ensureAdminAccount bootstraps the first tenant and admin login on an
// empty database.
func ensureAdminAccount(ctx context.Context, log *slog.Logger, cfg config.Config, accounts *auth.AccountStore, tenants *tenant.Service) error {
	exists, err := accounts.Exists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	t, err := tenants.CreateTenant(ctx, "Default", "uz")
	if err != nil {
		return fmt.Errorf("create default tenant: %w", err)
	}
	if _, err := accounts.Create(ctx, t.ID, cfg.Admin.Username, cfg.Admin.Email, cfg.Admin.Password, "admin"); err != nil {
		return fmt.Errorf("create admin account: %w", err)
	}
	log.Info("admin account bootstrapped", slog.String("username", cfg.Admin.Username))
	if cfg.Admin.Password == "change-your-password-here" {
		log.Warn("admin password is the default; change it in config.toml")
	}
	return nil
}
