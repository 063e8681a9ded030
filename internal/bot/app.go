package bot

import (
	"context"
	"fmt"

	"tradebot/core/logger"
	coretelegram "tradebot/core/telegram"
	"tradebot/core/telegram/middleware"
	"tradebot/core/telegram/router"
	"tradebot/core/telegram/ui"
	"tradebot/internal/adminmsg"
	"tradebot/internal/dialog"
	"tradebot/internal/directory"
	"tradebot/internal/flows"

	"github.com/jmoiron/sqlx"
	"log/slog"
	tele "gopkg.in/telebot.v4"
)

var _ ui.FallbackProvider = (*App)(nil)

// App owns the bot's services and wires them onto the Telegram runtime.
type App struct {
	cfg       *Config
	dir       *directory.Directory
	engine    *dialog.Engine
	messenger *adminmsg.Service
	courier   *telebotCourier
	bridge    *dialogBridge
	operators middleware.OperatorSet
}

// New builds the application object graph. db is only consulted when the
// postgres storage mode is configured.
func New(cfg *Config, db *sqlx.DB) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bot: nil config provided")
	}

	var store directory.Store
	switch cfg.Storage.Mode {
	case StoragePostgres:
		if db == nil {
			return nil, fmt.Errorf("bot: postgres storage requested but no database handle provided")
		}
		store = directory.NewPostgresStore(db)
	default:
		store = directory.NewMemoryStore()
	}

	balance, err := cfg.StartingBalance()
	if err != nil {
		return nil, err
	}

	app := &App{
		cfg:       cfg,
		courier:   newCourier(),
		operators: middleware.NewOperatorSet(cfg.Operators.IDs),
	}
	app.dir = directory.New(store, balance)
	app.messenger = adminmsg.New(app.dir, app.courier)

	app.engine = dialog.NewEngine(dialog.Options{
		IdleTTL: cfg.IdleTTL(),
		OnExpire: func(chatID int64, dialogName string) {
			// Best effort; before the transport is up this just fails
			// and the expiry still happened.
			if err := app.courier.SendText(context.Background(), chatID, expiredSessionText(dialogName)); err != nil {
				logger.Warn(context.Background(), "bot", "dialog.expire.notify",
					slog.String("status", "fail"),
					slog.Int64("chat_id", chatID),
					slog.String("err", err.Error()),
				)
			}
		},
	})
	app.bridge = &dialogBridge{engine: app.engine}

	err = flows.Register(app.engine, flows.Deps{
		Directory:    app.dir,
		Messenger:    app.messenger,
		EmailDomains: cfg.Registration.EmailDomains,
	})
	if err != nil {
		return nil, err
	}
	return app, nil
}

// Directory exposes the participant directory, mainly for tests.
func (a *App) Directory() *directory.Directory {
	return a.dir
}

// TelegramRunOptions assembles the runtime wiring for the core runner.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	reg := coretelegram.NewRegistry()
	a.registerCommands(reg)
	if err := a.registerCallbacks(reg); err != nil {
		return coretelegram.RunOptions{}, err
	}
	reg.SetTextFallback(a.UnknownText())
	reg.SetCallbackNotFound(a.UnknownCallback())

	routes := router.CommandRoutes(reg, router.CommandRouteOptions{
		Operators: a.operators,
		OnReject: func(c tele.Context) error {
			return c.Send(deniedText)
		},
	})
	routes = append(routes, router.TextRoutes(a.bridge, reg, router.TextOptions{
		UnknownDocument: a.UnknownDocument(),
	})...)
	routes = append(routes, router.CallbackRoute(reg, router.CallbackOptions{}))

	return coretelegram.RunOptions{
		Config:      a.cfg.CoreConfig(),
		Registry:    reg,
		Middlewares: coretelegram.DefaultMiddlewares(a.cfg.CoreConfig(), nil),
		Routes:      routes,
		OnStart: func(_ context.Context, rt coretelegram.Runtime) error {
			a.courier.attach(rt.Bot)
			return nil
		},
		OnStop: func(_ context.Context, _ coretelegram.Runtime) error {
			a.engine.Close()
			return nil
		},
	}, nil
}

// UnknownText replies to messages that match neither a dialog nor a command.
func (a *App) UnknownText() tele.HandlerFunc {
	return func(c tele.Context) error {
		return c.Send(notUnderstoodText)
	}
}

// UnknownDocument ignores stray documents outside any dialog.
func (a *App) UnknownDocument() tele.HandlerFunc {
	return func(c tele.Context) error {
		return c.Send(notUnderstoodText)
	}
}

// UnknownCallback answers button presses whose key is no longer wired.
func (a *App) UnknownCallback() tele.HandlerFunc {
	return func(c tele.Context) error {
		return c.Respond(&tele.CallbackResponse{Text: "Unsupported action"})
	}
}
