// Command echobot runs a long-polling bot that echoes every text message
// back to its chat. It wires the full stack: config, telemetry, the Bot API
// client, the polling listener, and the dispatcher.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"github.com/berkus/teloxide/botapi"
	"github.com/berkus/teloxide/config"
	"github.com/berkus/teloxide/core/dispatcher"
	"github.com/berkus/teloxide/core/listener"
	"github.com/berkus/teloxide/core/update"
	"github.com/berkus/teloxide/lib/observability"
	"github.com/berkus/teloxide/lib/telemetry"
)

const (
	botLoggerPrefix          = "echobot "
	telemetryShutdownTimeout = 5 * time.Second
)

func main() {
	cfgPath := parseFlags()
	ctx, cancel := newSignalContext()
	defer cancel()

	logger := newBotLogger()

	cfg, err := config.Load(ctx, cfgPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if cfg.Bot.Token == "" {
		logger.Fatal("bot token missing: set TELOXIDE_TOKEN or bot.token in the config file")
	}
	logger.Printf("configuration initialised: env=%s, endpoint=%s", cfg.Environment, cfg.Bot.APIEndpoint)

	observability.SetLogger(observability.NewSlogLogger(newStructuredLogger(cfg.Environment)))

	_, telemetryShutdown, err := telemetry.Init(ctx, cfg)
	if err != nil {
		logger.Fatalf("initialize telemetry: %v", err)
	}

	client := botapi.New(cfg.Bot.Token, botapi.WithSettings(cfg))

	me, err := client.GetMe(ctx)
	if err != nil {
		logger.Fatalf("credentials check: %v", err)
	}
	logger.Printf("authorized as @%s (id=%d)", me.Username, me.ID)

	poller := listener.Polling(client, listener.WithSettings(cfg.Polling))

	bot := dispatcher.New(dispatcher.WithWorkers(cfg.Dispatcher.Workers)).
		Handle(update.KindMessage, echoHandler(client)).
		Handle(update.KindEditedMessage, echoHandler(client))

	logger.Print("echobot started; awaiting updates")
	runErr := bot.Run(ctx, poller)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
	defer shutdownCancel()
	shutdownErr := telemetryShutdown(shutdownCtx)

	if err := observability.AggregateErrors("echobot run", []error{runErr, shutdownErr},
		observability.F("env", string(cfg.Environment)),
	); err != nil {
		logger.Fatal(err)
	}
	logger.Print("shutdown completed")
}

func parseFlags() string {
	cfgPath := flag.String("config", "", "Path to bot configuration file (default: environment only)")
	flag.Parse()
	return *cfgPath
}

func newSignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func newBotLogger() *log.Logger {
	return log.New(os.Stdout, botLoggerPrefix, log.LstdFlags|log.Lmicroseconds)
}

func newStructuredLogger(env config.Environment) *slog.Logger {
	level := slog.LevelInfo
	if env == config.EnvDev {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
}

func echoHandler(client *botapi.Client) dispatcher.HandlerFunc {
	return func(ctx context.Context, u *update.Update) error {
		msg := u.Message
		if msg == nil {
			msg = u.EditedMessage
		}
		if msg == nil || msg.Text == "" {
			return nil
		}
		_, err := client.SendMessage(ctx, botapi.SendMessageRequest{
			ChatID:           msg.Chat.ID,
			Text:             msg.Text,
			ReplyToMessageID: msg.ID,
		})
		return err
	}
}
