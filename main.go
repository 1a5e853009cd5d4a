package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"telegram-image-reply-bot/bot"
	"telegram-image-reply-bot/config"
	"telegram-image-reply-bot/decider"
	"telegram-image-reply-bot/httpapi"
	"telegram-image-reply-bot/imgcache"
	"telegram-image-reply-bot/imgsource"
	"telegram-image-reply-bot/stats"
	"telegram-image-reply-bot/telemetry"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	tg "github.com/mymmrac/telego"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Running bot finished with an error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	level, _ := cfg.Log.SlogLevel()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: cfg.Sentry.Environment,
		}); err != nil {
			slog.Error("main: Cannot initialize Sentry", "error", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.Endpoint)
	if err != nil {
		slog.Error("main: Cannot set up tracing", "error", err)
		sentry.CaptureException(err)

		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			slog.Error("main: Cannot flush traces", "error", err)
		}
	}()

	cache := imgcache.New(cfg.Cache.Dir, imgcache.WithMaxAge(cfg.Cache.MaxAge))
	if err := cache.Init(ctx); err != nil {
		slog.Error("main: Cannot initialize image cache", "dir", cfg.Cache.Dir, "error", err)
		sentry.CaptureException(err)

		return err
	}

	dec, err := decider.New(decider.Config{
		Pattern:        cfg.Decider.Pattern,
		Month:          cfg.Decider.Month,
		MinProbability: cfg.Decider.MinProbability,
	})
	if err != nil {
		return err
	}

	extract, err := imgsource.ExtractorByName(cfg.Search.Extractor)
	if err != nil {
		return err
	}

	botStats := stats.NewStats()

	fetcher := imgsource.NewHTTPFetcher(imgsource.FetcherConfig{
		SearchURL: cfg.Search.URL,
		Timeout:   cfg.Search.Timeout,
		Retries:   cfg.Search.Retries,
		UserAgent: cfg.Search.UserAgent,
		MaxBytes:  cfg.Search.MaxBytes,
	})

	source := imgsource.New(cache, fetcher,
		imgsource.WithExtractor(extract),
		imgsource.WithRateLimit(cfg.Cache.RateLimit),
		imgsource.WithConcurrency(cfg.Search.Concurrency),
		imgsource.WithRefreshObserver(func(result imgsource.RefreshResult, err error) {
			botStats.RefreshFinished(result.Added, err)
		}),
	)

	api, err := tg.NewBot(cfg.Bot.Token, tg.WithLogger(bot.NewLogger("telego: ", cfg.Bot.Token)))
	if err != nil {
		slog.Error("main: Cannot create Telegram client", "error", err)

		return err
	}

	botService := bot.NewBot(api, source, dec, cache, botStats, bot.Config{
		AdminIDs: cfg.Bot.AdminIDs,
	})

	g, gctx := errgroup.WithContext(ctx)

	if cfg.HTTP.Addr != "" {
		gin.SetMode(gin.ReleaseMode)
		server := httpapi.New(cfg.HTTP.Addr, source, cache, botStats)

		g.Go(func() error {
			return server.Run(gctx)
		})
	}

	g.Go(func() error {
		return botService.Run(gctx)
	})

	return g.Wait()
}
