package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"telegram-image-reply-bot/imgcache"
	"telegram-image-reply-bot/imgsource"
	"telegram-image-reply-bot/stats"

	"github.com/getsentry/sentry-go"
	t "github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"
	tu "github.com/mymmrac/telego/telegoutil"
)

var (
	ErrGetMe          = errors.New("cannot retrieve api user")
	ErrUpdatesChannel = errors.New("cannot get updates channel")
	ErrHandlerInit    = errors.New("cannot initialize handler")
)

// ImageSource hands out cached images and refreshes the cache on demand.
type ImageSource interface {
	GetImage(ctx context.Context) ([]byte, error)
	Refresh(ctx context.Context) (imgsource.RefreshResult, error)
}

type Decider interface {
	ShouldRespond(text string) bool
}

type CacheStats interface {
	Stats() imgcache.Stats
}

type Config struct {
	AdminIDs []int64
}

type Bot struct {
	api     *t.Bot
	source  ImageSource
	decider Decider
	cache   CacheStats
	stats   *stats.Stats
	photos  *PhotoCache
	cfg     Config
	me      botInfo
}

func NewBot(
	api *t.Bot,
	source ImageSource,
	decider Decider,
	cache CacheStats,
	st *stats.Stats,
	cfg Config,
) *Bot {
	return &Bot{
		api:     api,
		source:  source,
		decider: decider,
		cache:   cache,
		stats:   st,
		photos:  NewPhotoCache(),
		cfg:     cfg,
	}
}

// Run polls Telegram for updates until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	botUser, err := b.api.GetMe(ctx)
	if err != nil {
		slog.Error("bot: Cannot retrieve api user", "error", err)
		sentry.CaptureException(err)

		return errors.Join(ErrGetMe, err)
	}

	slog.Info("bot: Running api as", "id", botUser.ID, "username", botUser.Username, "name", botUser.FirstName, "is_bot", botUser.IsBot)
	sentry.AddBreadcrumb(&sentry.Breadcrumb{
		Category: "telegram-api",
		Message:  "Bot ID: " + strconv.FormatInt(botUser.ID, 10),
		Level:    sentry.LevelInfo,
	})

	b.me = botInfoFromUser(botUser)

	if !b.me.CanReadAllGroupMessages {
		slog.Warn("bot: Privacy mode is enabled, group messages without commands will not be seen")
	}

	updates, err := b.api.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		slog.Error("bot: Cannot get update channel", "error", err)
		sentry.CaptureException(err)

		return errors.Join(ErrUpdatesChannel, err)
	}

	bh, err := th.NewBotHandler(b.api, updates)
	if err != nil {
		slog.Error("bot: Cannot initialize bot handler", "error", err)
		sentry.CaptureException(err)

		return errors.Join(ErrHandlerInit, err)
	}

	defer func() { _ = bh.Stop() }()

	// Middlewares
	bh.Use(b.chatTypeStatsCounter)

	// Command handlers
	bh.Handle(b.startHandler, b.command("start"))
	bh.Handle(b.helpHandler, b.command("help"))
	bh.Handle(b.statsHandler, b.command("stats"))
	bh.Handle(b.refreshHandler, b.command("refresh"))
	bh.Handle(b.textMessageHandler, th.AnyMessageWithText())

	return bh.Start()
}

func (b *Bot) textMessageHandler(ctx *th.Context, update t.Update) error {
	slog.Debug("bot: /any-message")

	b.handleText(ctx, *update.Message)

	return nil
}

// handleText replies to message with a cached image when the decider agrees.
// Failures are only logged, the chat never sees them.
func (b *Bot) handleText(ctx context.Context, message t.Message) {
	if !b.decider.ShouldRespond(message.Text) {
		return
	}

	b.stats.MatchedMessage()

	slog.Info("bot: Message matched, replying with an image", "chat", message.Chat.ID, "message", message.MessageID)

	b.sendChatAction(ctx, tu.ID(message.Chat.ID), t.ChatActionUploadPhoto)

	img, err := b.source.GetImage(ctx)
	if err != nil {
		slog.Error("bot: Cannot get an image", "error", err)
		sentry.CaptureException(err)
		b.stats.ImageFailure()

		return
	}

	if err := b.sendPhoto(ctx, message, img); err != nil {
		slog.Error("bot: Cannot send image reply", "error", err)
		sentry.CaptureException(err)
		b.stats.ImageFailure()

		return
	}

	b.stats.ImageSent()
}

func (b *Bot) startHandler(ctx *th.Context, update t.Update) error {
	slog.Info("bot: /start")

	b.sendText(ctx, *update.Message,
		"Hey!\r\n"+
			"Check out /help to learn how to use this bot.",
	)

	return nil
}

func (b *Bot) helpHandler(ctx *th.Context, update t.Update) error {
	slog.Info("bot: /help")

	b.sendText(ctx, *update.Message,
		"Instructions:\r\n"+
			"/stats - Show bot and image cache stats\r\n"+
			"/refresh - Refresh the image cache now (admins only)\r\n"+
			"/help - Show this help\r\n\r\n"+
			"Talk about the New Year flat and the bot may answer with a picture",
	)

	return nil
}

func (b *Bot) statsHandler(ctx *th.Context, update t.Update) error {
	slog.Info("bot: /stats")

	message := *update.Message

	b.sendChatAction(ctx, tu.ID(message.Chat.ID), t.ChatActionTyping)

	_, err := b.api.SendMessage(ctx, b.reply(message, tu.Message(
		tu.ID(message.Chat.ID),
		"Current bot stats:\r\n"+
			"```json\r\n"+
			b.statsReport()+"\r\n"+
			"```",
	)).WithParseMode(t.ModeMarkdown))
	if err != nil {
		slog.Error("bot: Cannot send a message", "error", err)
		sentry.CaptureException(err)
	}

	return nil
}

func (b *Bot) refreshHandler(ctx *th.Context, update t.Update) error {
	b.handleRefresh(ctx, *update.Message)

	return nil
}

func (b *Bot) handleRefresh(ctx context.Context, message t.Message) {
	if !b.isFromAdmin(&message) {
		slog.Info("bot: /refresh denied", "chat", message.Chat.ID)
		b.sendText(ctx, message, "Only bot admins can refresh the image cache.")

		return
	}

	slog.Info("bot: /refresh", "chat", message.Chat.ID)

	b.sendChatAction(ctx, tu.ID(message.Chat.ID), t.ChatActionTyping)

	result, err := b.source.Refresh(ctx)
	switch {
	case errors.Is(err, imgsource.ErrRefreshInProgress):
		b.sendText(ctx, message, "A refresh is already running, try again later.")
	case err != nil:
		slog.Error("bot: Refresh requested by admin failed", "error", err)
		sentry.CaptureException(err)

		b.sendText(ctx, message, "Refresh failed: "+err.Error())
	default:
		b.sendText(ctx, message, formatRefreshResult(result))
	}
}

func formatRefreshResult(result imgsource.RefreshResult) string {
	return fmt.Sprintf(
		"Refresh finished.\r\nCandidates: %d\r\nAdded: %d\r\nDuplicates: %d\r\nFailed: %d",
		result.Candidates, result.Added, result.Duplicates, result.Failed,
	)
}

type statsPayload struct {
	Bot   stats.Snapshot `json:"bot"`
	Cache imgcache.Stats `json:"cache"`
}

func (b *Bot) statsReport() string {
	data, err := json.MarshalIndent(statsPayload{
		Bot:   b.stats.Snapshot(),
		Cache: b.cache.Stats(),
	}, "", "  ")
	if err != nil {
		sentry.CaptureException(err)

		return "{\"error\": \"cannot serialize stats\"}"
	}

	return string(data)
}
