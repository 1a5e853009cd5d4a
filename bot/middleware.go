package bot

import (
	"log/slog"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"
)

func (b *Bot) chatTypeStatsCounter(ctx *th.Context, update telego.Update) error {
	message := update.Message

	if message == nil {
		slog.Debug("chat-type-middleware: update has no message. skipping.")

		return ctx.Next(update)
	}

	slog.Debug("chat-type-middleware: counting message chat type in stats", "type", message.Chat.Type)

	b.countChatType(message.Chat.Type)

	return ctx.Next(update)
}

func (b *Bot) countChatType(chatType string) {
	switch chatType {
	case telego.ChatTypeGroup, telego.ChatTypeSupergroup:
		b.stats.GroupRequest()
	case telego.ChatTypePrivate:
		b.stats.PrivateRequest()
	}
}
