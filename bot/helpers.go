package bot

import (
	"bytes"
	"context"
	"log/slog"
	"slices"

	"github.com/gabriel-vasile/mimetype"
	"github.com/getsentry/sentry-go"
	t "github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

func (b *Bot) reply(originalMessage t.Message, newMessage *t.SendMessageParams) *t.SendMessageParams {
	return newMessage.WithReplyParameters(&t.ReplyParameters{
		MessageID: originalMessage.MessageID,
	})
}

func (b *Bot) replyPhoto(originalMessage t.Message, photo *t.SendPhotoParams) *t.SendPhotoParams {
	return photo.WithReplyParameters(&t.ReplyParameters{
		MessageID: originalMessage.MessageID,
	})
}

func (b *Bot) sendChatAction(ctx context.Context, chatId t.ChatID, action string) {
	slog.Debug("bot: Setting chat action", "action", action)

	err := b.api.SendChatAction(ctx, tu.ChatAction(chatId, action))
	if err != nil {
		slog.Error("bot: Cannot set chat action", "error", err)
		sentry.CaptureException(err)
	}
}

func (b *Bot) sendText(ctx context.Context, message t.Message, text string) {
	_, err := b.api.SendMessage(ctx, b.reply(message, tu.Message(
		tu.ID(message.Chat.ID),
		text,
	)))
	if err != nil {
		slog.Error("bot: Cannot send a message", "error", err)
		sentry.CaptureException(err)
	}
}

// sendPhoto replies with img, reusing the Telegram file ID of an earlier
// upload of the same bytes when there is one.
func (b *Bot) sendPhoto(ctx context.Context, message t.Message, img []byte) error {
	chatID := tu.ID(message.Chat.ID)
	key := photoKey(img)

	if fileID, ok := b.photos.Get(key); ok {
		_, err := b.api.SendPhoto(ctx, b.replyPhoto(message, tu.Photo(chatID, tu.FileFromID(fileID))))
		if err == nil {
			slog.Debug("bot: Photo sent by file ID", "file_id", fileID)

			return nil
		}

		slog.Warn("bot: Telegram rejected cached file ID, uploading again", "file_id", fileID, "error", err)
		b.photos.Delete(key)
	}

	name := "image" + mimetype.Detect(img).Extension()

	sent, err := b.api.SendPhoto(ctx, b.replyPhoto(message, tu.Photo(
		chatID,
		tu.File(tu.NameReader(bytes.NewReader(img), name)),
	)))
	if err != nil {
		return err
	}

	// the last size is the largest one
	if sent != nil && len(sent.Photo) > 0 {
		b.photos.Set(key, sent.Photo[len(sent.Photo)-1].FileID)
	}

	return nil
}

func (b *Bot) isFromAdmin(message *t.Message) bool {
	if message == nil || message.From == nil {
		return false
	}

	return slices.Contains(b.cfg.AdminIDs, message.From.ID)
}
