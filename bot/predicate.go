package bot

import (
	"context"
	"strings"

	t "github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"
)

// command matches /name and /name@bot, but not commands addressed to other
// bots in the same group.
func (b *Bot) command(name string) th.Predicate {
	return func(_ context.Context, update t.Update) bool {
		if update.Message == nil {
			return false
		}

		return b.isCommandForMe(update.Message.Text, name)
	}
}

func (b *Bot) isCommandForMe(text string, name string) bool {
	matches := th.CommandRegexp.FindStringSubmatch(text)
	if len(matches) != th.CommandMatchGroupsLen {
		return false
	}

	if !strings.EqualFold(matches[th.CommandMatchCmdGroup], name) {
		return false
	}

	addressedUsername := matches[th.CommandMatchBotUsernameGroup]
	if addressedUsername == "" {
		return true
	}

	if b.me.Username == "" {
		return false
	}

	return strings.EqualFold(addressedUsername, b.me.Username)
}
