package linkcmd

import (
	"context"
	"strconv"

	"linkbot/internal/link"
	kit "linkbot/internal/transport"
)

// Directory resolves chat ids (Telegram user ids in decimal) through a
// transport.UserDirectory. It implements link.ChatDirectory.
type Directory struct {
	Users kit.UserDirectory
}

func (d Directory) LookupUser(ctx context.Context, chatID string) (link.ChatUser, bool) {
	if d.Users == nil {
		return link.ChatUser{}, false
	}
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return link.ChatUser{}, false
	}
	u, err := d.Users.LookupUser(ctx, id)
	if err != nil {
		return link.ChatUser{}, false
	}
	return link.ChatUser{ID: chatID, Name: u.DisplayName(), Mention: u.Mention()}, true
}
