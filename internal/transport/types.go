// Package transport holds the adapter-neutral chat types.
package transport

import (
	"context"
	"strconv"
	"strings"
)

type UpdateKind string

const UpdateMessage UpdateKind = "message"

type Update struct {
	Kind    UpdateKind
	Message *Message
}

type Message struct {
	ID           int
	ChatID       int64
	ThreadID     int // forum topic (0 if none)
	FromID       int64
	FromUsername string
	FromName     string
	Text         string
	IsGroup      bool
	IsPrivate    bool
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

// ParseChatTarget reads "chat_id" or "chat_id:thread_id".
func ParseChatTarget(s string) (ChatTarget, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ChatTarget{}, false
	}
	chat, thread, _ := strings.Cut(s, ":")
	id, err := strconv.ParseInt(strings.TrimSpace(chat), 10, 64)
	if err != nil || id == 0 {
		return ChatTarget{}, false
	}
	t := ChatTarget{ChatID: id}
	if thread != "" {
		n, err := strconv.Atoi(strings.TrimSpace(thread))
		if err != nil {
			return ChatTarget{}, false
		}
		t.ThreadID = n
	}
	return t, true
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode        string
	DisablePreview   bool
	ReplyToMessageID int
}

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}

// User is a chat account's public profile.
type User struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
}

// DisplayName is "First Last", falling back to the username.
func (u User) DisplayName() string {
	name := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
	if name == "" {
		name = u.Username
	}
	return name
}

// Mention is "@username" when the user has one, otherwise the display name.
func (u User) Mention() string {
	if u.Username != "" {
		return "@" + u.Username
	}
	return u.DisplayName()
}

// UserDirectory resolves user ids to profiles.
type UserDirectory interface {
	LookupUser(ctx context.Context, userID int64) (User, error)
}

type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is implemented by adapters that can publish the command
// list to the client UI.
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
