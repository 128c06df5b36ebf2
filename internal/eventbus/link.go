package eventbus

import "linkbot/internal/link"

const (
	TypeLinked   = "link.linked"
	TypeUnlinked = "link.unlinked"
)

// LinkChange is the Data of link.linked and link.unlinked events.
type LinkChange struct {
	ChatID string
	GameID link.GameID
}

// LinkHooks publishes registry changes on b.
func LinkHooks(b Bus) link.Hooks {
	return link.HookFuncs{
		OnAfterLink: func(chatID string, id link.GameID) {
			b.Publish(Event{Type: TypeLinked, Data: LinkChange{ChatID: chatID, GameID: id}})
		},
		OnAfterUnlink: func(id link.GameID, chatID string) {
			b.Publish(Event{Type: TypeUnlinked, Data: LinkChange{ChatID: chatID, GameID: id}})
		},
	}
}
