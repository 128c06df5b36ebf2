package link

import (
	"context"

	logx "linkbot/pkg/logx"
)

// CodeSource is the table of pending linking codes issued by the game server.
type CodeSource interface {
	Lookup(code string) (GameID, bool)
	// Consume removes the code; ok is false if it was already gone.
	Consume(code string) (GameID, bool)
}

// ChatUser is a chat account as shown in replies.
type ChatUser struct {
	ID      string
	Name    string
	Mention string
}

// ChatDirectory resolves chat identities to display data.
type ChatDirectory interface {
	LookupUser(ctx context.Context, chatID string) (ChatUser, bool)
}

// Profile is how a game identity is displayed.
type Profile struct {
	Name        string
	DisplayName string
}

// Clients exposes the game-side view of identities.
type Clients interface {
	Profile(id GameID) (Profile, bool)
	IsConnected(id GameID) bool
	Notify(id GameID, text string) error
}

// Linker is the subset of Registry used by the redemption flow.
type Linker interface {
	GameIDFor(chatID string) (GameID, bool)
	GameIDsFor(chatID string) (Record, bool)
	Link(chatID string, id GameID) error
	UnlinkChat(chatID string)
}

// RedeemerConfig wires a Redeemer. Users and Clients are optional.
type RedeemerConfig struct {
	Links   Linker
	Codes   CodeSource
	Users   ChatDirectory
	Clients Clients

	// AllowRelink reports whether a linked chat user may redeem a new code,
	// replacing the current link. Read on every call so it can hot-reload.
	AllowRelink func() bool
	// Messages returns the current templates. Nil means DefaultMessages.
	Messages func() Messages
}

// Redeemer turns linking codes typed in chat into links.
type Redeemer struct {
	cfg RedeemerConfig
	log logx.Logger
}

func NewRedeemer(cfg RedeemerConfig, log logx.Logger) *Redeemer {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Redeemer{cfg: cfg, log: log}
}

// Process redeems code for chatID and returns the reply to show in chat.
func (r *Redeemer) Process(ctx context.Context, code, chatID string) string {
	msgs := r.messages()
	user := r.lookupUser(ctx, chatID)

	if rec, linked := r.cfg.Links.GameIDsFor(chatID); linked {
		if r.cfg.AllowRelink == nil || !r.cfg.AllowRelink() {
			return r.alreadyLinked(msgs, rec, user)
		}
		r.cfg.Links.UnlinkChat(chatID)
	}

	code = DigitsOnly(code)

	if _, ok := r.cfg.Codes.Lookup(code); ok {
		if id, ok := r.cfg.Codes.Consume(code); ok {
			return r.complete(msgs, id, chatID, user)
		}
	}

	tmpl := msgs.InvalidCode
	if len(code) == 4 {
		tmpl = msgs.UnknownCode
	}
	return render(tmpl, "code", code, "mention", user.Mention)
}

func (r *Redeemer) complete(msgs Messages, id GameID, chatID string, user ChatUser) string {
	if err := r.cfg.Links.Link(chatID, id); err != nil {
		r.log.Error("link after code redemption failed", logx.String("chat_id", chatID), logx.Err(err))
		return render(msgs.InvalidCode, "code", "", "mention", user.Mention)
	}
	r.log.Info("account linked by code",
		logx.String("chat_id", chatID),
		logx.String("game_id", id.String()),
		logx.String("kind", id.Kind().String()),
	)

	if cl := r.cfg.Clients; cl != nil && cl.IsConnected(id) {
		text := render(msgs.GameAccountLinked, "username", user.Name, "id", user.ID)
		if err := cl.Notify(id, text); err != nil {
			r.log.Warn("in-game link notice failed", logx.String("game_id", id.String()), logx.Err(err))
		}
	}

	shown := id
	if primary, ok := r.cfg.Links.GameIDFor(chatID); ok {
		shown = primary
	}
	p := r.profile(id)
	return render(msgs.ChatAccountLinked,
		"name", p.Name,
		"displayname", p.DisplayName,
		"uuid", shown.String(),
		"mention", user.Mention,
	)
}

func (r *Redeemer) alreadyLinked(msgs Messages, rec Record, user ChatUser) string {
	if !rec.IsDual() {
		id := rec.Primary()
		return render(msgs.AlreadyLinked,
			"username", r.profile(id).Name,
			"uuid", id.String(),
			"mention", user.Mention,
		)
	}
	j, _ := rec.Java()
	b, _ := rec.Bedrock()
	return render(msgs.AlreadyLinkedDual,
		"java_username", r.profile(j).Name,
		"java_uuid", j.String(),
		"bedrock_username", r.profile(b).Name,
		"bedrock_uuid", b.String(),
		"mention", user.Mention,
	)
}

func (r *Redeemer) lookupUser(ctx context.Context, chatID string) ChatUser {
	if r.cfg.Users != nil {
		if u, ok := r.cfg.Users.LookupUser(ctx, chatID); ok {
			return u
		}
	}
	return ChatUser{ID: chatID}
}

func (r *Redeemer) profile(id GameID) Profile {
	var p Profile
	if r.cfg.Clients != nil {
		p, _ = r.cfg.Clients.Profile(id)
	}
	if p.Name == "" {
		p.Name = unknownName
	}
	if p.DisplayName == "" {
		p.DisplayName = p.Name
	}
	return p
}

func (r *Redeemer) messages() Messages {
	if r.cfg.Messages == nil {
		return DefaultMessages()
	}
	return r.cfg.Messages().WithDefaults()
}

// DigitsOnly strips every character that is not an ASCII digit.
func DigitsOnly(s string) string {
	b := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if c := s[i]; c >= '0' && c <= '9' {
			b = append(b, c)
		}
	}
	return string(b)
}
