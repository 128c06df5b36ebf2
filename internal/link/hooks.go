package link

// Hooks receives link lifecycle notifications.
//
// Calls are fire-and-forget and happen outside the table lock, in the goroutine
// that performed the change. Mutations are serialised while hooks run, so a hook
// may query the registry but must not Link or Unlink synchronously.
type Hooks interface {
	BeforeUnlink(id GameID, chatID string)
	AfterLink(chatID string, id GameID)
	AfterUnlink(id GameID, chatID string)
}

// HookFuncs adapts plain functions to Hooks. Nil fields are skipped.
type HookFuncs struct {
	OnBeforeUnlink func(id GameID, chatID string)
	OnAfterLink    func(chatID string, id GameID)
	OnAfterUnlink  func(id GameID, chatID string)
}

func (h HookFuncs) BeforeUnlink(id GameID, chatID string) {
	if h.OnBeforeUnlink != nil {
		h.OnBeforeUnlink(id, chatID)
	}
}

func (h HookFuncs) AfterLink(chatID string, id GameID) {
	if h.OnAfterLink != nil {
		h.OnAfterLink(chatID, id)
	}
}

func (h HookFuncs) AfterUnlink(id GameID, chatID string) {
	if h.OnAfterUnlink != nil {
		h.OnAfterUnlink(id, chatID)
	}
}

// MultiHooks delivers each notification to every member in order.
type MultiHooks []Hooks

func (m MultiHooks) BeforeUnlink(id GameID, chatID string) {
	for _, h := range m {
		if h != nil {
			h.BeforeUnlink(id, chatID)
		}
	}
}

func (m MultiHooks) AfterLink(chatID string, id GameID) {
	for _, h := range m {
		if h != nil {
			h.AfterLink(chatID, id)
		}
	}
}

func (m MultiHooks) AfterUnlink(id GameID, chatID string) {
	for _, h := range m {
		if h != nil {
			h.AfterUnlink(id, chatID)
		}
	}
}

type nopHooks struct{}

func (nopHooks) BeforeUnlink(GameID, string) {}
func (nopHooks) AfterLink(string, GameID)    {}
func (nopHooks) AfterUnlink(GameID, string)  {}
