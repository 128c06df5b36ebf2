package link

import "strings"

// Messages holds the chat/game replies of the redemption flow.
// Placeholders are written as %name% and substituted literally.
type Messages struct {
	// %username% %uuid% %mention%
	AlreadyLinked string `json:"already_linked,omitempty"`
	// %java_username% %java_uuid% %bedrock_username% %bedrock_uuid% %mention%
	AlreadyLinkedDual string `json:"already_linked_dual,omitempty"`
	// %name% %displayname% %uuid% %mention%
	ChatAccountLinked string `json:"chat_account_linked,omitempty"`
	// Sent in game. %username% %id%
	GameAccountLinked string `json:"game_account_linked,omitempty"`
	// %code% %mention%
	UnknownCode string `json:"unknown_code,omitempty"`
	// %code% %mention%
	InvalidCode string `json:"invalid_code,omitempty"`
}

const unknownName = "<Unknown>"

func DefaultMessages() Messages {
	return Messages{
		AlreadyLinked:     "%mention% your account is already linked to %username% (%uuid%).",
		AlreadyLinkedDual: "%mention% your account is already linked to Java %java_username% (%java_uuid%) and Bedrock %bedrock_username% (%bedrock_uuid%).",
		ChatAccountLinked: "%mention% your account is now linked to %name% (%uuid%).",
		GameAccountLinked: "Your game account is now linked to Telegram user %username% (%id%).",
		UnknownCode:       "%mention% I don't know the code %code%. Run the link command in game to get a fresh one.",
		InvalidCode:       "%mention% \"%code%\" is not a linking code. Codes are 4 digits.",
	}
}

// WithDefaults fills empty templates from DefaultMessages.
func (m Messages) WithDefaults() Messages {
	d := DefaultMessages()
	fill := func(dst *string, def string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = def
		}
	}
	fill(&m.AlreadyLinked, d.AlreadyLinked)
	fill(&m.AlreadyLinkedDual, d.AlreadyLinkedDual)
	fill(&m.ChatAccountLinked, d.ChatAccountLinked)
	fill(&m.GameAccountLinked, d.GameAccountLinked)
	fill(&m.UnknownCode, d.UnknownCode)
	fill(&m.InvalidCode, d.InvalidCode)
	return m
}

// render substitutes "%key%" placeholders. kv holds key/value pairs without
// the percent signs.
func render(tmpl string, kv ...string) string {
	pairs := make([]string, 0, len(kv))
	for i := 0; i+1 < len(kv); i += 2 {
		pairs = append(pairs, "%"+kv[i]+"%", kv[i+1])
	}
	return strings.TrimSpace(strings.NewReplacer(pairs...).Replace(tmpl))
}
