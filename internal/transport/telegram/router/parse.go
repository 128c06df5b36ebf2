package router

import (
	"math/rand/v2"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

var ridSeq atomic.Uint64

// newReqID is base36(unix nanos)-base36(seq) plus two random characters.
func newReqID() string {
	const alpha = "abcdefghijklmnopqrstuvwxyz0123456789"
	n := ridSeq.Add(1)
	suffix := []byte{alpha[rand.IntN(len(alpha))], alpha[rand.IntN(len(alpha))]}
	return strconv.FormatInt(time.Now().UnixNano(), 36) + "-" + strconv.FormatUint(n, 36) + string(suffix)
}

// tokenizeCommandLine splits on whitespace, honouring '...' and "..." quotes
// and backslash escapes:
//
//	/lookup "some name" 1234
func tokenizeCommandLine(s string) []string {
	var (
		out     []string
		buf     strings.Builder
		quote   byte
		escaped bool
		started bool
	)
	flush := func() {
		if started {
			out = append(out, buf.String())
			buf.Reset()
			started = false
		}
	}
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case escaped:
			buf.WriteByte(ch)
			escaped = false
		case ch == '\\':
			escaped, started = true, true
		case quote != 0:
			if ch == quote {
				quote = 0
			} else {
				buf.WriteByte(ch)
			}
		case ch == '"' || ch == '\'':
			quote, started = ch, true
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			flush()
		default:
			buf.WriteByte(ch)
			started = true
		}
	}
	flush()
	return out
}

// commandWord extracts the lowercased command name from "/name@bot", or ""
// when tok is not a command.
func commandWord(tok string) string {
	if !strings.HasPrefix(tok, "/") {
		return ""
	}
	word := tok[1:]
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	return strings.ToLower(word)
}

// argText is the raw text after the command token.
func argText(text string) string {
	text = strings.TrimSpace(text)
	i := strings.IndexAny(text, " \t\n")
	if i < 0 {
		return ""
	}
	return strings.TrimSpace(text[i+1:])
}
