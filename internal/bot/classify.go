package bot

import (
	"regexp"
	"strings"

	"github.com/zulandar/rollcall/internal/geo"
)

// Kind classifies an inbound message.
type Kind int

const (
	KindText Kind = iota
	KindCancel
	KindCheckin
	KindLocation
	KindCommand
)

func (k Kind) String() string {
	switch k {
	case KindCancel:
		return "cancel"
	case KindCheckin:
		return "checkin"
	case KindLocation:
		return "location"
	case KindCommand:
		return "command"
	}
	return "text"
}

// Command is an idle-state command keyword.
type Command string

const (
	CmdRegister Command = "register"
	CmdProfile  Command = "profile"
	CmdRecent   Command = "recent"
	CmdClasses  Command = "classes"
	CmdJoin     Command = "join"
	CmdLeave    Command = "leave"
	CmdUnbind   Command = "unbind"
	CmdHelp     Command = "help"
	CmdCancel   Command = "cancel"
)

var commands = map[Command]bool{
	CmdRegister: true,
	CmdProfile:  true,
	CmdRecent:   true,
	CmdClasses:  true,
	CmdJoin:     true,
	CmdLeave:    true,
	CmdUnbind:   true,
	CmdHelp:     true,
	CmdCancel:   true,
}

// Classified is an inbound message with its kind and payload.
type Classified struct {
	Kind     Kind
	Text     string // trimmed text with mentions removed
	Command  Command
	Prefixed bool // command written with a leading "!" or "/"
	Location *geo.Point
}

// mentionRe matches Slack and Discord user mentions: <@U123>, <@123>, <@!123>.
var mentionRe = regexp.MustCompile(`<@!?[A-Za-z0-9]+>`)

// StripMentions removes user mentions and surrounding whitespace.
func StripMentions(text string) string {
	return strings.TrimSpace(mentionRe.ReplaceAllString(text, ""))
}

// Classify determines what an inbound message is. Precedence: cancel,
// check-in code, location payload, command keyword, free text.
func Classify(msg InboundMessage) Classified {
	text := StripMentions(msg.Text)
	c := Classified{Kind: KindText, Text: text}

	word, prefixed := commandWord(text)
	switch {
	case word == CmdCancel:
		c.Kind = KindCancel
		c.Command = CmdCancel
		c.Prefixed = prefixed
	case looksLikeCheckinCode(text):
		c.Kind = KindCheckin
	case msg.Location != nil:
		loc := *msg.Location
		c.Kind = KindLocation
		c.Location = &loc
	case geo.LooksLikePoint(text):
		c.Kind = KindLocation
	case commands[word]:
		c.Kind = KindCommand
		c.Command = word
		c.Prefixed = prefixed
	}
	return c
}

// commandWord returns the lower-cased first word of a one-word message
// with any "!" or "/" prefix removed.
func commandWord(text string) (Command, bool) {
	fields := strings.Fields(text)
	if len(fields) != 1 {
		return "", false
	}
	w := fields[0]
	prefixed := strings.HasPrefix(w, "!") || strings.HasPrefix(w, "/")
	w = strings.TrimLeft(w, "!/")
	return Command(strings.ToLower(w)), prefixed
}
