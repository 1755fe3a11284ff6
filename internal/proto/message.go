package proto

import (
	"fmt"
	"strings"
)

// Primary keywords, matched case-sensitively against the first token.
const (
	KeywordAck     = "OK"
	KeywordPing    = "PING"
	KeywordServer  = "SERVER"
	KeywordChannel = "CHANNEL"
	KeywordUser    = "USER"
)

// Kind identifies a resolved (primary, secondary) keyword pair.
type Kind int

const (
	// KindAck is the acknowledgement marker; it is ignored.
	KindAck Kind = iota
	// KindPing asks for a keepalive reply.
	KindPing
	// KindServerInfo carries informational text, sometimes a channel topic.
	KindServerInfo
	KindServerTopic
	KindServerUpdate
	KindServerError
	KindServerBroadcast
	// KindChannelJoin announces that we entered a channel.
	KindChannelJoin
	// KindUserIn lists a user already present when we joined.
	KindUserIn
	KindUserUpdate
	KindUserJoin
	KindUserLeave
	KindUserTalk
	KindUserWhisper
)

var kindNames = map[Kind]string{
	KindAck:             "OK",
	KindPing:            "PING",
	KindServerInfo:      "SERVER INFO",
	KindServerTopic:     "SERVER TOPIC",
	KindServerUpdate:    "SERVER UPDATE",
	KindServerError:     "SERVER ERROR",
	KindServerBroadcast: "SERVER BROADCAST",
	KindChannelJoin:     "CHANNEL JOIN",
	KindUserIn:          "USER IN",
	KindUserUpdate:      "USER UPDATE",
	KindUserJoin:        "USER JOIN",
	KindUserLeave:       "USER LEAVE",
	KindUserTalk:        "USER TALK",
	KindUserWhisper:     "USER WHISPER",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// IsPresence reports whether messages of this kind feed the roster batcher.
func (k Kind) IsPresence() bool {
	switch k {
	case KindUserIn, KindUserUpdate, KindUserJoin, KindUserLeave:
		return true
	default:
		return false
	}
}

// route is one entry of the primary table: either a direct kind or a
// secondary table keyed by the second token.
type route struct {
	kind Kind
	sub  map[string]Kind
}

var routes = map[string]route{
	KeywordAck:  {kind: KindAck},
	KeywordPing: {kind: KindPing},
	KeywordServer: {sub: map[string]Kind{
		"INFO":      KindServerInfo,
		"TOPIC":     KindServerTopic,
		"UPDATE":    KindServerUpdate,
		"ERROR":     KindServerError,
		"BROADCAST": KindServerBroadcast,
	}},
	KeywordChannel: {sub: map[string]Kind{
		"JOIN": KindChannelJoin,
	}},
	KeywordUser: {sub: map[string]Kind{
		"IN":      KindUserIn,
		"UPDATE":  KindUserUpdate,
		"JOIN":    KindUserJoin,
		"LEAVE":   KindUserLeave,
		"TALK":    KindUserTalk,
		"WHISPER": KindUserWhisper,
	}},
}

// UnknownKeywordError is returned by Classify when a line cannot be routed.
// Secondary is empty for an unknown primary keyword.
type UnknownKeywordError struct {
	Primary   string
	Secondary string
	nested    bool
}

func (e *UnknownKeywordError) Error() string {
	if e.nested {
		return fmt.Sprintf("Unknown submsg_type: %s for msg_type: %s", e.Secondary, e.Primary)
	}
	return fmt.Sprintf("Unknown msg_type: %s", e.Primary)
}

// Tokenize splits a line on runs of whitespace.
func Tokenize(line string) []string {
	return strings.Fields(line)
}

// Classify resolves the kind of a tokenized line using the two-level keyword
// table. tokens must not be empty.
func Classify(tokens []string) (Kind, error) {
	primary := tokens[0]
	r, ok := routes[primary]
	if !ok {
		return 0, &UnknownKeywordError{Primary: primary}
	}
	if r.sub == nil {
		return r.kind, nil
	}

	var secondary string
	if len(tokens) > 1 {
		secondary = tokens[1]
	}
	kind, ok := r.sub[secondary]
	if !ok {
		return 0, &UnknownKeywordError{Primary: primary, Secondary: secondary, nested: true}
	}
	return kind, nil
}

// JoinFrom joins tokens[from:] with single spaces. It returns "" when from is
// past the end.
func JoinFrom(tokens []string, from int) string {
	if from >= len(tokens) {
		return ""
	}
	return strings.Join(tokens[from:], " ")
}
