package irc

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// RawTags is the key/value tag block of a protocol line. Values are kept
// verbatim; typed views are produced on demand by ParsePrivMsgTags and
// ParseClearMsgTags.
type RawTags map[string]string

// ErrDecode wraps all tag decode failures so callers can skip the event
// with errors.Is while still seeing which tag was at fault.
var ErrDecode = errors.New("tag decode")

// UserType mirrors Twitch's user-type tag values.
type UserType string

const (
	UserNormal    UserType = "normal"
	UserGlobalMod UserType = "global_mod"
	UserAdmin     UserType = "admin"
	UserStaff     UserType = "staff"
)

// PrivMsgTags is the typed view of a PRIVMSG tag block. Reply parent fields
// are nil when the message is not a reply; Twitch sends all four or none.
type PrivMsgTags struct {
	BadgeInfo              string
	Badges                 []string
	Admin                  bool
	Bits                   int
	Color                  string
	DisplayName            string
	Emotes                 string
	ID                     string
	Moderator              bool
	ReplyParentMsgID       *string
	ReplyParentUserLogin   *string
	ReplyParentDisplayName *string
	ReplyParentBody        *string
	RoomID                 int64
	Subscriber             bool
	TmiSentTS              string
	Turbo                  bool
	UserID                 int64
	UserType               UserType
	VIP                    bool
}

// ClearMsgTags is the typed view of a CLEARMSG tag block. RoomID is nil when
// the tag value is present but unparsable.
type ClearMsgTags struct {
	Login       string
	RoomID      *int64
	TargetMsgID string
	TmiSentTS   int64
}

// ParsePrivMsgTags decodes the tags required to persist a chat message.
// A missing or non-numeric required tag fails the decode; the top-level
// line parse is unaffected.
func ParsePrivMsgTags(tags RawTags) (*PrivMsgTags, error) {
	badgesRaw, ok := tags["badges"]
	if !ok {
		return nil, fmt.Errorf("%w: missing badges", ErrDecode)
	}
	badges := strings.Split(badgesRaw, ",")

	admin := false
	for _, b := range badges {
		if strings.Contains(b, "broadcaster/1") {
			admin = true
			break
		}
	}

	// bits is best-effort: absent or garbled means 0, never an error.
	bits := 0
	if v, ok := tags["bits"]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			bits = n
		}
	}

	color, ok := tags["color"]
	if !ok {
		return nil, fmt.Errorf("%w: missing color", ErrDecode)
	}
	displayName, ok := tags["display-name"]
	if !ok {
		return nil, fmt.Errorf("%w: missing display-name", ErrDecode)
	}
	id, ok := tags["id"]
	if !ok {
		return nil, fmt.Errorf("%w: missing id", ErrDecode)
	}
	mod, ok := tags["mod"]
	if !ok {
		return nil, fmt.Errorf("%w: missing mod", ErrDecode)
	}
	roomIDRaw, ok := tags["room-id"]
	if !ok {
		return nil, fmt.Errorf("%w: missing room-id", ErrDecode)
	}
	roomID, err := strconv.ParseInt(roomIDRaw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid room-id %q", ErrDecode, roomIDRaw)
	}
	subscriber, ok := tags["subscriber"]
	if !ok {
		return nil, fmt.Errorf("%w: missing subscriber", ErrDecode)
	}
	tmiSentTS, ok := tags["tmi-sent-ts"]
	if !ok {
		return nil, fmt.Errorf("%w: missing tmi-sent-ts", ErrDecode)
	}
	userIDRaw, ok := tags["user-id"]
	if !ok {
		return nil, fmt.Errorf("%w: missing user-id", ErrDecode)
	}
	userID, err := strconv.ParseInt(userIDRaw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid user-id %q", ErrDecode, userIDRaw)
	}

	userType := UserNormal
	switch tags["user-type"] {
	case "global_mod":
		userType = UserGlobalMod
	case "admin":
		userType = UserAdmin
	case "staff":
		userType = UserStaff
	}

	_, turbo := tags["turbo"]
	_, vip := tags["vip"]

	return &PrivMsgTags{
		BadgeInfo:              tags["badge-info"],
		Badges:                 badges,
		Admin:                  admin,
		Bits:                   bits,
		Color:                  color,
		DisplayName:            displayName,
		Emotes:                 tags["emotes"],
		ID:                     id,
		Moderator:              mod == "1",
		ReplyParentMsgID:       optional(tags, "reply-parent-msg-id"),
		ReplyParentUserLogin:   optional(tags, "reply-parent-user-login"),
		ReplyParentDisplayName: optional(tags, "reply-parent-display-name"),
		ReplyParentBody:        unescapeOptional(tags, "reply-parent-msg-body"),
		RoomID:                 roomID,
		Subscriber:             subscriber == "1",
		TmiSentTS:              tmiSentTS,
		Turbo:                  turbo,
		UserID:                 userID,
		UserType:               userType,
		VIP:                    vip,
	}, nil
}

// ParseClearMsgTags decodes the tags of a message-deletion event.
func ParseClearMsgTags(tags RawTags) (*ClearMsgTags, error) {
	login, ok := tags["login"]
	if !ok {
		return nil, fmt.Errorf("%w: missing login", ErrDecode)
	}
	roomIDRaw, ok := tags["room-id"]
	if !ok {
		return nil, fmt.Errorf("%w: missing room-id", ErrDecode)
	}
	// A garbled room id is tolerated (nil); the target msg id is the key.
	var roomID *int64
	if n, err := strconv.ParseInt(roomIDRaw, 10, 64); err == nil {
		roomID = &n
	}
	targetMsgID, ok := tags["target-msg-id"]
	if !ok {
		return nil, fmt.Errorf("%w: missing target-msg-id", ErrDecode)
	}
	tsRaw, ok := tags["tmi-sent-ts"]
	if !ok {
		return nil, fmt.Errorf("%w: missing tmi-sent-ts", ErrDecode)
	}
	ts, err := strconv.ParseInt(tsRaw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid tmi-sent-ts %q", ErrDecode, tsRaw)
	}

	return &ClearMsgTags{
		Login:       login,
		RoomID:      roomID,
		TargetMsgID: targetMsgID,
		TmiSentTS:   ts,
	}, nil
}

func optional(tags RawTags, key string) *string {
	if v, ok := tags[key]; ok {
		return &v
	}
	return nil
}

// unescapeOptional handles the IRCv3 escaped-space sequence in tag values.
func unescapeOptional(tags RawTags, key string) *string {
	if v, ok := tags[key]; ok {
		v = strings.ReplaceAll(v, `\s`, " ")
		return &v
	}
	return nil
}
