package irc

import (
	"errors"
	"testing"
)

const samplePrivMsg = "@badges=staff/1,broadcaster/1,turbo/1;color=#FF0000;display-name=PetsgomOO;emote-only=1;emotes=33:0-7;flags=0-7:A.6/P.6,25-36:A.1/I.2;id=c285c9ed-8b1b-4702-ae1c-c64d76cc74ef;mod=0;room-id=81046256;subscriber=0;turbo=0;tmi-sent-ts=1550868292494;user-id=81046256;user-type=staff :petsgomoo!petsgomoo@petsgomoo.tmi.twitch.tv PRIVMSG #petsgomoo :DansGame"

func TestParsePing(t *testing.T) {
	msg, err := Parse("PING :tmi.twitch.tv")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if msg.Command.Type != CmdPing {
		t.Errorf("command = %v, want PING", msg.Command.Type)
	}
	if !msg.HasTrailing || msg.Trailing != "tmi.twitch.tv" {
		t.Errorf("trailing = %q (has=%v), want tmi.twitch.tv", msg.Trailing, msg.HasTrailing)
	}
}

func TestParsePrivMsg(t *testing.T) {
	msg, err := Parse(samplePrivMsg)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if msg.Command.Type != CmdPrivMsg {
		t.Errorf("command = %v, want PRIVMSG", msg.Command.Type)
	}
	if msg.Source.Nick != "petsgomoo" {
		t.Errorf("nick = %q, want petsgomoo", msg.Source.Nick)
	}
	if msg.Source.Host != "petsgomoo@petsgomoo.tmi.twitch.tv" {
		t.Errorf("host = %q", msg.Source.Host)
	}
	if msg.Trailing != "DansGame" {
		t.Errorf("trailing = %q, want DansGame", msg.Trailing)
	}
	if len(msg.Command.Params) != 1 || msg.Command.Params[0] != "#petsgomoo" {
		t.Errorf("params = %v, want [#petsgomoo]", msg.Command.Params)
	}
	tags, err := ParsePrivMsgTags(msg.Tags)
	if err != nil {
		t.Fatalf("decode tags: %v", err)
	}
	if !tags.Admin {
		t.Error("admin = false, want true (broadcaster badge present)")
	}
	if tags.RoomID != 81046256 {
		t.Errorf("room id = %d, want 81046256", tags.RoomID)
	}
}

func TestParseServerOriginPrefix(t *testing.T) {
	msg, err := Parse(":tmi.twitch.tv CLEARMSG #dallas :HeyGuys")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if msg.Source.Nick != "" {
		t.Errorf("nick = %q, want empty for server origin", msg.Source.Nick)
	}
	if msg.Source.Host != "tmi.twitch.tv" {
		t.Errorf("host = %q, want tmi.twitch.tv", msg.Source.Host)
	}
	if msg.Command.Type != CmdClearMsg {
		t.Errorf("command = %v, want CLEARMSG", msg.Command.Type)
	}
}

func TestParseDuplicateTagKeysLastWins(t *testing.T) {
	msg, err := Parse("@color=#FF0000;color=#00FF00 :nick!host PRIVMSG #chan :hi")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := msg.Tags["color"]; got != "#00FF00" {
		t.Errorf("color = %q, want last value #00FF00", got)
	}
}

func TestParseTagValueWithoutEquals(t *testing.T) {
	msg, err := Parse("@vip :nick!host PRIVMSG #chan :hi")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if v, ok := msg.Tags["vip"]; !ok || v != "" {
		t.Errorf("vip = %q (ok=%v), want present with empty value", v, ok)
	}
}

func TestParseMalformed(t *testing.T) {
	for _, line := range []string{
		"@badges=staff/1", // tag block never terminated
		":tmi.twitch.tv",  // prefix never terminated
	} {
		if _, err := Parse(line); !errors.Is(err, ErrMalformed) {
			t.Errorf("Parse(%q) err = %v, want ErrMalformed", line, err)
		}
	}
}

func TestParseUnknownVerb(t *testing.T) {
	msg, err := Parse(":tmi.twitch.tv ROOMSTATE #dallas")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if msg.Command.Type != CmdUnknown {
		t.Errorf("command = %v, want UNKNOWN", msg.Command.Type)
	}
	if msg.Command.RawVerb != "ROOMSTATE" {
		t.Errorf("raw verb = %q, want ROOMSTATE", msg.Command.RawVerb)
	}
	if msg.HasTrailing {
		t.Error("unexpected trailing payload")
	}
}

func TestParseChatCommand(t *testing.T) {
	msg, err := Parse(":nick!host PRIVMSG #chan :!watchtime petsgomoo today")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	cc := msg.ChatCommand
	if cc == nil {
		t.Fatal("chat command = nil, want derived command")
	}
	if cc.Name != "watchtime" {
		t.Errorf("name = %q, want watchtime", cc.Name)
	}
	if len(cc.Args) != 2 || cc.Args[0] != "petsgomoo" || cc.Args[1] != "today" {
		t.Errorf("args = %v, want [petsgomoo today]", cc.Args)
	}

	msg, err = Parse(":nick!host PRIVMSG #chan :plain message")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if msg.ChatCommand != nil {
		t.Errorf("chat command = %+v, want nil for plain text", msg.ChatCommand)
	}
}

func TestParseTrailingKeepsColons(t *testing.T) {
	msg, err := Parse(":nick!host PRIVMSG #chan :see: https://example.com:8080")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if msg.Trailing != "see: https://example.com:8080" {
		t.Errorf("trailing = %q", msg.Trailing)
	}
}
