package update

import (
	"testing"

	json "github.com/goccy/go-json"
)

func TestKindDetection(t *testing.T) {
	cases := []struct {
		name string
		upd  Update
		want Kind
	}{
		{"message", Update{ID: 1, Message: &Message{ID: 10}}, KindMessage},
		{"edited message", Update{ID: 2, EditedMessage: &Message{ID: 10}}, KindEditedMessage},
		{"channel post", Update{ID: 3, ChannelPost: &Message{ID: 11}}, KindChannelPost},
		{"callback query", Update{ID: 4, CallbackQuery: &CallbackQuery{ID: "cb"}}, KindCallbackQuery},
		{"inline query", Update{ID: 5, InlineQuery: &InlineQuery{ID: "q"}}, KindInlineQuery},
		{"poll answer", Update{ID: 6, PollAnswer: &PollAnswer{PollID: "p"}}, KindPollAnswer},
		{"chat member", Update{ID: 7, ChatMember: &ChatMemberUpdated{}}, KindChatMember},
		{"empty payload", Update{ID: 8}, KindUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.upd.Kind(); got != tc.want {
				t.Fatalf("expected kind %s, got %s", tc.want, got)
			}
		})
	}
}

func TestKindDetectionNilReceiver(t *testing.T) {
	var u *Update
	if got := u.Kind(); got != KindUnknown {
		t.Fatalf("nil update should report unknown kind, got %s", got)
	}
}

func TestDecodeMessageUpdate(t *testing.T) {
	raw := []byte(`{
		"update_id": 523918321,
		"message": {
			"message_id": 90,
			"from": {"id": 109998024, "is_bot": false, "first_name": "Ada", "username": "ada", "language_code": "en"},
			"chat": {"id": 109998024, "type": "private", "username": "ada"},
			"date": 1581448857,
			"text": "hello there"
		}
	}`)

	var u Update
	if err := json.Unmarshal(raw, &u); err != nil {
		t.Fatalf("decode update: %v", err)
	}
	if u.ID != 523918321 {
		t.Fatalf("expected update id 523918321, got %d", u.ID)
	}
	if u.Kind() != KindMessage {
		t.Fatalf("expected message kind, got %s", u.Kind())
	}
	if u.Message.Text != "hello there" {
		t.Fatalf("unexpected text %q", u.Message.Text)
	}
	if u.Message.Chat.ID != 109998024 || u.Message.Chat.Type != "private" {
		t.Fatalf("unexpected chat %+v", u.Message.Chat)
	}
	if u.Message.From == nil || u.Message.From.Username != "ada" {
		t.Fatalf("unexpected sender %+v", u.Message.From)
	}
}

func TestChatExtraction(t *testing.T) {
	msg := &Message{ID: 5, Chat: Chat{ID: 42, Type: "group"}}
	u := Update{ID: 1, Message: msg}
	chat, ok := u.Chat()
	if !ok || chat.ID != 42 {
		t.Fatalf("expected chat 42, got %+v ok=%v", chat, ok)
	}

	cb := Update{ID: 2, CallbackQuery: &CallbackQuery{ID: "cb", Message: msg}}
	chat, ok = cb.Chat()
	if !ok || chat.ID != 42 {
		t.Fatalf("expected chat through callback message, got %+v ok=%v", chat, ok)
	}

	bare := Update{ID: 3, PollAnswer: &PollAnswer{PollID: "p"}}
	if _, ok := bare.Chat(); ok {
		t.Fatalf("poll answers carry no chat")
	}
}

func TestKindVocabulary(t *testing.T) {
	for _, k := range AllKinds() {
		if !k.Valid() {
			t.Fatalf("kind %s should be valid", k)
		}
	}
	if Kind("bogus").Valid() {
		t.Fatalf("bogus kind must not validate")
	}
	if KindUnknown.Valid() {
		t.Fatalf("unknown is a fallback, not part of the wire vocabulary")
	}
	if got := Strings([]Kind{KindMessage, KindPoll}); len(got) != 2 || got[0] != "message" || got[1] != "poll" {
		t.Fatalf("unexpected wire strings %v", got)
	}
	if Strings(nil) != nil {
		t.Fatalf("nil kinds must stay nil on the wire")
	}
}
