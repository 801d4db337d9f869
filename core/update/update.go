// Package update defines the canonical update envelope delivered by the
// framework and the payload kinds the remote can attach to it.
package update

// Update represents one remote event. Exactly one payload pointer is set;
// ID is the remote-assigned, strictly increasing identifier the polling
// cursor is derived from.
type Update struct {
	ID                 int64               `json:"update_id"`
	Message            *Message            `json:"message,omitempty"`
	EditedMessage      *Message            `json:"edited_message,omitempty"`
	ChannelPost        *Message            `json:"channel_post,omitempty"`
	EditedChannelPost  *Message            `json:"edited_channel_post,omitempty"`
	InlineQuery        *InlineQuery        `json:"inline_query,omitempty"`
	ChosenInlineResult *ChosenInlineResult `json:"chosen_inline_result,omitempty"`
	CallbackQuery      *CallbackQuery      `json:"callback_query,omitempty"`
	ShippingQuery      *ShippingQuery      `json:"shipping_query,omitempty"`
	PreCheckoutQuery   *PreCheckoutQuery   `json:"pre_checkout_query,omitempty"`
	Poll               *Poll               `json:"poll,omitempty"`
	PollAnswer         *PollAnswer         `json:"poll_answer,omitempty"`
	MyChatMember       *ChatMemberUpdated  `json:"my_chat_member,omitempty"`
	ChatMember         *ChatMemberUpdated  `json:"chat_member,omitempty"`
}

// Kind reports which payload the update carries. Updates with no recognized
// payload (a newer remote API than this envelope) report KindUnknown.
func (u *Update) Kind() Kind {
	switch {
	case u == nil:
		return KindUnknown
	case u.Message != nil:
		return KindMessage
	case u.EditedMessage != nil:
		return KindEditedMessage
	case u.ChannelPost != nil:
		return KindChannelPost
	case u.EditedChannelPost != nil:
		return KindEditedChannelPost
	case u.InlineQuery != nil:
		return KindInlineQuery
	case u.ChosenInlineResult != nil:
		return KindChosenInlineResult
	case u.CallbackQuery != nil:
		return KindCallbackQuery
	case u.ShippingQuery != nil:
		return KindShippingQuery
	case u.PreCheckoutQuery != nil:
		return KindPreCheckoutQuery
	case u.Poll != nil:
		return KindPoll
	case u.PollAnswer != nil:
		return KindPollAnswer
	case u.MyChatMember != nil:
		return KindMyChatMember
	case u.ChatMember != nil:
		return KindChatMember
	default:
		return KindUnknown
	}
}

// Chat returns the chat the update originated in, when it has one.
func (u *Update) Chat() (Chat, bool) {
	switch {
	case u == nil:
		return Chat{}, false
	case u.Message != nil:
		return u.Message.Chat, true
	case u.EditedMessage != nil:
		return u.EditedMessage.Chat, true
	case u.ChannelPost != nil:
		return u.ChannelPost.Chat, true
	case u.EditedChannelPost != nil:
		return u.EditedChannelPost.Chat, true
	case u.CallbackQuery != nil && u.CallbackQuery.Message != nil:
		return u.CallbackQuery.Message.Chat, true
	case u.MyChatMember != nil:
		return u.MyChatMember.Chat, true
	case u.ChatMember != nil:
		return u.ChatMember.Chat, true
	default:
		return Chat{}, false
	}
}
