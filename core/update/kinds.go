package update

// Kind names an update payload variant. The string values match the remote
// API's allowed_updates vocabulary, so kinds double as the advisory filter
// hint passed to fetchers.
type Kind string

const (
	KindMessage            Kind = "message"
	KindEditedMessage      Kind = "edited_message"
	KindChannelPost        Kind = "channel_post"
	KindEditedChannelPost  Kind = "edited_channel_post"
	KindInlineQuery        Kind = "inline_query"
	KindChosenInlineResult Kind = "chosen_inline_result"
	KindCallbackQuery      Kind = "callback_query"
	KindShippingQuery      Kind = "shipping_query"
	KindPreCheckoutQuery   Kind = "pre_checkout_query"
	KindPoll               Kind = "poll"
	KindPollAnswer         Kind = "poll_answer"
	KindMyChatMember       Kind = "my_chat_member"
	KindChatMember         Kind = "chat_member"

	// KindUnknown marks payloads this envelope does not recognize.
	KindUnknown Kind = "unknown"
)

// AllKinds lists every recognized kind in wire order.
func AllKinds() []Kind {
	return []Kind{
		KindMessage,
		KindEditedMessage,
		KindChannelPost,
		KindEditedChannelPost,
		KindInlineQuery,
		KindChosenInlineResult,
		KindCallbackQuery,
		KindShippingQuery,
		KindPreCheckoutQuery,
		KindPoll,
		KindPollAnswer,
		KindMyChatMember,
		KindChatMember,
	}
}

// Valid reports whether the kind belongs to the recognized vocabulary.
func (k Kind) Valid() bool {
	switch k {
	case KindMessage, KindEditedMessage, KindChannelPost, KindEditedChannelPost,
		KindInlineQuery, KindChosenInlineResult, KindCallbackQuery,
		KindShippingQuery, KindPreCheckoutQuery, KindPoll, KindPollAnswer,
		KindMyChatMember, KindChatMember:
		return true
	default:
		return false
	}
}

// Strings converts a kind list to its wire representation.
func Strings(kinds []Kind) []string {
	if kinds == nil {
		return nil
	}
	out := make([]string, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, string(k))
	}
	return out
}
