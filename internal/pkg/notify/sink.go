package notify

import "time"

// Render states pushed to the chat bridge. They mirror the transaction
// lifecycle plus the intermediate "waiting" refresh.
const (
	StateWaiting   = "waiting"
	StateSuccess   = "success"
	StateExpired   = "expired"
	StateCancelled = "cancelled"
)

// RenderState describes one presentation update for an open or finished
// invoice. Remaining is only meaningful for StateWaiting.
type RenderState struct {
	TransactionID string        `json:"transaction_id"`
	UserID        string        `json:"user_id"`
	MessageID     string        `json:"message_id,omitempty"`
	ChannelID     string        `json:"channel_id,omitempty"`
	Amount        string        `json:"amount"` // 4-decimal display amount
	WalletAddress string        `json:"wallet_address"`
	State         string        `json:"state"`
	ProductKey    string        `json:"product_key,omitempty"`
	Remaining     time.Duration `json:"remaining_ns,omitempty"`
}

// DirectMessage is a payload delivered to a single user out-of-band.
type DirectMessage struct {
	TransactionID string `json:"transaction_id"`
	Subject       string `json:"subject"`
	Body          string `json:"body"`
	ProductKey    string `json:"product_key,omitempty"`
	Amount        string `json:"amount,omitempty"`
	WalletAddress string `json:"wallet_address,omitempty"`
}

// Sink is the notification surface the lifecycle engine produces to. Both
// operations may fail independently; failures are audited by the caller and
// never abort a state transition.
type Sink interface {
	Render(state RenderState) error
	NotifyDirect(userID string, msg DirectMessage) error
}

// Membership grants credentials/roles after a completed purchase. It lives on
// the chat side of the fence; the engine only reports success or failure to
// the audit trail.
type Membership interface {
	GrantRole(userID string) error
}
