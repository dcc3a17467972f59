package types

// RecipientKind marks why a user is being notified. Mention recipients get a
// distinct rendering and delivery priority.
type RecipientKind string

const (
	RecipientKindMention RecipientKind = "mention"
	RecipientKindRegular RecipientKind = "regular"
)

// Recipient is one user selected to receive a notification for an event.
type Recipient struct {
	UserID string        `json:"userId"`
	Kind   RecipientKind `json:"kind"`
}

// PushPriority is the delivery priority hint forwarded to the push gateway.
type PushPriority string

const (
	PushPriorityNormal PushPriority = "normal"
	PushPriorityHigh   PushPriority = "high"
)

// PushMessage is one rendered notification addressed to one recipient.
// Dispatch fans it out to every active device token the recipient holds.
type PushMessage struct {
	RecipientID string            `json:"recipientId"`
	Title       string            `json:"title"`
	Body        string            `json:"body"`
	Priority    PushPriority      `json:"priority"`
	Data        map[string]string `json:"data,omitempty"`
}

// DispatchResult summarizes the outcome of one dispatch call.
type DispatchResult struct {
	Sent         int      `json:"sent"`
	Failed       int      `json:"failed"`
	PrunedTokens int      `json:"prunedTokens"`
	Errors       []string `json:"errors,omitempty"`
}
