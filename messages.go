package yapp

import (
	"encoding/json"
	"net/url"
	"strconv"
)

// Inter-context message types. Contexts (tab, frame, parent) share no
// memory; these are the only shapes exchanged over postMessage-style
// transports.
const (
	// MessageTypePaymentComplete is the canonical completion message.
	MessageTypePaymentComplete = "payment_complete"
	// MessageTypeParentComplete notifies an embedding parent that a
	// payment finished in the child frame.
	MessageTypeParentComplete = "yapp_payment_complete"
	// MessageTypeReady announces an embedded view's capabilities to its
	// parent, exactly once per page load.
	MessageTypeReady = "yapp_ready"
	// MessageTypeWebhookCallback is the webhook-style callback shape
	// some parents relay instead of the canonical message.
	MessageTypeWebhookCallback = "yodl_webhook_callback"
)

// PaymentCompleteMessage is the canonical inter-context message.
// OrderID is preferred over Memo when both are present.
type PaymentCompleteMessage struct {
	Type    string `json:"type"`
	TxHash  string `json:"txHash"`
	ChainID *int64 `json:"chainId,omitempty"`
	OrderID string `json:"orderId,omitempty"`
	Memo    string `json:"memo,omitempty"`
}

// ResolvedOrderID returns the order identifier, preferring orderId over
// memo.
func (m *PaymentCompleteMessage) ResolvedOrderID() string {
	if m.OrderID != "" {
		return m.OrderID
	}
	return m.Memo
}

// Event converts the message into the canonical completion event.
func (m *PaymentCompleteMessage) Event() PaymentCompleted {
	return PaymentCompleted{
		OrderID: m.ResolvedOrderID(),
		TxHash:  m.TxHash,
		ChainID: m.ChainID,
	}
}

// NewPaymentCompleteMessage builds the canonical message for an event.
func NewPaymentCompleteMessage(ev PaymentCompleted) PaymentCompleteMessage {
	return PaymentCompleteMessage{
		Type:    MessageTypePaymentComplete,
		TxHash:  ev.TxHash,
		ChainID: ev.ChainID,
		OrderID: ev.OrderID,
	}
}

// ParentNotification tells the embedding parent that a payment
// completed, including the URL the parent may surface as a receipt.
type ParentNotification struct {
	Type            string `json:"type"`
	TxHash          string `json:"txHash"`
	ChainID         *int64 `json:"chainId,omitempty"`
	OrderID         string `json:"orderId"`
	ConfirmationURL string `json:"confirmation_url"`
}

// ReadyMessage announces readiness and supported channels to a parent.
type ReadyMessage struct {
	Type     string   `json:"type"`
	Supports []string `json:"supports"`
}

// NewReadyMessage builds the readiness announcement.
func NewReadyMessage() ReadyMessage {
	return ReadyMessage{
		Type:     MessageTypeReady,
		Supports: []string{"webhooks", "payment_complete"},
	}
}

// WebhookCallbackMessage wraps payment data in the webhook callback
// envelope relayed by some parent contexts.
type WebhookCallbackMessage struct {
	Type        string                 `json:"type"`
	PaymentData PaymentCompleteMessage `json:"paymentData"`
}

// MessageKind tags the result of parsing an inbound message.
type MessageKind int

const (
	// KindUnrecognized marks a message that is not a payment signal.
	// Unrelated sources share the transport, so these are silently
	// dropped, never surfaced.
	KindUnrecognized MessageKind = iota
	// KindPaymentComplete marks an already-canonical message.
	KindPaymentComplete
	// KindWebhookCallback marks a webhook-style callback envelope.
	KindWebhookCallback
	// KindRawPayment marks a loose wallet/SDK signal carrying a
	// transaction hash and an order identifier without the canonical
	// type tag.
	KindRawPayment
)

// ParseInboundMessage classifies a raw inter-context message and, for
// payment signals, extracts the canonical message. Rules:
//
//   - messages carrying a "target" field are browser-extension chatter
//     and are unrecognized;
//   - messages lacking both a transaction hash and an order
//     identifier are unrecognized;
//   - messages already tagged payment_complete are returned as-is so
//     they are never re-normalized into a relay loop.
func ParseInboundMessage(raw []byte) (MessageKind, *PaymentCompleteMessage) {
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return KindUnrecognized, nil
	}
	if len(m) == 0 {
		return KindUnrecognized, nil
	}
	if _, hasTarget := m["target"]; hasTarget {
		return KindUnrecognized, nil
	}

	msgType, _ := m["type"].(string)

	if msgType == MessageTypeWebhookCallback {
		pd, ok := m["paymentData"].(map[string]interface{})
		if !ok {
			return KindUnrecognized, nil
		}
		msg := messageFromFields(pd)
		if msg.TxHash == "" || msg.ResolvedOrderID() == "" {
			return KindUnrecognized, nil
		}
		msg.Type = MessageTypePaymentComplete
		return KindWebhookCallback, msg
	}

	msg := messageFromFields(m)
	if msg.TxHash == "" || msg.ResolvedOrderID() == "" {
		return KindUnrecognized, nil
	}

	if msgType == MessageTypePaymentComplete {
		msg.Type = MessageTypePaymentComplete
		return KindPaymentComplete, msg
	}

	msg.Type = MessageTypePaymentComplete
	return KindRawPayment, msg
}

func messageFromFields(m map[string]interface{}) *PaymentCompleteMessage {
	return &PaymentCompleteMessage{
		TxHash:  stringField(m, "txHash"),
		ChainID: chainIDField(m, "chainId"),
		OrderID: stringField(m, "orderId"),
		Memo:    stringField(m, "memo"),
	}
}

func stringField(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}

func chainIDField(m map[string]interface{}, key string) *int64 {
	switch v := m[key].(type) {
	case float64:
		id := int64(v)
		return &id
	case string:
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil
		}
		return &id
	default:
		return nil
	}
}

// ConfirmationURL builds the confirmation view URL for an applied
// completion event: orderId and txHash are carried as parameters,
// chainId only when known.
func ConfirmationURL(base, orderID, txHash string, chainID *int64) string {
	u, err := url.Parse(base)
	if err != nil {
		u = &url.URL{Path: base}
	}
	q := u.Query()
	q.Set("orderId", orderID)
	if txHash != "" {
		q.Set("txHash", txHash)
	}
	if chainID != nil {
		q.Set("chainId", strconv.FormatInt(*chainID, 10))
	}
	u.RawQuery = q.Encode()
	return u.String()
}
