// Package workflow contains the step driver that advances tenant publication
// workflows and the correlator that maps inbound webhook notifications back
// to the workflow that caused them.
package workflow

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Webhook topics understood by this service. Unknown topics are ignored, not
// rejected, so the agent can grow new notification types without breaking us.
const (
	TopicEndorseTransaction = "endorse_transaction"
	TopicConnections        = "connections"
)

// Transaction acknowledgement states carried by endorse_transaction events.
const (
	TxnStateAcked   = "transaction_acked"
	TxnStateRefused = "transaction_refused"
)

// ErrMalformedEvent is returned when a recognized topic arrives without the
// fields it must carry. The broker never guesses missing fields.
var ErrMalformedEvent = errors.New("malformed webhook event")

// TransactionContext carries the ledger identifiers produced by an endorsed
// transaction.
type TransactionContext struct {
	SchemaID  string `json:"schema_id,omitempty"`
	CredDefID string `json:"cred_def_id,omitempty"`
}

// TransactionMetaData is the meta_data block of an endorse_transaction
// payload.
type TransactionMetaData struct {
	Context TransactionContext `json:"context"`
}

// EndorseTransactionPayload is the typed payload of an endorse_transaction
// event.
type EndorseTransactionPayload struct {
	TransactionID string               `json:"transaction_id"`
	State         string               `json:"state"`
	MetaData      *TransactionMetaData `json:"meta_data,omitempty"`
}

// Event is a webhook notification, decoded per topic. Endorse is non-nil
// exactly when Topic is endorse_transaction; for any other topic only Topic
// and the raw payload are kept.
type Event struct {
	Topic      string
	Endorse    *EndorseTransactionPayload
	RawPayload json.RawMessage
}

// envelope is the wire shape of every webhook notification.
type envelope struct {
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

// ParseEvent decodes a webhook body into an Event. A recognized topic with a
// payload missing its required fields returns ErrMalformedEvent; unknown
// topics decode successfully and are left for the caller to ignore.
func ParseEvent(body []byte) (*Event, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if env.Topic == "" {
		return nil, fmt.Errorf("%w: missing topic", ErrMalformedEvent)
	}

	ev := &Event{Topic: env.Topic, RawPayload: env.Payload}
	if env.Topic != TopicEndorseTransaction {
		return ev, nil
	}

	var payload EndorseTransactionPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if payload.TransactionID == "" {
		return nil, fmt.Errorf("%w: endorse_transaction payload missing transaction_id", ErrMalformedEvent)
	}
	if payload.State == "" {
		return nil, fmt.Errorf("%w: endorse_transaction payload missing state", ErrMalformedEvent)
	}
	ev.Endorse = &payload
	return ev, nil
}
