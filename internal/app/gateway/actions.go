package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ActionKind is the closed set of inbound client actions. Dispatch switches
// exhaustively over this enum; adding an action means adding a constant, a
// wire-name mapping, and a case, all checked at compile time.
type ActionKind int

const (
	ActionUnknown ActionKind = iota
	ActionChannelJoin
	ActionChannelLeave
	ActionConversationJoin
	ActionConversationLeave
	ActionMessageCreate
	ActionMessageEdit
	ActionMessageDelete
	ActionVoiceJoin
	ActionVoiceLeave
	ActionSignal
)

var actionNames = map[ActionKind]string{
	ActionChannelJoin:       "channel.join",
	ActionChannelLeave:      "channel.leave",
	ActionConversationJoin:  "conversation.join",
	ActionConversationLeave: "conversation.leave",
	ActionMessageCreate:     "message.create",
	ActionMessageEdit:       "message.edit",
	ActionMessageDelete:     "message.delete",
	ActionVoiceJoin:         "voice.join",
	ActionVoiceLeave:        "voice.leave",
	ActionSignal:            "webrtc.signal",
}

var actionKinds = func() map[string]ActionKind {
	m := make(map[string]ActionKind, len(actionNames))
	for k, n := range actionNames {
		m[n] = k
	}
	return m
}()

// String returns the wire name of the action, used as the error event scope.
func (k ActionKind) String() string {
	if n, ok := actionNames[k]; ok {
		return n
	}
	return "unknown"
}

// Action is one parsed inbound frame: a kind plus its undecoded payload.
type Action struct {
	Kind    ActionKind
	Payload json.RawMessage
}

// ParseAction decodes an inbound frame envelope. An unrecognized type maps to
// ActionUnknown; the payload stays raw for the per-action decoder.
func ParseAction(frame []byte) (Action, error) {
	var envelope struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload,omitempty"`
	}

	if err := json.Unmarshal(frame, &envelope); err != nil {
		return Action{}, err
	}

	return Action{
		Kind:    actionKinds[envelope.Type],
		Payload: envelope.Payload,
	}, nil
}

// decodeStrict unmarshals an action payload, rejecting unknown fields so
// client typos fail loudly instead of silently carrying defaults.
func decodeStrict(payload json.RawMessage, dst any) error {
	if len(payload) == 0 {
		return fmt.Errorf("missing payload")
	}

	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		return err
	}

	if decoder.More() {
		return fmt.Errorf("unexpected extra content in payload")
	}

	return nil
}

// Inbound payload shapes.

type channelTarget struct {
	ChannelID string `json:"channelId"`
}

type conversationTarget struct {
	ConversationID string `json:"conversationId"`
}

type messageCreateRequest struct {
	ChannelID       string `json:"channelId,omitempty"`
	ConversationID  string `json:"conversationId,omitempty"`
	Content         string `json:"content"`
	ParentMessageID string `json:"parentMessageId,omitempty"`
}

type messageEditRequest struct {
	ChannelID      string `json:"channelId,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
	MessageID      string `json:"messageId"`
	Content        string `json:"content"`
}

type messageDeleteRequest struct {
	ChannelID      string `json:"channelId,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
	MessageID      string `json:"messageId"`
}

type voiceJoinRequest struct {
	ChannelID string `json:"channelId"`
}

type signalRequest struct {
	ToConnectionID string          `json:"toConnectionId"`
	Type           string          `json:"type"`
	Payload        json.RawMessage `json:"payload"`
}
