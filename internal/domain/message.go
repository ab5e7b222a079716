package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrMalformed      = errors.New("malformed payload")
	ErrInvalidMessage = errors.New("invalid_message")
)

type MessageKind string

const (
	KindBroadcast MessageKind = "broadcast"
	KindDirect    MessageKind = "direct"
)

// TypeQueryRoom marks a membership query instead of a relayed message.
const TypeQueryRoom = "query_room"

// Envelope is a decoded JSON object as received from a client.
// Raw keeps the original bytes for auditing.
type Envelope struct {
	Raw    json.RawMessage
	fields map[string]json.RawMessage
}

// DecodeEnvelope fails with ErrMalformed unless data is a JSON object.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: not an object", ErrMalformed)
	}
	return &Envelope{Raw: append(json.RawMessage(nil), data...), fields: fields}, nil
}

// Str returns the field as a string; ok is false when it is absent or not a JSON string.
func (e *Envelope) Str(key string) (string, bool) {
	raw, ok := e.fields[key]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// Type is the "type" field, empty when missing.
func (e *Envelope) Type() string {
	t, _ := e.Str("type")
	return t
}

// Identification reads the identity fields. Non-string values count as missing.
func (e *Envelope) Identification() Identification {
	identity, _ := e.Str("identity")
	deviceID, _ := e.Str("device_id")
	roomID, _ := e.Str("room_id")
	return Identification{
		DeviceID: DeviceID(deviceID),
		Identity: identity,
		RoomID:   RoomID(roomID),
	}
}

// Message is a validated relay payload, alive for one dispatch.
type Message struct {
	Type           string
	Content        json.RawMessage
	TargetDeviceID DeviceID
	Timestamp      json.RawMessage
	Raw            json.RawMessage
}

// Kind is direct when a target is set, broadcast otherwise.
func (m Message) Kind() MessageKind {
	if m.TargetDeviceID != "" {
		return KindDirect
	}
	return KindBroadcast
}

var emptyTimestamp = json.RawMessage(`""`)

// Message validates the envelope as a relay payload: a non-empty string
// type and a content that is a JSON string or object.
func (e *Envelope) Message() (Message, error) {
	typ, typeOK := e.Str("type")
	content, contentOK := e.fields["content"]
	if !typeOK || typ == "" || !contentOK {
		return Message{}, fmt.Errorf("%w: missing required fields (type, content)", ErrInvalidMessage)
	}
	if !isStringOrObject(content) {
		return Message{}, fmt.Errorf("%w: invalid content format", ErrInvalidMessage)
	}

	msg := Message{
		Type:      typ,
		Content:   content,
		Timestamp: emptyTimestamp,
		Raw:       e.Raw,
	}
	if raw, ok := e.fields["target_device_id"]; ok && !isNull(raw) {
		target, ok := e.Str("target_device_id")
		if !ok {
			return Message{}, fmt.Errorf("%w: invalid target_device_id", ErrInvalidMessage)
		}
		msg.TargetDeviceID = DeviceID(target)
	}
	if ts, ok := e.fields["timestamp"]; ok {
		msg.Timestamp = ts
	}
	return msg, nil
}

// Forwarded is what recipients of a relayed message receive.
type Forwarded struct {
	Type         string          `json:"type"`
	Content      json.RawMessage `json:"content"`
	FromDeviceID DeviceID        `json:"from_device_id"`
	MessageType  MessageKind     `json:"message_type"`
	Timestamp    json.RawMessage `json:"timestamp"`
}

func NewForwarded(m Message, from DeviceID) Forwarded {
	return Forwarded{
		Type:         m.Type,
		Content:      m.Content,
		FromDeviceID: from,
		MessageType:  m.Kind(),
		Timestamp:    m.Timestamp,
	}
}

func isStringOrObject(raw json.RawMessage) bool {
	b := bytes.TrimSpace(raw)
	return len(b) > 0 && (b[0] == '"' || b[0] == '{')
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
