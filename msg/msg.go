// Package msg contains the messages exchanged by payment channel agents and
// the codecs for the protocol data they carry.
package msg

import (
	"encoding/json"
	"io"
)

// Type is the type of a message. The values match the packet types of the
// bilateral transfer protocol carrying the messages.
type Type int

const (
	TypeResponse Type = 1
	TypeError    Type = 2
	TypeMessage  Type = 6
	TypeTransfer Type = 7
)

func (t Type) String() string {
	switch t {
	case TypeResponse:
		return "response"
	case TypeError:
		return "error"
	case TypeMessage:
		return "message"
	case TypeTransfer:
		return "transfer"
	}
	return "unknown"
}

type ContentType uint8

const (
	ContentTypeOctetStream ContentType = 0
	ContentTypeTextPlain   ContentType = 1
	ContentTypeJSON        ContentType = 2
)

// ProtocolData is a named, typed payload carried by a message.
type ProtocolData struct {
	ProtocolName string
	ContentType  ContentType
	Data         []byte
}

// Message is the envelope of everything sent between agents. Requests carry a
// RequestID that the Response or Error sent in reply repeats.
type Message struct {
	Type      Type
	RequestID string

	// Amount is the amount a transfer notifies, as a decimal string.
	Amount string `json:",omitempty"`

	// Error is the error message of an Error reply.
	Error string `json:",omitempty"`

	ProtocolData []ProtocolData `json:",omitempty"`
}

// Find returns the first protocol data in the message with the name.
func (m Message) Find(protocolName string) (ProtocolData, bool) {
	for _, p := range m.ProtocolData {
		if p.ProtocolName == protocolName {
			return p, true
		}
	}
	return ProtocolData{}, false
}

// Response returns a response to the message carrying the protocol data.
func (m Message) Response(pd ...ProtocolData) Message {
	return Message{Type: TypeResponse, RequestID: m.RequestID, ProtocolData: pd}
}

// ErrorResponse returns an error reply to the message.
func (m Message) ErrorResponse(err error) Message {
	return Message{Type: TypeError, RequestID: m.RequestID, Error: err.Error()}
}

type Encoder = json.Encoder

func NewEncoder(w io.Writer) *Encoder {
	return json.NewEncoder(w)
}

type Decoder = json.Decoder

func NewDecoder(r io.Reader) *Decoder {
	return json.NewDecoder(r)
}
