// Package ocpp holds the OCPP-J wire-framing primitives and the
// request/response correlation cache shared by the 1.6 and 2.0.1 protocol
// modules (spec.md §6, §9 — "capability set" instead of inheritance).
package ocpp

import (
	"encoding/json"
	"fmt"

	"github.com/weilun-shrimp/ocpp-fleet-simulator/internal/ocpperror"
)

// MessageType discriminates the first element of an OCPP-J frame array.
type MessageType int

const (
	MessageTypeCall       MessageType = 2
	MessageTypeCallResult MessageType = 3
	MessageTypeCallError  MessageType = 4
)

// Frame is a parsed OCPP-J message, regardless of direction or version.
type Frame struct {
	Type             MessageType
	ID               string
	Action           string          // set only for MessageTypeCall
	Payload          json.RawMessage // CALL/CALLRESULT payload; unset for MessageTypeCallError
	ErrorCode        string          // set only for MessageTypeCallError
	ErrorDescription string
	ErrorDetails     json.RawMessage
}

// Parse decodes data as a JSON array and discriminates it into a Frame.
// Anything that isn't a well-formed 3/4/5-element array with a known
// first element is a ProtocolError per spec.md §7.
func Parse(data []byte) (Frame, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Frame{}, ocpperror.Protocol("malformed frame", err)
	}
	if len(raw) < 3 {
		return Frame{}, ocpperror.Protocol(fmt.Sprintf("frame has %d elements, need at least 3", len(raw)), nil)
	}

	var msgType int
	if err := json.Unmarshal(raw[0], &msgType); err != nil {
		return Frame{}, ocpperror.Protocol("non-numeric message type", err)
	}

	var id string
	if err := json.Unmarshal(raw[1], &id); err != nil {
		return Frame{}, ocpperror.Protocol("non-string unique id", err)
	}

	switch MessageType(msgType) {
	case MessageTypeCall:
		if len(raw) < 4 {
			return Frame{}, ocpperror.Protocol("CALL frame needs 4 elements", nil)
		}
		var action string
		if err := json.Unmarshal(raw[2], &action); err != nil {
			return Frame{}, ocpperror.Protocol("non-string action", err)
		}
		return Frame{Type: MessageTypeCall, ID: id, Action: action, Payload: raw[3]}, nil

	case MessageTypeCallResult:
		return Frame{Type: MessageTypeCallResult, ID: id, Payload: raw[2]}, nil

	case MessageTypeCallError:
		if len(raw) < 4 {
			return Frame{}, ocpperror.Protocol("CALLERROR frame needs at least 4 elements", nil)
		}
		var code, desc string
		_ = json.Unmarshal(raw[2], &code)
		if len(raw) >= 4 {
			_ = json.Unmarshal(raw[3], &desc)
		}
		var details json.RawMessage
		if len(raw) >= 5 {
			details = raw[4]
		}
		return Frame{Type: MessageTypeCallError, ID: id, ErrorCode: code, ErrorDescription: desc, ErrorDetails: details}, nil

	default:
		return Frame{}, ocpperror.Protocol(fmt.Sprintf("unknown message type %d", msgType), nil)
	}
}

// BuildCall marshals a CALL frame: [2, id, action, payload].
func BuildCall(id, action string, payload interface{}) ([]byte, error) {
	return json.Marshal([]interface{}{MessageTypeCall, id, action, payload})
}

// BuildCallResult marshals a CALLRESULT frame: [3, id, payload].
func BuildCallResult(id string, payload interface{}) ([]byte, error) {
	return json.Marshal([]interface{}{MessageTypeCallResult, id, payload})
}

// BuildCallError marshals a CALLERROR frame: [4, id, errorCode, errorDescription, errorDetails].
func BuildCallError(id, errorCode, errorDescription string, errorDetails interface{}) ([]byte, error) {
	if errorDetails == nil {
		errorDetails = map[string]interface{}{}
	}
	return json.Marshal([]interface{}{MessageTypeCallError, id, errorCode, errorDescription, errorDetails})
}
