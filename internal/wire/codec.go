// Package wire implements the OCPP JSON-RPC framing (§4.1): encoding and
// decoding of CALL / CALL_RESULT / CALL_ERROR arrays, and payload
// validation against per-version JSON-Schema documents.
package wire

import (
	"encoding/json"
	"fmt"
)

// MessageType is the first element of every OCPP JSON-RPC frame.
type MessageType int

const (
	TypeCall       MessageType = 2
	TypeCallResult MessageType = 3
	TypeCallError  MessageType = 4
)

// Direction distinguishes a request payload from a response payload when
// looking up a JSON-Schema document (§4.1).
type Direction string

const (
	DirectionRequest  Direction = "request"
	DirectionResponse Direction = "response"
)

// Call is a decoded `[2, MessageId, Action, Payload]` frame.
type Call struct {
	MessageID string
	Action    string
	Payload   json.RawMessage
}

// CallResult is a decoded `[3, MessageId, Payload]` frame.
type CallResult struct {
	MessageID string
	Payload   json.RawMessage
}

// CallErrorFrame is a decoded `[4, MessageId, ErrorCode, ErrorDescription, ErrorDetails]` frame.
type CallErrorFrame struct {
	MessageID   string
	ErrorCode   ErrorCode
	Description string
	Details     json.RawMessage
}

// EncodeCall serializes a CALL frame.
func EncodeCall(messageID, action string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode call payload: %w", err)
	}
	return json.Marshal([]interface{}{TypeCall, messageID, action, json.RawMessage(raw)})
}

// EncodeCallResult serializes a CALL_RESULT frame.
func EncodeCallResult(messageID string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode call result payload: %w", err)
	}
	return json.Marshal([]interface{}{TypeCallResult, messageID, json.RawMessage(raw)})
}

// EncodeCallError serializes a CALL_ERROR frame.
func EncodeCallError(messageID string, ocppErr *OCPPError) ([]byte, error) {
	details := ocppErr.Details
	if details == nil {
		details = map[string]interface{}{}
	}
	return json.Marshal([]interface{}{TypeCallError, messageID, ocppErr.Code, ocppErr.Description, details})
}

// Decode inspects a raw inbound frame and returns exactly one of
// (*Call, *CallResult, *CallErrorFrame). On malformed input it returns an
// OCPPError with code FormatViolation/RpcFrameworkError as appropriate,
// never a panic (§7 Protocol errors).
func Decode(raw []byte) (*Call, *CallResult, *CallErrorFrame, error) {
	var frame []json.RawMessage
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, nil, nil, NewOCPPError(FormatViolation, "malformed JSON-RPC array: "+err.Error(), nil)
	}
	if len(frame) < 3 {
		return nil, nil, nil, NewOCPPError(RPCFrameworkError, "frame too short", nil)
	}

	var msgType int
	if err := json.Unmarshal(frame[0], &msgType); err != nil {
		return nil, nil, nil, NewOCPPError(FormatViolation, "non-numeric MessageTypeId", nil)
	}

	var messageID string
	if err := json.Unmarshal(frame[1], &messageID); err != nil {
		return nil, nil, nil, NewOCPPError(FormatViolation, "non-string MessageId", nil)
	}

	switch MessageType(msgType) {
	case TypeCall:
		if len(frame) != 4 {
			return nil, nil, nil, NewOCPPError(RPCFrameworkError, "CALL frame must have 4 elements", nil)
		}
		var action string
		if err := json.Unmarshal(frame[2], &action); err != nil {
			return nil, nil, nil, NewOCPPError(FormatViolation, "non-string Action", nil)
		}
		return &Call{MessageID: messageID, Action: action, Payload: frame[3]}, nil, nil, nil

	case TypeCallResult:
		if len(frame) != 3 {
			return nil, nil, nil, NewOCPPError(RPCFrameworkError, "CALL_RESULT frame must have 3 elements", nil)
		}
		return nil, &CallResult{MessageID: messageID, Payload: frame[2]}, nil, nil

	case TypeCallError:
		if len(frame) != 5 {
			return nil, nil, nil, NewOCPPError(RPCFrameworkError, "CALL_ERROR frame must have 5 elements", nil)
		}
		var code string
		var description string
		if err := json.Unmarshal(frame[2], &code); err != nil {
			return nil, nil, nil, NewOCPPError(FormatViolation, "non-string ErrorCode", nil)
		}
		if err := json.Unmarshal(frame[3], &description); err != nil {
			return nil, nil, nil, NewOCPPError(FormatViolation, "non-string ErrorDescription", nil)
		}
		return nil, nil, &CallErrorFrame{MessageID: messageID, ErrorCode: ErrorCode(code), Description: description, Details: frame[4]}, nil

	default:
		return nil, nil, nil, NewOCPPError(MessageTypeNotSupported, fmt.Sprintf("unknown MessageTypeId %d", msgType), nil)
	}
}
