package submission

import "encoding/json"

// FocusRequestType is the message type a host sends to return input focus
// to the text field.
const FocusRequestType = "focus-prompt"

// FocusRequest is the host-to-widget focus message.
type FocusRequest struct {
	Type string `json:"type"`
}

// NewFocusRequest returns a ready-to-send focus message.
func NewFocusRequest() FocusRequest { return FocusRequest{Type: FocusRequestType} }

// IsFocusRequest reports whether msg is a focus request.
func IsFocusRequest(msg []byte) bool {
	var fr FocusRequest
	if err := json.Unmarshal(msg, &fr); err != nil {
		return false
	}
	return fr.Type == FocusRequestType
}
