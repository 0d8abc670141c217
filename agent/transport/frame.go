package transport

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/BaSui01/skillbridge/types"
	"github.com/google/uuid"
)

// Subprotocol is negotiated on every skill connection.
const Subprotocol = "skillbridge.v1"

// PathMessages is where the host posts activities to a skill.
const PathMessages = "/api/messages"

// FrameKind distinguishes requests from responses on the wire.
type FrameKind string

const (
	FrameRequest  FrameKind = "request"
	FrameResponse FrameKind = "response"
)

// Frame is one websocket text message. Requests carry a verb and path;
// responses echo the request id and carry a status.
type Frame struct {
	ID      string            `json:"id"`
	Kind    FrameKind         `json:"kind"`
	Verb    string            `json:"verb,omitempty"`
	Path    string            `json:"path,omitempty"`
	Status  int               `json:"status,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    json.RawMessage   `json:"body,omitempty"`
}

// NewRequest builds a request frame with a fresh id and body marshalled as JSON.
func NewRequest(verb, path string, body any) (*Frame, error) {
	f := &Frame{
		ID:      uuid.NewString(),
		Kind:    FrameRequest,
		Verb:    verb,
		Path:    path,
		Headers: make(map[string]string),
	}
	if err := f.setBody(body); err != nil {
		return nil, err
	}
	return f, nil
}

// NewResponse builds the response to req.
func NewResponse(req *Frame, status int, body any) (*Frame, error) {
	f := &Frame{
		ID:     req.ID,
		Kind:   FrameResponse,
		Status: status,
	}
	if err := f.setBody(body); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *Frame) setBody(body any) error {
	if body == nil {
		return nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal frame body: %w", err)
	}
	f.Body = data
	return nil
}

// Activity decodes the frame body as an activity.
func (f *Frame) Activity() (*types.Activity, error) {
	if len(f.Body) == 0 {
		return nil, fmt.Errorf("frame %s has no body", f.ID)
	}
	var a types.Activity
	if err := json.Unmarshal(f.Body, &a); err != nil {
		return nil, fmt.Errorf("decode activity: %w", err)
	}
	return &a, nil
}

// ActivityPath is the path a skill posts its activities to.
func ActivityPath(conversationID, activityID string) string {
	if activityID == "" {
		return "/v3/conversations/" + url.PathEscape(conversationID) + "/activities"
	}
	return "/v3/conversations/" + url.PathEscape(conversationID) + "/activities/" + url.PathEscape(activityID)
}

// ResourceResponse acknowledges an activity posted by a skill.
type ResourceResponse struct {
	ID string `json:"id"`
}
