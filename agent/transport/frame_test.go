package transport

import (
	"net/http"
	"testing"

	"github.com/BaSui01/skillbridge/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrame_RequestResponse(t *testing.T) {
	a := &types.Activity{
		Type:         types.ActivityMessage,
		Text:         "hello",
		Conversation: types.ConversationAccount{ID: "conv-1"},
	}
	req, err := NewRequest(http.MethodPost, PathMessages, a)
	require.NoError(t, err)
	assert.NotEmpty(t, req.ID)
	assert.Equal(t, FrameRequest, req.Kind)
	assert.NotNil(t, req.Headers)

	got, err := req.Activity()
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Text)

	resp, err := NewResponse(req, http.StatusOK, ResourceResponse{ID: "a1"})
	require.NoError(t, err)
	assert.Equal(t, req.ID, resp.ID)
	assert.Equal(t, FrameResponse, resp.Kind)
	assert.JSONEq(t, `{"id":"a1"}`, string(resp.Body))
}

func TestFrame_ActivityWithoutBody(t *testing.T) {
	f := &Frame{ID: "x", Kind: FrameRequest}
	_, err := f.Activity()
	assert.Error(t, err)
}

func TestActivityPath(t *testing.T) {
	assert.Equal(t, "/v3/conversations/conv-1/activities/act-1", ActivityPath("conv-1", "act-1"))
	assert.Equal(t, "/v3/conversations/a%2Fb/activities", ActivityPath("a/b", ""))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		activity *types.Activity
		kind     CallbackKind
		ok       bool
	}{
		{"nil", nil, "", false},
		{"end of conversation", &types.Activity{Type: types.ActivityEndOfConversation}, CallbackHandoff, true},
		{"token request", &types.Activity{Type: types.ActivityEvent, Name: types.EventTokenRequest}, CallbackTokenRequest, true},
		{"fallback request", &types.Activity{Type: types.ActivityEvent, Name: types.EventFallbackRequest}, CallbackFallbackRequest, true},
		{"other event", &types.Activity{Type: types.ActivityEvent, Name: "custom"}, "", false},
		{"message named like an event", &types.Activity{Type: types.ActivityMessage, Name: types.EventTokenRequest}, "", false},
		{"message", &types.Activity{Type: types.ActivityMessage, Text: "hi"}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, ok := Classify(tt.activity)
			assert.Equal(t, tt.kind, kind)
			assert.Equal(t, tt.ok, ok)
		})
	}
}
