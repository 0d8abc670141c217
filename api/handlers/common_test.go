package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/BaSui01/skillbridge/agent/skills"
	"github.com/BaSui01/skillbridge/api"
	"github.com/BaSui01/skillbridge/testutil/fixtures"
	"github.com/BaSui01/skillbridge/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

func TestWriteSuccess_SkillContextEnvelope(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccess(w, api.SkillContextResponse{
		ConversationID: "conv-7",
		Values:         skills.SkillContext{"location": "Seattle"},
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))

	resp := decodeEnvelope(t, w)
	assert.True(t, resp.Success)
	assert.Nil(t, resp.Error)
	assert.False(t, resp.Timestamp.IsZero())
	data := resp.Data.(map[string]any)
	assert.Equal(t, "conv-7", data["conversation_id"])
	assert.Equal(t, map[string]any{"location": "Seattle"}, data["values"])
}

func TestWriteErrorWithData_FailedTurnKeepsUserFacingActivities(t *testing.T) {
	sorry := types.NewMessage(fixtures.Message("conv-7", "book a meeting"), "Sorry, something went wrong.")
	w := httptest.NewRecorder()
	WriteErrorWithData(w,
		types.NewError(types.ErrHandoffMissing, "skill stream closed before handoff").WithSkill("calendar"),
		api.ActivityResponse{Status: api.StatusError, SkillID: "calendar", Activities: []*types.Activity{sorry}},
		zaptest.NewLogger(t),
	)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	resp := decodeEnvelope(t, w)
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, string(types.ErrHandoffMissing), resp.Error.Code)

	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var turn api.ActivityResponse
	require.NoError(t, json.Unmarshal(raw, &turn))
	assert.Equal(t, api.StatusError, turn.Status)
	assert.Equal(t, "calendar", turn.SkillID)
	require.Len(t, turn.Activities, 1)
	assert.Equal(t, "Sorry, something went wrong.", turn.Activities[0].Text)
	assert.Equal(t, "conv-7", turn.Activities[0].Conversation.ID)
}

func TestWriteTypedError_DispatchFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
		code types.ErrorCode
	}{
		{"unknown skill", types.NewError(types.ErrSkillNotFound, "skill \"music\" is not registered"), http.StatusNotFound, types.ErrSkillNotFound},
		{"unknown action", types.NewError(types.ErrActionNotFound, "no action \"play\""), http.StatusNotFound, types.ErrActionNotFound},
		{"skill unreachable", types.NewError(types.ErrTransportSendFailure, "connect to skill"), http.StatusBadGateway, types.ErrTransportSendFailure},
		{"no handoff", fmt.Errorf("forward: %w", types.NewError(types.ErrHandoffMissing, "stream closed")), http.StatusBadGateway, types.ErrHandoffMissing},
		{"skill rejected token", types.NewError(types.ErrAuthentication, "handshake rejected"), http.StatusUnauthorized, types.ErrAuthentication},
		{"forward throttled", types.NewError(types.ErrRateLimited, "limiter wait"), http.StatusTooManyRequests, types.ErrRateLimited},
		{"bad manifest", types.NewError(types.ErrInvalidConfiguration, "endpoint is required"), http.StatusInternalServerError, types.ErrInvalidConfiguration},
		{"explicit status", types.NewError(types.ErrInvalidRequest, "no active invocation").WithHTTPStatus(http.StatusNotFound), http.StatusNotFound, types.ErrInvalidRequest},
		{"untyped store failure", errors.New("redis: connection refused"), http.StatusInternalServerError, types.ErrInternalError},
		{"unmapped code", types.NewError("SOMETHING_NEW", "?"), http.StatusInternalServerError, "SOMETHING_NEW"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteTypedError(w, tt.err, zaptest.NewLogger(t))

			assert.Equal(t, tt.want, w.Code)
			resp := decodeEnvelope(t, w)
			assert.False(t, resp.Success)
			assert.Equal(t, string(tt.code), resp.Error.Code)
			assert.NotEmpty(t, resp.Error.Message)
		})
	}
}

func TestWriteErrorMessage_RetryableFlag(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, types.NewError(types.ErrTransportSendFailure, "skill unreachable").WithRetryable(true), nil)

	resp := decodeEnvelope(t, w)
	assert.True(t, resp.Error.Retryable)

	w = httptest.NewRecorder()
	WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "values are required", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, decodeEnvelope(t, w).Error.Retryable)
}

func TestDecodeJSONBody_ActivityRequest(t *testing.T) {
	body := `{"skill_id":"calendar","action_id":"createEvent","activity":{"type":"message","text":"tomorrow",` +
		`"from":{"id":"user-1"},"recipient":{"id":"assistant"},"conversation":{"id":"conv-7"}}}`
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/activities", strings.NewReader(body))

	var req api.ActivityRequest
	require.NoError(t, DecodeJSONBody(w, r, &req, zaptest.NewLogger(t)))
	assert.Equal(t, "calendar", req.SkillID)
	assert.Equal(t, "createEvent", req.ActionID)
	require.NotNil(t, req.Activity)
	assert.Equal(t, types.ActivityMessage, req.Activity.Type)
	assert.Equal(t, "conv-7", req.Activity.Conversation.ID)
}

func TestDecodeJSONBody_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"skill_id":"calendar",}`},
		{"unknown field", `{"skill_id":"calendar","priority":1}`},
		{"oversized activity", `{"activity":{"type":"message","text":"` + strings.Repeat("x", 2<<20) + `"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/api/v1/activities", strings.NewReader(tt.body))

			var req api.ActivityRequest
			err := DecodeJSONBody(w, r, &req, nil)
			require.Error(t, err)
			assert.True(t, types.IsCode(err, types.ErrInvalidRequest))
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestValidateContentType(t *testing.T) {
	tests := map[string]bool{
		"application/json":                  true,
		"Application/JSON; charset=UTF-8":   true,
		"application/json;  charset=utf-8":  true,
		"text/plain":                        false,
		"application/x-www-form-urlencoded": false,
		"":                                  false,
	}

	for contentType, want := range tests {
		t.Run(contentType, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/api/v1/activities", nil)
			r.Header.Set("Content-Type", contentType)

			assert.Equal(t, want, ValidateContentType(w, r, nil))
			if !want {
				assert.Equal(t, http.StatusBadRequest, w.Code)
			}
		})
	}
}

func TestResponseWriter_KeepsFirstStatus(t *testing.T) {
	rw := NewResponseWriter(httptest.NewRecorder())
	assert.Equal(t, http.StatusOK, rw.StatusCode)

	rw.WriteHeader(http.StatusBadGateway)
	rw.WriteHeader(http.StatusOK)
	assert.Equal(t, http.StatusBadGateway, rw.StatusCode)
	assert.True(t, rw.Written)
}
