package handlers

import (
	"context"
	"net/http"
	"sync"

	"github.com/BaSui01/skillbridge/agent/dispatch"
	"github.com/BaSui01/skillbridge/agent/skills"
	"github.com/BaSui01/skillbridge/api"
	"github.com/BaSui01/skillbridge/types"
	"go.uber.org/zap"
)

// =============================================================================
// 💬 活动（轮次）Handler
// =============================================================================

// TurnDispatcher 是 ActivityHandler 依赖的调度能力，*dispatch.Dispatcher 实现了它
type TurnDispatcher interface {
	HandleTurn(ctx context.Context, req dispatch.TurnRequest) (*dispatch.TurnResponse, error)
	UpdateSkillContext(ctx context.Context, conversationID string, values map[string]any) (skills.SkillContext, error)
	SkillContext(ctx context.Context, conversationID string) (skills.SkillContext, error)
	ActiveInvocation(ctx context.Context, conversationID string) (*dispatch.Invocation, error)
}

// ActivityHandler 把 HTTP 请求转换为调度轮次
type ActivityHandler struct {
	dispatcher TurnDispatcher
	logger     *zap.Logger
}

// NewActivityHandler 创建活动处理器
func NewActivityHandler(d TurnDispatcher, logger *zap.Logger) *ActivityHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ActivityHandler{
		dispatcher: d,
		logger:     logger.With(zap.String("handler", "activity")),
	}
}

// Register 注册路由
func (h *ActivityHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/activities", h.HandleActivity)
	mux.HandleFunc("GET /api/v1/conversations/{id}/context", h.HandleGetContext)
	mux.HandleFunc("PATCH /api/v1/conversations/{id}/context", h.HandleUpdateContext)
	mux.HandleFunc("GET /api/v1/conversations/{id}/invocation", h.HandleGetInvocation)
}

// bufferedSurface 收集本轮发往用户的活动，随 HTTP 响应一并返回
type bufferedSurface struct {
	mu  sync.Mutex
	out []*types.Activity
}

func (s *bufferedSurface) SendActivities(_ context.Context, activities ...*types.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out = append(s.out, activities...)
	return nil
}

func (s *bufferedSurface) activities() []*types.Activity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append(make([]*types.Activity, 0, len(s.out)), s.out...)
}

// HandleActivity 处理一次用户轮次
// @Summary 提交用户轮次
// @Description 把活动交给调度器，返回轮次状态与本轮发往用户的活动
// @Tags activity
// @Accept json
// @Produce json
// @Param request body api.ActivityRequest true "轮次请求"
// @Success 200 {object} Response{data=api.ActivityResponse} "轮次结果"
// @Failure 400 {object} Response "请求无效"
// @Failure 404 {object} Response "技能或动作不存在"
// @Failure 502 {object} Response{data=api.ActivityResponse} "技能通信失败"
// @Security ApiKeyAuth
// @Router /api/v1/activities [post]
func (h *ActivityHandler) HandleActivity(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req api.ActivityRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.Activity == nil {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "activity is required", h.logger)
		return
	}

	ctx := r.Context()
	if id := r.Header.Get("X-Request-ID"); id != "" {
		ctx = types.WithRequestID(ctx, id)
	}

	surface := &bufferedSurface{}
	resp, err := h.dispatcher.HandleTurn(ctx, dispatch.TurnRequest{
		Activity: req.Activity,
		SkillID:  req.SkillID,
		ActionID: req.ActionID,
		Surface:  surface,
	})
	if err != nil {
		te, ok := types.AsError(err)
		if !ok {
			te = types.NewError(types.ErrInternalError, "turn failed").WithCause(err)
		}
		WriteErrorWithData(w, te, api.ActivityResponse{
			Status:     api.StatusError,
			SkillID:    te.Skill,
			Activities: surface.activities(),
		}, h.logger)
		return
	}

	WriteSuccess(w, api.ActivityResponse{
		Status:       resp.Status,
		SkillID:      resp.SkillID,
		InvocationID: resp.InvocationID,
		Entities:     resp.Entities,
		Handoff:      resp.Handoff,
		Activities:   surface.activities(),
	})
}

// HandleGetContext 返回会话的 SkillContext
// @Summary 查询 SkillContext
// @Tags conversation
// @Produce json
// @Param id path string true "会话 ID"
// @Success 200 {object} Response{data=api.SkillContextResponse}
// @Security ApiKeyAuth
// @Router /api/v1/conversations/{id}/context [get]
func (h *ActivityHandler) HandleGetContext(w http.ResponseWriter, r *http.Request) {
	convID := r.PathValue("id")
	sc, err := h.dispatcher.SkillContext(r.Context(), convID)
	if err != nil {
		WriteTypedError(w, err, h.logger)
		return
	}
	if sc == nil {
		sc = skills.NewSkillContext()
	}
	WriteSuccess(w, api.SkillContextResponse{ConversationID: convID, Values: sc})
}

// HandleUpdateContext 合并写入会话的 SkillContext
// @Summary 更新 SkillContext
// @Description 值会在下一次开始技能调用时按槽位名精确匹配后传给技能
// @Tags conversation
// @Accept json
// @Produce json
// @Param id path string true "会话 ID"
// @Param request body api.SkillContextRequest true "要合并的值"
// @Success 200 {object} Response{data=api.SkillContextResponse}
// @Failure 400 {object} Response "请求无效"
// @Security ApiKeyAuth
// @Router /api/v1/conversations/{id}/context [patch]
func (h *ActivityHandler) HandleUpdateContext(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req api.SkillContextRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if len(req.Values) == 0 {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "values are required", h.logger)
		return
	}

	convID := r.PathValue("id")
	sc, err := h.dispatcher.UpdateSkillContext(r.Context(), convID, req.Values)
	if err != nil {
		WriteTypedError(w, err, h.logger)
		return
	}
	WriteSuccess(w, api.SkillContextResponse{ConversationID: convID, Values: sc})
}

// HandleGetInvocation 返回会话中活动的技能调用
// @Summary 查询活动调用
// @Tags conversation
// @Produce json
// @Param id path string true "会话 ID"
// @Success 200 {object} Response{data=api.InvocationResponse}
// @Failure 404 {object} Response "没有活动调用"
// @Security ApiKeyAuth
// @Router /api/v1/conversations/{id}/invocation [get]
func (h *ActivityHandler) HandleGetInvocation(w http.ResponseWriter, r *http.Request) {
	inv, err := h.dispatcher.ActiveInvocation(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteTypedError(w, err, h.logger)
		return
	}
	if inv == nil {
		WriteErrorMessage(w, http.StatusNotFound, types.ErrInvalidRequest, "no active invocation", h.logger)
		return
	}
	WriteSuccess(w, api.NewInvocationResponse(inv))
}
