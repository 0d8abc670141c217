package handlers

import (
	"fmt"
	"net/http"

	"github.com/BaSui01/skillbridge/agent/skills"
	"github.com/BaSui01/skillbridge/types"
	"go.uber.org/zap"
)

// =============================================================================
// 🧩 Skill Registry Handler
// =============================================================================

// SkillHandler exposes the registered skill manifests.
type SkillHandler struct {
	registry *skills.Registry
	logger   *zap.Logger
}

// NewSkillHandler creates a skill handler.
func NewSkillHandler(registry *skills.Registry, logger *zap.Logger) *SkillHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SkillHandler{
		registry: registry,
		logger:   logger.With(zap.String("handler", "skills")),
	}
}

// Register mounts the skill routes.
func (h *SkillHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/skills", h.HandleListSkills)
	mux.HandleFunc("GET /api/v1/skills/{id}", h.HandleGetSkill)
}

// HandleListSkills lists all registered skills
// @Summary List skills
// @Description Get every registered skill manifest, ordered by id
// @Tags skill
// @Produce json
// @Success 200 {object} Response{data=[]skills.Manifest} "Skill list"
// @Security ApiKeyAuth
// @Router /api/v1/skills [get]
func (h *SkillHandler) HandleListSkills(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, h.registry.List())
}

// HandleGetSkill gets a single skill manifest
// @Summary Get skill
// @Tags skill
// @Produce json
// @Param id path string true "Skill ID"
// @Success 200 {object} Response{data=skills.Manifest} "Skill manifest"
// @Failure 404 {object} Response "Skill not found"
// @Security ApiKeyAuth
// @Router /api/v1/skills/{id} [get]
func (h *SkillHandler) HandleGetSkill(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	m, ok := h.registry.Get(id)
	if !ok {
		WriteError(w, types.NewError(types.ErrSkillNotFound, fmt.Sprintf("skill %q is not registered", id)).WithSkill(id), h.logger)
		return
	}
	WriteSuccess(w, m)
}
