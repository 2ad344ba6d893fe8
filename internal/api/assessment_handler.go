package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/banking/riskguard/internal/domain"
	"github.com/banking/riskguard/internal/repository/elasticsearch"
	"github.com/banking/riskguard/internal/service"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type AssessmentHandler struct {
	assessments *service.AssessmentService
	search      *elasticsearch.SearchRepository
}

func NewAssessmentHandler(assessments *service.AssessmentService, search *elasticsearch.SearchRepository) *AssessmentHandler {
	return &AssessmentHandler{
		assessments: assessments,
		search:      search,
	}
}

// EvaluateRisk handles POST /dossiers/:dossier_id/evaluate
func (h *AssessmentHandler) EvaluateRisk(c echo.Context) error {
	dossierID, err := uuid.Parse(c.Param("dossier_id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid dossier_id"})
	}

	result, err := h.assessments.EvaluateRisk(c.Request().Context(), dossierID)
	if err != nil {
		return h.errorResponse(c, err)
	}

	return c.JSON(http.StatusOK, result)
}

// DetectFraud handles POST /dossiers/:dossier_id/fraud-check
func (h *AssessmentHandler) DetectFraud(c echo.Context) error {
	dossierID, err := uuid.Parse(c.Param("dossier_id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid dossier_id"})
	}

	alerts, err := h.assessments.DetectFraud(c.Request().Context(), dossierID)
	if err != nil {
		return h.errorResponse(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"dossier_id": dossierID,
		"alerts":     alerts,
		"critical":   domain.HasCritical(alerts),
	})
}

type transitionRequest struct {
	TargetState string `json:"target_state"`
	ActorRole   string `json:"actor_role"`
	Reason      string `json:"reason"`
}

// RequestTransition handles POST /dossiers/:dossier_id/transitions
func (h *AssessmentHandler) RequestTransition(c echo.Context) error {
	dossierID, err := uuid.Parse(c.Param("dossier_id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid dossier_id"})
	}

	var req transitionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.TargetState == "" || req.ActorRole == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "target_state and actor_role are required"})
	}

	entry, err := h.assessments.RequestTransition(c.Request().Context(), dossierID,
		domain.WorkflowState(req.TargetState), domain.ActorRole(req.ActorRole), req.Reason)
	if err != nil {
		return h.errorResponse(c, err)
	}

	return c.JSON(http.StatusOK, entry)
}

// AllowedTransitions handles GET /dossiers/:dossier_id/transitions. It
// surfaces the actions the given role may request from the dossier's
// current state, so clients can render only the buttons that will work.
func (h *AssessmentHandler) AllowedTransitions(c echo.Context) error {
	dossierID, err := uuid.Parse(c.Param("dossier_id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid dossier_id"})
	}

	role := c.QueryParam("role")
	if role == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "missing query parameter 'role'"})
	}

	state, targets, err := h.assessments.AllowedTransitions(c.Request().Context(), dossierID, domain.ActorRole(role))
	if err != nil {
		return h.errorResponse(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"dossier_id": dossierID,
		"state":      state,
		"targets":    targets,
	})
}

// Simulate handles POST /dossiers/:dossier_id/simulate
func (h *AssessmentHandler) Simulate(c echo.Context) error {
	dossierID, err := uuid.Parse(c.Param("dossier_id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid dossier_id"})
	}

	var overrides service.Overrides
	if err := c.Bind(&overrides); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	result, err := h.assessments.Simulate(c.Request().Context(), dossierID, overrides)
	if err != nil {
		return h.errorResponse(c, err)
	}

	return c.JSON(http.StatusOK, result)
}

// ArchiveReport handles POST /dossiers/:dossier_id/report
func (h *AssessmentHandler) ArchiveReport(c echo.Context) error {
	dossierID, err := uuid.Parse(c.Param("dossier_id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid dossier_id"})
	}

	report, err := h.assessments.ArchiveAssessment(c.Request().Context(), dossierID)
	if err != nil {
		return h.errorResponse(c, err)
	}

	return c.JSON(http.StatusCreated, report)
}

// VerifyAuditTrail handles GET /dossiers/:dossier_id/audit/verify
func (h *AssessmentHandler) VerifyAuditTrail(c echo.Context) error {
	dossierID, err := uuid.Parse(c.Param("dossier_id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid dossier_id"})
	}

	valid, err := h.assessments.VerifyAuditTrail(c.Request().Context(), dossierID)
	if err != nil {
		return h.errorResponse(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"dossier_id": dossierID,
		"valid":      valid,
	})
}

// SearchAssessments handles GET /assessments/search
func (h *AssessmentHandler) SearchAssessments(c echo.Context) error {
	if h.search == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "search is not available"})
	}

	query := c.QueryParam("q")
	if query == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "missing query parameter 'q'"})
	}

	from, _ := strconv.Atoi(c.QueryParam("from"))
	size, _ := strconv.Atoi(c.QueryParam("size"))
	if size == 0 {
		size = 20
	}

	docs, total, err := h.search.SearchAssessments(c.Request().Context(), query, from, size)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "search failed"})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"results": docs,
		"total":   total,
	})
}

// errorResponse maps domain errors to HTTP status codes
func (h *AssessmentHandler) errorResponse(c echo.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrDossierNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "dossier not found"})
	case errors.Is(err, domain.ErrIllegalTransition):
		return c.JSON(http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrUnauthorizedRole):
		return c.JSON(http.StatusForbidden, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrConcurrentModification):
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	}

	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": validationErr.Error()})
	}

	return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

// RegisterRoutes registers the API routes
func (h *AssessmentHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/dossiers/:dossier_id/evaluate", h.EvaluateRisk)
	g.POST("/dossiers/:dossier_id/fraud-check", h.DetectFraud)
	g.POST("/dossiers/:dossier_id/transitions", h.RequestTransition)
	g.GET("/dossiers/:dossier_id/transitions", h.AllowedTransitions)
	g.POST("/dossiers/:dossier_id/simulate", h.Simulate)
	g.POST("/dossiers/:dossier_id/report", h.ArchiveReport)
	g.GET("/dossiers/:dossier_id/audit/verify", h.VerifyAuditTrail)
	g.GET("/assessments/search", h.SearchAssessments)
}
