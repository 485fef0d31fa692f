package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/credential-gate/internal/usecase"
)

// AdminHandler exposes the administrative endpoints.
type AdminHandler struct {
	admin *usecase.AdminService
}

// NewAdminHandler constructs an AdminHandler.
func NewAdminHandler(admin *usecase.AdminService) *AdminHandler {
	return &AdminHandler{admin: admin}
}

// RegisterRoutes binds the admin login on r and every other endpoint behind auth.
func (h *AdminHandler) RegisterRoutes(r *gin.RouterGroup, auth gin.HandlerFunc, loginMiddlewares ...gin.HandlerFunc) {
	r.POST("/login", append(loginMiddlewares, h.Login)...)

	protected := r.Group("", auth)
	protected.GET("/users", h.ListUsers)
	protected.GET("/activities", h.ListActivities)
	protected.GET("/stats", h.Stats)
	protected.POST("/users/:identifier/status", h.ChangeStatus)
	protected.POST("/users/:identifier/password", h.ChangePassword)
}

// Login godoc
// @Summary Administrative login
// @Tags Admin
// @Accept json
// @Produce json
// @Param request body AdminLoginRequest true "Admin secret"
// @Success 200 {object} AdminLoginResponse
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/admin/login [post]
func (h *AdminHandler) Login(c *gin.Context) {
	var req AdminLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "password is required"))
		return
	}

	session, err := h.admin.Login(c.Request.Context(), req.Password)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, AdminLoginResponse{Token: session.Token, TokenType: "Bearer", ExpiresAt: session.ExpiresAt})
}

// ListUsers godoc
// @Summary List accounts, newest first
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} UserListResponse
// @Router /api/v1/admin/users [get]
func (h *AdminHandler) ListUsers(c *gin.Context) {
	accounts, err := h.admin.ListUsers(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	resp := UserListResponse{Users: make([]AccountSummary, 0, len(accounts))}
	for _, acc := range accounts {
		resp.Users = append(resp.Users, newAccountSummary(acc))
	}
	c.JSON(http.StatusOK, resp)
}

// ListActivities godoc
// @Summary List audit events, newest first
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} ActivityListResponse
// @Router /api/v1/admin/activities [get]
func (h *AdminHandler) ListActivities(c *gin.Context) {
	events, err := h.admin.ListActivities(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	resp := ActivityListResponse{Activities: make([]AuditEventSummary, 0, len(events))}
	for _, ev := range events {
		resp.Activities = append(resp.Activities, newAuditEventSummary(ev))
	}
	c.JSON(http.StatusOK, resp)
}

// Stats godoc
// @Summary Account and audit totals
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} StatsResponse
// @Router /api/v1/admin/stats [get]
func (h *AdminHandler) Stats(c *gin.Context) {
	stats, err := h.admin.Stats(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, StatsResponse{TotalUsers: stats.TotalUsers, TotalActivities: stats.TotalActivities})
}

// ChangeStatus godoc
// @Summary Override an account status
// @Description Bypasses the automatic status rules. The change is audited.
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param identifier path string true "Account identifier"
// @Param request body ChangeStatusRequest true "New status"
// @Success 200 {object} AccountSummary
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /api/v1/admin/users/{identifier}/status [post]
func (h *AdminHandler) ChangeStatus(c *gin.Context) {
	var req ChangeStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "status is required"))
		return
	}

	acc, err := h.admin.ChangeStatus(c.Request.Context(), c.Param("identifier"), req.Status)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, newAccountSummary(acc))
}

// ChangePassword godoc
// @Summary Replace an account password
// @Tags Admin
// @Accept json
// @Security BearerAuth
// @Param identifier path string true "Account identifier"
// @Param request body ChangePasswordRequest true "New password"
// @Success 204
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/admin/users/{identifier}/password [post]
func (h *AdminHandler) ChangePassword(c *gin.Context) {
	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "password is required"))
		return
	}

	if err := h.admin.ChangePassword(c.Request.Context(), c.Param("identifier"), req.Password); err != nil {
		respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
