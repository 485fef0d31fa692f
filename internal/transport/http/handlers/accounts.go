package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/credential-gate/internal/usecase"
)

// AccountHandler exposes registration, login and logout.
type AccountHandler struct {
	accounts *usecase.AccountService
}

// NewAccountHandler constructs an AccountHandler.
func NewAccountHandler(accounts *usecase.AccountService) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

// RegisterRoutes binds account endpoints. loginMiddlewares run before the login handler only.
func (h *AccountHandler) RegisterRoutes(r *gin.RouterGroup, loginMiddlewares ...gin.HandlerFunc) {
	r.POST("/register", h.Register)
	r.POST("/login", append(loginMiddlewares, h.Login)...)
	r.POST("/logout", h.Logout)
}

// Register godoc
// @Summary Register a new account
// @Tags Accounts
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Registration request"
// @Success 201 {object} AccountSummary
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/v1/accounts/register [post]
func (h *AccountHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid registration payload"))
		return
	}

	acc, err := h.accounts.Register(c.Request.Context(), req.Identifier, req.Password, req.ConfirmPassword)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, newAccountSummary(acc))
}

// Login godoc
// @Summary Authenticate an account
// @Description Applies the account status rules before checking the password.
// @Tags Accounts
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login request"
// @Success 200 {object} LoginResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 429 {object} middleware.ProblemDetails
// @Router /api/v1/accounts/login [post]
func (h *AccountHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "identifier and password are required"))
		return
	}

	result, err := h.accounts.Authenticate(c.Request.Context(), req.Identifier, req.Password)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, LoginResponse{Account: newAccountSummary(result.Account)})
}

// Logout godoc
// @Summary Record a logout
// @Tags Accounts
// @Accept json
// @Param request body LogoutRequest true "Logout request"
// @Success 204
// @Router /api/v1/accounts/logout [post]
func (h *AccountHandler) Logout(c *gin.Context) {
	var req LogoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "identifier is required"))
		return
	}

	if err := h.accounts.Logout(c.Request.Context(), req.Identifier); err != nil {
		respondServiceError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
