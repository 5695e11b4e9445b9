package users

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"docfill-backend/internal/shared/server/middleware"
	"docfill-backend/internal/shared/server/respond"
)

const cookieMaxAge = 7 * 24 * 60 * 60

// Handler wires account routes to the service.
type Handler struct {
	Svc          *Service
	CookieSecure bool
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service, cookieSecure bool) *Handler {
	return &Handler{Svc: svc, CookieSecure: cookieSecure}
}

// RegisterRoutes attaches public and authenticated account routes.
func (h *Handler) RegisterRoutes(public, authed *gin.RouterGroup) {
	public.POST("/auth/register", h.register)
	public.POST("/auth/login", h.login)
	public.POST("/auth/logout", h.logout)
	public.POST("/auth/send-reset-otp", h.sendResetOTP)
	public.POST("/auth/reset-password", h.resetPassword)

	authed.POST("/auth/send-verify-otp", h.sendVerifyOTP)
	authed.POST("/auth/verify-account", h.verifyAccount)
	authed.GET("/auth/is-auth", h.isAuth)
	authed.GET("/user/me", h.me)
}

func (h *Handler) register(c *gin.Context) {
	var in RegisterInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid JSON body", nil)
		return
	}
	session, err := h.Svc.Register(c.Request.Context(), in)
	if err != nil {
		writeError(c, err, "register")
		return
	}
	h.setCookie(c, session.Token)
	respond.Success(c, http.StatusCreated, "Registered successfully", gin.H{"user": session.User, "token": session.Token})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid JSON body", nil)
		return
	}
	session, err := h.Svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, err, "login")
		return
	}
	h.setCookie(c, session.Token)
	respond.Success(c, http.StatusOK, "Logged in successfully", gin.H{"user": session.User, "token": session.Token})
}

func (h *Handler) logout(c *gin.Context) {
	h.writeCookie(c, "", -1)
	respond.Success(c, http.StatusOK, "Logged out", nil)
}

func (h *Handler) sendVerifyOTP(c *gin.Context) {
	if err := h.Svc.SendVerifyOTP(c.Request.Context(), middleware.UserIDFromContext(c)); err != nil {
		writeError(c, err, "send verification otp")
		return
	}
	respond.Success(c, http.StatusOK, "Verification OTP sent", nil)
}

type otpRequest struct {
	OTP string `json:"otp"`
}

func (h *Handler) verifyAccount(c *gin.Context) {
	var req otpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid JSON body", nil)
		return
	}
	if err := h.Svc.VerifyAccount(c.Request.Context(), middleware.UserIDFromContext(c), req.OTP); err != nil {
		writeError(c, err, "verify account")
		return
	}
	respond.Success(c, http.StatusOK, "Account verified", nil)
}

func (h *Handler) isAuth(c *gin.Context) {
	respond.Success(c, http.StatusOK, "", nil)
}

type emailRequest struct {
	Email string `json:"email"`
}

func (h *Handler) sendResetOTP(c *gin.Context) {
	var req emailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid JSON body", nil)
		return
	}
	if err := h.Svc.SendResetOTP(c.Request.Context(), req.Email); err != nil {
		writeError(c, err, "send reset otp")
		return
	}
	respond.Success(c, http.StatusOK, "Reset OTP sent", nil)
}

func (h *Handler) resetPassword(c *gin.Context) {
	var in ResetInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid JSON body", nil)
		return
	}
	if err := h.Svc.ResetPassword(c.Request.Context(), in); err != nil {
		writeError(c, err, "reset password")
		return
	}
	respond.Success(c, http.StatusOK, "Password has been reset", nil)
}

func (h *Handler) me(c *gin.Context) {
	user, err := h.Svc.GetByID(c.Request.Context(), middleware.UserIDFromContext(c))
	if err != nil {
		writeError(c, err, "fetch user")
		return
	}
	respond.Success(c, http.StatusOK, "", gin.H{"user": user})
}

func (h *Handler) setCookie(c *gin.Context, token string) {
	h.writeCookie(c, token, cookieMaxAge)
}

func (h *Handler) writeCookie(c *gin.Context, value string, maxAge int) {
	sameSite := http.SameSiteStrictMode
	if h.CookieSecure {
		sameSite = http.SameSiteNoneMode
	}
	c.SetSameSite(sameSite)
	c.SetCookie(middleware.TokenCookie, value, maxAge, "/", "", h.CookieSecure, true)
}

func writeError(c *gin.Context, err error, action string) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		respond.Error(c, http.StatusBadRequest, "validation_error", detail(err), nil)
	case errors.Is(err, ErrEmailTaken):
		respond.Error(c, http.StatusConflict, "conflict", "user already exists", nil)
	case errors.Is(err, ErrInvalidCredentials):
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "invalid email or password", nil)
	case errors.Is(err, ErrAlreadyVerified):
		respond.Error(c, http.StatusBadRequest, "validation_error", "account already verified", nil)
	case errors.Is(err, ErrInvalidOTP):
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid OTP", nil)
	case errors.Is(err, ErrOTPExpired):
		respond.Error(c, http.StatusBadRequest, "validation_error", "OTP expired", nil)
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "user not found", nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to "+action, nil)
	}
}

func detail(err error) string {
	msg := err.Error()
	if idx := strings.Index(msg, ": "); idx >= 0 {
		return msg[idx+2:]
	}
	return msg
}
