package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/oasis-water/oasis-backend/internal/common"
	"github.com/oasis-water/oasis-backend/internal/server/models"
	"github.com/oasis-water/oasis-backend/internal/server/services"
)

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func userView(u *models.User) gin.H {
	view := gin.H{
		"id":         u.ID,
		"email":      u.Email,
		"full_name":  u.FullName,
		"role":       u.Role,
		"is_active":  u.IsActive,
		"created_at": u.CreatedAt.Format(time.RFC3339),
	}
	if !u.LastSeenAt.IsZero() {
		view["last_seen_at"] = u.LastSeenAt.Format(time.RFC3339)
	}
	return view
}

func tokenView(p *services.TokenPair) gin.H {
	return gin.H{
		"access_token":  p.AccessToken,
		"refresh_token": p.RefreshToken,
		"token_type":    p.TokenType,
		"expires_in":    p.ExpiresIn,
	}
}

func (s *Server) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fmt.Errorf("%w: invalid request body", common.ErrValidation))
		return
	}

	user, err := s.sessions.Register(c.Request.Context(), req.Email, req.Password, req.FullName, models.RoleUser)
	if err != nil {
		writeError(c, err)
		return
	}

	pair, err := s.sessions.IssuePair(c.Request.Context(), user)
	if err != nil {
		writeError(c, err)
		return
	}
	view := tokenView(pair)
	view["user"] = userView(user)
	c.JSON(http.StatusCreated, view)
}

func (s *Server) login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fmt.Errorf("%w: invalid request body", common.ErrValidation))
		return
	}

	user, err := s.sessions.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}

	pair, err := s.sessions.IssuePair(c.Request.Context(), user)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tokenView(pair))
}

func (s *Server) refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		writeError(c, fmt.Errorf("%w: refresh_token is required", common.ErrValidation))
		return
	}

	pair, err := s.sessions.Rotate(c.Request.Context(), req.RefreshToken)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tokenView(pair))
}

func (s *Server) logout(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		writeError(c, fmt.Errorf("%w: refresh_token is required", common.ErrValidation))
		return
	}

	if err := s.sessions.Revoke(c.Request.Context(), req.RefreshToken); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) me(c *gin.Context) {
	user, err := s.sessions.Profile(c.Request.Context(), identity(c).UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, userView(user))
}

func (s *Server) listUsers(c *gin.Context) {
	users, err := s.sessions.ListUsers(c.Request.Context(), 0)
	if err != nil {
		writeError(c, err)
		return
	}

	views := make([]gin.H, len(users))
	for i, u := range users {
		views[i] = userView(u)
	}
	c.JSON(http.StatusOK, gin.H{"users": views, "total": len(views)})
}
