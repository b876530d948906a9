package server

import (
	"net/http"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	authdomain "github.com/smallbiznis/tenantry/internal/auth/domain"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 72
	maxUserNameLength = 100
)

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

func (r *registerRequest) validate() error {
	errs := &ValidationErrors{}
	r.Email = strings.TrimSpace(r.Email)
	r.Name = strings.TrimSpace(r.Name)

	validateEmail(errs, r.Email)
	switch {
	case len(r.Password) < minPasswordLength:
		errs.add("password", "weak_password", "password must be at least 8 characters")
	case len(r.Password) > maxPasswordLength:
		errs.add("password", "too_long", "password must be at most 72 bytes")
	}
	switch {
	case r.Name == "":
		errs.add("name", "required", "name is required")
	case utf8.RuneCountInString(r.Name) > maxUserNameLength:
		errs.add("name", "too_long", "name must be at most 100 characters")
	}
	return errs.err()
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r *loginRequest) validate() error {
	errs := &ValidationErrors{}
	r.Email = strings.TrimSpace(r.Email)
	if r.Email == "" {
		errs.add("email", "required", "email is required")
	}
	if r.Password == "" {
		errs.add("password", "required", "password is required")
	}
	return errs.err()
}

func validateEmail(errs *ValidationErrors, email string) {
	if email == "" {
		errs.add("email", "required", "email is required")
		return
	}
	if _, err := mail.ParseAddress(email); err != nil {
		errs.add("email", "invalid_email", "email is invalid")
	}
}

func (s *Server) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if err := req.validate(); err != nil {
		AbortWithError(c, err)
		return
	}

	profile, err := s.authsvc.Register(c.Request.Context(), authdomain.RegisterRequest{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, profile)
}

func (s *Server) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if err := req.validate(); err != nil {
		AbortWithError(c, err)
		return
	}

	session, err := s.authsvc.Login(c.Request.Context(), authdomain.LoginRequest{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

func (s *Server) Profile(c *gin.Context) {
	userID, ok := s.userIDFromSession(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	profile, err := s.authsvc.GetProfile(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, profile)
}
