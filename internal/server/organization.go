package server

import (
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	orgdomain "github.com/smallbiznis/tenantry/internal/organization/domain"
)

const (
	minOrganizationNameLength = 2
	maxOrganizationNameLength = 100
)

type createOrganizationRequest struct {
	Name string `json:"name"`
}

func (r *createOrganizationRequest) validate() error {
	errs := &ValidationErrors{}
	r.Name = strings.TrimSpace(r.Name)
	validateOrganizationName(errs, r.Name)
	return errs.err()
}

type updateOrganizationRequest struct {
	Name *string `json:"name"`
}

func (r *updateOrganizationRequest) validate() error {
	errs := &ValidationErrors{}
	if r.Name != nil {
		name := strings.TrimSpace(*r.Name)
		r.Name = &name
		validateOrganizationName(errs, name)
	}
	return errs.err()
}

type addMemberRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (r *addMemberRequest) validate() error {
	errs := &ValidationErrors{}
	r.Email = strings.TrimSpace(r.Email)
	r.Role = strings.ToUpper(strings.TrimSpace(r.Role))

	validateEmail(errs, r.Email)
	if !orgdomain.ValidRole(r.Role) {
		errs.add("role", "invalid_role", "role must be ADMIN or MEMBER")
	}
	return errs.err()
}

func validateOrganizationName(errs *ValidationErrors, name string) {
	n := utf8.RuneCountInString(name)
	switch {
	case n == 0:
		errs.add("name", "required", "name is required")
	case n < minOrganizationNameLength:
		errs.add("name", "too_short", "name must be at least 2 characters")
	case n > maxOrganizationNameLength:
		errs.add("name", "too_long", "name must be at most 100 characters")
	}
}

func (s *Server) CreateOrganization(c *gin.Context) {
	userID, ok := s.userIDFromSession(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req createOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if err := req.validate(); err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.organizationSvc.Create(c.Request.Context(), userID, orgdomain.CreateOrganizationRequest{
		Name: req.Name,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (s *Server) ListOrganizations(c *gin.Context) {
	userID, ok := s.userIDFromSession(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	items, err := s.organizationSvc.List(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if items == nil {
		items = []orgdomain.OrganizationResponse{}
	}

	c.JSON(http.StatusOK, items)
}

func (s *Server) GetOrganization(c *gin.Context) {
	userID, ok := s.userIDFromSession(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	resp, err := s.organizationSvc.Get(c.Request.Context(), pathID(c, "id"), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) UpdateOrganization(c *gin.Context) {
	userID, ok := s.userIDFromSession(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req updateOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if err := req.validate(); err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.organizationSvc.Update(c.Request.Context(), pathID(c, "id"), userID, orgdomain.UpdateOrganizationRequest{
		Name: req.Name,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) DeleteOrganization(c *gin.Context) {
	userID, ok := s.userIDFromSession(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	if err := s.organizationSvc.Remove(c.Request.Context(), pathID(c, "id"), userID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Organization deleted successfully"})
}

func (s *Server) ListMembers(c *gin.Context) {
	userID, ok := s.userIDFromSession(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	items, err := s.organizationSvc.ListMembers(c.Request.Context(), pathID(c, "id"), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if items == nil {
		items = []orgdomain.MemberResponse{}
	}

	c.JSON(http.StatusOK, items)
}

func (s *Server) AddMember(c *gin.Context) {
	userID, ok := s.userIDFromSession(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req addMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if err := req.validate(); err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.organizationSvc.AddMember(c.Request.Context(), pathID(c, "id"), userID, orgdomain.AddMemberRequest{
		Email: req.Email,
		Role:  req.Role,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (s *Server) RemoveMember(c *gin.Context) {
	userID, ok := s.userIDFromSession(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	memberID := pathID(c, "memberId")
	if memberID == 0 {
		AbortWithError(c, orgdomain.ErrMemberNotFound)
		return
	}

	if err := s.organizationSvc.RemoveMember(c.Request.Context(), pathID(c, "id"), memberID, userID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Member removed successfully"})
}

// pathID parses a snowflake path parameter. Malformed ids become 0, which
// the services treat as an unknown record.
func pathID(c *gin.Context, name string) snowflake.ID {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param(name)))
	if err != nil || id < 0 {
		return 0
	}
	return id
}
