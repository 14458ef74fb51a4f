package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/timecard-works/timecard/internal/apierr"
	apihttp "github.com/timecard-works/timecard/internal/http"
	"github.com/timecard-works/timecard/internal/models"
	"github.com/timecard-works/timecard/internal/portal"
)

// UserHandler manages portal users.
type UserHandler struct {
	svc *portal.Service
}

// NewUserHandler constructs a UserHandler.
func NewUserHandler(svc *portal.Service) *UserHandler {
	return &UserHandler{svc: svc}
}

// userView is the admin projection of a portal user. Password hashes are never exposed.
type userView struct {
	ID          uint64    `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Phone       *string   `json:"phone"`
	HasPassword bool      `json:"has_password"`
	InstanceID  *string   `json:"instance_id"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toUserView(user *models.PortalUser) userView {
	return userView{
		ID:          user.ID,
		Name:        user.Name,
		Email:       user.Email,
		Phone:       user.Phone,
		HasPassword: user.PasswordHash != nil && *user.PasswordHash != "",
		InstanceID:  user.InstanceID,
		IsActive:    user.Active,
		CreatedAt:   user.CreatedAt,
		UpdatedAt:   user.UpdatedAt,
	}
}

// List returns every portal user.
func (h *UserHandler) List(c *gin.Context) {
	users, errList := h.svc.ListUsers(c.Request.Context())
	if errList != nil {
		apierr.Respond(c, errList)
		return
	}
	out := make([]userView, 0, len(users))
	for i := range users {
		out = append(out, toUserView(&users[i]))
	}
	c.JSON(http.StatusOK, gin.H{"users": out})
}

// createUserRequest creates an employee account.
type createUserRequest struct {
	Name  string  `json:"name" binding:"required"`
	Email string  `json:"email" binding:"required"`
	Phone *string `json:"phone"`
}

// Create provisions a portal user with its own PORTAL instance.
func (h *UserHandler) Create(c *gin.Context) {
	var body createUserRequest
	if errBind := apihttp.BindJSON(c, &body); errBind != nil {
		apierr.Respond(c, errBind)
		return
	}
	user, errCreate := h.svc.CreateUser(c.Request.Context(), portal.CreateUserInput{
		Name:  body.Name,
		Email: body.Email,
		Phone: body.Phone,
	})
	if errCreate != nil {
		apierr.Respond(c, errCreate)
		return
	}
	c.JSON(http.StatusCreated, toUserView(user))
}

// updateUserRequest patches a portal user. Absent fields are left unchanged.
type updateUserRequest struct {
	Name       *string `json:"name"`
	Email      *string `json:"email"`
	Phone      *string `json:"phone"`
	InstanceID *string `json:"instance_id"`
	IsActive   *bool   `json:"is_active"`
}

// Update patches a portal user.
func (h *UserHandler) Update(c *gin.Context) {
	id, errID := userID(c)
	if errID != nil {
		apierr.Respond(c, errID)
		return
	}
	var body updateUserRequest
	if errBind := apihttp.BindJSON(c, &body); errBind != nil {
		apierr.Respond(c, errBind)
		return
	}
	user, errUpdate := h.svc.UpdateUser(c.Request.Context(), id, portal.UpdateUserInput{
		Name:       body.Name,
		Email:      body.Email,
		Phone:      body.Phone,
		InstanceID: body.InstanceID,
		Active:     body.IsActive,
	})
	if errUpdate != nil {
		apierr.Respond(c, errUpdate)
		return
	}
	c.JSON(http.StatusOK, toUserView(user))
}

// ResetToken issues a single-use password token and returns it once.
func (h *UserHandler) ResetToken(c *gin.Context) {
	id, errID := userID(c)
	if errID != nil {
		apierr.Respond(c, errID)
		return
	}
	token, expiresAt, errIssue := h.svc.IssueResetToken(c.Request.Context(), id)
	if errIssue != nil {
		apierr.Respond(c, errIssue)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, gin.H{"token": token, "expires_at": expiresAt})
}

func userID(c *gin.Context) (uint64, error) {
	id, errParse := strconv.ParseUint(c.Param("id"), 10, 64)
	if errParse != nil || id == 0 {
		return 0, apierr.NotFound("user_not_found", "portal user not found")
	}
	return id, nil
}
