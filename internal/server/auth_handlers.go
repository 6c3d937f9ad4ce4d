package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"

	"github.com/chatdesk-dev/chatdesk/internal/auth"
	"github.com/chatdesk-dev/chatdesk/internal/models"
)

// RegisterRequest represents a self-service sign-up
type RegisterRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// AccountResponse is returned by login and register. The token sits next to
// the user fields.
type AccountResponse struct {
	ID    string `json:"_id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
	Token string `json:"token"`
}

// UserDetail represents user information returned by the admin routes
type UserDetail struct {
	ID        string    `json:"_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// CreateUserRequest represents a request to create a new user
type CreateUserRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	Role     string `json:"role"`
}

// UpdateUserRequest changes a user. A blank password keeps the current one.
type UpdateUserRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email" binding:"omitempty,email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

func toUserDetail(user *models.User) UserDetail {
	return UserDetail{
		ID:        user.ID,
		Name:      user.Name,
		Email:     user.Email,
		Role:      user.Role,
		CreatedAt: user.CreatedAt,
	}
}

// bindingMessage turns a bind error into a short human message
func bindingMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Invalid request body"
	}
	field := strings.ToLower(verrs[0].Field())
	switch verrs[0].Tag() {
	case "required":
		return field + " is required"
	case "email":
		return "a valid email address is required"
	default:
		return field + " is invalid"
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Server) emailTaken(email, exceptID string) (bool, error) {
	var count int64
	q := s.db.Model(&models.User{}).Where("email = ?", email)
	if exceptID != "" {
		q = q.Where("id <> ?", exceptID)
	}
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// createAccount hashes the password and stores a new user
func (s *Server) createAccount(name, email, password, role string) (*models.User, error) {
	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Name:         strings.TrimSpace(name),
		Email:        email,
		PasswordHash: passwordHash,
		Role:         role,
	}
	if err := s.db.Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Server) respondAccount(c *gin.Context, status int, user *models.User) {
	token, err := auth.GenerateToken(user.ID, user.Email, user.Role)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to generate token")
		respondMessage(c, http.StatusInternalServerError, "Failed to generate token")
		return
	}

	c.JSON(status, AccountResponse{
		ID:    user.ID,
		Name:  user.Name,
		Email: user.Email,
		Role:  user.Role,
		Token: token,
	})
}

// @Router /api/users/register [post]
func (s *Server) register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondMessage(c, http.StatusBadRequest, bindingMessage(err))
		return
	}

	email := normalizeEmail(req.Email)
	taken, err := s.emailTaken(email, "")
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to check email")
		respondMessage(c, http.StatusInternalServerError, "Internal server error")
		return
	}
	if taken {
		respondMessage(c, http.StatusBadRequest, "User already exists")
		return
	}

	user, err := s.createAccount(req.Name, email, req.Password, auth.RoleUser)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to register user")
		respondMessage(c, http.StatusInternalServerError, "Failed to create user")
		return
	}

	s.logger.Info().Str("user_id", user.ID).Str("email", user.Email).Msg("User registered")
	s.respondAccount(c, http.StatusCreated, user)
}

// @Router /api/users/login [post]
func (s *Server) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondMessage(c, http.StatusBadRequest, bindingMessage(err))
		return
	}

	var user models.User
	if err := s.db.Where("email = ?", normalizeEmail(req.Email)).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondMessage(c, http.StatusUnauthorized, "Invalid email or password")
			return
		}
		s.logger.Error().Err(err).Msg("Failed to find user")
		respondMessage(c, http.StatusInternalServerError, "Internal server error")
		return
	}

	if err := auth.VerifyPassword(req.Password, user.PasswordHash); err != nil {
		respondMessage(c, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	s.logger.Info().Str("user_id", user.ID).Str("email", user.Email).Msg("User logged in")
	s.respondAccount(c, http.StatusOK, &user)
}

// @Router /api/admin/users [get]
func (s *Server) listUsers(c *gin.Context) {
	var users []models.User
	if err := s.db.Order("created_at DESC").Find(&users).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to list users")
		respondMessage(c, http.StatusInternalServerError, "Internal server error")
		return
	}

	details := make([]UserDetail, len(users))
	for i := range users {
		details[i] = toUserDetail(&users[i])
	}

	c.JSON(http.StatusOK, details)
}

// @Router /api/admin/users [post]
func (s *Server) createUser(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondMessage(c, http.StatusBadRequest, bindingMessage(err))
		return
	}

	role := req.Role
	if role == "" {
		role = auth.RoleUser
	}
	if err := s.validator.Var(role, "role"); err != nil {
		respondMessage(c, http.StatusBadRequest, "role is invalid")
		return
	}

	email := normalizeEmail(req.Email)
	taken, err := s.emailTaken(email, "")
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to check email")
		respondMessage(c, http.StatusInternalServerError, "Internal server error")
		return
	}
	if taken {
		respondMessage(c, http.StatusBadRequest, "User already exists")
		return
	}

	user, err := s.createAccount(req.Name, email, req.Password, role)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to create user")
		respondMessage(c, http.StatusInternalServerError, "Failed to create user")
		return
	}

	sessionData := accountOf(c)
	s.logger.Info().
		Str("user_id", user.ID).
		Str("email", user.Email).
		Str("created_by", sessionData.UserID).
		Msg("User created")

	c.JSON(http.StatusCreated, toUserDetail(user))
}

// @Router /api/admin/users/{id} [put]
func (s *Server) updateUser(c *gin.Context) {
	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondMessage(c, http.StatusBadRequest, bindingMessage(err))
		return
	}

	var user models.User
	if err := models.FindByID(s.db, c.Param("id"), &user); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondMessage(c, http.StatusNotFound, "User not found")
			return
		}
		s.logger.Error().Err(err).Msg("Failed to find user")
		respondMessage(c, http.StatusInternalServerError, "Internal server error")
		return
	}

	if name := strings.TrimSpace(req.Name); name != "" {
		user.Name = name
	}
	if req.Email != "" {
		email := normalizeEmail(req.Email)
		taken, err := s.emailTaken(email, user.ID)
		if err != nil {
			s.logger.Error().Err(err).Msg("Failed to check email")
			respondMessage(c, http.StatusInternalServerError, "Internal server error")
			return
		}
		if taken {
			respondMessage(c, http.StatusBadRequest, "User already exists")
			return
		}
		user.Email = email
	}
	if req.Role != "" {
		if err := s.validator.Var(req.Role, "role"); err != nil {
			respondMessage(c, http.StatusBadRequest, "role is invalid")
			return
		}
		user.Role = req.Role
	}
	if strings.TrimSpace(req.Password) != "" {
		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			s.logger.Error().Err(err).Msg("Failed to hash password")
			respondMessage(c, http.StatusInternalServerError, "Failed to update user")
			return
		}
		user.PasswordHash = hash
	}

	if err := s.db.Save(&user).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to update user")
		respondMessage(c, http.StatusInternalServerError, "Failed to update user")
		return
	}

	c.JSON(http.StatusOK, toUserDetail(&user))
}

// @Router /api/admin/users/{id} [delete]
func (s *Server) deleteUser(c *gin.Context) {
	userID := c.Param("id")

	sessionData := accountOf(c)
	if userID == sessionData.UserID {
		respondMessage(c, http.StatusBadRequest, "Cannot delete yourself")
		return
	}

	var user models.User
	if err := models.FindByID(s.db, userID, &user); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondMessage(c, http.StatusNotFound, "User not found")
			return
		}
		s.logger.Error().Err(err).Msg("Failed to find user")
		respondMessage(c, http.StatusInternalServerError, "Internal server error")
		return
	}

	if err := s.db.Delete(&user).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to delete user")
		respondMessage(c, http.StatusInternalServerError, "Failed to delete user")
		return
	}

	s.logger.Info().
		Str("user_id", userID).
		Str("deleted_by", sessionData.UserID).
		Msg("User deleted")

	c.Status(http.StatusNoContent)
}
