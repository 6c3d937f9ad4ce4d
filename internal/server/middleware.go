package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/chatdesk-dev/chatdesk/internal/auth"
	"github.com/chatdesk-dev/chatdesk/internal/models"
)

const accountKey = "account"

// rejection is a request turned away before reaching a handler. Its message
// is what clients display.
type rejection struct {
	status  int
	message string
}

func (r *rejection) Error() string { return r.message }

var (
	errNoAuthHeader  = &rejection{http.StatusUnauthorized, "Missing authorization header"}
	errNotBearer     = &rejection{http.StatusUnauthorized, "Invalid authorization header format"}
	errEmptyToken    = &rejection{http.StatusUnauthorized, "Empty token"}
	errBadToken      = &rejection{http.StatusUnauthorized, "Invalid or expired token"}
	errUnknownUser   = &rejection{http.StatusUnauthorized, "User not found"}
	errAdminRequired = &rejection{http.StatusForbidden, "Admin access required"}
)

// respondMessage writes the {"message": ...} error body the clients read
func respondMessage(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{"message": message})
}

func reject(c *gin.Context, log zerolog.Logger, r *rejection) {
	log.Debug().Str("path", c.FullPath()).Int("status", r.status).Msg(r.message)
	respondMessage(c, r.status, r.message)
	c.Abort()
}

// bearerToken returns the token of an "Authorization: Bearer <token>" header.
// The scheme is matched case-insensitively.
func bearerToken(header string) (string, error) {
	if header == "" {
		return "", errNoAuthHeader
	}
	scheme, tok, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", errNotBearer
	}
	if tok = strings.TrimSpace(tok); tok == "" {
		return "", errEmptyToken
	}
	return tok, nil
}

// authenticate resolves a bearer header to the account it belongs to. The
// user must still exist; its stored role wins over the one in the token.
func authenticate(db *gorm.DB, header string) (*auth.SessionData, error) {
	tok, err := bearerToken(header)
	if err != nil {
		return nil, err
	}

	claims, err := auth.ValidateToken(tok)
	if err != nil {
		return nil, errBadToken
	}

	var user models.User
	if err := models.FindByID(db, claims.UserID, &user); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errUnknownUser
		}
		return nil, err
	}

	return &auth.SessionData{UserID: user.ID, Email: user.Email, Role: user.Role}, nil
}

// RequireToken lets a request through only with a valid token of an existing
// user, and stores that user's account on the context.
func RequireToken(db *gorm.DB, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		account, err := authenticate(db, c.GetHeader("Authorization"))
		if err != nil {
			var r *rejection
			if errors.As(err, &r) {
				reject(c, log, r)
				return
			}
			log.Error().Err(err).Msg("Failed to look up token owner")
			respondMessage(c, http.StatusInternalServerError, "Internal server error")
			c.Abort()
			return
		}

		c.Set(accountKey, account)
		c.Next()
	}
}

// RequireAdmin runs after RequireToken.
func RequireAdmin(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !accountOf(c).IsAdmin() {
			reject(c, log, errAdminRequired)
			return
		}
		c.Next()
	}
}

// accountOf returns the account RequireToken stored. Outside the protected
// group it is the zero account, which owns nothing and is not an admin.
func accountOf(c *gin.Context) *auth.SessionData {
	if account, ok := c.Get(accountKey); ok {
		if data, ok := account.(*auth.SessionData); ok {
			return data
		}
	}
	return &auth.SessionData{}
}
