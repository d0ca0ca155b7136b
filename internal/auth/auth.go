package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/Leonel-Flores1704/Atlas/internal/errors"
	"github.com/Leonel-Flores1704/Atlas/internal/models"
	"github.com/Leonel-Flores1704/Atlas/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	userKey      = "user"
	workspaceKey = "workspace"

	// LoginGrant is the balance a returning user starts a session with.
	LoginGrant = 2500
)

var ErrInvalidToken = errors.New("invalid token")

// Authenticator issues and verifies the HS256 tokens of the simulated login
// flow and resolves every authenticated request to its user workspace.
type Authenticator struct {
	users      services.UserStore
	workspaces *services.WorkspaceService
	limits     services.TierLimits
	secret     []byte
	ttl        time.Duration
}

func NewAuthenticator(users services.UserStore, workspaces *services.WorkspaceService, limits services.TierLimits, secret string, ttl time.Duration) *Authenticator {
	return &Authenticator{
		users:      users,
		workspaces: workspaces,
		limits:     limits,
		secret:     []byte(secret),
		ttl:        ttl,
	}
}

func SetupRoutes(r *gin.Engine, a *Authenticator) {
	auth := r.Group("/auth")
	{
		auth.POST("/register", registerHandler(a))
		auth.POST("/login", loginHandler(a))
		auth.POST("/logout", a.AuthMiddleware(), logoutHandler(a))
		auth.GET("/user", a.AuthMiddleware(), getUser)
	}
}

type credentials struct {
	Email string `json:"email" binding:"required,email"`
	Name  string `json:"name"`
}

// registerHandler starts a brand new account with the full allowance of its
// tier.
func registerHandler(a *Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var request credentials
		if err := c.ShouldBindJSON(&request); err != nil {
			apperrors.HandleError(c, apperrors.New400Error(err.Error()))
			return
		}

		tier := a.currentTier(request.Email)
		limit, _ := a.limits.LimitFor(tier)
		a.signIn(c, request, tier, limit)
	}
}

// loginHandler signs an existing or new user in with the reduced login
// grant.
func loginHandler(a *Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var request credentials
		if err := c.ShouldBindJSON(&request); err != nil {
			apperrors.HandleError(c, apperrors.New400Error(err.Error()))
			return
		}

		tier := a.currentTier(request.Email)
		grant := LoginGrant
		if limit, _ := a.limits.LimitFor(tier); grant > limit {
			grant = limit
		}
		a.signIn(c, request, tier, grant)
	}
}

func logoutHandler(a *Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			apperrors.HandleError(c, apperrors.New401Error())
			return
		}

		a.workspaces.Close(user.ID)
		log.Info().Str("userID", user.ID.String()).Msg("User logged out")
		c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
	}
}

func getUser(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		apperrors.HandleError(c, apperrors.New401Error())
		return
	}
	response := gin.H{"user": user}
	if workspace, ok := CurrentWorkspace(c); ok {
		response["budget"] = workspace.Budget()
	}
	c.JSON(http.StatusOK, response)
}

func (a *Authenticator) currentTier(email string) services.Tier {
	existing, err := a.users.GetUserByEmail(email)
	if err != nil {
		return services.TierStandard
	}
	tier, err := services.ParseTier(existing.Tier)
	if err != nil {
		return services.TierStandard
	}
	return tier
}

func (a *Authenticator) signIn(c *gin.Context, request credentials, tier services.Tier, remaining int) {
	user, err := a.users.CreateOrUpdateUser(request.Email, request.Name, tier, remaining)
	if err != nil {
		apperrors.HandleError(c, apperrors.LogAndReturn500(err))
		return
	}

	// An open workspace is kept; only its budget is reset.
	workspace, err := a.workspaces.Open(user)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	if _, err := workspace.ResetBudget(tier, remaining); err != nil {
		apperrors.HandleError(c, err)
		return
	}

	token, err := a.IssueToken(user)
	if err != nil {
		apperrors.HandleError(c, apperrors.LogAndReturn500(err))
		return
	}

	log.Info().Str("userID", user.ID.String()).Str("tier", string(tier)).Int("remaining", remaining).Msg("User signed in")
	c.JSON(http.StatusOK, gin.H{
		"token":  token,
		"user":   user,
		"budget": workspace.Budget(),
	})
}

// IssueToken signs a token whose subject is the user id.
func (a *Authenticator) IssueToken(user *models.User) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   user.ID.String(),
		"email": user.Email,
		"name":  user.Name,
		"iat":   now.Unix(),
		"exp":   now.Add(a.ttl).Unix(),
	})
	return token.SignedString(a.secret)
}

// AuthMiddleware resolves the bearer token to the stored user and its
// workspace. Websocket clients that cannot set headers pass the token in the
// "token" query parameter instead.
func (a *Authenticator) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := tokenFromRequest(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		userID, err := a.verifyToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		user, err := a.users.GetUserByID(userID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "User no longer exists"})
			return
		}

		workspace, err := a.workspaces.Open(user)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}

		// Set the user in the context
		c.Set(userKey, user)
		c.Set(workspaceKey, workspace)
		c.Next()
	}
}

func tokenFromRequest(c *gin.Context) (string, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		if token := c.Query("token"); token != "" {
			return token, nil
		}
		return "", errors.New("Authorization header is required")
	}

	bearerToken := strings.Split(authHeader, " ")
	if len(bearerToken) != 2 || !strings.EqualFold(bearerToken[0], "Bearer") {
		return "", errors.New("Invalid authorization header")
	}
	return bearerToken[1], nil
}

func (a *Authenticator) verifyToken(tokenString string) (uuid.UUID, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return uuid.Nil, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return uuid.Nil, ErrInvalidToken
	}
	sub, _ := claims["sub"].(string)
	userID, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, ErrInvalidToken
	}
	return userID, nil
}

func CurrentUser(c *gin.Context) (*models.User, bool) {
	value, exists := c.Get(userKey)
	if !exists {
		return nil, false
	}
	user, ok := value.(*models.User)
	return user, ok
}

func CurrentWorkspace(c *gin.Context) (*services.QuerySessionManager, bool) {
	value, exists := c.Get(workspaceKey)
	if !exists {
		return nil, false
	}
	workspace, ok := value.(*services.QuerySessionManager)
	return workspace, ok
}
