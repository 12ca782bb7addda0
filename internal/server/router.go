package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/moviebot/internal/catalog"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	adminSubjectContextKey = "moviebot_admin_subject"
	webhookSecretHeader    = "X-Telegram-Bot-Api-Secret-Token"

	// WebhookPath receives Telegram updates in webhook mode.
	WebhookPath = "/telegram/webhook"

	defaultMovieListLimit = 50
	maxMovieListLimit     = 500
)

var (
	errMissingCatalog       = errors.New("catalog dependency required")
	errMissingAudience      = errors.New("audience dependency required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

// UpdateDispatcher accepts updates delivered by the webhook.
type UpdateDispatcher interface {
	Dispatch(update tgbotapi.Update)
}

// AdminTokenValidator validates admin bearer tokens.
type AdminTokenValidator interface {
	ValidateToken(token string) (string, error)
}

// CatalogReader exposes catalog listings to the admin API.
type CatalogReader interface {
	List(ctx context.Context, limit int) ([]catalog.Movie, error)
	Count(ctx context.Context) (int64, error)
}

// AudienceCounter counts known users.
type AudienceCounter interface {
	Count(ctx context.Context) (int64, error)
}

// TokenCleaner deletes stale download tokens.
type TokenCleaner interface {
	Cleanup(ctx context.Context) (int64, error)
}

// Dependencies wires the HTTP surface. A nil Dispatcher disables the webhook route
// and a nil AdminTokens disables the admin API.
type Dependencies struct {
	Dispatcher    UpdateDispatcher
	WebhookSecret string
	AdminTokens   AdminTokenValidator
	Catalog       CatalogReader
	Audience      AudienceCounter
	Tokens        TokenCleaner
	Logger        *zap.Logger
}

// NewHTTPHandler builds the gin router for health, metrics, webhook and admin routes.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Catalog == nil {
		return nil, errMissingCatalog
	}
	if deps.Audience == nil {
		return nil, errMissingAudience
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	handler := &httpHandler{
		dispatcher:    deps.Dispatcher,
		webhookSecret: deps.WebhookSecret,
		adminTokens:   deps.AdminTokens,
		catalog:       deps.Catalog,
		audience:      deps.Audience,
		tokens:        deps.Tokens,
		logger:        logger,
	}

	router.GET("/healthz", handler.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if deps.Dispatcher != nil {
		router.POST(WebhookPath, handler.handleWebhook)
	}

	if deps.AdminTokens != nil {
		admin := router.Group("/admin")
		admin.Use(handler.authorizeRequest)
		admin.GET("/stats", handler.handleStats)
		admin.GET("/movies", handler.handleMovies)
		if deps.Tokens != nil {
			admin.POST("/tokens/cleanup", handler.handleTokenCleanup)
		}
	}

	return router, nil
}

func corsMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:    []string{"Authorization", "Content-Type"},
		MaxAge:          12 * time.Hour,
	})
}

type httpHandler struct {
	dispatcher    UpdateDispatcher
	webhookSecret string
	adminTokens   AdminTokenValidator
	catalog       CatalogReader
	audience      AudienceCounter
	tokens        TokenCleaner
	logger        *zap.Logger
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) handleWebhook(c *gin.Context) {
	if h.webhookSecret != "" {
		provided := c.GetHeader(webhookSecretHeader)
		if subtle.ConstantTimeCompare([]byte(provided), []byte(h.webhookSecret)) != 1 {
			h.logger.Warn("webhook secret mismatch", zap.String("remote_addr", c.ClientIP()))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
	}

	var update tgbotapi.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_update"})
		return
	}
	h.dispatcher.Dispatch(update)
	c.Status(http.StatusOK)
}

type statsResponsePayload struct {
	Users  int64 `json:"users"`
	Movies int64 `json:"movies"`
}

func (h *httpHandler) handleStats(c *gin.Context) {
	users, err := h.audience.Count(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to count users", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "stats_failed"})
		return
	}
	movies, err := h.catalog.Count(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to count movies", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "stats_failed"})
		return
	}
	c.JSON(http.StatusOK, statsResponsePayload{Users: users, Movies: movies})
}

type moviePayload struct {
	Code           string `json:"code"`
	Title          string `json:"title"`
	Parts          int    `json:"parts"`
	AvailableParts []int  `json:"available_parts"`
	CreatedAt      int64  `json:"created_at_s"`
}

type moviesResponsePayload struct {
	Movies []moviePayload `json:"movies"`
}

func (h *httpHandler) handleMovies(c *gin.Context) {
	limit := defaultMovieListLimit
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_limit"})
			return
		}
		limit = min(parsed, maxMovieListLimit)
	}

	movies, err := h.catalog.List(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list movies", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list_failed"})
		return
	}

	response := moviesResponsePayload{Movies: make([]moviePayload, 0, len(movies))}
	for _, movie := range movies {
		response.Movies = append(response.Movies, moviePayload{
			Code:           movie.Code,
			Title:          movie.Title,
			Parts:          movie.Parts,
			AvailableParts: movie.FileIDs().AvailableParts(),
			CreatedAt:      movie.CreatedAt.Unix(),
		})
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handleTokenCleanup(c *gin.Context) {
	deleted, err := h.tokens.Cleanup(c.Request.Context())
	if err != nil {
		h.logger.Error("token cleanup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cleanup_failed"})
		return
	}
	h.logger.Info("token cleanup requested",
		zap.String("subject", c.GetString(adminSubjectContextKey)),
		zap.Int64("deleted", deleted))
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	subject, err := h.adminTokens.ValidateToken(token)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(adminSubjectContextKey, subject)
	c.Next()
}
