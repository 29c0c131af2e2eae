// Package httpapi exposes the REST surface consumed by the desktop client:
// authentication, upload, job control, and result retrieval.
package httpapi

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/oasis-water/oasis-backend/internal/logging"
	"github.com/oasis-water/oasis-backend/internal/server/config"
	"github.com/oasis-water/oasis-backend/internal/server/models"
	"github.com/oasis-water/oasis-backend/internal/server/services"
)

// SessionManager is the slice of the session service the handlers need.
type SessionManager interface {
	Register(ctx context.Context, email, password, fullName string, role models.Role) (*models.User, error)
	Authenticate(ctx context.Context, email, password string) (*models.User, error)
	IssuePair(ctx context.Context, user *models.User) (*services.TokenPair, error)
	VerifyAccess(ctx context.Context, token string) (*services.Identity, error)
	Rotate(ctx context.Context, refreshToken string) (*services.TokenPair, error)
	Revoke(ctx context.Context, refreshToken string) error
	Profile(ctx context.Context, userID string) (*models.User, error)
	ListUsers(ctx context.Context, limit int) ([]*models.User, error)
}

// JobManager is the slice of the job service the handlers need.
type JobManager interface {
	Create(ctx context.Context, userID string, parameters map[string]any) (*models.Job, error)
	Get(ctx context.Context, userID, jobID string) (*models.Job, error)
	List(ctx context.Context, userID string, statusFilter string, limit int) ([]*models.Job, error)
	SaveUpload(ctx context.Context, userID, jobID, originalFilename string, content []byte) (string, error)
}

// JobStarter begins background execution of a queued job.
type JobStarter interface {
	Begin(ctx context.Context, userID, jobID string) (*models.Job, error)
}

// ArtifactPresigner hands out short-lived download links for mirrored
// result artifacts.
type ArtifactPresigner interface {
	Enabled() bool
	PresignGet(ctx context.Context, key string) (string, error)
}

// Server wires the handlers into a gin engine.
type Server struct {
	engine    *gin.Engine
	sessions  SessionManager
	jobs      JobManager
	starter   JobStarter
	presigner ArtifactPresigner
	config    *config.Config
	logger    logging.Logger
}

// NewServer builds the route table. presigner may be nil when object storage
// is not configured.
func NewServer(sessions SessionManager, jobs JobManager, starter JobStarter, presigner ArtifactPresigner, cfg *config.Config, logger logging.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		engine:    gin.New(),
		sessions:  sessions,
		jobs:      jobs,
		starter:   starter,
		presigner: presigner,
		config:    cfg,
		logger:    logger.With("component", "httpapi"),
	}
	s.routes()
	return s
}

// Engine returns the configured gin engine, ready to serve.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) routes() {
	r := s.engine
	r.Use(gin.Recovery())
	r.Use(s.requestLog())

	r.GET("/health", s.health)

	auth := r.Group("/auth")
	{
		auth.POST("/register", s.register)
		auth.POST("/login", s.login)
		auth.POST("/refresh", s.refresh)
		auth.POST("/logout", s.logout)
		auth.GET("/me", s.authRequired(), s.me)
	}

	admin := r.Group("/admin", s.authRequired(), s.requireRole(models.RoleAdmin))
	{
		admin.GET("/users", s.listUsers)
	}

	api := r.Group("/", s.authRequired())
	{
		api.POST("/upload", s.upload)
		api.POST("/process/:id", s.process)
		api.GET("/status/:id", s.status)
		api.GET("/jobs", s.listJobs)
		api.GET("/results/:id", s.results)
		api.GET("/export/:id", s.export)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(200, gin.H{"status": "ok"})
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		s.logger.Info(c.Request.Context(), "request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
		)
	}
}
