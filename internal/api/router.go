package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/your-org/attendance/internal/api/handlers"
	"github.com/your-org/attendance/internal/api/ws"
	"github.com/your-org/attendance/internal/auth"
)

type RouterConfig struct {
	JWTSecret   string
	JWTAudience string
	MaxUpload   int64
	MaxPixels   int64

	Users   handlers.UserRepository
	Objects handlers.ObjectStore
	Records handlers.AttendanceLister
	// Verifier and CheckIn are nil when the face analyzer failed to load.
	Verifier handlers.Verifier
	CheckIn  handlers.CheckInService
	Checks   []handlers.Check
	Hub      *ws.Hub
	Logger   *zap.Logger
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggingMiddleware(logger))
	r.Use(cors.Default())

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.Checks...)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authMW := auth.JWTMiddleware(cfg.JWTSecret, cfg.JWTAudience)
	attendanceH := handlers.NewAttendanceHandler(cfg.CheckIn, cfg.Records, cfg.MaxUpload)

	att := r.Group("/attendance", authMW)
	att.POST("/validate/images", attendanceH.Validate)

	v1 := r.Group("/v1", authMW)

	verifyH := handlers.NewVerifyHandler(cfg.Verifier, cfg.MaxUpload)
	v1.POST("/verify", verifyH.Verify)

	userH := handlers.NewUserHandler(cfg.Users, cfg.Objects, cfg.MaxUpload, cfg.MaxPixels)
	v1.POST("/users", userH.Create)
	v1.GET("/users/:id", userH.Get)
	v1.POST("/users/:id/profile-picture", userH.UploadProfilePicture)
	v1.GET("/users/:id/attendance", attendanceH.List)

	if cfg.Hub != nil {
		v1.GET("/ws", cfg.Hub.HandleWS)
	}

	return r
}
