package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/facerecog/internal/api/handlers"
	"github.com/your-org/facerecog/internal/api/ws"
	"github.com/your-org/facerecog/internal/auth"
	"github.com/your-org/facerecog/internal/config"
	"github.com/your-org/facerecog/internal/recognition"
)

// Objects is the photo store surface the HTTP layer needs.
type Objects interface {
	handlers.PhotoUploader
	handlers.PhotoRemover
	handlers.ObjectOpener
}

type RouterConfig struct {
	APIKey        string
	RateLimit     config.RateLimit
	MaxImageBytes int

	Recognition *recognition.Service
	Persons     handlers.PersonStore
	Accounts    handlers.AccountStore
	Objects     Objects
	Sessions    *auth.SessionManager
	Hasher      *auth.Hasher
	Policy      auth.Policy
	Hub         *ws.Hub
	Checks      map[string]handlers.Check
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())
	r.Use(BodyLimitMiddleware(bodyLimit(cfg.MaxImageBytes)))
	r.Use(auth.LoadSession(cfg.Sessions, cfg.Accounts))

	policy := cfg.Policy
	if policy == nil {
		policy = auth.DefaultPolicy()
	}
	limit := RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst)

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.Checks)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Enrollment, capture and recognition
	faceH := handlers.NewFaceHandler(cfg.Recognition, cfg.MaxImageBytes)
	r.GET("/register", faceH.RegisterForm)
	r.POST("/register", limit, faceH.Register)
	r.POST("/capture_face", limit, faceH.Capture)
	r.GET("/success", faceH.Success)
	r.GET("/face_detection", faceH.DetectionPage)
	r.POST("/face_detection", limit, faceH.Recognize)

	mediaH := handlers.NewMediaHandler(cfg.Objects)
	r.GET("/media/*key", mediaH.Get)

	// Accounts
	accountH := handlers.NewAccountHandler(cfg.Accounts, cfg.Objects, cfg.Sessions, cfg.Hasher,
		cfg.Recognition.PhotoURL, cfg.MaxImageBytes)
	r.GET("/register_user", accountH.RegisterForm)
	r.POST("/register_user", accountH.Register)
	r.GET("/login", accountH.LoginForm)
	r.POST("/login", limit, accountH.Login)
	r.POST("/logout", accountH.Logout)
	r.GET("/", auth.RequireLogin(), accountH.Home)

	r.GET("/manager", auth.RequireCapability(policy, auth.CapDashboardView), accountH.Dashboard)
	r.GET("/user/:id", auth.RequireCapability(policy, auth.CapAccountsView), accountH.Detail)
	r.POST("/user/:id", auth.RequireCapability(policy, auth.CapAccountsEdit), accountH.Update)

	// Roster administration
	memberH := handlers.NewMemberHandler(cfg.Persons, cfg.Objects, cfg.Recognition.PhotoURL)
	members := r.Group("/members", auth.RequireCapability(policy, auth.CapRosterManage))
	members.GET("", memberH.List)
	members.GET("/:id/edit", memberH.EditForm)
	members.POST("/:id/edit", memberH.Edit)
	members.GET("/:id/delete", memberH.DeleteConfirm)
	members.POST("/:id/delete", memberH.Delete)

	// Live recognition feed
	r.GET("/ws", auth.RequireCapability(policy, auth.CapEventsWatch), cfg.Hub.HandleWS)

	// Machine API
	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKey))
	v1.POST("/enroll", limit, faceH.EnrollJSON)
	v1.POST("/recognize", limit, faceH.Recognize)
	v1.GET("/persons", memberH.List)

	return r
}
