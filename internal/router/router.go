package router

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	echoSwagger "github.com/swaggo/echo-swagger"

	"h2grid/internal/auth"
	"h2grid/internal/config"
	"h2grid/internal/handler"
	"h2grid/internal/logger"
	"h2grid/internal/middleware"
	"h2grid/internal/resource"
)

const (
	csrfHeader = "X-CSRF-Token"
	bodyLimit  = "12M"
)

// Deps are the collaborators the middleware chain needs.
type Deps struct {
	Config    *config.Config
	Logger    *logger.Logger
	JWT       *auth.JWTService
	Blacklist auth.TokenBlacklist
	Users     middleware.UserLoader
	RateLimit *middleware.FixedWindowStore
}

// Handlers groups every route handler. Assets is keyed by route segment.
type Handlers struct {
	Auth         *handler.AuthHandler
	User         *handler.UserHandler
	Assets       map[string]*handler.AssetHandler
	Project      *handler.ProjectHandler
	Favorite     *handler.FavoriteHandler
	Optimization *handler.OptimizationHandler
	Admin        *handler.AdminHandler
	Seed         *handler.SeedHandler
	PostGIS      *handler.PostGISHandler
}

// Register wires routes and middleware.
func Register(e *echo.Echo, d Deps, h Handlers) {
	cfg := d.Config

	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = handler.NewHTTPErrorHandler(d.Logger)

	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(d.Logger))
	e.Use(echomw.Recover())
	e.Use(echomw.Secure())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     corsOrigins(cfg.CORSOrigin),
		AllowCredentials: true,
		AllowHeaders: []string{
			echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept,
			echo.HeaderAuthorization, csrfHeader,
		},
	}))
	e.Use(echomw.BodyLimit(bodyLimit))

	e.GET("/health", handler.Health)
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	api := e.Group("/api", middleware.RateLimit(d.RateLimit))
	if cfg.IsProduction() {
		api.Use(echomw.CSRFWithConfig(echomw.CSRFConfig{
			Skipper:        bearerOnly,
			TokenLookup:    "header:" + csrfHeader,
			CookieName:     "_csrf",
			CookiePath:     "/",
			CookieHTTPOnly: true,
			CookieSecure:   true,
			CookieSameSite: http.SameSiteStrictMode,
		}))
		api.GET("/csrf-token", func(c echo.Context) error {
			return c.JSON(http.StatusOK, echo.Map{"csrfToken": c.Get("csrf")})
		})
	}

	authn := middleware.Authenticate(d.JWT, d.Blacklist, d.Users)
	plannerOrAdmin := middleware.RequirePlannerOrAdmin()
	adminOnly := middleware.RequireAdmin()

	// Identity
	users := api.Group("/users")
	users.POST("/register", h.Auth.Register)
	users.POST("/login", h.Auth.Login)
	users.POST("/google", h.Auth.GoogleLogin)
	users.POST("/refresh", h.Auth.Refresh)
	users.POST("/forgot-password", h.Auth.ForgotPassword)
	users.POST("/reset-password", h.Auth.ResetPassword)
	users.POST("/verify-email", h.Auth.VerifyEmail)
	users.POST("/logout", h.Auth.Logout, authn)
	users.POST("/logout-all", h.Auth.LogoutAll, authn)
	users.POST("/send-otp", h.Auth.SendOTP, authn)
	users.POST("/verify-otp", h.Auth.VerifyOTP, authn)
	users.POST("/change-password", h.Auth.ChangePassword, authn)
	users.GET("/me", h.User.GetProfile, authn)
	users.PUT("/me", h.User.UpdateProfile, authn)
	users.DELETE("/me", h.User.DeleteAccount, authn)

	// Assets, one group per type
	for _, def := range resource.All() {
		ah, ok := h.Assets[def.Route]
		if !ok {
			continue
		}
		g := api.Group("/" + def.Route)
		g.GET("", ah.List)
		g.GET("/geo/within", ah.Within)
		g.GET("/geo/near", ah.Near)
		g.GET("/:id", ah.Get)
		g.POST("", ah.Create, authn, middleware.RequireRole(def.Policy.Create...))
		g.PUT("/:id", ah.Update, authn, middleware.RequireRole(def.Policy.Update...))
		g.DELETE("/:id", ah.Delete, authn, middleware.RequireRole(def.Policy.Delete...))
		g.POST("/:id/attachments", ah.AddAttachment, authn, middleware.RequireRole(def.Policy.Update...))
	}

	projects := api.Group("/projects", authn)
	projects.POST("", h.Project.Create)
	projects.GET("", h.Project.List)
	projects.GET("/:id", h.Project.Get)
	projects.PUT("/:id", h.Project.Update)
	projects.DELETE("/:id", h.Project.Delete)

	favorites := api.Group("/favorites", authn)
	favorites.POST("", h.Favorite.Add)
	favorites.GET("", h.Favorite.List)
	favorites.DELETE("", h.Favorite.Remove)

	logs := api.Group("/optimization-logs", authn)
	logs.POST("", h.Optimization.CreateLog)
	logs.GET("", h.Optimization.ListLogs)
	logs.GET("/:id", h.Optimization.GetLog)
	logs.PUT("/:id", h.Optimization.UpdateLog)

	api.POST("/system/optimize", h.Optimization.Optimize, authn)

	analytics := api.Group("/analytics", authn)
	analytics.GET("/suggestions/:kind", h.Optimization.Suggestions, plannerOrAdmin)
	analytics.POST("/optimize", h.Optimization.SystemOptimize, adminOnly)
	analytics.GET("/overview", h.Optimization.Overview, adminOnly)
	analytics.GET("/metrics", h.Optimization.Metrics, plannerOrAdmin)

	admin := api.Group("/admin", authn, adminOnly)
	admin.GET("/users", h.Admin.ListUsers)
	admin.PUT("/users/:userId/role", h.Admin.UpdateRole)
	admin.PUT("/users/:userId/deactivate", h.Admin.Deactivate)
	admin.POST("/users/:userId/force-password-reset", h.Admin.ForcePasswordReset)
	admin.GET("/export", h.Admin.Export)
	admin.POST("/import", h.Admin.Import)
	admin.POST("/seed", h.Seed.Seed)
	admin.GET("/health", h.Admin.Health)

	postgis := api.Group("/postgis")
	postgis.POST("/assets-in-polygon", h.PostGIS.AssetsInPolygon)
	postgis.GET("/nearest-assets", h.PostGIS.NearestAssets)
}

// bearerOnly skips CSRF checks for requests carrying an Authorization header.
func bearerOnly(c echo.Context) bool {
	return c.Request().Header.Get(echo.HeaderAuthorization) != ""
}

func corsOrigins(raw string) []string {
	if raw == "" {
		return []string{"*"}
	}
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
