package router

import (
	"net/http"

	"slumber/app/handler"
	"slumber/app/middleware"

	"github.com/gin-gonic/gin"
)

// Router Router
type Router struct {
	workloadHandler *handler.WorkloadHandler
	accountHandler  *handler.AccountHandler
	healthHandler   *handler.HealthHandler
	metricsHandler  http.Handler

	apiKey    string
	wakeToken string
}

// NewRouter creates a new Router. metricsHandler may be nil.
func NewRouter(workloadHandler *handler.WorkloadHandler, accountHandler *handler.AccountHandler, healthHandler *handler.HealthHandler,
	metricsHandler http.Handler, apiKey, wakeToken string) *Router {
	return &Router{
		workloadHandler: workloadHandler,
		accountHandler:  accountHandler,
		healthHandler:   healthHandler,
		metricsHandler:  metricsHandler,
		apiKey:          apiKey,
		wakeToken:       wakeToken,
	}
}

// Setup sets up routes
func (r *Router) Setup(engine *gin.Engine) {
	engine.Use(middleware.Recovery())
	engine.Use(middleware.Logger())

	// Gateway trigger channel, authenticated with the shared wake token
	internal := engine.Group("/internal/v1")
	internal.Use(middleware.BearerAuth(r.wakeToken))
	{
		internal.POST("/workloads/:id/wake", r.workloadHandler.InternalWake)
	}

	// Operator API
	api := engine.Group("/api/v1")
	api.Use(middleware.BearerAuth(r.apiKey))
	{
		workloads := api.Group("/workloads")
		{
			workloads.POST("", r.workloadHandler.Deploy)                  // Deploy
			workloads.GET("", r.workloadHandler.List)                     // List, ?account_id=
			workloads.GET("/:id", r.workloadHandler.Get)                  // Detail
			workloads.POST("/:id/wake", r.workloadHandler.Wake)           // Wake, ?wait=true blocks until RUNNING
			workloads.POST("/:id/hibernate", r.workloadHandler.Hibernate) // Hibernate
			workloads.POST("/:id/export", r.workloadHandler.Export)       // Export data volume
			workloads.GET("/:id/logs", r.workloadHandler.Logs)            // Console output, ?tail=
			workloads.DELETE("/:id", r.workloadHandler.Delete)            // Delete
		}

		api.GET("/templates", r.workloadHandler.ListTemplates)

		if r.accountHandler != nil {
			accounts := api.Group("/accounts")
			{
				accounts.GET("/:id", r.accountHandler.Get)
				accounts.POST("/:id/deposit", r.accountHandler.Deposit)
				accounts.GET("/:id/transactions", r.accountHandler.Transactions)
			}
		}
	}

	// Health check
	if r.healthHandler != nil {
		engine.GET("/healthz", r.healthHandler.Healthz)
	} else {
		engine.GET("/healthz", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})
	}

	if r.metricsHandler != nil {
		engine.GET("/metrics", gin.WrapH(r.metricsHandler))
	}
}
