package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/mmtelinfra/sitestock_backend/config"
	"github.com/mmtelinfra/sitestock_backend/handlers"
	"github.com/mmtelinfra/sitestock_backend/middlewares"
	"github.com/mmtelinfra/sitestock_backend/models"
	"github.com/mmtelinfra/sitestock_backend/workflow"
	"go.opentelemetry.io/otel"
)

const defaultPort = "8080"

var tracer = otel.Tracer("sitestock-inventory")

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-User-Id", "X-User-Name", "X-Correlation-Id"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))
	r.Use(middlewares.RequestContext())

	r.GET("/healthz", func(c *gin.Context) {
		if config.GetDB() == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "starting"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	inventory := r.Group("/inventory")
	{
		inventory.POST("/reconcile", handlers.Reconcile)
		inventory.POST("/allocate", handlers.Allocate)
		inventory.POST("/return", handlers.Return)
		inventory.POST("/activity-edit", handlers.ActivityEdit)

		inventory.POST("/requests", handlers.UpsertRequest)
		inventory.GET("/requests", handlers.ListRequests)
		inventory.POST("/requests/:id/approve", handlers.ApproveRequest)
		inventory.POST("/requests/:id/reject", handlers.RejectRequest)
		inventory.POST("/requests/:id/cancel", handlers.CancelRequest)

		inventory.POST("/procurement", handlers.RecordMissing)

		inventory.GET("/stock", handlers.ListStock)
		inventory.GET("/stock/export", handlers.ExportStock)
		inventory.GET("/stock/:code", handlers.GetStock)
		inventory.GET("/stock/:code/returnable", handlers.GetReturnable)
		inventory.DELETE("/stock/:code", handlers.DeleteStock)

		inventory.GET("/verify", func(c *gin.Context) {
			ctx, span := tracer.Start(c.Request.Context(), "VerifyLedgerConsistency")
			defer span.End()
			violations, err := workflow.VerifyLedgerConsistency(ctx)
			if err != nil {
				handlers.RespondError(c, err)
				return
			}
			handlers.Success(c, gin.H{"violations": violations, "clean": len(violations) == 0})
		})
	}

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	go func() {
		log.Printf("listening on :%s", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	// Connect after the server is listening so the container is considered
	// started quickly; /healthz reports starting until the DB is up.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("forced shutdown: %v", err)
	}
	log.Println("server stopped")
}
