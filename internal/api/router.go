package api

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"bycarket/api/internal/api/handlers"
	"bycarket/api/internal/api/middleware"
	"bycarket/api/internal/cache"
	"bycarket/api/internal/chat"
	"bycarket/api/internal/config"
	"bycarket/api/internal/services"
	"bycarket/api/internal/storage"
)

// SetupRouter configures and returns the main Gin engine.
func SetupRouter(cfg *config.Config, db *mongo.Database, rdb *redis.Client, taskClient *asynq.Client, configSvc services.IConfigService) *gin.Engine {
	// Initialize services needed by API handlers HERE.
	// postService must exist before vehicleService (snapshot refresh) and
	// enquiryService (post visibility checks).
	catalogService := services.NewCatalogService(db)
	userService := services.NewUserService(db, cfg)
	searchCache := cache.NewSearchCache(rdb, cfg.SearchCacheTTL)
	postService := services.NewPostService(db, cfg, configSvc, searchCache)
	vehicleService := services.NewVehicleService(db, catalogService, postService)
	enquiryService := services.NewEnquiryService(db, cfg, postService)
	billingService := services.NewBillingService(db, cfg, configSvc, userService)
	chatService := services.NewChatService(db, chat.NewCompletionClient(cfg))

	s3StorageService, err := storage.NewS3Storage(cfg)
	if err != nil {
		log.Fatalf("CRITICAL: Failed to initialize S3 storage for API: %v", err)
	}

	r := gin.Default()

	// Apply global middleware first (order matters: identity before the rate
	// limiter, which keys on it).
	rateLimiter := middleware.NewRateLimiterMiddleware(cfg, configSvc)
	r.Use(middleware.CORSMiddleware())
	r.Use(middleware.OptionalAuthMiddleware(cfg.JwtSecret))
	r.Use(rateLimiter.Limit())

	// Initialize handlers
	restConfigHandler := handlers.NewRestConfigHandler(configSvc)
	restPostHandler := handlers.NewRestPostHandler(postService)
	restVehicleHandler := handlers.NewRestVehicleHandler(vehicleService, s3StorageService, taskClient)
	restCatalogHandler := handlers.NewRestCatalogHandler(catalogService)
	restUserHandler := handlers.NewRestUserHandler(userService, cfg, taskClient)
	restBillingHandler := handlers.NewRestBillingHandler(billingService, userService, taskClient)
	restEnquiryHandler := handlers.NewRestEnquiryHandler(enquiryService, postService, userService, taskClient)
	restChatHandler := handlers.NewRestChatHandler(chatService)

	v1 := r.Group("/v1")
	{
		// Public routes (rate limiting already applied globally)
		v1.GET("/config", restConfigHandler.GetPublicConfig)
		v1.POST("/register", restUserHandler.Register)
		v1.POST("/login", restUserHandler.Login)

		v1.GET("/posts", restPostHandler.SearchPosts)
		v1.GET("/posts/:id", restPostHandler.GetPostByID)
		v1.POST("/posts/:id/enquiries", restEnquiryHandler.CreateEnquiry)

		v1.GET("/brands", restCatalogHandler.ListBrands)
		v1.GET("/brands/:id/models", restCatalogHandler.ListModels)
		v1.GET("/models/:id/versions", restCatalogHandler.ListVersions)

		v1.GET("/users/:id", restUserHandler.GetUserByID)

		v1.GET("/ping", func(c *gin.Context) {
			c.String(http.StatusOK, "pong")
		})

		// Authenticated routes
		authRequired := v1.Group("/")
		authRequired.Use(middleware.AuthMiddleware(cfg.JwtSecret))
		{
			authRequired.GET("/me", restUserHandler.GetMe)
			authRequired.PATCH("/me", restUserHandler.UpdateMe)
			authRequired.DELETE("/me", restUserHandler.DeleteMe)
			authRequired.GET("/me/posts", restPostHandler.GetMyPosts)
			authRequired.GET("/me/quota", restPostHandler.GetPostQuota)
			authRequired.GET("/me/vehicles", restVehicleHandler.GetMyVehicles)
			authRequired.POST("/me/premium", restBillingHandler.SubscribePremium)
			authRequired.GET("/me/invoices", restBillingHandler.GetMyInvoices)

			authRequired.POST("/posts", restPostHandler.CreatePost)
			authRequired.POST("/posts/:id/activate", restPostHandler.ActivatePost)
			authRequired.POST("/posts/:id/deactivate", restPostHandler.DeactivatePost)
			authRequired.POST("/posts/:id/sold", restPostHandler.MarkPostSold)
			authRequired.DELETE("/posts/:id", restPostHandler.DeletePost)
			authRequired.GET("/posts/:id/enquiries", restEnquiryHandler.ListEnquiries)

			authRequired.POST("/vehicles", restVehicleHandler.CreateVehicle)
			authRequired.GET("/vehicles/:id", restVehicleHandler.GetVehicleByID)
			authRequired.PUT("/vehicles/:id", restVehicleHandler.UpdateVehicle)
			authRequired.DELETE("/vehicles/:id", restVehicleHandler.DeleteVehicle)
			authRequired.POST("/vehicles/:id/images", restVehicleHandler.RequestImageUpload)
			authRequired.POST("/vehicles/:id/images/complete", restVehicleHandler.ConfirmImageUpload)

			authRequired.POST("/chat", restChatHandler.SendMessage)
			authRequired.GET("/chat", restChatHandler.ListConversations)
			authRequired.GET("/chat/:id", restChatHandler.GetConversation)
			authRequired.DELETE("/chat/:id", restChatHandler.DeleteConversation)
		}

		// Admin routes
		adminRequired := v1.Group("/admin")
		adminRequired.Use(middleware.AuthMiddleware(cfg.JwtSecret), middleware.AdminMiddleware())
		{
			adminRequired.POST("/posts/:id/approve", restPostHandler.ApprovePost)
			adminRequired.POST("/posts/:id/reject", restPostHandler.RejectPost)
			adminRequired.POST("/users/:id/suspend", restUserHandler.SuspendUser)
			adminRequired.POST("/users/:id/unsuspend", restUserHandler.UnsuspendUser)
			adminRequired.POST("/invoices/:id/paid", restBillingHandler.MarkInvoicePaid)
			adminRequired.POST("/brands", restCatalogHandler.CreateBrand)
			adminRequired.POST("/brands/:id/models", restCatalogHandler.CreateModel)
			adminRequired.POST("/models/:id/versions", restCatalogHandler.CreateVersion)
			adminRequired.PUT("/config/:key", restConfigHandler.SetConfigValue)
		}
	}

	return r
}
