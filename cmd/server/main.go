package main

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"pixelforge/internal/api"
	"pixelforge/internal/config"
	"pixelforge/internal/model"
	"pixelforge/internal/provider"
	"pixelforge/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

func main() {
	// 初始化配置
	cfg, err := config.ParseConfig()
	if err != nil {
		logrus.WithError(err).Error("Failed to parse config")
		return
	}

	// 初始化logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	repo, err := model.InitRepository(&cfg)
	if err != nil {
		logrus.WithError(err).Error("failed to initialise repository")
		return
	}

	store, err := storage.NewStorage(cfg)
	if err != nil {
		logrus.WithError(err).Error("failed to initialise storage")
		return
	}

	providerClient, err := provider.NewClient(cfg)
	if err != nil {
		logrus.WithError(err).Error("failed to initialise prediction provider")
		return
	}

	httpHandler, err := api.NewHTTPHandler(cfg, repo, store, providerClient)
	if err != nil {
		logrus.WithError(err).Error("failed to initialise http handler")
		return
	}

	// 设置Gin模式
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// 添加中间件
	r.Use(LoggingMiddleware())
	r.Use(CORSMiddleware())
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apiGroup := r.Group("/api")

	authGroup := apiGroup.Group("/auth")
	authGroup.GET("/status", httpHandler.AuthStatus)
	authGroup.POST("/register", httpHandler.Register)
	authGroup.POST("/login", httpHandler.Login)
	authGroup.GET("/me", httpHandler.AuthMiddleware(), httpHandler.Me)

	// 服务商回调不走用户鉴权
	apiGroup.POST("/prediction/webhook", httpHandler.PredictionWebhook)

	protected := apiGroup.Group("")
	protected.Use(httpHandler.AuthMiddleware())

	// 生成入口
	protected.POST("/text-to-image", httpHandler.TextToImage)
	protected.POST("/style-transfer", httpHandler.StyleTransfer)
	protected.POST("/create-avatar", httpHandler.CreateAvatar)
	protected.POST("/photo-restore", httpHandler.PhotoRestore)
	protected.POST("/remove-bg", httpHandler.RemoveBackground)
	protected.POST("/image-edit", httpHandler.ImageEdit)
	protected.POST("/generate-image", httpHandler.GenerateImage)

	// 预测任务
	protected.GET("/prediction/:id", httpHandler.GetPrediction)
	protected.GET("/predictions", httpHandler.ListPredictions)
	protected.GET("/events", httpHandler.StreamGenerationEvents)

	// 作品
	protected.GET("/works", httpHandler.ListWorks)
	protected.GET("/works/:id", httpHandler.GetWork)
	protected.PATCH("/works/:id", httpHandler.UpdateWork)
	protected.DELETE("/works/:id", httpHandler.DeleteWork)

	// 账本与兑换
	protected.GET("/transactions", httpHandler.ListTransactions)
	protected.POST("/redeem", httpHandler.Redeem)
	protected.POST("/upgrade", httpHandler.Upgrade)

	userAdmin := protected.Group("/users")
	userAdmin.Use(httpHandler.RequireAdmin())
	userAdmin.GET("", httpHandler.ListUsers)
	userAdmin.POST("", httpHandler.CreateUser)
	userAdmin.PATCH(":id", httpHandler.UpdateUser)
	userAdmin.DELETE(":id", httpHandler.DeleteUser)
	userAdmin.POST(":id/grant-points", httpHandler.GrantPoints)

	redeemAdmin := protected.Group("/redeem-codes")
	redeemAdmin.Use(httpHandler.RequireAdmin())
	redeemAdmin.GET("", httpHandler.ListRedeemCodes)
	redeemAdmin.POST("", httpHandler.CreateRedeemCode)
	redeemAdmin.POST("/generate", httpHandler.GenerateRedeemCodes)

	if localProvider, ok := store.(storage.LocalBaseDirProvider); ok {
		publicPrefix := strings.TrimSpace(cfg.StoragePublicBaseURL)
		if publicPrefix == "" {
			publicPrefix = "/files"
		}
		if !strings.HasPrefix(publicPrefix, "http://") && !strings.HasPrefix(publicPrefix, "https://") {
			if !strings.HasPrefix(publicPrefix, "/") {
				publicPrefix = "/" + publicPrefix
			}
			r.Static(publicPrefix, localProvider.LocalBaseDir())
		}
	}

	serverHost := fmt.Sprintf("0.0.0.0:%s", cfg.HTTPPort)
	logger.WithField("host", serverHost).Info("服务器启动")
	// 创建HTTP服务器
	httpServer := &http.Server{
		Addr:         serverHost,
		Handler:      r,
		ReadTimeout:  900 * time.Second,
		WriteTimeout: 900 * time.Second,
		IdleTimeout:  1200 * time.Second,
	}
	err = httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		logger.WithError(err).Error("服务器启动失败")
	}
}

// CORSMiddleware CORS跨域中间件
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		c.Header("Access-Control-Allow-Credentials", "true")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// LoggingMiddleware 日志记录中间件
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		// 处理请求
		c.Next()
		// 记录请求结束
		duration := time.Since(start)
		logrus.WithFields(logrus.Fields{
			"method":    c.Request.Method,
			"path":      c.Request.URL.Path,
			"status":    c.Writer.Status(),
			"duration":  duration.String(),
			"size":      c.Writer.Size(),
			"client_ip": c.ClientIP(),
		}).Info("http_request")
	}
}
