package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	httpHandler "team-caltalk/internal/handler/http"
	gormpersistence "team-caltalk/internal/infra/persistence/gorm"
	"team-caltalk/internal/infra/setup"
	"team-caltalk/internal/longpoll"
	"team-caltalk/internal/middleware"
	"team-caltalk/internal/service"
	"team-caltalk/internal/tasks"
	"team-caltalk/internal/worker"
)

// Config 结构体用于存储从环境变量或文件加载的配置
type Config struct {
	DBUser          string
	DBPassword      string
	DBHost          string
	DBPort          string
	DBName          string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	JWTSecret       string
	ServerPort      string
	LogLevel        string
	RateLimitMax    int
	RateLimitWindow time.Duration
	JWTExpiryHours  int
	AppEnv          string        // 应用环境 (development/production)
	PollTimeout     time.Duration // 长轮询等待者的过期时长
	DispatchFanout  string        // 派发方式: local (单实例) / redis (跨实例广播)
	ReminderLead    time.Duration // 日程提醒的提前量
}

// LoadConfig 从环境变量加载配置
func LoadConfig() (*Config, error) {
	// 优先加载 .env 文件 (如果存在)，忽略错误，允许只使用环境变量
	_ = godotenv.Load()

	cfg := &Config{
		DBUser:        os.Getenv("DB_USER"),
		DBPassword:    os.Getenv("DB_PASSWORD"),
		DBHost:        os.Getenv("DB_HOST"),
		DBPort:        os.Getenv("DB_PORT"),
		DBName:        os.Getenv("DB_NAME"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		ServerPort:    os.Getenv("SERVER_PORT"),
		LogLevel:      os.Getenv("LOG_LEVEL"),
		AppEnv:        os.Getenv("APP_ENV"),
		DispatchFanout: os.Getenv("DISPATCH_FANOUT"),
		// --- 默认值 ---
		RateLimitMax:    100,
		RateLimitWindow: 1 * time.Second,
		JWTExpiryHours:  24,
		PollTimeout:     longpoll.DefaultTimeout,
		ReminderLead:    10 * time.Minute,
	}

	cfg.RedisDB, _ = strconv.Atoi(os.Getenv("REDIS_DB")) // 忽略错误，默认为 0

	if secs, err := strconv.Atoi(os.Getenv("POLL_TIMEOUT_SECONDS")); err == nil && secs > 0 {
		cfg.PollTimeout = time.Duration(secs) * time.Second
	}
	if mins, err := strconv.Atoi(os.Getenv("REMINDER_LEAD_MINUTES")); err == nil && mins > 0 {
		cfg.ReminderLead = time.Duration(mins) * time.Minute
	}

	// --- 其他默认值和必要检查 ---
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.AppEnv == "" {
		cfg.AppEnv = "development"
	}
	if cfg.DispatchFanout == "" {
		cfg.DispatchFanout = "local"
	}
	if cfg.DispatchFanout != "local" && cfg.DispatchFanout != "redis" {
		return nil, fmt.Errorf("DISPATCH_FANOUT must be 'local' or 'redis', got '%s'", cfg.DispatchFanout)
	}
	if cfg.RedisAddr == "" {
		return nil, fmt.Errorf("environment variable REDIS_ADDR must be set")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("environment variable JWT_SECRET must be set")
	}

	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		logrus.Warnf("Invalid LOG_LEVEL '%s', using default 'info'", cfg.LogLevel)
		cfg.LogLevel = "info"
	}

	return cfg, nil
}

// App 结构体包含应用的所有组件和配置
type App struct {
	Config         *Config
	Log            *logrus.Logger
	DB             *gorm.DB
	RedisClient    *redis.Client
	AsynqClient    *asynq.Client
	AsynqServer    *worker.WorkerServer
	Registry       *longpoll.Registry
	HttpServer     *http.Server
	redisNotifier  *longpoll.RedisNotifier // 仅在 redis 派发模式下非 nil
	redisClientOpt asynq.RedisClientOpt
	scheduler      *asynq.Scheduler
}

// NewApp 创建并初始化应用的所有组件
func NewApp() (*App, error) {
	// 1. 加载配置
	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return nil, err
	}

	// 2. 初始化 Logger
	log := logrus.New()
	if cfg.AppEnv == "production" {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, ForceColors: true})
	}
	logLevel, _ := logrus.ParseLevel(cfg.LogLevel) // cfg.LogLevel 已被 LoadConfig 验证
	log.SetLevel(logLevel)
	log.SetOutput(os.Stdout)
	log.Info("Configuration loaded successfully")

	// 3. 初始化基础设施
	log.Info("Initializing infrastructure...")
	db, err := setup.InitDB(cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return nil, fmt.Errorf("failed to init DB: %w", err)
	}
	if err := setup.MigrateDB(db); err != nil {
		return nil, fmt.Errorf("failed to migrate DB: %w", err)
	}
	redisClient, err := setup.InitRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("failed to init Redis: %w", err)
	}
	redisClientOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
	asynqClient := asynq.NewClient(redisClientOpt)
	log.Info("Infrastructure initialized successfully")

	// 4. 初始化 Repositories
	userRepo := gormpersistence.NewGormUserRepository(db)
	teamRepo := gormpersistence.NewGormTeamRepository(db)
	messageRepo := gormpersistence.NewGormMessageRepository(db)
	scheduleRepo := gormpersistence.NewGormScheduleRepository(db)
	log.Info("Repositories initialized")

	// 5. 初始化长轮询核心：单一注册表实例，经由依赖注入传递，
	//    不存在任何包级全局状态
	registry := longpoll.NewRegistry(cfg.PollTimeout)
	var notifier longpoll.Notifier
	var redisNotifier *longpoll.RedisNotifier
	if cfg.DispatchFanout == "redis" {
		redisNotifier = longpoll.NewRedisNotifier(redisClient, registry, "")
		notifier = redisNotifier
		log.Info("Dispatch fanout: redis pub/sub (multi-instance)")
	} else {
		notifier = longpoll.NewLocalNotifier(registry)
		log.Info("Dispatch fanout: local (single instance)")
	}

	// 6. 初始化 Services
	authService, err := service.NewAuthService(userRepo, cfg.JWTSecret, cfg.JWTExpiryHours)
	if err != nil {
		return nil, fmt.Errorf("failed to create AuthService: %w", err)
	}
	teamService := service.NewTeamService(teamRepo)
	conflictService := service.NewConflictService(scheduleRepo)
	scheduleService := service.NewScheduleService(scheduleRepo, teamRepo, conflictService)
	chatService := service.NewChatService(messageRepo, teamRepo, registry, notifier)
	log.Info("Services initialized")

	// 7. 初始化 Handlers
	authHandler := httpHandler.NewAuthHandler(authService)
	teamHandler := httpHandler.NewTeamHandler(teamService)
	messageHandler := httpHandler.NewMessageHandler(chatService)
	scheduleHandler := httpHandler.NewScheduleHandler(scheduleService, conflictService)
	log.Info("Handlers initialized")

	// 8. 初始化 Worker Server
	reminderHandler := worker.NewScheduleReminderHandler(scheduleRepo, chatService, cfg.ReminderLead)
	workerServer := worker.NewWorkerServer(redisClientOpt, reminderHandler, log)
	log.Info("Worker server initialized")

	// 9. 初始化 Gin Engine 和路由
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(log))
	router.Use(corsMiddleware())
	router.Use(middleware.RateLimit(redisClient, cfg.RateLimitMax, cfg.RateLimitWindow))

	api := router.Group("/api")
	authRoutes := api.Group("/auth")
	{
		authRoutes.POST("/register", authHandler.Register)
		authRoutes.POST("/login", authHandler.Login)
	}
	teamRoutes := api.Group("/teams").Use(middleware.Auth(cfg.JWTSecret))
	{
		teamRoutes.POST("", teamHandler.CreateTeam)
		teamRoutes.POST("/join", teamHandler.JoinTeam)
		teamRoutes.POST("/:teamId/messages", messageHandler.PostMessage)
		teamRoutes.GET("/:teamId/messages", messageHandler.ListMessages)
		teamRoutes.GET("/:teamId/messages/poll", messageHandler.PollMessages)
	}
	messageRoutes := api.Group("/messages").Use(middleware.Auth(cfg.JWTSecret))
	{
		messageRoutes.DELETE("/:messageId", messageHandler.DeleteMessage)
	}
	scheduleRoutes := api.Group("/schedules").Use(middleware.Auth(cfg.JWTSecret))
	{
		scheduleRoutes.POST("", scheduleHandler.CreateSchedule)
		scheduleRoutes.PUT("/:scheduleId", scheduleHandler.UpdateSchedule)
		scheduleRoutes.DELETE("/:scheduleId", scheduleHandler.DeleteSchedule)
		scheduleRoutes.POST("/:scheduleId/respond", scheduleHandler.RespondSchedule)
		scheduleRoutes.POST("/check-conflict", scheduleHandler.CheckConflict)
	}
	router.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"message": "pong"}) })
	log.Info("Router setup complete")

	// 10. 初始化 HTTP Server。
	//     注意：长轮询端点会挂起最长 PollTimeout，WriteTimeout 必须
	//     留出余量，否则连接会在等待者过期前被服务器掐断。
	httpServer := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.PollTimeout + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	app := &App{
		Config:         cfg,
		Log:            log,
		DB:             db,
		RedisClient:    redisClient,
		AsynqClient:    asynqClient,
		AsynqServer:    workerServer,
		Registry:       registry,
		HttpServer:     httpServer,
		redisNotifier:  redisNotifier,
		redisClientOpt: redisClientOpt,
	}
	log.Info("Application assembled successfully")

	return app, nil
}

// Start 启动应用的所有后台 Goroutine 和 HTTP 服务器
func (a *App) Start() {
	a.Log.Info("Starting application background routines...")

	if a.redisNotifier != nil {
		a.redisNotifier.Start()
		a.Log.Info("Redis dispatch subscription started")
	}

	go a.AsynqServer.Start()
	a.Log.Info("Asynq worker server routine started")

	a.registerPeriodicTasks()

	go func() {
		a.Log.Infof("HTTP server starting to listen on %s", a.HttpServer.Addr)
		if err := a.HttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Log.Fatalf("Failed to start HTTP server: %v", err)
		}
		a.Log.Info("HTTP server stopped listening.")
	}()
}

// registerPeriodicTasks 注册周期性的日程提醒检查任务
func (a *App) registerPeriodicTasks() {
	a.scheduler = asynq.NewScheduler(a.redisClientOpt, &asynq.SchedulerOpts{})

	taskPayload, err := tasks.NewScheduleReminderCheckTask()
	if err != nil {
		a.Log.Errorf("Failed to create schedule reminder check task payload: %v", err)
		return
	}
	task := asynq.NewTask(tasks.TypeScheduleReminderCheck, taskPayload)

	schedule := "@every 1m"
	entryID, err := a.scheduler.Register(schedule, task, asynq.Queue("default"))
	if err != nil {
		a.Log.Errorf("Could not register periodic reminder check task: %v", err)
	} else {
		a.Log.Infof("Periodic reminder check task registered with schedule '%s' (EntryID: %s)", schedule, entryID)
	}

	go func() {
		a.Log.Info("Asynq scheduler starting...")
		if err := a.scheduler.Run(); err != nil {
			if !errors.Is(err, asynq.ErrServerClosed) {
				a.Log.Errorf("Asynq scheduler Run() failed: %v", err)
			} else {
				a.Log.Info("Asynq scheduler stopped.")
			}
		}
	}()
}

// Shutdown 优雅地关闭应用
func (a *App) Shutdown() {
	a.Log.Info("Shutting down application...")

	// 1. 停止派发订阅，不再有新的跨实例唤醒
	if a.redisNotifier != nil {
		a.redisNotifier.Stop()
	}

	// 2. 停止周期任务调度
	if a.scheduler != nil {
		a.scheduler.Shutdown()
	}

	// 3. 优雅关闭 Worker Server
	if a.AsynqServer != nil {
		a.AsynqServer.Shutdown()
	}

	// 4. 优雅关闭 HTTP 服务器。超时要容下仍在挂起的长轮询请求
	a.Log.Info("Shutting down HTTP server...")
	ctx, cancel := context.WithTimeout(context.Background(), a.Config.PollTimeout+5*time.Second)
	defer cancel()
	if err := a.HttpServer.Shutdown(ctx); err != nil {
		a.Log.Errorf("Error shutting down HTTP server: %v", err)
	} else {
		a.Log.Info("HTTP server shut down gracefully.")
	}

	// 5. 关闭 Asynq Client
	if a.AsynqClient != nil {
		if err := a.AsynqClient.Close(); err != nil {
			a.Log.Errorf("Error closing Asynq client: %v", err)
		}
	}

	// 6. 关闭 Redis 连接
	if a.RedisClient != nil {
		if err := a.RedisClient.Close(); err != nil {
			a.Log.Errorf("Error closing Redis connection: %v", err)
		}
	}

	a.Log.Info("Application shutdown complete.")
}

// corsMiddleware 处理跨域请求头
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		allowedOrigin := os.Getenv("CORS_ALLOWED_ORIGIN")
		if allowedOrigin == "" {
			allowedOrigin = "http://localhost:3000" // 开发默认
		}
		c.Writer.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// LoggerMiddleware 创建一个 Gin 中间件用于记录请求日志
func LoggerMiddleware(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()
		latency := time.Since(startTime)
		statusCode := c.Writer.Status()
		path := c.Request.URL.Path
		if c.Request.URL.RawQuery != "" {
			path = path + "?" + c.Request.URL.RawQuery
		}
		errorMessage := c.Errors.ByType(gin.ErrorTypePrivate).String()

		entry := log.WithFields(logrus.Fields{
			"status_code": statusCode,
			"latency_ms":  latency.Milliseconds(),
			"client_ip":   c.ClientIP(),
			"method":      c.Request.Method,
			"path":        path,
		})

		if errorMessage != "" {
			entry.Error(errorMessage)
		} else if statusCode >= 500 {
			entry.Error("Server error")
		} else if statusCode >= 400 {
			entry.Warn("Client error")
		} else {
			entry.Info("Request handled")
		}
	}
}
