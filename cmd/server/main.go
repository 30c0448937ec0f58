package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	config "github.com/postwise/postwise/configs"
	"github.com/postwise/postwise/internal/api/handlers"
	"github.com/postwise/postwise/internal/api/middleware"
	job "github.com/postwise/postwise/internal/jobs"
	"github.com/postwise/postwise/internal/notify"
	"github.com/postwise/postwise/internal/provider"
	"github.com/postwise/postwise/internal/queue"
	"github.com/postwise/postwise/internal/repository"
	"github.com/postwise/postwise/internal/service"
	"github.com/robfig/cron"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}

	cfg := config.LoadConfig()

	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer closeDB(db)

	if err := db.Ping(); err != nil {
		log.Fatalf("Database is unreachable: %v", err)
	}

	redisConn := asynq.RedisClientOpt{Addr: cfg.RedisURI}
	queueManager := queue.NewManager(redisConn, cfg.PublishMaxAttempts)
	defer queueManager.Close()

	app := fiber.New(fiber.Config{
		ReadTimeout:  2 * time.Minute,
		WriteTimeout: 2 * time.Minute,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Printf("Error: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.FrontendURL,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	userRepo := repository.NewUserRepository(db)
	postRepo := repository.NewPostRepository(db)
	channelRepo := repository.NewChannelRepository(db)
	publishedPostRepo := repository.NewPublishedPostRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	brandMemberRepo := repository.NewBrandMemberRepository(db)

	providers := provider.NewRegistry(*cfg)

	emailSender, err := notify.NewPostmarkSender(cfg.Postmark)
	if err != nil {
		// notifications still land in the database, only email is off
		log.Println("Warning: email delivery disabled:", err)
		emailSender = nil
	}
	dispatcher := notify.NewDispatcher(notificationRepo, userRepo, emailSender)

	postService := service.NewPostService(db, postRepo, channelRepo, brandMemberRepo, queueManager)
	channelService := service.NewChannelService(*cfg, channelRepo, providers)

	authMiddleware := middleware.NewAuthMiddleware(*cfg)

	api := app.Group("/api")
	api.Use(authMiddleware.AuthMiddleware())

	post := handlers.NewPostHandler(postService)
	api.Post("/posts/create", post.CreatePost)
	api.Get("/posts", post.ListPosts)
	api.Post("/posts/:id/schedules/:scheduleId/cancel", post.CancelSchedule)
	api.Post("/posts/remove", post.RemovePost)

	channel := handlers.NewChannelHandler(channelService)
	api.Get("/channels", channel.ListChannels)
	api.Post("/channels/:id/test", channel.TestConnection)

	queueStats := handlers.NewQueueHandler(queueManager)
	api.Get("/queue/stats", queueStats.QueueStats)

	// cron jobs
	reconcilerJob := job.NewReconcilerJob(postRepo, queueManager)
	refreshTokenJob := job.NewTokenRefreshJob(*cfg, channelRepo, providers)
	healthCheckJob := job.NewHealthCheckJob(*cfg, channelRepo, providers)

	c := cron.New()
	c.AddFunc("@every 00h01m00s", reconcilerJob.Run)
	c.AddFunc("@every 00h10m00s", refreshTokenJob.Run)
	c.AddFunc("@every 00h30m00s", healthCheckJob.Run)
	c.Start()

	worker := queue.NewWorker(*cfg, postRepo, channelRepo, publishedPostRepo, providers, dispatcher)

	go func() {
		server := asynq.NewServer(redisConn, asynq.Config{
			Concurrency: cfg.QueueConcurrency,
			Queues: map[string]int{
				string(queue.PriorityCritical): 6,
				string(queue.PriorityDefault):  4,
			},
		})

		mux := asynq.NewServeMux()
		mux.HandleFunc(queue.TaskTypePublishSchedule, worker.HandlePublishTask)

		log.Println("Starting the Asynq server...")
		if err := server.Run(mux); err != nil {
			log.Fatalf("Could not start Asynq server: %v", err)
		}
	}()

	go func() {
		if err := app.Listen(":3000"); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	log.Println("Server is running on http://localhost:3000")

	gracefulShutdown(app, db, dispatcher)
}

func closeDB(db *sql.DB) {
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}

func gracefulShutdown(app *fiber.App, db *sql.DB, dispatcher *notify.Dispatcher) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	log.Println("Shutting down server...")

	if err := app.Shutdown(); err != nil {
		log.Fatalf("Failed to shut down server: %v", err)
	}

	// let in-flight notifications and emails land
	dispatcher.Wait()

	closeDB(db)
	log.Println("Server shutdown complete.")
}
