package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/metastudy/metastudy-api/internal/config"
	"github.com/metastudy/metastudy-api/internal/database"
	"github.com/metastudy/metastudy-api/internal/handler"
	"github.com/metastudy/metastudy-api/internal/middleware"
	"github.com/metastudy/metastudy-api/internal/models"
	"github.com/metastudy/metastudy-api/internal/repository"
	"github.com/metastudy/metastudy-api/internal/router"
	"github.com/metastudy/metastudy-api/internal/service"
	"github.com/metastudy/metastudy-api/pkg/blobstore"
	"github.com/metastudy/metastudy-api/pkg/mailer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.VerificationToken{},
		&models.Classroom{},
		&models.Material{},
		&models.Assignable{},
		&models.Submission{},
		&models.Discussion{},
		&models.DiscussionComment{},
		&models.Meeting{},
	); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	store, err := blobstore.New(context.Background(), blobstore.Config{
		Endpoint:  cfg.S3Endpoint,
		Region:    cfg.S3Region,
		AccessKey: cfg.S3AccessKeyID,
		SecretKey: cfg.S3SecretKey,
		Bucket:    cfg.S3Bucket,
	}, logger)
	if err != nil {
		log.Fatalf("failed to create object storage client: %v", err)
	}

	var emailSender service.EmailSender
	if cfg.SendgridAPIKey != "" {
		mailService, err := mailer.New(mailer.Config{
			APIKey:      cfg.SendgridAPIKey,
			FromName:    cfg.EmailFromName,
			FromAddress: cfg.EmailFromAddress,
		}, logger)
		if err != nil {
			log.Fatalf("failed to create mail service: %v", err)
		}
		emailSender = mailService
	} else {
		logger.Warn().Msg("sendgrid api key not configured, outgoing mail disabled")
	}

	// Event publication is optional; the publisher drops events when the
	// connection is absent.
	var natsConn *nats.Conn
	if cfg.NATSUrl != "" {
		natsConn, err = nats.Connect(cfg.NATSUrl)
		if err != nil {
			logger.Warn().Err(err).Msg("nats unavailable, events disabled")
			natsConn = nil
		} else {
			defer natsConn.Close()
		}
	}
	events := service.NewNATSPublisher(natsConn, logger)

	validate := validator.New(validator.WithRequiredStructEnabled())

	userRepo := repository.NewUserRepository(db)
	classroomRepo := repository.NewClassroomRepository(db)
	materialRepo := repository.NewMaterialRepository(db)
	assignableRepo := repository.NewAssignableRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	discussionRepo := repository.NewDiscussionRepository(db)
	meetingRepo := repository.NewMeetingRepository(db)

	autoGrader := service.NewAutoGrader(submissionRepo, assignableRepo, store, logger)
	gradeWorker := service.NewGradeWorker(autoGrader, cfg.AutoGradeWorkers, cfg.AutoGradeTimeout, logger)
	gradeWorker.Start()

	userService := service.NewUserService(userRepo, emailSender, validate, logger, cfg.JWTSecret, cfg.JWTTokenTTL, cfg.FrontendBaseURL)
	classroomService := service.NewClassroomService(classroomRepo, redisClient, cfg.RosterCacheTTL, validate, logger)
	materialService := service.NewMaterialService(materialRepo, classroomRepo, store, validate, logger)
	assignableService := service.NewAssignableService(assignableRepo, submissionRepo, classroomRepo, store, events, validate, logger)
	submissionService := service.NewSubmissionService(submissionRepo, assignableRepo, userRepo, store, gradeWorker, events, validate, logger)
	discussionService := service.NewDiscussionService(discussionRepo, userRepo, emailSender, validate, logger)
	meetingService := service.NewMeetingService(meetingRepo, classroomRepo, validate, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AllowOrigins: cfg.CORSOrigins})
	router.Register(app, cfg, router.Dependencies{
		UserHandler:       handler.NewUserHandler(userService, logger),
		ClassroomHandler:  handler.NewClassroomHandler(classroomService, logger),
		MaterialHandler:   handler.NewMaterialHandler(materialService, logger),
		AssignableHandler: handler.NewAssignableHandler(assignableService, logger),
		SubmissionHandler: handler.NewSubmissionHandler(submissionService, logger),
		DiscussionHandler: handler.NewDiscussionHandler(discussionService, logger),
		MeetingHandler:    handler.NewMeetingHandler(meetingService, logger),
		JWTMiddleware:     middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app, gradeWorker)
}

func waitForShutdown(app *fiber.App, gradeWorker *service.GradeWorker) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	if err := gradeWorker.Shutdown(ctx); err != nil {
		log.Printf("grade worker shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
