package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"lms/config"
	controllers "lms/controllers/course"
	"lms/database"
	"lms/logger"
	courseRoutes "lms/routers/courseRoutes"
	paymentRoutes "lms/routers/paymentRoutes"
	"lms/services/access"
	"lms/services/catalog"
	"lms/services/certificate"
	"lms/services/completion"
	"lms/services/enrollment"
	"lms/services/notification"
	"lms/services/payment"
	"lms/services/progress"
	"lms/services/quiz"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

func main() {
	config.LoadConfig()
	logger.Init(logger.Config{
		Level:  config.AppConfig.LogLevel,
		Format: config.AppConfig.LogFormat,
	})
	database.ConnectDb()
	db := database.Database.Db

	svc, dispatcher := buildServices(db)

	scheduler, err := completion.StartRetryScheduler(dispatcher, config.AppConfig.DispatchRetrySpec)
	if err != nil {
		logger.Fatal().Err(err).Msg("[SERVER] Failed to start completion retry scheduler")
	}

	app := fiber.New(fiber.Config{AppName: config.AppConfig.AppName})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,PATCH,DELETE",  // Allowed HTTP methods
		AllowHeaders: "Content-Type,Authorization", // Allowed headers
	}))

	// Enable the built-in logger middleware to log all requests
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${ip} ${method} ${path} ${status} ${latency}\n",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	ctl := controllers.NewController(svc)
	courseRoutes.SetupCourseRoutes(app, ctl)
	courseRoutes.SetupAdminCourseRoutes(app, ctl)
	paymentRoutes.SetupPaymentRoutes(app, ctl)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit

		logger.Info().Msg("[SERVER] Shutting down")
		<-scheduler.Stop().Done()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logger.Error().Err(err).Msg("[SERVER] Shutdown failed")
		}
		dispatcher.Wait()
	}()

	logger.Info().Str("port", config.AppConfig.Port).Msg("[SERVER] Server is running")
	if err := app.Listen(":" + config.AppConfig.Port); err != nil {
		logger.Fatal().Err(err).Msg("[SERVER] Listen failed")
	}
}

// buildServices wires the engine components on top of db.
func buildServices(db *gorm.DB) (controllers.Services, *completion.Dispatcher) {
	cfg := config.AppConfig

	courses := catalog.New(db)
	enrollments := enrollment.NewStore(db)
	progressStore := progress.NewStore(db)
	gate := access.NewGate(progressStore, quiz.NewReader(db))
	certificates := certificate.NewIssuer(db, cfg.AppBaseURL)

	channels := []notification.Notifier{notification.NewInApp(db)}
	if cfg.SendgridAPIKey != "" {
		channels = append(channels, notification.NewEmail(db, notification.EmailConfig{
			APIKey:     cfg.SendgridAPIKey,
			SenderName: cfg.AppName,
			Sender:     cfg.EmailSender,
		}))
	}

	dispatcher := completion.NewDispatcher(db, certificates, notification.NewMulti(channels...), completion.Options{
		MaxAttempts: cfg.DispatchMaxAttempts,
		BaseURL:     cfg.AppBaseURL,
	})
	enrollments.SetCompletionHook(dispatcher)
	tracker := progress.NewTracker(progressStore, enrollments, courses, gate, dispatcher, progress.Options{})

	var gateway payment.Gateway
	switch cfg.PaymentProvider {
	case payment.ProviderMidtrans:
		gateway = payment.NewMidtransGateway(cfg.MidtransServerKey, cfg.MidtransProduction)
	case payment.ProviderMpesa:
		gateway = payment.NewMpesaGateway(payment.MpesaConfig{
			BaseURL:        cfg.MpesaBaseURL,
			ConsumerKey:    cfg.MpesaConsumerKey,
			ConsumerSecret: cfg.MpesaConsumerSecret,
			ShortCode:      cfg.MpesaShortCode,
			PassKey:        cfg.MpesaPassKey,
			CallbackURL:    cfg.MpesaCallbackURL,
			CallbackToken:  cfg.MpesaCallbackToken,
		})
	default:
		logger.Warn().Str("provider", cfg.PaymentProvider).Msg("[SERVER] Unknown payment provider, checkout disabled")
	}

	return controllers.Services{
		Catalog:           courses,
		Enrollments:       enrollments,
		Payments:          payment.NewHandler(db, enrollments, courses, gateway),
		Progress:          tracker,
		Gate:              gate,
		Certificates:      certificates,
		MidtransServerKey: cfg.MidtransServerKey,
	}, dispatcher
}
