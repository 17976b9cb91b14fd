package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/itp-watch/itp-monitor-v2/internal/background"
	"github.com/itp-watch/itp-monitor-v2/internal/captcha"
	"github.com/itp-watch/itp-monitor-v2/internal/database"
	handler "github.com/itp-watch/itp-monitor-v2/internal/delivery/http"
	"github.com/itp-watch/itp-monitor-v2/internal/logging"
	"github.com/itp-watch/itp-monitor-v2/internal/messaging"
	"github.com/itp-watch/itp-monitor-v2/internal/mqtt"
	"github.com/itp-watch/itp-monitor-v2/internal/ocr"
	"github.com/itp-watch/itp-monitor-v2/internal/rar"
	"github.com/itp-watch/itp-monitor-v2/internal/s3"
	"github.com/joho/godotenv"
)

func main() {
	logging.InitLogger()
	logger := logging.GetLogger()
	defer logger.RecoverAndLogPanic()

	// load .env file, fine if there isn't one in a containerized deploy
	if err := godotenv.Load(".env"); err != nil {
		logger.Warn("no .env file loaded, using the process environment")
	}

	router := chi.NewRouter()

	// Simple middleware stack
	router.Use(middleware.Logger)
	router.Use(middleware.Heartbeat("/ping"))
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	// Set a timeout value on the request context (ctx), that will signal
	// through ctx.Done() that the request has timed out and further
	// processing should be stopped.
	router.Use(middleware.Timeout(2 * time.Minute))

	// Setup our database connection
	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		log.Fatal("could not get mongodb uri environment variable")
	}

	dbClient, err := database.NewDatabaseClient(context.TODO(), uri)
	if err != nil {
		log.Fatalf("could not connect to database: %v", err)
	}
	defer func() {
		if err := dbClient.Disconnect(context.TODO()); err != nil {
			log.Printf("could not disconnect from database: %v", err)
		}
	}()

	// MQTT is optional. Without a broker the monitor still works, it just
	// doesn't push state to Home Assistant.
	var statePublisher *mqtt.StatePublisher
	var mqttClient mqtt.Client
	brokerURL := os.Getenv("MQTT_BROKER_URL")
	if brokerURL != "" {
		cfg := &mqtt.ClientConfig{
			BrokerURL:   brokerURL,
			ClientID:    os.Getenv("MQTT_CLIENT_ID"),
			Username:    os.Getenv("MQTT_USERNAME"),
			Password:    os.Getenv("MQTT_PASSWORD"),
			WillTopic:   mqtt.AvailabilityTopic(mqtt.DefaultBaseTopic),
			WillPayload: []byte("offline"),
			WillRetain:  true,
		}

		mqttClient, err = mqtt.NewClient(cfg)
		if err != nil {
			log.Fatalf("invalid mqtt configuration: %v", err)
		}

		statePublisher = mqtt.NewStatePublisher(mqttClient, mqtt.DefaultBaseTopic, mqtt.DefaultDiscoveryPrefix)

		// every reconnect needs this, the will replaces retained online with
		// offline whenever the connection drops
		cfg.OnConnectionUp = func() {
			pubCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := statePublisher.PublishAvailability(pubCtx, true); err != nil {
				logger.Errorf("could not publish availability: %v", err)
			}
		}

		if err := mqttClient.Start(context.Background()); err != nil {
			log.Fatalf("could not start mqtt client: %v", err)
		}

		connectCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := mqttClient.AwaitConnection(connectCtx); err != nil {
			logger.Errorf("mqtt broker not reachable yet, will keep retrying: %v", err)
		}
		cancel()

		logger.Infof("publishing Home Assistant state to %s", brokerURL)
	} else {
		logger.Info("MQTT_BROKER_URL not set, Home Assistant state publishing disabled")
	}

	// The captcha archive is also optional. S3 only gets wired up when both
	// the region and bucket are configured.
	var s3Repository *s3.S3Repository
	awsRegion := os.Getenv("AWS_REGION")
	awsBucket := os.Getenv("AWS_S3_CAPTCHA_BUCKET")
	if awsRegion != "" && awsBucket != "" {
		s3Repository = s3.NewS3Session(awsRegion, awsBucket)
	}
	captchaStore := captcha.NewStore(os.Getenv("CAPTCHA_DEBUG_DIR"), s3Repository)

	ocrClient := ocr.NewClient(ocr.NormalizeEndpoint(os.Getenv("OCR_API_URL")))

	rarBaseURL := os.Getenv("RAR_BASE_URL")
	if rarBaseURL == "" {
		rarBaseURL = rar.DefaultBaseURL
	}
	rarClient := rar.NewClient(rarBaseURL, ocrClient, captchaStore)

	checkInterval := background.DefaultCheckInterval
	if hours := os.Getenv("CHECK_INTERVAL_HOURS"); hours != "" {
		parsed, err := strconv.Atoi(hours)
		if err != nil || parsed <= 0 {
			log.Fatalf("invalid CHECK_INTERVAL_HOURS value %q", hours)
		}
		checkInterval = time.Duration(parsed) * time.Hour
	}

	// a typed nil pointer in the interface would look non-nil to the scheduler
	var stateSink messaging.StateSink
	if statePublisher != nil {
		stateSink = statePublisher
	}

	checkScheduler := background.NewCheckScheduler(rarClient, dbClient, stateSink, checkInterval)
	schedulerCtx, cancelScheduler := context.WithCancel(context.Background())
	checkScheduler.Start(schedulerCtx)

	apiRouter := chi.NewRouter()
	handler.NewVehicleHandler(apiRouter, dbClient, checkScheduler, statePublisher)
	handler.NewChecksHandler(apiRouter, checkScheduler)
	router.Mount("/api/v2", apiRouter)

	router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ITP Monitor, periodic RAR inspection checks for registered vehicles"))
	})

	server := &http.Server{Addr: ":8080", Handler: router}
	go func() {
		logger.Info("listening on :8080")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()
	server.Shutdown(shutdownCtx)

	cancelScheduler()
	checkScheduler.Stop()

	if mqttClient != nil {
		if statePublisher != nil {
			statePublisher.PublishAvailability(shutdownCtx, false)
		}
		mqttClient.Disconnect(shutdownCtx)
	}
}
