// Package main (in worker-subfolder) launches the image variant worker
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/UnendingLoop/ImageServer/internal/imageproc"
	"github.com/UnendingLoop/ImageServer/internal/kafka"
	"github.com/UnendingLoop/ImageServer/internal/metrics"
	"github.com/UnendingLoop/ImageServer/internal/orchestrator"
	"github.com/UnendingLoop/ImageServer/internal/registry"
	"github.com/UnendingLoop/ImageServer/internal/repository"
	"github.com/UnendingLoop/ImageServer/internal/service"
	"github.com/UnendingLoop/ImageServer/internal/storage"
	"github.com/UnendingLoop/ImageServer/internal/worker"
	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/spf13/cast"
	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/dbpg"
	wbfkafka "github.com/wb-go/wbf/kafka"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"
)

func main() {
	// инициализировать конфиг/ считать энвы
	appConfig := config.New()
	appConfig.EnableEnv("")
	if err := appConfig.LoadEnvFiles("./.env"); err != nil {
		log.Fatalf("Failed to load envs: %s\nExiting app...", err)
	}

	// стартуем логгер
	zlog.InitConsole()
	if err := zlog.SetLevel(withDefault(appConfig.GetString("LOG_LEVEL"), "info")); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	// длительности стадий и задач - в миллисекундах
	zerolog.DurationFieldUnit = time.Millisecond

	// Listening to interruptions through context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// подключиться к базе - журнал задач
	dbConn, err := repository.ConnectWithRetries(appConfig, 5, 10*time.Second)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	repo := repository.NewPostgresJobRepo(dbConn)

	// подключиться к хранилищу
	strg, err := storage.NewGateway(ctx, appConfig, 10*time.Second)
	if err != nil {
		log.Fatalf("Failed to connect to storage: %v", err)
	}

	// трансформации и реестр задач
	transformer, err := imageproc.New(imageproc.Options{
		WatermarkPath: appConfig.GetString("WATERMARK_PATH"),
		JPEGQuality:   cast.ToInt(appConfig.GetString("JPEG_QUALITY")),
		MaxPixels:     cast.ToInt64(appConfig.GetString("IMAGE_MAX_PIXELS")),
	})
	if err != nil {
		log.Fatalf("Failed to init image transformer: %v", err)
	}
	tasks := registry.FromProvider(transformer)
	zlog.Logger.Info().Strs("tasks", tasks.Names()).Msg("Task registry ready")

	// журнал задач через сервисный слой - паблишер воркеру не нужен
	ledger := service.NewJobService(repo, nil, tasks)

	// метрики
	observer := metrics.NewPipelineObserver()
	metricsSrv := &http.Server{
		Addr:              ":" + withDefault(appConfig.GetString("METRICS_PORT"), "9100"),
		Handler:           metricsMux(observer),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		zlog.Logger.Info().Str("addr", metricsSrv.Addr).Msg("Metrics server running")
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Logger.Error().Err(err).Msg("Metrics server stopped")
		}
	}()

	// временная директория для исходников и вариантов
	tempDir := withDefault(appConfig.GetString("WORKER_TEMP_DIR"), os.TempDir())
	if err := os.MkdirAll(tempDir, 0o750); err != nil {
		log.Fatalf("Failed to prepare temp dir %q: %v", tempDir, err)
	}

	orch := orchestrator.New(strg, transformer, tasks, observer, orchestrator.Config{
		TempDir:     tempDir,
		Parallelism: cast.ToInt(appConfig.GetString("WORKER_TRANSFORM_PARALLELISM")),
		Profile:     cast.ToBool(appConfig.GetString("WORKER_PROFILE")),
	})

	// ждем пока кафка раздуплится
	broker := appConfig.GetString("KAFKA_BROKER")
	if err := kafka.WaitKafkaReady(ctx, broker, 10*time.Second); err != nil {
		log.Fatalf("Kafka is unreachable: %v", err)
	}
	topic := appConfig.GetString("KAFKA_TOPIC")
	resultTopic := appConfig.GetString("KAFKA_RESULT_TOPIC")
	if err := kafka.InitKafkaTopics(ctx, kafka.NewClient(broker), 10*time.Second, topic, resultTopic); err != nil {
		log.Fatalf("Failed to init Kafka topics: %v", err)
	}

	// подключиться к кафке как читатель
	queue := make(chan kafkago.Message)
	retryStrategy := retry.Strategy{
		Attempts: 5,
		Delay:    2 * time.Second,
		Backoff:  1.5,
	}
	groupID := appConfig.GetString("KAFKA_GROUPID")
	cons := wbfkafka.NewConsumer([]string{broker}, topic, groupID)
	cons.StartConsuming(ctx, queue, retryStrategy)

	// топик с результатами опционален
	var outcomes worker.OutcomePublisher
	var prod *wbfkafka.Producer
	if resultTopic != "" {
		prod = wbfkafka.NewProducer([]string{broker}, resultTopic)
		outcomes = prod
	}

	// Собираем воедино все что нужно воркеру и запускаем его
	wrk := worker.NewWorkerInstance(orch, ledger, outcomes, cons, queue)
	done := make(chan struct{})
	go func() {
		defer close(done)
		wrk.StartWorker(ctx)
	}()

	// Waiting for interruption to stop context to start Graceful shutdown
	<-ctx.Done()
	<-done

	shutdown(cons, prod, metricsSrv, dbConn)
	zlog.Logger.Info().Msg("Exiting worker...")
}

func metricsMux(observer *metrics.PipelineObserver) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observer.Handler())
	mux.HandleFunc("/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func withDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func shutdown(cons *wbfkafka.Consumer, prod *wbfkafka.Producer, metricsSrv *http.Server, dbConn *dbpg.DB) {
	zlog.Logger.Info().Msg("Interrupt received!!! Starting shutdown sequence...")

	// Closing Kafka connections:
	if err := cons.Close(); err != nil {
		zlog.Logger.Error().Err(err).Msg("Failed to close Kafka-reader")
	}
	if prod != nil {
		if err := prod.Close(); err != nil {
			zlog.Logger.Error().Err(err).Msg("Failed to close Kafka-writer")
		}
	}
	zlog.Logger.Info().Msg("Kafka connections closed.")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(ctx); err != nil {
		zlog.Logger.Error().Err(err).Msg("Failed to stop metrics server")
	}

	// Closing DB connection
	if err := dbConn.Master.Close(); err != nil {
		zlog.Logger.Error().Err(err).Msg("Failed to close DB-conn correctly")
		return
	}
	zlog.Logger.Info().Msg("DBconn closed")
}
