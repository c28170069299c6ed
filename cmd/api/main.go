// Package main (in api-subfolder) launches the job ledger API: submission, lookup and orphan recovery
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
	"github.com/UnendingLoop/ImageServer/internal/mwlogger"
	"github.com/UnendingLoop/ImageServer/internal/registry"
	"github.com/UnendingLoop/ImageServer/internal/repository"
	"github.com/UnendingLoop/ImageServer/internal/service"
	"github.com/UnendingLoop/ImageServer/internal/transport"
	"github.com/spf13/cast"
	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/ginext"
	wbfkafka "github.com/wb-go/wbf/kafka"
	"github.com/wb-go/wbf/zlog"
)

const orphansBatch = 20

func main() {
	// инициализировать конфиг/ считать энвы
	appConfig := config.New()
	appConfig.EnableEnv("")
	if err := appConfig.LoadEnvFiles("./.env"); err != nil {
		log.Fatalf("Failed to load envs: %s\nExiting app...", err)
	}

	// стартуем логгер
	zlog.InitConsole()
	level := appConfig.GetString("LOG_LEVEL")
	if level == "" {
		level = "info"
	}
	if err := zlog.SetLevel(level); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	// готовим заранее слушатель прерываний - контекст для всего приложения
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// подключиться к базе
	dbConn, err := repository.ConnectWithRetries(appConfig, 5, 10*time.Second)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	// накатываем миграцию
	if err := repository.MigrateWithRetries(dbConn.Master, "./migrations", 10, 15*time.Second); err != nil {
		log.Fatalf("Failed to apply migrations: %v", err)
	}
	// создаем экземпляр репо
	repo := repository.NewPostgresJobRepo(dbConn)

	// реестр задач - тот же набор операций, что и у воркера
	transformer, err := imageproc.New(imageproc.Options{
		WatermarkPath: appConfig.GetString("WATERMARK_PATH"),
		JPEGQuality:   cast.ToInt(appConfig.GetString("JPEG_QUALITY")),
	})
	if err != nil {
		log.Fatalf("Failed to init task registry: %v", err)
	}
	tasks := registry.FromProvider(transformer)

	// ждем пока кафка раздуплится
	broker := appConfig.GetString("KAFKA_BROKER")
	if err := kafka.WaitKafkaReady(ctx, broker, 10*time.Second); err != nil {
		log.Fatalf("Kafka is unreachable: %v", err)
	}
	// подключиться к кафке как продюсер
	topic := appConfig.GetString("KAFKA_TOPIC")
	if err := kafka.InitKafkaTopics(ctx, kafka.NewClient(broker), 10*time.Second, topic); err != nil {
		log.Fatalf("Failed to init Kafka topics: %v", err)
	}
	pub := wbfkafka.NewProducer([]string{broker}, topic)

	// создаем экземпляр сервиса
	svc := service.NewJobService(repo, pub, tasks)
	// cоздаем экземпляр хендлера HTTP
	handlers := transport.NewJobHandler(svc)
	// сетапим сервер
	mode := appConfig.GetString("GIN_MODE")
	engine := ginext.New(mode)

	engine.GET("/ping", handlers.SimplePinger)
	engine.POST("/jobs", handlers.Submit)       // постановка задачи
	engine.GET("/jobs/:id", handlers.GetJob)    // статус и ключи результата
	engine.GET("/jobs", handlers.GetAllJobs)    // список задач с пагинацией и сортировкой
	engine.DELETE("/jobs/:id", handlers.Delete) // удаление записи

	srv := &http.Server{
		Addr:              ":" + appConfig.GetString("APP_PORT"),
		Handler:           mwlogger.NewMWLogger(engine),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Server launch
	go func() {
		zlog.Logger.Info().Msgf("Server running on http://localhost%s", srv.Addr)
		err := srv.ListenAndServe()
		if err != nil {
			switch {
			case errors.Is(err, http.ErrServerClosed):
				zlog.Logger.Info().Msg("Server gracefully stopping...")
			default:
				zlog.Logger.Error().Err(err).Msg("Server stopped")
				stop()
			}
		}
	}()

	// запускаем фонового воркера для отслеживания подвисших задач
	go recoveryLoop(ctx, svc)

	// ждем отмены контекста для запуска грейсфул закрытия соединений бд и кафки
	<-ctx.Done()

	shutdown(srv, pub, dbConn)
	zlog.Logger.Info().Msg("Exiting API...")
}

func recoveryLoop(ctx context.Context, svc *service.JobService) {
	defer func() {
		if r := recover(); r != nil {
			zlog.Logger.Error().Interface("panic", r).Msg("Recovery loop crashed")
		}
	}()

	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			svc.ReviveOrphans(ctx, orphansBatch)
		}
	}
}

func shutdown(srv *http.Server, prod *wbfkafka.Producer, dbConn *dbpg.DB) {
	zlog.Logger.Info().Msg("Interrupt received!!! Starting shutdown sequence...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zlog.Logger.Error().Err(err).Msg("Failed to stop HTTP server gracefully")
	}

	// Closing Kafka connection:
	if err := prod.Close(); err != nil {
		zlog.Logger.Error().Err(err).Msg("Failed to close Kafka-writer")
	}
	zlog.Logger.Info().Msg("Kafka-producer connection closed.")

	// Closing DB connection
	if err := dbConn.Master.Close(); err != nil {
		zlog.Logger.Error().Err(err).Msg("Failed to close DB-conn correctly")
		return
	}
	zlog.Logger.Info().Msg("DBconn closed")
}
