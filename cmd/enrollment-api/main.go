package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/noah-isme/course-enrollment-api/api/swagger"
	"github.com/noah-isme/course-enrollment-api/internal/handler"
	"github.com/noah-isme/course-enrollment-api/internal/models"
	"github.com/noah-isme/course-enrollment-api/internal/repository"
	"github.com/noah-isme/course-enrollment-api/internal/service"
	"github.com/noah-isme/course-enrollment-api/pkg/cache"
	"github.com/noah-isme/course-enrollment-api/pkg/config"
	"github.com/noah-isme/course-enrollment-api/pkg/database"
	"github.com/noah-isme/course-enrollment-api/pkg/journal"
	"github.com/noah-isme/course-enrollment-api/pkg/logger"
)

// @title Course Enrollment API
// @version 1.0.0
// @description Course admission, seat reservation and enrollment lifecycle.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

type seatBackend interface {
	Get(ctx context.Context, courseID string) (*models.CourseSeat, error)
	Reserve(ctx context.Context, courseID string, quantity int) (*models.CourseSeat, error)
	Release(ctx context.Context, courseID string, quantity int) (*models.CourseSeat, error)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if err := run(cfg, logr); err != nil {
		logr.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	if cfg.Migrations.AutoMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			return err
		}
		logr.Info("database migrations applied")
	}

	var redisClient *redis.Client
	if cfg.Catalog.CacheEnabled || cfg.Enrollment.SeatBackend == config.SeatBackendRedis {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer redisClient.Close()
	}

	metrics := service.NewMetricsService()

	courseRepo := repository.NewCourseRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	seatRepo := repository.NewCourseSeatRepository(db)

	backend, err := seatBackendFor(ctx, cfg, seatRepo, enrollmentRepo, redisClient, logr)
	if err != nil {
		return err
	}
	seats := service.NewSeatService(backend, metrics, logr.Named("seats"))

	var cacheRepo service.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Catalog.CacheTTL, logr.Named("cache"), cfg.Catalog.CacheEnabled)
	catalog := service.NewCatalogService(courseRepo, cacheSvc, cfg.Catalog.CacheTTL, logr.Named("catalog"))
	if err := catalog.Flush(ctx); err != nil {
		logr.Warn("failed to flush catalog cache", zap.Error(err))
	}

	var reconciler *service.SeatReconciler
	if cfg.Reconciliation.Enabled {
		j, err := journal.Open(cfg.Reconciliation.JournalPath)
		if err != nil {
			return fmt.Errorf("open reconciliation journal: %w", err)
		}
		defer j.Close()

		reconciler = service.NewSeatReconciler(seats, enrollmentRepo, j, metrics, logr.Named("reconciler"), service.ReconcilerConfig{
			Workers:     cfg.Reconciliation.Workers,
			Retries:     cfg.Reconciliation.Retries,
			RetryDelay:  cfg.Reconciliation.RetryDelay,
			SettleDelay: cfg.Reconciliation.SettleDelay,
		})
		if err := reconciler.Start(ctx); err != nil {
			return fmt.Errorf("start seat reconciler: %w", err)
		}
		defer reconciler.Stop()
	}

	pipeline := service.NewDefaultAdmissionPipeline(seats, enrollmentRepo, cfg.Enrollment.MaxActivePerStudent, metrics, logr.Named("admission"))
	saga := service.NewEnrollmentSaga(studentRepo, catalog, pipeline, seats, enrollmentRepo, reconciler, metrics, logr.Named("saga"), service.SagaConfig{
		StepTimeout:      cfg.Enrollment.StepTimeout,
		AdmissionTimeout: cfg.Enrollment.AdmissionTimeout,
	})
	enrollments := service.NewEnrollmentService(enrollmentRepo, catalog, validator.New(), logr.Named("enrollments"))
	roster := service.NewRosterService(catalog, enrollmentRepo, nil, nil, logr.Named("roster"))
	tokens := service.NewTokenService(cfg.JWT.Secret, cfg.JWT.Issuer)

	checks := map[string]handler.ReadinessCheck{"postgres": db.PingContext}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	router := newRouter(cfg, logr, metrics, tokens, routeHandlers{
		enrollments: handler.NewEnrollmentHandler(saga, enrollments),
		seats:       handler.NewSeatHandler(seats, reconciler, roster),
		metrics:     handler.NewMetricsHandler(metrics, checks),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Reconciliation.SettleDelay + 4*cfg.Enrollment.StepTimeout + cfg.Enrollment.AdmissionTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting",
			zap.String("addr", srv.Addr),
			zap.String("env", cfg.Env),
			zap.String("seat_backend", cfg.Enrollment.SeatBackend),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type seatLister interface {
	List(ctx context.Context) ([]models.CourseSeat, error)
}

type holdingCounter interface {
	HoldingCounts(ctx context.Context, statuses []models.EnrollmentStatus) (map[string]int, error)
}

// seatBackendFor selects the seat store. The Redis store is hydrated from Postgres without
// overwriting counters it already holds.
func seatBackendFor(ctx context.Context, cfg *config.Config, seatRepo *repository.CourseSeatRepository, enrollments holdingCounter, client *redis.Client, logr *zap.Logger) (seatBackend, error) {
	if cfg.Enrollment.SeatBackend != config.SeatBackendRedis {
		return seatRepo, nil
	}
	redisSeats := repository.NewRedisSeatRepository(client)
	hydrated, err := hydrateRedisSeats(ctx, seatRepo, enrollments, redisSeats)
	if err != nil {
		return nil, err
	}
	logr.Info("redis seat inventory hydrated", zap.Int("courses", hydrated))
	return redisSeats, nil
}

// hydrateRedisSeats seeds missing Redis counters from the seat-holding enrollment records.
// courses.enrolled is not maintained in Redis mode, so it is never used as the seed.
func hydrateRedisSeats(ctx context.Context, catalog seatLister, enrollments holdingCounter, redisSeats *repository.RedisSeatRepository) (int, error) {
	seats, err := catalog.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("load seat capacities: %w", err)
	}
	holding, err := enrollments.HoldingCounts(ctx, models.ActiveEnrollmentStatuses)
	if err != nil {
		return 0, fmt.Errorf("load seat-holding enrollments: %w", err)
	}
	for i := range seats {
		seats[i].Enrolled = holding[seats[i].CourseID]
	}
	if err := redisSeats.Hydrate(ctx, seats); err != nil {
		return 0, fmt.Errorf("hydrate redis seats: %w", err)
	}
	return len(seats), nil
}
