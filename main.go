package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	accountsapp "metering-cloud/internal/accounts/application"
	accounts "metering-cloud/internal/accounts/domain"
	accountsmemory "metering-cloud/internal/accounts/infrastructure/memory"
	accountsrepo "metering-cloud/internal/accounts/infrastructure/postgres"
	apihttp "metering-cloud/internal/api/http"
	archiveapp "metering-cloud/internal/archive/application"
	archivefs "metering-cloud/internal/archive/infrastructure/fs"
	"metering-cloud/internal/config"
	"metering-cloud/internal/consumption"
	"metering-cloud/internal/eventing"
	"metering-cloud/internal/maintenance"
	maintenancehttp "metering-cloud/internal/maintenance/interfaces/http"
	meteringapp "metering-cloud/internal/metering/application"
	metering "metering-cloud/internal/metering/domain"
	meteringhttp "metering-cloud/internal/metering/interfaces/http"
	readingstore "metering-cloud/internal/metering/store"
	"metering-cloud/internal/observability/metrics"
	"metering-cloud/internal/recovery"
	"metering-cloud/internal/wal"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config error: %v", err)
	}

	registry, pool, closeDB := buildRegistry(cfg, logger)
	defer closeDB()

	metrics.Init(pool, logger)

	store := readingstore.New()
	metrics.RegisterStoredReadings(func() int {
		_, readings := store.Counts()
		return readings
	})

	appendLog, err := wal.Open(cfg.LogDir)
	if err != nil {
		logger.Fatalf("append log open error: %v", err)
	}
	defer appendLog.Close()

	partitions, err := archivefs.NewPartitionStore(cfg.ArchiveDir)
	if err != nil {
		logger.Fatalf("partition store error: %v", err)
	}
	bills, err := archivefs.NewBillStore(cfg.BillDir)
	if err != nil {
		logger.Fatalf("bill store error: %v", err)
	}

	bus := eventing.NewInMemoryBus()
	eventing.On(bus, func(_ context.Context, e archiveapp.ArchiveCompleted) error {
		logger.Printf("archive completed: scope=%s period=%s meters=%d records=%d drained=%d",
			e.Scope, e.Period.Format("2006-01-02"), e.Meters, e.Records, e.Drained)
		return nil
	})
	eventing.On(bus, func(_ context.Context, e archiveapp.BillsGenerated) error {
		logger.Printf("bills generated: period=%s bills=%d", e.Period.Format("2006-01"), e.Bills)
		return nil
	})

	validator, err := metering.NewValidator(registry)
	if err != nil {
		logger.Fatalf("validator error: %v", err)
	}

	archiver, err := archiveapp.NewArchiver(store, partitions, bills, logger, archiveapp.WithPublisher(bus))
	if err != nil {
		logger.Fatalf("archiver error: %v", err)
	}

	machine, err := maintenance.NewStateMachine(archiver, logger)
	if err != nil {
		logger.Fatalf("state machine error: %v", err)
	}

	ingestService, err := meteringapp.NewIngestService(validator, store, machine, logger,
		meteringapp.WithAppendLog(appendLog),
		meteringapp.WithPublisher(bus),
	)
	if err != nil {
		logger.Fatalf("ingest service error: %v", err)
	}

	calculator, err := consumption.NewCalculator(store, partitions, bills, registry, logger)
	if err != nil {
		logger.Fatalf("calculator error: %v", err)
	}

	recoverer, err := recovery.NewManager(partitions, appendLog, store, logger)
	if err != nil {
		logger.Fatalf("recovery manager error: %v", err)
	}

	// Ingestion stays closed until the current month has been replayed.
	// A failed replay keeps serving queries; the operator retries through
	// /restore and reopens with /resume.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	report, err := recoverer.Recover(ctx)
	cancel()
	if err != nil {
		logger.Printf("startup recovery failed, ingestion stays closed: %v", err)
		machine.RecordFailure(fmt.Errorf("startup recovery: %w", err))
	} else {
		logger.Printf("startup recovery: meters=%d readings=%d corrupt=%d",
			report.MetersRestored, report.ReadingsRestored, report.CorruptRecords)
		if err := machine.Resume(); err != nil {
			logger.Fatalf("resume after recovery error: %v", err)
		}
	}

	registrationService, err := accountsapp.NewRegistrationService(registry, logger)
	if err != nil {
		logger.Fatalf("registration service error: %v", err)
	}

	ingestHandler, err := meteringhttp.NewIngestHandler(ingestService)
	if err != nil {
		logger.Fatalf("ingest handler error: %v", err)
	}
	maintenanceHandler, err := maintenancehttp.NewHandler(machine, recoverer)
	if err != nil {
		logger.Fatalf("maintenance handler error: %v", err)
	}
	consumptionHandler, err := apihttp.NewConsumptionHandler(calculator)
	if err != nil {
		logger.Fatalf("consumption handler error: %v", err)
	}
	billHandler, err := apihttp.NewBillHandler(calculator, bills)
	if err != nil {
		logger.Fatalf("bill handler error: %v", err)
	}
	billExportHandler, err := apihttp.NewBillExportHandler(bills)
	if err != nil {
		logger.Fatalf("bill export handler error: %v", err)
	}
	registerHandler, err := apihttp.NewRegisterHandler(registrationService)
	if err != nil {
		logger.Fatalf("register handler error: %v", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/receive_meter_reading", ingestHandler)
	mux.Handle("/get_consumption", consumptionHandler)
	mux.Handle("/get_last_month_bill", billHandler)
	mux.Handle("/bills", billHandler)
	mux.Handle("/bills/export", billExportHandler)
	mux.Handle("/register_account", registerHandler)
	mux.Handle("/maintenance/start", maintenanceHandler)
	mux.Handle("/maintenance/status", maintenanceHandler)
	mux.Handle("/shutdown", maintenanceHandler)
	mux.Handle("/resume", maintenanceHandler)
	mux.Handle("/restore", maintenanceHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: loggingMiddleware(mux, logger)}
	logger.Printf("http listening on %s", cfg.HTTPAddr)
	logger.Fatal(server.ListenAndServe())
}

// buildRegistry picks the account registry backend. With a database URL the
// accounts live in postgres and the pool feeds the connection gauges; without
// one everything runs in memory.
func buildRegistry(cfg config.Config, logger *log.Logger) (accounts.Registry, *pgxpool.Pool, func()) {
	if cfg.DatabaseURL == "" {
		logger.Printf("no database url configured, using in-memory account registry")
		return accountsmemory.NewRegistry(), nil, func() {}
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("db open error: %v", err)
	}
	if err := db.Ping(); err != nil {
		logger.Fatalf("db ping error: %v", err)
	}

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("db pool error: %v", err)
	}

	return accountsrepo.NewAccountRepository(db), pool, func() {
		pool.Close()
		_ = db.Close()
	}
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
