package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/clinlab/clinlab/internal/config"
	"github.com/clinlab/clinlab/internal/domain/analysis"
	"github.com/clinlab/clinlab/internal/domain/order"
	"github.com/clinlab/clinlab/internal/domain/patient"
	"github.com/clinlab/clinlab/internal/errs"
	"github.com/clinlab/clinlab/internal/platform/audit"
	"github.com/clinlab/clinlab/internal/platform/crypto"
	"github.com/clinlab/clinlab/internal/platform/db"
	"github.com/clinlab/clinlab/internal/platform/middleware"
	"github.com/clinlab/clinlab/internal/platform/reporting"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "lab-server",
		Short: "Clinical lab record engine API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(verifyEncryptionCmd())
	rootCmd.AddCommand(resetEncryptionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, cfg.MigrationsDir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, cfg.MigrationsDir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	cmd.AddCommand(statusCmd)

	return cmd
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load the analysis catalog and optional synthetic data",
		RunE: func(cmd *cobra.Command, args []string) error {
			patients, _ := cmd.Flags().GetInt("patients")
			ordersPer, _ := cmd.Flags().GetInt("orders")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			key, err := crypto.NewKeyring(cfg.EncryptionKey, cfg.EncryptionKeyFile).Resolve()
			if err != nil {
				return err
			}
			cipher, err := crypto.NewFieldCipher(key)
			if err != nil {
				return err
			}

			return runSeed(ctx, pool, cipher, patients, ordersPer)
		},
	}
	cmd.Flags().Int("patients", 0, "Number of synthetic patients to create")
	cmd.Flags().Int("orders", 2, "Orders per synthetic patient")
	return cmd
}

func verifyEncryptionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify-encryption",
		Short: "Verify the active key can encrypt and decrypt stored data",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			key, err := crypto.NewKeyring(cfg.EncryptionKey, cfg.EncryptionKeyFile).Resolve()
			if err != nil {
				return err
			}
			cipher, err := crypto.NewFieldCipher(key)
			if err != nil {
				return err
			}

			// Round-trip probe with fresh data.
			probe := "encryption-probe"
			ct, err := cipher.Encrypt(probe)
			if err != nil {
				return fmt.Errorf("probe encrypt failed: %w", err)
			}
			pt, err := cipher.Decrypt(ct)
			if err != nil {
				return fmt.Errorf("probe decrypt failed: %w", err)
			}
			if pt != probe {
				return fmt.Errorf("probe round trip mismatch")
			}
			fmt.Println("OK: key material round-trips")

			// Decrypt one stored record to prove the key matches the data.
			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			patients := patient.NewRepoPG(pool)
			total, err := patients.Count(ctx)
			if err != nil {
				return err
			}
			if total == 0 {
				fmt.Println("OK: no stored patients to verify against")
				return nil
			}

			var sampled bool
			err = patients.ForEach(ctx, func(rec *patient.Record) error {
				if _, derr := cipher.Decrypt(rec.NameEnc); derr != nil {
					return fmt.Errorf("stored patient %s does not decrypt under the active key: %w", rec.ID, derr)
				}
				sampled = true
				return errStopSample
			})
			if err != nil && !errors.Is(err, errStopSample) {
				return err
			}
			if sampled {
				fmt.Printf("OK: stored data decrypts under the active key (%d patients)\n", total)
			}
			return nil
		},
	}
}

var errStopSample = errors.New("stop sample")

func resetEncryptionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset-encryption",
		Short: "Destroy all encrypted patient data and rotate to a fresh key",
		RunE: func(cmd *cobra.Command, args []string) error {
			yes, _ := cmd.Flags().GetBool("yes")
			if !yes {
				return fmt.Errorf("refusing to destroy encrypted data without --yes")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			patients := patient.NewRepoPG(pool)
			total, err := patients.Count(ctx)
			if err != nil {
				return err
			}
			if err := patients.DeleteAll(ctx); err != nil {
				return err
			}
			fmt.Printf("Deleted %d patient(s) and their orders.\n", total)

			if cfg.EncryptionKey != "" {
				fmt.Println("ENCRYPTION_KEY is set in the environment; rotate it there.")
				return nil
			}
			if _, err := crypto.NewKeyring("", cfg.EncryptionKeyFile).Reset(); err != nil {
				return err
			}
			fmt.Printf("Wrote a fresh key to %s.\n", cfg.EncryptionKeyFile)
			return nil
		},
	}
	cmd.Flags().Bool("yes", false, "Confirm destruction of all encrypted patient data")
	return cmd
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	// Encryption key
	key, err := crypto.NewKeyring(cfg.EncryptionKey, cfg.EncryptionKeyFile).Resolve()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to resolve encryption key")
	}
	cipher, err := crypto.NewFieldCipher(key)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build field cipher")
	}
	logger.Info().Msg("encryption key resolved")

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	txm := db.NewTxManager(pool)
	recorder := audit.NewRecorder(pool)

	// Domain services
	analysisRepo := analysis.NewRepoPG(pool)
	analysisSvc := analysis.NewService(analysisRepo, txm, recorder)

	patientRepo := patient.NewRepoPG(pool)
	patientSvc := patient.NewService(patientRepo, txm, cipher, recorder)

	orderRepo := order.NewRepoPG(pool)
	orderSvc := order.NewService(orderRepo, analysisRepo, txm, recorder)

	reportingSvc := reporting.NewService(pool)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Actor(cfg.ActorTokenSecret, cfg.DefaultActor))
	e.Use(middleware.Logger(logger))

	e.GET("/health", func(c echo.Context) error {
		if err := pool.Ping(c.Request().Context()); err != nil {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "database unreachable")
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	apiV1 := e.Group("/api/v1")
	analysis.NewHandler(analysisSvc).RegisterRoutes(apiV1)
	patient.NewHandler(patientSvc).RegisterRoutes(apiV1)
	order.NewHandler(orderSvc).RegisterRoutes(apiV1)
	audit.NewHandler(recorder).RegisterRoutes(apiV1)
	reporting.NewHandler(reportingSvc).RegisterRoutes(apiV1)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

func ptr(f float64) *float64 { return &f }

// catalogEntry mirrors one row of the stock analysis catalog.
type catalogEntry struct {
	code, name string
	min, max   *float64
	unit       string
}

var stockCatalog = []catalogEntry{
	{"GLU", "Glucose", ptr(70), ptr(110), "mg/dL"},
	{"CHOL", "Total Cholesterol", ptr(125), ptr(200), "mg/dL"},
	{"HDL", "HDL Cholesterol", ptr(40), ptr(60), "mg/dL"},
	{"LDL", "LDL Cholesterol", ptr(0), ptr(130), "mg/dL"},
	{"TRIG", "Triglycerides", ptr(0), ptr(150), "mg/dL"},
	{"HGB", "Hemoglobin", ptr(13.5), ptr(17.5), "g/dL"},
	{"HCT", "Hematocrit", ptr(38.8), ptr(50), "%"},
	{"WBC", "White Blood Cells", ptr(4.5), ptr(11), "10^3/uL"},
	{"PLT", "Platelets", ptr(150), ptr(450), "10^3/uL"},
	{"CREA", "Creatinine", ptr(0.7), ptr(1.3), "mg/dL"},
	{"UREA", "Urea", ptr(15), ptr(40), "mg/dL"},
	{"URIC", "Uric Acid", ptr(3.5), ptr(7.2), "mg/dL"},
	{"TSH", "Thyroid Stimulating Hormone", ptr(0.4), ptr(4), "mIU/L"},
	{"ALT", "Alanine Aminotransferase", ptr(7), ptr(56), "U/L"},
	{"AST", "Aspartate Aminotransferase", ptr(10), ptr(40), "U/L"},
}

var seedFirstNames = []string{
	"Maria", "Juan", "Ana", "Carlos", "Lucia", "Pedro", "Sofia", "Diego",
	"Elena", "Miguel", "Carmen", "Jorge", "Valentina", "Andres", "Isabel",
}

var seedLastNames = []string{
	"Garcia", "Rodriguez", "Martinez", "Lopez", "Gonzalez", "Perez",
	"Sanchez", "Ramirez", "Torres", "Flores", "Rivera", "Gomez",
}

// runSeed loads the stock catalog (skipping codes already present) and, when
// asked, creates synthetic patients with orders and posted results through
// the regular services so every row carries its audit entry.
func runSeed(ctx context.Context, pool *pgxpool.Pool, cipher *crypto.FieldCipher, patientCount, ordersPer int) error {
	txm := db.NewTxManager(pool)
	recorder := audit.NewRecorder(pool)

	analysisRepo := analysis.NewRepoPG(pool)
	analysisSvc := analysis.NewService(analysisRepo, txm, recorder)
	patientSvc := patient.NewService(patient.NewRepoPG(pool), txm, cipher, recorder)
	orderSvc := order.NewService(order.NewRepoPG(pool), analysisRepo, txm, recorder)

	var typeIDs []uuid.UUID
	created := 0
	for _, entry := range stockCatalog {
		existing, err := analysisRepo.GetByCode(ctx, entry.code)
		if err == nil {
			typeIDs = append(typeIDs, existing.ID)
			continue
		}
		if !errors.Is(err, errs.ErrNotFound) {
			return err
		}

		t := &analysis.Type{
			Code:   entry.code,
			Name:   entry.name,
			RefMin: entry.min,
			RefMax: entry.max,
			Unit:   entry.unit,
		}
		if err := analysisSvc.CreateType(ctx, t, "seeder"); err != nil {
			return fmt.Errorf("seed analysis type %s: %w", entry.code, err)
		}
		typeIDs = append(typeIDs, t.ID)
		created++
	}
	fmt.Printf("Catalog ready: %d type(s) created, %d total.\n", created, len(typeIDs))

	if patientCount <= 0 {
		return nil
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	for i := 0; i < patientCount; i++ {
		name := fmt.Sprintf("%s %s",
			seedFirstNames[rng.Intn(len(seedFirstNames))],
			seedLastNames[rng.Intn(len(seedLastNames))])
		dob := time.Date(1940+rng.Intn(65), time.Month(1+rng.Intn(12)), 1+rng.Intn(28),
			0, 0, 0, 0, time.UTC)
		phone := fmt.Sprintf("+1-555-%04d", rng.Intn(10000))

		p, err := patientSvc.Register(ctx, patient.RegisterInput{
			Name:        name,
			NationalID:  fmt.Sprintf("SEED-%d-%06d", time.Now().Unix(), i),
			DateOfBirth: dob,
			Phone:       &phone,
		}, "seeder", nil)
		if err != nil {
			return fmt.Errorf("seed patient %d: %w", i, err)
		}

		for j := 0; j < ordersPer; j++ {
			// 1 to 5 distinct analyses per order.
			n := 1 + rng.Intn(5)
			picks := rng.Perm(len(typeIDs))[:n]
			ids := make([]uuid.UUID, n)
			for k, idx := range picks {
				ids[k] = typeIDs[idx]
			}

			_, resultIDs, err := orderSvc.Create(ctx, p.ID, ids, "seeder")
			if err != nil {
				return fmt.Errorf("seed order for patient %s: %w", p.ID, err)
			}

			// Post values on roughly two thirds of the results so the seeded
			// data contains pending, completed and out-of-range cases.
			for _, rid := range resultIDs {
				if rng.Intn(3) == 0 {
					continue
				}
				value := rng.Float64() * 250
				if _, err := orderSvc.Post(ctx, rid, value, "seeder", nil); err != nil {
					return fmt.Errorf("seed result %s: %w", rid, err)
				}
			}
		}
	}
	fmt.Printf("Seeded %d patient(s) with up to %d order(s) each.\n", patientCount, ordersPer)
	return nil
}
