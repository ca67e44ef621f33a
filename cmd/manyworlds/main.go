package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/manyworlds/server/internal/access"
	"github.com/manyworlds/server/internal/backup"
	"github.com/manyworlds/server/internal/config"
	"github.com/manyworlds/server/internal/core/event"
	"github.com/manyworlds/server/internal/data"
	"github.com/manyworlds/server/internal/lifecycle"
	"github.com/manyworlds/server/internal/persist"
	"github.com/manyworlds/server/internal/region"
	"github.com/manyworlds/server/internal/sched"
	"github.com/manyworlds/server/internal/scripting"
	"github.com/manyworlds/server/internal/store"
	"github.com/manyworlds/server/internal/world"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printBanner(serverName string, serverID int) {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Println("\033[36;1m  │\033[0m          manyworlds  v0.1.0               \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  │\033[0m      multi-world game host                \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
	fmt.Printf("  \033[1mserver:\033[0m %s \033[90m(id: %d)\033[0m\n\n", serverName, serverID)
}

func printSection(title string) {
	lineLen := 46 - len(title) - 1
	if lineLen < 3 {
		lineLen = 3
	}
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, count int) {
	numStr := fmt.Sprintf("%d", count)
	dotsLen := 42 - len(label) - len(numStr)
	if dotsLen < 3 {
		dotsLen = 3
	}
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), numStr)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

// ── Main server logic ─────────────────────────────────────────────

func run() error {
	// 1. Load config
	cfgPath := "config/server.toml"
	if p := os.Getenv("MANYWORLDS_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	printBanner(cfg.Server.Name, cfg.Server.ID)

	// 3. Connect to PostgreSQL and run migrations
	printSection("database")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := persist.NewDB(ctx, cfg.Database, log)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()
	printOK("postgresql connected")

	if err := persist.RunMigrations(ctx, db.Pool); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	printOK("migrations applied")
	fmt.Println()

	// 4. Warm the entity store
	printSection("entity store")
	st := store.New(persist.NewBackend(db), log)
	if err := st.Warm(ctx); err != nil {
		return fmt.Errorf("warm store: %w", err)
	}
	printStat("worlds", len(st.AllWorlds()))
	printStat("schedules", len(st.Schedules()))
	fmt.Println()

	// 5. Load generation presets
	printSection("world data")
	var types *data.WorldTypeTable
	if cfg.Worlds.PresetsPath != "" {
		types, err = data.LoadWorldTypeTable(cfg.Worlds.PresetsPath)
		if err != nil {
			log.Warn("preset catalog unavailable, using built-ins", zap.Error(err))
			types = data.DefaultWorldTypeTable()
		}
	} else {
		types = data.DefaultWorldTypeTable()
	}
	printStat("world types", types.Count())

	// 6. Lua lifecycle hooks
	var scripts *scripting.Engine
	if cfg.Worlds.ScriptsDir != "" {
		scripts, err = scripting.NewEngine(cfg.Worlds.ScriptsDir, log)
		if err != nil {
			return fmt.Errorf("scripting: %w", err)
		}
		defer scripts.Close()
		printOK("lua hooks loaded")
	}
	fmt.Println()

	// 7. Build the engines
	printSection("engines")
	lanes := sched.New(cfg.Worlds.WorkerQueue, cfg.Worlds.BackgroundSize, log)
	defer lanes.Close()

	regions, err := region.NewManager(cfg.Server.DataDir, log)
	if err != nil {
		return fmt.Errorf("region manager: %w", err)
	}
	occ := world.NewOccupancy()
	bus := event.NewBus()
	acl := access.NewEngine(st, occ, cfg.Worlds.DefaultLimit, log)

	mgr := lifecycle.NewManager(lifecycle.Deps{
		Store:     st,
		Regions:   regions,
		Access:    acl,
		Occupancy: occ,
		Lanes:     lanes,
		Bus:       bus,
		Types:     types,
		Scripts:   scripts,
		Log:       log,
		Cfg:       cfg,
	})
	backups := backup.NewService(st, regions, lanes, mgr, scripts,
		cfg.Backup.Dir, cfg.Backup.RetentionCap, cfg.Backup.RestoreGrace, log)
	mgr.SetBackupCascade(backups.CascadeDelete)

	if err := mgr.Boot(ctx); err != nil {
		return fmt.Errorf("boot default world: %w", err)
	}
	printOK(fmt.Sprintf("default world %q loaded", cfg.Worlds.DefaultWorld))
	fmt.Println()

	// 8. Run the maintenance loop
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	sweep := time.NewTicker(cfg.Eviction.SweepInterval)
	defer sweep.Stop()
	backupCheck := time.NewTicker(cfg.Backup.CheckInterval)
	defer backupCheck.Stop()

	printSection("server ready")
	printReady(fmt.Sprintf("data dir %s", cfg.Server.DataDir))
	printReady(fmt.Sprintf("eviction grace %s, sweep %s",
		cfg.Eviction.GracePeriod, cfg.Eviction.SweepInterval))
	fmt.Println()

	for {
		select {
		case <-sweep.C:
			mgr.SweepEviction()
		case <-backupCheck.C:
			backups.RunDue(time.Now())
		case sig := <-shutdownCh:
			log.Info("shutdown signal received", zap.String("signal", sig.String()))
			// Unload everything so partitions flush before the process exits.
			for _, w := range st.AllWorlds() {
				if w.ID == mgr.DefaultWorldID() {
					continue
				}
				if _, err := mgr.Unload(w.ID).Await(context.Background()); err != nil {
					log.Warn("shutdown unload failed",
						zap.String("world", w.ID), zap.Error(err))
				}
			}
			log.Info("server stopped")
			return nil
		}
	}
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
