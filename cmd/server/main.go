package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/linecrm/linecrm/internal/app"
	"github.com/linecrm/linecrm/internal/config"
	log "github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", config.DefaultConfigPath, "path to the YAML config file")
	migrate := flag.Bool("migrate", false, "create the schema and seed settings, then exit")
	checkDB := flag.Bool("check-db", false, "report database connectivity and schema state, then exit")
	flag.Parse()

	cfg, err := config.Load(config.ResolveConfigPath(*configPath))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case *checkDB:
		info, errCheck := app.CheckDatabase(ctx, cfg)
		printJSON(info)
		if errCheck != nil {
			log.Fatalf("database check failed: %v", errCheck)
		}
		if len(info.MissingTables) > 0 {
			os.Exit(2)
		}
	case *migrate:
		report, errMigrate := app.Migrate(ctx, cfg)
		if errMigrate != nil {
			log.Fatalf("migrate: %v", errMigrate)
		}
		log.WithFields(log.Fields{
			"initialized":    report.Initialized,
			"executed":       report.Executed,
			"already_exists": report.AlreadyExists,
			"settings":       report.SettingsCount,
		}).Info("migration complete")
	default:
		if errRun := app.RunServer(ctx, cfg); errRun != nil {
			log.Fatalf("server: %v", errRun)
		}
	}
}

func printJSON(v any) {
	data, errMarshal := json.MarshalIndent(v, "", "  ")
	if errMarshal != nil {
		log.Errorf("encode output: %v", errMarshal)
		return
	}
	fmt.Println(string(data))
}
