package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"racc/config"
	"racc/internal/alarmgen"
	"racc/internal/analyzer"
	"racc/internal/cache"
	"racc/internal/logger"
	"racc/internal/output/auditclickhouse"
	"racc/internal/output/reporthttp"
	"racc/internal/output/reportjson"
	"racc/internal/pipeline"
	"racc/internal/rules"
	"racc/internal/server"
	"racc/internal/sigmap"
	"racc/internal/store"
	"racc/internal/transform/esmxml"
	"racc/pkg/models"
)

func findConfigFile(configArg string) string {
	if configArg != "" {
		path := configArg
		if _, err := os.Stat(path); err == nil {
			return path
		}
		log.Printf("Warning: config file not found at %s, trying default locations", path)
	}

	if _, err := os.Stat("racc.yml"); err == nil {
		return "racc.yml"
	}

	exePath, err := os.Executable()
	if err == nil {
		exeDir := filepath.Dir(exePath)
		path := filepath.Join(exeDir, "racc.yml")
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return "racc.yml"
}

func applyDefaults(cfg *config.Config) {
	if cfg.RACC.Server.Addr == "" {
		cfg.RACC.Server.Addr = ":8080"
	}
	if cfg.RACC.Database.Driver == "" {
		cfg.RACC.Database.Driver = "postgres"
	}
	if cfg.RACC.Database.MaxConns <= 0 {
		cfg.RACC.Database.MaxConns = 10
	}

	if cfg.RACC.Pipeline.Workers <= 0 {
		cfg.RACC.Pipeline.Workers = 4
	}
	if cfg.RACC.Pipeline.BatchSize <= 0 {
		cfg.RACC.Pipeline.BatchSize = 500
	}
	if cfg.RACC.Pipeline.FlushInterval <= 0 {
		cfg.RACC.Pipeline.FlushInterval = 2 * time.Second
	}

	if cfg.RACC.Analysis.MediumQualityFields <= 0 {
		cfg.RACC.Analysis.MediumQualityFields = 2
	}
	if cfg.RACC.Analysis.HighQualityFields <= 0 {
		cfg.RACC.Analysis.HighQualityFields = 3
	}

	defaults := alarmgen.DefaultSettings()
	if cfg.RACC.Generator.DefaultSeverity <= 0 {
		cfg.RACC.Generator.DefaultSeverity = defaults.DefaultSeverity
	}
	if cfg.RACC.Generator.ConditionType <= 0 {
		cfg.RACC.Generator.ConditionType = defaults.DefaultConditionType
	}
	if cfg.RACC.Generator.MatchField == "" {
		cfg.RACC.Generator.MatchField = defaults.MatchField
	}
	if cfg.RACC.Generator.MaxAlarmNameLength <= 0 {
		cfg.RACC.Generator.MaxAlarmNameLength = defaults.MaxAlarmNameLength
	}
	if cfg.RACC.Generator.SummaryTemplate == "" {
		cfg.RACC.Generator.SummaryTemplate = defaults.SummaryTemplate
	}
	if cfg.RACC.Generator.AssigneeID <= 0 {
		cfg.RACC.Generator.AssigneeID = defaults.DefaultAssignee
	}
	if cfg.RACC.Generator.EscAssigneeID <= 0 {
		cfg.RACC.Generator.EscAssigneeID = defaults.DefaultEscAssignee
	}
	if cfg.RACC.Generator.MinVersion == "" {
		cfg.RACC.Generator.MinVersion = defaults.DefaultMinVersion
	}

	if cfg.RACC.SigMap.Path == "" {
		cfg.RACC.SigMap.Path = "esm_signature_id.json"
	}
	if cfg.RACC.Cache.TTL <= 0 {
		cfg.RACC.Cache.TTL = 10 * time.Minute
	}
	if cfg.RACC.Audit.ClickHouse.Database == "" {
		cfg.RACC.Audit.ClickHouse.Database = "racc"
	}
	if cfg.RACC.Audit.ClickHouse.Table == "" {
		cfg.RACC.Audit.ClickHouse.Table = "audit_log"
	}
	if cfg.RACC.Logging.Level == "" {
		cfg.RACC.Logging.Level = "info"
	}
}

func settingsFromConfig(cfg *config.Config) alarmgen.Settings {
	return alarmgen.Settings{
		DefaultSeverity:      cfg.RACC.Generator.DefaultSeverity,
		DefaultConditionType: cfg.RACC.Generator.ConditionType,
		MatchField:           cfg.RACC.Generator.MatchField,
		MaxAlarmNameLength:   cfg.RACC.Generator.MaxAlarmNameLength,
		SummaryTemplate:      cfg.RACC.Generator.SummaryTemplate,
		DefaultAssignee:      cfg.RACC.Generator.AssigneeID,
		DefaultEscAssignee:   cfg.RACC.Generator.EscAssigneeID,
		DefaultMinVersion:    cfg.RACC.Generator.MinVersion,
	}
}

func loadRuntime(configArg string) (*config.Config, *sigmap.Mapper, *store.Store, *cache.Cache, server.AuditSink) {
	configPath := findConfigFile(configArg)
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	applyDefaults(cfg)

	if err := logger.Init(cfg.RACC.Logging.Enabled, cfg.RACC.Logging.Level, cfg.RACC.Logging.File, cfg.RACC.Logging.Console); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	logger.Infof("RACC starting")
	logger.Infof("Config loaded from: %s", configPath)

	mapper, err := sigmap.Load(cfg.RACC.SigMap.Path)
	if err != nil {
		log.Fatalf("Failed to load signature mapping: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	st, err := store.Open(ctx, store.Config{
		Driver:   cfg.RACC.Database.Driver,
		DSN:      cfg.RACC.Database.DSN,
		MaxConns: cfg.RACC.Database.MaxConns,
	})
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}

	var c *cache.Cache
	if cfg.RACC.Cache.Enabled {
		c, err = cache.New(cache.Config{
			Addr:     cfg.RACC.Cache.Addr,
			Password: cfg.RACC.Cache.Password,
			DB:       cfg.RACC.Cache.DB,
			TTL:      cfg.RACC.Cache.TTL,
		})
		if err != nil {
			logger.Warnf("Cache unavailable, continuing without it: %v", err)
			c = nil
		}
	}

	var audit server.AuditSink
	if cfg.RACC.Audit.Enabled {
		w, err := auditclickhouse.NewWriter(auditclickhouse.Config{
			URL:      cfg.RACC.Audit.ClickHouse.URL,
			Database: cfg.RACC.Audit.ClickHouse.Database,
			Table:    cfg.RACC.Audit.ClickHouse.Table,
			Username: cfg.RACC.Audit.ClickHouse.Username,
			Password: cfg.RACC.Audit.ClickHouse.Password,
			Timeout:  cfg.RACC.Audit.ClickHouse.Timeout,
			Headers:  cfg.RACC.Audit.ClickHouse.Headers,
		})
		if err != nil {
			log.Fatalf("Failed to create audit writer: %v", err)
		}
		audit = w
		logger.Infof("Audit output: clickhouse (%s/%s.%s)", cfg.RACC.Audit.ClickHouse.URL, cfg.RACC.Audit.ClickHouse.Database, cfg.RACC.Audit.ClickHouse.Table)
	}

	return cfg, mapper, st, c, audit
}

// writeImportReport recomputes coverage after an import and delivers it to
// the configured output sink. Report delivery is best-effort.
func writeImportReport(ctx context.Context, cfg *config.Config, st *store.Store, mapper *sigmap.Mapper, customerID int64) {
	out := cfg.RACC.Output
	if out.Mode == "" {
		return
	}

	ruleSet, err := st.RulesByCustomer(ctx, customerID)
	if err != nil {
		logger.Warnf("Skipping import report, failed to load rules: %v", err)
		return
	}
	alarms, err := st.AlarmsByCustomer(ctx, customerID)
	if err != nil {
		logger.Warnf("Skipping import report, failed to load alarms: %v", err)
		return
	}

	det := analyzer.DetectRelationships(ruleSet, alarms, mapper)
	report := map[string]interface{}{
		"customer_id":   customerID,
		"coverage":      analyzer.ComputeCoverage(ruleSet, alarms, det),
		"relationships": det.Relationships,
	}

	switch out.Mode {
	case "file":
		w, err := reportjson.NewWriter(out.File.Path)
		if err != nil {
			logger.Warnf("Failed to create report writer: %v", err)
			return
		}
		defer w.Close()
		if err := w.WriteRecord(report); err != nil {
			logger.Warnf("Failed to write import report: %v", err)
		}
	case "http":
		w, err := reporthttp.NewWriter(reporthttp.Config{
			URL:     out.HTTP.URL,
			Timeout: out.HTTP.Timeout,
			Headers: out.HTTP.Headers,
		})
		if err != nil {
			logger.Warnf("Failed to create report webhook: %v", err)
			return
		}
		if err := w.WriteReport(report); err != nil {
			logger.Warnf("Failed to push import report: %v", err)
		}
	default:
		logger.Warnf("Unknown output mode %q, import report skipped", out.Mode)
	}
}

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configArg := fs.String("config", "", "Config file path")
	fs.Parse(args)

	cfg, mapper, st, c, audit := loadRuntime(*configArg)
	defer st.Close()
	defer c.Close()

	srv := server.New(server.Config{
		Addr:         cfg.RACC.Server.Addr,
		ReadTimeout:  cfg.RACC.Server.ReadTimeout,
		WriteTimeout: cfg.RACC.Server.WriteTimeout,
		Settings:     settingsFromConfig(cfg),
		QualityTiers: models.QualityTiers{
			Medium: cfg.RACC.Analysis.MediumQualityFields,
			High:   cfg.RACC.Analysis.HighQualityFields,
		},
	}, st, mapper, c, audit)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Infof("Shutting down")
		cancel()
	}()

	if err := srv.Run(ctx); err != nil {
		logger.Errorf("Server error: %v", err)
		os.Exit(1)
	}
	logger.Infof("RACC stopped")
}

func runImport(args []string) int {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	configArg := fs.String("config", "", "Config file path")
	customerID := fs.Int64("customer", 0, "Customer ID the records belong to")
	file := fs.String("file", "", "ESM export XML file")
	kind := fs.String("type", "rules", "Export type: rules or alarms")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *customerID <= 0 || strings.TrimSpace(*file) == "" {
		fmt.Fprintln(os.Stderr, "import requires -customer and -file")
		return 2
	}

	cfg, mapper, st, c, audit := loadRuntime(*configArg)
	defer st.Close()
	defer c.Close()

	data, err := os.ReadFile(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read export file: %v\n", err)
		return 1
	}

	ctx := context.Background()
	switch *kind {
	case "rules":
		parsed, err := esmxml.ParseRules(data, *customerID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to parse rule export: %v\n", err)
			return 1
		}
		pipe := pipeline.NewImportPipeline(st, audit, "cli",
			cfg.RACC.Pipeline.Workers, cfg.RACC.Pipeline.BatchSize, cfg.RACC.Pipeline.FlushInterval)
		stats, err := pipe.Run(ctx, parsed.Rules)
		if err != nil {
			fmt.Fprintf(os.Stderr, "import failed: %v\n", err)
			return 1
		}
		if err := c.Invalidate(ctx, *customerID); err != nil {
			logger.Warnf("Failed to invalidate cache: %v", err)
		}
		writeImportReport(ctx, cfg, st, mapper, *customerID)
		fmt.Printf("imported rules=%d invalid=%d skipped_records=%d\n", stats.Imported, stats.Invalid, len(parsed.Skipped))
	case "alarms":
		parsed, err := esmxml.ParseAlarms(data, *customerID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to parse alarm export: %v\n", err)
			return 1
		}
		if err := st.InsertAlarms(ctx, parsed.Alarms); err != nil {
			fmt.Fprintf(os.Stderr, "import failed: %v\n", err)
			return 1
		}
		if err := c.Invalidate(ctx, *customerID); err != nil {
			logger.Warnf("Failed to invalidate cache: %v", err)
		}
		writeImportReport(ctx, cfg, st, mapper, *customerID)
		fmt.Printf("imported alarms=%d skipped_records=%d\n", len(parsed.Alarms), len(parsed.Skipped))
	default:
		fmt.Fprintf(os.Stderr, "unknown export type: %s\n", *kind)
		return 2
	}
	return 0
}

func runSigmaImport(args []string) int {
	fs := flag.NewFlagSet("sigma-import", flag.ContinueOnError)
	configArg := fs.String("config", "", "Config file path")
	customerID := fs.Int64("customer", 0, "Customer ID the draft rules belong to")
	path := fs.String("path", "", "Sigma rule file or directory (defaults to sigma.path from config)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *customerID <= 0 {
		fmt.Fprintln(os.Stderr, "sigma-import requires -customer")
		return 2
	}

	cfg, mapper, st, c, audit := loadRuntime(*configArg)
	defer st.Close()
	defer c.Close()

	sigmaPath := strings.TrimSpace(*path)
	if sigmaPath == "" {
		// The config fallback only applies when sigma support is switched on.
		if !cfg.RACC.Sigma.Enabled {
			fmt.Fprintln(os.Stderr, "sigma-import requires -path, or sigma.enabled with sigma.path in config")
			return 2
		}
		sigmaPath = strings.TrimSpace(cfg.RACC.Sigma.Path)
	}
	if sigmaPath == "" {
		fmt.Fprintln(os.Stderr, "sigma-import requires -path or sigma.path in config")
		return 2
	}

	drafts, stats, err := rules.ImportSigma(sigmaPath, *customerID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load sigma rules: %v\n", err)
		return 1
	}
	logger.Infof("Sigma detections loaded: imported=%d skipped_invalid=%d skipped_unsupported=%d files=%d",
		stats.Imported, stats.SkippedInvalid, stats.SkippedUnsupported, stats.TotalFiles)

	pipe := pipeline.NewImportPipeline(st, audit, "cli",
		cfg.RACC.Pipeline.Workers, cfg.RACC.Pipeline.BatchSize, cfg.RACC.Pipeline.FlushInterval)
	result, err := pipe.Run(context.Background(), drafts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "import failed: %v\n", err)
		return 1
	}
	if err := c.Invalidate(context.Background(), *customerID); err != nil {
		logger.Warnf("Failed to invalidate cache: %v", err)
	}
	writeImportReport(context.Background(), cfg, st, mapper, *customerID)
	fmt.Printf("imported drafts=%d invalid=%d\n", result.Imported, result.Invalid)
	return 0
}

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "serve":
			runServe(os.Args[2:])
			return
		case "import":
			os.Exit(runImport(os.Args[2:]))
		case "sigma-import":
			os.Exit(runSigmaImport(os.Args[2:]))
		default:
			fmt.Fprintf(os.Stderr, "unknown command: %s (expected serve, import or sigma-import)\n", os.Args[1])
			os.Exit(2)
		}
	}

	runServe(nil)
}
