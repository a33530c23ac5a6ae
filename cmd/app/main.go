package main

import (
    "context"
    "flag"
    "fmt"
    "os/signal"
    "strings"
    "syscall"

    "github.com/google/uuid"
    "github.com/joho/godotenv"
    "github.com/rs/zerolog/log"

    "github.com/local/aibatch/internal/ai"
    cfgpkg "github.com/local/aibatch/internal/config"
    "github.com/local/aibatch/internal/executor"
    logpkg "github.com/local/aibatch/internal/logger"
    "github.com/local/aibatch/internal/metrics"
    "github.com/local/aibatch/internal/progress"
    "github.com/local/aibatch/internal/scheduler"
    "github.com/local/aibatch/internal/storage"
    "github.com/local/aibatch/internal/table"
)

func main() {
    configPath := flag.String("config", "config.json", "run configuration file")
    providersPath := flag.String("providers", "providers.json", "providers file (json or yaml)")
    providerName := flag.String("provider", "", "provider name (overrides config)")
    modelName := flag.String("model", "", "model name (overrides config)")
    workers := flag.Int("workers", 0, "worker count (overrides config)")
    showStatus := flag.Bool("status", false, "report per-state row counts and exit")
    listProviders := flag.Bool("list-providers", false, "list configured providers and exit")
    reset := flag.Bool("reset", false, "clear progress records and exit")
    flag.Parse()

    _ = godotenv.Load()
    env := cfgpkg.FromEnv()

    _ = logpkg.Init(logpkg.Options{
        Level:        env.Logging.Level,
        Pretty:       env.Logging.Pretty,
        File:         env.Logging.File,
        MaxSizeMB:    env.Logging.MaxSizeMB,
        MaxBackups:   env.Logging.MaxBackups,
        MaxAgeDays:   env.Logging.MaxAgeDays,
        Compress:     env.Logging.Compress,
        SendToAxiom:  env.Axiom.Send && env.Axiom.APIKey != "",
        AxiomAPIKey:  env.Axiom.APIKey,
        AxiomOrgID:   env.Axiom.OrgID,
        AxiomDataset: env.Axiom.Dataset,
        AxiomFlush:   env.Axiom.FlushInterval,
    })
    defer logpkg.Close()

    cfg, err := cfgpkg.LoadRun(*configPath)
    if err != nil {
        log.Fatal().Err(err).Msg("configuration rejected")
    }
    if *providerName != "" { cfg.Provider = *providerName }
    if *modelName != "" { cfg.Model = *modelName }
    if *workers > 0 { cfg.Workers = *workers }

    providers, err := cfgpkg.LoadProviders(*providersPath)
    if err != nil {
        log.Fatal().Err(err).Msg("providers file rejected")
    }

    if *listProviders {
        for _, name := range providers.Names() {
            p := providers[name]
            fmt.Printf("%-20s %-10s %s\n", name, p.APIType, strings.Join(p.AvailableModels, ", "))
        }
        return
    }

    runID := uuid.NewString()
    store, err := progress.Open(cfg.ProgressFile, progress.Meta{
        RunID:     runID,
        InputFile: cfg.InputFile,
        Model:     cfg.Model,
    })
    if err != nil {
        log.Fatal().Err(err).Msg("failed to open progress store")
    }
    defer store.Close()

    ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
    defer stop()

    if *reset {
        if err := store.Reset(ctx); err != nil {
            log.Fatal().Err(err).Msg("failed to reset progress")
        }
        log.Info().Str("progress", cfg.ProgressFile).Msg("progress reset; next run starts from scratch")
        return
    }

    tbl, err := table.Load(cfg.InputFile, cfg.PromptColumn, cfg.ImageColumn)
    if err != nil {
        log.Fatal().Err(err).Msg("failed to load input table")
    }

    if *showStatus {
        printStatus(ctx, store, tbl.Len())
        return
    }

    provider, err := providers.Resolve(cfg.Provider, cfg.Model)
    if err != nil {
        log.Fatal().Err(err).Msg("provider rejected")
    }
    adapter, err := ai.New(provider)
    if err != nil {
        log.Fatal().Err(err).Msg("no adapter for provider")
    }

    systemPrompt, err := cfgpkg.LoadSystemPrompt(cfg.PromptFile)
    if err != nil {
        log.Fatal().Err(err).Msg("failed to load system prompt")
    }

    metrics.Init()
    metrics.Serve(env.MetricsAddr)

    log.Info().
        Str("run_id", runID).
        Str("input", cfg.InputFile).
        Str("provider", provider.Name).
        Str("model", cfg.Model).
        Int("workers", cfg.Workers).
        Msg("starting batch run")

    sched := scheduler.New(scheduler.Options{
        RunID:        runID,
        Model:        cfg.Model,
        SystemPrompt: systemPrompt,
        Cfg:          cfg,
        Adapter:      adapter,
        Exec:         executor.New(provider),
        Store:        store,
        Table:        tbl,
    })

    summary, runErr := sched.Run(ctx)

    // merge whatever is done, even after an interrupt
    statuses, err := store.Load(context.Background())
    if err != nil {
        log.Fatal().Err(err).Msg("failed to reload progress for merge")
    }
    if err := table.WriteMerged(cfg.Output(), tbl, statuses, cfg.Model); err != nil {
        log.Fatal().Err(err).Msg("failed to write output table")
    }
    log.Info().Str("output", cfg.Output()).Msg("output table written")

    if cfg.Upload.Bucket != "" {
        uploadArtifacts(cfg, runID)
    }

    fmt.Printf("total:       %d\n", summary.Total)
    fmt.Printf("succeeded:   %d (degraded parse: %d)\n", summary.Succeeded, summary.Degraded)
    fmt.Printf("failed:      %d\n", summary.Failed)
    fmt.Printf("already done: %d, skipped permanent: %d\n", summary.SkippedDone, summary.SkippedPerm)
    if summary.Interrupted {
        fmt.Println("run interrupted; re-run to resume remaining rows")
    }

    if runErr != nil {
        log.Fatal().Err(runErr).Msg("batch aborted")
    }
}

func printStatus(ctx context.Context, store progress.Store, total int) {
    statuses, err := store.Load(ctx)
    if err != nil {
        log.Fatal().Err(err).Msg("failed to load progress")
    }
    done, failed := 0, 0
    for _, st := range statuses {
        switch st.State {
        case progress.StateDone:
            done++
        case progress.StateFailed:
            failed++
        }
    }
    pending := total - done - failed
    fmt.Printf("total:   %d\n", total)
    fmt.Printf("done:    %d\n", done)
    fmt.Printf("failed:  %d\n", failed)
    fmt.Printf("pending: %d\n", pending)
    if total > 0 {
        fmt.Printf("complete: %.1f%%\n", float64(done)/float64(total)*100)
    }
}

func uploadArtifacts(cfg cfgpkg.Run, runID string) {
    ctx := context.Background()
    up, err := storage.NewUploader(ctx, cfg.Upload.Bucket, cfg.Upload.Prefix, cfg.Upload.Passphrase)
    if err != nil {
        log.Error().Err(err).Msg("upload disabled: cannot build S3 client")
        return
    }
    for _, p := range []string{cfg.Output(), cfg.ProgressFile} {
        if strings.HasPrefix(p, "redis://") || strings.HasPrefix(p, "rediss://") { continue }
        if err := up.UploadFile(ctx, runID, p); err != nil {
            log.Error().Err(err).Str("artifact", p).Msg("artifact upload failed")
        }
    }
}
