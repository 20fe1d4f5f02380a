package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"renderd/internal/advisor"
	"renderd/internal/common/fsutil"
	"renderd/internal/config"
	"renderd/internal/engine"
	"renderd/internal/httpapi"
	"renderd/internal/registry"
	"renderd/internal/scheduler"
	"renderd/internal/session"
	"renderd/pkg/geom"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	var (
		cfgPath      string
		addr         string
		projectPath  string
		librariesDir string
		workerBin    string
		workerArgs   []string
		quietMs      int
		hardware     string
		previewLevel string
		exportLevel  string
		logLevel     string
	)

	root := &cobra.Command{
		Use:           "renderd",
		Short:         "Adaptive rendering daemon for parametric geometry models",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Config{}
			if cfgPath != "" {
				loaded, err := config.Load(cfgPath)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				cfg = loaded
			}
			// Flags win over file values.
			if addr != "" {
				cfg.Addr = addr
			}
			if librariesDir != "" {
				cfg.LibrariesDir = librariesDir
			}
			if workerBin != "" {
				cfg.WorkerBin = workerBin
			}
			if len(workerArgs) > 0 {
				cfg.WorkerArgs = workerArgs
			}
			if quietMs > 0 {
				cfg.QuietMs = quietMs
			}
			if hardware != "" {
				cfg.HardwareLevel = hardware
			}
			if previewLevel != "" {
				cfg.PreviewLevel = previewLevel
			}
			if exportLevel != "" {
				cfg.ExportLevel = exportLevel
			}
			if cfg.Addr == "" {
				cfg.Addr = ":8080"
			}
			return run(cfg, projectPath, logLevel)
		},
	}

	root.Flags().StringVar(&cfgPath, "config", os.Getenv("RENDERD_CONFIG"), "Path to config file (yaml/json/toml)")
	root.Flags().StringVar(&addr, "addr", os.Getenv("RENDERD_ADDR"), "HTTP listen address, e.g. :8080")
	root.Flags().StringVar(&projectPath, "project", "", "Path to the model source file or project directory")
	root.Flags().StringVar(&librariesDir, "libraries-dir", "", "Directory of mountable geometry libraries")
	root.Flags().StringVar(&workerBin, "worker-bin", "", "Path to the compute kernel binary (empty = built-in simulator)")
	root.Flags().StringSliceVar(&workerArgs, "worker-arg", nil, "Extra argument for the kernel binary (repeatable)")
	root.Flags().IntVar(&quietMs, "quiet-ms", 0, "Debounce quiet interval in milliseconds (default 350)")
	root.Flags().StringVar(&hardware, "hardware", "", "Hardware class: low|standard|high")
	root.Flags().StringVar(&previewLevel, "preview-quality", "", "Preview quality mode: fast|balanced|fidelity|auto")
	root.Flags().StringVar(&exportLevel, "export-quality", "", "Export quality mode: low|medium|high|default")
	root.Flags().StringVar(&logLevel, "log-level", "info", "Log level: debug|info|warn|error")
	return root
}

func run(cfg config.Config, projectPath, logLevel string) error {
	lvl, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
	httpapi.SetLogger(logger)

	project, err := loadProject(projectPath)
	if err != nil {
		return err
	}
	if cfg.LibrariesDir != "" {
		libs, err := registry.LoadDir(cfg.LibrariesDir)
		if err != nil {
			return fmt.Errorf("load libraries: %w", err)
		}
		project.Libraries = libs
		logger.Info().Int("count", len(libs)).Str("dir", cfg.LibrariesDir).Msg("libraries mounted")
	}

	prof := advisor.New().AnalyzeComplexity(project)
	logger.Info().Str("tier", string(prof.Tier)).Int("score", prof.Score).Msg("model classified")
	for _, warning := range prof.Warnings {
		logger.Warn().Msg(warning)
	}

	var worker engine.Worker
	if cfg.WorkerBin != "" {
		worker = engine.NewSubprocessWorker(cfg.WorkerBin, cfg.WorkerArgs...)
	} else {
		logger.Warn().Msg("no worker binary configured; using built-in simulator")
		worker = &engine.SimWorker{}
	}

	sess := session.New(worker, project, session.Config{
		Scheduler: scheduler.Config{
			QuietInterval: time.Duration(cfg.QuietMs) * time.Millisecond,
			CacheCapacity: cfg.CacheCapacity,
			HardwareLevel: cfg.HardwareLevel,
			PreviewLevel:  cfg.PreviewLevel,
			ExportLevel:   cfg.ExportLevel,
		},
		Engine: engine.Config{
			JobTimeout: time.Duration(cfg.JobTimeoutMs) * time.Millisecond,
		},
		QueueCapacity: cfg.QueueCapacity,
	}, logger)

	baseCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	httpapi.SetBaseContext(baseCtx)

	if err := sess.Start(baseCtx); err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer sess.Close()

	// Warm the first preview so a connecting UI sees geometry immediately.
	if project.Source != "" {
		go func() {
			if _, _, err := warmFirstPreview(sess); err != nil {
				logger.Warn().Err(err).Msg("initial preview failed")
			}
		}()
	}

	srv := &http.Server{Addr: cfg.Addr, Handler: httpapi.NewMux(sess)}
	go func() {
		logger.Info().Str("addr", cfg.Addr).Str("project", project.Name).Msg("renderd listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	<-baseCtx.Done()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown error")
	}
	return nil
}

// warmFirstPreview forces one preview with the model's default parameters.
func warmFirstPreview(sess *session.Session) (*geom.Artifact, bool, error) {
	info, err := sess.ApplyPreview(geom.PreviewRequest{Parameters: geom.ParameterSet{}, Force: true})
	if err != nil {
		return nil, false, err
	}
	return sess.PreviewArtifact(), info.Cached, nil
}

// loadProject reads the source under edit: a single file, or a directory
// with a main file plus companions.
func loadProject(path string) (geom.Project, error) {
	if path == "" {
		// empty project; sources arrive over the API
		return geom.Project{Name: "untitled"}, nil
	}
	expanded, err := fsutil.ExpandHome(path)
	if err != nil {
		return geom.Project{}, err
	}
	fi, err := os.Stat(expanded)
	if err != nil {
		return geom.Project{}, fmt.Errorf("project path: %w", err)
	}
	if fi.IsDir() {
		files, err := fsutil.ReadSourceTree(expanded)
		if err != nil {
			return geom.Project{}, err
		}
		main := pickMainFile(files)
		if main == "" {
			return geom.Project{}, fmt.Errorf("no .scad sources in %s", expanded)
		}
		return geom.Project{
			Name:     filepath.Base(expanded),
			Source:   files[main],
			MainFile: main,
			Files:    files,
		}, nil
	}
	b, err := os.ReadFile(expanded)
	if err != nil {
		return geom.Project{}, err
	}
	name := filepath.Base(expanded)
	return geom.Project{
		Name:   name[:len(name)-len(filepath.Ext(name))],
		Source: string(b),
	}, nil
}

// pickMainFile prefers main.scad, else the lexically first source.
func pickMainFile(files map[string]string) string {
	if _, ok := files["main.scad"]; ok {
		return "main.scad"
	}
	best := ""
	for name := range files {
		if best == "" || name < best {
			best = name
		}
	}
	return best
}
