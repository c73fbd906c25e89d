package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	edgecaselab "github.com/menta2k/edge-case-lab"
	"github.com/menta2k/edge-case-lab/internal/config"
	"github.com/menta2k/edge-case-lab/internal/logging"
	"github.com/menta2k/edge-case-lab/internal/utils"
	"github.com/menta2k/edge-case-lab/pkg/export"
	"github.com/menta2k/edge-case-lab/pkg/processing"
	"github.com/menta2k/edge-case-lab/pkg/types"
)

func main() {
	var configPath, envFile, saveConfig string
	var in, label, imageID, outDir string
	var preset, scenario string
	var backend, url, model, cacheBackend string
	var serve, analyze, probe, list bool
	var addr string
	var seed uint64

	params := map[types.Field]*float64{}
	for _, f := range types.Fields() {
		params[f] = new(float64)
	}

	flag.StringVar(&configPath, "config", "", "config file (default "+config.GetConfigPath()+" if present)")
	flag.StringVar(&envFile, "env", ".env", "env file with EDGELAB_* overrides")
	flag.StringVar(&saveConfig, "save-config", "", "write the effective config to this path and exit")

	flag.StringVar(&in, "in", "", "subject image path or URL (jpg/png/gif/webp)")
	flag.StringVar(&label, "label", "", "expected label for -in")
	flag.StringVar(&imageID, "image", "", "catalog subject id (see -list)")
	flag.StringVar(&outDir, "out", "", "output directory (default from config)")

	flag.StringVar(&preset, "preset", "", "difficulty preset: Easy|Medium|Hard|Manual")
	flag.StringVar(&scenario, "scenario", "", "field scenario id (see -list)")
	flag.Float64Var(params[types.FieldBlur], "blur", 0, "blur radius 0..15")
	flag.Float64Var(params[types.FieldBrightness], "brightness", 100, "brightness percent 0..200")
	flag.Float64Var(params[types.FieldNoise], "noise", 0, "noise amount 0..100")
	flag.Float64Var(params[types.FieldRotation], "rotation", 0, "rotation degrees -180..180")
	flag.Float64Var(params[types.FieldCrop], "crop", 0, "zoom-in percent 0..100")
	flag.Uint64Var(&seed, "seed", 0, "noise seed for reproducible output, 0=random")

	flag.StringVar(&backend, "backend", "", "vision backend: ollama or openai")
	flag.StringVar(&url, "url", "", "vision server URL")
	flag.StringVar(&model, "model", "", "vision model name")
	flag.StringVar(&cacheBackend, "cache", "", "verdict cache: none|memory|redis")

	flag.BoolVar(&analyze, "analyze", false, "send the export to the vision model and write the verdict")
	flag.BoolVar(&probe, "probe", false, "ask the model to describe the undistorted subject and exit")
	flag.BoolVar(&list, "list", false, "print the catalog and exit")
	flag.BoolVar(&serve, "serve", false, "run the HTTP API instead of a one-shot render")
	flag.StringVar(&addr, "addr", "", "listen address for -serve")

	flag.Parse()

	cfg, err := loadConfig(configPath, envFile)
	if err != nil {
		log.Fatal(err)
	}
	override := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	override(&cfg.Oracle.Backend, backend)
	override(&cfg.Oracle.URL, url)
	override(&cfg.Oracle.Model, model)
	override(&cfg.Cache.Backend, cacheBackend)
	override(&cfg.Output.OutputDir, outDir)
	override(&cfg.Server.Addr, addr)

	if saveConfig != "" {
		if err := cfg.SaveToFile(saveConfig); err != nil {
			log.Fatal(err)
		}
		log.Printf("wrote %s", saveConfig)
		return
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	opts := []edgecaselab.Option{edgecaselab.WithLogger(logger)}
	if seed != 0 {
		opts = append(opts, edgecaselab.WithRandom(rand.New(rand.NewPCG(seed, seed))))
	}

	lab, err := edgecaselab.NewWithConfig(cfg, opts...)
	if err != nil && cfg.Cache.Backend == config.CacheRedis {
		logger.Warn("verdict cache unavailable, falling back to memory", zap.Error(err))
		cfg.Cache.Backend = config.CacheMemory
		lab, err = edgecaselab.NewWithConfig(cfg, opts...)
	}
	if err != nil {
		logger.Fatal("failed to start", zap.Error(err))
	}
	defer lab.Close()

	if list {
		printCatalog(lab)
		return
	}

	if serve {
		runServer(lab, cfg.Server.Addr, logger)
		return
	}

	// Pick the subject
	switch {
	case in != "":
		if label == "" {
			label = strings.TrimSuffix(filepath.Base(in), filepath.Ext(in))
		}
		lab.Session.UseSubject(types.PresetImage{ID: utils.SanitizeFilename(label), URL: in, Label: label})
	case imageID != "":
		if _, err := lab.Session.SelectImage(imageID); err != nil {
			logger.Fatal("unknown subject", zap.Error(err))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.LoaderTimeout()+5*time.Second)
	defer cancel()
	if err := lab.Session.Source().Wait(ctx); err != nil {
		logger.Fatal("subject image did not load", zap.Error(err))
	}

	if probe {
		img, _ := lab.Session.Source().Image()
		data, err := processing.Encode(img, "jpg", 85, false)
		if err != nil {
			logger.Fatal("encode failed", zap.Error(err))
		}
		answer, err := lab.Oracle.Probe(ctx, export.EncodeBase64(data))
		if err != nil {
			logger.Fatal("probe failed", zap.Error(err))
		}
		fmt.Println(answer)
		return
	}

	// Presets first, then explicit flags on top as manual edits
	switch {
	case scenario != "":
		if _, err := lab.Session.SelectScenario(scenario); err != nil {
			logger.Fatal("bad scenario", zap.Error(err))
		}
	case preset != "":
		if _, err := lab.Session.SelectDifficulty(preset); err != nil {
			logger.Fatal("bad preset", zap.Error(err))
		}
	}
	var editErr error
	flag.Visit(func(f *flag.Flag) {
		field, err := types.ParseField(f.Name)
		if err != nil {
			return
		}
		if _, err := lab.Session.SetParam(field, *params[field]); err != nil {
			editErr = errors.Join(editErr, err)
		}
	})
	if editErr != nil {
		logger.Fatal("bad parameter", zap.Error(editErr))
	}

	if err := utils.EnsureDir(cfg.Output.OutputDir); err != nil {
		logger.Fatal("cannot create output directory", zap.Error(err))
	}

	snap := lab.Session.Snapshot()
	assessment := lab.Session.Assessment()
	logger.Info("parameters",
		zap.String("subject", snap.Subject.Label),
		zap.String("mode", snap.Mode),
		zap.Any("params", snap.Params),
		zap.Float64("score", assessment.Score),
		zap.String("grade", string(assessment.Grade)))

	outPath := func(kind, format string) string {
		return utils.GenerateOutputFilename(cfg.Output.OutputDir, cfg.Output.Prefix, snap.Subject.ID, snap.Mode, kind, format)
	}

	data, err := lab.Session.Export()
	if err != nil {
		logger.Fatal("export failed", zap.Error(err))
	}
	exportPath := outPath("export", cfg.Export.Format)
	if err := os.WriteFile(exportPath, data, 0o644); err != nil {
		logger.Fatal("write failed", zap.Error(err))
	}
	logger.Info("wrote export", zap.String("path", exportPath), zap.String("size", utils.FormatFileSize(int64(len(data)))))

	if analyze {
		pending, err := lab.Session.Submit(ctx)
		if err != nil {
			logger.Fatal("submit failed", zap.Error(err))
		}
		waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.OracleTimeout()+5*time.Second)
		verdict, _, err := pending.Wait(waitCtx)
		waitCancel()
		if err != nil {
			logger.Fatal("analysis did not finish", zap.Error(err))
		}
		fmt.Printf("%s: %s (%.0f%%, correct=%v)\n%s\n", snap.Subject.Label, verdict.Label, verdict.Confidence, verdict.IsCorrect, verdict.Reasoning)

		js, _ := json.MarshalIndent(struct {
			Subject    types.PresetImage `json:"subject"`
			Mode       string            `json:"mode"`
			Params     types.Params      `json:"params"`
			Assessment any               `json:"assessment"`
			Verdict    types.Verdict     `json:"verdict"`
		}{snap.Subject, snap.Mode, snap.Params, assessment, verdict}, "", "  ")
		verdictPath := outPath("verdict", "json")
		if err := os.WriteFile(verdictPath, js, 0o644); err != nil {
			logger.Error("write failed", zap.Error(err))
		}
	}

	// Preview last so it carries the verdict's regions
	preview, err := lab.Session.Preview()
	if err != nil {
		logger.Fatal("preview failed", zap.Error(err))
	}
	previewPath := outPath("preview", "png")
	if err := processing.SaveImage(preview, previewPath, "png", 0, false); err != nil {
		logger.Error("preview save failed", zap.Error(err))
	} else {
		logger.Info("wrote preview", zap.String("path", previewPath))
	}
}

// loadConfig reads the explicit or default config file, then env overrides
func loadConfig(path, envFile string) (*config.Config, error) {
	cfg := config.Default()
	switch {
	case path != "":
		loaded, err := config.LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	case utils.FileExists(config.GetConfigPath()):
		loaded, err := config.LoadFromFile(config.GetConfigPath())
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(envFile); err != nil {
		return nil, err
	}
	return cfg, nil
}

func printCatalog(lab *edgecaselab.Lab) {
	cat := lab.Catalog
	fmt.Println("Images:")
	for _, img := range cat.Images {
		fmt.Printf("  %-10s %s\n", img.ID, img.Label)
	}
	fmt.Println("Edge cases:")
	for _, ec := range cat.EdgeCases {
		fmt.Printf("  %-10s %s: %s\n", ec.ID, ec.Label, ec.Description)
	}
	fmt.Println("Difficulties:")
	for _, d := range cat.Difficulties {
		a := edgecaselab.Assess(d.Config)
		fmt.Printf("  %-10s score %.1f (%s): %s\n", d.Label, a.Score, a.Grade, d.Description)
	}
	fmt.Println("Scenarios:")
	for _, s := range cat.Scenarios {
		a := edgecaselab.Assess(s.Config)
		fmt.Printf("  %-10s %s, score %.1f (%s): %s\n", s.ID, s.Label, a.Score, a.Grade, s.Description)
	}
}

func runServer(lab *edgecaselab.Lab, addr string, logger *zap.Logger) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           lab.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server failed", zap.Error(err))
	}
}
