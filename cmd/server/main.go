package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/himanishpuri/VocalMerge/pkg/logger"
	"github.com/himanishpuri/VocalMerge/pkg/vocalmerge"
	"github.com/himanishpuri/VocalMerge/pkg/vocalmerge/storage"
)

var (
	port           int
	baseURL        string
	tempDir        string
	outputDir      string
	dbPath         string
	deliveryMode   string
	ffmpegPath     string
	ffprobePath    string
	allowedOrigins string
	tuningFile     string
	logRequests    bool
	sweepInterval  time.Duration
)

func init() {
	// .env must be loaded before the flag defaults read the environment.
	_ = godotenv.Load()

	flag.IntVar(&port, "port", getEnvInt("PORT", 8080), "HTTP server port")
	flag.StringVar(&baseURL, "base-url", getEnvOrDefault("BASE_URL", ""), "Public base URL used to build video links (default http://localhost:<port>)")
	flag.StringVar(&tempDir, "temp", getEnvOrDefault("VOCALMERGE_TEMP_DIR", os.TempDir()), "Directory for per-request working files")
	flag.StringVar(&outputDir, "outputs", getEnvOrDefault("VOCALMERGE_OUTPUT_DIR", "outputs"), "Directory for stored merged videos")
	flag.StringVar(&dbPath, "db", getEnvOrDefault("VOCALMERGE_DB_PATH", storage.DefaultDBFile), "Path to the SQLite artifact registry")
	flag.StringVar(&deliveryMode, "mode", getEnvOrDefault("DELIVERY_MODE", string(vocalmerge.DeliveryReferenced)), "Delivery mode: inline or referenced")
	flag.StringVar(&ffmpegPath, "ffmpeg", getEnvOrDefault("FFMPEG_PATH", "ffmpeg"), "ffmpeg binary")
	flag.StringVar(&ffprobePath, "ffprobe", getEnvOrDefault("FFPROBE_PATH", "ffprobe"), "ffprobe binary")
	flag.StringVar(&allowedOrigins, "origins", getEnvOrDefault("ALLOWED_ORIGINS", "*"), "Comma-separated list of allowed CORS origins (use * for all)")
	flag.StringVar(&tuningFile, "tuning", getEnvOrDefault("TUNING_FILE", ""), "Optional YAML file overriding mix and scoring parameters")
	flag.DurationVar(&sweepInterval, "sweep-interval", getEnvDuration("SWEEP_INTERVAL", 5*time.Minute), "How often expired and never-served videos are deleted (0 disables)")
	flag.BoolVar(&logRequests, "log-requests", os.Getenv("LOG_REQUESTS") != "", "Log every HTTP request")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return d
	}
	return defaultValue
}

func parseOrigins(raw string) []string {
	if strings.TrimSpace(raw) == "*" {
		return []string{"*"}
	}
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func main() {
	flag.Parse()
	log := logger.GetLogger()

	mode, err := vocalmerge.ParseDeliveryMode(deliveryMode)
	if err != nil {
		log.Fatalf("Invalid delivery mode: %v", err)
	}
	if baseURL == "" {
		baseURL = "http://localhost:" + strconv.Itoa(port)
	}

	opts := []vocalmerge.Option{
		vocalmerge.WithLogger(log),
		vocalmerge.WithTempDir(tempDir),
		vocalmerge.WithOutputDir(outputDir),
		vocalmerge.WithDBPath(dbPath),
		vocalmerge.WithBaseURL(baseURL),
		vocalmerge.WithDeliveryMode(mode),
		vocalmerge.WithFFmpeg(ffmpegPath, ffprobePath),
	}
	if tuningFile != "" {
		tuning, err := vocalmerge.LoadTuning(tuningFile)
		if err != nil {
			log.Fatalf("Failed to load tuning file: %v", err)
		}
		opts = append(opts, vocalmerge.WithTuning(tuning))
		log.Infof("Loaded tuning from %s", tuningFile)
	}

	service, err := vocalmerge.NewService(opts...)
	if err != nil {
		log.Fatalf("Failed to create service: %v", err)
	}
	defer service.Close()

	if n, err := service.Sweep(); err != nil {
		log.Warnf("Startup sweep failed: %v", err)
	} else if n > 0 {
		log.Infof("Startup sweep removed %d expired videos", n)
	}

	config := &ServerConfig{
		Port:           port,
		BaseURL:        baseURL,
		TempDir:        tempDir,
		OutputDir:      outputDir,
		DBPath:         dbPath,
		Mode:           mode,
		AllowedOrigins: parseOrigins(allowedOrigins),
		LogRequests:    logRequests,
	}
	server := NewServer(service, config)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if mode == vocalmerge.DeliveryReferenced && sweepInterval > 0 {
		go runSweeper(ctx, service, sweepInterval, log)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("Server failed: %v", err)
		}
	case <-ctx.Done():
		log.Infof("Shutdown signal received, draining requests...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warnf("Graceful shutdown incomplete: %v", err)
		}
	}
	log.Infof("Goodbye")
}

// runSweeper removes expired and never-served videos every interval until ctx
// is done. Timers only cover videos that were fetched at least once.
func runSweeper(ctx context.Context, service vocalmerge.Service, interval time.Duration, log *logger.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := service.Sweep()
			if err != nil {
				log.Warnf("Periodic sweep failed: %v", err)
			} else if n > 0 {
				log.Infof("Periodic sweep removed %d videos", n)
			}
		}
	}
}
