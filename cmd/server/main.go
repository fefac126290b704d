// Package main provides the server entry point.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"github.com/ayase-lab/karabox/internal/api/httpapi"
	"github.com/ayase-lab/karabox/internal/api/ws"
	"github.com/ayase-lab/karabox/internal/app/notification"
	"github.com/ayase-lab/karabox/internal/domain/song"
	"github.com/ayase-lab/karabox/internal/domain/user"
	"github.com/ayase-lab/karabox/internal/engine/coordinator"
	"github.com/ayase-lab/karabox/internal/engine/criteria"
	"github.com/ayase-lab/karabox/internal/engine/poll"
	"github.com/ayase-lab/karabox/internal/engine/quota"
	"github.com/ayase-lab/karabox/internal/engine/store"
	"github.com/ayase-lab/karabox/internal/engine/vote"
	"github.com/ayase-lab/karabox/internal/infra/config"
	"github.com/ayase-lab/karabox/internal/infra/logger"
)

var (
	app        = kingpin.New("karabox-server", "karabox shared queue server")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	listCriteriaCmd = app.Command("list-criteria-types", "List available criteria types and exit")
)

func init() {
	app.Command("start", "Start the server (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if command == listCriteriaCmd.FullCommand() {
		printCriteriaTypes()
		return
	}

	logCfg := config.LogConfig{Output: "stdout", Level: "info"}
	if *verbose {
		logCfg.Level = "debug"
	}
	if *logfile != "" {
		logCfg.Output = *logfile
		logCfg.File = *logfile
	}
	if err := logger.Init(logCfg); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		os.Exit(1)
	}
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	st, closeStore, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer closeStore()

	lib, err := loadLibrary(cfg.Library.SongsFile)
	if err != nil {
		return fmt.Errorf("failed to load song library: %w", err)
	}

	bus := notification.NewBus()
	defer bus.Close()

	coord := coordinator.New(
		st,
		lib,
		user.NewRegistry(),
		bus,
		coordinatorConfig(cfg),
		rand.New(rand.NewSource(time.Now().UnixNano())),
	)
	if err := coord.Init(); err != nil {
		return fmt.Errorf("failed to initialize coordinator: %w", err)
	}
	if err := loadCriteria(coord, cfg); err != nil {
		return fmt.Errorf("failed to load criteria: %w", err)
	}
	applyPlaylistDefaults(coord, cfg)

	hub := ws.NewHub(bus)
	hub.Start()
	defer hub.Stop()

	api := httpapi.NewServer(coord, cfg, hub)
	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: api.Router(),
	}

	serverErrCh := make(chan error, 1)
	go func() {
		zlog.Info().Msgf("Starting server: addr=%s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	coord.PlaybackStopped()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Server stopped")
	return nil
}

// openStore creates the configured entry store backend.
func openStore(cfg *config.Config) (store.Store, func(), error) {
	switch cfg.Storage.Driver {
	case "sqlite":
		s, err := store.NewSQLiteStore(cfg.Storage.Path)
		if err != nil {
			return nil, nil, err
		}
		zlog.Info().Msgf("Using sqlite store at %s", cfg.Storage.Path)
		return s, func() { _ = s.Close() }, nil
	default:
		zlog.Info().Msg("Using in-memory store, queue state is lost on restart")
		return store.NewMemoryStore(), func() {}, nil
	}
}

// coordinatorConfig bridges the file configuration into the coordinator's
// live policy view.
func coordinatorConfig(cfg *config.Config) func() coordinator.Config {
	return func() coordinator.Config {
		return coordinator.Config{
			Quota: quota.Config{
				Kind:  quota.Kind(cfg.Quota.Kind),
				Limit: cfg.Quota.Limit,
			},
			Upvotes: vote.Config{
				Percent: cfg.Upvotes.Percent,
				Min:     cfg.Upvotes.Min,
			},
			Poll: poll.Config{
				Choices: cfg.Poll.Choices,
				Timeout: cfg.PollTimeout(),
			},
			DejavuWindow: cfg.DejavuWindow(),
		}
	}
}

// loadCriteria creates the configured criteria sets and activates at most
// one of them.
func loadCriteria(coord *coordinator.Coordinator, cfg *config.Config) error {
	for _, setCfg := range cfg.Criteria {
		cs, err := criteria.FromSettings(setCfg.Settings)
		if err != nil {
			return fmt.Errorf("criteria set %q: %w", setCfg.Name, err)
		}
		set, err := coord.CreateCriteriaSet(setCfg.Name, cs)
		if err != nil {
			return fmt.Errorf("criteria set %q: %w", setCfg.Name, err)
		}
		if setCfg.Active {
			if err := coord.ActivateCriteriaSet(set.ID); err != nil {
				return err
			}
			zlog.Info().Msgf("Activated criteria set %q with %d criteria", setCfg.Name, len(cs))
		}
	}
	return nil
}

// applyPlaylistDefaults pushes the configured playlist flags onto the
// default playlist created by a fresh Init.
func applyPlaylistDefaults(coord *coordinator.Coordinator, cfg *config.Config) {
	p, err := coord.Playlist(coord.CurrentPlaylistID())
	if err != nil {
		zlog.Warn().Msgf("Failed to read current playlist: %v", err)
		return
	}
	p.AllowDuplicates = cfg.Playlist.AllowDuplicates
	p.AutoSortLikes = cfg.Playlist.AutoSortLikes
	if err := coord.EditPlaylist(p); err != nil {
		zlog.Warn().Msgf("Failed to apply playlist defaults: %v", err)
	}
}

// songRecord is the on-disk library format.
type songRecord struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Type     string `json:"type"`
	Duration int    `json:"duration_sec"`
	Year     int    `json:"year"`
	Tags     []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		Type string `json:"type"`
	} `json:"tags"`
}

// loadLibrary reads the song library from a JSON file. Without a file the
// server starts with an empty library.
func loadLibrary(path string) (*song.MemoryLibrary, error) {
	lib := song.NewMemoryLibrary()
	if path == "" {
		zlog.Warn().Msg("No songs file configured, starting with an empty library")
		return lib, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var records []songRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}

	for _, rec := range records {
		s := song.Song{
			ID:       rec.ID,
			Title:    rec.Title,
			Type:     rec.Type,
			Duration: time.Duration(rec.Duration) * time.Second,
			Year:     rec.Year,
		}
		for _, t := range rec.Tags {
			s.Tags = append(s.Tags, song.Tag{ID: t.ID, Name: t.Name, Type: song.TagType(t.Type)})
		}
		lib.Put(s)
	}
	zlog.Info().Msgf("Loaded %d songs from %s", len(records), path)
	return lib, nil
}

// printCriteriaTypes prints available criteria types.
func printCriteriaTypes() {
	fmt.Println("Available criteria types:")
	for _, t := range criteria.Types() {
		fmt.Printf("  %s\n", t)
	}
}
