package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"gopkg.in/yaml.v3"

	"github.com/amanullahtanweer/voicememo/internal/blobstore"
	"github.com/amanullahtanweer/voicememo/internal/log"
	"github.com/amanullahtanweer/voicememo/internal/metrics"
	"github.com/amanullahtanweer/voicememo/internal/notify"
	"github.com/amanullahtanweer/voicememo/internal/recording"
	"github.com/amanullahtanweer/voicememo/internal/server"
	"github.com/amanullahtanweer/voicememo/internal/store"
	"github.com/amanullahtanweer/voicememo/internal/transcriber"
)

type Config struct {
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
	Server struct {
		Host               string `yaml:"host"`
		Port               int    `yaml:"port"`
		MaxUploadMB        int64  `yaml:"max_upload_mb"`
		RateLimitPerMinute int    `yaml:"rate_limit_per_minute"`
	} `yaml:"server"`
	Redis struct {
		Addr      string `yaml:"addr"`
		Password  string `yaml:"password"`
		DB        int    `yaml:"db"`
		KeyPrefix string `yaml:"key_prefix"`
	} `yaml:"redis"`
	Storage struct {
		APIURL    string `yaml:"api_url"`
		PublicURL string `yaml:"public_url"`
		AccessKey string `yaml:"access_key"`
		Folder    string `yaml:"folder"`
	} `yaml:"storage"`
	Transcription struct {
		Provider string `yaml:"provider"` // "deepgram" or "whisper"
		Deepgram struct {
			APIKey string `yaml:"api_key"`
			Model  string `yaml:"model"`
		} `yaml:"deepgram"`
		Whisper struct {
			Endpoint string `yaml:"endpoint"`
			APIKey   string `yaml:"api_key"`
			Model    string `yaml:"model"`
		} `yaml:"whisper"`
	} `yaml:"transcription"`
}

func main() {
	var configFile string
	flag.StringVar(&configFile, "config", "config.yaml", "Configuration file path")
	flag.Parse()

	config := &Config{}
	if err := loadConfig(configFile, config); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	applyEnvOverrides(config)

	log.Configure(log.Config{Level: config.Log.Level})
	logger := log.Base()

	recStore, err := store.New(store.Config{
		Addr:      config.Redis.Addr,
		Password:  config.Redis.Password,
		DB:        config.Redis.DB,
		KeyPrefix: config.Redis.KeyPrefix,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to recording store")
	}
	defer recStore.Close()

	blobs := blobstore.NewHTTPStore(blobstore.Config{
		APIBaseURL:    config.Storage.APIURL,
		PublicBaseURL: config.Storage.PublicURL,
		AccessKey:     config.Storage.AccessKey,
		Folder:        config.Storage.Folder,
	})

	engine, err := newTranscriber(config)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create transcriber")
	}

	hub := notify.NewHub(log.With("notify"))
	svcMetrics := metrics.New()

	manager := recording.NewManager(recording.ManagerConfig{
		Store:   recStore,
		Blobs:   blobs,
		Engine:  engine,
		Events:  hub,
		Metrics: svcMetrics,
		Logger:  log.With("lifecycle"),
	})

	srv := server.New(server.Config{
		Host:            config.Server.Host,
		Port:            config.Server.Port,
		MaxUploadBytes:  config.Server.MaxUploadMB << 20,
		RateLimitPerMin: config.Server.RateLimitPerMinute,
	}, manager, hub, svcMetrics, recStore, log.With("http"))

	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("shutting down server")
	if err := srv.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("shutdown failed")
	}
}

func loadConfig(filename string, config *Config) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	return decoder.Decode(config)
}

// applyEnvOverrides lets credentials and addresses come from the
// environment, so the config file never has to hold secrets.
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			config.Server.Port = port
		}
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		config.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		config.Redis.Password = v
	}
	if v := os.Getenv("STORAGE_ACCESS_KEY"); v != "" {
		config.Storage.AccessKey = v
	}
	if v := os.Getenv("DEEPGRAM_API_KEY"); v != "" {
		config.Transcription.Deepgram.APIKey = v
	}
	if v := os.Getenv("WHISPER_API_KEY"); v != "" {
		config.Transcription.Whisper.APIKey = v
	}
}

func newTranscriber(config *Config) (transcriber.Transcriber, error) {
	switch config.Transcription.Provider {
	case "deepgram", "":
		return transcriber.NewDeepgramTranscriber(
			config.Transcription.Deepgram.APIKey,
			config.Transcription.Deepgram.Model,
		)
	case "whisper":
		return transcriber.NewWhisperTranscriber(
			config.Transcription.Whisper.Endpoint,
			config.Transcription.Whisper.APIKey,
			config.Transcription.Whisper.Model,
		)
	default:
		return nil, fmt.Errorf("unknown provider: %s", config.Transcription.Provider)
	}
}
