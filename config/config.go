package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string // default: 8080

	// Hugging Face router
	HFToken    string
	HFEndpoint string // default: https://router.huggingface.co

	// Database
	PostgresDSN string

	// Cache
	RedisAddr string

	// Observability
	OTELExporterType     string // "stdout" or "otlp"
	OTELExporterEndpoint string // default: "localhost:4317"

	// Rate Limiting
	DefaultRateLimitRPM int64 // requests per minute, default: 120

	// Retry policy
	MaxRetries             int
	InitialRetryDelay      time.Duration
	RetryBackoffMultiplier float64
	MaxRetryDelay          time.Duration
	RequestTimeout         time.Duration // per remote call

	// Media size ceilings (bytes)
	MaxImageBytes int64
	MaxAudioBytes int64
	MaxVideoBytes int64

	// Default model per modality
	DefaultTextModel         string
	DefaultImageModel        string
	DefaultImageEditModel    string
	DefaultSpeechModel       string
	DefaultTranscribeModel   string
	DefaultEmbeddingModel    string
	DefaultTextToVideoModel  string
	DefaultImageToVideoModel string

	// Per-model provider overrides for the router's provider segment,
	// e.g. ROUTING_OVERRIDES="org/model=fal-ai,other/model=replicate"
	RoutingOverrides map[string]string

	// Ordered fallback models per modality
	TextFallbackModels         []string
	ImageFallbackModels        []string
	ImageEditFallbackModels    []string
	SpeechFallbackModels       []string
	TranscribeFallbackModels   []string
	EmbeddingFallbackModels    []string
	TextToVideoFallbackModels  []string
	ImageToVideoFallbackModels []string
}

func Load() (*Config, error) {
	// Load .env file if present (non-fatal if missing)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                 getEnv("PORT", "8080"),
		HFToken:              os.Getenv("HF_TOKEN"),
		HFEndpoint:           getEnv("HF_ENDPOINT", "https://router.huggingface.co"),
		PostgresDSN:          os.Getenv("POSTGRES_DSN"),
		RedisAddr:            os.Getenv("REDIS_ADDR"),
		OTELExporterType:     getEnv("OTEL_EXPORTER_TYPE", "stdout"),
		OTELExporterEndpoint: getEnv("OTEL_EXPORTER_ENDPOINT", "localhost:4317"),

		DefaultTextModel:         getEnv("DEFAULT_TEXT_MODEL", "mistralai/Mistral-7B-Instruct-v0.1"),
		DefaultImageModel:        getEnv("DEFAULT_IMAGE_MODEL", "stabilityai/stable-diffusion-3-medium"),
		DefaultImageEditModel:    getEnv("DEFAULT_IMAGE_EDIT_MODEL", "stabilityai/stable-diffusion-xl-inpainting"),
		DefaultSpeechModel:       getEnv("DEFAULT_SPEECH_MODEL", "espnet/kan-bayashi_ljspeech_vits"),
		DefaultTranscribeModel:   getEnv("DEFAULT_TRANSCRIBE_MODEL", "openai/whisper-base"),
		DefaultEmbeddingModel:    getEnv("DEFAULT_EMBEDDING_MODEL", "sentence-transformers/all-MiniLM-L6-v2"),
		DefaultTextToVideoModel:  getEnv("DEFAULT_TEXT_TO_VIDEO_MODEL", "damo-vilab/text-to-video-ms-1.7b"),
		DefaultImageToVideoModel: getEnv("DEFAULT_IMAGE_TO_VIDEO_MODEL", "stabilityai/stable-video-diffusion-img2vid-xt"),

		TextFallbackModels: getEnvList("TEXT_FALLBACK_MODELS",
			"HuggingFaceH4/zephyr-7b-beta", "tiiuae/falcon-7b-instruct"),
		ImageFallbackModels: getEnvList("IMAGE_FALLBACK_MODELS",
			"black-forest-labs/FLUX.1-dev", "runwayml/stable-diffusion-v1-5"),
		ImageEditFallbackModels: getEnvList("IMAGE_EDIT_FALLBACK_MODELS",
			"runwayml/stable-diffusion-inpainting"),
		SpeechFallbackModels: getEnvList("SPEECH_FALLBACK_MODELS",
			"microsoft/speecht5_tts"),
		TranscribeFallbackModels: getEnvList("TRANSCRIBE_FALLBACK_MODELS",
			"openai/whisper-small", "openai/whisper-medium"),
		EmbeddingFallbackModels: getEnvList("EMBEDDING_FALLBACK_MODELS",
			"sentence-transformers/all-mpnet-base-v2"),
		TextToVideoFallbackModels: getEnvList("TEXT_TO_VIDEO_FALLBACK_MODELS",
			"ali-vilab/modelscope-damo-text-to-video-synthesis"),
		ImageToVideoFallbackModels: getEnvList("IMAGE_TO_VIDEO_FALLBACK_MODELS",
			"stabilityai/stable-video-diffusion-img2vid"),
	}

	var err error
	if cfg.RoutingOverrides, err = getEnvMap("ROUTING_OVERRIDES"); err != nil {
		return nil, err
	}
	if cfg.DefaultRateLimitRPM, err = getEnvInt64("DEFAULT_RATE_LIMIT_RPM", 120); err != nil {
		return nil, err
	}
	if cfg.MaxRetries, err = getEnvInt("MAX_RETRIES", 3); err != nil {
		return nil, err
	}
	if cfg.InitialRetryDelay, err = getEnvDuration("INITIAL_RETRY_DELAY", time.Second); err != nil {
		return nil, err
	}
	if cfg.RetryBackoffMultiplier, err = getEnvFloat("RETRY_BACKOFF_MULTIPLIER", 2.0); err != nil {
		return nil, err
	}
	if cfg.MaxRetryDelay, err = getEnvDuration("MAX_RETRY_DELAY", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.RequestTimeout, err = getEnvDuration("REQUEST_TIMEOUT", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.MaxImageBytes, err = getEnvInt64("MAX_IMAGE_BYTES", 10<<20); err != nil {
		return nil, err
	}
	if cfg.MaxAudioBytes, err = getEnvInt64("MAX_AUDIO_BYTES", 50<<20); err != nil {
		return nil, err
	}
	if cfg.MaxVideoBytes, err = getEnvInt64("MAX_VIDEO_BYTES", 200<<20); err != nil {
		return nil, err
	}

	// Validation
	if cfg.HFToken == "" {
		return nil, fmt.Errorf("HF_TOKEN is required")
	}
	if cfg.PostgresDSN == "" {
		return nil, fmt.Errorf("POSTGRES_DSN is required")
	}
	if cfg.RedisAddr == "" {
		return nil, fmt.Errorf("REDIS_ADDR is required")
	}
	if cfg.RetryBackoffMultiplier < 1 {
		return nil, fmt.Errorf("RETRY_BACKOFF_MULTIPLIER must be >= 1, got %v", cfg.RetryBackoffMultiplier)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvInt64(key string, fallback int64) (int64, error) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

// getEnvMap parses comma-separated key=value pairs.
func getEnvMap(key string) (map[string]string, error) {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return nil, nil
	}
	out := make(map[string]string)
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, found := strings.Cut(part, "=")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if !found || k == "" || v == "" {
			return nil, fmt.Errorf("invalid %s entry %q, want model=provider", key, part)
		}
		out[k] = v
	}
	return out, nil
}

func getEnvList(key string, fallback ...string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
