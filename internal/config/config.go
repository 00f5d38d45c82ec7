package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Env        string
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	STT        STTConfig
	LLM        LLMConfig
	Transcoder TranscoderConfig
	Upload     UploadConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type DatabaseConfig struct {
	URL            string
	MaxConns       int
	MinConns       int
	MigrationsPath string // empty: use the embedded migrations
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type STTConfig struct {
	Backend       string // "openai" or "local"
	OpenAIKey     string
	OpenAIBaseURL string
	OpenAIModel   string
	LocalBaseURL  string // default: "http://localhost:8178/v1"
}

// LLMConfig selects the chat model used to grade transcriptions.
type LLMConfig struct {
	OpenAIKey      string
	AnthropicKey   string
	GraderProvider string // "openai" or "anthropic"
	GraderModel    string
}

type TranscoderConfig struct {
	FFmpegPath string
	Format     string // output container extension, e.g. "mp3"
}

type UploadConfig struct {
	Dir          string
	MaxMemoryMiB int
}

// Load reads configuration from the environment. A .env file in the
// working directory is applied first when present; real environment
// variables take precedence over it.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	port, err := getEnvInt("PORT", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}
	if port == 0 {
		if port, err = getEnvInt("SERVER_PORT", 3000); err != nil {
			return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
		}
	}

	maxConns, err := getEnvInt("DB_MAX_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_CONNS: %w", err)
	}

	minConns, err := getEnvInt("DB_MIN_CONNS", 1)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MIN_CONNS: %w", err)
	}

	redisDB, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxMemory, err := getEnvInt("UPLOAD_MAX_MEMORY_MIB", 32)
	if err != nil {
		return nil, fmt.Errorf("invalid UPLOAD_MAX_MEMORY_MIB: %w", err)
	}

	cfg := &Config{
		Env: getEnv("APP_ENV", "production"),
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: port,
		},
		Database: DatabaseConfig{
			URL:            getEnv("DATABASE_URL", ""),
			MaxConns:       maxConns,
			MinConns:       minConns,
			MigrationsPath: getEnv("MIGRATIONS_PATH", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		STT: STTConfig{
			Backend:       getEnv("STT_BACKEND", "openai"),
			OpenAIKey:     getEnv("OPENAI_API_KEY", ""),
			OpenAIBaseURL: getEnv("STT_OPENAI_BASE_URL", ""),
			OpenAIModel:   getEnv("STT_OPENAI_MODEL", "whisper-1"),
			LocalBaseURL:  getEnv("STT_LOCAL_BASE_URL", "http://localhost:8178/v1"),
		},
		LLM: LLMConfig{
			OpenAIKey:      getEnv("OPENAI_API_KEY", ""),
			AnthropicKey:   getEnv("ANTHROPIC_API_KEY", ""),
			GraderProvider: getEnv("GRADER_PROVIDER", "openai"),
			GraderModel:    getEnv("GRADER_MODEL", ""),
		},
		Transcoder: TranscoderConfig{
			FFmpegPath: getEnv("FFMPEG_PATH", "ffmpeg"),
			Format:     strings.TrimPrefix(getEnv("TRANSCODE_FORMAT", "mp3"), "."),
		},
		Upload: UploadConfig{
			Dir:          getEnv("UPLOAD_DIR", os.TempDir()),
			MaxMemoryMiB: maxMemory,
		},
	}

	return cfg, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Development reports whether error responses may carry stack traces.
func (c *Config) Development() bool {
	return strings.EqualFold(c.Env, "development")
}

// Validate checks that the credentials required by the selected
// providers are present.
func (c *Config) Validate() error {
	var missing []string
	if c.STT.Backend == "openai" && c.STT.OpenAIKey == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}
	switch c.LLM.GraderProvider {
	case "openai":
		if c.LLM.OpenAIKey == "" && c.STT.Backend != "openai" {
			missing = append(missing, "OPENAI_API_KEY")
		}
	case "anthropic":
		if c.LLM.AnthropicKey == "" {
			missing = append(missing, "ANTHROPIC_API_KEY")
		}
	default:
		return fmt.Errorf("unknown GRADER_PROVIDER %q", c.LLM.GraderProvider)
	}
	switch c.STT.Backend {
	case "openai", "local":
	default:
		return fmt.Errorf("unknown STT_BACKEND %q", c.STT.Backend)
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}
