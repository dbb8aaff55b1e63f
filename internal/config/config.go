// Package config reads the settings of the pdfmerge commands from the
// environment. Command-line flags are applied on top by each command.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/lvillar/pdfmerge"
	"github.com/lvillar/pdfmerge/download"
	"github.com/lvillar/pdfmerge/pageops"
)

const (
	// ErrCodeInvalid means a variable is set but cannot be parsed.
	ErrCodeInvalid = "config_invalid"
	// ErrCodeIncomplete means a group of variables is only partly set.
	ErrCodeIncomplete = "config_incomplete"
)

// Environment variable names.
const (
	EnvHost        = "PDFMERGE_HOST"
	EnvPort        = "PDFMERGE_PORT"
	EnvScheme      = "PDFMERGE_SCHEME"
	EnvOrigin      = "PDFMERGE_ORIGIN"
	EnvOutputDir   = "PDFMERGE_OUTPUT_DIR"
	EnvTimeout     = "PDFMERGE_TIMEOUT"
	EnvS3Endpoint  = "PDFMERGE_S3_ENDPOINT"
	EnvS3AccessKey = "PDFMERGE_S3_ACCESS_KEY"
	EnvS3SecretKey = "PDFMERGE_S3_SECRET_KEY"
	EnvS3Bucket    = "PDFMERGE_S3_BUCKET"
	EnvS3Prefix    = "PDFMERGE_S3_PREFIX"
	EnvS3Region    = "PDFMERGE_S3_REGION"
	EnvS3Secure    = "PDFMERGE_S3_SECURE"
	EnvAddr        = "PDFMERGE_ADDR"
	EnvUploadDir   = "PDFMERGE_UPLOAD_DIR"
	EnvEngine      = "PDFMERGE_ENGINE"
	EnvMaxFileSize = "PDFMERGE_MAX_FILE_SIZE"
	EnvMaxFiles    = "PDFMERGE_MAX_FILES"
	EnvCORSOrigin  = "PDFMERGE_CORS_ORIGIN"
	EnvLogLevel    = "PDFMERGE_LOG_LEVEL"
	EnvPreviewAddr = "PDFMERGE_PREVIEW_ADDR"
)

// Error is a structured configuration error.
type Error struct {
	Code string
	Key  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Key, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Key)
}

func (e *Error) Unwrap() error { return e.Err }

// Code extracts the error code from err, or "" when err is not an *Error.
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Client configures the commands that submit batches.
type Client struct {
	Endpoint    pdfmerge.Endpoint
	OutputDir   string
	Timeout     time.Duration // zero means no limit
	Object      *download.ObjectConfig
	LogLevel    slog.Level
	PreviewAddr string // serve staged files over HTTP here when set
}

// Server configures the merge service.
type Server struct {
	Addr        string
	UploadDir   string // empty spools uploads in memory
	Engine      string
	MaxFileSize int64
	MaxFiles    int
	CORSOrigin  string
	LogLevel    slog.Level
}

// LoadClient reads the client settings through getenv, usually os.Getenv.
//
// The endpoint host comes from PDFMERGE_HOST, or from the hostname of
// PDFMERGE_ORIGIN when the host is unset. Object storage delivery is
// enabled when PDFMERGE_S3_ENDPOINT is set and then needs a bucket.
func LoadClient(getenv func(string) string) (Client, error) {
	env := reader{getenv: getenv}

	port, err := env.int(EnvPort, pdfmerge.DefaultPort)
	if err != nil {
		return Client{}, err
	}
	if port < 1 || port > 65535 {
		return Client{}, &Error{Code: ErrCodeInvalid, Key: EnvPort, Err: fmt.Errorf("port %d out of range", port)}
	}
	opts := []pdfmerge.EndpointOption{pdfmerge.WithPort(port)}
	if scheme := env.string(EnvScheme, ""); scheme != "" {
		if scheme != "http" && scheme != "https" {
			return Client{}, &Error{Code: ErrCodeInvalid, Key: EnvScheme, Err: fmt.Errorf("unsupported scheme %q", scheme)}
		}
		opts = append(opts, pdfmerge.WithScheme(scheme))
	}

	ep := pdfmerge.NewEndpoint("localhost", opts...)
	if host := env.string(EnvHost, ""); host != "" {
		ep = pdfmerge.NewEndpoint(host, opts...)
	} else if origin := env.string(EnvOrigin, ""); origin != "" {
		ep, err = pdfmerge.EndpointFromOrigin(origin, opts...)
		if err != nil {
			return Client{}, &Error{Code: ErrCodeInvalid, Key: EnvOrigin, Err: err}
		}
	}

	timeout, err := env.duration(EnvTimeout)
	if err != nil {
		return Client{}, err
	}
	level, err := env.level()
	if err != nil {
		return Client{}, err
	}

	cfg := Client{
		Endpoint:    ep,
		OutputDir:   env.string(EnvOutputDir, "."),
		Timeout:     timeout,
		LogLevel:    level,
		PreviewAddr: env.string(EnvPreviewAddr, ""),
	}

	if endpoint := env.string(EnvS3Endpoint, ""); endpoint != "" {
		secure, err := env.bool(EnvS3Secure, true)
		if err != nil {
			return Client{}, err
		}
		obj := &download.ObjectConfig{
			Endpoint:  endpoint,
			AccessKey: env.string(EnvS3AccessKey, ""),
			SecretKey: env.string(EnvS3SecretKey, ""),
			Bucket:    env.string(EnvS3Bucket, ""),
			Prefix:    env.string(EnvS3Prefix, ""),
			Region:    env.string(EnvS3Region, ""),
			Secure:    secure,
		}
		if obj.Bucket == "" {
			return Client{}, &Error{Code: ErrCodeIncomplete, Key: EnvS3Bucket, Err: errors.New("required when " + EnvS3Endpoint + " is set")}
		}
		cfg.Object = obj
	}
	return cfg, nil
}

// LoadServer reads the merge service settings through getenv.
func LoadServer(getenv func(string) string) (Server, error) {
	env := reader{getenv: getenv}

	engine := env.string(EnvEngine, pageops.EnginePDFCPU)
	if _, err := pageops.EngineByName(engine); err != nil {
		return Server{}, &Error{Code: ErrCodeInvalid, Key: EnvEngine, Err: err}
	}
	maxSize, err := env.int(EnvMaxFileSize, int(pdfmerge.MaxFileSize))
	if err != nil {
		return Server{}, err
	}
	if maxSize <= 0 {
		return Server{}, &Error{Code: ErrCodeInvalid, Key: EnvMaxFileSize, Err: errors.New("must be positive")}
	}
	maxFiles, err := env.int(EnvMaxFiles, 0)
	if err != nil {
		return Server{}, err
	}
	if maxFiles < 0 {
		return Server{}, &Error{Code: ErrCodeInvalid, Key: EnvMaxFiles, Err: errors.New("must not be negative")}
	}
	level, err := env.level()
	if err != nil {
		return Server{}, err
	}

	return Server{
		Addr:        env.string(EnvAddr, fmt.Sprintf(":%d", pdfmerge.DefaultPort)),
		UploadDir:   env.string(EnvUploadDir, ""),
		Engine:      engine,
		MaxFileSize: int64(maxSize),
		MaxFiles:    maxFiles,
		CORSOrigin:  env.string(EnvCORSOrigin, "*"),
		LogLevel:    level,
	}, nil
}

// NewLogger returns a text logger on w at level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, err
	}
	return level, nil
}

type reader struct {
	getenv func(string) string
}

func (r reader) string(key, def string) string {
	if v := strings.TrimSpace(r.getenv(key)); v != "" {
		return v
	}
	return def
}

func (r reader) int(key string, def int) (int, error) {
	v := r.string(key, "")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, &Error{Code: ErrCodeInvalid, Key: key, Err: err}
	}
	return n, nil
}

func (r reader) bool(key string, def bool) (bool, error) {
	v := r.string(key, "")
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, &Error{Code: ErrCodeInvalid, Key: key, Err: err}
	}
	return b, nil
}

func (r reader) duration(key string) (time.Duration, error) {
	v := r.string(key, "")
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, &Error{Code: ErrCodeInvalid, Key: key, Err: err}
	}
	if d < 0 {
		return 0, &Error{Code: ErrCodeInvalid, Key: key, Err: errors.New("must not be negative")}
	}
	return d, nil
}

func (r reader) level() (slog.Level, error) {
	v := r.string(EnvLogLevel, "")
	if v == "" {
		return slog.LevelInfo, nil
	}
	level, err := ParseLevel(v)
	if err != nil {
		return slog.LevelInfo, &Error{Code: ErrCodeInvalid, Key: EnvLogLevel, Err: err}
	}
	return level, nil
}
