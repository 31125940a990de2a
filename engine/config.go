package engine

import (
	"time"

	"github.com/omalloc/ssedeliver/internal/adapter"
	"github.com/omalloc/ssedeliver/internal/filter"
)

// Config holds every engine-tunable knob named in the external
// interface contract. Field names are semantic, matching the teacher's
// `conf.Bootstrap`/`conf.Server` yaml-tag style.
type Config struct {
	Version     string `yaml:"version"`
	Debug       bool   `yaml:"debug"`
	LogFileName string `yaml:"log_file_name"`
	DebugTag    string `yaml:"debug_tag"`

	IdleTimeout              time.Duration `yaml:"idle_timeout"`
	ExceptionTimeout         time.Duration `yaml:"exception_timeout"`
	SSEBufferExtractInterval time.Duration `yaml:"sse_buffer_extract_interval"`

	EleTypesInInterval       []string `yaml:"ele_types_in_interval"`
	UnCheckConnectStatePaths []string `yaml:"un_check_connect_state_paths"`

	// PanicFailThreshold is how many recovered admission-pipeline panics
	// within PanicFailWindow force the connection to connectException.
	// Zero disables the escalation (panics are still recovered and
	// logged, they just never force the state).
	PanicFailThreshold int32         `yaml:"panic_fail_threshold"`
	PanicFailWindow    time.Duration `yaml:"panic_fail_window"`

	// MaxBodyBytes caps the total bytes read from an origin SSE response
	// before the engine forces io.EOF, guarding against a runaway or
	// malicious upstream that never terminates its stream. Zero means
	// unbounded.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// MaxIngestKbps caps the rate at which the engine drains an origin
	// SSE response body, in units of 1024 bytes per second. Zero means
	// unbounded.
	MaxIngestKbps int `yaml:"max_ingest_kbps"`

	// SSEFilter is the permanent filter installed at construction time.
	// Nil means every event passes through unchanged.
	SSEFilter filter.Func `yaml:"-"`

	// StreamAdapter overrides the default `>s`-framed StreamAdapter.
	// Nil uses adapter.New().
	StreamAdapter *adapter.StreamAdapter `yaml:"-"`
}

// DefaultConfig returns sane defaults matching spec.md's boundary
// behavior (empty EleTypesInInterval means pacing never delays).
func DefaultConfig() Config {
	return Config{
		Version:                  "v1",
		IdleTimeout:              30 * time.Second,
		ExceptionTimeout:         2 * time.Minute,
		SSEBufferExtractInterval: 0,
		PanicFailThreshold:       5,
		PanicFailWindow:          10 * time.Second,
	}
}
