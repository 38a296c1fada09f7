// Package envconfig reads runtime tunables from GGUFRT_* environment variables.
//
// Every getter re-reads the environment, so tests can use t.Setenv freely.
package envconfig

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Var returns an environment variable stripped of surrounding quotes and spaces.
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}

// LogLevel returns the log level from GGUFRT_DEBUG.
// A true value enables debug, an integer n selects slog.Level(-4*n) so 2 is trace.
func LogLevel() slog.Level {
	level := slog.LevelInfo
	if s := Var("GGUFRT_DEBUG"); s != "" {
		if b, _ := strconv.ParseBool(s); b {
			level = slog.LevelDebug
		} else if i, _ := strconv.ParseInt(s, 10, 64); i != 0 {
			level = slog.Level(i * -4)
		}
	}
	return level
}

// BoolWithDefault returns a getter for a boolean variable.
// Unparsable non-empty values count as true.
func BoolWithDefault(k string) func(defaultValue bool) bool {
	return func(defaultValue bool) bool {
		if s := Var(k); s != "" {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return true
			}
			return b
		}
		return defaultValue
	}
}

// Bool returns a getter for a boolean variable that defaults to false.
func Bool(k string) func() bool {
	withDefault := BoolWithDefault(k)
	return func() bool {
		return withDefault(false)
	}
}

// String returns a getter for a string variable.
func String(k string) func() string {
	return func() string {
		return Var(k)
	}
}

// Uint returns a getter for an unsigned integer variable.
func Uint(key string, defaultValue uint) func() uint {
	return func() uint {
		if s := Var(key); s != "" {
			if n, err := strconv.ParseUint(s, 10, 64); err != nil {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return uint(n)
			}
		}
		return defaultValue
	}
}

var (
	// ForceScalar disables the SIMD-style kernel variants even when the CPU supports them.
	ForceScalar = Bool("GGUFRT_FORCE_SCALAR")
	// ContextLength overrides the attention cache capacity. Zero keeps the model value.
	ContextLength = Uint("GGUFRT_CONTEXT_LENGTH", 0)
	// Encoding is the tiktoken encoding used by the run command.
	Encoding = String("GGUFRT_ENCODING")
)

// DefaultReadBuffer is the reader read-ahead size when GGUFRT_READ_BUFFER is unset.
const DefaultReadBuffer = 1 << 20

// ReadBuffer returns the read-ahead size for the binary reader.
func ReadBuffer() int {
	n := Uint("GGUFRT_READ_BUFFER", DefaultReadBuffer)()
	if n == 0 {
		return DefaultReadBuffer
	}
	return int(n) //nolint:gosec // G115: buffer sizes are small.
}

// NumThreads returns the number of kernel workers.
func NumThreads() int {
	n := Uint("GGUFRT_NUM_THREADS", 0)()
	if n == 0 {
		return runtime.NumCPU()
	}
	return int(n) //nolint:gosec // G115: thread counts are small.
}

// EnvVar describes one configuration variable.
type EnvVar struct {
	Name        string
	Value       any
	Description string
}

// AsMap returns every configuration variable with its current value.
func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"GGUFRT_DEBUG":          {"GGUFRT_DEBUG", LogLevel(), "Show additional debug information (e.g. GGUFRT_DEBUG=1, 2 for trace)"},
		"GGUFRT_READ_BUFFER":    {"GGUFRT_READ_BUFFER", ReadBuffer(), "Read-ahead buffer size in bytes (default 1048576)"},
		"GGUFRT_NUM_THREADS":    {"GGUFRT_NUM_THREADS", NumThreads(), "Number of kernel worker goroutines (default: number of CPUs)"},
		"GGUFRT_FORCE_SCALAR":   {"GGUFRT_FORCE_SCALAR", ForceScalar(), "Use the scalar kernels regardless of detected CPU features"},
		"GGUFRT_CONTEXT_LENGTH": {"GGUFRT_CONTEXT_LENGTH", ContextLength(), "Attention cache capacity (default: model context length)"},
		"GGUFRT_ENCODING":       {"GGUFRT_ENCODING", Encoding(), "tiktoken encoding for the run command (default cl100k_base)"},
	}
}

// Values returns every configuration variable formatted as a string.
func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}
