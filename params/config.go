package params

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds the process-wide knobs the engine reads at startup. There is
// no persisted state (see SPEC_FULL.md Non-goals), so this is the entirety
// of the engine's external configuration surface.
type Config struct {
	// RPCURL is the fallback RPC endpoint used to bootstrap a node-backed
	// CachedDB (§6 of the spec: "RPC_URL (fallback RPC endpoint for
	// node-backed DB bootstrap)").
	RPCURL string
	// MinTokenQuality is the stream decoder's admission threshold: tokens
	// below this quality are never ingested into the known-token registry.
	MinTokenQuality uint8
	// SkipStateDecodeFailures mirrors the stream decoder's
	// skip_state_decode_failures policy knob (§7): when true, a failing
	// component decode or id-parse only warns; when false it is fatal for
	// the whole message.
	SkipStateDecodeFailures bool
}

// Default returns the engine defaults used when no environment overrides
// are present.
func Default() Config {
	return Config{
		RPCURL:                  "",
		MinTokenQuality:         51,
		SkipStateDecodeFailures: false,
	}
}

// LoadFromEnv loads configuration from a .env file (if present) and then
// environment variables. Priority: ENV > .env file > defaults, matching the
// teacher's LoadFromEnv convention.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if url := os.Getenv("RPC_URL"); url != "" {
		cfg.RPCURL = url
	}
	if q := os.Getenv("MIN_TOKEN_QUALITY"); q != "" {
		if v, err := strconv.ParseUint(q, 10, 8); err == nil {
			cfg.MinTokenQuality = uint8(v)
		}
	}
	if skip := os.Getenv("SKIP_STATE_DECODE_FAILURES"); skip != "" {
		if v, err := strconv.ParseBool(skip); err == nil {
			cfg.SkipStateDecodeFailures = v
		}
	}

	return cfg
}
