// Package constants defines magic numbers and default values shared across
// hintproxy's components.
package constants

import "time"

// Connection table (spec §3 "Connection table").
const (
	InitialTableSize  = 200
	MaxTableSize      = 3000
	TableGrowFactor   = 2
	TableGrowConstant = 2
	TableLoadFactor   = 0.75
	InitialBucketCap  = 10
)

// Response cache (spec §3 "Cache table" / §4.B).
const (
	DefaultCacheSize   = 256
	CacheLoadFactor    = 0.75
	DefaultMaxAge      = 3600 * time.Second
	InitialCacheBucket = 4
)

// Relay and reassembly buffers (spec §4.G, §4.H).
const (
	TunnelChunkSize  = 4096
	MaxHeaderBytes   = 64 * 1024
	DefaultBodyLimit = 4 * 1024 * 1024
)

// MITM leaf certificates (spec §4.F).
const (
	LeafRSABits       = 2048
	LeafValidity      = 365 * 24 * time.Hour
	RootCAKeyBits     = 4096
	RootCAValidity    = 10 * 365 * 24 * time.Hour
	InitialLeafSerial = 2
)

// LLM orchestrator (spec §4.J).
const (
	DefaultLLMModel       = "4o-mini"
	LLMResponseCap        = 4096
	LLMSessionID          = "GenericSession"
	LLMTemperature        = 0.0
	LLMLastK              = 1
	DefaultLLMConnTimeout = 10 * time.Second
	DefaultLLMReadTimeout = 15 * time.Second
)

// DefaultBypassSubstrings downgrade a MITM-mode pair to tunnel mode (spec §4.F).
var DefaultBypassSubstrings = []string{"icloud", "play", "api"}
