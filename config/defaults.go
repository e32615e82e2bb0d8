package config

import "time"

// Default analysis options and runtime guardrails for the concentration server and CLI.
// Settings loaded from YAML or the environment override these values; see Load.

const (
	// Index computation
	DefaultTopN          = 4
	DefaultTolerancePP   = 0.5 // percentage points
	DefaultScale         = "auto"
	DefaultProfile       = "antitrust"
	DefaultWorkers       = 1
	DefaultFoldGroupCase = true
)

const (
	// Concurrency
	DefaultMaxConcurrentRequests = 10
	DefaultMaxOpenDatasets       = 4

	// Row and paging bounds
	DefaultMaxRowsPerOp = 50_000
	DefaultPageSize     = 25 // groups per report page
	MaxPageSize         = 200
)

const (
	// Timeouts
	DefaultOperationTimeout      = 30 * time.Second
	DefaultAcquireRequestTimeout = 2 * time.Second

	// Dataset cache
	DefaultDatasetIdleTTL       = 10 * time.Minute
	DefaultDatasetCleanupPeriod = time.Minute
)

const (
	// Files
	DefaultInputCSV  = "input.csv"
	DefaultInputTXT  = "input.txt"
	DefaultOutputTXT = "output.txt"

	// EnvPrefix is the envconfig prefix for all settings (MCPCONC_TOP_N, ...).
	EnvPrefix = "MCPCONC"
)
