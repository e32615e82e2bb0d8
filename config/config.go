package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/vinodismyname/mcpconc/internal/concentration"
	"github.com/vinodismyname/mcpconc/pkg/validation"
)

// FileEnv names the variable holding the default settings file path.
const FileEnv = EnvPrefix + "_CONFIG"

// ErrInvalid marks settings that fail validation.
var ErrInvalid = errors.New("config: invalid settings")

// PathList is a list of directories. From the environment it is split on the
// OS path-list separator, like PATH.
type PathList []string

// Decode implements envconfig.Decoder.
func (p *PathList) Decode(value string) error {
	var out PathList
	for _, d := range filepath.SplitList(value) {
		if d = strings.TrimSpace(d); d != "" {
			out = append(out, d)
		}
	}
	*p = out
	return nil
}

// BandSettings describes one band table: ascending cut points and one more
// category than cuts.
type BandSettings struct {
	Cuts       []float64 `yaml:"cuts"`
	Categories []string  `yaml:"categories"`
}

func (b BandSettings) empty() bool { return len(b.Cuts) == 0 && len(b.Categories) == 0 }

// ProfileSettings is a custom threshold profile. Tables left out fall back to
// the antitrust profile.
type ProfileSettings struct {
	CR        map[int]BandSettings `yaml:"cr"`
	CRDefault BandSettings         `yaml:"cr_default"`
	HHI       BandSettings         `yaml:"hhi"`
	MOCDI     BandSettings         `yaml:"mocdi"`
}

// LimitSettings are the server guardrails.
type LimitSettings struct {
	MaxConcurrentRequests int           `yaml:"max_concurrent_requests" envconfig:"MAX_CONCURRENT_REQUESTS" validate:"gte=1,lte=1000"`
	MaxOpenDatasets       int           `yaml:"max_open_datasets" envconfig:"MAX_OPEN_DATASETS" validate:"gte=1,lte=1000"`
	MaxRowsPerOp          int           `yaml:"max_rows_per_op" envconfig:"MAX_ROWS_PER_OP" validate:"gte=1"`
	DefaultPageSize       int           `yaml:"default_page_size" envconfig:"DEFAULT_PAGE_SIZE" validate:"gte=1,ltefield=MaxPageSize"`
	MaxPageSize           int           `yaml:"max_page_size" envconfig:"MAX_PAGE_SIZE" validate:"gte=1"`
	OperationTimeout      time.Duration `yaml:"operation_timeout" envconfig:"OPERATION_TIMEOUT" validate:"gt=0"`
	AcquireRequestTimeout time.Duration `yaml:"acquire_request_timeout" envconfig:"ACQUIRE_REQUEST_TIMEOUT" validate:"gt=0"`
	DatasetIdleTTL        time.Duration `yaml:"dataset_idle_ttl" envconfig:"DATASET_IDLE_TTL" validate:"gt=0"`
}

// Settings is the merged configuration for the CLI and the MCP server.
// Precedence: defaults, then the YAML file, then MCPCONC_* variables.
type Settings struct {
	// Analysis
	TopN          int     `yaml:"top_n" envconfig:"TOP_N" validate:"gte=1,lte=100"`
	Windows       []int   `yaml:"windows" envconfig:"WINDOWS" validate:"omitempty,max=8,dive,min=1,max=100"`
	Scale         string  `yaml:"scale" envconfig:"SCALE" validate:"share_scale"`
	TolerancePP   float64 `yaml:"tolerance_pp" envconfig:"TOLERANCE_PP" validate:"gte=0,lte=100"`
	Profile       string  `yaml:"profile" envconfig:"PROFILE" validate:"profile"`
	IncludeHI     bool    `yaml:"include_hi" envconfig:"INCLUDE_HI"`
	FoldGroupCase bool    `yaml:"fold_group_case" envconfig:"FOLD_GROUP_CASE"`
	Workers       int     `yaml:"workers" envconfig:"WORKERS" validate:"gte=1,lte=64"`

	// Logging
	LogLevel  string `yaml:"log_level" envconfig:"LOG_LEVEL" validate:"omitempty,oneof=trace debug info warn error"`
	LogPretty bool   `yaml:"log_pretty" envconfig:"LOG_PRETTY"`

	// Server
	AllowedDirs  PathList      `yaml:"allowed_dirs" envconfig:"ALLOWED_DIRS"`
	EnableWrites bool          `yaml:"enable_writes" envconfig:"ENABLE_WRITES"`
	Limits       LimitSettings `yaml:"limits" envconfig:"LIMITS"`

	Profiles map[string]ProfileSettings `yaml:"profiles" ignored:"true"`

	profiles map[string]concentration.Profile
}

// Defaults returns settings populated from the package constants.
func Defaults() *Settings {
	return &Settings{
		TopN:          DefaultTopN,
		Scale:         DefaultScale,
		TolerancePP:   DefaultTolerancePP,
		Profile:       DefaultProfile,
		FoldGroupCase: DefaultFoldGroupCase,
		Workers:       DefaultWorkers,
		LogLevel:      "info",
		Limits: LimitSettings{
			MaxConcurrentRequests: DefaultMaxConcurrentRequests,
			MaxOpenDatasets:       DefaultMaxOpenDatasets,
			MaxRowsPerOp:          DefaultMaxRowsPerOp,
			DefaultPageSize:       DefaultPageSize,
			MaxPageSize:           MaxPageSize,
			OperationTimeout:      DefaultOperationTimeout,
			AcquireRequestTimeout: DefaultAcquireRequestTimeout,
			DatasetIdleTTL:        DefaultDatasetIdleTTL,
		},
	}
}

// Load builds settings from defaults, the optional YAML file at path and the
// environment, then validates the result. An empty path skips the file.
func Load(path string) (*Settings, error) {
	s := Defaults()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("config: open %s: %w", path, err)
		}
		err = s.decodeYAML(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := envconfig.Process(EnvPrefix, s); err != nil {
		return nil, fmt.Errorf("config: environment: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Parse applies a YAML document on top of the defaults and validates it.
// The environment is not consulted.
func Parse(data []byte) (*Settings, error) {
	s := Defaults()
	if err := s.decodeYAML(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) decodeYAML(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(s); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks field ranges, builds custom profiles and confirms the
// selected profile exists.
func (s *Settings) Validate() error {
	if msg := validation.ValidateStruct(s); msg != "" {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.TrimPrefix(msg, "VALIDATION: "))
	}
	profiles, err := buildProfiles(s.Profiles)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if _, err := concentration.LookupProfile(s.Profile, profiles); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	s.profiles = profiles
	return nil
}

// Options converts the analysis settings into engine options.
func (s *Settings) Options() concentration.Options {
	windows := s.Windows
	if len(windows) == 0 {
		windows = []int{s.TopN}
	}
	scale, err := concentration.ParseScale(s.Scale)
	if err != nil {
		scale = concentration.ScaleAuto
	}
	return concentration.Options{
		Windows:       append([]int(nil), windows...),
		Scale:         scale,
		TolerancePP:   s.TolerancePP,
		Profile:       strings.ToLower(strings.TrimSpace(s.Profile)),
		Profiles:      s.profiles,
		IncludeHI:     s.IncludeHI,
		FoldGroupCase: s.FoldGroupCase,
		Workers:       s.Workers,
	}
}

func buildProfiles(in map[string]ProfileSettings) (map[string]concentration.Profile, error) {
	if len(in) == 0 {
		return nil, nil
	}
	base := concentration.AntitrustProfile()
	out := make(map[string]concentration.Profile, len(in))
	for name, ps := range in {
		key := strings.ToLower(strings.TrimSpace(name))
		if err := validation.Validator().Var(key, "profile"); err != nil {
			return nil, fmt.Errorf("profile name %q is invalid", name)
		}
		p := concentration.Profile{Name: key}
		var err error
		if p.CRDefault, err = bandsOr(ps.CRDefault, base.CRDefault); err != nil {
			return nil, fmt.Errorf("profile %s cr_default: %w", key, err)
		}
		if p.HHI, err = bandsOr(ps.HHI, base.HHI); err != nil {
			return nil, fmt.Errorf("profile %s hhi: %w", key, err)
		}
		if p.MOCDI, err = bandsOr(ps.MOCDI, p.HHI); err != nil {
			return nil, fmt.Errorf("profile %s mocdi: %w", key, err)
		}
		if len(ps.CR) > 0 {
			p.CR = make(map[int]concentration.Bands, len(ps.CR))
			for w, bs := range ps.CR {
				if w < 1 {
					return nil, fmt.Errorf("profile %s: cr window %d: %w", key, w, concentration.ErrInvalidWindow)
				}
				b, err := concentration.MakeBands(bs.Cuts, bs.Categories)
				if err != nil {
					return nil, fmt.Errorf("profile %s cr%d: %w", key, w, err)
				}
				p.CR[w] = b
			}
		}
		out[key] = p
	}
	return out, nil
}

func bandsOr(bs BandSettings, fallback concentration.Bands) (concentration.Bands, error) {
	if bs.empty() {
		return fallback, nil
	}
	return concentration.MakeBands(bs.Cuts, bs.Categories)
}
