// Package config loads loop settings from YAML, the environment and flags,
// in that order of increasing precedence.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/BartoszPiotrowski/ml-guidance-for-instantiation-in-CVC5/internal/hparams"
)

// ErrInvalid marks configuration validation failures.
var ErrInvalid = errors.New("invalid config")

// Backends for fitting grid-search candidates.
const (
	BackendScript = "script"
	BackendGRPC   = "grpc"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PREMSEL_"

// #region config

// Config is the full set of loop settings.
type Config struct {
	TrainingProblems string        `yaml:"training_problems"`
	TestingProblems  string        `yaml:"testing_problems"`
	ProvingScript    string        `yaml:"proving_script"`
	TrainingScript   string        `yaml:"training_script"`
	TrainingConfig   string        `yaml:"training_config"`
	DataDir          string        `yaml:"data_dir"`
	Workers          int           `yaml:"workers"`
	Iterations       int           `yaml:"iterations"`
	SolvingTimeLimit time.Duration `yaml:"solving_time_limit"`
	KillGrace        time.Duration `yaml:"kill_grace"`
	NegPosRatio      float64       `yaml:"neg_pos_ratio"`
	Seed             uint64        `yaml:"seed"` // 0 derives a seed from the clock
	Grid             hparams.Grid  `yaml:"grid"`
	GridWorkers      int           `yaml:"grid_workers"`
	KeepScratch      bool          `yaml:"keep_scratch"`
	Backend          string        `yaml:"backend"`
	BackendAddr      string        `yaml:"backend_addr"`
	Ledger           string        `yaml:"ledger"` // defaults to <data_dir>/ledger.db
	MetricsAddr      string        `yaml:"metrics_addr"`
}

// Default returns the settings used when nothing overrides them.
func Default() Config {
	return Config{
		Workers:          10,
		Iterations:       16,
		SolvingTimeLimit: 10 * time.Second,
		KillGrace:        5 * time.Second,
		NegPosRatio:      10,
		Grid:             hparams.DefaultGrid(),
		GridWorkers:      1,
		Backend:          BackendScript,
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// #endregion config

// #region env

// LoadEnv loads envFile (when it exists) into the process environment
// without overriding variables already set, then applies PREMSEL_*
// overrides to cfg.
func LoadEnv(cfg *Config, envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	return ApplyEnv(cfg, os.LookupEnv)
}

// ApplyEnv applies overrides found through lookup.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	get := func(name string) (string, bool) {
		v, ok := lookup(EnvPrefix + name)
		return v, ok && v != ""
	}
	var errs []error
	str := func(name string, dst *string) {
		if v, ok := get(name); ok {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		if v, ok := get(name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	dur := func(name string, dst *time.Duration) {
		if v, ok := get(name); ok {
			d, err := ParseSeconds(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = d
		}
	}

	str("TRAINING_PROBLEMS", &cfg.TrainingProblems)
	str("TESTING_PROBLEMS", &cfg.TestingProblems)
	str("PROVING_SCRIPT", &cfg.ProvingScript)
	str("TRAINING_SCRIPT", &cfg.TrainingScript)
	str("TRAINING_CONFIG", &cfg.TrainingConfig)
	str("DATA_DIR", &cfg.DataDir)
	num("WORKERS", &cfg.Workers)
	num("ITERATIONS", &cfg.Iterations)
	dur("SOLVING_TIME_LIMIT", &cfg.SolvingTimeLimit)
	dur("KILL_GRACE", &cfg.KillGrace)
	num("GRID_WORKERS", &cfg.GridWorkers)
	str("BACKEND", &cfg.Backend)
	str("BACKEND_ADDR", &cfg.BackendAddr)
	str("LEDGER", &cfg.Ledger)
	str("METRICS_ADDR", &cfg.MetricsAddr)

	if v, ok := get("NEG_POS_RATIO"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sNEG_POS_RATIO: %w", EnvPrefix, err))
		} else {
			cfg.NegPosRatio = f
		}
	}
	if v, ok := get("SEED"); ok {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sSEED: %w", EnvPrefix, err))
		} else {
			cfg.Seed = n
		}
	}
	if v, ok := get("GRID"); ok {
		g, err := hparams.ParseGrid(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sGRID: %w", EnvPrefix, err))
		} else {
			cfg.Grid = g
		}
	}
	return errors.Join(errs...)
}

// ParseSeconds accepts a Go duration ("1m30s") or a bare number of seconds.
func ParseSeconds(s string) (time.Duration, error) {
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(n * float64(time.Second)), nil
	}
	return time.ParseDuration(s)
}

// #endregion env

// #region validate

// Validate reports every problem with cfg at once.
func (c Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}
	if c.TrainingProblems == "" {
		bad("training_problems is required")
	}
	if c.ProvingScript == "" {
		bad("proving_script is required")
	}
	if c.TrainingScript == "" && c.Backend == BackendScript {
		bad("training_script is required")
	}
	if c.DataDir == "" {
		bad("data_dir is required")
	}
	if c.Workers < 1 {
		bad("workers must be at least 1, got %d", c.Workers)
	}
	if c.Iterations < 1 {
		bad("iterations must be at least 1, got %d", c.Iterations)
	}
	if c.SolvingTimeLimit < time.Second {
		bad("solving_time_limit must be at least 1s, got %s", c.SolvingTimeLimit)
	}
	if c.KillGrace < 0 {
		bad("kill_grace must not be negative")
	}
	if c.NegPosRatio <= 0 {
		bad("neg_pos_ratio must be positive, got %g", c.NegPosRatio)
	}
	if c.GridWorkers < 1 {
		bad("grid_workers must be at least 1, got %d", c.GridWorkers)
	}
	if err := c.Grid.Validate(); err != nil {
		bad("%v", err)
	}
	switch c.Backend {
	case BackendScript:
	case BackendGRPC:
		if c.BackendAddr == "" {
			bad("backend_addr is required for the grpc backend")
		}
	default:
		bad("unknown backend %q", c.Backend)
	}
	return errors.Join(errs...)
}

// #endregion validate

// #region paths

// LedgerPath returns the ledger database path.
func (c Config) LedgerPath() string {
	if c.Ledger != "" {
		return c.Ledger
	}
	return filepath.Join(c.DataDir, "ledger.db")
}

// LogsDir returns the directory proof logs are written to.
func (c Config) LogsDir() string { return filepath.Join(c.DataDir, "proof_logs") }

// ScratchDir returns the grid-search scratch root.
func (c Config) ScratchDir() string { return filepath.Join(c.DataDir, "grid") }

// LockPath returns the run-lock file.
func (c Config) LockPath() string { return filepath.Join(c.DataDir, "loop.lock") }

// #endregion paths

// #region problems

// ReadProblems reads a problem list: one path per line, blank lines and
// '#' comments ignored.
func ReadProblems(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open problem list: %w", err)
	}
	defer f.Close()

	var problems []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		problems = append(problems, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read problem list: %w", err)
	}
	return problems, nil
}

// #endregion problems
