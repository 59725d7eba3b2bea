package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/nullspacelabs/stackup/internal/logger"
)

// FileConfig is the raw TOML structure of a stack file.
//
//	env_files = ["website/.env.local", "docker/convex/.env"]
//	env       = ["ALLOW_HTTP_NO_ORIGIN=1"]
//	patterns  = ["nullspace-node", "vite"]
//	grace     = "1s"
//	pid_dir   = "run"
//
//	[log]
//	dir = "logs"
//
//	[history]
//	path = ".stackup/history.db"
//
//	[[prestart]]
//	name    = "convex"
//	command = ["docker", "compose", "up", "-d", "--wait"]
//
//	[[service]]
//	name        = "website"
//	command     = ["npm", "run", "dev"]
//	workdir     = "website"
//	env         = ["PORT=5173"]
//	require_env = ["VITE_IDENTITY"]
type FileConfig struct {
	EnvFiles []string        `mapstructure:"env_files"`
	Env      []string        `mapstructure:"env"`
	Patterns []string        `mapstructure:"patterns"`
	Grace    time.Duration   `mapstructure:"grace"`
	PIDDir   string          `mapstructure:"pid_dir"`
	Log      LogConfig       `mapstructure:"log"`
	History  HistoryConfig   `mapstructure:"history"`
	Prestart []StepConfig    `mapstructure:"prestart"`
	Services []ServiceConfig `mapstructure:"service"`
}

type LogConfig struct {
	Dir        string `mapstructure:"dir"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type HistoryConfig struct {
	Path     string `mapstructure:"path"`
	Disabled bool   `mapstructure:"disabled"`
}

type StepConfig struct {
	Name    string   `mapstructure:"name"`
	Command []string `mapstructure:"command"`
	WorkDir string   `mapstructure:"workdir"`
	Env     []string `mapstructure:"env"`
}

type ServiceConfig struct {
	Name       string   `mapstructure:"name"`
	Command    []string `mapstructure:"command"`
	WorkDir    string   `mapstructure:"workdir"`
	Env        []string `mapstructure:"env"`
	RequireEnv []string `mapstructure:"require_env"`
}

// Stack is the resolved, immutable configuration the rest of the program
// works from. All paths are absolute; it is constructed once at startup and
// passed by reference.
type Stack struct {
	Dir         string // directory of the stack file, base for relative paths
	Grace       time.Duration
	Patterns    []string
	Sinks       logger.SinkConfig
	PIDDir      string
	HistoryPath string // empty when history is disabled
	EnvFiles    []string
	Env         []string
	Prestart    []Step
	Services    []Service
}

type Step struct {
	Name    string
	Command []string
	WorkDir string
	Env     []string
}

type Service struct {
	Name       string
	Command    []string
	WorkDir    string
	Env        []string
	RequireEnv []string
}

// Load reads and validates a stack file. Relative paths inside the file
// resolve against the file's own directory, so invoking stackup from
// elsewhere does not change where logs and pid markers land.
func Load(path string) (*Stack, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read stack file: %w", err)
	}
	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, fmt.Errorf("parse stack file: %w", err)
	}
	if err := fc.validate(); err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(abs)

	st := &Stack{
		Dir:      dir,
		Grace:    fc.Grace,
		Patterns: fc.Patterns,
		Sinks: logger.SinkConfig{
			Dir:        resolve(dir, orDefault(fc.Log.Dir, "logs")),
			MaxSizeMB:  fc.Log.MaxSizeMB,
			MaxBackups: fc.Log.MaxBackups,
			MaxAgeDays: fc.Log.MaxAgeDays,
			Compress:   fc.Log.Compress,
		},
		PIDDir:   resolve(dir, orDefault(fc.PIDDir, "run")),
		EnvFiles: resolveAll(dir, fc.EnvFiles),
		Env:      fc.Env,
	}
	if !fc.History.Disabled {
		st.HistoryPath = resolve(dir, orDefault(fc.History.Path, filepath.Join(".stackup", "history.db")))
	}
	for _, sc := range fc.Prestart {
		st.Prestart = append(st.Prestart, Step{
			Name:    sc.Name,
			Command: sc.Command,
			WorkDir: resolve(dir, sc.WorkDir),
			Env:     sc.Env,
		})
	}
	for _, sc := range fc.Services {
		st.Services = append(st.Services, Service{
			Name:       sc.Name,
			Command:    sc.Command,
			WorkDir:    resolve(dir, sc.WorkDir),
			Env:        sc.Env,
			RequireEnv: sc.RequireEnv,
		})
	}
	return st, nil
}

// ServiceNames returns names in declaration order.
func (s *Stack) ServiceNames() []string {
	out := make([]string, 0, len(s.Services))
	for _, svc := range s.Services {
		out = append(out, svc.Name)
	}
	return out
}

func (fc *FileConfig) validate() error {
	if len(fc.Services) == 0 {
		return fmt.Errorf("stack file defines no services")
	}
	seen := make(map[string]bool, len(fc.Services))
	for i, sc := range fc.Services {
		name := strings.TrimSpace(sc.Name)
		if name == "" {
			return fmt.Errorf("service %d: name is required", i)
		}
		if strings.ContainsAny(name, " \t/\\") {
			return fmt.Errorf("service %q: name must not contain spaces or path separators", name)
		}
		if seen[name] {
			return fmt.Errorf("duplicate service name %q", name)
		}
		seen[name] = true
		if len(sc.Command) == 0 {
			return fmt.Errorf("service %q: command is required", name)
		}
	}
	for i, sc := range fc.Prestart {
		if len(sc.Command) == 0 {
			return fmt.Errorf("prestart step %d (%s): command is required", i, sc.Name)
		}
	}
	if fc.Grace < 0 {
		return fmt.Errorf("grace must not be negative")
	}
	return nil
}

func resolve(dir, p string) string {
	if p == "" {
		return ""
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

func resolveAll(dir string, ps []string) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, resolve(dir, p))
	}
	return out
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
