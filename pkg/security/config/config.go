// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package config holds config related files
package config

import (
	"strings"
	"time"

	"github.com/DataDog/viper"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/DataDog/cws-rename-probe/pkg/security/secl/model"
)

const (
	// EnvPrefix prefix of the environment variables overriding the configuration
	EnvPrefix = "DD"

	prefix = "runtime_security_config."
)

var (
	// ErrUnknownEventType is returned when an enabled event type is unknown
	ErrUnknownEventType = errors.New("unknown event type")
	// ErrUnknownErrno is returned when an unhandled error name is unknown
	ErrUnknownErrno = errors.New("unknown errno name")
)

// Config holds the configuration of the rename probe
type Config struct {
	// EnabledEventTypes event types reported to user space
	EnabledEventTypes []model.EventType
	// EnableKernelFilters enables the approvers and discarders
	EnableKernelFilters bool
	// PolicyFile path to the kernel filters policy
	PolicyFile string

	// SyscallCacheSize number of in-flight syscalls tracked at once
	SyscallCacheSize int
	// SyscallContextCacheSize number of syscall argument sets kept for user space
	SyscallContextCacheSize int
	// PathnamesMapSize number of path leaves kept for user space
	PathnamesMapSize int
	// DentryCacheSize number of resolved paths cached in user space
	DentryCacheSize int
	// DiscarderMapSize number of inode discarders
	DiscarderMapSize int
	// DiscarderRetention delay during which an expired discarder can't be added back
	DiscarderRetention time.Duration
	// MaxParentDiscarderDepth parents checked for a non-leaf discarder
	MaxParentDiscarderDepth int

	// DentryResolverMaxTailCalls chained resolver re-entries
	DentryResolverMaxTailCalls int
	// DentryResolverMaxIterationDepth parent hops per resolver invocation
	DentryResolverMaxIterationDepth int

	// EventRingBufferSize capacity of the event transport, in events
	EventRingBufferSize int
	// UnhandledErrors return codes for which no event is generated
	UnhandledErrors []int64

	// ProcessCacheSize number of process contexts cached
	ProcessCacheSize int
	// ProcRoot procfs mount point
	ProcRoot string

	// DNSDedupeWindow window during which a DNS response is sent once
	DNSDedupeWindow time.Duration
	// DNSDedupeCacheSize number of DNS responses remembered
	DNSDedupeCacheSize int

	// KernelVersion overrides the detected kernel version
	KernelVersion string
	// BTFPath path to a BTF spec used to fetch the kernel structure offsets
	BTFPath string
	// BTFHubConstantsPath path to the constants extracted from BTFHub
	BTFHubConstantsPath string

	// StatsdAddr address of the dogstatsd server, metrics are disabled when empty
	StatsdAddr string
	// StatsPollingInterval interval at which stats are sent
	StatsPollingInterval time.Duration

	// LogLevel log level
	LogLevel string
	// LogJSON whether logs are JSON formatted
	LogJSON bool
}

// SetDefaults registers the default values and the environment bindings
func SetDefaults(cfg *viper.Viper) {
	cfg.SetEnvPrefix(EnvPrefix)
	cfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	cfg.AutomaticEnv()

	cfg.SetDefault(prefix+"enabled_event_types", []string{model.FileRenameEventType.String()})
	cfg.SetDefault(prefix+"enable_kernel_filters", true)
	cfg.SetDefault(prefix+"policy_file", "")
	cfg.SetDefault(prefix+"syscall_cache_size", 1024)
	cfg.SetDefault(prefix+"syscall_context_cache_size", 1024)
	cfg.SetDefault(prefix+"pathnames_map_size", 64000)
	cfg.SetDefault(prefix+"dentry_cache_size", 1024)
	cfg.SetDefault(prefix+"discarder_map_size", 8192)
	cfg.SetDefault(prefix+"discarder_retention", 10*time.Second)
	cfg.SetDefault(prefix+"max_parent_discarder_depth", 3)
	cfg.SetDefault(prefix+"dentry_resolver.max_tail_calls", 29)
	cfg.SetDefault(prefix+"dentry_resolver.max_iteration_depth", 47)
	cfg.SetDefault(prefix+"event_ring_buffer_size", 4096)
	cfg.SetDefault(prefix+"unhandled_errors", []string{"EOPNOTSUPP"})
	cfg.SetDefault(prefix+"process_cache_size", 512)
	cfg.SetDefault(prefix+"proc_root", "/proc")
	cfg.SetDefault(prefix+"dns.dedupe_window", time.Second)
	cfg.SetDefault(prefix+"dns.dedupe_cache_size", 1024)
	cfg.SetDefault(prefix+"kernel_version", "")
	cfg.SetDefault(prefix+"btf_path", "")
	cfg.SetDefault(prefix+"btfhub_constants_path", "")
	cfg.SetDefault(prefix+"statsd_addr", "")
	cfg.SetDefault(prefix+"stats_polling_interval", 10*time.Second)
	cfg.SetDefault(prefix+"log_level", "info")
	cfg.SetDefault(prefix+"log_json", false)
}

// Load reads the configuration file, when provided, on top of the defaults
func Load(path string) (*viper.Viper, error) {
	cfg := viper.New()
	SetDefaults(cfg)

	if path != "" {
		cfg.SetConfigFile(path)
		if err := cfg.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %s", path)
		}
	}
	return cfg, nil
}

// NewConfig returns a new Config from a viper instance
func NewConfig(cfg *viper.Viper) (*Config, error) {
	c := &Config{
		EnableKernelFilters:             cfg.GetBool(prefix + "enable_kernel_filters"),
		PolicyFile:                      cfg.GetString(prefix + "policy_file"),
		SyscallCacheSize:                cfg.GetInt(prefix + "syscall_cache_size"),
		SyscallContextCacheSize:         cfg.GetInt(prefix + "syscall_context_cache_size"),
		PathnamesMapSize:                cfg.GetInt(prefix + "pathnames_map_size"),
		DentryCacheSize:                 cfg.GetInt(prefix + "dentry_cache_size"),
		DiscarderMapSize:                cfg.GetInt(prefix + "discarder_map_size"),
		DiscarderRetention:              cfg.GetDuration(prefix + "discarder_retention"),
		MaxParentDiscarderDepth:         cfg.GetInt(prefix + "max_parent_discarder_depth"),
		DentryResolverMaxTailCalls:      cfg.GetInt(prefix + "dentry_resolver.max_tail_calls"),
		DentryResolverMaxIterationDepth: cfg.GetInt(prefix + "dentry_resolver.max_iteration_depth"),
		EventRingBufferSize:             cfg.GetInt(prefix + "event_ring_buffer_size"),
		ProcessCacheSize:                cfg.GetInt(prefix + "process_cache_size"),
		ProcRoot:                        cfg.GetString(prefix + "proc_root"),
		DNSDedupeWindow:                 cfg.GetDuration(prefix + "dns.dedupe_window"),
		DNSDedupeCacheSize:              cfg.GetInt(prefix + "dns.dedupe_cache_size"),
		KernelVersion:                   cfg.GetString(prefix + "kernel_version"),
		BTFPath:                         cfg.GetString(prefix + "btf_path"),
		BTFHubConstantsPath:             cfg.GetString(prefix + "btfhub_constants_path"),
		StatsdAddr:                      cfg.GetString(prefix + "statsd_addr"),
		StatsPollingInterval:            cfg.GetDuration(prefix + "stats_polling_interval"),
		LogLevel:                        cfg.GetString(prefix + "log_level"),
		LogJSON:                         cfg.GetBool(prefix + "log_json"),
	}

	var result *multierror.Error

	for _, name := range cfg.GetStringSlice(prefix + "enabled_event_types") {
		eventType := model.ParseEvalEventType(name)
		if eventType == model.UnknownEventType {
			result = multierror.Append(result, errors.Wrap(ErrUnknownEventType, name))
			continue
		}
		c.EnabledEventTypes = append(c.EnabledEventTypes, eventType)
	}

	for _, name := range cfg.GetStringSlice(prefix + "unhandled_errors") {
		value, ok := model.ErrorConstant(strings.ToUpper(name))
		if !ok {
			result = multierror.Append(result, errors.Wrap(ErrUnknownErrno, name))
			continue
		}
		c.UnhandledErrors = append(c.UnhandledErrors, int64(value))
	}

	if err := c.sanitize(); err != nil {
		result = multierror.Append(result, err)
	}

	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) sanitize() error {
	for name, size := range map[string]int{
		"syscall_cache_size":                  c.SyscallCacheSize,
		"syscall_context_cache_size":          c.SyscallContextCacheSize,
		"pathnames_map_size":                  c.PathnamesMapSize,
		"dentry_cache_size":                   c.DentryCacheSize,
		"discarder_map_size":                  c.DiscarderMapSize,
		"dentry_resolver.max_tail_calls":      c.DentryResolverMaxTailCalls,
		"dentry_resolver.max_iteration_depth": c.DentryResolverMaxIterationDepth,
		"event_ring_buffer_size":              c.EventRingBufferSize,
		"process_cache_size":                  c.ProcessCacheSize,
		"dns.dedupe_cache_size":               c.DNSDedupeCacheSize,
	} {
		if size <= 0 {
			return errors.Errorf("%s%s must be positive, got %d", prefix, name, size)
		}
	}
	return nil
}

// IsEventTypeEnabled returns whether events of the given type are reported
func (c *Config) IsEventTypeEnabled(eventType model.EventType) bool {
	for _, enabled := range c.EnabledEventTypes {
		if enabled == eventType {
			return true
		}
	}
	return false
}

// NewDefaultConfig returns the configuration with every default value
func NewDefaultConfig() *Config {
	cfg := viper.New()
	SetDefaults(cfg)
	c, err := NewConfig(cfg)
	if err != nil {
		// defaults are always valid
		panic(err)
	}
	return c
}
