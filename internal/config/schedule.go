package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	JobDailyCosts   = "fetch_daily_costs"
	JobServiceCosts = "fetch_service_costs"
)

// JobSchedule describes when a background job fires. Cron wins over Every
// when both are set.
type JobSchedule struct {
	Enabled bool          `mapstructure:"enabled"`
	Every   time.Duration `mapstructure:"every"`
	Cron    string        `mapstructure:"cron"`
	Grace   time.Duration `mapstructure:"grace"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type ScheduleConfig struct {
	Jobs map[string]JobSchedule `mapstructure:"jobs"`
}

// Job returns the schedule for name, or false when unknown.
func (c ScheduleConfig) Job(name string) (JobSchedule, bool) {
	job, ok := c.Jobs[name]
	return job, ok
}

func DefaultScheduleConfig(cfg Config) ScheduleConfig {
	return ScheduleConfig{
		Jobs: map[string]JobSchedule{
			JobDailyCosts: {
				Enabled: true,
				Every:   cfg.Scheduler.DailyInterval,
				Grace:   15 * time.Minute,
				Timeout: 10 * time.Minute,
			},
			JobServiceCosts: {
				Enabled: true,
				Every:   cfg.Scheduler.ServiceInterval,
				Grace:   30 * time.Minute,
				Timeout: 10 * time.Minute,
			},
		},
	}
}

type ScheduleConfigHolder struct {
	current atomic.Value // holds ScheduleConfig
}

// NewStaticScheduleHolder returns a holder that never reloads.
func NewStaticScheduleHolder(cfg ScheduleConfig) *ScheduleConfigHolder {
	holder := &ScheduleConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

// NewScheduleConfigHolder reads schedule.yml when present and watches it for
// changes. Without a file the env-derived defaults are used.
func NewScheduleConfigHolder(cfg Config, log *zap.Logger) (*ScheduleConfigHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("schedule.config")
	defaults := DefaultScheduleConfig(cfg)

	v := viper.New()
	if cfg.Scheduler.ScheduleFile != "" {
		v.SetConfigFile(cfg.Scheduler.ScheduleFile)
	} else {
		v.SetConfigName("schedule")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/azurecost")
		v.AddConfigPath(".")
	}

	found := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		found = false
	}

	if !found {
		return NewStaticScheduleHolder(defaults), nil
	}

	loaded, err := decodeSchedule(v, defaults)
	if err != nil {
		return nil, err
	}

	holder := NewStaticScheduleHolder(loaded)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeSchedule(v, defaults)
		if err != nil {
			log.Warn("schedule config reload ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.Store(updated)
		log.Info("schedule config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

// Store swaps in a new schedule. Readers see it on their next Get.
func (h *ScheduleConfigHolder) Store(cfg ScheduleConfig) {
	h.current.Store(cfg)
}

func (h *ScheduleConfigHolder) Get() ScheduleConfig {
	return h.current.Load().(ScheduleConfig)
}

func decodeSchedule(v *viper.Viper, defaults ScheduleConfig) (ScheduleConfig, error) {
	var raw ScheduleConfig
	if err := v.Unmarshal(&raw); err != nil {
		return ScheduleConfig{}, err
	}

	merged := ScheduleConfig{Jobs: map[string]JobSchedule{}}
	for name, def := range defaults.Jobs {
		job, ok := raw.Jobs[name]
		if !ok {
			merged.Jobs[name] = def
			continue
		}
		if !v.IsSet("jobs." + name + ".enabled") {
			job.Enabled = def.Enabled
		}
		if job.Every <= 0 && strings.TrimSpace(job.Cron) == "" {
			job.Every = def.Every
		}
		if job.Grace <= 0 {
			job.Grace = def.Grace
		}
		if job.Timeout <= 0 {
			job.Timeout = def.Timeout
		}
		merged.Jobs[name] = job
	}
	for name := range raw.Jobs {
		if _, ok := defaults.Jobs[name]; !ok {
			return ScheduleConfig{}, fmt.Errorf("unknown job %q in schedule config", name)
		}
	}
	return merged, nil
}
