package scheduler

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/smallbiznis/azurecost/internal/config"
)

var (
	ErrInvalidConfig = errors.New("invalid_scheduler_config")
	ErrUnknownJob    = errors.New("unknown_job")
	ErrJobRunning    = errors.New("job_already_running")
	ErrJobLocked     = errors.New("job_locked_elsewhere")
)

// Config controls the poll loop. Job timing comes from the schedule holder.
type Config struct {
	PollInterval time.Duration
	LockEnabled  bool
	LockPrefix   string
}

func DefaultConfig() Config {
	return Config{
		PollInterval: time.Second,
		LockPrefix:   "azurecost:scheduler:lock",
	}
}

func ProvideConfig(cfg config.Config) Config {
	c := DefaultConfig()
	c.LockEnabled = cfg.Scheduler.LockEnabled
	return c
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = defaults.PollInterval
	}
	if strings.TrimSpace(c.LockPrefix) == "" {
		c.LockPrefix = defaults.LockPrefix
	}
	return c
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// parseSchedule turns a job schedule into a cron schedule and a printable
// trigger. Cron wins over Every.
func parseSchedule(js config.JobSchedule) (cron.Schedule, string, error) {
	if spec := strings.TrimSpace(js.Cron); spec != "" {
		sched, err := cronParser.Parse(spec)
		if err != nil {
			return nil, "", fmt.Errorf("%w: cron %q: %v", ErrInvalidConfig, spec, err)
		}
		return sched, "cron[" + spec + "]", nil
	}
	if js.Every <= 0 {
		return nil, "", fmt.Errorf("%w: job has neither cron nor every", ErrInvalidConfig)
	}
	return cron.Every(js.Every), "interval[" + js.Every.String() + "]", nil
}
