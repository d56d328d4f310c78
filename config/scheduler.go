package config

import (
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"

	"github.com/sita/sidang/core/sidang"
)

// SchedulerConfig tunes allocation runs and the trigger poller.
type SchedulerConfig struct {
	// HorizonDays bounds how far ahead the calendar is searched.
	HorizonDays int `json:"horizon_days"`
	// PollCron is a standard five field cron spec for checking the trigger.
	PollCron string `json:"poll_cron"`
	// StartOffsetDays is added to today to get the first schedulable date.
	StartOffsetDays int    `json:"start_offset_days"`
	RoleMapping     string `json:"role_mapping"`
	// Timezone is the IANA zone used to decide what "today" is.
	Timezone string `json:"timezone"`
	// LockTTLSeconds bounds how long a crashed writer keeps the schedule
	// lease before another process may take it.
	LockTTLSeconds int `json:"lock_ttl_seconds"`
}

func (c *SchedulerConfig) SetDefaults() {
	if c.HorizonDays <= 0 {
		c.HorizonDays = sidang.DefaultHorizonDays
	}
	if c.PollCron == "" {
		c.PollCron = "* * * * *"
	}
	if c.StartOffsetDays <= 0 {
		c.StartOffsetDays = 1
	}
	if c.RoleMapping == "" {
		c.RoleMapping = string(sidang.DrawThirdIsSekretaris)
	}
	if c.Timezone == "" {
		c.Timezone = "Asia/Jakarta"
	}
	if c.LockTTLSeconds <= 0 {
		c.LockTTLSeconds = 600
	}
}

func (c SchedulerConfig) Validate() error {
	if _, err := cron.ParseStandard(c.PollCron); err != nil {
		return fmt.Errorf("poll_cron: %w", err)
	}
	if _, err := sidang.ParseRoleMapping(c.RoleMapping); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	return nil
}

// LockTTL returns LockTTLSeconds as a duration.
func (c SchedulerConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// Mapping returns the parsed role mapping.
func (c SchedulerConfig) Mapping() sidang.RoleMapping {
	m, _ := sidang.ParseRoleMapping(c.RoleMapping)
	return m
}

// Location resolves Timezone.
func (c SchedulerConfig) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}
