// Package sla derives ticket deadlines from priority.
package sla

import (
	"strings"
	"time"
)

// Policy holds the hour offsets for one priority.
type Policy struct {
	ResponseHours   int
	ResolutionHours int
}

// Default offsets. Unknown priorities fall back to the medium policy.
var (
	DefaultPolicies = map[string]Policy{
		"urgent": {ResponseHours: 1, ResolutionHours: 8},
		"high":   {ResponseHours: 2, ResolutionHours: 24},
		"medium": {ResponseHours: 4, ResolutionHours: 48},
		"low":    {ResponseHours: 8, ResolutionHours: 72},
	}
	DefaultFallback = Policy{ResponseHours: 4, ResolutionHours: 48}
)

// Calculator maps priority to deadlines. The zero value is not usable; use
// NewCalculator.
type Calculator struct {
	policies map[string]Policy
	fallback Policy
}

// NewCalculator builds a calculator from the defaults, replacing any priority
// present in overrides. Override entries with non-positive hours keep the
// default for that field.
func NewCalculator(overrides map[string]Policy) *Calculator {
	policies := make(map[string]Policy, len(DefaultPolicies))
	for k, v := range DefaultPolicies {
		policies[k] = v
	}
	for k, v := range overrides {
		key := strings.ToLower(strings.TrimSpace(k))
		current, ok := policies[key]
		if !ok {
			current = DefaultFallback
		}
		if v.ResponseHours > 0 {
			current.ResponseHours = v.ResponseHours
		}
		if v.ResolutionHours > 0 {
			current.ResolutionHours = v.ResolutionHours
		}
		policies[key] = current
	}
	return &Calculator{policies: policies, fallback: DefaultFallback}
}

// PolicyFor returns the policy for priority.
func (c *Calculator) PolicyFor(priority string) Policy {
	if p, ok := c.policies[strings.ToLower(priority)]; ok {
		return p
	}
	return c.fallback
}

// ResolutionHours returns the resolution offset for priority.
func (c *Calculator) ResolutionHours(priority string) int {
	return c.PolicyFor(priority).ResolutionHours
}

// DueAt returns now plus the resolution offset for priority.
func (c *Calculator) DueAt(priority string, now time.Time) time.Time {
	return now.Add(time.Duration(c.ResolutionHours(priority)) * time.Hour)
}

// ResponseDueAt returns now plus the response offset for priority.
func (c *Calculator) ResponseDueAt(priority string, now time.Time) time.Time {
	return now.Add(time.Duration(c.PolicyFor(priority).ResponseHours) * time.Hour)
}

// WithinResponse reports whether a response at respondedAt meets the response
// offset counted from since.
func (c *Calculator) WithinResponse(priority string, since, respondedAt time.Time) bool {
	return !respondedAt.After(c.ResponseDueAt(priority, since))
}
