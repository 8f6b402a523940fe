// Package plan maps commercial tiers and add-ons to resource envelopes and
// feature sets. Resolution is pure: no I/O, no clamping.
package plan

import (
	"sort"
	"strings"

	"github.com/guildhost/guildhost/internal/domain/resource"
)

// DefaultTier is substituted when an unknown tier identifier is resolved.
// Callers are expected to log the substitution at warn level.
const DefaultTier = "starter"

// Tier is a named commercial plan with a base resource envelope and features.
type Tier struct {
	Name      string
	Resources resource.Envelope
	Features  []string
}

// Addon is an optional modifier stacked onto a tier. All resource deltas are
// non-negative: add-ons never shrink the base envelope.
type Addon struct {
	ID          string
	Features    []string
	Resources   resource.Envelope
	Environment map[string]string
}

// Resolved is the output of Resolve: the concrete configuration a deployment
// is provisioned with.
type Resolved struct {
	Tier        string
	Resources   resource.Envelope
	Features    []string
	Environment map[string]string

	// UnknownTier is true when the requested tier was not recognized and the
	// default tier was substituted.
	UnknownTier bool
}

var tiers = map[string]Tier{
	"starter": {
		Name: "starter",
		Resources: resource.Envelope{
			MemoryMB:   512,
			CPUPercent: 25,
			DiskMB:     2048,
			Backups:    1,
			Databases:  1,
		},
		Features: []string{"core_commands", "leveling"},
	},
	"pro": {
		Name: "pro",
		Resources: resource.Envelope{
			MemoryMB:   1024,
			CPUPercent: 50,
			DiskMB:     4096,
			Backups:    2,
			Databases:  2,
		},
		Features: []string{"core_commands", "leveling", "auto_moderation", "custom_branding"},
	},
	"elite": {
		Name: "elite",
		Resources: resource.Envelope{
			MemoryMB:   2048,
			CPUPercent: 100,
			DiskMB:     8192,
			Backups:    3,
			Databases:  5,
		},
		Features: []string{"core_commands", "leveling", "auto_moderation", "custom_branding", "analytics", "dedicated_support"},
	},
}

var addons = map[string]Addon{
	"extra_resources": {
		ID:       "extra_resources",
		Features: []string{"enhanced_performance"},
		Resources: resource.Envelope{
			MemoryMB:   256,
			CPUPercent: 25,
			DiskMB:     1024,
		},
	},
	"extra_database": {
		ID:        "extra_database",
		Resources: resource.Envelope{Databases: 1},
	},
	"extra_backups": {
		ID:        "extra_backups",
		Resources: resource.Envelope{Backups: 2},
	},
	"dedicated_ip": {
		ID:          "dedicated_ip",
		Features:    []string{"dedicated_ip"},
		Environment: map[string]string{"DEDICATED_IP": "true"},
	},
	"priority_support": {
		ID:       "priority_support",
		Features: []string{"priority_support"},
	},
}

// Resolve maps a tier identifier plus a list of add-on ids to the final
// envelope, feature set and environment. Unknown tiers fall back to
// DefaultTier; unknown add-on ids are skipped. The environment always carries
// a FEATURES entry with the comma-joined, sorted feature set.
func Resolve(tier string, addonIDs []string) Resolved {
	t, ok := tiers[tier]
	if !ok {
		t = tiers[DefaultTier]
	}

	out := Resolved{
		Tier:        t.Name,
		Resources:   t.Resources,
		Environment: map[string]string{},
		UnknownTier: !ok,
	}

	features := make(map[string]bool, len(t.Features))
	for _, f := range t.Features {
		features[f] = true
	}

	for _, id := range addonIDs {
		a, ok := addons[id]
		if !ok {
			continue
		}
		out.Resources = resource.Add(out.Resources, a.Resources)
		for _, f := range a.Features {
			features[f] = true
		}
		for k, v := range a.Environment {
			out.Environment[k] = v
		}
	}

	out.Features = make([]string, 0, len(features))
	for f := range features {
		out.Features = append(out.Features, f)
	}
	sort.Strings(out.Features)

	out.Environment["FEATURES"] = strings.Join(out.Features, ",")
	return out
}

// TierByName returns the static tier definition, if known.
func TierByName(name string) (Tier, bool) {
	t, ok := tiers[name]
	return t, ok
}

// TierFloor returns the name of the tier whose base envelope matches the given
// allocation, if any. The auto-scaler refuses to shrink below a tier floor.
func TierFloor(env resource.Envelope) (string, bool) {
	for name, t := range tiers {
		if resource.SameAllocation(env, t.Resources) {
			return name, true
		}
	}
	return "", false
}

// Tiers returns the names of all known tiers.
func Tiers() []string {
	names := make([]string, 0, len(tiers))
	for name := range tiers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Addons returns the ids of all known add-ons.
func Addons() []string {
	ids := make([]string, 0, len(addons))
	for id := range addons {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
