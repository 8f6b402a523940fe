// Package resource defines the resource envelope type governing a bot
// instance's allocation.
package resource

// Envelope is the allocation tuple applied to one instance.
type Envelope struct {
	MemoryMB   int `json:"memory_mb" yaml:"memory_mb"`
	CPUPercent int `json:"cpu_percent" yaml:"cpu_percent"`
	DiskMB     int `json:"disk_mb" yaml:"disk_mb"`
	Backups    int `json:"backups" yaml:"backups"`
	Databases  int `json:"databases" yaml:"databases"`
}

// Add returns base plus delta, component-wise.
func Add(base, delta Envelope) Envelope {
	return Envelope{
		MemoryMB:   base.MemoryMB + delta.MemoryMB,
		CPUPercent: base.CPUPercent + delta.CPUPercent,
		DiskMB:     base.DiskMB + delta.DiskMB,
		Backups:    base.Backups + delta.Backups,
		Databases:  base.Databases + delta.Databases,
	}
}

// Cap returns a new Envelope where memory, CPU and disk are capped at the
// corresponding ceiling value. A zero ceiling field means no cap for that field.
// Backups and databases are never capped.
func Cap(e, ceiling Envelope) Envelope {
	out := e
	if ceiling.MemoryMB > 0 && out.MemoryMB > ceiling.MemoryMB {
		out.MemoryMB = ceiling.MemoryMB
	}
	if ceiling.CPUPercent > 0 && out.CPUPercent > ceiling.CPUPercent {
		out.CPUPercent = ceiling.CPUPercent
	}
	if ceiling.DiskMB > 0 && out.DiskMB > ceiling.DiskMB {
		out.DiskMB = ceiling.DiskMB
	}
	return out
}

// Floor returns a new Envelope where memory, CPU and disk are raised to at
// least the corresponding floor value.
func Floor(e, floor Envelope) Envelope {
	out := e
	if out.MemoryMB < floor.MemoryMB {
		out.MemoryMB = floor.MemoryMB
	}
	if out.CPUPercent < floor.CPUPercent {
		out.CPUPercent = floor.CPUPercent
	}
	if out.DiskMB < floor.DiskMB {
		out.DiskMB = floor.DiskMB
	}
	return out
}

// SameAllocation reports whether two envelopes agree on memory, CPU and disk.
// Backups and databases are ignored: scaling never touches them.
func SameAllocation(a, b Envelope) bool {
	return a.MemoryMB == b.MemoryMB && a.CPUPercent == b.CPUPercent && a.DiskMB == b.DiskMB
}
