package pulse

import (
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/teranos/sentinel/errors"
)

// MemoryStats is host memory usage as shown in the heartbeat.
type MemoryStats struct {
	UsedGB  float64 `json:"used_gb"`
	TotalGB float64 `json:"total_gb"`
	Percent float64 `json:"percent"`
}

const bytesPerGB = 1024 * 1024 * 1024

// ReadMemoryStats queries the OS for current memory usage.
func ReadMemoryStats() (MemoryStats, error) {
	v, err := mem.VirtualMemory()
	if err != nil {
		return MemoryStats{}, errors.Wrap(err, "failed to get memory stats")
	}
	return memoryFromBytes(v.Total, v.Available), nil
}

func memoryFromBytes(total, available uint64) MemoryStats {
	if total == 0 {
		return MemoryStats{}
	}
	if available > total {
		available = total
	}
	used := float64(total-available) / bytesPerGB
	totalGB := float64(total) / bytesPerGB
	return MemoryStats{
		UsedGB:  used,
		TotalGB: totalGB,
		Percent: used / totalGB * 100,
	}
}
