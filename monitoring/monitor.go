package monitoring

import (
	"fmt"
	"log"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

var startTime = time.Now()

// StorageUsage holds disk usage for the filesystem backing the cache.
type StorageUsage struct {
	Path        string  `json:"path"`
	TotalGB     float64 `json:"total_gb"`
	FreeGB      float64 `json:"free_gb"`
	UsedPercent float64 `json:"used_percent"`
}

// ResourceUsage is a snapshot of process and host resources.
type ResourceUsage struct {
	CPUPercent    float64       `json:"cpu_percent"`
	MemoryUsedMB  float64       `json:"memory_used_mb"`
	MemoryTotalMB float64       `json:"memory_total_mb"`
	MemoryPercent float64       `json:"memory_percent"`
	NumGoroutines int           `json:"goroutines"`
	Uptime        string        `json:"uptime"`
	Storage       *StorageUsage `json:"storage,omitempty"`
}

// StartMonitoring logs resource usage at the given interval.
func StartMonitoring(interval time.Duration, cachePath string) {
	go func() {
		proc, err := process.NewProcess(int32(os.Getpid()))
		if err != nil {
			log.Printf("Error getting process: %v", err)
			return
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for range ticker.C {
			usage, err := getResourceUsage(proc, cachePath)
			if err != nil {
				log.Printf("Error getting resource usage: %v", err)
				continue
			}

			log.Printf("Resource Usage - CPU: %.2f%%, Memory: %.2f/%.2f MB (%.2f%%), Goroutines: %d",
				usage.CPUPercent,
				usage.MemoryUsedMB,
				usage.MemoryTotalMB,
				usage.MemoryPercent,
				usage.NumGoroutines)
		}
	}()
}

// GetCurrentResourceUsage returns a one-off resource snapshot including disk
// usage for the cache path.
func GetCurrentResourceUsage(cachePath string) (ResourceUsage, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return ResourceUsage{}, fmt.Errorf("error getting process: %w", err)
	}
	return getResourceUsage(proc, cachePath)
}

func getResourceUsage(proc *process.Process, cachePath string) (ResourceUsage, error) {
	var usage ResourceUsage

	cpuPercent, err := proc.CPUPercent()
	if err != nil {
		return usage, fmt.Errorf("error getting CPU usage: %w", err)
	}
	usage.CPUPercent = cpuPercent

	virtualMem, err := mem.VirtualMemory()
	if err != nil {
		return usage, fmt.Errorf("error getting memory info: %w", err)
	}

	procMem, err := proc.MemoryInfo()
	if err != nil {
		return usage, fmt.Errorf("error getting process memory: %w", err)
	}

	usage.MemoryUsedMB = float64(procMem.RSS) / 1024 / 1024
	usage.MemoryTotalMB = float64(virtualMem.Total) / 1024 / 1024
	usage.MemoryPercent = float64(procMem.RSS) / float64(virtualMem.Total) * 100
	usage.NumGoroutines = runtime.NumGoroutine()
	usage.Uptime = time.Since(startTime).Round(time.Second).String()

	if cachePath != "" {
		if du, err := disk.Usage(cachePath); err == nil {
			usage.Storage = &StorageUsage{
				Path:        cachePath,
				TotalGB:     float64(du.Total) / (1024 * 1024 * 1024),
				FreeGB:      float64(du.Free) / (1024 * 1024 * 1024),
				UsedPercent: du.UsedPercent,
			}
		} else {
			log.Printf("Error getting disk usage for %s: %v", cachePath, err)
		}
	}

	return usage, nil
}
