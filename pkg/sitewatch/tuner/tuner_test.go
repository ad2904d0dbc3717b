package tuner

import (
	"runtime"
	"testing"
)

const gib = 1024 * 1024 * 1024

func TestDetect(t *testing.T) {
	resources, err := Detect()
	if err != nil {
		t.Fatalf("Detect() returned error: %v", err)
	}

	if resources.CPUCores != runtime.NumCPU() {
		t.Errorf("CPUCores = %d, want %d (runtime.NumCPU())", resources.CPUCores, runtime.NumCPU())
	}

	if resources.TotalRAM <= 0 {
		t.Errorf("TotalRAM = %d, want > 0", resources.TotalRAM)
	}

	if resources.AvailableRAM < 0 || resources.AvailableRAM > resources.TotalRAM {
		t.Errorf("AvailableRAM = %d, want in [0, %d]", resources.AvailableRAM, resources.TotalRAM)
	}
}

func TestCalculate(t *testing.T) {
	tests := []struct {
		name      string
		resources SystemResources
		want      OptimalConfig
	}{
		{
			name:      "small system (2 cores, 4GB RAM)",
			resources: SystemResources{CPUCores: 2, TotalRAM: 4 * gib, AvailableRAM: 2 * gib},
			want:      OptimalConfig{HashWorkers: 8, RenderWorkers: 2, ProcessWorkers: 2},
		},
		{
			name:      "medium system (8 cores, 16GB RAM)",
			resources: SystemResources{CPUCores: 8, TotalRAM: 16 * gib, AvailableRAM: 8 * gib},
			want:      OptimalConfig{HashWorkers: 32, RenderWorkers: 8, ProcessWorkers: 8},
		},
		{
			name:      "large system (32 cores, 64GB RAM)",
			resources: SystemResources{CPUCores: 32, TotalRAM: 64 * gib, AvailableRAM: 32 * gib},
			want:      OptimalConfig{HashWorkers: 64, RenderWorkers: 32, ProcessWorkers: 32},
		},
		{
			name:      "memory starved (16 cores, 512MB free)",
			resources: SystemResources{CPUCores: 16, TotalRAM: 2 * gib, AvailableRAM: gib / 2},
			want:      OptimalConfig{HashWorkers: 64, RenderWorkers: 2, ProcessWorkers: 16},
		},
		{
			name:      "nothing free",
			resources: SystemResources{CPUCores: 1},
			want:      OptimalConfig{HashWorkers: 4, RenderWorkers: 1, ProcessWorkers: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Calculate(tt.resources)
			if got != tt.want {
				t.Errorf("Calculate() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestCalculate_WorkerCaps(t *testing.T) {
	config := Calculate(SystemResources{CPUCores: 128, TotalRAM: 256 * gib, AvailableRAM: 128 * gib})

	if config.HashWorkers > maxWorkers {
		t.Errorf("HashWorkers = %d, want <= %d", config.HashWorkers, maxWorkers)
	}
	if config.RenderWorkers > maxWorkers {
		t.Errorf("RenderWorkers = %d, want <= %d", config.RenderWorkers, maxWorkers)
	}
	if config.ProcessWorkers > maxWorkers {
		t.Errorf("ProcessWorkers = %d, want <= %d", config.ProcessWorkers, maxWorkers)
	}
}

func TestCalculateWithOverrides(t *testing.T) {
	resources := SystemResources{CPUCores: 8, TotalRAM: 16 * gib, AvailableRAM: 8 * gib}

	tests := []struct {
		name     string
		override int
		want     OptimalConfig
	}{
		{"no override", 0, Calculate(resources)},
		{"negative ignored", -3, Calculate(resources)},
		{"override with 16", 16, OptimalConfig{HashWorkers: 16, RenderWorkers: 16, ProcessWorkers: 16}},
		{"override capped at 64", 100, OptimalConfig{HashWorkers: 64, RenderWorkers: 64, ProcessWorkers: 64}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateWithOverrides(resources, tt.override)
			if got != tt.want {
				t.Errorf("CalculateWithOverrides(%d) = %+v, want %+v", tt.override, got, tt.want)
			}
		})
	}
}
