package tuner

// Worker configuration limits.
const (
	// maxWorkers is the maximum number of workers for any pool.
	maxWorkers = 64

	// minHashWorkers is the minimum number of hashing workers.
	minHashWorkers = 4

	// minRenderWorkers is the minimum number of diff rendering workers.
	minRenderWorkers = 1
)

// Memory-based render sizing constants.
const (
	// bytesPerRender estimates the memory held by one diff render: both
	// file versions, the line diff and the HTML fragment.
	bytesPerRender = 64 * 1024 * 1024

	// renderMemoryFraction is the fraction of available RAM renders may use.
	renderMemoryFraction = 0.25
)

// OptimalConfig contains worker counts sized for the detected resources.
type OptimalConfig struct {
	// HashWorkers bounds concurrent file hashing. Hashing is I/O bound.
	HashWorkers int

	// RenderWorkers bounds concurrent diff rendering. Rendering is CPU and
	// memory bound.
	RenderWorkers int

	// ProcessWorkers bounds concurrent external programs such as the
	// script beautifier.
	ProcessWorkers int
}

// Calculate returns worker counts for the given resources.
//
//   - HashWorkers: NumCPU * 4, at least 4
//   - RenderWorkers: NumCPU, further limited by available RAM
//   - ProcessWorkers: NumCPU
//   - every count is capped at 64
func Calculate(resources SystemResources) OptimalConfig {
	cores := max(resources.CPUCores, 1)

	hashWorkers := cores * 4
	hashWorkers = max(hashWorkers, minHashWorkers)
	hashWorkers = min(hashWorkers, maxWorkers)

	renderWorkers := min(cores, renderCapacity(resources.AvailableRAM))
	renderWorkers = max(renderWorkers, minRenderWorkers)
	renderWorkers = min(renderWorkers, maxWorkers)

	return OptimalConfig{
		HashWorkers:    hashWorkers,
		RenderWorkers:  renderWorkers,
		ProcessWorkers: min(cores, maxWorkers),
	}
}

// CalculateWithOverrides applies a user override to the calculated config.
// A positive workerOverride sets every pool to that value, still capped at
// 64; zero or negative keeps the calculated values.
func CalculateWithOverrides(resources SystemResources, workerOverride int) OptimalConfig {
	config := Calculate(resources)

	if workerOverride > 0 {
		workers := min(workerOverride, maxWorkers)
		config.HashWorkers = workers
		config.RenderWorkers = workers
		config.ProcessWorkers = workers
	}

	return config
}

// renderCapacity is the number of renders that fit in the render share of
// available memory.
func renderCapacity(availableRAM int64) int {
	budget := float64(availableRAM) * renderMemoryFraction
	return int(budget / bytesPerRender)
}
