package loadbalancer

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/cpu"
)

// Sampler - source of host utilisation in percent.
type Sampler interface {
	SystemLoad(ctx context.Context) (int, error)
}

// CPUSampler - overall CPU utilisation since the previous call.
type CPUSampler struct{}

func NewCPUSampler() *CPUSampler {
	return &CPUSampler{}
}

func (that *CPUSampler) SystemLoad(ctx context.Context) (int, error) {
	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return 0, fmt.Errorf("failed to sample cpu: %w", err)
	}

	if len(percents) == 0 {
		return 0, nil
	}

	return int(percents[0]), nil
}

// StaticSampler - fixed utilisation, for deployments that pin the figure and for tests.
type StaticSampler int

func (that StaticSampler) SystemLoad(_ context.Context) (int, error) {
	return int(that), nil
}
