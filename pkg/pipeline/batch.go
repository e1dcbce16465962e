package pipeline

import (
	"context"
	"sync"

	"github.com/nicktill/gasqc/pkg/sensor"
)

// Job is one sensor's input for RunAll
type Job struct {
	Pipeline *Pipeline
	Samples  []sensor.Sample
}

// JobResult pairs a job with its outcome
type JobResult struct {
	SensorID string
	Result   *Result
	Err      error
}

// RunAll runs independent sensor pipelines on at most workers goroutines.
// Results come back in job order. Jobs not yet started when ctx is cancelled
// report ctx.Err().
func RunAll(ctx context.Context, jobs []Job, workers int) []JobResult {
	if workers < 1 {
		workers = 1
	}
	if workers > len(jobs) {
		workers = len(jobs)
	}

	results := make([]JobResult, len(jobs))
	queue := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range queue {
				job := jobs[i]
				results[i].SensorID = job.Pipeline.Config().ID

				if err := ctx.Err(); err != nil {
					results[i].Err = err
					continue
				}
				results[i].Result, results[i].Err = job.Pipeline.Run(job.Samples)
			}
		}()
	}

	for i := range jobs {
		queue <- i
	}
	close(queue)
	wg.Wait()

	return results
}
