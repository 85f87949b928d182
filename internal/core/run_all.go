package core

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// ImportJob is one file destined for one table.
type ImportJob struct {
	Path    string
	Table   TableDefinition
	Options ImportOptions
}

// JobResult pairs a job with its outcome. Err is the error Import returned.
type JobResult struct {
	Job    ImportJob
	Result *ImportResult
	Err    error
}

// ImportAll runs jobs concurrently, at most MaxConcurrent at a time. Jobs for
// the same destination run one after another in submission order. Results are
// returned in job order.
func (im *Importer) ImportAll(ctx context.Context, jobs []ImportJob) []JobResult {
	results := make([]JobResult, len(jobs))

	var order []string
	groups := make(map[string][]int)
	for i, job := range jobs {
		key := job.Table.Info.Key
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], i)
	}

	var g errgroup.Group
	g.SetLimit(im.maxConcurrent)

	for _, key := range order {
		indexes := groups[key]
		g.Go(func() error {
			for _, i := range indexes {
				job := jobs[i]
				res, err := im.ImportFile(ctx, job.Path, job.Table, job.Options)
				results[i] = JobResult{Job: job, Result: res, Err: err}
			}
			return nil
		})
	}
	_ = g.Wait()

	return results
}
