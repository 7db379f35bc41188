package jitter

import "github.com/akmonengine/jitter/parallel"

// task runs fn over data split in one contiguous chunk per pool thread and waits for all of
// them. Single threaded calls and small batches run inline.
func task[T any](pool *parallel.ThreadPool, multithreaded bool, data []T, fn func(data T)) {
	workers := pool.ThreadCount()
	if !multithreaded || workers <= 1 || len(data) < 2*workers {
		for _, d := range data {
			fn(d)
		}
		return
	}

	chunkSize := (len(data) + workers - 1) / workers
	for start := 0; start < len(data); start += chunkSize {
		chunk := data[start:min(start+chunkSize, len(data))]
		pool.AddTask(func(any) {
			for _, d := range chunk {
				fn(d)
			}
		}, nil)
	}
	pool.Execute()
}
