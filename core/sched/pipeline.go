package sched

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/indielab/kaish/core/interp"
)

// Stage is one pipeline segment. Run consumes stdin until EOF, writes to
// stdout/stderr, and reports the stage's result.
type Stage struct {
	Name string
	Run  func(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer) *interp.ExecResult
}

// RunPipeline connects the stages with streams bounded to limit bytes
// (DefaultStreamLimit when limit <= 0) and runs them concurrently. The
// returned result is the last stage's, with ok set to the conjunction of
// all stages so a failing producer is not hidden; if the last stage
// succeeded but an earlier one failed, the code reflects the first
// failure.
func RunPipeline(ctx context.Context, stages []Stage, limit int, stdin io.Reader, stdout, stderr io.Writer) *interp.ExecResult {
	if len(stages) == 0 {
		return interp.FromCode(0)
	}
	start := time.Now()

	results := make([]*interp.ExecResult, len(stages))
	var wg sync.WaitGroup

	in := stdin
	for i := range stages {
		var out io.Writer = stdout
		var next *Stream
		if i < len(stages)-1 {
			next = NewStream(limit)
			out = next
		}

		wg.Add(1)
		go func(idx int, stage Stage, stdin io.Reader, stdout io.Writer, pipe *Stream) {
			defer wg.Done()
			res := stage.Run(ctx, stdin, stdout, stderr)
			if res == nil {
				res = interp.FromCode(0)
			}
			results[idx] = res
			if pipe != nil {
				pipe.Close()
			}
			// A failed or finished consumer unblocks its producer.
			if up, ok := stdin.(*Stream); ok {
				up.CloseRead(io.ErrClosedPipe)
			}
		}(i, stages[i], in, out, next)

		if next != nil {
			in = next
		}
	}
	wg.Wait()

	final := *results[len(results)-1]
	for _, r := range results {
		if !r.Ok {
			final.Ok = false
			if final.Code == 0 {
				final.Code = r.Code
			}
			if final.Err == "" {
				final.Err = r.Err
			}
			break
		}
	}
	final.Duration = time.Since(start)
	return &final
}
