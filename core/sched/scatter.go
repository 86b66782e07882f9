package sched

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/indielab/kaish/core/interp"
)

// DefaultScatterLimit is the worker cap when scatter has no limit=N.
const DefaultScatterLimit = 8

// DefaultScatterVar is the bind variable when scatter has no as=VAR.
const DefaultScatterVar = "ITEM"

// ScatterOptions configure one scatter/gather run.
type ScatterOptions struct {
	// As is the variable each worker sees bound to its item.
	As string
	// Limit caps concurrent workers.
	Limit int
	// First stops after N successful workers and cancels the rest
	// (0 keeps everything).
	First int
	// Format is "lines" (concatenated stdout) or "json" (array of
	// payloads).
	Format string
	// Progress receives one "[done/total]" line per finished worker
	// when non-nil.
	Progress io.Writer
}

// Normalize fills defaults.
func (o *ScatterOptions) Normalize() {
	if o.As == "" {
		o.As = DefaultScatterVar
	}
	if o.Limit <= 0 {
		o.Limit = DefaultScatterLimit
	}
	if o.Format == "" {
		o.Format = "lines"
	}
}

// Worker runs the downstream stage chain for one scattered item.
type Worker func(ctx context.Context, item interp.Value) *interp.ExecResult

// WorkerResult is one finished worker in completion order.
type WorkerResult struct {
	Index  int
	Item   interp.Value
	Result *interp.ExecResult
}

// ScatterOutcome aggregates a scatter/gather run.
type ScatterOutcome struct {
	// Completed holds successful workers in completion order.
	Completed []WorkerResult
	// Failures holds failed workers in completion order.
	Failures []WorkerResult
	// Ok is true when at least one worker succeeded.
	Ok bool
}

// SplitItems turns scatter input into work items: a JSON array iterates
// its elements, anything else iterates non-empty lines.
func SplitItems(input string) []interp.Value {
	trimmed := strings.TrimSpace(input)
	if strings.HasPrefix(trimmed, "[") {
		if v, err := interp.ParseJSON([]byte(trimmed)); err == nil && v.Kind() == interp.KindArray {
			return v.Items()
		}
	}
	var items []interp.Value
	for _, line := range strings.Split(input, "\n") {
		if line = strings.TrimRight(line, "\r"); line != "" {
			items = append(items, interp.Str(line))
		}
	}
	return items
}

// RunScatter fans items out to at most opts.Limit concurrent workers and
// gathers their results as they complete.
func RunScatter(ctx context.Context, items []interp.Value, worker Worker, opts ScatterOptions) *ScatterOutcome {
	opts.Normalize()

	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	resultCh := make(chan WorkerResult)
	sem := make(chan struct{}, opts.Limit)
	var wg sync.WaitGroup

	for i, item := range items {
		wg.Add(1)
		go func(idx int, item interp.Value) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-wctx.Done():
				return
			}
			res := worker(wctx, item)
			if res == nil {
				res = interp.FromCode(0)
			}
			select {
			case resultCh <- WorkerResult{Index: idx, Item: item, Result: res}:
			case <-wctx.Done():
			}
		}(i, item)
	}
	go func() {
		wg.Wait()
		close(resultCh)
	}()

	outcome := &ScatterOutcome{}
	done := 0
	for wr := range resultCh {
		done++
		if opts.Progress != nil {
			status := "ok"
			if !wr.Result.Ok {
				status = "failed"
			}
			fmt.Fprintf(opts.Progress, "[%d/%d] %s\n", done, len(items), status)
		}
		if wr.Result.Ok {
			outcome.Completed = append(outcome.Completed, wr)
			if opts.First > 0 && len(outcome.Completed) >= opts.First {
				cancel()
				break
			}
		} else {
			outcome.Failures = append(outcome.Failures, wr)
		}
	}
	// Drain workers that raced the cancellation.
	go func() {
		for range resultCh {
		}
	}()

	outcome.Ok = len(outcome.Completed) > 0 || len(items) == 0
	return outcome
}

// Render produces the gather stage's stdout in the requested format.
func (o *ScatterOutcome) Render(format string) (string, error) {
	switch format {
	case "", "lines":
		var b strings.Builder
		for _, wr := range o.Completed {
			out := wr.Result.Out
			b.WriteString(out)
			if out != "" && !strings.HasSuffix(out, "\n") {
				b.WriteByte('\n')
			}
		}
		return b.String(), nil
	case "json":
		payloads := make([]interp.Value, 0, len(o.Completed))
		for _, wr := range o.Completed {
			if !wr.Result.Data.IsNull() {
				payloads = append(payloads, wr.Result.Data)
			} else {
				payloads = append(payloads, interp.Str(strings.TrimRight(wr.Result.Out, "\n")))
			}
		}
		data, err := interp.Arr(payloads).MarshalJSON()
		if err != nil {
			return "", err
		}
		return string(data) + "\n", nil
	}
	return "", fmt.Errorf("unknown gather format %q", format)
}

// ErrorSummary renders one line per failed worker, the payload of
// gather's errors=PATH file.
func (o *ScatterOutcome) ErrorSummary() string {
	var b strings.Builder
	for _, wr := range o.Failures {
		fmt.Fprintf(&b, "item %d (%s): code=%d %s\n",
			wr.Index, wr.Item.Text(), wr.Result.Code, wr.Result.Err)
	}
	return b.String()
}
