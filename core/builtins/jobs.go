package builtins

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/indielab/kaish/core/interp"
	"github.com/indielab/kaish/core/tools"
)

// Jobs lists background jobs.
func Jobs(ec *tools.ExecContext) int {
	cmd := &Command{
		Use:   "jobs",
		Short: "List background jobs.",
	}
	return cmd.Run(ec, func(args []string) int {
		for _, j := range ec.Kernel.Jobs() {
			fmt.Fprintf(ec.Stdout, "[%d] %-10s %s\n", j.ID, j.Status, j.Text)
		}
		return 0
	})
}

// Wait blocks on background jobs. With no arguments it waits for all of
// them; `wait %N` waits for one.
func Wait(ec *tools.ExecContext) int {
	cmd := &Command{
		Use:   "wait [%ID]",
		Short: "Wait for background jobs to finish.",
	}
	return cmd.Run(ec, func(args []string) int {
		id := 0
		if len(args) > 0 {
			raw := strings.TrimPrefix(args[0], "%")
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 {
				return ec.Errorf(interp.ArgumentError, "invalid job id %q", args[0])
			}
			id = parsed
		}
		results, err := ec.Kernel.WaitJob(ec.Ctx, id)
		if err != nil {
			return ec.Errorf(interp.ToolError, "%v", err)
		}
		code := 0
		for _, jr := range results {
			if jr.Result.Out != "" {
				fmt.Fprint(ec.Stdout, jr.Result.Out)
			}
			if jr.Result.Err != "" {
				fmt.Fprintf(ec.Stderr, "[%d] %s\n", jr.ID, jr.Result.Err)
			}
			if !jr.Result.Ok {
				code = jr.Result.Code
			}
		}
		return code
	})
}
