package builtins

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/indielab/kaish/core/interp"
	"github.com/indielab/kaish/core/tools"
)

// Help lists tools or shows one tool's schema.
func Help(ec *tools.ExecContext) int {
	cmd := &Command{
		Use:   "help [TOOL]",
		Short: "List available tools or describe one.",
	}
	return cmd.Run(ec, func(args []string) int {
		if len(args) == 0 {
			for _, e := range ec.Registry.List() {
				doc := e.Schema.Doc
				fmt.Fprintf(ec.Stdout, "%-12s %-8s %s\n", e.Name, "("+e.Source.String()+")", doc)
			}
			return 0
		}
		e, err := ec.Registry.Resolve(args[0])
		if err != nil {
			return ec.Errorf(interp.NameError, "%v", err)
		}
		fmt.Fprintf(ec.Stdout, "%s (%s)\n", e.Name, e.Source)
		if e.Schema.Doc != "" {
			fmt.Fprintln(ec.Stdout, e.Schema.Doc)
		}
		for _, p := range e.Schema.Params {
			req := "optional"
			if p.Required {
				req = "required"
			} else if !p.Default.IsNull() {
				req = "default " + p.Default.Text()
			}
			fmt.Fprintf(ec.Stdout, "  %s: %s (%s)\n", p.Name, p.TypeName, req)
		}
		return 0
	})
}

// Vars lists visible variables.
func Vars(ec *tools.ExecContext) int {
	cmd := &Command{
		Use:   "vars [--json]",
		Short: "List variables visible in the current scope.",
	}
	asJSON := cmd.Flags().BoolLong("json", 'j', "emit a JSON object")

	return cmd.Run(ec, func(args []string) int {
		visible := ec.Scope.Visible()
		if *asJSON {
			ordered := interp.NewObject()
			for _, k := range visible.SortedKeys() {
				v, _ := visible.Get(k)
				ordered.Set(k, v)
			}
			data, err := interp.Obj(ordered).MarshalJSONIndent()
			if err != nil {
				return ec.Errorf(interp.InternalError, "%v", err)
			}
			fmt.Fprintln(ec.Stdout, string(data))
			return 0
		}
		for _, k := range visible.SortedKeys() {
			v, _ := visible.Get(k)
			fmt.Fprintf(ec.Stdout, "%s=%s\n", k, v.Text())
		}
		return 0
	})
}

// Tools lists registered tools.
func Tools(ec *tools.ExecContext) int {
	cmd := &Command{
		Use:   "tools [--json]",
		Short: "List registered tools and their sources.",
	}
	asJSON := cmd.Flags().BoolLong("json", 'j', "emit JSON schemas")

	return cmd.Run(ec, func(args []string) int {
		entries := ec.Registry.List()
		if *asJSON {
			arr := make([]interp.Value, 0, len(entries))
			for _, e := range entries {
				obj := interp.NewObject()
				obj.Set("name", interp.Str(e.Name))
				obj.Set("source", interp.Str(e.Source.String()))
				params := make([]interp.Value, 0, len(e.Schema.Params))
				for _, p := range e.Schema.Params {
					po := interp.NewObject()
					po.Set("name", interp.Str(p.Name))
					po.Set("type", interp.Str(p.TypeName))
					po.Set("required", interp.Bool(p.Required))
					params = append(params, interp.Obj(po))
				}
				obj.Set("params", interp.Arr(params))
				arr = append(arr, interp.Obj(obj))
			}
			data, err := interp.Arr(arr).MarshalJSON()
			if err != nil {
				return ec.Errorf(interp.InternalError, "%v", err)
			}
			fmt.Fprintln(ec.Stdout, string(data))
			return 0
		}
		for _, e := range entries {
			fmt.Fprintf(ec.Stdout, "%s (%s)\n", e.Name, e.Source)
		}
		return 0
	})
}

// Mounts prints the mount table.
func Mounts(ec *tools.ExecContext) int {
	cmd := &Command{
		Use:   "mounts",
		Short: "List mounted filesystems.",
	}
	return cmd.Run(ec, func(args []string) int {
		for _, m := range ec.FS.Mounts() {
			flags := "rw"
			if m.ReadOnly {
				flags = "ro"
			}
			line := fmt.Sprintf("%s on %s (%s)", m.Type, m.Path, flags)
			if m.Spec != "" {
				line += " " + m.Spec
			}
			fmt.Fprintln(ec.Stdout, line)
		}
		return 0
	})
}

// History prints executed inputs.
func History(ec *tools.ExecContext) int {
	cmd := &Command{
		Use:   "history",
		Short: "Show previously executed commands.",
	}
	return cmd.Run(ec, func(args []string) int {
		for i, line := range ec.Kernel.History() {
			fmt.Fprintf(ec.Stdout, "%5d  %s\n", i+1, line)
		}
		return 0
	})
}

// SourceTool executes a script file in the current scope.
func SourceTool(ec *tools.ExecContext) int {
	cmd := &Command{
		Use:   "source PATH",
		Short: "Execute a script's statements in the current scope.",
	}
	return cmd.Run(ec, func(args []string) int {
		if len(args) != 1 {
			return ec.Errorf(interp.ArgumentError, "expected exactly one path")
		}
		path := resolvePath(ec, args[0])
		data, err := ec.FS.Read(ec.Ctx, path)
		if err != nil {
			return ec.Errorf(interp.IOError, "%v", err)
		}
		res, err := ec.Kernel.RunScript(ec.Ctx, path, string(data))
		if err != nil {
			return ec.Errorf(interp.ToolError, "%v", err)
		}
		if res.Out != "" {
			fmt.Fprint(ec.Stdout, res.Out)
		}
		if res.Err != "" {
			fmt.Fprint(ec.Stderr, res.Err)
		}
		return res.Code
	})
}

// Set toggles interpreter options; `set -e` aborts execution on the
// first failing command.
func Set(ec *tools.ExecContext) int {
	cmd := &Command{
		Use:   "set [-e | +e]",
		Short: "Set or clear interpreter options.",
	}
	errExit := cmd.Flags().Bool('e', "exit on the first failing command")

	return cmd.Run(ec, func(args []string) int {
		switch {
		case *errExit:
			ec.Kernel.SetErrExit(true)
		case len(args) == 1 && args[0] == "+e":
			ec.Kernel.SetErrExit(false)
		default:
			return ec.Errorf(interp.ArgumentError, "supported options: -e, +e")
		}
		return 0
	})
}

// Assert fails unless its first argument is truthy.
func Assert(ec *tools.ExecContext) int {
	cmd := &Command{
		Use:   "assert VALUE [MESSAGE]",
		Short: "Fail with a message unless VALUE is truthy.",
	}
	return cmd.Run(ec, func(args []string) int {
		if len(ec.Inv.Pos) == 0 {
			return ec.Errorf(interp.ArgumentError, "missing value")
		}
		if ec.Inv.Pos[0].Truthy() {
			return 0
		}
		msg := "assertion failed"
		if len(ec.Inv.Pos) > 1 {
			msg = ec.Inv.Pos[1].Text()
		}
		fmt.Fprintf(ec.Stderr, "%s: %s\n", ec.Name, msg)
		return 1
	})
}

// Date prints the current time.
func Date(ec *tools.ExecContext) int {
	cmd := &Command{
		Use:   "date [-u] [LAYOUT]",
		Short: "Print the current time, RFC 3339 by default.",
	}
	utc := cmd.Flags().Bool('u', "use UTC instead of local time")

	return cmd.Run(ec, func(args []string) int {
		now := time.Now()
		if *utc {
			now = now.UTC()
		}
		layout := time.RFC3339
		if len(args) > 0 {
			layout = args[0]
		}
		fmt.Fprintln(ec.Stdout, now.Format(layout))
		return 0
	})
}

// Sleep pauses for a number of seconds, responding to cancellation.
func Sleep(ec *tools.ExecContext) int {
	cmd := &Command{
		Use:   "sleep SECONDS",
		Short: "Pause for a duration.",
	}
	return cmd.Run(ec, func(args []string) int {
		if len(args) != 1 {
			return ec.Errorf(interp.ArgumentError, "missing duration")
		}
		secs, err := strconv.ParseFloat(strings.TrimSpace(args[0]), 64)
		if err != nil || secs < 0 {
			return ec.Errorf(interp.ArgumentError, "invalid duration %q", args[0])
		}
		select {
		case <-time.After(time.Duration(secs * float64(time.Second))):
			return 0
		case <-ec.Ctx.Done():
			return interp.CancelledError.ExitCode()
		}
	})
}
