package builtins

import (
	"github.com/indielab/kaish/core/interp"
	"github.com/indielab/kaish/core/lang"
	"github.com/indielab/kaish/core/tools"
)

// entry pairs a schema with its handler for registration.
type entry struct {
	schema  *tools.Schema
	handler tools.Handler
}

func all() []entry {
	str := func(name, doc string) tools.Param {
		return tools.Param{Name: name, Type: lang.ParamString, TypeName: "string",
			Default: interp.Null(), Doc: doc}
	}
	intp := func(name, doc string, def int64) tools.Param {
		return tools.Param{Name: name, Type: lang.ParamInt, TypeName: "int",
			Default: interp.Int(def), Doc: doc}
	}
	boolp := func(name, doc string) tools.Param {
		return tools.Param{Name: name, Type: lang.ParamBool, TypeName: "bool",
			Default: interp.Bool(false), Doc: doc}
	}

	return []entry{
		{&tools.Schema{Name: "echo", Doc: "Display a line of text."}, Echo},
		{&tools.Schema{Name: "true", Doc: "Succeed."}, True},
		{&tools.Schema{Name: "false", Doc: "Fail."}, False},
		{&tools.Schema{Name: "ls", Doc: "List directory contents."}, Ls},
		{&tools.Schema{Name: "cd", Doc: "Change the working directory."}, Cd},
		{&tools.Schema{Name: "pwd", Doc: "Print the working directory."}, Pwd},
		{&tools.Schema{Name: "cat", Doc: "Concatenate files to standard output."}, Cat},
		{&tools.Schema{Name: "write", Doc: "Write content to a file."}, Write},
		{&tools.Schema{Name: "mkdir", Doc: "Create directories."}, Mkdir},
		{&tools.Schema{Name: "rm", Doc: "Remove files or directories."}, Rm},
		{&tools.Schema{Name: "cp", Doc: "Copy a file."}, Cp},
		{&tools.Schema{Name: "mv", Doc: "Move a file."}, Mv},
		{&tools.Schema{Name: "grep", Doc: "Print lines matching a pattern."}, Grep},
		{&tools.Schema{Name: "jq", Doc: "Transform JSON input with a jq query."}, Jq},
		{&tools.Schema{Name: "exec", Doc: "Run an external host program."}, Exec},
		{&tools.Schema{Name: "help", Doc: "List available tools or describe one."}, Help},
		{&tools.Schema{Name: "jobs", Doc: "List background jobs."}, Jobs},
		{&tools.Schema{Name: "wait", Doc: "Wait for background jobs to finish."}, Wait},
		{&tools.Schema{Name: "assert", Doc: "Fail unless a value is truthy."}, Assert},
		{&tools.Schema{Name: "date", Doc: "Print the current time."}, Date},
		{&tools.Schema{Name: "sleep", Doc: "Pause for a duration."}, Sleep},
		{&tools.Schema{Name: "vars", Doc: "List variables visible in the current scope."}, Vars},
		{&tools.Schema{Name: "tools", Doc: "List registered tools."}, Tools},
		{&tools.Schema{Name: "mounts", Doc: "List mounted filesystems."}, Mounts},
		{&tools.Schema{Name: "history", Doc: "Show previously executed commands."}, History},
		{&tools.Schema{Name: "source", Doc: "Execute a script in the current scope."}, SourceTool},
		{&tools.Schema{Name: "set", Doc: "Set or clear interpreter options."}, Set},
		{&tools.Schema{Name: "mount", Doc: "Mount a filesystem backend at a path."}, MountTool},
		{&tools.Schema{Name: "unmount", Doc: "Unmount a filesystem backend."}, Unmount},
		{&tools.Schema{
			Name: "scatter",
			Doc:  "Fan pipeline input out to parallel workers.",
			Params: []tools.Param{
				str("as", "bind variable for each item"),
				intp("limit", "max concurrent workers", 8),
			},
		}, Scatter},
		{&tools.Schema{
			Name: "gather",
			Doc:  "Collect scattered workers' outputs in completion order.",
			Params: []tools.Param{
				intp("first", "stop after N successes", 0),
				str("format", "lines or json"),
				str("errors", "write per-worker failures to a file"),
				boolp("progress", "report per-item completion on stderr"),
			},
		}, Gather},
	}
}

// Register installs every builtin into the registry.
func Register(reg *tools.Registry) {
	for _, e := range all() {
		reg.RegisterBuiltin(e.schema, e.handler)
	}
}
