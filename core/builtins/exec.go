package builtins

import (
	"errors"
	"os"
	"os/exec"

	"github.com/indielab/kaish/core/interp"
	"github.com/indielab/kaish/core/tools"
)

// execEnvBase names the host variables subprocesses keep. Everything
// else in the host environment stays hidden from them.
var execEnvBase = []string{"PATH", "HOME", "LANG", "TZ"}

// sanitizedEnv builds a subprocess environment from the base host
// variables plus the scalar variables visible in the current scope.
func sanitizedEnv(scope *interp.Scope) []string {
	env := make([]string, 0, len(execEnvBase))
	for _, name := range execEnvBase {
		if v, ok := os.LookupEnv(name); ok {
			env = append(env, name+"="+v)
		}
	}
	if scope == nil {
		return env
	}
	vars := scope.Visible()
	for _, key := range vars.Keys() {
		v, _ := vars.Get(key)
		switch v.Kind() {
		case interp.KindString, interp.KindInt, interp.KindFloat, interp.KindBool:
			env = append(env, key+"="+v.Text())
		}
	}
	return env
}

// Exec spawns an external host process, wiring the tool's streams to it.
// Exit codes follow shell convention: 127 when the program is missing,
// 126 when it cannot be executed.
func Exec(ec *tools.ExecContext) int {
	cmd := &Command{
		Use:   "exec PROGRAM [ARG] ...",
		Short: "Run an external host program.",
	}
	return cmd.Run(ec, func(args []string) int {
		if len(args) == 0 {
			return ec.Errorf(interp.ArgumentError, "missing program")
		}

		proc := exec.CommandContext(ec.Ctx, args[0], args[1:]...)
		proc.Env = sanitizedEnv(ec.Scope)
		proc.Stdin = ec.Stdin
		proc.Stdout = ec.Stdout
		proc.Stderr = ec.Stderr

		err := proc.Run()
		if err == nil {
			return 0
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode()
		}
		if errors.Is(err, exec.ErrNotFound) {
			ec.Errorf(interp.NameError, "%v", err)
			return 127
		}
		ec.Errorf(interp.IOError, "%v", err)
		return 126
	})
}
