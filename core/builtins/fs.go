package builtins

import (
	"fmt"
	"io"
	"strings"

	"github.com/indielab/kaish/core/interp"
	"github.com/indielab/kaish/core/tools"
)

// Ls lists directory entries.
func Ls(ec *tools.ExecContext) int {
	cmd := &Command{
		Use:   "ls [-l] [PATH]",
		Short: "List directory contents.",
	}
	long := cmd.Flags().Bool('l', "use a long listing format")

	return cmd.Run(ec, func(args []string) int {
		target := ec.Kernel.Cwd()
		if len(args) > 0 {
			target = resolvePath(ec, args[0])
		}
		entries, err := ec.FS.List(ec.Ctx, target)
		if err != nil {
			return ec.Errorf(interp.IOError, "%v", err)
		}
		for _, e := range entries {
			name := e.Name
			if e.Dir {
				name += "/"
			}
			if *long {
				fmt.Fprintf(ec.Stdout, "%8d %s\n", e.Size, name)
			} else {
				fmt.Fprintln(ec.Stdout, name)
			}
		}
		return 0
	})
}

// Cd changes the working directory.
func Cd(ec *tools.ExecContext) int {
	cmd := &Command{
		Use:   "cd [PATH]",
		Short: "Change the working directory.",
	}
	return cmd.Run(ec, func(args []string) int {
		target := "/"
		if len(args) > 0 {
			target = resolvePath(ec, args[0])
		}
		if err := ec.Kernel.SetCwd(ec.Ctx, target); err != nil {
			return ec.Errorf(interp.IOError, "%v", err)
		}
		return 0
	})
}

// Pwd prints the working directory.
func Pwd(ec *tools.ExecContext) int {
	cmd := &Command{
		Use:   "pwd",
		Short: "Print the working directory.",
	}
	return cmd.Run(ec, func(args []string) int {
		fmt.Fprintln(ec.Stdout, ec.Kernel.Cwd())
		return 0
	})
}

// Cat concatenates files to stdout, or copies stdin with no arguments.
func Cat(ec *tools.ExecContext) int {
	cmd := &Command{
		Use:   "cat [FILE] ...",
		Short: "Concatenate files to standard output.",
	}
	return cmd.Run(ec, func(args []string) int {
		if len(args) == 0 {
			if _, err := io.Copy(ec.Stdout, ec.Stdin); err != nil {
				return ec.Errorf(interp.IOError, "%v", err)
			}
			return 0
		}
		for _, arg := range args {
			data, err := ec.FS.Read(ec.Ctx, resolvePath(ec, arg))
			if err != nil {
				return ec.Errorf(interp.IOError, "%v", err)
			}
			ec.Stdout.Write(data)
		}
		return 0
	})
}

// Write stores content at a path, creating parent directories.
func Write(ec *tools.ExecContext) int {
	cmd := &Command{
		Use:   "write [-a] PATH [CONTENT]",
		Short: "Write content to a file; with no content, consume stdin.",
	}
	appendTo := cmd.Flags().Bool('a', "append instead of overwriting")

	return cmd.Run(ec, func(args []string) int {
		if len(args) < 1 {
			return ec.Errorf(interp.ArgumentError, "missing path")
		}
		var data []byte
		if len(args) >= 2 {
			data = []byte(strings.Join(args[1:], " "))
		} else {
			var err error
			if data, err = io.ReadAll(ec.Stdin); err != nil {
				return ec.Errorf(interp.IOError, "%v", err)
			}
		}
		path := resolvePath(ec, args[0])
		var err error
		if *appendTo {
			err = ec.FS.Append(ec.Ctx, path, data)
		} else {
			err = ec.FS.Write(ec.Ctx, path, data)
		}
		if err != nil {
			return ec.Errorf(interp.IOError, "%v", err)
		}
		return 0
	})
}

// Mkdir creates directories.
func Mkdir(ec *tools.ExecContext) int {
	cmd := &Command{
		Use:   "mkdir PATH ...",
		Short: "Create directories, including parents.",
	}
	return cmd.Run(ec, func(args []string) int {
		if len(args) == 0 {
			return ec.Errorf(interp.ArgumentError, "missing path")
		}
		for _, arg := range args {
			if err := ec.FS.Mkdir(ec.Ctx, resolvePath(ec, arg)); err != nil {
				return ec.Errorf(interp.IOError, "%v", err)
			}
		}
		return 0
	})
}

// Rm removes files, or trees with -r.
func Rm(ec *tools.ExecContext) int {
	cmd := &Command{
		Use:   "rm [-r] PATH ...",
		Short: "Remove files or directories.",
	}
	recursive := cmd.Flags().Bool('r', "remove directories recursively")

	return cmd.Run(ec, func(args []string) int {
		if len(args) == 0 {
			return ec.Errorf(interp.ArgumentError, "missing path")
		}
		for _, arg := range args {
			if err := ec.FS.Remove(ec.Ctx, resolvePath(ec, arg), *recursive); err != nil {
				return ec.Errorf(interp.IOError, "%v", err)
			}
		}
		return 0
	})
}

// Cp copies a file.
func Cp(ec *tools.ExecContext) int {
	cmd := &Command{
		Use:   "cp SRC DST",
		Short: "Copy a file, possibly across mounts.",
	}
	return cmd.Run(ec, func(args []string) int {
		if len(args) != 2 {
			return ec.Errorf(interp.ArgumentError, "expected SRC and DST")
		}
		if err := ec.FS.Copy(ec.Ctx, resolvePath(ec, args[0]), resolvePath(ec, args[1])); err != nil {
			return ec.Errorf(interp.IOError, "%v", err)
		}
		return 0
	})
}

// Mv moves a file.
func Mv(ec *tools.ExecContext) int {
	cmd := &Command{
		Use:   "mv SRC DST",
		Short: "Move a file, possibly across mounts.",
	}
	return cmd.Run(ec, func(args []string) int {
		if len(args) != 2 {
			return ec.Errorf(interp.ArgumentError, "expected SRC and DST")
		}
		if err := ec.FS.Move(ec.Ctx, resolvePath(ec, args[0]), resolvePath(ec, args[1])); err != nil {
			return ec.Errorf(interp.IOError, "%v", err)
		}
		return 0
	})
}
