// Package builtins implements the kernel's built-in tools in a
// getopt-based command style.
package builtins

import (
	"fmt"
	"io"
	gopath "path"

	getopt "github.com/pborman/getopt/v2"

	"github.com/indielab/kaish/core/tools"
)

// Command wraps getopt flag parsing, help output and error reporting
// shared by every builtin.
type Command struct {
	// Use holds a one line usage string.
	Use string
	// Short holds a one line description of the command.
	Short string

	flags *getopt.Set
	help  *bool
}

// Flags gets the command's flag set.
func (c *Command) Flags() *getopt.Set {
	if c.flags == nil {
		c.flags = getopt.New()
	}
	return c.flags
}

// PrintHelp writes help for the command to the given writer.
func (c *Command) PrintHelp(w io.Writer) {
	fmt.Fprint(w, "usage: ")
	fmt.Fprintln(w, c.Use)
	fmt.Fprintln(w, c.Short)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	c.Flags().PrintOptions(w)
}

// Run parses the invocation's argv and, when parsing succeeded and help
// was not requested, calls the callback with the remaining positional
// arguments.
func (c *Command) Run(ec *tools.ExecContext, callback func(args []string) int) int {
	opts := c.Flags()
	if c.help == nil {
		c.help = opts.BoolLong("help", 'h', "show this help and exit")
	}

	if err := opts.Getopt(ec.Inv.Argv(ec.Name), nil); err != nil {
		fmt.Fprintf(ec.Stderr, "error: %s\n\n", err)
		c.PrintHelp(ec.Stderr)
		return 1
	}
	if *c.help {
		c.PrintHelp(ec.Stdout)
		return 0
	}
	return callback(opts.Args())
}

// resolvePath turns a possibly relative path into an absolute VFS path
// against the kernel's working directory.
func resolvePath(ec *tools.ExecContext, p string) string {
	if p == "" {
		return ec.Kernel.Cwd()
	}
	if p[0] != '/' {
		p = gopath.Join(ec.Kernel.Cwd(), p)
	}
	return gopath.Clean(p)
}
