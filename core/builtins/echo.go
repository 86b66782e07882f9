package builtins

import (
	"fmt"

	"github.com/indielab/kaish/core/tools"
)

// Echo displays its arguments separated by spaces.
func Echo(ec *tools.ExecContext) int {
	cmd := &Command{
		Use:   "echo [-n] [ARG] ...",
		Short: "Display a line of text.",
	}
	noNewline := cmd.Flags().Bool('n', "do not output the trailing newline")

	return cmd.Run(ec, func(args []string) int {
		for i, arg := range args {
			if i > 0 {
				fmt.Fprint(ec.Stdout, " ")
			}
			fmt.Fprint(ec.Stdout, arg)
		}
		if !*noNewline {
			fmt.Fprintln(ec.Stdout)
		}
		return 0
	})
}

// True always succeeds.
func True(ec *tools.ExecContext) int { return 0 }

// False always fails.
func False(ec *tools.ExecContext) int { return 1 }
