package builtins

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/indielab/kaish/core/interp"
	"github.com/indielab/kaish/core/tools"
)

// Grep filters lines by a regular expression. Exit code 1 means no line
// matched, like the real thing.
func Grep(ec *tools.ExecContext) int {
	cmd := &Command{
		Use:   "grep [-ivqnc] PATTERN [FILE] ...",
		Short: "Print lines matching a pattern.",
	}
	opts := cmd.Flags()
	ignoreCase := opts.Bool('i', "ignore case distinctions")
	invert := opts.Bool('v', "select non-matching lines")
	quiet := opts.Bool('q', "suppress output, only set the exit code")
	lineNums := opts.Bool('n', "prefix each line with its line number")
	countOnly := opts.Bool('c', "print only a count of matching lines")

	return cmd.Run(ec, func(args []string) int {
		if len(args) == 0 {
			return ec.Errorf(interp.ArgumentError, "missing pattern")
		}
		pattern := args[0]
		if *ignoreCase {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return ec.Errorf(interp.ArgumentError, "invalid pattern: %v", err)
		}

		var input io.Reader = ec.Stdin
		if len(args) > 1 {
			var parts []string
			for _, f := range args[1:] {
				data, err := ec.FS.Read(ec.Ctx, resolvePath(ec, f))
				if err != nil {
					return ec.Errorf(interp.IOError, "%v", err)
				}
				parts = append(parts, string(data))
			}
			input = strings.NewReader(strings.Join(parts, ""))
		}

		matches := 0
		scanner := bufio.NewScanner(input)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for lineNo := 1; scanner.Scan(); lineNo++ {
			line := scanner.Text()
			if re.MatchString(line) == *invert {
				continue
			}
			matches++
			if *quiet || *countOnly {
				continue
			}
			if *lineNums {
				fmt.Fprintf(ec.Stdout, "%d:%s\n", lineNo, line)
			} else {
				fmt.Fprintln(ec.Stdout, line)
			}
		}
		if err := scanner.Err(); err != nil {
			return ec.Errorf(interp.IOError, "%v", err)
		}
		if *countOnly {
			fmt.Fprintln(ec.Stdout, matches)
		}
		if matches == 0 {
			return 1
		}
		return 0
	})
}
