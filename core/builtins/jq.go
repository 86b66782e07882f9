package builtins

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/itchyny/gojq"

	"github.com/indielab/kaish/core/interp"
	"github.com/indielab/kaish/core/tools"
)

// Jq runs a jq query over JSON read from stdin or a file argument and
// prints each produced value as a JSON line.
func Jq(ec *tools.ExecContext) int {
	cmd := &Command{
		Use:   "jq [-r] QUERY [FILE]",
		Short: "Transform JSON input with a jq query.",
	}
	raw := cmd.Flags().Bool('r', "output raw strings, not JSON quoted")

	return cmd.Run(ec, func(args []string) int {
		if len(args) == 0 {
			return ec.Errorf(interp.ArgumentError, "missing query")
		}
		query, err := gojq.Parse(args[0])
		if err != nil {
			return ec.Errorf(interp.ArgumentError, "invalid query: %v", err)
		}

		var data []byte
		if len(args) > 1 {
			if data, err = ec.FS.Read(ec.Ctx, resolvePath(ec, args[1])); err != nil {
				return ec.Errorf(interp.IOError, "%v", err)
			}
		} else if data, err = io.ReadAll(ec.Stdin); err != nil {
			return ec.Errorf(interp.IOError, "%v", err)
		}

		var input interface{}
		if err := json.Unmarshal(data, &input); err != nil {
			return ec.Errorf(interp.TypeError, "input is not JSON: %v", err)
		}

		iter := query.RunWithContext(ec.Ctx, input)
		for {
			v, ok := iter.Next()
			if !ok {
				break
			}
			if err, isErr := v.(error); isErr {
				return ec.Errorf(interp.ToolError, "%v", err)
			}
			if s, isStr := v.(string); isStr && *raw {
				fmt.Fprintln(ec.Stdout, s)
				continue
			}
			enc, err := json.Marshal(v)
			if err != nil {
				return ec.Errorf(interp.InternalError, "%v", err)
			}
			fmt.Fprintln(ec.Stdout, string(enc))
		}
		return 0
	})
}
