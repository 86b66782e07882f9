package builtins

import (
	"github.com/indielab/kaish/core/interp"
	"github.com/indielab/kaish/core/tools"
	"github.com/indielab/kaish/core/vfs"
)

// MountTool attaches a backend to a path prefix.
func MountTool(ec *tools.ExecContext) int {
	cmd := &Command{
		Use:   "mount [--ro] PATH [type=memory|local] [spec=DIR]",
		Short: "Mount a filesystem backend at a path.",
	}
	readOnly := cmd.Flags().BoolLong("ro", 'r', "mount read-only")

	return cmd.Run(ec, func(args []string) int {
		if len(args) != 1 {
			return ec.Errorf(interp.ArgumentError, "expected exactly one path")
		}
		mtype := ec.Inv.NamedOr("type", interp.Str("memory")).Text()
		spec := ec.Inv.NamedOr("spec", interp.Str("")).Text()

		m := &vfs.Mount{
			Path:     resolvePath(ec, args[0]),
			Type:     mtype,
			Spec:     spec,
			ReadOnly: *readOnly,
		}
		switch mtype {
		case "memory":
			m.Backend = vfs.NewMemory()
		case "local":
			if spec == "" {
				return ec.Errorf(interp.ArgumentError, "local mounts need spec=DIR")
			}
			m.Backend = vfs.NewLocal(spec)
		default:
			return ec.Errorf(interp.ArgumentError, "unknown mount type %q", mtype)
		}

		if err := ec.Kernel.AddMount(ec.Ctx, m); err != nil {
			return ec.Errorf(interp.IOError, "%v", err)
		}
		return 0
	})
}

// Unmount detaches a mounted backend.
func Unmount(ec *tools.ExecContext) int {
	cmd := &Command{
		Use:   "unmount PATH",
		Short: "Unmount a filesystem backend.",
	}
	return cmd.Run(ec, func(args []string) int {
		if len(args) != 1 {
			return ec.Errorf(interp.ArgumentError, "expected exactly one path")
		}
		if err := ec.Kernel.RemoveMount(ec.Ctx, resolvePath(ec, args[0])); err != nil {
			return ec.Errorf(interp.IOError, "%v", err)
		}
		return 0
	})
}

// Scatter and Gather are pipeline stage markers; the scheduler intercepts
// them before dispatch, so invoking one directly is an error.
func Scatter(ec *tools.ExecContext) int {
	return ec.Errorf(interp.ArgumentError, "scatter is only valid as a pipeline stage")
}

// Gather terminates a scatter fan-out; see Scatter.
func Gather(ec *tools.ExecContext) int {
	return ec.Errorf(interp.ArgumentError, "gather is only valid as a pipeline stage")
}
