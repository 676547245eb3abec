// Command mock-container masquerades as Apple's `container` CLI. Point the
// daemon's --cli-path at this binary to develop without the real tool.
//
// State (units, images and the system service flag) is kept in a YAML file
// named by MOCK_CONTAINER_STATE so successive invocations see each other's
// changes. While the system service is stopped every command except
// `system start` fails the way the real CLI does.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cfilipov/containerdeck/internal/tool"
)

const mockVersion = "0.4.1"

var errNotRunning = errors.New("XPC connection error: Connection invalid")

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, statePath()))
}

// run executes one CLI invocation against the state file and returns the
// exit code.
func run(args []string, out io.Writer, path string) int {
	st, err := loadState(path)
	if err != nil {
		fmt.Fprintln(out, "Error:", err)
		return 1
	}

	root := newRootCmd(st, out)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(out, "Error:", err)
		return 1
	}

	if err := saveState(path, st); err != nil {
		fmt.Fprintln(out, "Error:", err)
		return 1
	}
	return 0
}

func newRootCmd(st *mockState, out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "container",
		Short:         "Mock of the container CLI",
		Version:       mockVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations["offline"] == "true" || st.Running {
				return nil
			}
			return errNotRunning
		},
	}
	root.SetVersionTemplate("container CLI version {{.Version}} (build: release, commit: mock)\n")
	root.SetOut(out)
	root.SetErr(out)

	root.AddCommand(
		listCmd(st, out),
		lifecycleCmd(st, out, "start", "Start units", startUnit),
		lifecycleCmd(st, out, "stop", "Stop units", stopUnit),
		lifecycleCmd(st, out, "kill", "Kill units", stopUnit),
		deleteCmd(st, out),
		imageCmd(st, out),
		systemCmd(st, out),
	)
	return root
}

func listCmd(st *mockState, out io.Writer) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List units",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tIMAGE\tOS\tARCH\tSTATE\tADDR")
			for _, u := range st.Units {
				if !all && !u.Running() {
					continue
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", u.ID, u.Image, u.OS, u.Arch, u.State, u.Addr)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "Include stopped units")
	return cmd
}

func startUnit(st *mockState, u *tool.Unit) {
	if u.Running() {
		return
	}
	u.State = tool.StateRunning
	u.Addr = st.nextAddr()
}

func stopUnit(_ *mockState, u *tool.Unit) {
	u.State = tool.StateStopped
	u.Addr = ""
}

func lifecycleCmd(st *mockState, out io.Writer, use, short string, apply func(*mockState, *tool.Unit)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>...",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, id := range args {
				u := st.unit(id)
				if u == nil {
					return fmt.Errorf("container %q not found", id)
				}
				apply(st, u)
				fmt.Fprintln(out, id)
			}
			return nil
		},
	}
}

func deleteCmd(st *mockState, out io.Writer) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:     "delete [<id>...]",
		Aliases: []string{"rm"},
		Short:   "Delete stopped units",
		RunE: func(cmd *cobra.Command, args []string) error {
			if all {
				// Running units survive --all; nothing is printed.
				st.Units = slices.DeleteFunc(st.Units, func(u tool.Unit) bool { return !u.Running() })
				return nil
			}
			if len(args) == 0 {
				return errors.New("specify at least one container or --all")
			}
			for _, id := range args {
				u := st.unit(id)
				if u == nil {
					return fmt.Errorf("container %q not found", id)
				}
				if u.Running() {
					return fmt.Errorf("container %q is running", id)
				}
				st.Units = slices.DeleteFunc(st.Units, func(x tool.Unit) bool { return x.ID == id })
				fmt.Fprintln(out, id)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "Delete every stopped unit")
	return cmd
}

func imageCmd(st *mockState, out io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "image",
		Aliases: []string{"images", "i"},
		Short:   "Manage images",
	}

	list := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List images",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tTAG\tDIGEST")
			for _, img := range st.Images {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", img.Name, img.Tag, img.Digest)
			}
			return tw.Flush()
		},
	}

	var all bool
	del := &cobra.Command{
		Use:     "delete [<name:tag>...]",
		Aliases: []string{"rm"},
		Short:   "Delete images",
		RunE: func(cmd *cobra.Command, args []string) error {
			if all {
				// In-use images survive --all; nothing is printed.
				st.Images = slices.DeleteFunc(st.Images, func(img tool.Image) bool { return !st.imageInUse(img) })
				return nil
			}
			if len(args) == 0 {
				return errors.New("specify at least one image or --all")
			}
			for _, ref := range args {
				i := slices.IndexFunc(st.Images, func(img tool.Image) bool { return img.Reference() == ref })
				if i < 0 {
					return fmt.Errorf("image %q not found", ref)
				}
				if st.imageInUse(st.Images[i]) {
					return fmt.Errorf("image %q is in use", ref)
				}
				st.Images = slices.Delete(st.Images, i, i+1)
				fmt.Fprintln(out, ref)
			}
			return nil
		},
	}
	del.Flags().BoolVarP(&all, "all", "a", false, "Delete every unused image")

	prune := &cobra.Command{
		Use:   "prune",
		Short: "Remove unused images",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var kept []tool.Image
			for _, img := range st.Images {
				if st.imageInUse(img) {
					kept = append(kept, img)
					continue
				}
				fmt.Fprintln(out, "Deleted", img.Reference())
			}
			st.Images = kept
			return nil
		},
	}

	cmd.AddCommand(list, del, prune)
	return cmd
}

func systemCmd(st *mockState, out io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "system",
		Short: "Manage the system service",
	}

	start := &cobra.Command{
		Use:         "start",
		Short:       "Start the system service",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"offline": "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			if st.Running {
				fmt.Fprintln(out, "Verifying apiserver is running...")
				return nil
			}
			st.Running = true
			fmt.Fprintln(out, "Launching apiserver...")
			fmt.Fprintln(out, "Verifying apiserver is running...")
			return nil
		},
	}

	stop := &cobra.Command{
		Use:   "stop",
		Short: "Stop the system service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for i := range st.Units {
				stopUnit(st, &st.Units[i])
			}
			st.Running = false
			fmt.Fprintln(out, "Stopping all containers...")
			return nil
		},
	}

	cmd.AddCommand(start, stop)
	return cmd
}
