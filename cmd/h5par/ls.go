package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/scigolib/h5par"
)

var lsCmd = &cobra.Command{
	Use:   "ls FILE",
	Short: "Print the group and dataset tree of a container.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return List(cmd.OutOrStdout(), args[0], slog.Default())
	},
}

// stamps are the root attributes written by checkpoint.
var stamps = []string{"run_id", "step", "time", "ranks"}

// List writes an indented tree of path to w.
func List(w io.Writer, path string, logger *slog.Logger) (err error) {
	f, err := h5par.Open(path, h5par.WithLogger(logger))
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, f.Close()) }()

	fmt.Fprintln(w, "/")
	if err := listStamps(w, f); err != nil {
		return err
	}
	return listGroup(w, &f.Group, 1)
}

func listStamps(w io.Writer, f *h5par.File) error {
	for _, name := range stamps {
		ok, err := h5par.HasAttribute(f, name)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		var v any
		switch name {
		case "run_id":
			v, err = h5par.ReadAttribute[string](f, name)
		case "time":
			v, err = h5par.ReadAttribute[float64](f, name)
		default:
			v, err = h5par.ReadAttribute[int32](f, name)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "  @%s = %v\n", name, v)
	}
	return nil
}

func listGroup(w io.Writer, g *h5par.Group, depth int) error {
	names, err := g.Children()
	if err != nil {
		return err
	}
	indent := strings.Repeat("  ", depth)
	for _, name := range names {
		info, err := g.Stat(name)
		if err != nil {
			return err
		}
		if info.Group {
			fmt.Fprintf(w, "%s%s/\n", indent, name)
			child, err := g.OpenGroup(name)
			if err != nil {
				return err
			}
			if err := errors.Join(listGroup(w, child, depth+1), child.Close()); err != nil {
				return err
			}
			continue
		}
		typ := "opaque"
		if info.Known {
			typ = info.Type.String()
		}
		fmt.Fprintf(w, "%s%s %s %v\n", indent, name, typ, info.Dims)
	}
	return nil
}
