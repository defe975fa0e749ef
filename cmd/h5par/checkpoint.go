package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/scigolib/h5par"
	"github.com/scigolib/h5par/comm"
)

var (
	jobPath     string
	showMetrics bool
)

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Write a simulated multi-rank checkpoint described by a YAML job.",
	Long: `checkpoint runs the job's ranks in-process. Each rank writes its block
of every field into one shared container; ranks without a share of a
field still take part in the write.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		job, err := LoadJob(jobPath)
		if err != nil {
			return err
		}
		runID, err := RunCheckpoint(job, slog.Default())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "wrote %s (run_id %s, %d ranks, %d fields)\n", job.Output, runID, job.Ranks, len(job.Fields))
		if showMetrics {
			return printMetrics(out, prometheus.DefaultGatherer)
		}
		return nil
	},
}

func init() {
	checkpointCmd.Flags().StringVar(&jobPath, "config", "job.yaml", "path to the YAML job file")
	checkpointCmd.Flags().BoolVar(&showMetrics, "metrics", false, "print h5par metrics after the run")
}

// RunCheckpoint writes the job's container and returns the run ID stamped
// on its root group.
func RunCheckpoint(job *Job, logger *slog.Logger) (string, error) {
	runID := uuid.NewString()
	logger.Info("checkpoint starting", "output", job.Output, "ranks", job.Ranks, "run_id", runID)

	err := comm.Run(job.Ranks, func(c comm.Communicator) error {
		return writeRank(job, runID, c, logger.With("rank", c.Rank()))
	})
	if err != nil {
		return "", fmt.Errorf("checkpoint %s: %w", job.Output, err)
	}
	logger.Info("checkpoint done", "output", job.Output)
	return runID, nil
}

func writeRank(job *Job, runID string, c comm.Communicator, logger *slog.Logger) (err error) {
	f, err := h5par.Create(job.Output, h5par.CreateTruncate,
		h5par.WithCommunicator(c), h5par.WithInfo(job.Info), h5par.WithLogger(logger))
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, f.Close()) }()

	g := &f.Group
	if job.Group != "" {
		if g, err = f.CreateGroup(job.Group); err != nil {
			return err
		}
		defer func() { err = errors.Join(err, g.Close()) }()
	}

	for _, field := range job.Fields {
		if err := writeField(g, field, c); err != nil {
			return fmt.Errorf("field %s: %w", field.Name, err)
		}
	}

	if err := h5par.WriteAttribute(f, "run_id", runID); err != nil {
		return err
	}
	if err := h5par.WriteAttribute(f, "step", job.Step); err != nil {
		return err
	}
	if err := h5par.WriteAttribute(f, "time", job.Time); err != nil {
		return err
	}
	return h5par.WriteAttribute(f, "ranks", int32(c.Size()))
}

// fieldValue is the value stored at global index i of a field; readers can
// recompute it without knowing the decomposition.
func fieldValue(f Field, i uint64) float64 {
	return f.Scale * float64(i)
}

func writeField(g *h5par.Group, f Field, c comm.Communicator) error {
	offset, count := share(f.Length, c.Size(), c.Rank())
	switch f.Type {
	case "float32":
		return writeShare(g, f, offset, count, func(i uint64) float32 { return float32(fieldValue(f, i)) })
	case "int32":
		return writeShare(g, f, offset, count, func(i uint64) int32 { return int32(fieldValue(f, i)) })
	case "complex128":
		return writeShare(g, f, offset, count, func(i uint64) complex128 {
			v := fieldValue(f, i)
			return complex(v, -v)
		})
	default:
		return writeShare(g, f, offset, count, func(i uint64) float64 { return fieldValue(f, i) })
	}
}

func writeShare[T h5par.Element](g *h5par.Group, f Field, offset, count uint64, value func(uint64) T) error {
	d, err := h5par.CreateDataset[T](g, f.Name, []uint64{f.Length})
	if err != nil {
		return err
	}
	data := make([]T, count)
	for i := range data {
		data[i] = value(offset + uint64(i))
	}
	// An empty block still joins the collective write.
	err = d.WriteHyperslab(data, []uint64{offset}, []uint64{count})
	if err == nil {
		err = h5par.WriteAttribute(d, "scale", f.Scale)
	}
	return errors.Join(err, d.Close())
}

func printMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	var lines []string
	for _, mf := range families {
		if !strings.HasPrefix(mf.GetName(), "h5par_") {
			continue
		}
		for _, m := range mf.GetMetric() {
			var labels []string
			for _, lp := range m.GetLabel() {
				labels = append(labels, lp.GetName()+"="+lp.GetValue())
			}
			var v float64
			switch {
			case m.GetCounter() != nil:
				v = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				v = m.GetGauge().GetValue()
			default:
				continue
			}
			lines = append(lines, fmt.Sprintf("%s{%s} %g", mf.GetName(), strings.Join(labels, ","), v))
		}
	}
	sort.Strings(lines)
	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return err
		}
	}
	return nil
}
