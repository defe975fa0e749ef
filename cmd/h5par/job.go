package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/scigolib/h5par/comm"
)

// Job describes a simulated checkpoint: every rank writes its block of
// each field into one shared container.
type Job struct {
	Output string    `yaml:"output"`
	Ranks  int       `yaml:"ranks"`
	Group  string    `yaml:"group"`
	Step   int32     `yaml:"step"`
	Time   float64   `yaml:"time"`
	Info   comm.Info `yaml:"info"`
	Fields []Field   `yaml:"fields"`
}

// Field is one distributed dataset of a checkpoint.
type Field struct {
	Name   string  `yaml:"name"`
	Length uint64  `yaml:"length"`
	Type   string  `yaml:"type"`
	Scale  float64 `yaml:"scale"`
}

var fieldTypes = map[string]bool{
	"float32":    true,
	"float64":    true,
	"int32":      true,
	"complex128": true,
}

// LoadJob reads and validates a YAML job file.
func LoadJob(path string) (*Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read job: %w", err)
	}
	return ParseJob(data)
}

// ParseJob decodes a job, fills defaults and validates it.
func ParseJob(data []byte) (*Job, error) {
	var job Job
	if err := yaml.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("parse job: %w", err)
	}
	job.applyDefaults()
	if err := job.Validate(); err != nil {
		return nil, err
	}
	return &job, nil
}

func (j *Job) applyDefaults() {
	if j.Ranks == 0 {
		j.Ranks = 1
	}
	for i := range j.Fields {
		if j.Fields[i].Type == "" {
			j.Fields[i].Type = "float64"
		}
		if j.Fields[i].Scale == 0 {
			j.Fields[i].Scale = 1
		}
	}
}

// Validate reports the first problem with the job.
func (j *Job) Validate() error {
	if j.Output == "" {
		return fmt.Errorf("job: output is required")
	}
	if j.Ranks < 1 {
		return fmt.Errorf("job: ranks must be positive, got %d", j.Ranks)
	}
	if len(j.Fields) == 0 {
		return fmt.Errorf("job: at least one field is required")
	}
	seen := make(map[string]bool, len(j.Fields))
	for _, f := range j.Fields {
		switch {
		case f.Name == "":
			return fmt.Errorf("job: field without a name")
		case seen[f.Name]:
			return fmt.Errorf("job: duplicate field %q", f.Name)
		case f.Length == 0:
			return fmt.Errorf("job: field %q has zero length", f.Name)
		case !fieldTypes[f.Type]:
			return fmt.Errorf("job: field %q has unsupported type %q", f.Name, f.Type)
		}
		seen[f.Name] = true
	}
	return nil
}

// share returns the block of [0, length) owned by rank out of ranks.
// The first length%ranks ranks hold one extra element; ranks past the
// end of a short field get an empty block.
func share(length uint64, ranks, rank int) (offset, count uint64) {
	n := uint64(ranks)
	r := uint64(rank)
	base, extra := length/n, length%n
	if r < extra {
		return r * (base + 1), base + 1
	}
	return extra*(base+1) + (r-extra)*base, base
}
