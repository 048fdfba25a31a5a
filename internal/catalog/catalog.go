// Package catalog loads workflow definitions from a YAML file and seeds
// them into the store on first start.
package catalog

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/arostrup/helmsman/internal/model"
	"github.com/arostrup/helmsman/internal/store"
)

// Entry is one workflow in the catalog file.
type Entry struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Definition  string `yaml:"definition"`
}

type catalogFile struct {
	Workflows []Entry `yaml:"workflows"`
}

// Load parses the catalog file at path.
func Load(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(f.Workflows) == 0 {
		return nil, fmt.Errorf("catalog %s defines no workflows", path)
	}

	seen := make(map[string]bool, len(f.Workflows))
	for i, e := range f.Workflows {
		if e.Name == "" {
			return nil, fmt.Errorf("catalog entry %d has no name", i)
		}
		if seen[e.Name] {
			return nil, fmt.Errorf("catalog entry %q appears twice", e.Name)
		}
		seen[e.Name] = true
	}
	return f.Workflows, nil
}

// Default returns the built-in catalog used when no file is configured.
func Default() []Entry {
	return []Entry{
		{
			Name:        "rnaseq",
			Description: "RNA sequencing analysis: quality control, alignment, and differential expression.",
			Definition: `params {
    reads  = 's3://sample-data/reads/*.fastq.gz'
    genome = 's3://sample-data/reference/genome.fasta'
}
`,
		},
		{
			Name:        "variant-calling",
			Description: "Genomic variant identification from DNA sequencing data.",
			Definition: `params {
    reads     = 's3://sample-data/reads/*.fastq.gz'
    reference = 's3://sample-data/reference/genome.fasta'
}
`,
		},
		{
			Name:        "metagenomics",
			Description: "Taxonomic profiling and assembly of metagenomic samples.",
			Definition: `params {
    reads = 's3://sample-data/reads/*.fastq.gz'
}
`,
		},
	}
}

// Seed inserts the entries into the store if the catalog table is empty.
// Returns the number of workflows created; an already-seeded store is left
// untouched.
func Seed(ctx context.Context, s store.Store, entries []Entry) (int, error) {
	n, err := s.CountWorkflows(ctx)
	if err != nil {
		return 0, fmt.Errorf("count workflows: %w", err)
	}
	if n > 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	for _, e := range entries {
		wf := &model.Workflow{
			ID:          model.NewWorkflowID(),
			Name:        e.Name,
			Description: e.Description,
			Definition:  e.Definition,
			CreatedAt:   now,
		}
		if err := s.CreateWorkflow(ctx, wf); err != nil {
			return 0, fmt.Errorf("seed workflow %q: %w", e.Name, err)
		}
	}
	return len(entries), nil
}
