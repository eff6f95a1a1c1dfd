package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/flowcore/automation-engine/internal/dag"
	"github.com/flowcore/automation-engine/internal/storage"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [path]",
		Short: "Validate a workflow definition JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(args[0])
		},
	}
}

func runValidate(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file %s: %w", path, err)
	}

	var def storage.Definition
	if err := json.Unmarshal(content, &def); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	nodes := make([]dag.Node, len(def.Nodes))
	for i, n := range def.Nodes {
		nodes[i] = dag.Node{ID: n.ID}
	}
	edges := make([]dag.Edge, len(def.Edges))
	for i, e := range def.Edges {
		edges[i] = dag.Edge{From: e.From, To: e.To}
	}

	order, err := dag.Validate(dag.Graph{Nodes: nodes, Edges: edges})
	if err != nil {
		fmt.Fprintf(os.Stderr, "validation failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("workflow is valid. execution order: %v\n", order)
	return nil
}
