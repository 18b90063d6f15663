// gen-diagrams renders the Mermaid graph and the process tree outline of a
// set of parsed documents, for README documentation.
// Run: go run ./cmd/gen-diagrams [documents.json] [overrides.yaml]
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rendis/procmap/internal/diagram"
	"github.com/rendis/procmap/internal/graph"
	"github.com/rendis/procmap/internal/override"
	"github.com/rendis/procmap/internal/tree"
	"github.com/rendis/procmap/pkg/schema"
)

func main() {
	docsPath := filepath.Join("examples", "mortgage", "documents.json")
	overridesPath := filepath.Join("examples", "mortgage", "overrides.yaml")
	if len(os.Args) > 1 {
		docsPath = os.Args[1]
		overridesPath = ""
	}
	if len(os.Args) > 2 {
		overridesPath = os.Args[2]
	}

	if err := run(docsPath, overridesPath, filepath.Join("docs", "assets")); err != nil {
		fmt.Fprintf(os.Stderr, "gen-diagrams: %v\n", err)
		os.Exit(1)
	}
}

func run(docsPath, overridesPath, outDir string) error {
	data, err := os.ReadFile(docsPath)
	if err != nil {
		return err
	}
	var docs []schema.ParsedDocument
	if err := json.Unmarshal(data, &docs); err != nil {
		return fmt.Errorf("parse %s: %w", docsPath, err)
	}

	var table *override.Table
	if overridesPath != "" {
		if table, err = override.LoadTableFile(overridesPath); err != nil {
			return err
		}
	}

	g, err := graph.Build(context.Background(), docs, graph.Options{Overrides: table})
	if err != nil {
		return err
	}
	model, err := diagram.Build(g)
	if err != nil {
		return err
	}
	root, err := tree.Build(g, tree.Options{})
	if err != nil {
		return err
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}

	mermaid := diagram.RenderMermaid(model)
	if err := os.WriteFile(filepath.Join(outDir, "procmap-mermaid.md"), []byte("```mermaid\n"+mermaid+"```\n"), 0o644); err != nil {
		return err
	}
	fmt.Println("=== Mermaid ===")
	fmt.Println(mermaid)

	outline := outlineOf(root)
	if err := os.WriteFile(filepath.Join(outDir, "procmap-tree.txt"), []byte(outline), 0o644); err != nil {
		return err
	}
	fmt.Println("=== Tree ===")
	fmt.Print(outline)
	return nil
}

func outlineOf(root *tree.Node) string {
	var b strings.Builder
	root.Walk(func(n *tree.Node, depth int) bool {
		fmt.Fprintf(&b, "%s%s [%s]", strings.Repeat("  ", depth), n.Label, n.Kind)
		for _, d := range n.Diagnostics {
			fmt.Fprintf(&b, " !%s", d.Code)
		}
		b.WriteString("\n")
		return true
	})
	return b.String()
}
