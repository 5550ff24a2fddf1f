package render

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/vk/wormhole/internal/ctxlog"
)

var dotEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func dotQuote(s string) string {
	return `"` + dotEscaper.Replace(s) + `"`
}

// WriteDOT writes f as an undirected Graphviz document. The current system
// is filled; pinned nodes carry a fixed position.
func WriteDOT(w io.Writer, f Frame) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "graph wormholes {")
	fmt.Fprintln(bw, "\tnode [shape=circle];")

	for _, n := range f.Nodes {
		var attrs []string
		if f.Current != "" && n.Name == f.Current {
			attrs = append(attrs, "style=filled", "fillcolor=gold")
		}
		if l := n.Layout(); l.Fixed {
			pos := strconv.FormatFloat(l.X, 'g', -1, 64) + "," + strconv.FormatFloat(l.Y, 'g', -1, 64) + "!"
			attrs = append(attrs, "pos="+dotQuote(pos))
		}
		if len(attrs) == 0 {
			fmt.Fprintf(bw, "\t%s;\n", dotQuote(n.Name))
			continue
		}
		fmt.Fprintf(bw, "\t%s [%s];\n", dotQuote(n.Name), strings.Join(attrs, ", "))
	}
	for _, l := range f.Links {
		fmt.Fprintf(bw, "\t%s -- %s;\n", dotQuote(l.Source.Name), dotQuote(l.Target.Name))
	}

	fmt.Fprintln(bw, "}")
	return bw.Flush()
}

// DOT renders frames into a Graphviz file. Each write replaces the file
// atomically, so a viewer polling the path never reads a partial graph.
type DOT struct {
	Path string
}

// NewDOT creates a DOT renderer writing to path.
func NewDOT(path string) *DOT {
	return &DOT{Path: path}
}

// Clear implements Renderer by writing an empty graph.
func (d *DOT) Clear(ctx context.Context) error {
	return d.write(ctx, Frame{})
}

// Draw implements Renderer.
func (d *DOT) Draw(ctx context.Context, f Frame) error {
	return d.write(ctx, f)
}

func (d *DOT) write(ctx context.Context, f Frame) error {
	var buf bytes.Buffer
	if err := WriteDOT(&buf, f); err != nil {
		return fmt.Errorf("failed to format DOT frame: %w", err)
	}

	dir := filepath.Dir(d.Path)
	tmp, err := os.CreateTemp(dir, ".wormhole-*.dot")
	if err != nil {
		return fmt.Errorf("failed to create temp file in %s: %w", dir, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write DOT frame: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close DOT frame: %w", err)
	}
	if err := os.Rename(tmp.Name(), d.Path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", d.Path, err)
	}

	ctxlog.FromContext(ctx).Debug("DOT frame written.", "path", d.Path, "systems", len(f.Nodes), "links", len(f.Links))
	return nil
}
