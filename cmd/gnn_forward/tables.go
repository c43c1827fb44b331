package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/graphnets/gnn/pkg/graphdata"
)

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Padding(1, 4, 1, 4)
	headerRowStyle = lipgloss.NewStyle().Reverse(true).
			Padding(0, 2, 0, 2).Align(lipgloss.Center)
	oddRowStyle = lipgloss.NewStyle().Faint(false).
			PaddingLeft(1).PaddingRight(1)
	evenRowStyle = lipgloss.NewStyle().Faint(true).
			PaddingLeft(1).PaddingRight(1)
)

// newPlainTable returns a table with alternating row styles, first column right aligned.
func newPlainTable() *lgtable.Table {
	return lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		StyleFunc(func(row, col int) (s lipgloss.Style) {
			if row == lgtable.HeaderRow {
				return headerRowStyle
			}
			if row%2 == 0 {
				s = oddRowStyle
			} else {
				s = evenRowStyle
			}
			if col == 0 {
				return s.Align(lipgloss.Right)
			}
			return s.Align(lipgloss.Left)
		})
}

func summaryTable(backend backends.Backend, ctx *context.Context, g *graphdata.Graph) *lgtable.Table {
	table := newPlainTable()
	table.Row("backend", backend.Name())
	table.Row("# nodes", humanize.Comma(int64(g.NumNodes)))
	table.Row("# edges", humanize.Comma(int64(g.NumEdges())))
	table.Row("# variables", humanize.Comma(int64(ctx.NumVariables())))
	table.Row("# parameters", humanize.Comma(int64(ctx.NumParameters())))
	table.Row("# bytes", humanize.Bytes(uint64(ctx.Memory())))
	return table
}

// outputTable has one row per node, with its outputs.
func outputTable(output *tensors.Tensor) *lgtable.Table {
	table := newPlainTable()
	outputDim := output.Shape().Dim(-1)
	headers := make([]string, 0, outputDim+1)
	headers = append(headers, "Node")
	for ii := range outputDim {
		headers = append(headers, fmt.Sprintf("out_%d", ii))
	}
	table.Headers(headers...)

	var rows [][]string
	switch values := output.Value().(type) {
	case [][]float32:
		rows = formatRows(values)
	case [][]float64:
		rows = formatRows(values)
	default:
		table.Row("?", fmt.Sprintf("%v", values))
	}
	for _, row := range rows {
		table.Row(row...)
	}
	return table
}

func formatRows[F float32 | float64](values [][]F) [][]string {
	rows := make([][]string, len(values))
	for node, nodeValues := range values {
		row := make([]string, 0, len(nodeValues)+1)
		row = append(row, humanize.Comma(int64(node)))
		for _, v := range nodeValues {
			row = append(row, fmt.Sprintf("%.4f", v))
		}
		rows[node] = row
	}
	return rows
}
