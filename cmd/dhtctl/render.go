package main

import (
	"fmt"
	"io"
	"sort"

	dhtring "go-dhtring"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
)

var (
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
	errColor  = color.New(color.FgRed, color.Bold)
	headColor = color.New(color.FgCyan, color.Bold)
)

// renderNodes prints the ring members in position order. unhealthy may be nil.
func renderNodes(out io.Writer, nodes []dhtring.NodeInfo, unhealthy map[string]error) {
	var nodeTable = table.NewWriter()
	nodeTable.SetOutputMirror(out)

	nodeTable.AppendHeader(table.Row{"Name", "Address", "Position", "Keys", "Status"})
	for _, node := range nodes {
		var status = "ok"
		if unhealthy == nil {
			status = "-"
		} else if err, down := unhealthy[node.Name]; down {
			status = fmt.Sprintf("down: %v", err)
		}
		nodeTable.AppendRow(table.Row{node.Name, node.Address.String(), node.Position, node.Keys, status})
	}
	if len(nodes) == 0 {
		nodeTable.AppendRow(table.Row{"(empty ring)", "", "", "", ""})
	}

	nodeTable.SetStyle(table.StyleDefault)
	nodeTable.Render()
}

func renderBalance(out io.Writer, balance dhtring.Balance) {
	var balanceTable = table.NewWriter()
	balanceTable.SetOutputMirror(out)

	balanceTable.AppendHeader(table.Row{"Nodes", "Entries", "Min", "Max", "Mean", "StdDev"})
	balanceTable.AppendRow(table.Row{
		balance.Nodes,
		balance.Entries,
		balance.Min,
		balance.Max,
		fmt.Sprintf("%.2f", balance.Mean),
		fmt.Sprintf("%.2f", balance.StdDev),
	})

	balanceTable.SetStyle(table.StyleDefault)
	balanceTable.Render()
}

func renderHealth(out io.Writer, nodes []dhtring.NodeInfo, unhealthy map[string]error) {
	if len(unhealthy) == 0 {
		okColor.Fprintf(out, "all %d nodes healthy\n", len(nodes))
		return
	}

	var names = make([]string, 0, len(unhealthy))
	for name := range unhealthy {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		errColor.Fprintf(out, "%s: %v\n", name, unhealthy[name])
	}
}
