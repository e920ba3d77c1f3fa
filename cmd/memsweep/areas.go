package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/memsweep/pkg/memsweep/capability"
	"github.com/jamesainslie/memsweep/pkg/memsweep/output"
)

var areasCmd = &cobra.Command{
	Use:   "areas",
	Short: "List memory areas",
	Long: `List every memory area in the order an optimization visits it, with
its label, whether this host supports it and the privilege it needs.`,
	Args: cobra.NoArgs,
	RunE: runAreas,
}

func init() {
	rootCmd.AddCommand(areasCmd)
}

func runAreas(_ *cobra.Command, _ []string) error {
	infos := output.DescribeAreas(capability.Detect())

	if !isPrettyOutput() {
		return printReport(&output.Report{Areas: infos})
	}

	fmt.Print(formatAreaTable(infos))
	return nil
}

// formatAreaTable renders infos as aligned columns.
func formatAreaTable(infos []output.AreaInfo) string {
	header := []string{"NAME", "LABEL", "SUPPORTED", "PRIVILEGE", "MINIMUM"}
	rows := [][]string{header}
	for _, info := range infos {
		supported := "no"
		if info.Supported {
			supported = "yes"
		}
		privilege := info.Privilege
		if privilege == "" {
			privilege = "-"
		}
		rows = append(rows, []string{info.Name, info.Label, supported, privilege, info.Minimum})
	}

	widths := make([]int, len(header))
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], len(cell))
		}
	}

	var b strings.Builder
	for _, row := range rows {
		for i, cell := range row {
			if i == len(row)-1 {
				b.WriteString(cell)
				break
			}
			fmt.Fprintf(&b, "%-*s  ", widths[i], cell)
		}
		b.WriteString("\n")
	}
	return b.String()
}
