package controller

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	m "gooze.dev/pkg/luacover/internal/model"
)

const untrackedLabel = "untracked"

// Percentages at or above these bounds are painted green or yellow.
const (
	goodPercent = 80.0
	fairPercent = 50.0
)

func renderSnapshotTable(snap m.CoverageSnapshot, mode StartMode) string {
	if mode == ModeAnalyze {
		return renderAnalyzeTable(snap)
	}

	return renderReportTable(snap)
}

func renderReportTable(snap m.CoverageSnapshot) string {
	var buf bytes.Buffer

	table := tablewriter.NewWriter(&buf)
	table.SetHeader([]string{"Path", "Lines", "Executed", "Functions", "Blocks", "Conditions"})
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetAutoFormatHeaders(false)
	table.SetColumnAlignment([]int{
		tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT,
		tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT,
	})

	for _, file := range snap.Files {
		if !file.Tracked {
			table.Append([]string{
				string(file.Path), formatCounts(file.Lines), formatExecuted(file.Lines),
				untrackedLabel, "-", "-",
			})

			continue
		}

		table.Append([]string{
			string(file.Path),
			formatCounts(file.Lines),
			formatExecuted(file.Lines),
			formatCounts(file.Functions),
			formatCounts(file.Blocks),
			formatCounts(file.Conditions),
		})
	}

	table.SetFooter([]string{
		fmt.Sprintf("Total Files %d", len(snap.Files)),
		formatCounts(snap.Lines),
		formatExecuted(snap.Lines),
		formatCounts(snap.Functions),
		formatCounts(snap.Blocks),
		formatCounts(snap.Conditions),
	})

	table.Render()

	return buf.String()
}

func renderAnalyzeTable(snap m.CoverageSnapshot) string {
	var buf bytes.Buffer

	table := tablewriter.NewWriter(&buf)
	table.SetHeader([]string{"Path", "Lines", "Functions", "Blocks", "Conditions", "Status"})
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetAutoFormatHeaders(false)
	table.SetColumnAlignment([]int{
		tablewriter.ALIGN_LEFT, tablewriter.ALIGN_CENTER, tablewriter.ALIGN_CENTER,
		tablewriter.ALIGN_CENTER, tablewriter.ALIGN_CENTER, tablewriter.ALIGN_LEFT,
	})

	for _, file := range snap.Files {
		status := "tracked"
		if !file.Tracked {
			status = untrackedLabel
		}

		table.Append([]string{
			string(file.Path),
			strconv.Itoa(file.Lines.Total),
			strconv.Itoa(file.Functions.Total),
			strconv.Itoa(file.Blocks.Total),
			strconv.Itoa(file.Conditions.Total),
			status,
		})
	}

	table.SetFooter([]string{
		fmt.Sprintf("Total Files %d", len(snap.Files)),
		strconv.Itoa(snap.Lines.Total),
		strconv.Itoa(snap.Functions.Total),
		strconv.Itoa(snap.Blocks.Total),
		strconv.Itoa(snap.Conditions.Total),
		"",
	})

	table.Render()

	return buf.String()
}

func formatCounts(c m.Counts) string {
	if c.Total == 0 {
		return "-"
	}

	return fmt.Sprintf("%s (%d/%d)", paintPercent(c.Percent), c.Covered, c.Total)
}

func formatExecuted(c m.Counts) string {
	if c.Total == 0 {
		return "-"
	}

	return paintPercent(c.ExecutedPercent)
}

func paintPercent(p float64) string {
	text := fmt.Sprintf("%.1f%%", p)

	switch {
	case p >= goodPercent:
		return color.GreenString(text)
	case p >= fairPercent:
		return color.YellowString(text)
	default:
		return color.RedString(text)
	}
}
