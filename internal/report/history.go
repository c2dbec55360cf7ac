// Package report exports workflow audit data as spreadsheets
package report

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/orbitreg/compliance-workflow/internal/domain/entity"
)

const (
	// HistorySheet lists every transition attempt of the instance
	HistorySheet = "History"
	// InstanceSheet holds the instance header and its current context
	InstanceSheet = "Instance"

	// ContentType is the MIME type of the generated workbook
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var historyHeader = []interface{}{
	"#", "Timestamp", "Event", "From", "To", "Actor", "Auto", "Success", "Error", "Event ID",
}

// WriteHistory writes a workbook describing instance and its transition
// history to w
func WriteHistory(w io.Writer, instance *entity.WorkflowInstance, history []*entity.TransitionHistory) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", HistorySheet); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}
	if _, err := f.NewSheet(InstanceSheet); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	if err := writeHistorySheet(f, bold, history); err != nil {
		return err
	}
	if err := writeInstanceSheet(f, bold, instance); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeHistorySheet(f *excelize.File, headerStyle int, history []*entity.TransitionHistory) error {
	if err := f.SetSheetRow(HistorySheet, "A1", &historyHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if err := f.SetCellStyle(HistorySheet, "A1", "J1", headerStyle); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}

	for i, h := range history {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []interface{}{
			i + 1,
			h.Timestamp.UTC().Format(time.RFC3339),
			h.Event,
			h.FromState,
			h.ToState,
			h.Actor,
			h.Auto,
			h.Success,
			h.Error,
			h.EventID,
		}
		if err := f.SetSheetRow(HistorySheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write history row %d: %w", i+1, err)
		}
	}

	if err := f.SetColWidth(HistorySheet, "B", "B", 22); err != nil {
		return err
	}
	if err := f.SetColWidth(HistorySheet, "I", "J", 40); err != nil {
		return err
	}
	return f.SetPanes(HistorySheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

func writeInstanceSheet(f *excelize.File, headerStyle int, instance *entity.WorkflowInstance) error {
	rows := [][]interface{}{
		{"Instance ID", instance.ID},
		{"Definition", instance.DefinitionID},
		{"State", instance.State},
		{"Version", instance.Version},
		{"Created", instance.CreatedAt.UTC().Format(time.RFC3339)},
		{"Updated", instance.UpdatedAt.UTC().Format(time.RFC3339)},
		{},
		{"Key", "Value"},
	}

	keys := make([]string, 0, len(instance.Data))
	for k := range instance.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		rows = append(rows, []interface{}{k, fmt.Sprint(instance.Data[k])})
	}

	for i := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(InstanceSheet, cell, &rows[i]); err != nil {
			return fmt.Errorf("failed to write instance row: %w", err)
		}
	}

	if err := f.SetCellStyle(InstanceSheet, "A1", "A6", headerStyle); err != nil {
		return err
	}
	if err := f.SetCellStyle(InstanceSheet, "A8", "B8", headerStyle); err != nil {
		return err
	}
	return f.SetColWidth(InstanceSheet, "A", "B", 28)
}
