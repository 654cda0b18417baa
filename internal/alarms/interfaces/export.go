package interfaces

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	alarmapp "metrics-cloud/internal/alarms/application"
)

// BuildAlarmsXLSX renders the alarm listing as a spreadsheet.
func BuildAlarmsXLSX(views []alarmapp.AlarmView) ([]byte, error) {
	f := excelize.NewFile()
	sheet := "alarms"
	f.SetSheetName("Sheet1", sheet)

	headers := []string{"ID", "State", "Lifecycle State", "Link", "Definition", "Severity", "Metrics", "State Updated", "Created"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, header)
	}

	for i, view := range views {
		row := i + 2
		_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", row), view.ID)
		_ = f.SetCellValue(sheet, fmt.Sprintf("B%d", row), view.State)
		_ = f.SetCellValue(sheet, fmt.Sprintf("C%d", row), stringOrEmpty(view.LifecycleState))
		_ = f.SetCellValue(sheet, fmt.Sprintf("D%d", row), stringOrEmpty(view.Link))
		_ = f.SetCellValue(sheet, fmt.Sprintf("E%d", row), view.AlarmDefinition.Name)
		_ = f.SetCellValue(sheet, fmt.Sprintf("F%d", row), view.AlarmDefinition.Severity)
		_ = f.SetCellValue(sheet, fmt.Sprintf("G%d", row), joinMetrics(view.Metrics))
		_ = f.SetCellValue(sheet, fmt.Sprintf("H%d", row), view.StateUpdatedTimestamp)
		_ = f.SetCellValue(sheet, fmt.Sprintf("I%d", row), view.CreatedTimestamp)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildAlarmsPDF renders the alarm listing as a PDF table.
func BuildAlarmsPDF(views []alarmapp.AlarmView) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Alarms")
	pdf.Ln(10)

	pdf.SetFont("Arial", "B", 9)
	pdf.CellFormat(60, 6, "ID", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "State", "1", 0, "C", false, 0, "")
	pdf.CellFormat(60, 6, "Definition", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Severity", "1", 0, "C", false, 0, "")
	pdf.CellFormat(50, 6, "State Updated", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
	for _, view := range views {
		pdf.CellFormat(60, 6, view.ID, "1", 0, "L", false, 0, "")
		pdf.CellFormat(30, 6, view.State, "1", 0, "C", false, 0, "")
		pdf.CellFormat(60, 6, view.AlarmDefinition.Name, "1", 0, "L", false, 0, "")
		pdf.CellFormat(25, 6, view.AlarmDefinition.Severity, "1", 0, "C", false, 0, "")
		pdf.CellFormat(50, 6, view.StateUpdatedTimestamp, "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func stringOrEmpty(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func joinMetrics(metrics []alarmapp.MetricView) string {
	parts := make([]string, 0, len(metrics))
	for _, metric := range metrics {
		if len(metric.Dimensions) == 0 {
			parts = append(parts, metric.Name)
			continue
		}
		pairs := make([]string, 0, len(metric.Dimensions))
		for key, value := range metric.Dimensions {
			pairs = append(pairs, key+"="+value)
		}
		sort.Strings(pairs)
		parts = append(parts, metric.Name+"{"+strings.Join(pairs, ",")+"}")
	}
	return strings.Join(parts, "; ")
}
