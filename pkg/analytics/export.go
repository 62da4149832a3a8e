package analytics

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// ExportXLSX renders a report as a workbook with Summary, Funnel, Steps and
// Recommendations sheets
func ExportXLSX(report *Report) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create style: %w", err)
	}

	if err := f.SetSheetName("Sheet1", "Summary"); err != nil {
		return nil, fmt.Errorf("failed to rename sheet: %w", err)
	}
	summary := [][]interface{}{
		{"Metric", "Value"},
		{"Sequence ID", report.SequenceID},
		{"Sequence", report.SequenceName},
		{"Executions", report.TotalExecutions},
		{"Completed", report.Outcome.Completed},
		{"Stopped", report.Outcome.Stopped},
		{"Paid", report.Outcome.Paid},
		{"Errored", report.Outcome.Errored},
		{"Active", report.Outcome.Active},
		{"Payment rate %", report.Outcome.PaymentRate},
		{"Median send lag (h)", report.Timing.SendLag.MedianHours},
		{"Median time to open (h)", report.Timing.TimeToOpen.MedianHours},
		{"Best open hour", report.Timing.BestOpenHour},
	}
	if err := writeSheet(f, "Summary", summary, headerStyle); err != nil {
		return nil, err
	}

	funnel := [][]interface{}{{"Stage", "Executions", "Percentage", "Conversion from previous", "Drop-off", "Cumulative drop-off %"}}
	for _, s := range report.Funnel {
		funnel = append(funnel, []interface{}{s.Name, s.ExecutionCount, s.Percentage, s.ConversionFromPrevious, s.DropoffCount, s.DropoffRate})
	}
	if err := writeSheet(f, "Funnel", funnel, headerStyle); err != nil {
		return nil, err
	}

	steps := [][]interface{}{{"Step", "Attempted", "Sent", "Delivered", "Opened", "Clicked", "Responded", "Bounced", "Failed", "Retries", "Open %", "Click %", "Response %", "Bounce %"}}
	for _, m := range report.Steps {
		steps = append(steps, []interface{}{
			m.StepNumber, m.Attempted, m.Sent, m.Delivered, m.Opened, m.Clicked, m.Responded,
			m.Bounced, m.Failed, m.Retries, m.OpenRate, m.ClickRate, m.ResponseRate, m.BounceRate,
		})
	}
	if err := writeSheet(f, "Steps", steps, headerStyle); err != nil {
		return nil, err
	}

	recs := [][]interface{}{{"Step", "Metric", "Recommendation"}}
	for _, r := range report.Recommendations {
		recs = append(recs, []interface{}{r.StepNumber, r.Metric, r.Message})
	}
	if err := writeSheet(f, "Recommendations", recs, headerStyle); err != nil {
		return nil, err
	}

	f.SetActiveSheet(0)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSheet(f *excelize.File, sheet string, rows [][]interface{}, headerStyle int) error {
	if idx, _ := f.GetSheetIndex(sheet); idx < 0 {
		if _, err := f.NewSheet(sheet); err != nil {
			return fmt.Errorf("failed to create sheet: %w", err)
		}
	}

	for r, row := range rows {
		for c, v := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return fmt.Errorf("failed to address cell: %w", err)
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return fmt.Errorf("failed to write %s!%s: %w", sheet, cell, err)
			}
		}
	}

	if len(rows) > 0 && len(rows[0]) > 0 {
		last, _ := excelize.CoordinatesToCellName(len(rows[0]), 1)
		if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
			return fmt.Errorf("failed to style header: %w", err)
		}
		lastCol, _ := excelize.ColumnNumberToName(len(rows[0]))
		if err := f.SetColWidth(sheet, "A", lastCol, 18); err != nil {
			return fmt.Errorf("failed to size columns: %w", err)
		}
	}
	return nil
}
