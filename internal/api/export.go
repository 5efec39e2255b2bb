package api

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"kuraberu-broadcast/internal/models"

	"github.com/xuri/excelize/v2"
)

const (
	summarySheet = "ラウンド概要"
	tokenSheet   = "回答状況"
)

var tokenHeaders = []string{"加盟店ID", "加盟店名", "種別", "クリック日時", "結果", "使用済み"}

// roundWorkbook renders a round and its tokens as XLSX. Token values are
// left out so the file cannot be used to click on a franchise's behalf.
func roundWorkbook(round *models.BroadcastRound, tokens []models.ResponseToken) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	summary := [][]interface{}{
		{"配信ID", round.ID},
		{"案件ID", round.CaseID},
		{"配信日時", formatTime(round.CreatedAt)},
		{"状態", statusLabel(round.Status)},
		{"配信数", round.NotifiedCount},
		{"上限社数", round.Quota},
		{"配信済み", round.DeliveredCount},
		{"残り枠", round.RemainingSlots},
		{"紹介料", round.Fee},
		{"申込加盟店", strings.Join(round.Applicants, "、")},
	}
	for i, row := range summary {
		if err := setRow(f, summarySheet, i+1, row); err != nil {
			return nil, err
		}
	}
	if err := f.SetColWidth(summarySheet, "A", "A", 14); err != nil {
		return nil, fmt.Errorf("set column width: %w", err)
	}
	if err := f.SetColWidth(summarySheet, "B", "B", 48); err != nil {
		return nil, fmt.Errorf("set column width: %w", err)
	}

	if _, err := f.NewSheet(tokenSheet); err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}

	header := make([]interface{}, len(tokenHeaders))
	for i, h := range tokenHeaders {
		header[i] = h
	}
	if err := setRow(f, tokenSheet, 1, header); err != nil {
		return nil, err
	}
	last, _ := excelize.CoordinatesToCellName(len(tokenHeaders), 1)
	if err := f.SetCellStyle(tokenSheet, "A1", last, headerStyle); err != nil {
		return nil, fmt.Errorf("set header style: %w", err)
	}

	for i, t := range tokens {
		clicked, outcome := "", ""
		if t.ClickedAt != nil {
			clicked = formatTime(*t.ClickedAt)
		}
		if t.Outcome != nil {
			outcome = string(*t.Outcome)
		}
		consumed := "いいえ"
		if t.Consumed {
			consumed = "はい"
		}
		row := []interface{}{t.FranchiseID, t.FranchiseName, string(t.Action), clicked, outcome, consumed}
		if err := setRow(f, tokenSheet, i+2, row); err != nil {
			return nil, err
		}
	}

	if err := f.SetPanes(tokenSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, fmt.Errorf("freeze panes: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func setRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}

var jst = time.FixedZone("JST", 9*60*60)

func formatTime(t time.Time) string {
	return t.In(jst).Format("2006-01-02 15:04")
}

func statusLabel(s models.RoundStatus) string {
	if s == models.RoundClosed {
		return "終了"
	}
	return "受付中"
}
