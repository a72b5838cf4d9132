// Package export writes leaderboard standings to an XLSX workbook, one
// sheet per league.
package export

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/learnpath/gamify/internal/app/league"
	"github.com/learnpath/gamify/internal/domain"
)

// Source supplies ranked standings for every league.
type Source interface {
	AllStandings(ctx context.Context) (string, map[domain.League][]league.Standing, error)
}

// Header is the first row of every league sheet.
var Header = []any{"Rank", "User", "Weekly XP", "Zone", "Trend", "Previous Rank"}

// Result summarizes a written workbook.
type Result struct {
	WeekID string         `json:"weekId"`
	Rows   map[string]int `json:"rows"`
}

// SheetName is the sheet title used for l.
func SheetName(l domain.League) string {
	s := string(l)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Build renders the standings into a new workbook. The caller closes it.
func Build(ctx context.Context, src Source) (*excelize.File, Result, error) {
	week, all, err := src.AllStandings(ctx)
	if err != nil {
		return nil, Result{}, fmt.Errorf("load standings: %w", err)
	}

	f := excelize.NewFile()
	res := Result{WeekID: week, Rows: make(map[string]int, len(domain.Leagues))}
	if err := f.SetDocProps(&excelize.DocProperties{
		Title:   "Weekly standings " + week,
		Creator: "gamify",
	}); err != nil {
		f.Close()
		return nil, Result{}, fmt.Errorf("set properties: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, Result{}, fmt.Errorf("create style: %w", err)
	}

	for i, l := range domain.Leagues {
		name := SheetName(l)
		if i == 0 {
			err = f.SetSheetName("Sheet1", name)
		} else {
			_, err = f.NewSheet(name)
		}
		if err != nil {
			f.Close()
			return nil, Result{}, fmt.Errorf("create sheet %s: %w", name, err)
		}
		if err := writeSheet(f, name, all[l], bold); err != nil {
			f.Close()
			return nil, Result{}, err
		}
		res.Rows[name] = len(all[l])
	}
	f.SetActiveSheet(0)
	return f, res, nil
}

func writeSheet(f *excelize.File, sheet string, rows []league.Standing, headerStyle int) error {
	header := append([]any(nil), Header...)
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write %s header: %w", sheet, err)
	}
	last, _ := excelize.CoordinatesToCellName(len(Header), 1)
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("style %s header: %w", sheet, err)
	}

	for i, s := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{s.Rank, s.UserID, s.WeeklyXP, string(s.Zone), string(s.Trend), s.PreviousRank}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+2, err)
		}
	}

	return f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

// Save writes the workbook to path.
func Save(ctx context.Context, src Source, path string) (Result, error) {
	f, res, err := Build(ctx, src)
	if err != nil {
		return Result{}, err
	}
	defer f.Close()
	if err := f.SaveAs(path); err != nil {
		return Result{}, fmt.Errorf("save %s: %w", path, err)
	}
	return res, nil
}

// Write streams the workbook to w.
func Write(ctx context.Context, src Source, w io.Writer) (Result, error) {
	f, res, err := Build(ctx, src)
	if err != nil {
		return Result{}, err
	}
	defer f.Close()
	if _, err := f.WriteTo(w); err != nil {
		return Result{}, fmt.Errorf("write workbook: %w", err)
	}
	return res, nil
}
