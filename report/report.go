/*
report.go - Spreadsheet exports

PURPOSE:
  Read-only workbooks built from committed state:
  - Inventory valuation: per sheet type, what is left on the shelf and what
    it cost, valued the same way COGS is computed at sale time.
  - Account statement: one customer or supplier ledger, oldest first, with
    the running balance exactly as stored.

  Both refuse to render a statement whose balance_after chain does not add
  up, so a corrupted ledger is never exported as if it were fine.

SEE ALSO:
  - engine/allocator.go: UnitCost
  - engine/ledger.go: VerifyPrefixSums
*/
package report

import (
	"context"
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/warp/sheet-ledger/engine"
)

// Source is the read side the reports need. *trading.Service satisfies it.
type Source interface {
	ListSheetTypes(ctx context.Context) ([]engine.SheetType, error)
	ListBatches(ctx context.Context, sheetTypeID int64) (engine.Batches, error)
	Entries(ctx context.Context, account engine.Account) ([]engine.LedgerEntry, error)
}

const dateLayout = "2006-01-02"

// =============================================================================
// INVENTORY VALUATION
// =============================================================================

type ValuationRow struct {
	SheetType   engine.SheetType
	Batches     int
	Remaining   decimal.Decimal
	WeightKg    decimal.Decimal
	ValueAtCost decimal.Decimal
}

type Valuation struct {
	Rows       []ValuationRow
	TotalValue decimal.Decimal
}

// Valuate values remaining stock per sheet type. Sheet types with nothing
// left are skipped.
func Valuate(ctx context.Context, src Source) (Valuation, error) {
	sheets, err := src.ListSheetTypes(ctx)
	if err != nil {
		return Valuation{}, err
	}

	v := Valuation{TotalValue: decimal.Zero}
	for _, sheet := range sheets {
		batches, err := src.ListBatches(ctx, sheet.ID)
		if err != nil {
			return Valuation{}, err
		}
		row := valuateSheet(sheet, batches)
		if !row.Remaining.IsPositive() {
			continue
		}
		v.Rows = append(v.Rows, row)
		v.TotalValue = v.TotalValue.Add(row.ValueAtCost)
	}
	return v, nil
}

func valuateSheet(sheet engine.SheetType, batches engine.Batches) ValuationRow {
	row := ValuationRow{
		SheetType:   sheet,
		Remaining:   decimal.Zero,
		WeightKg:    decimal.Zero,
		ValueAtCost: decimal.Zero,
	}
	unitWeight := sheet.UnitWeightKg()
	for _, b := range batches {
		if b.IsExhausted() {
			continue
		}
		row.Batches++
		row.Remaining = row.Remaining.Add(b.QuantityRemaining)
		row.WeightKg = row.WeightKg.Add(engine.RoundWeight(unitWeight.Mul(b.QuantityRemaining)))
		row.ValueAtCost = row.ValueAtCost.Add(engine.Round2(engine.UnitCost(b, unitWeight).Mul(b.QuantityRemaining)))
	}
	return row
}

// WriteInventoryValuation renders v as an xlsx workbook into w.
func WriteInventoryValuation(w io.Writer, v Valuation) error {
	header := []any{"Code", "Metal", "Grade", "Thickness (mm)", "Batches", "Quantity", "Weight (kg)", "Value at cost"}
	rows := make([][]any, 0, len(v.Rows)+1)
	for _, r := range v.Rows {
		rows = append(rows, []any{
			r.SheetType.Code,
			r.SheetType.MetalType,
			r.SheetType.Grade,
			number(r.SheetType.ThicknessMM),
			r.Batches,
			number(r.Remaining),
			number(r.WeightKg),
			number(r.ValueAtCost),
		})
	}
	rows = append(rows, []any{"Total", nil, nil, nil, nil, nil, nil, number(v.TotalValue)})

	return writeWorkbook(w, "Inventory", header, rows)
}

// =============================================================================
// ACCOUNT STATEMENT
// =============================================================================

// Statement loads the account history and checks its running balance.
func Statement(ctx context.Context, src Source, account engine.Account) ([]engine.LedgerEntry, error) {
	entries, err := src.Entries(ctx, account)
	if err != nil {
		return nil, err
	}
	if err := engine.VerifyPrefixSums(entries); err != nil {
		return nil, fmt.Errorf("ledger for %s is inconsistent: %w", account, err)
	}
	return entries, nil
}

// WriteAccountStatement renders entries as an xlsx workbook into w.
func WriteAccountStatement(w io.Writer, account engine.Account, entries []engine.LedgerEntry) error {
	header := []any{"Date", "Type", "Reference", "Amount", "Balance", "Notes"}
	rows := make([][]any, 0, len(entries))
	for _, e := range entries {
		ref := ""
		if e.ReferenceType != "" {
			ref = fmt.Sprintf("%s #%d", e.ReferenceType, e.ReferenceID)
		}
		rows = append(rows, []any{
			e.EntryDate.Format(dateLayout),
			string(e.Type),
			ref,
			number(e.Amount),
			number(e.BalanceAfter),
			e.Notes,
		})
	}
	return writeWorkbook(w, statementSheet(account), header, rows)
}

func statementSheet(account engine.Account) string {
	return fmt.Sprintf("%s %d", account.Kind, account.ID)
}

// =============================================================================
// WORKBOOK
// =============================================================================

func writeWorkbook(w io.Writer, sheet string, header []any, rows [][]any) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(f.GetActiveSheetIndex()), sheet); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, bold); err != nil {
		return err
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	lastCol, err := excelize.ColumnNumberToName(len(header))
	if err != nil {
		return err
	}
	if err := f.SetColWidth(sheet, "A", lastCol, 16); err != nil {
		return err
	}

	return f.Write(w)
}

func number(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}
