// Package export renders account statements as text, CSV, or XLSX.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/passbook-dev/passbook/internal/bank"
	"github.com/passbook-dev/passbook/internal/model"
)

// Header is the CSV header for a statement export.
const Header = "seq,at,kind,amount,counterparty,transfer_id,id"

const (
	numFields  = 7
	colSeq     = 0
	colAt      = 1
	colKind    = 2
	colAmount  = 3
	colCparty  = 4
	colXferID  = 5
	colID      = 6
	sheetName  = "Statement"
	timeFormat = time.RFC3339
)

// WriteText renders a human-readable statement showing at most the last
// n movements; n <= 0 shows all.
func WriteText(w io.Writer, st bank.Statement, n int) error {
	var b strings.Builder
	fmt.Fprintf(&b, "=== STATEMENT ACCOUNT %s ===\n", st.Number)
	fmt.Fprintf(&b, "Client: %s\n", displayName(st))
	if st.Variant.Kind == model.VariantOverdraft {
		fmt.Fprintf(&b, "Overdraft limit: %s\n", st.Variant.Limit.StringFixed(2))
	}
	b.WriteString("\nMovements:\n")
	recent := st.Recent(n)
	if len(recent) == 0 {
		b.WriteString("(none)\n")
	}
	for _, m := range recent {
		b.WriteString(m.Describe())
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "\nBalance: %s\n", st.Balance.StringFixed(2))
	b.WriteString(strings.Repeat("=", 30))
	b.WriteByte('\n')

	_, err := io.WriteString(w, b.String())
	return err
}

func displayName(st bank.Statement) string {
	if st.OwnerName != "" {
		return st.OwnerName
	}
	return st.Owner
}

// MarshalMovement converts a Movement to a CSV row.
func MarshalMovement(m model.Movement) []string {
	row := make([]string, numFields)
	row[colSeq] = strconv.Itoa(m.Seq)
	row[colAt] = m.At.Format(timeFormat)
	row[colKind] = string(m.Kind)
	row[colAmount] = m.Amount.StringFixed(2)
	row[colCparty] = m.Counterparty
	if m.TransferID != uuid.Nil {
		row[colXferID] = m.TransferID.String()
	}
	row[colID] = m.ID.String()
	return row
}

// UnmarshalMovement converts a CSV row to a Movement.
func UnmarshalMovement(record []string) (model.Movement, error) {
	if len(record) != numFields {
		return model.Movement{}, fmt.Errorf("expected %d fields, got %d", numFields, len(record))
	}

	seq, err := strconv.Atoi(record[colSeq])
	if err != nil {
		return model.Movement{}, fmt.Errorf("parsing seq %q: %w", record[colSeq], err)
	}
	at, err := time.Parse(timeFormat, record[colAt])
	if err != nil {
		return model.Movement{}, fmt.Errorf("parsing at %q: %w", record[colAt], err)
	}
	kind := model.MovementKind(record[colKind])
	if !kind.Valid() {
		return model.Movement{}, fmt.Errorf("unknown kind %q", record[colKind])
	}
	amount, err := decimal.NewFromString(record[colAmount])
	if err != nil {
		return model.Movement{}, fmt.Errorf("parsing amount %q: %w", record[colAmount], err)
	}

	var xfer uuid.UUID
	if record[colXferID] != "" {
		xfer, err = uuid.Parse(record[colXferID])
		if err != nil {
			return model.Movement{}, fmt.Errorf("parsing transfer_id %q: %w", record[colXferID], err)
		}
	}
	id, err := uuid.Parse(record[colID])
	if err != nil {
		return model.Movement{}, fmt.Errorf("parsing id %q: %w", record[colID], err)
	}

	return model.Movement{
		ID:           id,
		Seq:          seq,
		Kind:         kind,
		Amount:       amount,
		Counterparty: record[colCparty],
		TransferID:   xfer,
		At:           at,
	}, nil
}

// WriteCSV writes movements with a header row.
func WriteCSV(w io.Writer, movements []model.Movement) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(strings.Split(Header, ",")); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for i, m := range movements {
		if err := cw.Write(MarshalMovement(m)); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV reads movements written by WriteCSV.
func ReadCSV(r io.Reader) ([]model.Movement, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading statement CSV: %w", err)
	}
	if len(records) <= 1 {
		return nil, nil
	}

	var movements []model.Movement
	for i, rec := range records[1:] {
		m, err := UnmarshalMovement(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		movements = append(movements, m)
	}
	return movements, nil
}

// WriteXLSX writes the statement as a workbook with one sheet: a bold
// header row, one row per movement with signed amounts, and a closing
// balance row.
func WriteXLSX(w io.Writer, st bank.Statement) error {
	data, err := FormatXLSX(st)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// FormatXLSX returns the workbook bytes for WriteXLSX.
func FormatXLSX(st bank.Statement) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, fmt.Errorf("naming sheet: %w", err)
	}

	if err := fillStatement(f, sheetName, st); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("writing workbook: %w", err)
	}
	return buf.Bytes(), nil
}

var xlsxHeader = []string{"Seq", "Date", "Kind", "Counterparty", "Amount", "Description"}

// fillStatement writes the header, movement and balance rows of st into an
// existing sheet of f and sizes its columns.
func fillStatement(f *excelize.File, sheet string, st bank.Statement) error {
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("creating style: %w", err)
	}
	money, err := f.NewStyle(&excelize.Style{NumFmt: 2})
	if err != nil {
		return fmt.Errorf("creating style: %w", err)
	}

	header := make([]any, len(xlsxHeader))
	for i, h := range xlsxHeader {
		header[i] = h
	}
	if err := setRow(f, sheet, 1, header); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(xlsxHeader), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, bold); err != nil {
		return fmt.Errorf("styling header: %w", err)
	}

	row := 2
	for _, m := range st.Movements {
		values := []any{
			m.Seq,
			m.At.Format("2006-01-02 15:04:05"),
			string(m.Kind),
			m.Counterparty,
			m.Signed().InexactFloat64(),
			m.Describe(),
		}
		if err := setRow(f, sheet, row, values); err != nil {
			return err
		}
		if err := styleCell(f, sheet, 5, row, money); err != nil {
			return err
		}
		row++
	}

	label, err := excelize.CoordinatesToCellName(4, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, label, &[]any{"Balance", st.Balance.InexactFloat64()}); err != nil {
		return fmt.Errorf("writing balance row: %w", err)
	}
	if err := styleCell(f, sheet, 4, row, bold); err != nil {
		return err
	}
	if err := styleCell(f, sheet, 5, row, money); err != nil {
		return err
	}

	for i, h := range xlsxHeader {
		colName, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		width := float64(len(h) + 4)
		if width < 12 {
			width = 12
		}
		if h == "Description" {
			width = 36
		}
		if err := f.SetColWidth(sheet, colName, colName, width); err != nil {
			return fmt.Errorf("sizing column %s: %w", colName, err)
		}
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("writing row %d: %w", row, err)
	}
	return nil
}

func styleCell(f *excelize.File, sheet string, col, row, style int) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, cell, cell, style); err != nil {
		return fmt.Errorf("styling %s: %w", cell, err)
	}
	return nil
}
