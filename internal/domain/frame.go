package domain

import (
	"encoding/json"
	"fmt"
	"math"
)

// ReturnFrame is a table of periodic returns: one column per symbol, one row
// per period. Missing observations are NaN.
type ReturnFrame struct {
	Symbols []string    `json:"symbols"`
	Rows    [][]float64 `json:"-"`
}

// NewReturnFrame builds a frame from per-symbol series aligned on their last
// observation. Shorter series are padded with NaN at the start.
func NewReturnFrame(series map[string][]float64, symbols []string) *ReturnFrame {
	n := 0
	for _, s := range symbols {
		if len(series[s]) > n {
			n = len(series[s])
		}
	}
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = make([]float64, len(symbols))
		for j, sym := range symbols {
			col := series[sym]
			offset := n - len(col)
			if i < offset {
				rows[i][j] = math.NaN()
			} else {
				rows[i][j] = col[i-offset]
			}
		}
	}
	return &ReturnFrame{Symbols: append([]string(nil), symbols...), Rows: rows}
}

// Len is the number of rows.
func (f *ReturnFrame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Rows)
}

// Index returns the column of a symbol or -1.
func (f *ReturnFrame) Index(symbol string) int {
	for i, s := range f.Symbols {
		if s == symbol {
			return i
		}
	}
	return -1
}

// Column returns the non-missing values for a symbol.
func (f *ReturnFrame) Column(symbol string) []float64 {
	idx := f.Index(symbol)
	if idx < 0 {
		return nil
	}
	out := make([]float64, 0, len(f.Rows))
	for _, row := range f.Rows {
		if v := row[idx]; !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

// ColumnWithRows returns the non-missing values for a symbol together with
// the row indices they came from.
func (f *ReturnFrame) ColumnWithRows(symbol string) ([]float64, []int) {
	idx := f.Index(symbol)
	if idx < 0 {
		return nil, nil
	}
	values := make([]float64, 0, len(f.Rows))
	rows := make([]int, 0, len(f.Rows))
	for i, row := range f.Rows {
		if v := row[idx]; !math.IsNaN(v) {
			values = append(values, v)
			rows = append(rows, i)
		}
	}
	return values, rows
}

// Subset keeps only the given symbols and drops every row with a missing
// value among them. Unknown symbols are an error.
func (f *ReturnFrame) Subset(symbols []string) ([][]float64, error) {
	idx := make([]int, len(symbols))
	for i, s := range symbols {
		idx[i] = f.Index(s)
		if idx[i] < 0 {
			return nil, fmt.Errorf("symbol %q not in returns: %w", s, ErrInsufficientData)
		}
	}
	out := make([][]float64, 0, len(f.Rows))
	for _, row := range f.Rows {
		picked := make([]float64, len(idx))
		complete := true
		for j, c := range idx {
			if math.IsNaN(row[c]) {
				complete = false
				break
			}
			picked[j] = row[c]
		}
		if complete {
			out = append(out, picked)
		}
	}
	return out, nil
}

type frameJSON struct {
	Symbols []string     `json:"symbols"`
	Rows    [][]*float64 `json:"rows"`
}

// MarshalJSON encodes NaN as null.
func (f ReturnFrame) MarshalJSON() ([]byte, error) {
	out := frameJSON{Symbols: f.Symbols, Rows: make([][]*float64, len(f.Rows))}
	for i, row := range f.Rows {
		out.Rows[i] = make([]*float64, len(row))
		for j, v := range row {
			if !math.IsNaN(v) {
				v := v
				out.Rows[i][j] = &v
			}
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes null as NaN and rejects ragged rows.
func (f *ReturnFrame) UnmarshalJSON(data []byte) error {
	var in frameJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	rows := make([][]float64, len(in.Rows))
	for i, row := range in.Rows {
		if len(row) != len(in.Symbols) {
			return fmt.Errorf("row %d has %d values for %d symbols: %w", i, len(row), len(in.Symbols), ErrInputValidation)
		}
		rows[i] = make([]float64, len(row))
		for j, v := range row {
			if v == nil {
				rows[i][j] = math.NaN()
			} else {
				rows[i][j] = *v
			}
		}
	}
	f.Symbols = in.Symbols
	f.Rows = rows
	return nil
}
