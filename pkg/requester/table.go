// SPDX-FileCopyrightText: 2026 The dslink-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package requester

import (
	"fmt"

	"github.com/iot-dsa/dslink-go/pkg/protocol"
	"github.com/iot-dsa/dslink-go/pkg/value"
)

// Table of an invoke stream. The columns are announced by the first batch.
type Table struct {
	Columns []protocol.Column
	Rows    [][]*value.Value
}

// apply a batch of rows, either appended or replacing all rows starting at from.
func (t *Table) apply(columns []protocol.Column, updates []interface{}, from *int) error {
	if t.Columns == nil && len(columns) > 0 {
		t.Columns = columns
	}

	rows := make([][]*value.Value, 0, len(updates))
	for _, update := range updates {
		row, err := t.decodeRow(update)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}

	if from != nil {
		k := *from
		if k < 0 {
			k = 0
		} else if k > len(t.Rows) {
			k = len(t.Rows)
		}
		t.Rows = t.Rows[:k]
	}
	t.Rows = append(t.Rows, rows...)
	return nil
}

// decodeRow accepts a row as an array or as an object keyed by column names.
func (t *Table) decodeRow(update interface{}) ([]*value.Value, error) {
	var cells []interface{}

	switch u := update.(type) {
	case []interface{}:
		cells = u
	case map[string]interface{}:
		cells = make([]interface{}, len(t.Columns))
		for i, col := range t.Columns {
			cells[i] = u[col.Name]
		}
	default:
		return nil, fmt.Errorf("unsupported row of type %T", update)
	}

	if len(t.Columns) > 0 && len(cells) != len(t.Columns) {
		return nil, &protocol.ColumnMismatchError{Columns: len(t.Columns), Row: len(cells)}
	}

	row := make([]*value.Value, len(cells))
	for i, cell := range cells {
		v, err := value.FromJSON(cell)
		if err != nil {
			return nil, err
		}
		row[i] = v
	}
	return row, nil
}

// Copy this Table. Rows are shared as Values are immutable.
func (t *Table) Copy() *Table {
	c := &Table{
		Columns: append([]protocol.Column(nil), t.Columns...),
		Rows:    make([][]*value.Value, len(t.Rows)),
	}
	for i, row := range t.Rows {
		c.Rows[i] = append([]*value.Value(nil), row...)
	}
	return c
}
