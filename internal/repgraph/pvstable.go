package repgraph

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

// Table maps a source cell to the set of cells visible from it. It is built
// once (offline table file or generator) and read-only during ticks.
type Table map[CellKey][]CellKey

// TableGenerator produces a visibility table. The derivation algorithm is a
// pluggable strategy; the engine only consumes the resulting mapping.
type TableGenerator func() Table

// DefaultTable reproduces the hand-enumerated 7x7 test layout: every cell
// of the grid sees the first column's cells (0,0) through (0,4).
func DefaultTable() Table {
	visible := []CellKey{{0, 0}, {0, 1}, {0, 2}, {0, 3}, {0, 4}}
	table := make(Table, 7*7)
	for x := 0; x < 7; x++ {
		for y := 0; y < 7; y++ {
			table[CellKey{X: x, Y: y}] = visible
		}
	}
	return table
}

// TableFile is the designer-authored on-disk form of a visibility table.
// cmd/pvsschema emits its JSON schema.
type TableFile struct {
	// CellSize and bias are carried for auditing; the runtime values come
	// from settings and must match.
	CellSize float64          `json:"cellSize,omitempty"`
	Cells    []TableFileEntry `json:"cells"`
}

type TableFileEntry struct {
	Cell    CellKey   `json:"cell"`
	Visible []CellKey `json:"visible"`
}

// LoadTable reads a visibility table from a JSON file. Duplicate source
// cells are rejected; an empty visible set is allowed and means the cell
// currently sees nothing.
func LoadTable(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pvs table: %w", err)
	}
	var file TableFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode pvs table: %w", err)
	}
	table := make(Table, len(file.Cells))
	for _, entry := range file.Cells {
		if _, ok := table[entry.Cell]; ok {
			return nil, fmt.Errorf("duplicate pvs table cell (%d, %d)", entry.Cell.X, entry.Cell.Y)
		}
		table[entry.Cell] = entry.Visible
	}
	return table, nil
}

// Validate audits the table for asymmetric visibility pairs. Asymmetry is
// reported, not rejected: a fully correct table is symmetric, but the
// engine tolerates approximate ones.
func (t Table) Validate(log *logrus.Entry) int {
	asymmetric := 0
	for source, visible := range t {
		for _, target := range visible {
			if t.sees(target, source) {
				continue
			}
			asymmetric++
			log.WithFields(logrus.Fields{
				"source": fmt.Sprintf("(%d, %d)", source.X, source.Y),
				"target": fmt.Sprintf("(%d, %d)", target.X, target.Y),
			}).Warn("asymmetric visibility pair")
		}
	}
	return asymmetric
}

func (t Table) sees(source, target CellKey) bool {
	for _, cell := range t[source] {
		if cell == target {
			return true
		}
	}
	return false
}
