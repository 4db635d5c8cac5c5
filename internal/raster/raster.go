// Package raster provides the canonical grid geometry and the flat grid
// representation every surface in the pipeline conforms to. The template is
// extracted once from a reference elevation raster and reused for all
// rasterization and prediction, so cell (col,row) addresses the same location
// across every variable and scenario.
package raster

import (
	"fmt"
	"math"
)

// Template describes grid geometry: extent, per-axis resolution and the
// coordinate reference identifier. Rows are stored north to south, so row 0
// is the northernmost row.
type Template struct {
	MinX  float64 `json:"minX"`
	MinY  float64 `json:"minY"`
	CellX float64 `json:"cellX"`
	CellY float64 `json:"cellY"`
	Cols  int     `json:"cols"`
	Rows  int     `json:"rows"`
	CRS   string  `json:"crs"`
}

// MaxX returns the eastern edge of the grid extent.
func (t Template) MaxX() float64 { return t.MinX + float64(t.Cols)*t.CellX }

// MaxY returns the northern edge of the grid extent.
func (t Template) MaxY() float64 { return t.MinY + float64(t.Rows)*t.CellY }

// CellOf maps a coordinate to its containing cell. ok is false when the
// coordinate falls outside the template extent.
func (t Template) CellOf(lon, lat float64) (col, row int, ok bool) {
	col = int(math.Floor((lon - t.MinX) / t.CellX))
	row = int(math.Floor((t.MaxY() - lat) / t.CellY))
	if col < 0 || col >= t.Cols || row < 0 || row >= t.Rows {
		return 0, 0, false
	}
	return col, row, true
}

// CellCenter returns the coordinate at the center of a cell.
func (t Template) CellCenter(col, row int) (lon, lat float64) {
	lon = t.MinX + (float64(col)+0.5)*t.CellX
	lat = t.MaxY() - (float64(row)+0.5)*t.CellY
	return lon, lat
}

// SameGeometry reports whether two templates describe the exact same grid:
// identical extent, resolution, cell count and reference.
func (t Template) SameGeometry(o Template) bool {
	return t.MinX == o.MinX && t.MinY == o.MinY &&
		t.CellX == o.CellX && t.CellY == o.CellY &&
		t.Cols == o.Cols && t.Rows == o.Rows && t.CRS == o.CRS
}

func (t Template) String() string {
	return fmt.Sprintf("%dx%d cells, x [%g,%g], y [%g,%g], cell %gx%g, %s",
		t.Cols, t.Rows, t.MinX, t.MaxX(), t.MinY, t.MaxY(), t.CellX, t.CellY, t.CRS)
}

// Grid is a named raster conforming to a Template: a flat cell array with
// row stride Cols. Unset cells hold NaN.
type Grid struct {
	Name     string
	Template Template
	Cells    []float64
}

// NewGrid allocates a grid for the template with every cell unset.
func NewGrid(name string, t Template) *Grid {
	cells := make([]float64, t.Cols*t.Rows)
	for i := range cells {
		cells[i] = math.NaN()
	}
	return &Grid{Name: name, Template: t, Cells: cells}
}

// IsNoData reports whether a cell value is the unset sentinel.
func IsNoData(v float64) bool { return math.IsNaN(v) }

// Index returns the flat index of a cell.
func (g *Grid) Index(col, row int) int { return row*g.Template.Cols + col }

// At returns the value at a cell, NaN when unset.
func (g *Grid) At(col, row int) float64 { return g.Cells[g.Index(col, row)] }

// Set stores a value at a cell.
func (g *Grid) Set(col, row int, v float64) { g.Cells[g.Index(col, row)] = v }

// DefinedCells counts cells holding a value.
func (g *Grid) DefinedCells() int {
	n := 0
	for _, v := range g.Cells {
		if !IsNoData(v) {
			n++
		}
	}
	return n
}

// Clone returns a deep copy sharing nothing with the receiver.
func (g *Grid) Clone() *Grid {
	c := &Grid{Name: g.Name, Template: g.Template, Cells: make([]float64, len(g.Cells))}
	copy(c.Cells, g.Cells)
	return c
}
