package raster

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const ascNoData = -9999.0

// ReadTemplate extracts grid geometry from the header of an ESRI ASCII grid
// file, typically the reference elevation raster. The cell values are not
// retained. crs is the reference identifier to bind to the template, e.g.
// "EPSG:4326".
func ReadTemplate(path, crs string) (Template, error) {
	g, err := ReadGrid(path, crs)
	if err != nil {
		return Template{}, err
	}
	return g.Template, nil
}

// ReadGrid reads a full ESRI ASCII grid. Both square-cell headers (cellsize)
// and rectangular ones (dx/dy) are accepted. Cells equal to the declared
// NODATA value come back unset.
func ReadGrid(path, crs string) (*Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open raster %s: %w", path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 1024*1024), 16*1024*1024)

	hdr := map[string]float64{}
	var cells []float64
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		key := strings.ToLower(fields[0])
		if len(fields) == 2 && isHeaderKey(key) {
			v, err := strconv.ParseFloat(fields[1], 64)
			if err != nil {
				return nil, fmt.Errorf("raster %s: bad header value %q for %s", path, fields[1], key)
			}
			hdr[key] = v
			continue
		}
		for _, fld := range fields {
			v, err := strconv.ParseFloat(fld, 64)
			if err != nil {
				return nil, fmt.Errorf("raster %s: bad cell value %q", path, fld)
			}
			cells = append(cells, v)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read raster %s: %w", path, err)
	}

	for _, k := range []string{"ncols", "nrows", "xllcorner", "yllcorner"} {
		if _, ok := hdr[k]; !ok {
			return nil, fmt.Errorf("raster %s: missing header field %s", path, k)
		}
	}
	t := Template{
		MinX: hdr["xllcorner"],
		MinY: hdr["yllcorner"],
		Cols: int(hdr["ncols"]),
		Rows: int(hdr["nrows"]),
		CRS:  crs,
	}
	if t.Cols < 1 || t.Rows < 1 {
		return nil, fmt.Errorf("raster %s: ncols and nrows must be positive, got %dx%d", path, t.Cols, t.Rows)
	}
	switch {
	case hdr["dx"] > 0 && hdr["dy"] > 0:
		t.CellX, t.CellY = hdr["dx"], hdr["dy"]
	case hdr["cellsize"] > 0:
		t.CellX, t.CellY = hdr["cellsize"], hdr["cellsize"]
	default:
		return nil, fmt.Errorf("raster %s: missing or non-positive cellsize or dx/dy", path)
	}
	if len(cells) != t.Rows*t.Cols {
		return nil, fmt.Errorf("raster %s: expected %d cells, found %d", path, t.Rows*t.Cols, len(cells))
	}

	nodata, hasNodata := hdr["nodata_value"]
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	g := NewGrid(name, t)
	for i, v := range cells {
		if hasNodata && v == nodata {
			continue
		}
		g.Cells[i] = v
	}
	return g, nil
}

// WriteGrid writes a grid as an ESRI ASCII file. Output formatting is fixed
// so identical grids serialize byte-identically.
func WriteGrid(g *Grid, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create raster %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	t := g.Template
	fmt.Fprintf(w, "ncols %d\n", t.Cols)
	fmt.Fprintf(w, "nrows %d\n", t.Rows)
	fmt.Fprintf(w, "xllcorner %s\n", formatCell(t.MinX))
	fmt.Fprintf(w, "yllcorner %s\n", formatCell(t.MinY))
	if t.CellX == t.CellY {
		fmt.Fprintf(w, "cellsize %s\n", formatCell(t.CellX))
	} else {
		fmt.Fprintf(w, "dx %s\n", formatCell(t.CellX))
		fmt.Fprintf(w, "dy %s\n", formatCell(t.CellY))
	}
	fmt.Fprintf(w, "NODATA_value %s\n", formatCell(ascNoData))

	for r := 0; r < t.Rows; r++ {
		for c := 0; c < t.Cols; c++ {
			if c > 0 {
				w.WriteByte(' ')
			}
			v := g.At(c, r)
			if IsNoData(v) {
				v = ascNoData
			}
			w.WriteString(formatCell(v))
		}
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("write raster %s: %w", path, err)
	}
	return nil
}

func formatCell(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func isHeaderKey(k string) bool {
	switch k {
	case "ncols", "nrows", "xllcorner", "yllcorner", "cellsize", "dx", "dy", "nodata_value":
		return true
	}
	return false
}
