/*
Copyright © 2024 the terndata.flux authors.
This file is part of terndata.flux.

terndata.flux is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

terndata.flux is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with terndata.flux.  If not, see <http://www.gnu.org/licenses/>.*/

package flux

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// onefluxVariable maps an OzFlux variable to its OneFlux output label
// and numeric format. Column order in the output follows this table.
// The VPD unit in the output is hPa while the datasets carry kPa; see
// writeOneFluxYear.
type onefluxVariable struct {
	Var    string // OzFlux variable name
	Label  string // OneFlux column label
	Format string // fmt verb; "%d" marks round-and-cast integers
	Units  string
}

var onefluxVariables = []onefluxVariable{
	{"CO2", "CO2", "%.3f", "umol/mol"},
	{"Fco2", "FC", "%.4f", "umol/m^2/s"},
	{"Fg", "G", "%d", "W/m^2"},
	{"Fh", "H", "%d", "W/m^2"},
	{"H2O", "H2O", "%.2f", "mmol/mol"},
	{"Fe", "LE", "%d", "W/m^2"},
	{"Fld", "LW_IN", "%d", "W/m^2"},
	{"Flu", "LW_OUT", "%d", "W/m^2"},
	{"Fn", "NETRAD", "%d", "W/m^2"},
	{"Precip", "P", "%.1f", "mm"},
	{"ps", "PA", "%.1f", "kPa"},
	{"RH", "RH", "%d", "percent"},
	{"Sws", "SWC_1", "%.3f", "m^3/m^3"},
	{"Fsd", "SW_IN", "%d", "W/m^2"},
	{"Fsu", "SW_OUT", "%d", "W/m^2"},
	{"Ta", "TA", "%.2f", "degC"},
	{"Ts", "TS_1", "%.2f", "degC"},
	{"ustar", "USTAR", "%.2f", "m/s"},
	{"VPD", "VPD", "%.3f", "hPa"},
	{"Wd", "WD", "%d", "degrees"},
	{"Ws", "WS", "%.2f", "m/s"},
}

// timeResolutions labels the supported nominal time steps.
var timeResolutions = map[int]string{
	30: "halfhourly",
	60: "hourly",
}

const oneFluxTimeLayout = "200601021504" // YYYYMMDDHHMM

// ExportOneFluxCSV exports the default dataset of the site as one
// OneFlux-format CSV per calendar year into outdir. An empty version
// means the latest available one; an empty level means L4; OneFlux
// output is only available for L3 and L4. The generated file paths are
// returned in year order.
func (c *Client) ExportOneFluxCSV(outdir, site, version, level string) ([]string, error) {
	if level == "" {
		level = "L4"
	}
	if level != "L3" && level != "L4" {
		return nil, &Error{Kind: KindInvalidFormat, Op: "export dataset in oneflux format",
			Site: site, Level: level,
			Err: fmt.Errorf("invalid processing level %s: only available for L3 or L4", level)}
	}
	if err := os.MkdirAll(outdir, 0o777); err != nil {
		return nil, &Error{Kind: KindInvalidFormat, Op: "export dataset in oneflux format",
			Site: site, Err: err}
	}
	version, err := c.resolveVersion(site, version)
	if err != nil {
		return nil, err
	}
	ds, err := c.GetDataset(site, version, level, false)
	if err != nil {
		return nil, &Error{Kind: errKind(err), Op: "export dataset in oneflux format",
			Site: site, Version: version, Level: level, Err: err}
	}
	files, err := ds.WriteOneFluxCSV(outdir)
	if err != nil {
		return nil, &Error{Kind: KindUpstream, Op: "export dataset in oneflux format",
			Site: site, Version: version, Level: level, Err: err}
	}
	c.logger().WithField("files", len(files)).WithField("dir", outdir).Info("exported OneFlux CSV")
	return files, nil
}

// WriteOneFluxCSV re-expresses the dataset's time coverage on complete
// per-year calendar grids at the dataset's nominal time step and writes
// one OneFlux-format CSV per spanned year into outdir. Timestamps mark
// interval ends, so the year span is determined after stepping each
// boundary timestamp back by one step.
func (d *Dataset) WriteOneFluxCSV(outdir string) ([]string, error) {
	if len(d.Time) == 0 {
		return nil, fmt.Errorf("flux: dataset has an empty time axis")
	}
	step, err := d.timeStep()
	if err != nil {
		return nil, err
	}
	startYear := d.Time[0].Add(-step).Year()
	endYear := d.Time[len(d.Time)-1].Add(-step).Year()
	var files []string
	for year := startYear; year <= endYear; year++ {
		f, err := d.writeOneFluxYear(year, step, outdir)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, nil
}

// timeStep returns the dataset's declared nominal time step.
func (d *Dataset) timeStep() (time.Duration, error) {
	v, ok := d.Attrs["time_step"]
	if !ok {
		return 0, fmt.Errorf("flux: dataset has no time_step attribute")
	}
	minutes, err := attrInt(v)
	if err != nil {
		return 0, fmt.Errorf("flux: invalid time_step attribute: %v", err)
	}
	if _, ok := timeResolutions[minutes]; !ok {
		return 0, fmt.Errorf("flux: unsupported time step %d minutes", minutes)
	}
	return time.Duration(minutes) * time.Minute, nil
}

// yearGrid builds the complete ordered timestamp sequence for one
// calendar year: Jan 1 00:00 + step through Jan 1 00:00 of the next
// year, inclusive.
func yearGrid(year int, step time.Duration) []time.Time {
	start := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC).Add(step)
	end := time.Date(year+1, 1, 1, 0, 0, 0, 0, time.UTC)
	var grid []time.Time
	for t := start; !t.After(end); t = t.Add(step) {
		grid = append(grid, t)
	}
	return grid
}

// matchingIndices returns the aligned positions of equal timestamps in
// a and b: ia holds the indices of elements of a that also occur in b,
// ib the indices of elements of b that also occur in a. Both arrays
// are sorted and matched with boundary searches; with unique
// timestamps the two index slices have equal length and correspond
// pairwise.
func matchingIndices(a, b []time.Time) (ia, ib []int) {
	as := sortedUnix(a)
	bs := sortedUnix(b)
	for i, v := range as {
		if containsUnix(bs, v) {
			ia = append(ia, i)
		}
	}
	for j, v := range bs {
		if containsUnix(as, v) {
			ib = append(ib, j)
		}
	}
	return ia, ib
}

func sortedUnix(ts []time.Time) []int64 {
	out := make([]int64, len(ts))
	for i, t := range ts {
		out[i] = t.Unix()
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// containsUnix reports whether sorted s contains v, by boundary search.
func containsUnix(s []int64, v int64) bool {
	i := sort.Search(len(s), func(i int) bool { return s[i] >= v })
	return i < len(s) && s[i] == v
}

// writeOneFluxYear writes one year of data aligned to the full-year
// grid. Grid positions outside the dataset's coverage carry the
// sentinel missing value, written through the same per-variable format
// as real values.
func (d *Dataset) writeOneFluxYear(year int, step time.Duration, outdir string) (string, error) {
	grid := yearGrid(year, step)
	ia, ib := matchingIndices(grid, d.Time)

	present := make([]onefluxVariable, 0, len(onefluxVariables))
	for _, cfg := range onefluxVariables {
		if _, ok := d.Vars[cfg.Var]; ok {
			present = append(present, cfg)
		}
	}

	columns := make(map[string][]float64, len(present))
	for _, cfg := range present {
		col := make([]float64, len(grid))
		for i := range col {
			col[i] = FluxMissingValue
		}
		data := d.Vars[cfg.Var].Data
		for k := range ia {
			v := data[ib[k]]
			if cfg.Var == "VPD" {
				v /= 10 // kPa to hPa
			}
			col[ia[k]] = v
		}
		columns[cfg.Var] = col
	}

	utcOffset, err := d.utcOffsetHours()
	if err != nil {
		return "", err
	}
	towerHeight := stripNonNumeric(d.AttrString("tower_height"))
	fluxnetID := d.fluxnetID()
	stepMinutes := int(step / time.Minute)

	path := filepath.Join(outdir, fmt.Sprintf("%s_qcv_%d.csv", fluxnetID, year))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	w := csv.NewWriter(f)

	preamble := [][]string{
		{"site", fluxnetID},
		{"year", strconv.Itoa(year)},
		{"lat", d.AttrString("latitude")},
		{"lon", d.AttrString("longitude")},
		{"timezone", formatFloat(utcOffset)},
		{"htower", grid[0].Format(oneFluxTimeLayout), towerHeight},
		{"timeres", timeResolutions[stepMinutes]},
		{"sc_negl", "1"},
		{"notes", "Adapted from PyFluxPro"},
	}
	for _, row := range preamble {
		if err := w.Write(row); err != nil {
			return "", err
		}
	}

	header := []string{"TIMESTAMP_START", "TIMESTAMP_END"}
	for _, cfg := range present {
		header = append(header, cfg.Label)
	}
	if err := w.Write(header); err != nil {
		return "", err
	}

	row := make([]string, 0, len(header))
	for n, t := range grid {
		row = row[:0]
		row = append(row, t.Add(-step).Format(oneFluxTimeLayout), t.Format(oneFluxTimeLayout))
		for _, cfg := range present {
			row = append(row, formatOneFluxValue(columns[cfg.Var][n], cfg.Format))
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return path, nil
}

// formatOneFluxValue renders a value with the per-variable format;
// integer formats round and cast first.
func formatOneFluxValue(v float64, format string) string {
	if format == "%d" {
		return strconv.Itoa(int(math.Round(v)))
	}
	return fmt.Sprintf(format, v)
}

// utcOffsetHours derives the current UTC offset from the dataset's
// declared timezone name. The offset is DST-dependent, matching the
// upstream OneFlux convention of sampling the offset at export time.
func (d *Dataset) utcOffsetHours() (float64, error) {
	tz := d.AttrString("time_zone")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return 0, fmt.Errorf("flux: invalid time_zone attribute %q: %v", tz, err)
	}
	_, offset := time.Now().In(loc).Zone()
	return float64(offset) / 3600, nil
}

// fluxnetID returns the six-character FLUXNET site identifier, falling
// back to the site name.
func (d *Dataset) fluxnetID() string {
	if id := d.AttrString("fluxnet_id"); len(id) == 6 {
		return id
	}
	return d.AttrString("site_name")
}

// stripNonNumeric keeps only the numeric characters of s.
func stripNonNumeric(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '-' || r == '.' || (r >= '0' && r <= '9') {
			return r
		}
		return -1
	}, s)
}

// formatFloat renders a float without trailing zeros.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
