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
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/ctessum/cdf"
	"github.com/spf13/cast"
)

// FluxMissingValue is the sentinel marking absent observations in
// OzFlux datasets.
const FluxMissingValue = -9999

// QCFlagSuffix joins a data variable name to its paired quality-control
// flag variable.
const QCFlagSuffix = "_QCFlag"

// A Variable is a named array bound to the dataset's time axis, with
// the degenerate spatial axes squeezed away.
type Variable struct {
	Name string
	// Data holds one value per time step for numeric variables.
	Data []float64
	// Text holds the value of character variables (e.g. station_name).
	Text string
	// Attrs holds the variable's descriptive attributes.
	Attrs map[string]interface{}
}

// A Dataset is a decoded flux-tower NetCDF dataset: a time axis,
// degenerate spatial coordinates, data variables and attribute
// mappings. Datasets are built fresh per call and never mutated once
// returned.
type Dataset struct {
	// Attrs holds the dataset's global attributes (site metadata:
	// location, tower height, timezone, nominal time step, ...).
	Attrs map[string]interface{}

	// Time is the decoded time coordinate.
	Time []time.Time

	// Latitude and Longitude are the spatial coordinates; both have
	// length 1 in flux-tower datasets.
	Latitude, Longitude []float64

	// Vars holds the data variables keyed by name.
	Vars map[string]*Variable

	// CoordAttrs holds the attributes of the coordinate variables.
	CoordAttrs map[string]map[string]interface{}

	names  []string // every variable name, in file order
	coords []string // coordinate variable names, in file order
}

// VariableAttrs returns the attributes of the named variable or
// coordinate.
func (d *Dataset) VariableAttrs(name string) (map[string]interface{}, bool) {
	if v, ok := d.Vars[name]; ok {
		return v.Attrs, true
	}
	if a, ok := d.CoordAttrs[name]; ok {
		return a, true
	}
	return nil, false
}

// VariableNames returns the names of all variables in the dataset,
// coordinates included, in file order.
func (d *Dataset) VariableNames() []string {
	out := make([]string, len(d.names))
	copy(out, d.names)
	return out
}

// Coordinates returns the names of the coordinate variables.
func (d *Dataset) Coordinates() []string {
	out := make([]string, len(d.coords))
	copy(out, d.coords)
	return out
}

// HasVariable reports whether name is a variable (or coordinate) of
// the dataset.
func (d *Dataset) HasVariable(name string) bool {
	if _, ok := d.Vars[name]; ok {
		return true
	}
	for _, c := range d.coords {
		if c == name {
			return true
		}
	}
	return false
}

// TemporalRange returns the first and last timestamps of the time axis.
func (d *Dataset) TemporalRange() (start, end time.Time) {
	if len(d.Time) == 0 {
		return time.Time{}, time.Time{}
	}
	return d.Time[0], d.Time[len(d.Time)-1]
}

// AttrString returns the global attribute value rendered as a string,
// or "" if the attribute is absent.
func (d *Dataset) AttrString(key string) string {
	return attrString(d.Attrs[key])
}

// attrString renders an attribute value, unwrapping single-element
// numeric slices as the cdf library returns them.
func attrString(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []float64:
		if len(x) == 1 {
			return cast.ToString(x[0])
		}
	case []float32:
		if len(x) == 1 {
			return cast.ToString(x[0])
		}
	case []int32:
		if len(x) == 1 {
			return cast.ToString(x[0])
		}
	case []int16:
		if len(x) == 1 {
			return cast.ToString(x[0])
		}
	}
	return fmt.Sprintf("%v", v)
}

// attrInt renders an attribute value as an integer.
func attrInt(v interface{}) (int, error) {
	switch x := v.(type) {
	case []float64:
		if len(x) == 1 {
			return int(x[0]), nil
		}
	case []float32:
		if len(x) == 1 {
			return int(x[0]), nil
		}
	case []int32:
		if len(x) == 1 {
			return int(x[0]), nil
		}
	case []int16:
		if len(x) == 1 {
			return int(x[0]), nil
		}
	}
	return cast.ToIntE(v)
}

// attrFloat renders an attribute value as a float.
func attrFloat(v interface{}) (float64, error) {
	switch x := v.(type) {
	case []float64:
		if len(x) == 1 {
			return x[0], nil
		}
	case []float32:
		if len(x) == 1 {
			return float64(x[0]), nil
		}
	case []int32:
		if len(x) == 1 {
			return float64(x[0]), nil
		}
	}
	return cast.ToFloat64E(v)
}

// OpenDatasetURL fetches the NetCDF dataset at a fully resolved
// data-access URL and decodes it. If missingAsNaN, the fixed sentinel
// missing value is recorded as each non-coordinate variable's
// missing_value attribute and every sentinel cell is converted to NaN;
// coordinate variables are left untouched.
func (c *Client) OpenDatasetURL(url string, missingAsNaN bool) (*Dataset, error) {
	body, err := c.get(url)
	if err != nil {
		return nil, err
	}
	// The cdf library needs random access, so stage the download in a
	// temporary file.
	f, err := os.CreateTemp("", "ternflux-*.nc")
	if err != nil {
		return nil, fmt.Errorf("flux: creating temporary dataset file: %v", err)
	}
	defer os.Remove(f.Name())
	defer f.Close()
	if _, err := f.Write(body); err != nil {
		return nil, fmt.Errorf("flux: staging dataset from %s: %v", url, err)
	}
	ds, err := ReadDataset(f, missingAsNaN)
	if err != nil {
		return nil, fmt.Errorf("flux: decoding dataset from %s: %v", url, err)
	}
	c.logger().WithField("url", url).WithField("records", len(ds.Time)).Debug("opened dataset")
	return ds, nil
}

// ReadDataset decodes a flux-tower NetCDF dataset from an open file.
// See OpenDatasetURL for the meaning of missingAsNaN.
func ReadDataset(f *os.File, missingAsNaN bool) (*Dataset, error) {
	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	nc, err := cdf.Open(f)
	if err != nil {
		return nil, err
	}
	d := &Dataset{
		Attrs:      attrMap(nc, ""),
		Vars:       make(map[string]*Variable),
		CoordAttrs: make(map[string]map[string]interface{}),
	}
	dims := make(map[string]struct{})
	for _, v := range nc.Header.Variables() {
		for _, dim := range nc.Header.Dimensions(v) {
			dims[dim] = struct{}{}
		}
	}
	for _, name := range nc.Header.Variables() {
		d.names = append(d.names, name)
		if _, isCoord := dims[name]; isCoord {
			d.coords = append(d.coords, name)
		}
	}
	for _, name := range d.coords {
		d.CoordAttrs[name] = attrMap(nc, name)
		vals, _, err := readNumericVar(nc, name, fi.Size())
		if err != nil {
			return nil, fmt.Errorf("reading coordinate %s: %v", name, err)
		}
		switch name {
		case "time":
			units := attrString(nc.Header.GetAttribute(name, "units"))
			d.Time, err = decodeTimes(vals, units)
			if err != nil {
				return nil, err
			}
		case "latitude":
			d.Latitude = vals
		case "longitude":
			d.Longitude = vals
		}
	}
	for _, name := range d.names {
		if _, isCoord := dims[name]; isCoord {
			continue
		}
		v := &Variable{Name: name, Attrs: attrMap(nc, name)}
		vals, text, err := readNumericVar(nc, name, fi.Size())
		if err != nil {
			return nil, fmt.Errorf("reading variable %s: %v", name, err)
		}
		v.Data = vals
		v.Text = text
		if missingAsNaN && v.Data != nil {
			v.Attrs["missing_value"] = []float64{FluxMissingValue}
			for i, x := range v.Data {
				if x == FluxMissingValue {
					v.Data[i] = math.NaN()
				}
			}
		}
		d.Vars[name] = v
	}
	return d, nil
}

// attrMap collects the attributes of variable v ("" for global
// attributes) into a map.
func attrMap(nc *cdf.File, v string) map[string]interface{} {
	m := make(map[string]interface{})
	for _, a := range nc.Header.Attributes(v) {
		m[a] = nc.Header.GetAttribute(v, a)
	}
	return m
}

// readNumericVar reads a whole variable, converting numeric types to
// float64 and character data to a string. The element count of a
// record variable is derived from the file size.
func readNumericVar(nc *cdf.File, name string, fsize int64) (vals []float64, text string, err error) {
	lengths := nc.Header.Lengths(name)
	n := 1
	for i, l := range lengths {
		if i == 0 && l == 0 { // record dimension
			l = int(nc.Header.NumRecs(fsize))
		}
		n *= l
	}
	r := nc.Reader(name, nil, nil)
	var out []float64
	var chars []byte
	for read := 0; read < n; {
		buf := r.Zero(-1)
		got, err := r.Read(buf)
		if got > 0 {
			switch b := buf.(type) {
			case []float64:
				out = append(out, b[:got]...)
			case []float32:
				for _, x := range b[:got] {
					out = append(out, float64(x))
				}
			case []int32:
				for _, x := range b[:got] {
					out = append(out, float64(x))
				}
			case []int16:
				for _, x := range b[:got] {
					out = append(out, float64(x))
				}
			case []uint8:
				chars = append(chars, b[:got]...)
			default:
				return nil, "", fmt.Errorf("unsupported type %T for variable %s", buf, name)
			}
			read += got
		}
		if got == 0 || read >= n {
			break
		}
		if err == io.EOF {
			continue // record variables report EOF at every record boundary
		}
		if err != nil {
			return nil, "", err
		}
	}
	if chars != nil {
		return nil, strings.TrimRight(string(chars), "\x00"), nil
	}
	return out, "", nil
}

// decodeTimes converts raw time-axis values with CF-style units
// ("days since 1800-01-01 00:00:00.0") to UTC timestamps, rounded to
// the nearest second.
func decodeTimes(vals []float64, units string) ([]time.Time, error) {
	unit, epoch, err := parseTimeUnits(units)
	if err != nil {
		return nil, err
	}
	times := make([]time.Time, len(vals))
	for i, v := range vals {
		sec := v * unit
		times[i] = epoch.Add(time.Duration(math.Round(sec)) * time.Second).UTC()
	}
	return times, nil
}

// parseTimeUnits splits a CF time-units attribute into the unit length
// in seconds and the epoch.
func parseTimeUnits(units string) (float64, time.Time, error) {
	parts := strings.SplitN(units, " since ", 2)
	if len(parts) != 2 {
		return 0, time.Time{}, fmt.Errorf("flux: unsupported time units %q", units)
	}
	var unit float64
	switch strings.ToLower(strings.TrimSpace(parts[0])) {
	case "days", "day":
		unit = 86400
	case "hours", "hour":
		unit = 3600
	case "minutes", "minute":
		unit = 60
	case "seconds", "second":
		unit = 1
	default:
		return 0, time.Time{}, fmt.Errorf("flux: unsupported time unit %q", parts[0])
	}
	epochStr := strings.TrimSpace(parts[1])
	for _, layout := range []string{
		"2006-01-02 15:04:05.9",
		"2006-01-02 15:04:05",
		"2006-01-02 15:04",
		"2006-01-02",
	} {
		if t, err := time.Parse(layout, epochStr); err == nil {
			return unit, t.UTC(), nil
		}
	}
	return 0, time.Time{}, fmt.Errorf("flux: unsupported time epoch %q", epochStr)
}
