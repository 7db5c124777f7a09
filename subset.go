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
	"sort"
	"strings"
	"time"
)

// SubsetOptions selects the variables and time range of a subset.
type SubsetOptions struct {
	// Version of the dataset; empty means the latest available one.
	Version string
	// ProcessingLevel of the dataset; empty means L3.
	ProcessingLevel string
	// Variables to keep. Nil keeps every variable; an unknown name is
	// an error.
	Variables []string
	// Start and End bound the time axis (closed interval) as ISO-8601
	// strings (e.g. "2007-10-17" or "2007-10-17 14:30"). An empty
	// bound defaults to the dataset's first/last timestamp.
	Start, End string
	// KeepAttrs keeps the per-variable attribute mappings.
	KeepAttrs bool
	// KeepQCFlags adds each selected variable's paired QC-flag
	// variable, when one exists.
	KeepQCFlags bool
	// MissingAsNaN decodes the sentinel missing value to NaN.
	MissingAsNaN bool
}

// GetSubset fetches the default dataset for the site and returns the
// subset selected by o.
func (c *Client) GetSubset(site string, o SubsetOptions) (*Dataset, error) {
	version, err := c.resolveVersion(site, o.Version)
	if err != nil {
		return nil, err
	}
	ds, err := c.GetDataset(site, version, o.ProcessingLevel, o.MissingAsNaN)
	if err != nil {
		return nil, err
	}
	sub, err := ds.Subset(o.Variables, o.Start, o.End, o.KeepAttrs, o.KeepQCFlags)
	if err != nil {
		return nil, &Error{Kind: errKind(err), Op: "get subset", Site: site, Err: err}
	}
	return sub, nil
}

// GetSubsets applies GetSubset to each site independently and collects
// the results by site name. The first failure aborts the whole call.
func (c *Client) GetSubsets(sites []string, o SubsetOptions) (map[string]*Dataset, error) {
	subsets := make(map[string]*Dataset, len(sites))
	for _, site := range sites {
		sub, err := c.GetSubset(site, o)
		if err != nil {
			return nil, err
		}
		subsets[site] = sub
	}
	return subsets, nil
}

// Subset returns a new dataset restricted to the requested variables
// and the closed time interval [start, end]. The receiver is not
// modified. See SubsetOptions for the argument semantics.
func (d *Dataset) Subset(variables []string, start, end string, keepAttrs, keepQCFlags bool) (*Dataset, error) {
	for _, v := range variables {
		if !d.HasVariable(v) {
			return nil, &Error{Kind: KindNotFound,
				Op: fmt.Sprintf("subset variable '%s'", v),
				Err: fmt.Errorf("variable '%s' not found", v)}
		}
	}
	selection := variables
	if selection == nil {
		selection = d.dataVariableNames()
	} else if keepQCFlags {
		selected := make(map[string]struct{}, len(selection))
		for _, v := range selection {
			selected[v] = struct{}{}
		}
		for _, v := range variables {
			if strings.Contains(v, QCFlagSuffix) {
				continue
			}
			flag := v + QCFlagSuffix
			if _, dup := selected[flag]; dup {
				continue
			}
			if _, ok := d.Vars[flag]; ok {
				selection = append(selection, flag)
				selected[flag] = struct{}{}
			}
		}
	}

	lo, hi := 0, len(d.Time) // slice bounds on the time axis
	if start != "" || end != "" {
		startT, endT := d.TemporalRange()
		startT, endT = startT.Truncate(time.Second), endT.Truncate(time.Second)
		var err error
		if start != "" {
			if startT, err = parseISOTime(start); err != nil {
				return nil, &Error{Kind: KindInvalidFormat, Op: "parse subset bounds",
					Err: fmt.Errorf("invalid ISO-format start time %s", start)}
			}
		}
		if end != "" {
			if endT, err = parseISOTime(end); err != nil {
				return nil, &Error{Kind: KindInvalidFormat, Op: "parse subset bounds",
					Err: fmt.Errorf("invalid ISO-format end time %s", end)}
			}
		}
		lo = sort.Search(len(d.Time), func(i int) bool { return !d.Time[i].Before(startT) })
		hi = sort.Search(len(d.Time), func(i int) bool { return d.Time[i].After(endT) })
	}

	sub := &Dataset{
		Attrs:      copyAttrs(d.Attrs),
		Time:       append([]time.Time(nil), d.Time[lo:hi]...),
		Latitude:   append([]float64(nil), d.Latitude...),
		Longitude:  append([]float64(nil), d.Longitude...),
		Vars:       make(map[string]*Variable, len(selection)),
		CoordAttrs: make(map[string]map[string]interface{}, len(d.CoordAttrs)),
		coords:     append([]string(nil), d.coords...),
	}
	for name, attrs := range d.CoordAttrs {
		if keepAttrs {
			sub.CoordAttrs[name] = copyAttrs(attrs)
		} else {
			sub.CoordAttrs[name] = map[string]interface{}{}
		}
	}
	sub.names = append(sub.names, sub.coords...)
	for _, name := range selection {
		v, ok := d.Vars[name]
		if !ok {
			continue // coordinates are always carried
		}
		nv := &Variable{Name: name, Text: v.Text}
		if v.Data != nil {
			// Variables not bound to the time axis (e.g. crs) are kept whole.
			if len(v.Data) == len(d.Time) {
				nv.Data = append([]float64(nil), v.Data[lo:hi]...)
			} else {
				nv.Data = append([]float64(nil), v.Data...)
			}
		}
		if keepAttrs {
			nv.Attrs = copyAttrs(v.Attrs)
		} else {
			nv.Attrs = map[string]interface{}{}
		}
		sub.Vars[name] = nv
		sub.names = append(sub.names, name)
	}
	return sub, nil
}

// dataVariableNames returns the non-coordinate variable names in file
// order.
func (d *Dataset) dataVariableNames() []string {
	var out []string
	for _, name := range d.names {
		if _, ok := d.Vars[name]; ok {
			out = append(out, name)
		}
	}
	return out
}

func copyAttrs(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// parseISOTime accepts the ISO-8601 date/time layouts produced by
// catalog metadata and user input.
func parseISOTime(s string) (time.Time, error) {
	for _, layout := range []string{
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04",
		"2006-01-02 15:04",
		"2006-01-02",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("flux: cannot parse '%s' as ISO-8601 date/time", s)
}
