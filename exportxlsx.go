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
	"math"
	"sort"
	"strings"

	"github.com/tealeg/xlsx"
)

// nonDataVariables are carried in the datasets but excluded from the
// exported sheets.
var nonDataVariables = map[string]struct{}{
	"crs":          {},
	"station_name": {},
}

// ExportExcel exports the default dataset of the site as a three-sheet
// Excel workbook (Attr, Data, Flag). An empty version means the latest
// available one; an empty level means L6. The workbook file path is
// returned.
func (c *Client) ExportExcel(filename, site, version, level string) (string, error) {
	if !strings.HasSuffix(filename, ".xlsx") {
		return "", &Error{Kind: KindInvalidFormat, Op: "export dataset as Excel workbook",
			Site: site,
			Err:  fmt.Errorf("filename %s has invalid excel extension: must end with '.xlsx'", filename)}
	}
	version, err := c.resolveVersion(site, version)
	if err != nil {
		return "", err
	}
	if level == "" {
		level = "L6"
	}
	ds, err := c.GetDataset(site, version, level, false)
	if err != nil {
		return "", &Error{Kind: errKind(err), Op: "export dataset as Excel workbook",
			Site: site, Version: version, Level: level, Err: err}
	}
	if err := ds.WriteExcel(filename); err != nil {
		return "", &Error{Kind: KindUpstream, Op: "export dataset as Excel workbook",
			Site: site, Version: version, Level: level, Err: err}
	}
	c.logger().WithField("file", filename).Info("exported Excel workbook")
	return filename, nil
}

// WriteExcel writes the dataset as an Excel workbook with an attribute
// sheet, a data sheet and a QC-flag sheet.
func (d *Dataset) WriteExcel(filename string) error {
	f := xlsx.NewFile()
	if err := d.addAttrSheet(f); err != nil {
		return err
	}
	if err := d.addDataSheet(f); err != nil {
		return err
	}
	if err := d.addFlagSheet(f); err != nil {
		return err
	}
	return f.Save(filename)
}

// exportVariables returns the exportable data variable names sorted by
// name. QC-flag variables are excluded when withFlags is false.
func (d *Dataset) exportVariables(withFlags bool) []string {
	var vars []string
	for name := range d.Vars {
		if _, skip := nonDataVariables[name]; skip {
			continue
		}
		if !withFlags && strings.Contains(name, "QCFlag") {
			continue
		}
		vars = append(vars, name)
	}
	sort.Strings(vars)
	return vars
}

// addAttrSheet writes the global attributes as key/value rows followed
// by every variable's attribute rows.
func (d *Dataset) addAttrSheet(f *xlsx.File) error {
	sheet, err := f.AddSheet("Attr")
	if err != nil {
		return err
	}
	sheet.Cell(0, 0).SetString("Global attributes")
	row := 1
	for _, k := range sortedAttrKeys(d.Attrs) {
		sheet.Cell(row, 0).SetString(k)
		sheet.Cell(row, 1).SetString(attrString(d.Attrs[k]))
		row++
	}

	row++
	sheet.Cell(row, 0).SetString("Variable attributes")
	row++
	for _, name := range d.exportVariables(true) {
		sheet.Cell(row, 0).SetString(name)
		attrs := d.Vars[name].Attrs
		for _, k := range sortedAttrKeys(attrs) {
			sheet.Cell(row, 1).SetString(k)
			sheet.Cell(row, 2).SetString(attrString(attrs[k]))
			row++
		}
	}
	return nil
}

// addDataSheet writes one time-stamped row per time step and one
// column per non-QC-flag variable. Rows 0-2 carry long name, units and
// variable name; values begin at row 3.
func (d *Dataset) addDataSheet(f *xlsx.File) error {
	sheet, err := f.AddSheet("Data")
	if err != nil {
		return err
	}
	const (
		headerRow = 2
		valueRow  = 3
	)
	sheet.Cell(headerRow, 0).SetString("xlDateTime")
	for i, t := range d.Time {
		sheet.Cell(valueRow+i, 0).SetDateTime(t)
	}
	col := 1
	for _, name := range d.exportVariables(false) {
		v := d.Vars[name]
		sheet.Cell(0, col).SetString(longName(v.Attrs))
		sheet.Cell(1, col).SetString(unitsOf(v.Attrs))
		sheet.Cell(headerRow, col).SetString(name)
		for i := range d.Time {
			if i < len(v.Data) {
				sheet.Cell(valueRow+i, col).SetFloat(v.Data[i])
			}
		}
		col++
	}
	return nil
}

// addFlagSheet writes the QC-flag values of every variable that has a
// paired flag variable; values begin at row 1.
func (d *Dataset) addFlagSheet(f *xlsx.File) error {
	sheet, err := f.AddSheet("Flag")
	if err != nil {
		return err
	}
	sheet.Cell(0, 0).SetString("xlDateTime")
	for i, t := range d.Time {
		sheet.Cell(1+i, 0).SetDateTime(t)
	}
	col := 1
	for _, name := range d.exportVariables(false) {
		flag, ok := d.Vars[name+QCFlagSuffix]
		if !ok {
			continue
		}
		sheet.Cell(0, col).SetString(name)
		for i := range d.Time {
			if i < len(flag.Data) {
				sheet.Cell(1+i, col).SetInt(int(math.Round(flag.Data[i])))
			}
		}
		col++
	}
	return nil
}

// longName returns the variable's descriptive name attribute.
func longName(attrs map[string]interface{}) string {
	if v, ok := attrs["long_name"]; ok {
		return attrString(v)
	}
	return attrString(attrs["Description"])
}

// unitsOf returns the variable's units attribute.
func unitsOf(attrs map[string]interface{}) string {
	if v, ok := attrs["units"]; ok {
		return attrString(v)
	}
	return attrString(attrs["Units"])
}

func sortedAttrKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
