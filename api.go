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
	"time"
)

// GetDataset fetches the 30-min (default) dataset for the site, version
// and processing level. An empty level means L3. If missingAsNaN, the
// sentinel missing value is decoded to NaN (see OpenDatasetURL).
func (c *Client) GetDataset(site, version, level string, missingAsNaN bool) (*Dataset, error) {
	if level == "" {
		level = DefaultProcessingLevel
	}
	urls, err := c.DatasetURLs(site, version, level)
	if err != nil {
		return nil, &Error{Kind: errKind(err), Op: "get dataset",
			Site: site, Version: version, Level: level, Err: err}
	}
	url, ok := urls[DefaultDataset]
	if !ok {
		return nil, &Error{Kind: KindNotFound, Op: "get dataset",
			Site: site, Version: version, Level: level,
			Err: fmt.Errorf("no '%s' dataset in catalog", DefaultDataset)}
	}
	ds, err := c.OpenDatasetURL(url, missingAsNaN)
	if err != nil {
		return nil, &Error{Kind: KindUpstream, Op: "get dataset",
			Site: site, Version: version, Level: level, Err: err}
	}
	return ds, nil
}

// GetL6Dataset fetches the L6 dataset of the given type (30min, daily,
// monthly, annual, cumulative or summary) for the site and version.
func (c *Client) GetL6Dataset(site, version, dsType string, missingAsNaN bool) (*Dataset, error) {
	urls, err := c.DatasetURLs(site, version, "L6")
	if err != nil {
		return nil, &Error{Kind: errKind(err), Op: "get L6 dataset",
			Site: site, Version: version, Err: err}
	}
	url, ok := urls[dsType]
	if !ok {
		return nil, &Error{Kind: KindNotFound, Op: "get L6 dataset",
			Site: site, Version: version,
			Err: fmt.Errorf("requested '%s' dataset is not found", dsType)}
	}
	ds, err := c.OpenDatasetURL(url, missingAsNaN)
	if err != nil {
		return nil, &Error{Kind: KindUpstream, Op: "get L6 dataset",
			Site: site, Version: version, Err: err}
	}
	return ds, nil
}

// GetDatasets fetches the default dataset for each of the sites. The
// first failure aborts the whole call; there are no partial results.
func (c *Client) GetDatasets(sites []string, version, level string, missingAsNaN bool) (map[string]*Dataset, error) {
	datasets := make(map[string]*Dataset, len(sites))
	for _, site := range sites {
		ds, err := c.GetDataset(site, version, level, missingAsNaN)
		if err != nil {
			return nil, err
		}
		datasets[site] = ds
	}
	return datasets, nil
}

// resolveVersion replaces an empty version with the latest one
// available for the site.
func (c *Client) resolveVersion(site, version string) (string, error) {
	if version != "" {
		return version, nil
	}
	return c.latestVersion(site)
}

// GetGlobalAttributes returns the global attributes of the default
// dataset. An empty version means the latest available one.
func (c *Client) GetGlobalAttributes(site, version, level string) (map[string]interface{}, error) {
	version, err := c.resolveVersion(site, version)
	if err != nil {
		return nil, err
	}
	ds, err := c.GetDataset(site, version, level, false)
	if err != nil {
		return nil, err
	}
	return ds.Attrs, nil
}

// GetVariables returns the names of all variables (coordinates
// included) of the default dataset. An empty version means the latest
// available one.
func (c *Client) GetVariables(site, version, level string) ([]string, error) {
	version, err := c.resolveVersion(site, version)
	if err != nil {
		return nil, err
	}
	ds, err := c.GetDataset(site, version, level, false)
	if err != nil {
		return nil, err
	}
	return ds.VariableNames(), nil
}

// GetAttributes returns the attributes of the requested variables of
// the default dataset, keyed by variable name. A nil variables slice
// selects every variable; an unknown name is an error.
func (c *Client) GetAttributes(site, version, level string, variables []string) (map[string]map[string]interface{}, error) {
	version, err := c.resolveVersion(site, version)
	if err != nil {
		return nil, err
	}
	ds, err := c.GetDataset(site, version, level, false)
	if err != nil {
		return nil, err
	}
	if variables == nil {
		variables = ds.VariableNames()
	} else {
		for _, v := range variables {
			if !ds.HasVariable(v) {
				return nil, &Error{Kind: KindNotFound, Op: "get attributes", Site: site,
					Version: version, Level: level,
					Err: fmt.Errorf("variable '%s' not found", v)}
			}
		}
	}
	attrs := make(map[string]map[string]interface{}, len(variables))
	for _, v := range variables {
		if a, ok := ds.VariableAttrs(v); ok {
			attrs[v] = a
		}
	}
	return attrs, nil
}

// GetCoordinates returns the coordinate variable names of the default
// dataset.
func (c *Client) GetCoordinates(site, version, level string) ([]string, error) {
	ds, err := c.GetDataset(site, version, level, false)
	if err != nil {
		return nil, err
	}
	return ds.Coordinates(), nil
}

// GetTemporalRange returns the first and last timestamps of the default
// dataset's time axis.
func (c *Client) GetTemporalRange(site, version, level string) (start, end time.Time, err error) {
	ds, err := c.GetDataset(site, version, level, false)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start, end = ds.TemporalRange()
	return start, end, nil
}
