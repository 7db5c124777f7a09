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

// Package flux retrieves and exports TERN OzFlux ecosystem flux-tower
// datasets from the TERN THREDDS data catalog. It resolves the
// hierarchical catalog (site, version, processing level, dataset type),
// fetches the NetCDF time-series datasets the catalog points at, and
// provides subsetting, attribute inspection and export to Excel
// workbooks and OneFlux-format CSV files.
package flux

import (
	"fmt"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"
)

// userAgent tags every catalog and data request so that server-side
// access statistics can attribute traffic to this package.
const userAgent = "TERN-DATA-PACKAGE/flux-api"

// DefaultProcessingLevel is the processing level used when the caller
// does not specify one.
const DefaultProcessingLevel = "L3"

// A Client accesses the TERN flux data catalog and the datasets it
// points at. The zero value is usable; NewClient fills in the defaults
// explicitly. A Client must not be shared between workers that fetch
// concurrently; each worker should construct its own (see GetSites).
type Client struct {
	// HTTPClient performs catalog and dataset requests.
	// If nil, http.DefaultClient is used.
	HTTPClient *http.Client

	// Log receives progress information. If nil, the logrus standard
	// logger is used.
	Log logrus.FieldLogger

	// BaseURL is the root of the THREDDS flux catalog. If empty, the
	// production TERN catalog root is used.
	BaseURL string
}

// NewClient returns a Client configured for the production TERN
// catalog.
func NewClient() *Client {
	return &Client{
		HTTPClient: http.DefaultClient,
		Log:        logrus.StandardLogger(),
		BaseURL:    CatalogBase,
	}
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) logger() logrus.FieldLogger {
	if c.Log != nil {
		return c.Log
	}
	return logrus.StandardLogger()
}

func (c *Client) baseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return CatalogBase
}

// get issues a GET request with the package User-Agent header attached
// and returns the response body. A non-success status is an error.
func (c *Client) get(url string) ([]byte, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("flux: creating request for %s: %v", url, err)
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("flux: GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("flux: GET %s: %s", url, resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("flux: reading response from %s: %v", url, err)
	}
	return body, nil
}
