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
	"net/http"
	"sync"

	"github.com/ctessum/geom"
)

// locationWorkers is the fan-out width of GetSites.
const locationWorkers = 6

// A SiteLocation describes a flux-tower site and its position, taken
// from the latest-version L6 default dataset.
type SiteLocation struct {
	Site string
	// Point is the tower position; X is longitude, Y is latitude.
	Point geom.Point
	Vegetation   string
	CanopyHeight string
	// Start and End are the declared temporal coverage.
	Start, End string
}

// GetSites lists every site in the catalog with its location. Sites
// are inspected by a fixed-size pool of workers; each worker constructs
// its own Client because a Client session must not be shared between
// concurrent fetches. The first failure aborts the whole call.
func (c *Client) GetSites() (map[string]SiteLocation, error) {
	names, err := c.GetSiteNames()
	if err != nil {
		return nil, err
	}

	jobs := make(chan string)
	var (
		mu        sync.Mutex
		locations = make(map[string]SiteLocation, len(names))
		firstErr  error
	)
	var wg sync.WaitGroup
	for i := 0; i < locationWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := &Client{
				HTTPClient: &http.Client{},
				Log:        c.Log,
				BaseURL:    c.BaseURL,
			}
			for site := range jobs {
				mu.Lock()
				failed := firstErr != nil
				mu.Unlock()
				if failed {
					continue // drain remaining work after the first failure
				}
				loc, err := w.location(site)
				mu.Lock()
				if err != nil {
					if firstErr == nil {
						firstErr = err
					}
				} else {
					locations[site] = loc
				}
				mu.Unlock()
			}
		}()
	}
	for _, site := range names {
		mu.Lock()
		abort := firstErr != nil
		mu.Unlock()
		if abort {
			break
		}
		jobs <- site
	}
	close(jobs)
	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	return locations, nil
}

// location inspects the site's latest-version L6 default dataset for
// its coordinates and coverage metadata.
func (c *Client) location(site string) (SiteLocation, error) {
	version, err := c.latestVersion(site)
	if err != nil {
		return SiteLocation{}, err
	}
	ds, err := c.GetL6Dataset(site, version, DefaultDataset, false)
	if err != nil {
		return SiteLocation{}, err
	}
	loc := SiteLocation{
		Site:         site,
		Vegetation:   ds.AttrString("vegetation"),
		CanopyHeight: ds.AttrString("canopy_height"),
		Start:        ds.AttrString("time_coverage_start"),
		End:          ds.AttrString("time_coverage_end"),
	}
	if len(ds.Longitude) > 0 && len(ds.Latitude) > 0 {
		loc.Point = geom.Point{X: ds.Longitude[0], Y: ds.Latitude[0]}
	}
	return loc, nil
}
