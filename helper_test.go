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
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ctessum/cdf"
)

var fixtureEpoch = time.Date(1800, 1, 1, 0, 0, 0, 0, time.UTC)

// fixtureTimes builds a 30-min time axis of n steps ending at
// successive half hours, starting at start.
func fixtureTimes(start time.Time, n int) []time.Time {
	times := make([]time.Time, n)
	for i := range times {
		times[i] = start.Add(time.Duration(i) * 30 * time.Minute)
	}
	return times
}

type fixtureVar struct {
	name  string
	data  []float64
	attrs map[string]interface{}
}

// fixtureNC writes a flux-tower NetCDF file with the given time axis,
// global attributes and data variables, and returns its contents.
func fixtureNC(t *testing.T, site string, lat, lon float64, times []time.Time, globals map[string]interface{}, vars []fixtureVar) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.nc")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}

	h := cdf.NewHeader(
		[]string{"time", "latitude", "longitude", "strlen"},
		[]int{len(times), 1, 1, len(site)})
	h.AddVariable("time", []string{"time"}, []float64{0})
	h.AddAttribute("time", "units", "days since 1800-01-01 00:00:00.0")
	h.AddAttribute("time", "long_name", "time")
	h.AddVariable("latitude", []string{"latitude"}, []float64{0})
	h.AddAttribute("latitude", "units", "degrees_north")
	h.AddVariable("longitude", []string{"longitude"}, []float64{0})
	h.AddAttribute("longitude", "units", "degrees_east")
	for _, v := range vars {
		h.AddVariable(v.name, []string{"time", "latitude", "longitude"}, []float64{0})
		for k, a := range v.attrs {
			h.AddAttribute(v.name, k, a)
		}
	}
	h.AddVariable("crs", []string{"latitude", "longitude"}, []int32{0})
	h.AddVariable("station_name", []string{"strlen"}, []uint8{0})
	for k, v := range globals {
		h.AddAttribute("", k, v)
	}
	h.Define()
	for _, err := range h.Check() {
		t.Fatalf("fixture header: %v", err)
	}

	nc, err := cdf.Create(f, h)
	if err != nil {
		t.Fatal(err)
	}
	days := make([]float64, len(times))
	for i, tt := range times {
		days[i] = tt.Sub(fixtureEpoch).Hours() / 24
	}
	writeFixtureVar(t, nc, "time", days)
	writeFixtureVar(t, nc, "latitude", []float64{lat})
	writeFixtureVar(t, nc, "longitude", []float64{lon})
	for _, v := range vars {
		writeFixtureVar(t, nc, v.name, v.data)
	}
	if _, err := nc.Writer("crs", nil, nil).Write([]int32{0}); err != nil && err != io.EOF {
		t.Fatal(err)
	}
	if _, err := nc.Writer("station_name", nil, nil).Write(site); err != nil && err != io.EOF {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	body, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return body
}

func writeFixtureVar(t *testing.T, nc *cdf.File, name string, data []float64) {
	t.Helper()
	if _, err := nc.Writer(name, nil, nil).Write(data); err != nil && err != io.EOF {
		t.Fatalf("writing fixture variable %s: %v", name, err)
	}
}

// defaultGlobals returns the global attributes of a fixture dataset.
func defaultGlobals(site string) map[string]interface{} {
	return map[string]interface{}{
		"site_name":           site,
		"fluxnet_id":          "AU-Ade",
		"time_step":           "30",
		"time_zone":           "Australia/Darwin",
		"tower_height":        "15m",
		"latitude":            "-13.0769",
		"longitude":           "131.1178",
		"vegetation":          "Savanna",
		"canopy_height":       "12.5m",
		"time_coverage_start": "2007-10-17 00:30:00",
		"time_coverage_end":   "2007-10-20 00:00:00",
	}
}

// defaultVars returns the data variables of a fixture dataset. Ta
// carries one sentinel cell and a QC flag; VPD is in kPa.
func defaultVars(n int) []fixtureVar {
	ta := make([]float64, n)
	flag := make([]float64, n)
	fsd := make([]float64, n)
	vpd := make([]float64, n)
	for i := 0; i < n; i++ {
		ta[i] = 20 + float64(i)
		fsd[i] = 500 + float64(i)
		vpd[i] = 1.5
	}
	ta[0] = FluxMissingValue
	flag[0] = 1
	return []fixtureVar{
		{"Ta", ta, map[string]interface{}{"long_name": "Air temperature", "units": "degC"}},
		{"Ta_QCFlag", flag, map[string]interface{}{"long_name": "Air temperature QC flag", "units": "1"}},
		{"Fsd", fsd, map[string]interface{}{"long_name": "Down-welling shortwave radiation", "units": "W/m^2"}},
		{"VPD", vpd, map[string]interface{}{"long_name": "Vapour pressure deficit", "units": "kPa"}},
	}
}

const catalogPath = "/thredds/catalog/ecosystem_process/ozflux/"

// fixtureServer serves a two-site THREDDS catalog tree plus the
// NetCDF files its dataset pages point at.
type fixtureServer struct {
	*httptest.Server
	nc map[string][]byte // keyed by filename
}

// newFixtureServer starts a catalog server for the given sites, each
// serving versions 2023_v1 and 2024_v2 with levels L3 and L6.
func newFixtureServer(t *testing.T, sites map[string][]byte) *fixtureServer {
	t.Helper()
	s := &fixtureServer{nc: make(map[string][]byte)}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		switch {
		case strings.HasPrefix(path, "/thredds/dodsC/"):
			body, ok := s.nc[filepath.Base(path)]
			if !ok {
				http.NotFound(w, r)
				return
			}
			w.Write(body)
		case path == catalogPath+"catalog.xml":
			var refs strings.Builder
			for site := range sites {
				fmt.Fprintf(&refs, catalogRefXML, site, site+"/catalog.xml")
			}
			fmt.Fprintf(w, catalogXML, refs.String())
		case strings.HasSuffix(path, "/catalog.xml"):
			rel := strings.TrimSuffix(strings.TrimPrefix(path, catalogPath), "/catalog.xml")
			parts := strings.Split(rel, "/")
			switch len(parts) {
			case 1: // versions for a site
				var refs strings.Builder
				for _, v := range []string{"2023_v1", "2024_v2"} {
					fmt.Fprintf(&refs, catalogRefXML, v, v+"/catalog.xml")
				}
				fmt.Fprintf(w, catalogXML, refs.String())
			case 2: // processing levels
				var refs strings.Builder
				for _, l := range []string{"L3", "L6"} {
					fmt.Fprintf(&refs, catalogRefXML, l, l+"/catalog.xml")
				}
				fmt.Fprintf(w, catalogXML, refs.String())
			case 4: // datasets under <site>/<version>/<level>/default
				site, level := parts[0], parts[2]
				var ds strings.Builder
				fmt.Fprintf(&ds, datasetXML, fmt.Sprintf("%s_%s.nc", site, level))
				if level == "L6" {
					fmt.Fprintf(&ds, datasetXML, fmt.Sprintf("%s_%s_Daily.nc", site, level))
				}
				fmt.Fprintf(w, catalogXML, ds.String())
			default:
				http.NotFound(w, r)
			}
		default:
			http.NotFound(w, r)
		}
	})
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Server.Close)

	for site, body := range sites {
		for _, name := range []string{
			site + "_L3.nc", site + "_L4.nc", site + "_L6.nc", site + "_L6_Daily.nc",
		} {
			s.nc[name] = body
		}
	}
	return s
}

// base returns the catalog root URL for a Client.
func (s *fixtureServer) base() string {
	return s.Server.URL + catalogPath
}

const catalogXML = `<?xml version="1.0" encoding="UTF-8"?>
<catalog xmlns="http://www.unidata.ucar.edu/namespaces/thredds/InvCatalog/v1.0"
         xmlns:xlink="http://www.w3.org/1999/xlink" name="OzFlux">
%s</catalog>
`

const catalogRefXML = `  <catalogRef xlink:href="%[2]s" xlink:title="%[1]s" name="%[1]s"/>
`

const datasetXML = `  <dataset name="%[1]s" urlPath="%[1]s"/>
`

// newTestClient returns a Client pointed at the fixture server.
func newTestClient(s *fixtureServer) *Client {
	c := NewClient()
	c.BaseURL = s.base()
	return c
}
