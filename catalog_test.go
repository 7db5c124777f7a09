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
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestCatalogURL(t *testing.T) {
	tests := []struct {
		obj    string
		params map[string]string
		want   string
	}{
		{"site", nil, CatalogBase + "catalog.xml"},
		{"version", map[string]string{"site": "AdelaideRiver"},
			CatalogBase + "AdelaideRiver/catalog.xml"},
		{"processing_level", map[string]string{"site": "AdelaideRiver", "version": "2024_v5"},
			CatalogBase + "AdelaideRiver/2024_v5/catalog.xml"},
		{"dataset", map[string]string{"site": "AdelaideRiver", "version": "2024_v5", "processing_level": "L3"},
			CatalogBase + "AdelaideRiver/2024_v5/L3/default/catalog.xml"},
	}
	for _, test := range tests {
		got, err := CatalogURL(test.obj, test.params)
		if err != nil {
			t.Fatalf("%s: %v", test.obj, err)
		}
		if got != test.want {
			t.Errorf("%s: got %s, want %s", test.obj, got, test.want)
		}
	}
	if !strings.HasSuffix(tests[3].want, "AdelaideRiver/2024_v5/L3/default/catalog.xml") {
		t.Errorf("dataset URL does not end with the expected subpath: %s", tests[3].want)
	}
}

func TestCatalogURLInvalidObject(t *testing.T) {
	_, err := CatalogURL("level", nil)
	if err == nil {
		t.Fatal("expected an error for an invalid catalog object kind")
	}
	var fe *Error
	if !errors.As(err, &fe) || fe.Kind != KindNotFound {
		t.Errorf("got %v, want a not-found Error", err)
	}
}

func TestCatalogURLMissingParameter(t *testing.T) {
	_, err := CatalogURL("dataset", map[string]string{"site": "AdelaideRiver"})
	if err == nil {
		t.Fatal("expected an error for a missing template parameter")
	}
	if !strings.Contains(err.Error(), "version") {
		t.Errorf("error %q does not name the missing parameter", err)
	}
}

const refFixture = `<?xml version="1.0" encoding="UTF-8"?>
<catalog xmlns="http://www.unidata.ucar.edu/namespaces/thredds/InvCatalog/v1.0"
         xmlns:xlink="http://www.w3.org/1999/xlink" name="OzFlux">
  <catalogRef xlink:href="AdelaideRiver/catalog.xml" xlink:title="AdelaideRiver" name="AdelaideRiver"/>
  <catalogRef xlink:href="WallabyCreek/catalog.xml" xlink:title="WallabyCreek" name="WallabyCreek"/>
</catalog>
`

func TestParseCatalogRefs(t *testing.T) {
	url := CatalogBase + "catalog.xml"
	items, err := parseCatalog([]byte(refFixture), url, "catalogRef")
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]string{
		"AdelaideRiver": CatalogBase + "AdelaideRiver/catalog.xml",
		"WallabyCreek":  CatalogBase + "WallabyCreek/catalog.xml",
	}
	if !reflect.DeepEqual(items, want) {
		t.Errorf("got %v, want %v", items, want)
	}
}

const datasetFixture = `<?xml version="1.0" encoding="UTF-8"?>
<catalog xmlns="http://www.unidata.ucar.edu/namespaces/thredds/InvCatalog/v1.0"
         xmlns:xlink="http://www.w3.org/1999/xlink" name="OzFlux">
  <dataset name="AdelaideRiver_2024_v5_L6" ID="notafile"/>
  <dataset name="AdelaideRiver_L6_Daily.nc" urlPath="AdelaideRiver_L6_Daily.nc"/>
  <dataset name="AdelaideRiver_L6.nc" urlPath="AdelaideRiver_L6.nc"/>
</catalog>
`

func TestParseCatalogDatasets(t *testing.T) {
	url := "https://dap.tern.org.au/thredds/catalog/ecosystem_process/ozflux/AdelaideRiver/2024_v5/L6/default/catalog.xml"
	items, err := parseCatalog([]byte(datasetFixture), url, "dataset")
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]string{
		"daily": "https://dap.tern.org.au/thredds/dodsC/ecosystem_process/ozflux/AdelaideRiver/2024_v5/L6/default/AdelaideRiver_L6_Daily.nc",
		"30min": "https://dap.tern.org.au/thredds/dodsC/ecosystem_process/ozflux/AdelaideRiver/2024_v5/L6/default/AdelaideRiver_L6.nc",
	}
	if !reflect.DeepEqual(items, want) {
		t.Errorf("got %v, want %v", items, want)
	}
}

func TestDatasetLabel(t *testing.T) {
	tests := []struct{ filename, want string }{
		{"AdelaideRiver_L6_Daily.nc", "daily"},
		{"AdelaideRiver_L6_MONTHLY.nc", "monthly"},
		{"AdelaideRiver_L6_Annual.nc", "annual"},
		{"AdelaideRiver_L6_Cumulative.nc", "cumulative"},
		{"AdelaideRiver_L6_Summary.nc", "summary"},
		{"AdelaideRiver_L3.nc", "30min"},
		{"AdelaideRiver_L6_EP.nc", "30min"},
	}
	for _, test := range tests {
		if got := datasetLabel(test.filename); got != test.want {
			t.Errorf("%s: got %s, want %s", test.filename, got, test.want)
		}
	}
}

// A DOCTYPE with entity declarations must not expand; the semi-trusted
// data host cannot inject content through the parser.
func TestParseCatalogRejectsEntities(t *testing.T) {
	doc := `<?xml version="1.0"?>
<!DOCTYPE catalog [<!ENTITY xxe "pwned">]>
<catalog xmlns="http://www.unidata.ucar.edu/namespaces/thredds/InvCatalog/v1.0"
         xmlns:xlink="http://www.w3.org/1999/xlink">
  <catalogRef xlink:href="&xxe;/catalog.xml" name="&xxe;"/>
</catalog>
`
	items, err := parseCatalog([]byte(doc), CatalogBase+"catalog.xml", "catalogRef")
	if err == nil {
		for k := range items {
			if strings.Contains(k, "pwned") {
				t.Fatal("entity expanded into a catalog key")
			}
		}
		t.Fatal("expected a parse error for an undeclared entity")
	}
}

func TestGetVersions(t *testing.T) {
	times := fixtureTimes(time.Date(2007, 10, 17, 0, 30, 0, 0, time.UTC), 4)
	body := fixtureNC(t, "AdelaideRiver", -13.0769, 131.1178, times,
		defaultGlobals("AdelaideRiver"), defaultVars(len(times)))
	s := newFixtureServer(t, map[string][]byte{"AdelaideRiver": body})
	c := newTestClient(s)

	versions, err := c.GetVersions("AdelaideRiver")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"2023_v1", "2024_v2"}
	if !reflect.DeepEqual(versions, want) {
		t.Errorf("got %v, want %v", versions, want)
	}
}

func TestGetVersionsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	c := NewClient()
	c.BaseURL = srv.URL + catalogPath

	_, err := c.GetVersions("AdelaideRiver")
	if err == nil {
		t.Fatal("expected an error for a 404 catalog")
	}
	var fe *Error
	if !errors.As(err, &fe) {
		t.Fatalf("got %T, want *Error", err)
	}
	if fe.Kind != KindTransport || fe.Site != "AdelaideRiver" {
		t.Errorf("got kind %v site %q, want transport error for AdelaideRiver", fe.Kind, fe.Site)
	}
	if !strings.Contains(err.Error(), "AdelaideRiver") {
		t.Errorf("error %q does not name the site", err)
	}
}

func TestGetProcessingLevels(t *testing.T) {
	times := fixtureTimes(time.Date(2007, 10, 17, 0, 30, 0, 0, time.UTC), 4)
	body := fixtureNC(t, "AdelaideRiver", -13.0769, 131.1178, times,
		defaultGlobals("AdelaideRiver"), defaultVars(len(times)))
	s := newFixtureServer(t, map[string][]byte{"AdelaideRiver": body})
	c := newTestClient(s)

	levels, err := c.GetProcessingLevels("AdelaideRiver", "2024_v2")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(levels, []string{"L3", "L6"}) {
		t.Errorf("got %v, want [L3 L6]", levels)
	}
}

func TestUserAgentHeader(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
		w.Write([]byte(refFixture))
	}))
	defer srv.Close()
	c := NewClient()
	if _, err := c.CatalogItems(srv.URL+"/catalog.xml", "catalogRef"); err != nil {
		t.Fatal(err)
	}
	if got != "TERN-DATA-PACKAGE/flux-api" {
		t.Errorf("got User-Agent %q, want TERN-DATA-PACKAGE/flux-api", got)
	}
}
