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
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"
)

// CatalogBase is the root of the production TERN flux data catalog.
const CatalogBase = "https://dap.tern.org.au/thredds/catalog/ecosystem_process/ozflux/"

// DefaultDataset labels catalog entries whose filename carries no
// recognized temporal-aggregation suffix.
const DefaultDataset = "30min"

// THREDDS InvCatalog namespaces.
const (
	invCatalogNS = "http://www.unidata.ucar.edu/namespaces/thredds/InvCatalog/v1.0"
	xlinkNS      = "http://www.w3.org/1999/xlink"
)

// catalogSubpath maps a catalog object kind to its URL subpath
// template. Template keys must all be present in the parameter map.
var catalogSubpath = map[string]string{
	"site":             "",
	"version":          "{site}/",
	"processing_level": "{site}/{version}/",
	"dataset":          "{site}/{version}/{processing_level}/default/",
}

// aggregationLabels are the recognized temporal-aggregation suffixes of
// dataset filenames, e.g. AdelaideRiver_L6_Daily.nc.
var aggregationLabels = map[string]struct{}{
	"daily":      {},
	"monthly":    {},
	"annual":     {},
	"cumulative": {},
	"summary":    {},
}

// CatalogURL builds the catalog access URL for the given object kind
// ("site", "version", "processing_level" or "dataset") against the
// production catalog root. Parameter substitution fails if a template
// key is absent from params.
func CatalogURL(obj string, params map[string]string) (string, error) {
	return catalogURLAt(CatalogBase, obj, params)
}

func catalogURLAt(base, obj string, params map[string]string) (string, error) {
	tpl, ok := catalogSubpath[obj]
	if !ok {
		return "", &Error{Kind: KindNotFound, Op: fmt.Sprintf("resolve invalid '%s' catalog item object", obj)}
	}
	subpath, err := expandTemplate(tpl, params)
	if err != nil {
		return "", err
	}
	return base + subpath + "catalog.xml", nil
}

// expandTemplate substitutes {key} placeholders from params. A
// placeholder with no matching key is an error; there is no defaulting.
func expandTemplate(tpl string, params map[string]string) (string, error) {
	var b strings.Builder
	for {
		i := strings.IndexByte(tpl, '{')
		if i < 0 {
			b.WriteString(tpl)
			return b.String(), nil
		}
		j := strings.IndexByte(tpl[i:], '}')
		if j < 0 {
			return "", fmt.Errorf("flux: unterminated placeholder in template %q", tpl)
		}
		key := tpl[i+1 : i+j]
		v, ok := params[key]
		if !ok {
			return "", fmt.Errorf("flux: missing template parameter '%s'", key)
		}
		b.WriteString(tpl[:i])
		b.WriteString(v)
		tpl = tpl[i+j+1:]
	}
}

// CatalogItems fetches the catalog XML document at url and returns the
// named items of the given type mapped to their access URLs.
//
// For itype "catalogRef" the key is the reference name and the value is
// url with its trailing catalog.xml replaced by the xlink href. For
// itype "dataset" only .nc filenames are considered; the key is the
// temporal-aggregation label inferred from the filename suffix (or
// DefaultDataset) and the value is the catalog URL rewritten to the
// dodsC data-access address. Colliding labels are last-writer-wins.
func (c *Client) CatalogItems(url, itype string) (map[string]string, error) {
	body, err := c.get(url)
	if err != nil {
		return nil, err
	}
	items, err := parseCatalog(body, url, itype)
	if err != nil {
		return nil, err
	}
	c.logger().WithFields(logFields(url, itype, len(items))).Debug("fetched catalog")
	return items, nil
}

func logFields(url, itype string, n int) map[string]interface{} {
	return map[string]interface{}{"url": url, "type": itype, "items": n}
}

func parseCatalog(body []byte, url, itype string) (map[string]string, error) {
	d := xml.NewDecoder(bytes.NewReader(body))
	d.Strict = true
	// Leave the entity table empty so that nothing beyond the five XML
	// built-ins expands; encoding/xml never loads external entities or
	// DTDs, which the semi-trusted data host must not be able to trigger.
	d.Entity = map[string]string{}

	items := make(map[string]string)
	for {
		tok, err := d.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("flux: parsing catalog %s: %v", url, err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Space != invCatalogNS || se.Name.Local != itype {
			continue
		}
		switch itype {
		case "catalogRef":
			name := xmlAttr(se, "", "name")
			href := xmlAttr(se, xlinkNS, "href")
			if name == "" || href == "" {
				continue
			}
			items[name] = strings.ReplaceAll(url, "catalog.xml", href)
		case "dataset":
			// dataset name: e.g. AdelaideRiver_L6_Daily.nc
			name := xmlAttr(se, "", "name")
			if !strings.HasSuffix(name, ".nc") {
				continue
			}
			items[datasetLabel(name)] = strings.ReplaceAll(
				strings.ReplaceAll(url, "catalog.xml", name), "/catalog/", "/dodsC/")
		}
	}
	return items, nil
}

func xmlAttr(se xml.StartElement, space, local string) string {
	for _, a := range se.Attr {
		if a.Name.Local == local && (space == "" && a.Name.Space == "" || a.Name.Space == space) {
			return a.Value
		}
	}
	return ""
}

// datasetLabel infers the dataset-type label from a .nc filename. The
// last underscore-separated segment must match a known aggregation
// label case-insensitively, otherwise the default 30min label applies.
func datasetLabel(filename string) string {
	parts := strings.Split(strings.TrimSuffix(filename, ".nc"), "_")
	if len(parts) >= 3 {
		last := strings.ToLower(parts[len(parts)-1])
		if _, ok := aggregationLabels[last]; ok {
			return last
		}
	}
	return DefaultDataset
}

// GetSiteNames returns the names of all sites in the catalog.
func (c *Client) GetSiteNames() ([]string, error) {
	url, err := catalogURLAt(c.baseURL(), "site", nil)
	if err != nil {
		return nil, err
	}
	items, err := c.CatalogItems(url, "catalogRef")
	if err != nil {
		return nil, &Error{Kind: errKind(err), Op: "get sites", Err: err}
	}
	return sortedKeys(items), nil
}

// GetVersions returns the versions available for the site.
func (c *Client) GetVersions(site string) ([]string, error) {
	url, err := catalogURLAt(c.baseURL(), "version", map[string]string{"site": site})
	if err != nil {
		return nil, err
	}
	items, err := c.CatalogItems(url, "catalogRef")
	if err != nil {
		return nil, &Error{Kind: errKind(err), Op: "get versions", Site: site, Err: err}
	}
	return sortedKeys(items), nil
}

// GetProcessingLevels returns the processing levels available for the
// site and version.
func (c *Client) GetProcessingLevels(site, version string) ([]string, error) {
	url, err := catalogURLAt(c.baseURL(), "processing_level",
		map[string]string{"site": site, "version": version})
	if err != nil {
		return nil, err
	}
	items, err := c.CatalogItems(url, "catalogRef")
	if err != nil {
		return nil, &Error{Kind: errKind(err), Op: "get processing-levels",
			Site: site, Version: version, Err: err}
	}
	return sortedKeys(items), nil
}

// DatasetURLs returns the data-access URLs of the datasets available
// for the site, version and processing level, keyed by dataset-type
// label.
func (c *Client) DatasetURLs(site, version, level string) (map[string]string, error) {
	url, err := catalogURLAt(c.baseURL(), "dataset", map[string]string{
		"site": site, "version": version, "processing_level": level,
	})
	if err != nil {
		return nil, err
	}
	return c.CatalogItems(url, "dataset")
}

// latestVersion resolves an unspecified version to the
// lexicographically greatest version label for the site. Note this is
// a textual maximum, not a semantic-version one: '2024_v10' sorts
// before '2024_v2'.
func (c *Client) latestVersion(site string) (string, error) {
	versions, err := c.GetVersions(site)
	if err != nil {
		return "", err
	}
	if len(versions) == 0 {
		return "", &Error{Kind: KindNotFound, Op: "get versions", Site: site,
			Err: fmt.Errorf("no versions in catalog")}
	}
	return versions[len(versions)-1], nil
}

// sortedKeys returns the keys of m in lexicographic order.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// errKind maps an underlying error to a taxonomy kind, keeping the
// kind of an already classified *Error.
func errKind(err error) Kind {
	if e, ok := err.(*Error); ok {
		return e.Kind
	}
	return KindTransport
}
