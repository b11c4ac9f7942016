// Package manifest owns the output key layout and writes the per-target
// manifests that list a job's data files.
//
// Every object lives under
//
//	amc/{dataset_id}/{update_strategy}/{file_format}/{country_code}/{target}|{caller_id}/
//
// and the uploader on the receiving side recovers the instance and caller
// from the key, so the layout is a contract.
package manifest

import (
	"fmt"
	"net/url"
	"strings"
)

// Root is the first key segment of every output object.
const Root = "amc"

// NullCountry is the country segment used when no country code is set.
const NullCountry = "null"

// Layout builds output keys for one job.
// Example:
//
//	l := manifest.Layout{DatasetID: "ds", UpdateStrategy: "ADDITIVE", FileFormat: "JSON", CountryCode: "US", CallerID: "user1"}
//	l.DataKey("amcabc123", "customers.json-0.gz")
//	// amc/ds/ADDITIVE/JSON/US/amcabc123|user1/customers.json-0.gz
type Layout struct {
	DatasetID      string
	UpdateStrategy string
	FileFormat     string
	CountryCode    string
	CallerID       string
}

// Prefix returns the key prefix shared by all targets.
func (l Layout) Prefix() string {
	country := l.CountryCode
	if country == "" {
		country = NullCountry
	}
	return strings.Join([]string{Root, l.DatasetID, l.UpdateStrategy, l.FileFormat, country}, "/")
}

// TargetDir returns the directory holding one target's objects.
func (l Layout) TargetDir(target string) string {
	return l.Prefix() + "/" + TargetSegment(target) + "|" + l.CallerID
}

// DataKey returns the key of a data file for target.
func (l Layout) DataKey(target, name string) string {
	return l.TargetDir(target) + "/" + name
}

// ManifestKey returns the key of target's manifest.
func (l Layout) ManifestKey(target, stem string) string {
	return l.TargetDir(target) + "/" + stem + ".txt"
}

// TargetSegment returns the identifier a target is filed and tagged under.
// Destination endpoints given as URLs use their host name.
func TargetSegment(target string) string {
	if u, err := url.Parse(target); err == nil && u.Scheme != "" && u.Host != "" {
		return u.Hostname()
	}
	return target
}

// ParseKey splits an output key back into its layout, target and file name.
func ParseKey(key string) (Layout, string, string, error) {
	parts := strings.Split(strings.TrimPrefix(key, "/"), "/")
	if len(parts) != 7 || parts[0] != Root {
		return Layout{}, "", "", fmt.Errorf("unexpected output key %q", key)
	}
	target, caller, ok := strings.Cut(parts[5], "|")
	if !ok {
		return Layout{}, "", "", fmt.Errorf("output key %q has no caller id", key)
	}
	l := Layout{
		DatasetID:      parts[1],
		UpdateStrategy: parts[2],
		FileFormat:     parts[3],
		CountryCode:    parts[4],
		CallerID:       caller,
	}
	if l.CountryCode == NullCountry {
		l.CountryCode = ""
	}
	return l, target, parts[6], nil
}

// BaseName strips a trailing ".gz" from the source file name.
func BaseName(sourceName string) string {
	return strings.TrimSuffix(sourceName, ".gz")
}

// Stem strips the last extension from a base name: "data.json" becomes
// "data".
func Stem(base string) string {
	if i := strings.LastIndex(base, "."); i > 0 {
		return base[:i]
	}
	return base
}
