// Package domain models the Open Brewery DB directory and the three lake
// layers derived from one snapshot of it.
//
// # Data Source
//
// The directory is served by https://api.openbrewerydb.org/breweries as a JSON
// array of brewery objects. Every attribute is published as text (coordinates
// included) and any attribute may be absent or null. A snapshot is one GET of
// that endpoint tagged with the local wall-clock time it completed, formatted
// as YYYYMMDD_HHMMSS (see [FormatTimestamp]).
//
// # Layers
//
//	bronze  date_request=<TS>/                        one row: data_request, response
//	silver  date_request=<TS>/location=<LOC>/         18 text columns, partitioned by location
//	gold    tab_location_type_brewery/date_request=<TS>/  one row per (date_request, location)
//
// # Location Key
//
// The silver layer derives a composite key from country and state:
//
//	coalesce(country, "NotDefinedCountry") + "-" + coalesce(state, "NotDefinedCountry")
//
// Both halves fall back to the same literal, so a missing state renders as
// "USA-NotDefinedCountry". Downstream tables already depend on that spelling.
// Empty strings are values, not nulls, and produce keys such as "-CA".
//
// # Categories
//
// brewery_type is matched case-sensitively against brewpub, proprietor,
// contract, closed, micro and large. Anything else, including a null type,
// counts as other. Each brewery contributes to exactly one counter, so the
// seven counters of a gold row always add up to tot_brewery.
package domain
