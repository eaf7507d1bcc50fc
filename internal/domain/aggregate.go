package domain

import (
	"math"
	"sort"
)

// Category is a gold-layer brewery counter.
type Category int

const (
	CategoryBrewpub Category = iota
	CategoryProprietor
	CategoryContract
	CategoryClosed
	CategoryMicro
	CategoryLarge
	CategoryOther

	numCategories = int(CategoryOther) + 1
)

var categoryNames = [numCategories]string{
	"brewpub", "proprietor", "contract", "closed", "micro", "large", "other",
}

// String returns the brewery_type spelling of the category.
func (c Category) String() string {
	if c < 0 || int(c) >= numCategories {
		return "unknown"
	}
	return categoryNames[c]
}

// Column returns the gold column holding the category's counter.
func (c Category) Column() string {
	return "tot_" + c.String()
}

// Categories lists the counters in gold column order.
func Categories() []Category {
	out := make([]Category, numCategories)
	for i := range out {
		out[i] = Category(i)
	}
	return out
}

// Classify maps a brewery_type to its counter. Only exact, case-sensitive
// matches of the six named categories count; everything else is other.
func Classify(breweryType *string) Category {
	if breweryType == nil {
		return CategoryOther
	}
	for c := CategoryBrewpub; c < CategoryOther; c++ {
		if *breweryType == categoryNames[c] {
			return c
		}
	}
	return CategoryOther
}

// Observation is the slice of a silver row the aggregation needs.
type Observation struct {
	DateRequest string
	Location    string
	BreweryType *string
}

// ObservationsFromRecords projects normalized records onto observations.
func ObservationsFromRecords(records []NormalizedRecord) []Observation {
	out := make([]Observation, len(records))
	for i, r := range records {
		out[i] = Observation{DateRequest: r.DateRequest, Location: r.Location, BreweryType: r.BreweryType}
	}
	return out
}

type groupKey struct {
	dateRequest string
	location    string
}

// indicators holds one 0/1 flag per category.
type indicators [numCategories]int64

type indicatorRow struct {
	key   groupKey
	flags indicators
}

type groupTotals struct {
	sums  indicators
	count int64
}

// Aggregate counts breweries per category for every (date_request, location)
// pair. Rows come back sorted by date_request then location.
func Aggregate(observations []Observation) ([]LocationAggregate, error) {
	rows := toIndicators(observations)
	groups := reduceByKey(rows)
	return project(groups)
}

// toIndicators derives the seven flags of each observation.
func toIndicators(observations []Observation) []indicatorRow {
	rows := make([]indicatorRow, len(observations))
	for i, o := range observations {
		rows[i].key = groupKey{dateRequest: o.DateRequest, location: o.Location}
		rows[i].flags[Classify(o.BreweryType)] = 1
	}
	return rows
}

// reduceByKey sums the flags per key and counts rows per key separately.
func reduceByKey(rows []indicatorRow) map[groupKey]*groupTotals {
	groups := make(map[groupKey]*groupTotals)
	for _, row := range rows {
		g, ok := groups[row.key]
		if !ok {
			g = &groupTotals{}
			groups[row.key] = g
		}
		for c, v := range row.flags {
			g.sums[c] += v
		}
		g.count++
	}
	return groups
}

// project casts every counter to int32 and emits one row per group.
func project(groups map[groupKey]*groupTotals) ([]LocationAggregate, error) {
	keys := make([]groupKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].dateRequest != keys[j].dateRequest {
			return keys[i].dateRequest < keys[j].dateRequest
		}
		return keys[i].location < keys[j].location
	})

	out := make([]LocationAggregate, 0, len(keys))
	for _, k := range keys {
		g := groups[k]
		var counters [numCategories]int32
		for c := range counters {
			v, err := toInt32(g.sums[c], k.location, Category(c).Column())
			if err != nil {
				return nil, err
			}
			counters[c] = v
		}
		total, err := toInt32(g.count, k.location, "tot_brewery")
		if err != nil {
			return nil, err
		}

		out = append(out, LocationAggregate{
			DateRequest:   k.dateRequest,
			Location:      k.location,
			TotBrewpub:    counters[CategoryBrewpub],
			TotProprietor: counters[CategoryProprietor],
			TotContract:   counters[CategoryContract],
			TotClosed:     counters[CategoryClosed],
			TotMicro:      counters[CategoryMicro],
			TotLarge:      counters[CategoryLarge],
			TotOther:      counters[CategoryOther],
			TotBrewery:    total,
		})
	}
	return out, nil
}

func toInt32(v int64, location, column string) (int32, error) {
	if v < math.MinInt32 || v > math.MaxInt32 {
		return 0, &CastError{Location: location, Column: column, Value: v}
	}
	return int32(v), nil
}

// Counter returns the value of category c in a.
func (a LocationAggregate) Counter(c Category) int32 {
	switch c {
	case CategoryBrewpub:
		return a.TotBrewpub
	case CategoryProprietor:
		return a.TotProprietor
	case CategoryContract:
		return a.TotContract
	case CategoryClosed:
		return a.TotClosed
	case CategoryMicro:
		return a.TotMicro
	case CategoryLarge:
		return a.TotLarge
	case CategoryOther:
		return a.TotOther
	default:
		return 0
	}
}
