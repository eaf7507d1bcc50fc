package domain

// NotDefinedSentinel replaces a null country or a null state in the location
// key. The same literal is used for both halves.
const NotDefinedSentinel = "NotDefinedCountry"

// LocationKey builds the silver partition key from country and state.
func LocationKey(country, state *string) string {
	return coalesce(country, NotDefinedSentinel) + "-" + coalesce(state, NotDefinedSentinel)
}

func coalesce(v *string, fallback string) string {
	if v == nil {
		return fallback
	}
	return *v
}

// Normalize stamps every record with the capture timestamp and its location.
func Normalize(records []BreweryRecord, dateRequest string) []NormalizedRecord {
	out := make([]NormalizedRecord, len(records))
	for i, rec := range records {
		out[i] = NormalizedRecord{
			DateRequest:   dateRequest,
			BreweryRecord: rec,
			Location:      LocationKey(rec.Country, rec.State),
		}
	}
	return out
}
