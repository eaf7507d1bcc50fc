package domain

// Capture is one full fetch of the brewery directory.
type Capture struct {
	Timestamp string // YYYYMMDD_HHMMSS, see TimestampLayout
	Payload   string // raw response body, untouched
}

// BreweryRecord is one entry of the directory projected onto the fixed
// schema. A nil field means the source omitted it or sent null.
type BreweryRecord struct {
	ID            *string `json:"id"`
	Name          *string `json:"name"`
	BreweryType   *string `json:"brewery_type"`
	Address1      *string `json:"address_1"`
	Address2      *string `json:"address_2"`
	Address3      *string `json:"address_3"`
	City          *string `json:"city"`
	StateProvince *string `json:"state_province"`
	PostalCode    *string `json:"postal_code"`
	Country       *string `json:"country"`
	Longitude     *string `json:"longitude"`
	Latitude      *string `json:"latitude"`
	Phone         *string `json:"phone"`
	WebsiteURL    *string `json:"website_url"`
	State         *string `json:"state"`  // legacy duplicate of state_province
	Street        *string `json:"street"` // legacy duplicate of address_1
}

// NormalizedRecord is a silver-layer row.
type NormalizedRecord struct {
	DateRequest string
	BreweryRecord
	Location string
}

// LocationAggregate is a gold-layer row: brewery counts per category for one
// (date_request, location) pair.
type LocationAggregate struct {
	DateRequest   string `json:"date_request"`
	Location      string `json:"location"`
	TotBrewpub    int32  `json:"tot_brewpub"`
	TotProprietor int32  `json:"tot_proprietor"`
	TotContract   int32  `json:"tot_contract"`
	TotClosed     int32  `json:"tot_closed"`
	TotMicro      int32  `json:"tot_micro"`
	TotLarge      int32  `json:"tot_large"`
	TotOther      int32  `json:"tot_other"`
	TotBrewery    int32  `json:"tot_brewery"`
}

// CategorySum adds up the seven category counters. It equals TotBrewery for
// every row produced by Aggregate.
func (a LocationAggregate) CategorySum() int64 {
	return int64(a.TotBrewpub) + int64(a.TotProprietor) + int64(a.TotContract) +
		int64(a.TotClosed) + int64(a.TotMicro) + int64(a.TotLarge) + int64(a.TotOther)
}

// StringPtr returns a pointer to s. Handy for building records in code.
func StringPtr(s string) *string {
	return &s
}
