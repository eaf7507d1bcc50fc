package domain

// FieldType is the logical type of a schema field. The brewery directory is
// all text; the type exists so the descriptor can say so explicitly.
type FieldType string

const FieldText FieldType = "text"

// Field describes one column of the brewery schema.
type Field struct {
	Name     string
	Type     FieldType
	Nullable bool

	ref func(*BreweryRecord) **string
}

// Get returns the field's value in r.
func (f Field) Get(r *BreweryRecord) *string {
	return *f.ref(r)
}

// Set stores v as the field's value in r.
func (f Field) Set(r *BreweryRecord, v *string) {
	*f.ref(r) = v
}

func textField(name string, ref func(*BreweryRecord) **string) Field {
	return Field{Name: name, Type: FieldText, Nullable: true, ref: ref}
}

// BreweryFields is the ordered schema of a BreweryRecord. Parsing, the silver
// table layout and the audit all iterate this list.
var BreweryFields = []Field{
	textField("id", func(r *BreweryRecord) **string { return &r.ID }),
	textField("name", func(r *BreweryRecord) **string { return &r.Name }),
	textField("brewery_type", func(r *BreweryRecord) **string { return &r.BreweryType }),
	textField("address_1", func(r *BreweryRecord) **string { return &r.Address1 }),
	textField("address_2", func(r *BreweryRecord) **string { return &r.Address2 }),
	textField("address_3", func(r *BreweryRecord) **string { return &r.Address3 }),
	textField("city", func(r *BreweryRecord) **string { return &r.City }),
	textField("state_province", func(r *BreweryRecord) **string { return &r.StateProvince }),
	textField("postal_code", func(r *BreweryRecord) **string { return &r.PostalCode }),
	textField("country", func(r *BreweryRecord) **string { return &r.Country }),
	textField("longitude", func(r *BreweryRecord) **string { return &r.Longitude }),
	textField("latitude", func(r *BreweryRecord) **string { return &r.Latitude }),
	textField("phone", func(r *BreweryRecord) **string { return &r.Phone }),
	textField("website_url", func(r *BreweryRecord) **string { return &r.WebsiteURL }),
	textField("state", func(r *BreweryRecord) **string { return &r.State }),
	textField("street", func(r *BreweryRecord) **string { return &r.Street }),
}

// FieldByName looks up a schema field.
func FieldByName(name string) (Field, bool) {
	for _, f := range BreweryFields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}
