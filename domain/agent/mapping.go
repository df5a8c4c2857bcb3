package agent

import "strings"

// Record is one extracted advertisement.
type Record map[string]any

// DescriptionField carries the original submission text on every record.
const DescriptionField = "description"

// fieldMapping lists the short keys the model is asked to emit and the
// field names they are stored under, in prompt order.
var fieldMapping = []struct {
	Short string
	Long  string
	Hint  string
}{
	{"t", "property_type", "apartment, villa, land, office, shop, ..."},
	{"d", "deal_type", "sale, rent, mortgage, pre_sale, exchange"},
	{"c", "city", "city name"},
	{"n", "neighborhood", "district or neighborhood"},
	{"ad", "address", "street address as written"},
	{"a", "area", "floor area in square meters (number)"},
	{"r", "rooms", "number of bedrooms (number)"},
	{"f", "floor", "floor number (number)"},
	{"tf", "total_floors", "floors in the building (number)"},
	{"y", "year_built", "construction year"},
	{"p", "price", "total price (number, no separators)"},
	{"pm", "price_per_meter", "price per square meter (number)"},
	{"dp", "deposit", "deposit amount for rentals (number)"},
	{"rn", "rent", "monthly rent (number)"},
	{"e", "elevator", "true/false"},
	{"pk", "parking", "true/false"},
	{"s", "storage", "true/false"},
	{"b", "balcony", "true/false"},
	{"ph", "phone", "contact phone number"},
	{"cn", "contact_name", "contact person or agency"},
}

// mapRecord renames the known short keys of src. Keys missing from src are
// omitted; keys outside the table are dropped.
func mapRecord(src map[string]any, text string) Record {
	out := make(Record, len(src)+1)
	for _, f := range fieldMapping {
		if v, ok := src[f.Short]; ok {
			out[f.Long] = v
		}
	}
	out[DescriptionField] = strings.TrimSpace(text)
	return out
}
