package passport

import (
	"strings"
	"time"
)

// DateLayout is the canonical date format.
const DateLayout = "2006-01-02"

// dateLayouts are tried in order. Numeric forms are read day-first, which is
// how passports print them.
var dateLayouts = []string{
	DateLayout,
	"2006-1-2",
	"2006/1/2",
	"20060102",
	"2/1/2006",
	"2-1-2006",
	"2.1.2006",
	"2 Jan 2006",
	"2 January 2006",
	"2-Jan-2006",
	"02Jan2006",
	"Jan 2 2006",
	"Jan 2, 2006",
	"January 2 2006",
	"January 2, 2006",
	time.RFC3339,
	"2006-01-02T15:04:05",
}

// absent holds values that extraction services emit for "no value".
var absent = map[string]bool{
	"":     true,
	"NULL": true,
	"NONE": true,
	"N/A":  true,
}

// Normalize canonicalizes a raw extraction result. It never fails: fields
// it cannot interpret are carried through trimmed, or left empty.
func Normalize(raw Raw) Data {
	f := raw.fields()

	d := Data{
		PassportNumber:       clean(f[FieldPassportNumber]),
		GivenName:            upper(f[FieldGivenName]),
		FamilyName:           upper(f[FieldFamilyName]),
		DateOfBirth:          NormalizeDate(f[FieldDateOfBirth]),
		Gender:               NormalizeGender(f[FieldGender]),
		IssuingState:         upper(f[FieldIssuingState]),
		TravelDocType:        clean(f[FieldTravelDocType]),
		IssueDate:            NormalizeDate(f[FieldIssueDate]),
		ExpiryDate:           NormalizeDate(f[FieldExpiryDate]),
		PlaceOfIssue:         clean(f[FieldPlaceOfIssue]),
		CountryOfBirth:       upper(f[FieldCountryOfBirth]),
		PlaceOfBirth:         upper(f[FieldPlaceOfBirth]),
		Nationality:          upper(f[FieldNationality]),
		LastDepartureCountry: upper(f[FieldLastDepartureCountry]),
		MotherName:           optionalUpper(f[FieldMotherName]),
		FatherName:           optionalUpper(f[FieldFatherName]),
		MaritalStatus:        upper(f[FieldMaritalStatus]),
	}

	if d.CountryOfBirth == "" {
		d.CountryOfBirth = d.Nationality
	}

	return d
}

// NormalizeData re-applies normalization to already typed data, e.g. values
// supplied by a reviewer through the application update endpoint.
func NormalizeData(d Data) Data {
	return Normalize(d.Raw())
}

// NormalizeDate returns value as YYYY-MM-DD when it matches a known layout
// and the trimmed input otherwise.
func NormalizeDate(value string) string {
	v := clean(value)
	if v == "" {
		return ""
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.Format(DateLayout)
		}
	}
	return v
}

// NormalizeGender maps the accepted spellings onto MALE or FEMALE.
func NormalizeGender(value string) string {
	switch upper(value) {
	case "M", "MALE":
		return "MALE"
	case "F", "FEMALE":
		return "FEMALE"
	default:
		return ""
	}
}

// clean trims and collapses runs of whitespace.
func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func upper(s string) string {
	return strings.ToUpper(clean(s))
}

func optionalUpper(s string) *string {
	v := upper(s)
	if absent[v] {
		return nil
	}
	return &v
}
