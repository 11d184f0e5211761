// Package passport holds the canonical shape of data read from a passport
// and the pure functions that clean and combine it.
package passport

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// Raw is an unstructured extraction result: field guesses keyed by whatever
// names the extraction service chose.
type Raw map[string]any

// Data is a normalized extraction result.
type Data struct {
	PassportNumber       string  `json:"passport_number"`
	GivenName            string  `json:"given_name"`
	FamilyName           string  `json:"family_name"`
	DateOfBirth          string  `json:"date_of_birth"`
	Gender               string  `json:"gender"`
	IssuingState         string  `json:"issuing_state"`
	TravelDocType        string  `json:"travel_doc_type"`
	IssueDate            string  `json:"issue_date"`
	ExpiryDate           string  `json:"expiry_date"`
	PlaceOfIssue         string  `json:"place_of_issue"`
	CountryOfBirth       string  `json:"country_of_birth"`
	PlaceOfBirth         string  `json:"place_of_birth"`
	Nationality          string  `json:"nationality"`
	LastDepartureCountry string  `json:"last_departure_country"`
	MotherName           *string `json:"mother_name"`
	FatherName           *string `json:"father_name"`
	MaritalStatus        string  `json:"marital_status"`
}

// Field names as they appear in Data's JSON form.
const (
	FieldPassportNumber       = "passport_number"
	FieldGivenName            = "given_name"
	FieldFamilyName           = "family_name"
	FieldDateOfBirth          = "date_of_birth"
	FieldGender               = "gender"
	FieldIssuingState         = "issuing_state"
	FieldTravelDocType        = "travel_doc_type"
	FieldIssueDate            = "issue_date"
	FieldExpiryDate           = "expiry_date"
	FieldPlaceOfIssue         = "place_of_issue"
	FieldCountryOfBirth       = "country_of_birth"
	FieldPlaceOfBirth         = "place_of_birth"
	FieldNationality          = "nationality"
	FieldLastDepartureCountry = "last_departure_country"
	FieldMotherName           = "mother_name"
	FieldFatherName           = "father_name"
	FieldMaritalStatus        = "marital_status"
)

// aliases maps canonicalized keys seen in extraction output to Data fields.
var aliases = map[string]string{
	"passport_number":        FieldPassportNumber,
	"passport_no":            FieldPassportNumber,
	"document_number":        FieldPassportNumber,
	"passport_num":           FieldPassportNumber,
	"given_name":             FieldGivenName,
	"given_names":            FieldGivenName,
	"first_name":             FieldGivenName,
	"family_name":            FieldFamilyName,
	"surname":                FieldFamilyName,
	"last_name":              FieldFamilyName,
	"date_of_birth":          FieldDateOfBirth,
	"dob":                    FieldDateOfBirth,
	"birth_date":             FieldDateOfBirth,
	"gender":                 FieldGender,
	"sex":                    FieldGender,
	"issuing_state":          FieldIssuingState,
	"issuing_country":        FieldIssuingState,
	"country_of_issue":       FieldIssuingState,
	"travel_doc_type":        FieldTravelDocType,
	"document_type":          FieldTravelDocType,
	"issue_date":             FieldIssueDate,
	"date_of_issue":          FieldIssueDate,
	"expiry_date":            FieldExpiryDate,
	"date_of_expiry":         FieldExpiryDate,
	"expiration_date":        FieldExpiryDate,
	"place_of_issue":         FieldPlaceOfIssue,
	"country_of_birth":       FieldCountryOfBirth,
	"birth_country":          FieldCountryOfBirth,
	"place_of_birth":         FieldPlaceOfBirth,
	"birth_place":            FieldPlaceOfBirth,
	"nationality":            FieldNationality,
	"last_departure_country": FieldLastDepartureCountry,
	"mother_name":            FieldMotherName,
	"mothers_name":           FieldMotherName,
	"name_of_mother":         FieldMotherName,
	"father_name":            FieldFatherName,
	"fathers_name":           FieldFatherName,
	"name_of_father":         FieldFatherName,
	"marital_status":         FieldMaritalStatus,
}

// canonicalKey folds camelCase, spaces, hyphens and apostrophes into snake_case.
func canonicalKey(key string) string {
	var b strings.Builder
	prevLower := false
	for _, r := range strings.TrimSpace(key) {
		switch {
		case r == ' ' || r == '-' || r == '.':
			b.WriteByte('_')
			prevLower = false
		case r == '\'':
		case unicode.IsUpper(r):
			if prevLower {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			prevLower = false
		default:
			b.WriteRune(r)
			prevLower = unicode.IsLower(r) || unicode.IsDigit(r)
		}
	}
	return b.String()
}

// text flattens a raw value into a string. Nested objects such as
// {"name": "India", "code": "IND"} contribute their name.
func text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case json.Number:
		return t.String()
	case *string:
		if t == nil {
			return ""
		}
		return *t
	case map[string]any:
		for _, k := range []string{"name", "value", "text"} {
			if s := text(t[k]); s != "" {
				return s
			}
		}
		return ""
	default:
		return ""
	}
}

// fields resolves a Raw into one string per known field. Exact field names
// win over aliases; among aliases the first non-empty key in sorted order wins.
// Blank values never shadow a populated alias.
func (r Raw) fields() map[string]string {
	keys := make([]string, 0, len(r))
	for key := range r {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := make(map[string]string, len(aliases))
	exact := make(map[string]bool, len(r))
	for _, key := range keys {
		value := r[key]
		ck := canonicalKey(key)
		field, ok := aliases[ck]
		if !ok {
			continue
		}
		s := text(value)
		if s == "" {
			continue
		}
		if ck == field {
			out[field] = s
			exact[field] = true
			continue
		}
		if !exact[field] && out[field] == "" {
			out[field] = s
		}
	}
	return out
}

// Raw converts normalized data back into its raw form.
func (d Data) Raw() Raw {
	r := Raw{
		FieldPassportNumber:       d.PassportNumber,
		FieldGivenName:            d.GivenName,
		FieldFamilyName:           d.FamilyName,
		FieldDateOfBirth:          d.DateOfBirth,
		FieldGender:               d.Gender,
		FieldIssuingState:         d.IssuingState,
		FieldTravelDocType:        d.TravelDocType,
		FieldIssueDate:            d.IssueDate,
		FieldExpiryDate:           d.ExpiryDate,
		FieldPlaceOfIssue:         d.PlaceOfIssue,
		FieldCountryOfBirth:       d.CountryOfBirth,
		FieldPlaceOfBirth:         d.PlaceOfBirth,
		FieldNationality:          d.Nationality,
		FieldLastDepartureCountry: d.LastDepartureCountry,
		FieldMaritalStatus:        d.MaritalStatus,
		FieldMotherName:           nil,
		FieldFatherName:           nil,
	}
	if d.MotherName != nil {
		r[FieldMotherName] = *d.MotherName
	}
	if d.FatherName != nil {
		r[FieldFatherName] = *d.FatherName
	}
	return r
}

// IsEmpty reports whether no field carries a value.
func (d Data) IsEmpty() bool {
	return d == Data{}
}
