package passport

// Merge layers next over prev field by field. A field next leaves empty (or
// nil) keeps prev's value, so a last-page extraction that only carries
// parentage cannot erase the identity fields read from the front page.
func Merge(prev *Data, next Data) Data {
	if prev == nil {
		return next
	}

	out := *prev
	pick(&out.PassportNumber, next.PassportNumber)
	pick(&out.GivenName, next.GivenName)
	pick(&out.FamilyName, next.FamilyName)
	pick(&out.DateOfBirth, next.DateOfBirth)
	pick(&out.Gender, next.Gender)
	pick(&out.IssuingState, next.IssuingState)
	pick(&out.TravelDocType, next.TravelDocType)
	pick(&out.IssueDate, next.IssueDate)
	pick(&out.ExpiryDate, next.ExpiryDate)
	pick(&out.PlaceOfIssue, next.PlaceOfIssue)
	pick(&out.PlaceOfBirth, next.PlaceOfBirth)
	pick(&out.Nationality, next.Nationality)
	pick(&out.LastDepartureCountry, next.LastDepartureCountry)
	pick(&out.MaritalStatus, next.MaritalStatus)

	// country_of_birth is backfilled from nationality during normalization,
	// so a derived value must not displace one read from the document.
	if next.CountryOfBirth != "" && (next.CountryOfBirth != next.Nationality || out.CountryOfBirth == "" || out.CountryOfBirth == prev.Nationality) {
		out.CountryOfBirth = next.CountryOfBirth
	}

	if next.MotherName != nil && *next.MotherName != "" {
		v := *next.MotherName
		out.MotherName = &v
	}
	if next.FatherName != nil && *next.FatherName != "" {
		v := *next.FatherName
		out.FatherName = &v
	}

	return out
}

func pick(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
