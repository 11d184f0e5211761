package vision

func systemPrompt(role Role) string {
	if role == RoleLastPage {
		return "Extract address, parentage and marital status details from the last page of a passport."
	}
	return "Extract the main identification details from the photo page of a passport."
}

func userPrompt(role Role) string {
	if role == RoleLastPage {
		return `Analyze this passport image and reply with only a JSON object:
{
  "mother_name": "",
  "father_name": "",
  "spouse_name": "",
  "marital_status": "",
  "address": "",
  "passport_number": ""
}
Rules:
- Use UPPERCASE for names
- Empty string for missing fields`
	}
	return `Analyze this passport image and reply with only a JSON object:
{
  "passport_number": "",
  "given_name": "",
  "family_name": "",
  "date_of_birth": "",
  "gender": "",
  "issuing_state": "",
  "travel_doc_type": "Passport",
  "issue_date": "",
  "expiry_date": "",
  "place_of_issue": "",
  "country_of_birth": "",
  "place_of_birth": "",
  "nationality": "",
  "last_departure_country": ""
}
Rules:
- Use UPPERCASE for countries
- Format dates as YYYY-MM-DD
- Empty string for missing fields`
}
