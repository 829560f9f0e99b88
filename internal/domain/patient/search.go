package patient

import "strings"

// ParseQuery splits a roster search on ';' into lower-cased terms. Blank
// terms are dropped.
func ParseQuery(q string) []string {
	var terms []string
	for _, part := range strings.Split(q, ";") {
		if t := strings.ToLower(strings.TrimSpace(part)); t != "" {
			terms = append(terms, t)
		}
	}
	return terms
}

// Matches reports whether every term occurs in at least one searchable
// attribute of p. No terms matches everything.
func Matches(p *Patient, terms []string) bool {
	haystack := searchable(p)
	for _, term := range terms {
		found := false
		for _, v := range haystack {
			if strings.Contains(v, term) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func searchable(p *Patient) []string {
	values := []string{p.FirstName, p.LastName, p.DateOfBirth.String(), p.StatusName}
	if p.MiddleName != nil {
		values = append(values, *p.MiddleName)
	}
	for _, a := range p.Addresses {
		values = append(values, a.AddressLine1, deref(a.AddressLine2), a.City, a.State, a.ZipCode)
	}
	for _, f := range p.AdditionalFields {
		values = append(values, f.FieldName, f.FieldValue)
	}
	for i, v := range values {
		values[i] = strings.ToLower(v)
	}
	return values
}
