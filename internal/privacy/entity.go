// Package privacy consolidates candidate PII spans into a canonical entity
// set, scores it and produces de-identified text.
package privacy

import (
	"sort"
	"strings"
)

// EntityType tags the kind of personal data a span carries.
type EntityType string

const (
	Person                EntityType = "PERSON"
	EmailAddress          EntityType = "EMAIL_ADDRESS"
	PhoneNumber           EntityType = "PHONE_NUMBER"
	CreditCard            EntityType = "CREDIT_CARD"
	Crypto                EntityType = "CRYPTO"
	IBANCode              EntityType = "IBAN_CODE"
	IPAddress             EntityType = "IP_ADDRESS"
	Location              EntityType = "LOCATION"
	DateTime              EntityType = "DATE_TIME"
	URL                   EntityType = "URL"
	USSSN                 EntityType = "US_SSN"
	USDriverLicense       EntityType = "US_DRIVER_LICENSE"
	USPassport            EntityType = "US_PASSPORT"
	MedicalLicense        EntityType = "MEDICAL_LICENSE"
	NRP                   EntityType = "NRP"
	USBankNumber          EntityType = "US_BANK_NUMBER"
	AUABN                 EntityType = "AU_ABN"
	AUACN                 EntityType = "AU_ACN"
	AUTFN                 EntityType = "AU_TFN"
	AUMedicare            EntityType = "AU_MEDICARE"
	INAadhaar             EntityType = "IN_AADHAAR"
	INPAN                 EntityType = "IN_PAN"
	INPassport            EntityType = "IN_PASSPORT"
	INVoterID             EntityType = "IN_VOTER_ID"
	INVehicleRegistration EntityType = "IN_VEHICLE_REGISTRATION"
	Occupation            EntityType = "OCCUPATION"
	Organization          EntityType = "ORGANIZATION"
)

// KnownTypes lists every entity type with a built-in table entry, in a
// stable order.
var KnownTypes = []EntityType{
	Person, EmailAddress, PhoneNumber, CreditCard, Crypto, IBANCode,
	IPAddress, Location, DateTime, URL, USSSN, USDriverLicense, USPassport,
	MedicalLicense, NRP, USBankNumber, AUABN, AUACN, AUTFN, AUMedicare,
	INAadhaar, INPAN, INPassport, INVoterID, INVehicleRegistration,
	Occupation, Organization,
}

// ParseEntityType normalizes a label such as "email_address" to its
// EntityType. Unknown labels are kept as upper-cased types.
func ParseEntityType(s string) EntityType {
	return EntityType(strings.ToUpper(strings.TrimSpace(s)))
}

// Known reports whether t has built-in table entries.
func (t EntityType) Known() bool {
	for _, k := range KnownTypes {
		if k == t {
			return true
		}
	}
	return false
}

// Span is one entity occurrence. Start and End are byte offsets into the
// analyzed text, End exclusive.
type Span struct {
	Type       EntityType `json:"entity_type"`
	Start      int        `json:"start"`
	End        int        `json:"end"`
	Confidence float64    `json:"score"`
	Text       string     `json:"text"`
	Source     string     `json:"source,omitempty"`
}

// Intersects reports whether the two half-open ranges share a byte.
func (s Span) Intersects(o Span) bool {
	return s.Start < o.End && s.End > o.Start
}

// SortByStart sorts spans by start offset, keeping the input order of
// spans that start at the same offset.
func SortByStart(spans []Span) {
	sort.SliceStable(spans, func(i, j int) bool {
		return spans[i].Start < spans[j].Start
	})
}

// Overlap is a pair of intersecting spans found by Overlaps.
type Overlap struct {
	A, B Span
}

// Overlaps returns every intersecting pair in spans. A consolidated set
// is expected to yield none.
func Overlaps(spans []Span) []Overlap {
	var out []Overlap
	for i := 0; i < len(spans); i++ {
		for j := i + 1; j < len(spans); j++ {
			if spans[i].Intersects(spans[j]) {
				out = append(out, Overlap{A: spans[i], B: spans[j]})
			}
		}
	}
	return out
}

// Types returns the distinct entity types in spans, in first-seen order.
func Types(spans []Span) []EntityType {
	seen := make(map[EntityType]struct{}, len(spans))
	out := make([]EntityType, 0, len(spans))
	for _, s := range spans {
		if _, ok := seen[s.Type]; ok {
			continue
		}
		seen[s.Type] = struct{}{}
		out = append(out, s.Type)
	}
	return out
}
