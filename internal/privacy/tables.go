package privacy

import (
	"fmt"
	"sort"
)

const (
	// DefaultPriority ranks types missing from the priority table.
	DefaultPriority = 50
	// DefaultWeight scores types missing from the weight table.
	DefaultWeight = 10
	// DefaultPlaceholderFormat renders placeholders for types without a
	// template. The verb receives the type name.
	DefaultPlaceholderFormat = "[%s]"

	DefaultMaxGap       = 15
	DefaultSuffixWindow = 10
)

// PriorityTable ranks entity types during conflict resolution. Higher wins.
type PriorityTable map[EntityType]int

// Priority returns the rank of t, or DefaultPriority.
func (p PriorityTable) Priority(t EntityType) int {
	if v, ok := p[t]; ok {
		return v
	}
	return DefaultPriority
}

// WeightTable holds per-type contributions to the privacy score.
type WeightTable map[EntityType]int

// Weight returns the weight of t, or DefaultWeight.
func (w WeightTable) Weight(t EntityType) int {
	if v, ok := w[t]; ok {
		return v
	}
	return DefaultWeight
}

// Placeholders maps entity types to the token substituted on redaction.
type Placeholders map[EntityType]string

// For returns the placeholder of t, falling back to "[TYPE]".
func (p Placeholders) For(t EntityType) string {
	if v, ok := p[t]; ok && v != "" {
		return v
	}
	return fmt.Sprintf(DefaultPlaceholderFormat, string(t))
}

// Tables is the read-only configuration every pipeline stage draws from.
// Build it once at startup and share it between requests.
type Tables struct {
	Priorities   PriorityTable
	Weights      WeightTable
	Placeholders Placeholders
	Merge        MergeOptions
	// SuffixTypes are the types whose placeholders absorb a trailing
	// postal-code numeral during redaction.
	SuffixTypes map[EntityType]bool
}

// TableOverrides carries externally configured replacements. Entries
// replace the matching defaults, everything else is kept.
type TableOverrides struct {
	Priorities     map[EntityType]int
	Weights        map[EntityType]int
	Placeholders   map[EntityType]string
	MergeableTypes []EntityType
	MaxGap         int
	SuffixWindow   int
}

// DefaultTables returns the built-in tables.
func DefaultTables() Tables {
	return Tables{
		Priorities: PriorityTable{
			Person:       100,
			EmailAddress: 90,
			PhoneNumber:  80,
			INAadhaar:    75,
			INPAN:        75,
			INPassport:   75,
			CreditCard:   70,
			USSSN:        70,
			Occupation:   20,
			Organization: 20,
			Location:     10,
		},
		Weights: WeightTable{
			Person:                15,
			EmailAddress:          20,
			PhoneNumber:           18,
			CreditCard:            25,
			Crypto:                25,
			IBANCode:              25,
			IPAddress:             12,
			Location:              10,
			DateTime:              5,
			URL:                   8,
			USSSN:                 30,
			USDriverLicense:       20,
			USPassport:            25,
			MedicalLicense:        22,
			NRP:                   15,
			USBankNumber:          25,
			AUABN:                 20,
			AUACN:                 20,
			AUTFN:                 25,
			AUMedicare:            25,
			INAadhaar:             30,
			INPAN:                 25,
			INPassport:            25,
			INVoterID:             20,
			INVehicleRegistration: 15,
			Occupation:            12,
			Organization:          14,
		},
		Placeholders: Placeholders{
			Person:                "[PERSON]",
			EmailAddress:          "[EMAIL]",
			PhoneNumber:           "[PHONE]",
			CreditCard:            "[CREDIT_CARD]",
			Location:              "[LOCATION]",
			DateTime:              "[DATE]",
			IPAddress:             "[IP_ADDRESS]",
			URL:                   "[URL]",
			INAadhaar:             "[AADHAAR]",
			INPAN:                 "[PAN]",
			INPassport:            "[PASSPORT]",
			INVoterID:             "[VOTER_ID]",
			INVehicleRegistration: "[VEHICLE_REG]",
			Occupation:            "[OCCUPATION]",
			Organization:          "[ORGANIZATION]",
		},
		Merge: MergeOptions{
			Mergeable:    map[EntityType]bool{Location: true},
			MaxGap:       DefaultMaxGap,
			SuffixWindow: DefaultSuffixWindow,
		},
		SuffixTypes: map[EntityType]bool{Location: true},
	}
}

// With returns a copy of t with the overrides applied. t is not modified.
func (t Tables) With(o TableOverrides) Tables {
	out := Tables{
		Priorities:   make(PriorityTable, len(t.Priorities)+len(o.Priorities)),
		Weights:      make(WeightTable, len(t.Weights)+len(o.Weights)),
		Placeholders: make(Placeholders, len(t.Placeholders)+len(o.Placeholders)),
		Merge: MergeOptions{
			Mergeable:    copySet(t.Merge.Mergeable),
			MaxGap:       t.Merge.MaxGap,
			SuffixWindow: t.Merge.SuffixWindow,
		},
		SuffixTypes: copySet(t.SuffixTypes),
	}
	for k, v := range t.Priorities {
		out.Priorities[k] = v
	}
	for k, v := range o.Priorities {
		out.Priorities[k] = v
	}
	for k, v := range t.Weights {
		out.Weights[k] = v
	}
	for k, v := range o.Weights {
		out.Weights[k] = v
	}
	for k, v := range t.Placeholders {
		out.Placeholders[k] = v
	}
	for k, v := range o.Placeholders {
		out.Placeholders[k] = v
	}
	if len(o.MergeableTypes) > 0 {
		out.Merge.Mergeable = make(map[EntityType]bool, len(o.MergeableTypes))
		out.SuffixTypes = make(map[EntityType]bool, len(o.MergeableTypes))
		for _, et := range o.MergeableTypes {
			out.Merge.Mergeable[et] = true
			out.SuffixTypes[et] = true
		}
	}
	if o.MaxGap > 0 {
		out.Merge.MaxGap = o.MaxGap
	}
	if o.SuffixWindow > 0 {
		out.Merge.SuffixWindow = o.SuffixWindow
	}
	return out
}

// TypeInfo describes how the tables treat one entity type.
type TypeInfo struct {
	Type        EntityType `json:"entity_type"`
	Weight      int        `json:"weight"`
	Priority    int        `json:"priority"`
	Placeholder string     `json:"placeholder"`
}

// Describe lists table settings for every known type plus any type the
// tables mention, sorted by name.
func (t Tables) Describe() []TypeInfo {
	seen := make(map[EntityType]bool)
	var types []EntityType
	add := func(et EntityType) {
		if !seen[et] {
			seen[et] = true
			types = append(types, et)
		}
	}
	for _, et := range KnownTypes {
		add(et)
	}
	for et := range t.Priorities {
		add(et)
	}
	for et := range t.Weights {
		add(et)
	}
	for et := range t.Placeholders {
		add(et)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	out := make([]TypeInfo, 0, len(types))
	for _, et := range types {
		out = append(out, TypeInfo{
			Type:        et,
			Weight:      t.Weights.Weight(et),
			Priority:    t.Priorities.Priority(et),
			Placeholder: t.Placeholders.For(et),
		})
	}
	return out
}

func copySet(in map[EntityType]bool) map[EntityType]bool {
	out := make(map[EntityType]bool, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
