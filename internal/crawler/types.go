package crawler

import "strings"

// Unavailable marks a scalar field whose locator could not be read. It is the
// literal shown to the sources' users, so exports keep it verbatim.
const Unavailable = "Não disponível"

// SourceEndpoint identifies one independently searchable court instance.
type SourceEndpoint struct {
	BaseURL    string `json:"base_url" mapstructure:"base_url"`
	Locale     string `json:"locale" mapstructure:"locale"`
	TimezoneID string `json:"timezone_id" mapstructure:"timezone_id"`
}

// Tag returns the value stored alongside process IDs to disambiguate sources.
func (s SourceEndpoint) Tag() string {
	return strings.TrimRight(s.BaseURL, "/")
}

// Party is a participant listed on a process.
type Party struct {
	Role string `json:"role"`
	Name string `json:"name"`
}

// MovementEntry is one line of a process docket history.
type MovementEntry struct {
	Date        string `json:"date"`
	Description string `json:"description"`
}

// LightRecord is what discovery harvests from a result listing.
type LightRecord struct {
	ProcessID      string  `json:"process_id"`
	DetailLink     string  `json:"detail_link"`
	SourceTag      string  `json:"source"`
	InitialParties []Party `json:"initial_parties"`
}

// Field names one classification attribute of a detail page.
type Field string

// Classification fields read from a detail page.
const (
	FieldClass            Field = "class"
	FieldSubject          Field = "subject"
	FieldForum            Field = "forum"
	FieldSection          Field = "section"
	FieldJudge            Field = "judge"
	FieldDistributionDate Field = "distribution_date"
	FieldControlNumber    Field = "control_number"
	FieldArea             Field = "area"
	FieldClaimedValue     Field = "claimed_value"
)

// DetailFields lists every classification field in export order.
var DetailFields = []Field{
	FieldClass,
	FieldSubject,
	FieldForum,
	FieldSection,
	FieldJudge,
	FieldDistributionDate,
	FieldControlNumber,
	FieldArea,
	FieldClaimedValue,
}

// Valid reports whether f is a known classification field.
func (f Field) Valid() bool {
	for _, known := range DetailFields {
		if f == known {
			return true
		}
	}
	return false
}

// DetailRecord holds everything read from a process detail page.
type DetailRecord struct {
	Link             string          `json:"link"`
	Class            string          `json:"class"`
	Subject          string          `json:"subject"`
	Forum            string          `json:"forum"`
	Section          string          `json:"section"`
	Judge            string          `json:"judge"`
	DistributionDate string          `json:"distribution_date"`
	ControlNumber    string          `json:"control_number"`
	Area             string          `json:"area"`
	ClaimedValue     string          `json:"claimed_value"`
	Parties          []Party         `json:"parties"`
	Movements        []MovementEntry `json:"movements"`
}

// NewDetailRecord returns a record whose scalars all hold Unavailable.
func NewDetailRecord(link string) DetailRecord {
	d := DetailRecord{
		Link:      link,
		Parties:   []Party{},
		Movements: []MovementEntry{},
	}
	for _, f := range DetailFields {
		d.Set(f, Unavailable)
	}
	return d
}

func (d *DetailRecord) slot(f Field) *string {
	switch f {
	case FieldClass:
		return &d.Class
	case FieldSubject:
		return &d.Subject
	case FieldForum:
		return &d.Forum
	case FieldSection:
		return &d.Section
	case FieldJudge:
		return &d.Judge
	case FieldDistributionDate:
		return &d.DistributionDate
	case FieldControlNumber:
		return &d.ControlNumber
	case FieldArea:
		return &d.Area
	case FieldClaimedValue:
		return &d.ClaimedValue
	default:
		return nil
	}
}

// Set assigns value to field f. It returns false for unknown fields.
func (d *DetailRecord) Set(f Field, value string) bool {
	p := d.slot(f)
	if p == nil {
		return false
	}
	*p = value
	return true
}

// Get returns the value of field f, or Unavailable for unknown fields.
func (d DetailRecord) Get(f Field) string {
	p := d.slot(f)
	if p == nil {
		return Unavailable
	}
	return *p
}

// FinalRecord is the flat, export-ready merge of a LightRecord and its
// DetailRecord. List columns hold the canonical JSON array encoding.
type FinalRecord struct {
	ProcessID        string `json:"process_id"`
	SourceTag        string `json:"source"`
	Link             string `json:"link"`
	Class            string `json:"class"`
	Subject          string `json:"subject"`
	Forum            string `json:"forum"`
	Section          string `json:"section"`
	Judge            string `json:"judge"`
	DistributionDate string `json:"distribution_date"`
	ControlNumber    string `json:"control_number"`
	Area             string `json:"area"`
	ClaimedValue     string `json:"claimed_value"`
	InitialParties   string `json:"initial_parties"`
	Parties          string `json:"parties"`
	Movements        string `json:"movements"`
}
