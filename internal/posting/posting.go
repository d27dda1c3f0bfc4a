package posting

import "strings"

// JobPosting is the structured result of extracting a job advertisement from a
// web page. Every field except JobURL may be absent; nil means the value could
// not be determined from the page, which is an expected outcome rather than an
// error.
type JobPosting struct {
	CompanyName         *string `json:"company_name"`
	PositionTitle       *string `json:"position_title"`
	Location            *string `json:"location"`
	Salary              *string `json:"salary"`
	Description         *string `json:"description"`
	Requirements        *string `json:"requirements"`
	ApplicationDeadline *string `json:"application_deadline"`
	AIThoughts          *string `json:"ai_thoughts"`
	JobURL              string  `json:"job_url"`
	CleanTextContent    *string `json:"clean_text_content"`
}

// HasIdentity reports whether the posting carries at least a company name or a
// position title. Callers use it to tell "page scraped fine but held no
// recognizable job" apart from technical failure.
func (p JobPosting) HasIdentity() bool {
	return notBlank(p.CompanyName) || notBlank(p.PositionTitle)
}

func notBlank(s *string) bool {
	return s != nil && strings.TrimSpace(*s) != ""
}
