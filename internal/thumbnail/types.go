// Package thumbnail defines core types shared across subsystems.
package thumbnail

// ImageCandidate is the outcome of image extraction or scraping. Both fields
// are optional; an empty URL means no candidate was found.
type ImageCandidate struct {
	URL   string `json:"url,omitempty"`
	Title string `json:"title,omitempty"`
}

// Found reports whether the candidate carries a usable image URL.
func (c ImageCandidate) Found() bool {
	return c.URL != ""
}

// ProductConcept is the structured AI analysis of a product cutout. It is
// produced once per pipeline run and read-only afterwards.
type ProductConcept struct {
	Category          string   `json:"category"`
	CoreColors        []string `json:"core_colors"`
	BackgroundConcept string   `json:"background_concept"`
}

// DefaultConcept is substituted when AI analysis fails so the pipeline never
// stops solely because of a missing concept.
func DefaultConcept() ProductConcept {
	return ProductConcept{
		Category:          "상품",
		CoreColors:        []string{"#ffffff"},
		BackgroundConcept: "미니멀 화이트 배경",
	}
}

// Credentials carries the per-job service tokens supplied by the caller.
// Vendor search API credentials are optional; the resolver skips that
// strategy when either half is missing.
type Credentials struct {
	GeminiAPIKey      string
	ReplicateToken    string
	NaverClientID     string
	NaverClientSecret string
}

// Result is the sum-type outcome of a pipeline run: exactly one of DataURL
// and ErrorMessage is non-empty.
type Result struct {
	DataURL      string
	ErrorMessage string
}

// Failed reports whether the run ended in an error.
func (r Result) Failed() bool {
	return r.ErrorMessage != ""
}
