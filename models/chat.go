package models

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Query     string       `json:"query"`
	SessionID string       `json:"session_id,omitempty"`
	Filters   *ChatFilters `json:"filters,omitempty"`
}

// ChatFilters narrows retrieval for a chat request.
type ChatFilters struct {
	Area string `json:"area,omitempty"`
}

// SourceRecord is one retrieved chunk rendered for the frontend. The
// ReferenceLabel (N1, D1, J1, ...) matches the labels used in the prompt so
// citations in the answer resolve to these records.
type SourceRecord struct {
	ID             string  `json:"id"`
	Category       string  `json:"category"` // normativa | doctrina | jurisprudencia
	ReferenceLabel string  `json:"reference_label"`
	Label          string  `json:"label"`
	Text           string  `json:"text"`
	FullText       string  `json:"full_text"`
	DocTitle       string  `json:"doc_title"`
	OfficialID     string  `json:"official_id"`
	URL            string  `json:"url"`
	AuthorityLevel string  `json:"authority_level"`
	Nature         string  `json:"nature"`
	Similarity     float64 `json:"similarity"`
}

// ChatMetadata describes how a chat answer was produced.
type ChatMetadata struct {
	Area            string         `json:"area,omitempty"`
	Model           string         `json:"model"`
	CountsPerBucket map[string]int `json:"counts_per_bucket"`
	ResponseTimeMs  int64          `json:"response_time_ms"`
}

// ChatResponse is the body returned by POST /api/chat.
type ChatResponse struct {
	Answer    string         `json:"answer"`
	Sources   []SourceRecord `json:"sources"`
	SessionID string         `json:"session_id,omitempty"`
	Metadata  ChatMetadata   `json:"metadata"`
}

// SearchRequest is the body of POST /api/search.
type SearchRequest struct {
	Query   string       `json:"query"`
	Filters *ChatFilters `json:"filters,omitempty"`
	Limit   int          `json:"limit,omitempty"`
}
