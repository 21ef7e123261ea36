package schemas

// TimestampLayout is the packet timestamp format (ddmmyyyy HH:MM:SS).
const TimestampLayout = "02012006 15:04:05"

// ResponseEntry is one extracted content unit. Hash is the hex SHA-256 of
// Value and is empty when Value is empty.
type ResponseEntry struct {
	Name   string      `json:"name"`
	Title  []string    `json:"title"`
	Value  string      `json:"value"`
	Type   ContentType `json:"type"`
	Hash   string      `json:"hash,omitempty"`
	Marker Marker      `json:"marker,omitempty"`
}

// IsMarker reports whether the entry signals a skip or an error.
func (e ResponseEntry) IsMarker() bool {
	return e.Marker == MarkerSkip || e.Marker == MarkerError
}

// HasData reports whether the entry contributes extracted content.
func (e ResponseEntry) HasData() bool {
	return !e.IsMarker() && e.Value != ""
}

// DataPresent reports whether at least one entry carries extracted content.
func DataPresent(entries []ResponseEntry) bool {
	for _, e := range entries {
		if e.HasData() {
			return true
		}
	}
	return false
}

// ResultPacket wraps the outcome of one ActionSpec execution.
type ResultPacket struct {
	Action        ActionKind      `json:"action"`
	UID           string          `json:"uid"`
	Timestamp     string          `json:"timestamp"`
	Webpage       string          `json:"webpage"`
	DataPresent   bool            `json:"data_present"`
	LogMessage    string          `json:"log_message"`
	Response      []ResponseEntry `json:"response"`
	ResponseCount int             `json:"response_count"`
}

// ComparisonCounts summarises a ComparisonResult.
type ComparisonCounts struct {
	New       int `json:"new"`
	Removed   int `json:"removed"`
	Unchanged int `json:"unchanged"`
}

// ComparisonResult classifies one site's entries between two runs.
type ComparisonResult struct {
	Site      string           `json:"site"`
	SiteName  string           `json:"site_name,omitempty"`
	Key       string           `json:"key"`
	New       []ResponseEntry  `json:"new"`
	Removed   []ResponseEntry  `json:"removed"`
	Unchanged []ResponseEntry  `json:"unchanged"`
	Counts    ComparisonCounts `json:"counts"`
}

// SiteRecord is everything one site run produced.
type SiteRecord struct {
	BankName    string         `json:"bank_name"`
	BankCode    string         `json:"bank_code"`
	BaseURL     string         `json:"base_url"`
	ScrapedData []ResultPacket `json:"scraped_data"`
	Error       string         `json:"error,omitempty"`
}

// CacheMetadata describes a run cache file.
type CacheMetadata struct {
	Program   string `json:"program"`
	Timestamp string `json:"timestamp"`
	Config    string `json:"config"`
	Filename  string `json:"filename"`
	RunID     string `json:"run_id,omitempty"`
}

// Cache is the persisted output of one full run.
type Cache struct {
	Metadata CacheMetadata `json:"metadata"`
	Records  []SiteRecord  `json:"records"`
}
