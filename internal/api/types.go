package api

// Utterance describes one normalized record in a transport-friendly format.
type Utterance struct {
	ID           string      `json:"id"`
	Index        *int        `json:"idx,omitempty"`
	Text         string      `json:"text"`
	Language     string      `json:"language"`
	CreatedAt    string      `json:"created_at,omitempty"`
	Speaker      string      `json:"speaker"`
	Gender       string      `json:"gender,omitempty"`
	Age          *float64    `json:"age,omitempty"`
	Recordings   int         `json:"recordings"`
	PrimaryAudio *AudioEntry `json:"primary_audio,omitempty"`
}

// AudioEntry names the recording an export would package.
type AudioEntry struct {
	StorageKey string `json:"storage_key"`
	Ext        string `json:"ext"`
}

// UtteranceListResponse is one page of the filtered utterance table.
type UtteranceListResponse struct {
	Items      []Utterance `json:"items"`
	Page       int         `json:"page"`
	PageSize   int         `json:"page_size"`
	Total      int         `json:"total"`
	TotalPages int         `json:"total_pages"`
	Language   string      `json:"language,omitempty"`
}

// ExportRequest selects records by ids or by filter. Ids win when both are set.
type ExportRequest struct {
	IDs      []string `json:"ids,omitempty"`
	Language *string  `json:"language,omitempty"`
}

// ExportResult summarizes a finished export.
type ExportResult struct {
	Status       string `json:"status"`
	ExportID     string `json:"export_id,omitempty"`
	FileName     string `json:"file_name,omitempty"`
	Location     string `json:"location,omitempty"`
	Size         int    `json:"size,omitempty"`
	Records      int    `json:"records"`
	AudioWritten int    `json:"audio_written"`
	Missing      int    `json:"missing"`
	Failed       int    `json:"failed"`
	Transcoded   int    `json:"transcoded"`
	Duplicates   int    `json:"duplicates"`
	Message      string `json:"message,omitempty"`
}

// ExportStatus reports whether an export is in flight.
type ExportStatus struct {
	Downloading bool `json:"downloading"`
}

// DependencyStatus captures availability of an external binary.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Path        string `json:"path,omitempty"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// CheckResult captures one preflight check.
type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// DaemonStatus aggregates runtime information about uttervaultd.
type DaemonStatus struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	StartedAt    string             `json:"started_at,omitempty"`
	LockFilePath string             `json:"lock_file_path"`
	StoreDriver  string             `json:"store_driver"`
	Storage      string             `json:"storage_backend"`
	Downloading  bool               `json:"downloading"`
	Dependencies []DependencyStatus `json:"dependencies"`
	Checks       []CheckResult      `json:"checks"`
}
