package preflight

import (
	"fmt"
	"os/exec"
	"strings"
)

// Requirement defines an external binary uttervault may execute.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a binary.
type Status struct {
	Name        string
	Command     string
	Path        string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// LookPath resolves commands. Tests replace it.
var LookPath = exec.LookPath

// CheckBinaries evaluates requirements in order.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		status := Status{
			Name:        req.Name,
			Command:     strings.TrimSpace(req.Command),
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		switch resolved, err := LookPath(status.Command); {
		case status.Command == "":
			status.Detail = "command not configured"
		case err != nil:
			status.Detail = fmt.Sprintf("binary %q not found", status.Command)
		default:
			status.Available = true
			status.Path = resolved
		}
		results = append(results, status)
	}
	return results
}

// MissingRequired returns the names of required binaries that are unavailable.
func MissingRequired(statuses []Status) []string {
	var missing []string
	for _, s := range statuses {
		if !s.Available && !s.Optional {
			missing = append(missing, s.Name)
		}
	}
	return missing
}
