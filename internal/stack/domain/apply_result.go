package domain

// Status represents the outcome of applying one chart.
type Status int

const (
	StatusUnchanged Status = iota // Live values already match
	StatusChanged                 // Installed, upgraded, or would be in a dry run
	StatusError                   // Chart could not be applied
)

// String implements fmt.Stringer.
func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "Unknown"
	}
	return statusNames[s]
}

var statusNames = [...]string{
	StatusUnchanged: "Unchanged",
	StatusChanged:   "Changed",
	StatusError:     "Error",
}

// RenderedChart is a chart entry with its final values tree.
type RenderedChart struct {
	Entry  ChartEntry
	Values map[string]any
	YAML   []byte // Values serialised as YAML
}

// ApplyOptions controls an apply run.
type ApplyOptions struct {
	DryRun bool
	Only   string // glob over chart keys; empty selects every chart
}

// ApplyResult is the outcome of applying a single chart.
type ApplyResult struct {
	ChartKey  string
	Release   string
	Namespace string
	Status    Status
	Installed bool   // release did not exist before
	Diff      string // unified diff of live vs rendered values
	Summary   string // human-readable summary, or the error message
}

// CountByStatus returns counts of results grouped by status.
func CountByStatus(results []ApplyResult) (unchanged, changed, errors int) {
	for _, r := range results {
		switch r.Status {
		case StatusUnchanged:
			unchanged++
		case StatusChanged:
			changed++
		case StatusError:
			errors++
		}
	}
	return
}

// DiffLabel creates an identifier for one side of a values comparison.
// Example: "galaxy/default (live)"
func DiffLabel(chartKey, namespace, side string) string {
	return chartKey + "/" + namespace + " (" + side + ")"
}

// ValidationReport summarises the checks run against a descriptor.
type ValidationReport struct {
	Descriptor Descriptor
	Errors     []string
}

// Valid reports whether no check failed.
func (r ValidationReport) Valid() bool {
	return len(r.Errors) == 0
}
