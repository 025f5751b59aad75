// Package validator is the stateless syntactic/semantic scanner for raw
// command strings and their named parameters. It detects injection, path
// traversal, and encoding obfuscation, and reports everything as data:
// malicious input never raises an error, it produces findings.
package validator

// Severity grades a single finding. Aggregate outcome severity is the
// maximum severity across findings.
type Severity int

const (
	SeverityNone Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityNone:
		return "none"
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	}
	return "unknown"
}

// FindingKind names the class of a detected issue.
type FindingKind string

const (
	KindSyntaxError          FindingKind = "syntax_error"
	KindLengthExceeded       FindingKind = "length_exceeded"
	KindCommandInjection     FindingKind = "command_injection"
	KindPathTraversal        FindingKind = "path_traversal"
	KindEncodingAttempt      FindingKind = "encoding_attempt"
	KindNullByteDetected     FindingKind = "null_byte_detected"
	KindInvalidCharacter     FindingKind = "invalid_character"
	KindInvalidParameterName FindingKind = "invalid_parameter_name"
	KindDangerousPattern     FindingKind = "dangerous_pattern"
)

// ThreatClass refines an injection finding with the attack family it
// indicates, so the policy layer can map it to a precise reason code.
type ThreatClass string

const (
	ThreatNone                ThreatClass = ""
	ThreatPrivilegeEscalation ThreatClass = "privilege_escalation"
	ThreatLateralMovement     ThreatClass = "lateral_movement"
	ThreatDataExfiltration    ThreatClass = "data_exfiltration"
)

// Finding is one detected issue from a validation pass.
type Finding struct {
	Kind     FindingKind `json:"kind"`
	Severity Severity    `json:"severity"`
	Message  string      `json:"message"`
	Pattern  string      `json:"pattern,omitempty"`
	Context  string      `json:"context,omitempty"`
	Class    ThreatClass `json:"class,omitempty"`
}

// Outcome is the result of one validation pass. Valid is false once the
// aggregate severity reaches High; Low and Medium findings are warnings
// that accompany an otherwise valid outcome. Zero findings is always
// valid with severity None.
type Outcome struct {
	Valid    bool      `json:"valid"`
	Severity Severity  `json:"severity"`
	Findings []Finding `json:"findings"`
}

// CleanOutcome returns a valid outcome with no findings.
func CleanOutcome() Outcome {
	return Outcome{Valid: true, Severity: SeverityNone}
}

// Add appends a finding and recomputes the aggregate severity and the
// validity flag.
func (o *Outcome) Add(f Finding) {
	o.Findings = append(o.Findings, f)
	if f.Severity > o.Severity {
		o.Severity = f.Severity
	}
	o.Valid = o.Severity < SeverityHigh
}

// Merge folds another outcome's findings into this one.
func (o *Outcome) Merge(other Outcome) {
	for _, f := range other.Findings {
		o.Add(f)
	}
}

// Dominant returns the highest-severity finding, preferring the earliest
// one on ties. The zero Finding is returned for a clean outcome.
func (o Outcome) Dominant() Finding {
	var dom Finding
	for _, f := range o.Findings {
		if f.Severity > dom.Severity {
			dom = f
		}
	}
	return dom
}

// PathViolation names the way a parameter value escapes its sandbox.
type PathViolation string

const (
	PathTraversalSequence PathViolation = "traversal_sequence"
	PathAbsolute          PathViolation = "absolute_path"
	PathHomeDirectory     PathViolation = "home_directory"
	PathDriveLetter       PathViolation = "drive_letter"
	PathNetworkShare      PathViolation = "network_share"
)

// PathFinding is a path-traversal detection for one parameter value.
// A single value may yield several findings.
type PathFinding struct {
	Parameter   string        `json:"parameter"`
	Value       string        `json:"value"`
	Violation   PathViolation `json:"violation"`
	Description string        `json:"description"`
}
