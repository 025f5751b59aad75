package contracts

// RiskTier classifies a command's potential impact.
type RiskTier int

const (
	RiskLow RiskTier = iota
	RiskMedium
	RiskHigh
	RiskCritical
)

func (t RiskTier) String() string {
	switch t {
	case RiskLow:
		return "low"
	case RiskMedium:
		return "medium"
	case RiskHigh:
		return "high"
	case RiskCritical:
		return "critical"
	}
	return "unknown"
}

// Category is the operational family a command belongs to.
type Category string

const (
	CategoryQuery             Category = "query"
	CategoryServiceManagement Category = "service_management"
	CategoryProcessManagement Category = "process_management"
	CategoryFileOperation     Category = "file_operation"
	CategoryNetworkConfig     Category = "network_config"
	CategorySecurityPolicy    Category = "security_policy"
	CategoryUnknown           Category = "unknown"
)

// Valid reports whether the category is one of the defined families.
func (c Category) Valid() bool {
	switch c {
	case CategoryQuery, CategoryServiceManagement, CategoryProcessManagement,
		CategoryFileOperation, CategoryNetworkConfig, CategorySecurityPolicy,
		CategoryUnknown:
		return true
	}
	return false
}

// CommandClassification is the risk engine's assessment of a single
// command. Derived purely from the command text; there is no hidden
// state behind it.
type CommandClassification struct {
	Risk             RiskTier `json:"risk"`
	Category         Category `json:"category"`
	IsDestructive    bool     `json:"is_destructive"`
	RequiresApproval bool     `json:"requires_approval"`
	TimeoutSeconds   int      `json:"timeout_seconds"`
	Reasoning        string   `json:"reasoning"`
}
