package models

// MergeMode selects how brands are grouped into duplicate sets.
type MergeMode string

const (
	MergeModeProviderRef MergeMode = "providerRef"
	MergeModeCodeCase    MergeMode = "codeCase"
	MergeModeNameNorm    MergeMode = "nameNorm"
)

// Valid reports whether m is a known grouping strategy.
func (m MergeMode) Valid() bool {
	switch m {
	case MergeModeProviderRef, MergeModeCodeCase, MergeModeNameNorm:
		return true
	}
	return false
}

// MergeOptions tunes one merge invocation. Provider only applies to the
// providerRef mode; Limit <= 0 means no cap.
type MergeOptions struct {
	Provider string `json:"provider,omitempty"`
	Limit    int    `json:"limit,omitempty"`
	DryRun   bool   `json:"dry"`
}

// MergeRecord is the audit trail of one merged duplicate group.
type MergeRecord struct {
	Provider        string   `json:"provider,omitempty"`
	Ref             string   `json:"ref"`
	CanonicalCode   string   `json:"canonicalCode"`
	DupeCodes       []string `json:"dupeCodes"`
	ProductsChanged int      `json:"productsChanged"`
}

// MergeResult is returned by the merge trigger.
type MergeResult struct {
	OK            bool          `json:"ok"`
	Dry           bool          `json:"dry"`
	Mode          MergeMode     `json:"mode"`
	Merges        []MergeRecord `json:"merges"`
	MergeGroups   int           `json:"mergeGroups"`
	GroupsScanned int           `json:"groupsScanned"`
}

// PurgeOptions controls hard deletion of inactive brands.
type PurgeOptions struct {
	MergedOnly bool `json:"mergedOnly"`
	DryRun     bool `json:"dry"`
}

// PurgeResult reports what a purge matched and removed.
type PurgeResult struct {
	OK      bool     `json:"ok"`
	Dry     bool     `json:"dry"`
	Matched int      `json:"matched"`
	Deleted int      `json:"deleted"`
	Sample  []string `json:"sample"`

	// Inactive brands skipped because products still reference them.
	Retained []string `json:"retained"`
}
