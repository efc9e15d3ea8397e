package models

import "time"

// SyncEventType tags each progress record of a catalog sync run.
type SyncEventType string

const (
	SyncEventStart         SyncEventType = "start"
	SyncEventBrands        SyncEventType = "brands"
	SyncEventBrandStart    SyncEventType = "brand:start"
	SyncEventBrandWarn     SyncEventType = "brand:warn"
	SyncEventBrandProgress SyncEventType = "brand:progress"
	SyncEventBrandDone     SyncEventType = "brand:done"
	SyncEventDone          SyncEventType = "done"
	SyncEventError         SyncEventType = "error"
)

// SyncEvent is the closed set of progress records a sync run emits. Only the
// types in this file implement it.
type SyncEvent interface {
	EventType() SyncEventType
	syncEvent()
}

// SyncStartEvent opens a run.
type SyncStartEvent struct {
	Type              SyncEventType `json:"type"`
	RunID             string        `json:"runId"`
	Provider          string        `json:"provider"`
	StartedAt         time.Time     `json:"startedAt"`
	DeactivateMissing bool          `json:"deactivateMissing"`
	GlobalMarkup      float64       `json:"globalMarkup"`
}

// SyncBrandsEvent reports how many upstream brands will be processed.
type SyncBrandsEvent struct {
	Type  SyncEventType `json:"type"`
	Count int           `json:"count"`
}

// SyncBrandStartEvent marks the beginning of one brand.
type SyncBrandStartEvent struct {
	Type      SyncEventType `json:"type"`
	Key       string        `json:"key"`
	Canonical string        `json:"canonical"`
	Name      string        `json:"name"`
	Index     int           `json:"index"`
	Total     int           `json:"total"`
}

// SyncBrandWarnEvent reports a degraded per-brand fetch.
type SyncBrandWarnEvent struct {
	Type      SyncEventType `json:"type"`
	Key       string        `json:"key"`
	Canonical string        `json:"canonical"`
	Message   string        `json:"message"`
}

// SyncBrandProgressEvent reports products processed so far for a brand.
type SyncBrandProgressEvent struct {
	Type          SyncEventType `json:"type"`
	Key           string        `json:"key"`
	Canonical     string        `json:"canonical"`
	Processed     int           `json:"processed"`
	TotalProducts int           `json:"totalProducts"`
	Pct           int           `json:"pct"`
}

// SyncBrandDoneEvent closes one brand.
type SyncBrandDoneEvent struct {
	Type          SyncEventType `json:"type"`
	Key           string        `json:"key"`
	Canonical     string        `json:"canonical"`
	Products      int           `json:"products"`
	UpsertedBrand bool          `json:"upsertedBrand"`
}

// SyncDoneEvent is the final summary of a completed run.
type SyncDoneEvent struct {
	Type        SyncEventType `json:"type"`
	DurationMs  int64         `json:"durationMs"`
	Brands      int           `json:"brands"`
	Upserted    int           `json:"upserted"`
	Active      int           `json:"active"`
	Deactivated int           `json:"deactivated"`
	Unchanged   int           `json:"unchanged"`
	Skipped     int           `json:"skipped"`
	Warnings    int           `json:"warnings"`
	Cancelled   bool          `json:"cancelled,omitempty"`
}

// SyncErrorEvent terminates a run that could not proceed.
type SyncErrorEvent struct {
	Type    SyncEventType `json:"type"`
	Message string        `json:"message"`
}

func (SyncStartEvent) EventType() SyncEventType         { return SyncEventStart }
func (SyncBrandsEvent) EventType() SyncEventType        { return SyncEventBrands }
func (SyncBrandStartEvent) EventType() SyncEventType    { return SyncEventBrandStart }
func (SyncBrandWarnEvent) EventType() SyncEventType     { return SyncEventBrandWarn }
func (SyncBrandProgressEvent) EventType() SyncEventType { return SyncEventBrandProgress }
func (SyncBrandDoneEvent) EventType() SyncEventType     { return SyncEventBrandDone }
func (SyncDoneEvent) EventType() SyncEventType          { return SyncEventDone }
func (SyncErrorEvent) EventType() SyncEventType         { return SyncEventError }

func (SyncStartEvent) syncEvent()         {}
func (SyncBrandsEvent) syncEvent()        {}
func (SyncBrandStartEvent) syncEvent()    {}
func (SyncBrandWarnEvent) syncEvent()     {}
func (SyncBrandProgressEvent) syncEvent() {}
func (SyncBrandDoneEvent) syncEvent()     {}
func (SyncDoneEvent) syncEvent()          {}
func (SyncErrorEvent) syncEvent()         {}

// SyncOptions are the inputs of a sync run. A nil MarkupPercent falls back to
// the configured default.
type SyncOptions struct {
	Provider          string   `json:"provider"`
	DeactivateMissing *bool    `json:"deactivateMissing"`
	MarkupPercent     *float64 `json:"markupPercent"`
}

// SyncSummary is the non-streaming result of a run. It is also what gets
// cached as the last run for a provider.
type SyncSummary struct {
	RunID       string    `json:"runId"`
	Provider    string    `json:"provider"`
	StartedAt   time.Time `json:"startedAt"`
	DurationMs  int64     `json:"durationMs"`
	Brands      int       `json:"brands"`
	Upserted    int       `json:"upserted"`
	Active      int       `json:"active"`
	Deactivated int       `json:"deactivated"`
	Unchanged   int       `json:"unchanged"`
	Skipped     int       `json:"skipped"`
	Warnings    int       `json:"warnings"`
	Cancelled   bool      `json:"cancelled,omitempty"`
	Error       string    `json:"error,omitempty"`
}
