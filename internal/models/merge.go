package models

// Partial update structures for scratch cache records. A nil field means
// "no new value this turn". Merge functions apply the null-coalescing rule:
// an existing non-nil value always wins over a newly extracted one, so cache
// fields fill monotonically until the flow commits.

// BookingUpdate carries newly extracted booking fields for one message turn.
type BookingUpdate struct {
	TestType  *TestType
	Date      *string
	Time      *string
	HomeVisit *bool
}

// Empty reports whether the update carries no new values.
func (u BookingUpdate) Empty() bool {
	return u.TestType == nil && u.Date == nil && u.Time == nil && u.HomeVisit == nil
}

// MergeBooking applies an update over an existing cache record and returns
// the merged record plus whether anything changed.
func MergeBooking(existing BookingCache, update BookingUpdate) (BookingCache, bool) {
	changed := false
	if existing.TestType == nil && update.TestType != nil {
		existing.TestType = update.TestType
		changed = true
	}
	if existing.Date == nil && update.Date != nil {
		existing.Date = update.Date
		changed = true
	}
	if existing.Time == nil && update.Time != nil {
		existing.Time = update.Time
		changed = true
	}
	if existing.HomeVisit == nil && update.HomeVisit != nil {
		existing.HomeVisit = update.HomeVisit
		changed = true
	}
	return existing, changed
}

// UploadUpdate carries newly extracted upload fields for one message turn.
type UploadUpdate struct {
	MediaURL   *string
	ReportType *TestType
}

// Empty reports whether the update carries no new values.
func (u UploadUpdate) Empty() bool {
	return u.MediaURL == nil && u.ReportType == nil
}

// MergeUpload applies an update over an existing cache record.
func MergeUpload(existing UploadCache, update UploadUpdate) (UploadCache, bool) {
	changed := false
	if existing.MediaURL == nil && update.MediaURL != nil {
		existing.MediaURL = update.MediaURL
		changed = true
	}
	if existing.ReportType == nil && update.ReportType != nil {
		existing.ReportType = update.ReportType
		changed = true
	}
	return existing, changed
}

// RetrievalUpdate carries newly extracted retrieval fields for one message turn.
type RetrievalUpdate struct {
	ReportType *TestType
	Date       *string
}

// Empty reports whether the update carries no new values.
func (u RetrievalUpdate) Empty() bool {
	return u.ReportType == nil && u.Date == nil
}

// MergeRetrieval applies an update over an existing cache record.
func MergeRetrieval(existing RetrievalCache, update RetrievalUpdate) (RetrievalCache, bool) {
	changed := false
	if existing.ReportType == nil && update.ReportType != nil {
		existing.ReportType = update.ReportType
		changed = true
	}
	if existing.Date == nil && update.Date != nil {
		existing.Date = update.Date
		changed = true
	}
	return existing, changed
}
