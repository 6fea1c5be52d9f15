package bus

// Event names crossing the core boundary. Payload keys are documented per
// event; subscribers define their own schemas for the keys they read.
const (
	// EventResourceCreated: resource_id, title, timestamp.
	EventResourceCreated = "resource.created"
	// EventResourceUpdated: resource_id, changed_fields, previous_quality?.
	EventResourceUpdated = "resource.updated"
	// EventResourceDeleted: resource_id, title.
	EventResourceDeleted = "resource.deleted"

	// EventQualityComputed: resource_id, quality_overall, dimensions.
	EventQualityComputed = "quality.computed"
	// EventQualityOutlier: resource_id, outlier_score, reasons.
	EventQualityOutlier = "quality.outlier_detected"
	// EventQualityDegradation: resource_id, previous, current.
	EventQualityDegradation = "quality.degradation_detected"

	// EventCitationExtracted: resource_id, citations, count.
	EventCitationExtracted = "citation.extracted"

	// Curation workflow events: resource_id, reviewer_id.
	EventCurationReviewed = "curation.reviewed"
	EventCurationApproved = "curation.approved"
	EventCurationRejected = "curation.rejected"
)
