// Package types provides common type definitions for the conversion tracker system.
package types

// SalesStatus represents the sale state of a tracking record
type SalesStatus string

const (
	// SalesStatusNone represents a visit with no reconciled sale yet
	SalesStatusNone SalesStatus = "none"
	// SalesStatusCompleted represents a closed-out sale
	SalesStatusCompleted SalesStatus = "completed"
)

// QueueItemStatus represents the per-item outcome of a reconciliation batch
type QueueItemStatus string

const (
	// QueueItemStatusVisitNotFound means the referenced visit is not in the store
	QueueItemStatusVisitNotFound QueueItemStatus = "VISIT_NOT_FOUND"
	// QueueItemStatusProcessed means the item was merged and persisted
	QueueItemStatusProcessed QueueItemStatus = "PROCESSED"
	// QueueItemStatusError means persistence failed for this item
	QueueItemStatusError QueueItemStatus = "ERROR"
)

// Device represents the device class of a visit
type Device string

const (
	// DeviceMobile represents phone and tablet traffic
	DeviceMobile Device = "mobile"
	// DevicePC represents desktop traffic
	DevicePC Device = "pc"
)

// CampaignStatus represents whether a campaign accepts traffic
type CampaignStatus string

const (
	// CampaignStatusActivated represents a campaign eligible for traffic
	CampaignStatusActivated CampaignStatus = "activated"
	// CampaignStatusDeactivated represents a paused or removed campaign
	CampaignStatusDeactivated CampaignStatus = "deactivated"
)

// CampaignType represents the payout model of a campaign
type CampaignType string

const (
	// CampaignTypeCPA represents cost-per-action campaigns
	CampaignTypeCPA CampaignType = "cpa"
	// CampaignTypeRegular represents impression-based campaigns
	CampaignTypeRegular CampaignType = "regular"
)

// TrackingEventKind classifies rows in the analytics event log
type TrackingEventKind string

const (
	// EventVisit is logged when a visit is ingested
	EventVisit TrackingEventKind = "visit"
	// EventSale is logged when a sale is reconciled
	EventSale TrackingEventKind = "sale"
	// EventRefund is logged when a refund is reconciled
	EventRefund TrackingEventKind = "refund"
)

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface
func (e *ServiceError) Error() string {
	return e.Code + ": " + e.Message
}

// PaginationInfo describes one page of a range query.
// NextPageNumber is always PageNumber+1; callers check Total to know
// whether another page actually exists.
type PaginationInfo struct {
	Total          int64 `json:"total"`
	PageSize       int   `json:"pageSize"`
	PageNumber     int   `json:"pageNumber"`
	NextPageNumber int   `json:"nextPageNumber"`
}

// PageRequest holds page-number based query parameters
type PageRequest struct {
	PageNumber int
	PageSize   int
}

// DefaultPageSize is used when a page request does not specify a size
const DefaultPageSize = 500

// Normalize clamps a page request to sane values
func (p PageRequest) Normalize() PageRequest {
	if p.PageNumber < 1 {
		p.PageNumber = 1
	}
	if p.PageSize <= 0 {
		p.PageSize = DefaultPageSize
	}
	return p
}

// LimitOffset converts a page request to SQL limit/offset values
func (p PageRequest) LimitOffset() (limit, offset int) {
	p = p.Normalize()
	return p.PageSize, (p.PageNumber - 1) * p.PageSize
}
