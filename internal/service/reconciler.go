package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/conversion-tracker/internal/logging"
	"github.com/conversion-tracker/internal/models"
	"github.com/conversion-tracker/internal/storage"
	"github.com/conversion-tracker/internal/types"
)

// RecordStore is the narrow persistence contract the reconciler needs
type RecordStore interface {
	Get(ctx context.Context, id string) (*models.TrackingRecord, error)
	Upsert(ctx context.Context, rec *models.TrackingRecord) (*models.TrackingRecord, error)
}

// EventSink receives analytics events. Writes are best effort; a failing
// sink never fails reconciliation.
type EventSink interface {
	Append(ctx context.Context, events []*storage.TrackingEvent) error
}

// Reconciler merges incoming sale/refund queue items into the canonical
// store. Items in one batch are processed sequentially; when the same id
// appears twice, the last item in program order wins.
//
// The read-modify-write pair in Reconcile is not atomic against a concurrent
// upsert to the same id from another caller: the store gives last-writer-wins
// semantics with no lost-update detection. Tolerable here because records are
// reconciled from authoritative validator input and an occasional overwrite
// of attribution metadata is harmless.
type Reconciler struct {
	store  RecordStore
	events EventSink
	logger *logging.Logger
}

// NewReconciler creates a reconciler. The event sink is optional.
func NewReconciler(store RecordStore, events EventSink, logger *logging.Logger) *Reconciler {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Reconciler{store: store, events: events, logger: logger}
}

// Reconcile merges a batch of queue items submitted by one validator and
// returns a per-item outcome keyed by record id. A failing item never aborts
// the remaining batch.
func (r *Reconciler) Reconcile(ctx context.Context, validatorBlock int64, validatorHotkey string, items []*models.QueueItem) map[string]models.QueueItemResult {
	result := make(map[string]models.QueueItemResult, len(items))
	var logged []*storage.TrackingEvent

	for _, item := range items {
		existing, err := r.store.Get(ctx, item.ID)
		if err != nil {
			r.logger.WithError(err).WithFields(map[string]interface{}{
				"id": item.ID,
			}).Error("Failed to read tracking record")
			result[item.ID] = models.QueueItemResult{Status: types.QueueItemStatusError}
			continue
		}
		if existing == nil {
			// Propagation lag and forged ids collapse to the same outcome;
			// the caller retries later for the lag case.
			result[item.ID] = models.QueueItemResult{Status: types.QueueItemStatusVisitNotFound}
			continue
		}

		merged := mergeQueueItem(existing, item, validatorBlock, validatorHotkey)

		persisted, err := r.store.Upsert(ctx, merged)
		if err != nil {
			r.logger.WithError(err).WithFields(map[string]interface{}{
				"id": item.ID,
			}).Error("Failed to upsert reconciled record")
			result[item.ID] = models.QueueItemResult{Status: types.QueueItemStatusError}
			continue
		}

		result[item.ID] = models.QueueItemResult{
			Status: types.QueueItemStatusProcessed,
			Record: persisted,
		}
		logged = append(logged, queueItemEvents(persisted, item, validatorHotkey)...)
	}

	if r.events != nil && len(logged) > 0 {
		if err := r.events.Append(ctx, logged); err != nil {
			r.logger.WithError(err).Warn("Failed to append reconciliation events to log")
		}
	}

	return result
}

// mergeQueueItem builds the updated record for one queue item. Pure: the
// inputs are not mutated.
//
// The refund may exceed the recorded sale, yielding a negative net amount.
// Stored as-is: asynchronous partial-refund sequences make this legitimate
// intermediate state.
func mergeQueueItem(existing *models.TrackingRecord, item *models.QueueItem, validatorBlock int64, validatorHotkey string) *models.TrackingRecord {
	updated := *existing

	refundAmount := decimal.Zero
	refunds := 0
	if item.RefundInfo != nil {
		refundAmount = item.RefundInfo.TotalAmount
		refunds = len(item.RefundInfo.Items)
		refundInfo := *item.RefundInfo
		updated.RefundInfo = &refundInfo
	} else {
		updated.RefundInfo = nil
	}

	orderInfo := item.OrderInfo
	updated.OrderInfo = &orderInfo
	updated.SaleDate = item.OrderInfo.SaleDate
	updated.SalesCount = len(item.OrderInfo.Items)
	updated.RefundCount = refunds
	updated.NetSaleAmount = item.OrderInfo.TotalAmount.Sub(refundAmount)
	updated.ValidatorHotkey = &validatorHotkey
	updated.ValidatorBlock = &validatorBlock

	// A refund is definitive proof the sale existed and is closed out,
	// even if the status had not yet transitioned. Never reverts.
	if refunds > 0 {
		updated.SalesStatus = types.SalesStatusCompleted
	}

	return &updated
}

// queueItemEvents builds the analytics rows for one processed item
func queueItemEvents(rec *models.TrackingRecord, item *models.QueueItem, validatorHotkey string) []*storage.TrackingEvent {
	occurredAt := time.Now().UTC()
	if rec.SaleDate != nil {
		occurredAt = *rec.SaleDate
	}

	events := []*storage.TrackingEvent{{
		RecordID:   rec.ID,
		CampaignID: rec.CampaignID,
		Kind:       types.EventSale,
		Amount:     item.OrderInfo.TotalAmount,
		Hotkey:     validatorHotkey,
		OccurredAt: occurredAt,
	}}

	if item.RefundInfo != nil && len(item.RefundInfo.Items) > 0 {
		events = append(events, &storage.TrackingEvent{
			RecordID:   rec.ID,
			CampaignID: rec.CampaignID,
			Kind:       types.EventRefund,
			Amount:     item.RefundInfo.TotalAmount,
			Hotkey:     validatorHotkey,
			OccurredAt: occurredAt,
		})
	}
	return events
}
