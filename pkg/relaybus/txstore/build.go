package txstore

import (
	"time"

	"github.com/google/uuid"
)

// buildTxData is shared by every backend: BuildTxData never touches
// storage, so there is nothing backend-specific about it.
func buildTxData(txID string, now time.Time, events []EventInput, listeners []ListenerRef) TxData {
	byType := make(map[string][]string, len(listeners))
	for _, l := range listeners {
		byType[l.EventType] = append(byType[l.EventType], l.HandlerID)
	}

	nowMs := now.UnixMilli()

	data := TxData{
		Tx: Tx{
			ID:        txID,
			Status:    TxPending,
			CreatedAt: nowMs,
			UpdatedAt: nowMs,
		},
	}

	for _, ev := range events {
		msgID := uuid.NewString()
		data.Msgs = append(data.Msgs, Msg{
			ID:            msgID,
			TxID:          txID,
			EventType:     ev.EventType,
			Payload:       ev.Payload,
			Module:        ev.Module,
			SchemaVersion: ev.SchemaVersion,
			CorrelationID: ev.CorrelationID,
			MessageID:     ev.MessageID,
			CausationPath: ev.CausationPath,
		})

		for _, handlerID := range byType[ev.EventType] {
			data.HandlerRows = append(data.HandlerRows, HandlerRow{
				ID:         uuid.NewString(),
				MsgID:      msgID,
				HandlerID:  handlerID,
				Status:     HandlerPending,
				RetryCount: 0,
				UpdatedAt:  nowMs,
				NextAt:     nowMs,
			})
		}
	}

	data.HandlerCount = len(data.HandlerRows)
	return data
}

// deriveTxStatus aggregates per-handler outcomes into the transaction's
// overall status: empty set => ok; any failed/timeout => failed;
// any pending => pending; all ok => ok.
func deriveTxStatus(statuses []HandlerStatus) TxStatus {
	if len(statuses) == 0 {
		return TxOK
	}

	hasPending := false
	for _, st := range statuses {
		if st == HandlerFailed || st == HandlerTimeout {
			return TxFailed
		}
		if st == HandlerPending {
			hasPending = true
		}
	}
	if hasPending {
		return TxPending
	}
	return TxOK
}
