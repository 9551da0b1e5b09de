package txstore

import (
	"testing"
	"time"
)

func TestDeriveTxStatus(t *testing.T) {
	tests := []struct {
		name     string
		statuses []HandlerStatus
		want     TxStatus
	}{
		{"empty", nil, TxOK},
		{"all ok", []HandlerStatus{HandlerOK, HandlerOK}, TxOK},
		{"any pending", []HandlerStatus{HandlerOK, HandlerPending}, TxPending},
		{"any failed", []HandlerStatus{HandlerOK, HandlerFailed}, TxFailed},
		{"any timeout", []HandlerStatus{HandlerPending, HandlerTimeout}, TxFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := deriveTxStatus(tt.statuses); got != tt.want {
				t.Errorf("deriveTxStatus(%v) = %s, want %s", tt.statuses, got, tt.want)
			}
		})
	}
}

func TestBuildTxDataHandlerCount(t *testing.T) {
	now := time.Now()
	data := buildTxData("tx-1", now, []EventInput{
		{EventType: "a", Payload: "{}"},
		{EventType: "b", Payload: "{}"},
	}, []ListenerRef{
		{EventType: "a", HandlerID: "h1"},
		{EventType: "a", HandlerID: "h2"},
		{EventType: "b", HandlerID: "h3"},
	})

	if data.HandlerCount != 3 {
		t.Errorf("HandlerCount = %d, want 3", data.HandlerCount)
	}
	if len(data.Msgs) != 2 {
		t.Errorf("len(Msgs) = %d, want 2", len(data.Msgs))
	}
}

func TestBuildTxDataNoListeners(t *testing.T) {
	data := buildTxData("tx-1", time.Now(), []EventInput{{EventType: "a", Payload: "{}"}}, nil)
	if data.HandlerCount != 0 {
		t.Errorf("HandlerCount = %d, want 0", data.HandlerCount)
	}
}
