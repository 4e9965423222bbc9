package event_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradepulse/engine/core/event"
)

func TestCondition_Matches(t *testing.T) {
	t.Parallel()

	payload := json.RawMessage(`{"task_type":"fetch_news","symbol":"AAPL","duration_ms":42}`)
	evt := event.NewEvent(event.TypeTaskCompleted, "data_fetcher", payload)

	tests := []struct {
		name      string
		condition *event.Condition
		want      bool
		wantErr   error
	}{
		{
			name:      "nil condition matches everything",
			condition: nil,
			want:      true,
		},
		{
			name:      "empty condition matches everything",
			condition: &event.Condition{},
			want:      true,
		},
		{
			name:      "task type in set",
			condition: &event.Condition{TaskTypes: []string{"fetch_prices", "fetch_news"}},
			want:      true,
		},
		{
			name:      "task type not in set",
			condition: &event.Condition{TaskTypes: []string{"fetch_prices"}},
			want:      false,
		},
		{
			name:      "payload field equals",
			condition: &event.Condition{PayloadEquals: map[string]string{"symbol": "AAPL"}},
			want:      true,
		},
		{
			name:      "payload field differs",
			condition: &event.Condition{PayloadEquals: map[string]string{"symbol": "TSLA"}},
			want:      false,
		},
		{
			name:      "missing payload field treated as empty",
			condition: &event.Condition{PayloadEquals: map[string]string{"missing": "x"}},
			want:      false,
		},
		{
			name: "all clauses must hold",
			condition: &event.Condition{
				TaskTypes:     []string{"fetch_news"},
				PayloadEquals: map[string]string{"symbol": "TSLA"},
			},
			want: false,
		},
		{
			name:      "non-string field is a configuration error",
			condition: &event.Condition{PayloadEquals: map[string]string{"duration_ms": "42"}},
			wantErr:   event.ErrInvalidCondition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := tt.condition.Matches(evt)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCondition_Matches_MalformedPayload(t *testing.T) {
	t.Parallel()

	evt := event.NewEvent(event.TypeTaskCompleted, "data_fetcher", json.RawMessage(`[1,2,3]`))
	cond := &event.Condition{TaskTypes: []string{"fetch_news"}}

	_, err := cond.Matches(evt)
	assert.ErrorIs(t, err, event.ErrInvalidCondition)
}
