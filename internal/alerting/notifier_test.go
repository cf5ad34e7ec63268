package alerting

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"book-features/internal/model"
	"book-features/internal/validation"
)

func evaluations() []validation.Evaluation {
	return []validation.Evaluation{
		{Target: "mid5", Kind: model.KindClassifier, Rows: 100, Result: validation.Result{InSample: 0.7, OutSample: 0.48}},
		{Target: "mid5", Kind: model.KindRegressor, Rows: 100, Result: validation.Result{InSample: 0.2, OutSample: 0.05}},
		{Target: "mid10", Kind: model.KindClassifier, Rows: 90, Result: validation.Result{InSample: 0.8, OutSample: 0.61}},
	}
}

var floors = map[model.Kind]float64{model.KindClassifier: 0.5, model.KindRegressor: 0}

func TestDegraded(t *testing.T) {
	failing := Degraded(evaluations(), floors)
	require.Len(t, failing, 1)
	assert.Equal(t, "mid5", failing[0].Target)
	assert.Equal(t, model.KindClassifier, failing[0].Kind)

	// Each kind is judged on its own scale.
	failing = Degraded(evaluations(), map[model.Kind]float64{model.KindClassifier: 0.5, model.KindRegressor: 0.1})
	require.Len(t, failing, 2)
	assert.Equal(t, model.KindRegressor, failing[1].Kind)

	// Kinds without a floor are ignored.
	assert.Empty(t, Degraded(evaluations(), map[model.Kind]float64{model.KindRegressor: 0}))
	assert.Empty(t, Degraded(evaluations(), nil))

	nan := []validation.Evaluation{{Target: "mid5", Kind: model.KindRegressor, Result: validation.Result{OutSample: math.NaN()}}}
	assert.Len(t, Degraded(nan, floors), 1)
}

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/bottoken/sendMessage")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, zerolog.Nop())
	strict := map[model.Kind]float64{model.KindClassifier: 0.5, model.KindRegressor: 0.1}
	note := Notification{
		At:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Symbol:  "btcusd",
		Rows:    100,
		Floors:  strict,
		Failing: Degraded(evaluations(), strict),
	}

	require.NoError(t, notifier.Notify(context.Background(), note))
	assert.Equal(t, "chat", received["chat_id"])
	assert.True(t, strings.HasPrefix(received["text"], "[bookfeatures btcusd]"))
	assert.Contains(t, received["text"], "mid5 classifier: 0.4800 < 0.5000")
	assert.Contains(t, received["text"], "mid5 regressor: 0.0500 < 0.1000")
	assert.NotContains(t, received["text"], "mid10")
}

func TestTelegramNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, zerolog.Nop())
	assert.Error(t, notifier.Notify(context.Background(), Notification{Symbol: "btcusd"}))

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer failing.Close()

	notifier = NewTelegramNotifier("token", "chat", failing.URL, time.Second, zerolog.Nop())
	assert.ErrorContains(t, notifier.Notify(context.Background(), Notification{Symbol: "btcusd"}), "502")
}
