package test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sita/sidang/api/schedule"
	"github.com/sita/sidang/app"
	"github.com/sita/sidang/config"
	"github.com/sita/sidang/core/events"
	"github.com/sita/sidang/core/factory"
	"github.com/sita/sidang/infra/logger"
	"github.com/sita/sidang/internal/fixture"
	"github.com/sita/sidang/test/util"
)

// TestGenerateNotifiesAndRecords drives a run through the HTTP API and
// checks that the broker receives the event and Prometheus counts the run.
func TestGenerateNotifiesAndRecords(t *testing.T) {
	util.SkipWithoutDocker(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker, stopBroker, err := util.StartMosquitto(ctx)
	if err != nil {
		t.Skipf("mosquitto unavailable: %v", err)
	}
	defer stopBroker()

	received := make(chan events.ScheduleEvent, 8)
	sub := paho.NewClient(paho.NewClientOptions().AddBroker(broker).SetClientID("observer"))
	if tok := sub.Connect(); tok.Wait() && tok.Error() != nil {
		t.Fatalf("observer connect: %v", tok.Error())
	}
	defer sub.Disconnect(100)
	tok := sub.Subscribe("sidang/schedule/generated", 1, func(_ paho.Client, m paho.Message) {
		var ev events.ScheduleEvent
		if err := json.Unmarshal(m.Payload(), &ev); err == nil {
			received <- ev
		}
	})
	if tok.Wait() && tok.Error() != nil {
		t.Fatalf("subscribe: %v", tok.Error())
	}

	dir := t.TempDir()
	cfg := &config.Config{
		Store:   config.StoreConfig{Backend: config.BackendSQLite, Path: filepath.Join(dir, "sidang.db")},
		Journal: factory.ModuleConfig{Type: "nop"},
	}
	cfg.Metrics.Sinks = []factory.ModuleConfig{{Type: "prometheus"}}
	cfg.Notify.Broker = broker
	cfg.Notify.ClientID = "sidang-test"
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())

	a, err := app.New(cfg)
	require.NoError(t, err)
	defer func() { _ = a.Close() }()
	require.NoError(t, a.Start(ctx))

	fx, err := fixture.Load(filepath.Join("..", "fixtures", "demo.yaml"))
	require.NoError(t, err)
	_, err = fx.Apply(ctx, a.Store)
	require.NoError(t, err)

	srv := schedule.NewServer(cfg.HTTP, a.Service, logger.NopLogger{})
	resp, err := srv.Test(httptest.NewRequest(http.MethodPost, "/schedule/generate", nil), -1)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	select {
	case ev := <-received:
		assert.Equal(t, events.Generated, ev.Kind)
		assert.Equal(t, 4, ev.Count)
	case <-time.After(10 * time.Second):
		t.Fatal("no generated event on the broker")
	}

	prom := httptest.NewServer(promhttp.Handler())
	defer prom.Close()
	require.NoError(t, util.WaitForMetric(ctx, prom.URL, `source="manual"} 1`))
}
