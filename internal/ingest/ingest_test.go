package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"farmwatch/internal/config"
	"farmwatch/internal/logging"
	"farmwatch/internal/model"
)

func TestRESTReadings(t *testing.T) {
	out := make(chan model.SensorReading, 10)
	srv := NewRESTServer(config.NewStaticManager(nil), out, logging.Discard())

	body := `[{"sensor_id":"s1","metric":"temp","value":36},{"sensor_id":"s2","soil":12,"ph":6.5},{"sensor_id":"s3"}]`
	req := httptest.NewRequest(http.MethodPost, "/readings", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	var resp map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["accepted"] != 3 || resp["failed"] != 1 {
		t.Fatalf("counts: %v", resp)
	}
	close(out)
	var got []model.SensorReading
	for r := range out {
		got = append(got, r)
	}
	if len(got) != 3 {
		t.Fatalf("queued: %d", len(got))
	}
	if got[0].Metric != "temperature" || got[0].Source != "rest" {
		t.Fatalf("first reading: %+v", got[0])
	}
	for _, r := range got {
		if _, err := uuid.Parse(r.ID); err != nil {
			t.Fatalf("reading id %q is not a uuid", r.ID)
		}
	}
}

func TestRESTRejects(t *testing.T) {
	srv := NewRESTServer(config.NewStaticManager(nil), make(chan model.SensorReading, 1), logging.Discard())
	cases := []struct {
		method, body string
		want         int
	}{
		{http.MethodGet, "", http.StatusMethodNotAllowed},
		{http.MethodPost, "  ", http.StatusBadRequest},
		{http.MethodPost, "{not json", http.StatusBadRequest},
		{http.MethodPost, `{"sensor_id":"s1"}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(tc.method, "/readings", strings.NewReader(tc.body)))
		if rec.Code != tc.want {
			t.Fatalf("%s %q: got %d want %d", tc.method, tc.body, rec.Code, tc.want)
		}
	}
}

func TestSendNonBlockingDropsWhenFull(t *testing.T) {
	out := make(chan model.SensorReading, 1)
	ctx := context.Background()
	if !SendNonBlocking(ctx, out, model.SensorReading{SensorID: "a"}, logging.Discard()) {
		t.Fatalf("first send should succeed")
	}
	if SendNonBlocking(ctx, out, model.SensorReading{SensorID: "b"}, logging.Discard()) {
		t.Fatalf("second send should drop")
	}
}

func TestEmitLineCounts(t *testing.T) {
	out := make(chan model.SensorReading, 10)
	cfg := config.DefaultConfig()
	parser := NewParser()
	var counts lineCounts
	ctx := context.Background()

	counts.emitLine(ctx, parser, `{"sensor_id":"s1","metric":"temp","value":21}`, "", cfg, "kafka", out, logging.Discard())
	counts.emitLine(ctx, parser, `{"metric":"humidity","value":55}`, "key-7", cfg, "kafka", out, logging.Discard())
	counts.emitLine(ctx, parser, `{"sensor_id":"s3"}`, "", cfg, "kafka", out, logging.Discard())
	counts.emitLine(ctx, parser, "   ", "", cfg, "kafka", out, logging.Discard())

	if counts.Accepted != 2 || counts.Rejected != 1 {
		t.Fatalf("counts: %+v", counts)
	}
	first, second := <-out, <-out
	if first.SensorID != "s1" || first.Source != "kafka" {
		t.Fatalf("first: %+v", first)
	}
	if second.SensorID != "key-7" {
		t.Fatalf("fallback sensor id not applied: %+v", second)
	}
}

func TestTCPStream(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Ingest.TCPStream = config.TCPStreamConfig{Enabled: true, Addr: "127.0.0.1:0"}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := make(chan model.SensorReading, 10)

	ln, err := StartTCPStream(ctx, config.NewStaticManager(cfg), out, logging.Discard())
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	fmt.Fprintln(conn, "s9 metric=humidity value=95")
	fmt.Fprintln(conn, "")
	fmt.Fprintln(conn, `{"sensor_id":"s9","metric":"ph","value":8.1}`)
	conn.Close()

	want := []string{"humidity", "ph_level"}
	for _, metric := range want {
		select {
		case r := <-out:
			if r.Metric != metric || r.SensorID != "s9" || r.Source != "tcp_stream" {
				t.Fatalf("reading: %+v", r)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s", metric)
		}
	}
}
