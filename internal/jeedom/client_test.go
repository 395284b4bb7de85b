package jeedom

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/berfenger/powermon/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingServer struct {
	mu       sync.Mutex
	requests []url.Values
	paths    []string
	failIds  map[string]int
}

func (s *recordingServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, r.URL.Query())
	s.paths = append(s.paths, r.URL.Path)
	if code, ok := s.failIds[r.URL.Query().Get("id")]; ok {
		w.WriteHeader(code)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *recordingServer) values() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]string{}
	for _, q := range s.requests {
		out[q.Get("id")] = q.Get("value")
	}
	return out
}

var allCommandIds = map[string]string{
	"em_pull_instant":   "11",
	"em_push_instant":   "12",
	"em_pull_day":       "13",
	"em_pull_night":     "14",
	"em_push_day":       "15",
	"em_push_night":     "16",
	"inv_instant_prod":  "21",
	"inv_daily_prod":    "22",
	"inv_device_status": "23",
	"inv_state1":        "24",
	"inv_state2":        "25",
	"inv_state3":        "26",
	"inv_alarm1":        "27",
	"inv_alarm2":        "28",
	"inv_alarm3":        "29",
}

func fullBatch() domain.Batch {
	meter := map[string]*float64{}
	for i, f := range domain.MeterFields {
		meter[f] = domain.Float(float64(i) + 0.5)
	}
	inv := map[string]*float64{}
	for i, f := range domain.InverterFields {
		inv[f] = domain.Float(float64(i))
	}
	return domain.Batch{
		domain.SOURCE_ENERGY_METER: domain.NewReadingRecord(domain.SOURCE_ENERGY_METER, time.Now(), meter, nil),
		domain.SOURCE_INVERTER:     domain.NewReadingRecord(domain.SOURCE_INVERTER, time.Now(), inv, nil),
	}
}

func TestSendValue(t *testing.T) {

	assert := assert.New(t)

	srv := &recordingServer{}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	c, err := NewClient(ts.URL+"/", "s3cr3t&", nil, time.Second, zap.NewNop())
	require.NoError(t, err)

	assert.NoError(c.SendValue(context.Background(), "42", "1.5 kW"))

	require.Len(t, srv.requests, 1)
	q := srv.requests[0]
	assert.Equal(API_PATH, srv.paths[0])
	assert.Equal("virtual", q.Get("plugin"))
	assert.Equal("event", q.Get("type"))
	assert.Equal("s3cr3t&", q.Get("apikey"))
	assert.Equal("42", q.Get("id"))
	assert.Equal("1.5 kW", q.Get("value"))
}

func TestSendValueNon2xx(t *testing.T) {

	srv := &recordingServer{failIds: map[string]int{"42": http.StatusInternalServerError}}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	c, err := NewClient(ts.URL, "key", nil, time.Second, nil)
	require.NoError(t, err)

	err = c.SendValue(context.Background(), "42", "1")
	var delErr *DeliveryError
	require.True(t, errors.As(err, &delErr))
	assert.Equal(t, http.StatusInternalServerError, delErr.StatusCode)

	assert.NoError(t, c.SendValue(context.Background(), "43", "1"))
}

func TestForwardSendsOneRequestPerField(t *testing.T) {

	assert := assert.New(t)

	srv := &recordingServer{}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	c, err := NewClient(ts.URL, "key", allCommandIds, time.Second, zap.NewNop())
	require.NoError(t, err)

	errs := c.Forward(context.Background(), fullBatch())
	assert.Empty(errs)

	values := srv.values()
	assert.Len(values, 15)
	assert.Equal("0.5", values["11"])
	assert.Equal("5.5", values["16"])
	assert.Equal("0", values["21"])
	assert.Equal("8", values["29"])
}

func TestForwardIsolatesFailures(t *testing.T) {

	assert := assert.New(t)

	srv := &recordingServer{failIds: map[string]int{"13": http.StatusNotFound, "24": http.StatusBadGateway}}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	c, err := NewClient(ts.URL, "key", allCommandIds, time.Second, zap.NewNop())
	require.NoError(t, err)

	errs := c.Forward(context.Background(), fullBatch())
	assert.Len(errs, 2)
	assert.Len(srv.values(), 15, "every field is attempted")

	fields := map[string]bool{}
	for _, err := range errs {
		var delErr *DeliveryError
		require.True(t, errors.As(err, &delErr))
		fields[delErr.Field] = true
	}
	assert.True(fields["em_pull_day"])
	assert.True(fields["inv_state1"])
}

func TestForwardSkipsUnconfiguredAndSendsNullAsEmpty(t *testing.T) {

	assert := assert.New(t)

	srv := &recordingServer{}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	c, err := NewClient(ts.URL, "key", map[string]string{"EM_PULL_DAY": "13", "em_push_day": ""}, time.Second, zap.NewNop())
	require.NoError(t, err)

	batch := domain.Batch{
		domain.SOURCE_ENERGY_METER: domain.NewReadingRecord(domain.SOURCE_ENERGY_METER, time.Now(),
			map[string]*float64{domain.FIELD_PULL_DAY: nil, domain.FIELD_PUSH_DAY: domain.Float(1)}, nil),
	}
	assert.Empty(c.Forward(context.Background(), batch))

	values := srv.values()
	assert.Len(values, 1)
	v, ok := values["13"]
	assert.True(ok)
	assert.Equal("", v)
}

func TestForwardUnreachable(t *testing.T) {

	c, err := NewClient("http://127.0.0.1:1", "key", allCommandIds, 500*time.Millisecond, zap.NewNop())
	require.NoError(t, err)

	errs := c.Forward(context.Background(), fullBatch())
	assert.Len(t, errs, 15)
}

func TestCommandKey(t *testing.T) {

	assert.Equal(t, "em_pull_instant", CommandKey(domain.SOURCE_ENERGY_METER, domain.FIELD_PULL_INSTANT))
	assert.Equal(t, "inv_alarm3", CommandKey(domain.SOURCE_INVERTER, domain.FIELD_ALARM3))
}

func TestNewClientRequiresURL(t *testing.T) {

	_, err := NewClient("", "key", nil, time.Second, nil)
	assert.Error(t, err)
}
