package jeedom

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/berfenger/powermon/internal/core/domain"
	"github.com/berfenger/powermon/internal/core/port"

	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
)

const (
	API_PATH       = "/core/api/jeeApi.php"
	PLUGIN_VIRTUAL = "virtual"
	TYPE_EVENT     = "event"
)

// DeliveryError is the failure of a single field delivery.
type DeliveryError struct {
	Field      string
	CommandId  string
	StatusCode int
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("jeedom: could not send %s (cmd %s): %v", e.Field, e.CommandId, e.Err)
	}
	return fmt.Sprintf("jeedom: could not send %s (cmd %s): status code %d", e.Field, e.CommandId, e.StatusCode)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// DeliveryInstrument observes every field delivery.
type DeliveryInstrument interface {
	RecordDelivery(field string, err error, elapsed time.Duration)
}

type Client struct {
	baseURL    string
	apiKey     string
	commandIds map[string]string
	client     *http.Client
	instrument DeliveryInstrument
	logger     *zap.Logger
}

func NewClient(baseURL, apiKey string, commandIds map[string]string, timeout time.Duration, logger *zap.Logger) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("jeedom: empty base url")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("jeedom: invalid base url: %w", err)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ids := make(map[string]string, len(commandIds))
	for k, v := range commandIds {
		ids[strings.ToLower(k)] = v
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		commandIds: ids,
		client:     &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

func (c *Client) SetInstrument(instrument DeliveryInstrument) {
	c.instrument = instrument
}

// CommandKey is the configuration key of the command id of a field.
func CommandKey(source domain.Source, field string) string {
	switch source {
	case domain.SOURCE_ENERGY_METER:
		return "em_" + field
	case domain.SOURCE_INVERTER:
		return "inv_" + field
	default:
		return fmt.Sprintf("%s_%s", source, field)
	}
}

func (c *Client) CommandId(source domain.Source, field string) (string, bool) {
	id, ok := c.commandIds[CommandKey(source, field)]
	return id, ok && id != ""
}

func (c *Client) eventURL(cmdId, value string) string {
	q := url.Values{}
	q.Set("plugin", PLUGIN_VIRTUAL)
	q.Set("type", TYPE_EVENT)
	q.Set("apikey", c.apiKey)
	q.Set("id", cmdId)
	q.Set("value", value)
	return c.baseURL + API_PATH + "?" + q.Encode()
}

// SendValue pushes one value to a virtual command. Any 2xx status is a success.
func (c *Client) SendValue(ctx context.Context, cmdId string, value string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.eventURL(cmdId, value), nil)
	if err != nil {
		return &DeliveryError{CommandId: cmdId, Err: err}
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return &DeliveryError{CommandId: cmdId, Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &DeliveryError{CommandId: cmdId, StatusCode: resp.StatusCode}
	}
	return nil
}

// Forward sends every field of the batch concurrently, one request per
// field. A failed field is reported and never cancels the others.
func (c *Client) Forward(ctx context.Context, batch domain.Batch) []error {
	var (
		wg   = conc.NewWaitGroup()
		errs = make(chan error, countFields(batch))
	)

	for _, source := range batch.Sources() {
		rec := batch[source]
		for _, field := range rec.Fields() {
			cmdId, ok := c.CommandId(source, field)
			if !ok {
				c.logger.Warn("jeedom: no command id configured, skipping field", zap.String("key", CommandKey(source, field)))
				continue
			}
			value := FormatValue(rec, field)
			key := CommandKey(source, field)
			wg.Go(func() {
				start := time.Now()
				err := c.SendValue(ctx, cmdId, value)
				if err != nil {
					var delErr *DeliveryError
					if errors.As(err, &delErr) {
						delErr.Field = key
					}
					c.logger.Error("jeedom: delivery failed", zap.String("field", key), zap.Error(err))
					errs <- err
				}
				if c.instrument != nil {
					c.instrument.RecordDelivery(key, err, time.Since(start))
				}
			})
		}
	}
	wg.Wait()
	close(errs)

	var result []error
	for err := range errs {
		result = append(result, err)
	}
	return result
}

// FormatValue renders a field value. Null fields are sent as an empty value.
func FormatValue(rec domain.ReadingRecord, field string) string {
	v, ok := rec.Value(field)
	if !ok {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func countFields(batch domain.Batch) int {
	n := 0
	for _, rec := range batch {
		n += len(rec.Fields())
	}
	return n
}

var _ port.BatchForwarder = (*Client)(nil)
