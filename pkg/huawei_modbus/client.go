package huawei_modbus

import (
	"fmt"
	"time"

	"github.com/simonvetter/modbus"
	"go.uber.org/zap"
)

const (
	UNIT_ID              = 1
	DEFAULT_SETTLE_DELAY = 2000 * time.Millisecond
)

// RegisterReader is a persistent session to a register-addressable device.
// Connect establishes the transport, Settle blocks until the device accepts reads.
type RegisterReader interface {
	Connect() error
	Settle()
	ReadRegisters(address uint16, quantity uint16) ([]byte, error)
	Close() error
}

// Open connects and waits for the device to settle.
func Open(reader RegisterReader) error {
	if err := reader.Connect(); err != nil {
		return err
	}
	reader.Settle()
	return nil
}

type RegisterClient struct {
	ModbusClient
	endpoint    string
	settleDelay time.Duration
	logger      *zap.Logger
}

func CreateRegisterClient(ip string, port uint, timeout time.Duration, logger *zap.Logger,
	instrumentation *ModbusInstrument) (*RegisterClient, error) {
	endpoint := fmt.Sprintf("tcp://%s:%d", ip, port)
	client, err := modbus.NewClient(&modbus.ClientConfiguration{
		URL:     endpoint,
		Timeout: timeout,
	})
	if err != nil {
		return nil, err
	}
	logger = logger.With(zap.String("target", "inverter"), zap.String("endpoint", endpoint))

	// instrumentation
	var inst []ModbusInstrument
	if logInst := traceLoggerInstrumentation(logger); logInst != nil {
		inst = append(inst, *logInst)
	}
	if instrumentation != nil {
		inst = append(inst, *instrumentation)
	}

	// the dongle only answers on unit 1
	err = client.SetUnitId(UNIT_ID)
	if err != nil {
		return nil, err
	}
	return &RegisterClient{
		ModbusClient: ModbusClient{
			client:     client,
			instrument: inst,
		},
		endpoint:    endpoint,
		settleDelay: DEFAULT_SETTLE_DELAY,
		logger:      logger,
	}, nil
}

func (c *RegisterClient) SetSettleDelay(delay time.Duration) {
	c.settleDelay = delay
}

func (c *RegisterClient) Connect() error {
	c.logger.Debug("connecting")
	if err := c.client.Open(); err != nil {
		return &ConnectionError{Endpoint: c.endpoint, Err: err}
	}
	c.logger.Info("connected")
	return nil
}

// Settle waits before the first read. The dongle rejects reads issued right after connect.
func (c *RegisterClient) Settle() {
	c.logger.Debug("settling", zap.Duration("delay", c.settleDelay))
	time.Sleep(c.settleDelay)
}

func (c *RegisterClient) ReadRegisters(address uint16, quantity uint16) ([]byte, error) {
	data, err := c.readRawBytes(address, quantity, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, &ReadError{Address: address, Quantity: quantity, Err: err}
	}
	return data, nil
}

func (c *RegisterClient) Close() error {
	return c.client.Close()
}

// ensure interface compliance
var _ RegisterReader = (*RegisterClient)(nil)
