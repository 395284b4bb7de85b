package huawei_modbus

import "fmt"

// ConnectionError is returned when the TCP transport to the dongle cannot be established.
type ConnectionError struct {
	Endpoint string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("modbus connect %s: %v", e.Endpoint, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ReadError is returned when a register read is rejected or times out.
type ReadError struct {
	Address  uint16
	Quantity uint16
	Err      error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("modbus read %d (x%d): %v", e.Address, e.Quantity, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}
