package huawei_modbus

import (
	"errors"
	"sync"
	"time"
)

// TestRegisterReader serves reads from an in-memory register bank.
type TestRegisterReader struct {
	mu         sync.Mutex
	Registers  map[uint16]uint16
	FailAt     map[uint16]error
	ConnectErr error
	Connected  bool
	Settled    bool
	Reads      []uint16
	// ReadDelay is added to every register read
	ReadDelay time.Duration
}

func CreateTestRegisterReader() *TestRegisterReader {
	reader := &TestRegisterReader{
		Registers: map[uint16]uint16{},
		FailAt:    map[uint16]error{},
	}
	reader.SetU16(32089, 0x0001)
	reader.SetU16(32000, 0b0000000101)
	reader.SetU16(32002, 0b011)
	reader.SetU32(32003, 0b10)
	reader.SetU16(32008, 0x8001)
	reader.SetU16(32009, 0)
	reader.SetU16(32010, 0x2000)
	reader.SetU32(32080, uint32(3512))
	reader.SetU32(32114, 1234)
	return reader
}

func (r *TestRegisterReader) SetU16(address uint16, value uint16) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Registers[address] = value
}

func (r *TestRegisterReader) SetU32(address uint16, value uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Registers[address] = uint16(value >> 16)
	r.Registers[address+1] = uint16(value)
}

func (r *TestRegisterReader) Fail(address uint16, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.FailAt[address] = err
}

func (r *TestRegisterReader) ReadCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Reads)
}

func (r *TestRegisterReader) Connect() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ConnectErr != nil {
		return &ConnectionError{Endpoint: "test", Err: r.ConnectErr}
	}
	r.Connected = true
	return nil
}

func (r *TestRegisterReader) Settle() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Settled = true
}

func (r *TestRegisterReader) ReadRegisters(address uint16, quantity uint16) ([]byte, error) {
	r.mu.Lock()
	delay := r.ReadDelay
	r.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.Reads = append(r.Reads, address)
	if !r.Connected || !r.Settled {
		return nil, &ReadError{Address: address, Quantity: quantity, Err: errors.New("not connected")}
	}
	if err, ok := r.FailAt[address]; ok {
		return nil, &ReadError{Address: address, Quantity: quantity, Err: err}
	}
	data := make([]byte, 0, quantity*2)
	for i := uint16(0); i < quantity; i++ {
		v := r.Registers[address+i]
		data = append(data, byte(v>>8), byte(v))
	}
	return data, nil
}

func (r *TestRegisterReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Connected = false
	return nil
}

var _ RegisterReader = (*TestRegisterReader)(nil)
