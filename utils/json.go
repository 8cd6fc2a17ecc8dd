package utils

import (
	"bytes"
	"sync"

	"github.com/bytedance/sonic"
)

type JSONBufferPool struct {
	pool sync.Pool
}

func (p *JSONBufferPool) Get() *bytes.Buffer {
	if buf := p.pool.Get(); buf != nil {
		return buf.(*bytes.Buffer)
	}
	return bytes.NewBuffer(make([]byte, 0, 1024))
}

func (p *JSONBufferPool) Put(buf *bytes.Buffer) {
	buf.Reset()
	if buf.Cap() < 16*1024 {
		p.pool.Put(buf)
	}
}

var jsonPool = &JSONBufferPool{}

// Marshal encodes data with sonic without the trailing newline the stream
// encoder emits.
func Marshal(data interface{}) ([]byte, error) {
	buf := jsonPool.Get()
	defer jsonPool.Put(buf)

	encoder := sonic.ConfigStd.NewEncoder(buf)
	if err := encoder.Encode(data); err != nil {
		return nil, err
	}

	encoded := bytes.TrimRight(buf.Bytes(), "\n")
	result := make([]byte, len(encoded))
	copy(result, encoded)
	return result, nil
}

func Unmarshal[T any](data []byte, target *T) error {
	return sonic.ConfigStd.Unmarshal(data, target)
}

// StableKey renders args as JSON for use inside cache keys. Map keys are
// sorted so equal arguments always produce the same key.
func StableKey(args interface{}) (string, error) {
	data, err := sonic.ConfigStd.Marshal(args)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
