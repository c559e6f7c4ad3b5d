package storage

import (
	"github.com/bytedance/sonic"
)

func encode(v any) ([]byte, error) {
	return sonic.Marshal(v)
}

func decode(b []byte, v any) error {
	return sonic.Unmarshal(b, v)
}
