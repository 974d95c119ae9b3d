package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskAPIKey(t *testing.T) {
	tests := []struct {
		name string
		key  string
		want string
	}{
		{name: "typical key", key: "sk-abcdefghijklmnopqrstuvwxyz123456", want: "sk-abc...3456"},
		{name: "minimum length", key: "sk-1234567", want: "sk-123...4567"},
		{name: "too short", key: "sk-123456", want: ""},
		{name: "wrong prefix", key: "pk-abcdefghijklmnop", want: ""},
		{name: "empty", key: "", want: ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, MaskAPIKey(tc.key))
		})
	}
}
