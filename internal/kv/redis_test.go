package kv

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "adworker:counter:queue_size", Key("adworker", "counter", "queue_size"))
	assert.Equal(t, "counter:queue_size", Key("", "counter", "queue_size"))
	assert.Equal(t, "adworker", Key("adworker"))
}
