package kafka

import (
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoffWithJitterBounds(t *testing.T) {
	min, max := 50*time.Millisecond, 400*time.Millisecond
	for attempt := 1; attempt <= 10; attempt++ {
		d := backoffWithJitter(min, max, attempt)
		assert.LessOrEqual(t, d, max)
		assert.Greater(t, d, time.Duration(0))
	}
}

func TestEncodeValue(t *testing.T) {
	b, err := encodeValue([]byte("raw"))
	require.NoError(t, err)
	assert.Equal(t, "raw", string(b))

	b, err = encodeValue(map[string]int{"n": 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":1}`, string(b))
}

func TestParseCompression(t *testing.T) {
	assert.Equal(t, kafka.Zstd, parseCompression("zstd"))
	assert.Equal(t, kafka.Gzip, parseCompression("unknown"))
}

func TestConstructorsRequireBrokers(t *testing.T) {
	_, err := NewProducer()
	assert.Error(t, err)
	_, err = NewConsumer(nil)
	assert.Error(t, err)
}
