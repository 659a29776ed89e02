package kafka

import (
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBrokers(t *testing.T) {
	tests := []struct {
		name string
		list string
		want []string
	}{
		{"single", "localhost:9092", []string{"localhost:9092"}},
		{"multiple", "a:9092,b:9092", []string{"a:9092", "b:9092"}},
		{"whitespace", " a:9092 , b:9092 ", []string{"a:9092", "b:9092"}},
		{"trailing comma", "a:9092,", []string{"a:9092"}},
		{"empty", "", nil},
		{"only commas", ",,", nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ParseBrokers(tc.list))
		})
	}
}

func TestCreateChannelRequiresBrokers(t *testing.T) {
	_, _, err := CreateChannel(watermill.NopLogger{}, "flowengine", nil)
	require.ErrorIs(t, err, ErrNoBrokers)
}
