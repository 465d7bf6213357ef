package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfig_Validate(t *testing.T) {
	conf := Config{Level: "debug"}
	assert.NoError(t, conf.Validate())

	conf = Config{}
	assert.Error(t, conf.Validate())

	conf = Config{Level: "trace"}
	assert.Error(t, conf.Validate())
}

func TestLogger_WithSubsystem(t *testing.T) {
	l, err := NewLogger("info", []string{"gossip"})
	assert.NoError(t, err)
	assert.Equal(t, "main", l.Subsystem())

	gossipLogger := l.WithSubsystem("gossip")
	assert.Equal(t, "gossip", gossipLogger.Subsystem())
	assert.True(t, gossipLogger.(*logger).subsystemEnabled)
	assert.False(t, l.(*logger).subsystemEnabled)

	_, err = NewLogger("trace", nil)
	assert.Error(t, err)
}
