package logger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeReceivesEntries(t *testing.T) {
	l := New("test-service", "test")
	l.DisableConsoleOutput()

	ch := l.Subscribe()
	l.Infof("sync applied %d records", 5)

	select {
	case entry := <-ch:
		assert.Equal(t, "INFO", entry.Level)
		assert.Equal(t, "sync applied 5 records", entry.Message)
	case <-time.After(time.Second):
		t.Fatal("no log entry received")
	}
}

func TestWithFieldsCarriesFields(t *testing.T) {
	l := New("test-service", "test")
	l.DisableConsoleOutput()

	ch := l.Subscribe()
	l.WithFields(map[string]string{"user_id": "user_a"}).Info("deleted")

	select {
	case entry := <-ch:
		require.NotNil(t, entry.Fields)
		assert.Equal(t, "user_a", entry.Fields["user_id"])
	case <-time.After(time.Second):
		t.Fatal("no log entry received")
	}
}

func TestFormatServiceNameTruncates(t *testing.T) {
	formatted := formatServiceName("a-service-name-longer-than-the-column")
	assert.Len(t, formatted, ServiceNameWidth)
}
