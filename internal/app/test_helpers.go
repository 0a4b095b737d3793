package app

import (
	"bytes"
	"os"
	"sync"
	"testing"

	"github.com/vk/elgrid/internal/config"
	"github.com/vk/elgrid/internal/registry"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// SetupAppTest creates a new app instance with debug logging captured in a
// buffer. Set ELGRID_TEST_LOGS=true to print the log after the test.
func SetupAppTest(t *testing.T, appConfig *AppConfig, loader config.Loader, modules ...registry.Module) (*App, *SafeBuffer) {
	t.Helper()

	logBuffer := &SafeBuffer{}
	appConfig.LogLevel = "debug"
	if appConfig.WorkerCount == 0 {
		appConfig.WorkerCount = 4
	}
	testApp := NewApp(logBuffer, appConfig, loader, modules...)

	t.Cleanup(func() {
		if os.Getenv("ELGRID_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
		}
	})

	return testApp, logBuffer
}
