package app

import (
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// findFreePort находит свободный порт для тестов
func findFreePort(t *testing.T) int {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err, "failed to find free port")
	defer listener.Close()

	return listener.Addr().(*net.TCPAddr).Port
}

// newTestConfig возвращает конфигурацию на свободных портах и во временном каталоге.
func newTestConfig(t *testing.T) Config {
	t.Helper()

	cfg := DefaultConfig()
	cfg.HTTPAddr = fmt.Sprintf("127.0.0.1:%d", findFreePort(t))
	cfg.MetricsAddr = fmt.Sprintf("127.0.0.1:%d", findFreePort(t))
	cfg.OrdersDir = t.TempDir()
	cfg.ShutdownTimeout = 2 * time.Second
	return cfg
}

// waitHTTP ждёт, пока по url начнёт отвечать сервер.
func waitHTTP(t *testing.T, url string) {
	t.Helper()
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return true
	}, 3*time.Second, 20*time.Millisecond, "server at %s did not start", url)
}
