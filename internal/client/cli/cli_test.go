package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/chartsync/internal/client/iocli"
	"github.com/iudanet/chartsync/internal/client/localapi"
	"github.com/iudanet/chartsync/internal/client/storage"
	"github.com/iudanet/chartsync/internal/config"
	"github.com/iudanet/chartsync/internal/server"
	"github.com/iudanet/chartsync/internal/server/handlers"
	"github.com/iudanet/chartsync/internal/server/storage/sqlite"
)

const testPassphrase = "correct horse battery"

// output собирает всё, что команда печатает через IO
type output struct {
	buf bytes.Buffer
	mu  sync.Mutex
}

func (o *output) String() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.buf.String()
}

func newMockIO(out *output, input ...string) *iocli.IOMock {
	var mu sync.Mutex
	next := func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if len(input) == 0 {
			return "", io.EOF
		}
		v := input[0]
		input = input[1:]
		return v, nil
	}
	write := func(s string) {
		out.mu.Lock()
		defer out.mu.Unlock()
		out.buf.WriteString(s)
	}
	return &iocli.IOMock{
		PrintlnFunc: func(a ...any) { write(fmt.Sprintln(a...)) },
		PrintfFunc:  func(format string, a ...any) { write(fmt.Sprintf(format, a...)) },
		WriteFunc: func(p []byte) (int, error) {
			write(string(p))
			return len(p), nil
		},
		ReadInputFunc:    func(string) (string, error) { return next() },
		ReadPasswordFunc: func(string) (string, error) { return next() },
	}
}

type cliEnv struct {
	configPath string
	dbPath     string
	localBind  string
	backend    *httptest.Server
}

func newBackend(t *testing.T, jwt handlers.JWTConfig) *httptest.Server {
	t.Helper()
	store, err := sqlite.New(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	srv := server.New(slog.New(slog.DiscardHandler), store, server.Options{
		JWT:        jwt,
		RateLimit:  1000,
		RateWindow: time.Minute,
	})
	t.Cleanup(srv.Close)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

// setupCLI пишет конфиг, указывающий на тестовый backend
func setupCLI(t *testing.T, localAPI bool) *cliEnv {
	t.Helper()
	t.Setenv(config.EnvPassphrase, "")
	t.Setenv(config.EnvAccessToken, "")
	t.Setenv(config.EnvServerURL, "")

	jwt := handlers.JWTConfig{Secret: []byte("cli-test-secret"), AccessTokenTTL: time.Hour}
	backend := newBackend(t, jwt)
	token, _, err := handlers.GenerateAccessToken(jwt, "clinic_ui")
	require.NoError(t, err)

	dir := t.TempDir()
	env := &cliEnv{
		configPath: filepath.Join(dir, "config.toml"),
		dbPath:     filepath.Join(dir, "data", "queue.db"),
		localBind:  freeAddr(t),
		backend:    backend,
	}
	content := fmt.Sprintf(`[client]
server_url = %q
db_path = %q
access_token = %q

[sync]
interval_seconds = 1
debounce_ms = 0
probe_interval_seconds = 1

[local_api]
enabled = %t
bind = %q

[log]
level = "error"
`, backend.URL, env.dbPath, token, localAPI, env.localBind)
	require.NoError(t, os.WriteFile(env.configPath, []byte(content), 0o600))
	return env
}

func (e *cliEnv) run(t *testing.T, args []string, input ...string) (string, error) {
	t.Helper()
	return e.runContext(context.Background(), t, args, input...)
}

func (e *cliEnv) runContext(ctx context.Context, t *testing.T, args []string, input ...string) (string, error) {
	t.Helper()
	out := &output{}
	cmd := NewRootCommand(BuildInfo{Version: "1.2.3", BuildDate: "today", GitCommit: "abc"}, WithIO(newMockIO(out, input...)))
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--config", e.configPath}, args...))
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func TestCLI_Version(t *testing.T) {
	env := setupCLI(t, false)

	out, err := env.run(t, []string{"version"})
	require.NoError(t, err)
	assert.Contains(t, out, "Version:    1.2.3")
	assert.Contains(t, out, "Git Commit: abc")
}

func TestCLI_EnqueueSyncRecords(t *testing.T) {
	env := setupCLI(t, false)

	out, err := env.run(t, []string{"enqueue", "create", "patients", `{"id":"temp_1","name":"Amina"}`})
	require.NoError(t, err)
	assert.Contains(t, out, "Queued create patients as ")

	out, err = env.run(t, []string{"list"})
	require.NoError(t, err)
	assert.Contains(t, out, "temp_1")
	assert.Contains(t, out, "pending")

	out, err = env.run(t, []string{"status"})
	require.NoError(t, err)
	assert.Contains(t, out, "Pending:    1")
	assert.Contains(t, out, "Last sync:  never")

	out, err = env.run(t, []string{"sync"})
	require.NoError(t, err)
	assert.Contains(t, out, "Synced:     1")

	// синхронизированные элементы удаляются в конце цикла
	out, err = env.run(t, []string{"list"})
	require.NoError(t, err)
	assert.Contains(t, out, "Queue is empty")

	// временный ключ заменён ключом сервера, но по-прежнему находит запись
	out, err = env.run(t, []string{"records", "patients", "temp_1"})
	require.NoError(t, err)
	assert.Contains(t, out, `"name": "Amina"`)

	out, err = env.run(t, []string{"records", "patients"})
	require.NoError(t, err)
	assert.Contains(t, out, `"name": "Amina"`)
}

func TestCLI_SyncOffline(t *testing.T) {
	env := setupCLI(t, false)
	env.backend.Close()

	_, err := env.run(t, []string{"enqueue", "update", "patients", `{"id":"p-1","name":"x"}`})
	require.NoError(t, err)

	_, err = env.run(t, []string{"sync"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreachable")

	out, err := env.run(t, []string{"status"})
	require.NoError(t, err)
	assert.Contains(t, out, "Network:    offline")
	assert.Contains(t, out, "Pending:    1")
}

func TestCLI_Validation(t *testing.T) {
	env := setupCLI(t, false)

	tests := []struct {
		name string
		args []string
	}{
		{name: "unknown action", args: []string{"enqueue", "upsert", "patients", `{"id":"x"}`}},
		{name: "unknown table", args: []string{"enqueue", "create", "drugs", `{"id":"x"}`}},
		{name: "broken payload", args: []string{"enqueue", "create", "patients", `{"id":`}},
		{name: "unknown priority", args: []string{"enqueue", "create", "patients", `{"id":"x"}`, "--priority", "urgent"}},
		{name: "unknown resolution", args: []string{"resolve", "q-1", "merge"}},
		{name: "unknown item", args: []string{"retry", "missing"}},
		{name: "bad list filter", args: []string{"list", "--status", "lost"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.run(t, tt.args)
			assert.Error(t, err)
		})
	}
}

func TestCLI_ClearConfirmation(t *testing.T) {
	env := setupCLI(t, false)
	_, err := env.run(t, []string{"enqueue", "create", "patients", `{"id":"temp_1"}`})
	require.NoError(t, err)

	out, err := env.run(t, []string{"clear"}, "no")
	require.NoError(t, err)
	assert.Contains(t, out, "Aborted")

	out, err = env.run(t, []string{"list"})
	require.NoError(t, err)
	assert.Contains(t, out, "temp_1")

	out, err = env.run(t, []string{"clear", "--yes"})
	require.NoError(t, err)
	assert.Contains(t, out, "Queue cleared")

	out, err = env.run(t, []string{"conflicts"})
	require.NoError(t, err)
	assert.Contains(t, out, "No conflicts")

	for _, cmd := range []string{"retry-failed", "clear-synced", "clear-failed"} {
		out, err = env.run(t, []string{cmd})
		require.NoError(t, err, cmd)
		assert.Contains(t, out, " 0 ", cmd)
	}
}

func TestCLI_EncryptedStore(t *testing.T) {
	env := setupCLI(t, false)

	out, err := env.run(t, []string{"init", "--encrypt"}, testPassphrase, testPassphrase)
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")
	assert.Contains(t, out, "Encrypted store ready")

	// без пароля в окружении команда спрашивает его
	_, err = env.run(t, []string{"enqueue", "create", "patients", `{"id":"temp_1"}`}, testPassphrase)
	require.NoError(t, err)

	_, err = env.run(t, []string{"status"}, "wrong passphrase!")
	assert.ErrorIs(t, err, storage.ErrWrongPassphrase)

	t.Setenv(config.EnvPassphrase, testPassphrase)
	out, err = env.run(t, []string{"status"})
	require.NoError(t, err)
	assert.Contains(t, out, "Pending:    1")
}

func TestCLI_InitRejectsMismatchedPassphrase(t *testing.T) {
	env := setupCLI(t, false)

	_, err := env.run(t, []string{"init", "--encrypt"}, testPassphrase, "something else")
	assert.ErrorContains(t, err, "do not match")

	_, err = env.run(t, []string{"init", "--encrypt"}, "short", "short")
	assert.Error(t, err)
}

func TestCLI_InitWritesSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cmd := NewRootCommand(BuildInfo{}, WithIO(newMockIO(&output{})))
	cmd.SetArgs([]string{"--config", path, "init"})
	require.NoError(t, cmd.Execute())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, config.Sample(), string(data))
}

func TestCLI_DaemonServesOtherCommands(t *testing.T) {
	env := setupCLI(t, true)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := env.runContext(ctx, t, []string{"daemon"})
		done <- err
	}()

	client := localapi.NewClient(env.localBind)
	require.Eventually(t, func() bool {
		return client.Ping(context.Background(), 100*time.Millisecond)
	}, 5*time.Second, 50*time.Millisecond)

	// база занята daemon, команды идут через локальный API
	out, err := env.run(t, []string{"enqueue", "create", "patients", `{"id":"temp_1","name":"Amina"}`, "--priority", "high"})
	require.NoError(t, err)
	assert.Contains(t, out, "Queued create patients")

	assert.Eventually(t, func() bool {
		status, err := client.GetStatus(context.Background())
		return err == nil && status.IsOnline && status.PendingCount == 0 && !status.LastSyncTime.IsZero()
	}, 5*time.Second, 50*time.Millisecond)

	out, err = env.run(t, []string{"records", "patients"})
	require.NoError(t, err)
	assert.Contains(t, out, `"name": "Amina"`)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("daemon did not stop")
	}
}

func TestItemStateAndTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
	assert.True(t, strings.HasSuffix(renderTable([]string{"A"}, [][]string{{"x"}}, nil), "\n"))
	assert.Empty(t, renderTable(nil, nil, nil))
}
