package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nainya/entitycore/internal/connector/kv"
	"github.com/nainya/entitycore/internal/connector/remote"
	"github.com/nainya/entitycore/internal/schema"
	"github.com/nainya/entitycore/pkg/value"
)

const userSchema = `
models:
  - name: User
    fields:
      - name: id
        type: int
        primary: true
        auto_increment: true
        write: no_write
      - name: email
        type: string
        unique: true
        on_set: [trim, lowercase, email]
      - name: name
        type: string
        optional: true
`

// workdir switches into a fresh directory holding the test schema so no
// stray config file is picked up
func workdir(t *testing.T) (dir, schemaPath string) {
	t.Helper()
	dir = t.TempDir()
	t.Chdir(dir)
	schemaPath = filepath.Join(dir, "schema.yaml")
	require.NoError(t, os.WriteFile(schemaPath, []byte(userSchema), 0o644))
	return dir, schemaPath
}

func run(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd(nil)
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func TestCheck(t *testing.T) {
	_, schemaPath := workdir(t)

	out, err := run(t, context.Background(), "check", schemaPath)
	require.NoError(t, err)
	assert.Contains(t, out, "User (users): 3 fields, primary [id], 1 indices (1 unique), 0 relations")
	assert.Contains(t, out, "1 models ok")

	out, err = run(t, context.Background(), "check", "--schema", schemaPath)
	require.NoError(t, err)
	assert.Contains(t, out, "1 models ok")
}

func TestCheckFailures(t *testing.T) {
	dir, _ := workdir(t)
	broken := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("models:\n  - name: A\n    fields:\n      - {name: x, type: int}\n"), 0o644))

	tests := []struct {
		name string
		args []string
	}{
		{"no schema", []string{"check"}},
		{"missing file", []string{"check", filepath.Join(dir, "absent.yaml")}},
		{"no primary", []string{"check", broken}},
		{"bad provider", []string{"check", broken, "--provider", "mongo"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, context.Background(), tt.args...)
			assert.Error(t, err)
		})
	}
}

func writeRecords(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "records.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestImportIntoKV(t *testing.T) {
	dir, schemaPath := workdir(t)
	wal := filepath.Join(dir, "data", "users.wal")
	require.NoError(t, os.MkdirAll(filepath.Dir(wal), 0o755))
	records := writeRecords(t, dir, `[
		{"email": " Ada@X.io ", "name": "Ada"},
		{"email": "grace@x.io"},
		{"email": "linus@x.io", "name": "Linus"}
	]`)

	out, err := run(t, context.Background(), "import", "User", records,
		"--schema", schemaPath, "--provider", "kv", "--wal", wal, "--concurrency", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "imported 3 User records")

	models, err := schema.LoadFile(schemaPath, nil)
	require.NoError(t, err)
	store, err := kv.Open(kv.Options{Path: wal})
	require.NoError(t, err)
	defer store.Close()
	assert.Equal(t, 3, store.Count(models[0]))
	row, err := store.FindUnique(context.Background(), models[0], map[string]value.Value{"email": value.String("ada@x.io")})
	require.NoError(t, err)
	assert.Equal(t, value.String("Ada"), row["name"])
}

func TestImportRejectsInvalidRecords(t *testing.T) {
	dir, schemaPath := workdir(t)
	wal := filepath.Join(dir, "users.wal")
	records := writeRecords(t, dir, `[{"email": "ok@x.io"}, {"email": "nope"}, {"email": "a@x.io", "id": 4}]`)

	_, err := run(t, context.Background(), "import", "User", records,
		"--schema", schemaPath, "--provider", "kv", "--wal", wal)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record 1")
	assert.Contains(t, err.Error(), "record 2")

	models, err := schema.LoadFile(schemaPath, nil)
	require.NoError(t, err)
	store, err := kv.Open(kv.Options{Path: wal})
	require.NoError(t, err)
	defer store.Close()
	assert.Equal(t, 0, store.Count(models[0]))
}

func TestImportUnknownModel(t *testing.T) {
	dir, schemaPath := workdir(t)
	records := writeRecords(t, dir, `[]`)
	_, err := run(t, context.Background(), "import", "Ghost", records, "--schema", schemaPath)
	assert.Error(t, err)
}

func freePort(t *testing.T) int {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer lis.Close()
	return lis.Addr().(*net.TCPAddr).Port
}

func TestServe(t *testing.T) {
	_, schemaPath := workdir(t)
	port := freePort(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := run(t, ctx, "serve", "--schema", schemaPath, "--port", fmt.Sprint(port), "--metrics-port", "0")
		done <- err
	}()

	conn, err := remote.Dial(fmt.Sprintf("127.0.0.1:%d", port))
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool {
		return conn.Ping(context.Background()) == nil
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop")
	}
}
