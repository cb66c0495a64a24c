package artifact

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(contents), 0o644))
}

func TestNewFailsOnMissingDirectory(t *testing.T) {
	dir := t.TempDir()
	_, err := New(Dirs{Jar: dir, Exhibitor: dir, ZooKeeper: dir, JDK: filepath.Join(dir, "does-not-exist")})
	assert.Error(t, err)
}

func TestServeAndHeaders(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "framework.jar", "binary-content")

	s, err := New(Dirs{Jar: dir, Exhibitor: dir, ZooKeeper: dir, JDK: dir})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	s.Mux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jar/framework.jar", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/octet-stream", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
	assert.Equal(t, "binary-content", rec.Body.String())
}

func TestUnconfiguredOptionalRouteIsNotRegistered(t *testing.T) {
	dir := t.TempDir()
	s, err := New(Dirs{Jar: dir, Exhibitor: dir, ZooKeeper: dir, JDK: dir})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	s.Mux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/s3credentials/creds", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMissingFileIs404(t *testing.T) {
	dir := t.TempDir()
	s, err := New(Dirs{Jar: dir, Exhibitor: dir, ZooKeeper: dir, JDK: dir})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	s.Mux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jar/missing.jar", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
