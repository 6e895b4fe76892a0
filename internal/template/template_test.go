package template

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemplate(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadParsesTemplate(t *testing.T) {
	dir := t.TempDir()
	path := writeTemplate(t, dir, "tpl.json", `{"chargePointModel":"Sim","chargePointVendor":"Acme","numberOfPhases":3}`)

	s := New(zerolog.Nop())
	tpl, hash, err := s.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Sim", tpl.ChargePointModel)
	assert.NotEmpty(t, hash)
}

func TestLoadCachesByContentHash(t *testing.T) {
	dir := t.TempDir()
	path := writeTemplate(t, dir, "tpl.json", `{"chargePointModel":"Sim","chargePointVendor":"Acme"}`)

	s := New(zerolog.Nop())
	tpl1, hash1, err := s.Load(path)
	require.NoError(t, err)

	tpl2, hash2, err := s.Load(path)
	require.NoError(t, err)

	assert.Equal(t, hash1, hash2)
	assert.Same(t, tpl1, tpl2)
}

func TestLoadReparsesOnContentChange(t *testing.T) {
	dir := t.TempDir()
	path := writeTemplate(t, dir, "tpl.json", `{"chargePointModel":"Sim","chargePointVendor":"Acme"}`)

	s := New(zerolog.Nop())
	_, hash1, err := s.Load(path)
	require.NoError(t, err)

	writeTemplate(t, dir, "tpl.json", `{"chargePointModel":"Sim2","chargePointVendor":"Acme"}`)
	tpl2, hash2, err := s.Load(path)
	require.NoError(t, err)

	assert.NotEqual(t, hash1, hash2)
	assert.Equal(t, "Sim2", tpl2.ChargePointModel)
}

func TestLoadMissingFileReturnsIOError(t *testing.T) {
	s := New(zerolog.Nop())
	_, _, err := s.Load("/nonexistent/path/tpl.json")
	assert.Error(t, err)
}
