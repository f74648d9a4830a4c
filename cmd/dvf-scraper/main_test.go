package main

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dvf-tools/config"
	"dvf-tools/utils"
)

func TestScraperCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "1" {
			fmt.Fprint(w, `{"items":[{"price":"1","area":"2"}]}`)
			return
		}
		fmt.Fprint(w, `{"items":[]}`)
	}))
	defer srv.Close()

	out := filepath.Join(t.TempDir(), "listings.csv")
	cfg := config.Load()
	cfg.LogLevel = "info"
	cfg.StorePostgres = false

	cmd := newRootCmd(cfg, utils.Discard())
	cmd.SetArgs([]string{
		"--base-url", srv.URL, "--records-key", "items",
		"--max-pages", "3", "--page-size", "1", "--delay", "0", "--out", out,
	})
	require.NoError(t, cmd.Execute())

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "price,area\n1,2\n", string(got))
}

func TestScraperCommandRequiresBaseURL(t *testing.T) {
	cfg := config.Load()
	cfg.LogLevel = "info"
	cfg.Scraper.BaseURL = ""

	cmd := newRootCmd(cfg, utils.Discard())
	cmd.SetArgs([]string{"--out", filepath.Join(t.TempDir(), "x.csv")})
	cmd.SetErr(io.Discard)

	err := cmd.Execute()
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "BaseURL"), err.Error())
}

func TestScraperCommandRejectsPositionalArgs(t *testing.T) {
	cfg := config.Load()
	cfg.LogLevel = "info"
	cfg.Scraper.BaseURL = "http://127.0.0.1:1"
	out := filepath.Join(t.TempDir(), "x.csv")

	cmd := newRootCmd(cfg, utils.Discard())
	cmd.SetArgs([]string{"--out", out, "stray"})
	cmd.SetErr(io.Discard)

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")
	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr), "no output should be created")
}
