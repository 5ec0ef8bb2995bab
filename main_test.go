package main

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"b3crawl/internal/config"
	"b3crawl/internal/writer"
)

// newExchange serves a static copy of the listed companies site
func newExchange(t *testing.T) *httptest.Server {
	t.Helper()

	companies := map[string][][3]string{
		"A": {{"ambev", "AMBEV S.A.", "AMBEV S/A"}},
		"V": {{"vale", "VALE S.A.", "VALE"}, {"vivara", "VIVARA PARTICIPACOES S.A.", "VIVARA S.A."}},
	}
	codes := map[string]string{
		"ambev":  `<a class="LinkCodNeg">ABEV3</a>`,
		"vale":   `<a class="LinkCodNeg">VALE3</a><a class="LinkCodNeg">VALE5</a>`,
		"vivara": ``,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/index", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><iframe id="bvmf_iframe" src="/frame"></iframe></body></html>`)
	})
	mux.HandleFunc("/frame", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><a class="letra" href="/frame?letter=A">A</a><a class="letra" href="/frame?letter=V">V</a>`)
		for _, c := range companies[r.URL.Query().Get("letter")] {
			fmt.Fprintf(w, `<a class="itemBullet" href="#">-</a><a href="/company?id=%[1]s">%[2]s</a><a href="/company?id=%[1]s">%[3]s</a>`, c[0], c[1], c[2])
		}
		fmt.Fprint(w, `</body></html>`)
	})
	mux.HandleFunc("/company", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><body><iframe id="profile" src="/codes?id=%s"></iframe></body></html>`, r.URL.Query().Get("id"))
	})
	mux.HandleFunc("/codes", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><body>%s</body></html>`, codes[r.URL.Query().Get("id")])
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func writeConfig(t *testing.T, indexURL string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "b3crawl.yaml")
	yml := fmt.Sprintf(`browser: http
index_url: %s
profile_frame_id: profile
index_timeout: 50ms
profile_timeout: 50ms
settle_timeout: 1s
settle_poll: 1ms
max_index_attempts: 2
backoff_base: 1ms
backoff_max: 5ms
`, indexURL)
	require.NoError(t, os.WriteFile(path, []byte(yml), 0644))
	return path
}

func outputFile(t *testing.T, dir, ext string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "*."+ext))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	return matches[0]
}

func TestRun(t *testing.T) {
	srv := newExchange(t)
	out := t.TempDir()

	err := run(CLIFlags{
		ConfigFile: writeConfig(t, srv.URL+"/index"),
		Output:     out,
	})
	require.NoError(t, err)

	d, err := writer.LoadCSV(outputFile(t, out, "csv"))
	require.NoError(t, err)
	require.Equal(t, 3, d.Len())

	byName := map[string]string{}
	for _, r := range d.Records {
		byName[r.TradingName] = r.StartingLetter + " " + r.Code
	}
	assert.Equal(t, "A ABEV3", byName["AMBEV S/A"])
	assert.Equal(t, "V VALE3;VALE5", byName["VALE"])
	assert.Equal(t, "V ", byName["VIVARA S.A."])
}

func TestRunLettersAndSkipCodes(t *testing.T) {
	srv := newExchange(t)
	out := t.TempDir()

	err := run(CLIFlags{
		ConfigFile: writeConfig(t, srv.URL+"/index"),
		Output:     out,
		Letters:    []string{"v"},
		SkipCodes:  true,
	})
	require.NoError(t, err)

	d, err := writer.LoadCSV(outputFile(t, out, "csv"))
	require.NoError(t, err)
	require.Equal(t, 2, d.Len())
	assert.Len(t, d.WithoutCode(), 2)
}

func TestRunCompletesInput(t *testing.T) {
	srv := newExchange(t)
	out := t.TempDir()

	input := filepath.Join(t.TempDir(), "companies.csv")
	csv := "Razao Social,Nome Pregao,Inicial,Link,Code\n" +
		"AMBEV S.A.,AMBEV S/A,A," + srv.URL + "/company?id=ambev,\n" +
		"VALE S.A.,VALE,V," + srv.URL + "/company?id=vale,KEEP3\n"
	require.NoError(t, os.WriteFile(input, []byte(csv), 0644))

	err := run(CLIFlags{
		ConfigFile: writeConfig(t, srv.URL+"/missing"),
		Output:     out,
		Input:      input,
	})
	require.NoError(t, err)

	d, err := writer.LoadCSV(outputFile(t, out, "csv"))
	require.NoError(t, err)
	require.Equal(t, 2, d.Len())
	assert.Equal(t, "ABEV3", d.Records[0].Code)
	assert.Equal(t, "KEEP3", d.Records[1].Code)
}

func TestRunIndexUnreachable(t *testing.T) {
	srv := newExchange(t)

	err := run(CLIFlags{
		ConfigFile: writeConfig(t, srv.URL+"/codes"),
		Output:     t.TempDir(),
	})
	assert.ErrorContains(t, err, "index unreachable")
}

func TestLoadConfigFlagsOverrideFile(t *testing.T) {
	cfg, err := loadConfig(CLIFlags{
		ConfigFile: writeConfig(t, "http://localhost/index"),
		Format:     "XLSX",
		Letters:    []string{"A", "B"},
		Headful:    true,
		Debug:      true,
	})
	require.NoError(t, err)

	assert.Equal(t, "http", cfg.Browser)
	assert.Equal(t, "xlsx", cfg.Format)
	assert.Equal(t, []string{"A", "B"}, cfg.Letters)
	assert.Equal(t, 50*time.Millisecond, cfg.IndexTimeout)
	assert.False(t, cfg.Headless)
	assert.True(t, cfg.Debug)

	cc := crawlerConfig(cfg)
	assert.Equal(t, "profile", cc.ProfileFrameID)
	assert.Equal(t, 2, cc.MaxIndexAttempts)
}

func TestLoadConfigRejectsUnknownBrowser(t *testing.T) {
	_, err := loadConfig(CLIFlags{ConfigFile: filepath.Join(t.TempDir(), "none.yaml"), Browser: "opera"})
	assert.ErrorIs(t, err, config.ErrConfiguration)
}
