package main

import (
	"bytes"
	"testing"

	"hubadapters/internal/entry"
	"hubadapters/internal/flow"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInput(t *testing.T) {
	input, err := parseInput([]string{"host=fritz.box", "port=49443", "password=a=b"})
	require.NoError(t, err)
	assert.Equal(t, flow.Input{"host": "fritz.box", "port": "49443", "password": "a=b"}, input)

	// Digits-only secrets are not turned into numbers.
	input, err = parseInput([]string{"username=admin", "password=123456"})
	require.NoError(t, err)
	assert.Equal(t, "123456", input.String("password"))
	port, ok := flow.Input{"port": "49443"}.Int("port")
	assert.True(t, ok)
	assert.Equal(t, 49443, port)

	_, err = parseInput([]string{"nokey"})
	assert.Error(t, err)

	_, err = parseInput([]string{"=value"})
	assert.Error(t, err)
}

func TestPrintResult(t *testing.T) {
	tests := []struct {
		name   string
		result flow.Result
		want   []string
	}{
		{
			name: "created",
			result: flow.Result{Type: flow.ResultCreateEntry, Handler: "stookalert", Title: "Utrecht",
				Entry: &entry.Entry{EntryID: "abc"}},
			want: []string{`Created stookalert entry "Utrecht" (abc)`},
		},
		{
			name:   "aborted",
			result: flow.Abort("already_configured"),
			want:   []string{"Aborted: already_configured"},
		},
		{
			name:   "form",
			result: flow.Form("user", []flow.Field{{Name: "province", Type: "select"}}, flow.BaseError("cannot_connect")),
			want:   []string{"Step user needs more input", "base: cannot_connect", "field province (select)"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, printResult(&buf, tt.result))
			for _, want := range tt.want {
				assert.Contains(t, buf.String(), want)
			}
		})
	}
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"version"})
	defer rootCmd.SetArgs(nil)

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, buf.String(), "hubadapters")
}

func TestFlowAndEntriesCommands(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HUB_DB", dir+"/hub.db")

	run := func(args ...string) string {
		t.Helper()
		var buf bytes.Buffer
		rootCmd.SetOut(&buf)
		rootCmd.SetArgs(append([]string{"--config", dir + "/missing.yaml", "--env-file", dir + "/.env"}, args...))
		require.NoError(t, rootCmd.Execute())
		return buf.String()
	}
	defer rootCmd.SetArgs(nil)

	// An invalid province never reaches the network.
	out := run("flow", "stookalert", "province=Atlantis")
	assert.Contains(t, out, "province: invalid_province")

	out = run("entries", "list")
	assert.Contains(t, out, "ID")
	assert.NotContains(t, out, "stookalert")
}
