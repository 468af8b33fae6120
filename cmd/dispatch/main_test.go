package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.ozon.dev/qwestard/dispatch/internal/config"
	"gitlab.ozon.dev/qwestard/dispatch/internal/logging"
)

func TestRunReturnsStartupErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.Config
		want string
	}{
		{
			name: "invalid config",
			cfg:  config.Config{Backend: "ftp"},
			want: "invalid configuration",
		},
		{
			name: "prefs after pool start",
			cfg: config.Config{
				Backend:   config.BackendREST,
				APIBase:   "http://127.0.0.1:1",
				PrefsPath: filepath.Join(t.TempDir(), "missing", "prefs.db"),
			},
			want: "open preferences",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := run(tc.cfg, logging.Discard())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}
