package cli_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/reearth/cms-items-api/internal/cli"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvPrefix(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "CMS_ITEMS_SERVICE", cli.EnvPrefix("cms-items-service"))
}

func TestInitViperConfig(t *testing.T) {
	tests := map[string]struct {
		config string
		env    map[string]string

		want    map[string]string
		wantErr bool
	}{
		"No configuration file": {
			want: map[string]string{"listen-host": ""},
		},
		"Configuration file": {
			config: "listen-host: example.com\nlisten-port: 8080\n",
			want:   map[string]string{"listen-host": "example.com", "listen-port": "8080"},
		},
		"Environment overrides configuration file": {
			config: "listen-host: example.com\n",
			env:    map[string]string{"CLI_TEST_LISTEN_HOST": "from-env", "CLI_TEST_LISTEN_PORT": "9090"},
			want:   map[string]string{"listen-host": "from-env", "listen-port": "9090"},
		},

		"Error on invalid configuration file": {config: "listen-host: [", wantErr: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}

			vip := viper.New()
			cmd := &cobra.Command{
				Use: "cli-test",
				RunE: func(cmd *cobra.Command, _ []string) error {
					return cli.InitViperConfig("cli-test", cmd, vip)
				},
				SilenceErrors: true,
				SilenceUsage:  true,
			}
			cli.InstallConfigFlag(cmd)

			args := []string{}
			if tc.config != "" {
				path := filepath.Join(t.TempDir(), "cli-test.yaml")
				require.NoError(t, os.WriteFile(path, []byte(tc.config), 0600), "Setup: could not write config file")
				args = append(args, "--config", path)
			}
			cmd.SetArgs(args)

			err := cmd.Execute()
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)

			for k, v := range tc.want {
				assert.Equal(t, v, vip.GetString(k), "Unexpected value for %s", k)
			}
		})
	}
}
