// Package testutils provides helpers shared by the package tests.
package testutils

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
)

// CmdTestCase describes an expected flag of a cobra command.
type CmdTestCase struct {
	Name           string
	Short          string
	PersistentFlag bool
	// Extensions lists the file extensions completed for the flag. Nil means no file completion.
	Extensions []string
	BaseCmd    *cobra.Command
}

// FlagTestHelper asserts that the flag described by tc exists on its command.
func FlagTestHelper(t *testing.T, tc CmdTestCase) {
	t.Helper()

	var flag *pflag.Flag
	if tc.PersistentFlag {
		flag = tc.BaseCmd.PersistentFlags().Lookup(tc.Name)
	} else {
		flag = tc.BaseCmd.Flags().Lookup(tc.Name)
	}
	if !assert.NotNil(t, flag, "Flag %q should exist", tc.Name) {
		return
	}

	assert.Equal(t, tc.Short, flag.Shorthand, "Unexpected shorthand of flag %q", tc.Name)
	assert.Equal(t, tc.Extensions, flag.Annotations[cobra.BashCompFilenameExt], "Unexpected completed extensions of flag %q", tc.Name)
}
