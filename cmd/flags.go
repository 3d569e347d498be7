package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Flag lookups panic on error because the only failure mode is asking for
// a flag that was never registered in init(), which is a programming bug.

func mustGetString(cmd *cobra.Command, name string) string {
	val, err := cmd.Flags().GetString(name)
	checkFlag(name, err)
	return val
}

func mustGetBool(cmd *cobra.Command, name string) bool {
	val, err := cmd.Flags().GetBool(name)
	checkFlag(name, err)
	return val
}

func mustGetInt(cmd *cobra.Command, name string) int {
	val, err := cmd.Flags().GetInt(name)
	checkFlag(name, err)
	return val
}

func checkFlag(name string, err error) {
	if err != nil {
		panic(fmt.Sprintf("reading flag --%s: %v", name, err))
	}
}
