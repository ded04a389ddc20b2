package cmd

import (
	"github.com/mitchellh/go-wordwrap"
	"github.com/spf13/cobra"
)

var rgwCmd = &cobra.Command{
	Use:   "rgw",
	Short: "Operate on RADOS Gateway buckets and objects",
	Long: wordwrap.WrapString(
		"Inspect and repair the object storage layer of a Ceph cluster. These "+
			"commands reach the cluster through the radosgw-admin and rados "+
			"binaries found on PATH, so they run wherever an admin keyring is "+
			"available.",
		80),
}

func init() {
	rootCmd.AddCommand(rgwCmd)
}
