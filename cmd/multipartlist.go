package cmd

import (
	"encoding/json"
	"fmt"

	logging "github.com/ipfs/go-log/v2"
	"github.com/mitchellh/go-wordwrap"
	"github.com/spf13/cobra"

	"github.com/remora-tools/remora/pkg/radosgw"
	"github.com/remora-tools/remora/pkg/rgw"
)

var multipartListFlags struct {
	radosObjects bool
	format       string
	verbose      bool
}

var multipartListCmd = &cobra.Command{
	Use:   "multipart-list [bucket...]",
	Short: "List incomplete multipart uploads",
	Long: wordwrap.WrapString(
		"Lists in-progress multipart uploads by grouping the _multipart_ "+
			"entries of each bucket index by upload ID. With no arguments every "+
			"bucket in the zone is inspected. Uploads that were started but never "+
			"completed or aborted keep their parts in the index and hold pool "+
			"space until they are cleaned up.",
		80),
	Example: fmt.Sprintf("  %s rgw multipart-list backups -r -f json-pretty", rootCmd.Name()),

	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		switch multipartListFlags.format {
		case "plain", "json", "json-pretty":
		default:
			return fmt.Errorf("unknown format %q (want plain, json or json-pretty)", multipartListFlags.format)
		}
		if multipartListFlags.verbose {
			cobra.CheckErr(logging.SetLogLevel("radosgw", "debug"))
		}

		admin, err := radosgw.NewAdmin()
		if err != nil {
			return err
		}

		buckets := args
		if len(buckets) == 0 {
			buckets, err = admin.BucketNames(ctx)
			if err != nil {
				return fmt.Errorf("listing buckets: %w", err)
			}
		}

		// An unlistable bucket is reported and shows up empty; the rest of
		// the zone still gets listed.
		results := make(map[string]*rgw.UploadSet, len(buckets))
		for _, bucket := range buckets {
			set, err := admin.IncompleteUploads(ctx, bucket, multipartListFlags.radosObjects)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Errorf("listing incomplete uploads of bucket %s: %v", bucket, err)
				continue
			}
			results[bucket] = set
		}

		if multipartListFlags.format == "plain" {
			printUploads(cmd, buckets, results)
			return nil
		}

		out := make(map[string]map[string]*rgw.IncompleteUpload, len(buckets))
		for _, bucket := range buckets {
			byID := map[string]*rgw.IncompleteUpload{}
			if set := results[bucket]; set != nil {
				for _, u := range set.Uploads() {
					byID[u.UploadID] = u
				}
			}
			out[bucket] = byID
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		if multipartListFlags.format == "json-pretty" {
			enc.SetIndent("", "  ")
		}
		return enc.Encode(out)
	},
}

func printUploads(cmd *cobra.Command, buckets []string, results map[string]*rgw.UploadSet) {
	for _, bucket := range buckets {
		set := results[bucket]
		if set == nil || set.Len() == 0 {
			continue
		}
		cmd.Printf("Bucket: %s\n", bucket)
		for _, u := range set.Uploads() {
			cmd.Printf("  Upload ID: %s\n", u.UploadID)
			cmd.Printf("    Name: %s\n", u.ObjectName)
			cmd.Println("    Parts:")
			for _, part := range u.Parts {
				cmd.Printf("      %s\n", part)
			}
			if len(u.RadosObjects) > 0 {
				cmd.Println("    Rados objects:")
				for _, radosObj := range u.RadosObjects {
					cmd.Printf("      %s\n", radosObj)
				}
			}
		}
	}
}

func init() {
	rgwCmd.AddCommand(multipartListCmd)

	multipartListCmd.Flags().BoolVarP(&multipartListFlags.radosObjects, "rados-objects", "r", false,
		"Also attribute the RADOS objects of each upload (one radoslist pass per bucket)")
	multipartListCmd.Flags().StringVarP(&multipartListFlags.format, "format", "f", "plain",
		"Output format (plain|json|json-pretty)")
	multipartListCmd.Flags().BoolVarP(&multipartListFlags.verbose, "verbose", "v", false,
		"Log every matched index entry and radoslist line")
}
