package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"mixdown/config"
	"mixdown/storage"

	"github.com/spf13/cobra"
)

var blobsStats bool

var blobsCmd = &cobra.Command{
	Use:   "blobs",
	Short: "Inspect the audio blob store",
	Long:  `Lists the content-addressed audio blobs held in the MinIO bucket, or summarizes them with --stats.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()
		fmt.Printf("MinIO: %s, bucket: %s\n", cfg.MinioEndpoint, cfg.MinioBucket)

		blobs, err := storage.NewBlobStore(cfg)
		if err != nil {
			log.Fatalf("connect to MinIO: %v", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		infos, err := blobs.List(ctx)
		if err != nil {
			log.Fatalf("list blobs: %v", err)
		}

		if blobsStats {
			var total int64
			for _, info := range infos {
				total += info.Size
			}
			fmt.Printf("%d blobs, %d bytes total\n", len(infos), total)
			return
		}

		for _, info := range infos {
			fmt.Printf("%s  %12d\n", info.Digest, info.Size)
		}
		fmt.Printf("%d blobs\n", len(infos))
	},
}

func init() {
	rootCmd.AddCommand(blobsCmd)
	blobsCmd.Flags().BoolVarP(&blobsStats, "stats", "s", false, "print a summary instead of the full list")
}
