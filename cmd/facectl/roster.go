package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/your-org/facerecog/internal/recognition"
	"github.com/your-org/facerecog/internal/storage"
	"github.com/your-org/facerecog/internal/vision"
)

var rosterCmd = &cobra.Command{
	Use:   "roster",
	Short: "Inspect and maintain enrolled persons",
}

var rosterListCmd = &cobra.Command{
	Use:   "list",
	Short: "List enrolled persons in enrollment order",
	RunE: func(cmd *cobra.Command, args []string) error {
		persons, err := db.ListPersons(cmd.Context())
		if err != nil {
			return err
		}
		if len(persons) == 0 {
			fmt.Println("No persons enrolled.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tNUMBER\tEMBEDDING\tENROLLED")
		for _, p := range persons {
			fmt.Fprintf(w, "%s\t%s\t%s\t%v\t%s\n",
				p.ID, p.Name, p.Number, p.HasEmbedding(), p.CreatedAt.Local().Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

var rosterReembedCmd = &cobra.Command{
	Use:   "reembed",
	Short: "Recompute embeddings from stored photos",
	Long: `Recompute face embeddings from the enrollment photos kept in object storage.

By default only persons without an embedding are processed. Use --all after
switching the vision backend, since embeddings from different backends are
not comparable.`,
	RunE: runRosterReembed,
}

func init() {
	rosterReembedCmd.Flags().Bool("all", false, "re-embed every person, not only those missing an embedding")

	rosterCmd.AddCommand(rosterListCmd, rosterReembedCmd)
	rootCmd.AddCommand(rosterCmd)
}

func runRosterReembed(cmd *cobra.Command, args []string) error {
	all, _ := cmd.Flags().GetBool("all")
	ctx := cmd.Context()

	photos, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		return fmt.Errorf("connect to minio: %w", err)
	}

	faces, err := vision.NewCapability(cfg.Vision)
	if err != nil {
		return fmt.Errorf("load %s models: %w", cfg.Vision.Backend, err)
	}
	defer faces.Close()

	r := recognition.NewReembedder(faces, db, photos)
	persons, err := r.Targets(ctx, all)
	if err != nil {
		return err
	}
	if len(persons) == 0 {
		fmt.Println("Nothing to re-embed.")
		return nil
	}

	bar := progressbar.NewOptions(len(persons),
		progressbar.OptionSetDescription("Re-embedding"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionFullWidth(),
	)
	res, err := r.Run(ctx, persons, func() { _ = bar.Add(1) })
	_ = bar.Finish()
	fmt.Println()
	if err != nil {
		return err
	}

	fmt.Printf("Updated: %d, no face: %d, failed: %d\n", res.Updated, res.NoFace, res.Failed)
	return nil
}
