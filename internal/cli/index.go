package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"cleanse/internal/corpus"
	"cleanse/internal/service"
)

func newIndexCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "Rebuild the vector index from the corpus",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}

			store, err := corpus.OpenExisting(cfg.Corpus.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			emb, err := newEmbedder(cfg)
			if err != nil {
				return err
			}
			ch, err := newChunker(cfg)
			if err != nil {
				return err
			}
			dir, err := stateDir(cfg)
			if err != nil {
				return err
			}
			create, err := indexFactory(cfg)
			if err != nil {
				return err
			}

			ix := service.NewIndexer(ch, emb, create, service.IndexerOptions{
				Backend:      cfg.VectorStore.Type,
				StateDir:     dir,
				ChunkSize:    cfg.Chunker.Size,
				ChunkOverlap: cfg.Chunker.Overlap,
			}, logger)
			stats, err := ix.Build(cmd.Context(), store)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Índice criado em %s a partir de %s: %d documentos, %d chunks (dimensão %d).\n",
				dir, store.Path(), stats.Documents, stats.Chunks, stats.Dimension)
			return nil
		},
	}
}
