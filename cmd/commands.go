package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"document-rag/internal/helper"
	"document-rag/internal/ingest"
	"document-rag/internal/llmservice"
	"document-rag/internal/models"
	"document-rag/internal/rag"
)

var (
	flagFile   string
	flagTopK   int
	flagIngest []string
)

var initDBCmd = &cobra.Command{
	Use:   "init-db",
	Short: "Create the documents and chunks tables",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.initSchema(cmd.Context()); err != nil {
			return err
		}
		log.Info().Msg("Schema ready")
		return nil
	},
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Ingest documents, skipping content that was ingested before",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()
		return ingestFiles(cmd, a, args)
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Print the chunks of a document most similar to the query",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()
		if err := ingestFiles(cmd, a, flagIngest); err != nil {
			return err
		}

		r := rag.NewRAG(a.embedder, a.engine(), nil, topK(a))
		chunks, err := r.Retrieve(cmd.Context(), args[0], flagFile)
		if err != nil {
			return err
		}
		if len(chunks) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), models.NoContextFound)
			return nil
		}
		type hit struct {
			Score      float64 `json:"score"`
			Filename   string  `json:"filename"`
			PageNumber *int    `json:"page_number,omitempty"`
			Text       string  `json:"text"`
		}
		hits := make([]hit, len(chunks))
		for i, c := range chunks {
			hits[i] = hit{Score: c.Score, Filename: c.Metadata.Filename, PageNumber: c.Metadata.PageNumber, Text: c.Text}
		}
		helper.PrettyPrint(cmd.OutOrStdout(), hits)
		return nil
	},
}

var askCmd = &cobra.Command{
	Use:   "ask <query>",
	Short: "Answer a question from the context of one document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()
		if err := ingestFiles(cmd, a, flagIngest); err != nil {
			return err
		}

		model, err := llmservice.New(&a.cfg.ChatLLM)
		if err != nil {
			return err
		}
		response, err := rag.NewRAG(a.embedder, a.engine(), model, topK(a)).Answer(cmd.Context(), args[0], flagFile)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Query:\n%s\n\n", response.Query)
		fmt.Fprintf(out, "Source:\n%s\n\n", response.Source)
		fmt.Fprintf(out, "Assistant:\n%s\n", response.Content)
		return nil
	},
}

func topK(a *app) int {
	if flagTopK > 0 {
		return flagTopK
	}
	return a.cfg.RAG.TopK
}

func ingestFiles(cmd *cobra.Command, a *app, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	svc, err := a.ingestService()
	if err != nil {
		return err
	}
	var errs []error
	for _, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		res, err := svc.Ingest(cmd.Context(), filepath.Base(path), content)
		if err != nil {
			errs = append(errs, fmt.Errorf("ingesting %s: %w", path, err))
			continue
		}
		switch res.Status {
		case ingest.StatusDuplicate:
			fmt.Fprintf(cmd.OutOrStdout(), "%s: already ingested as %s\n", path, res.Document.Filename)
		default:
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s, %d chunks, persona %s\n", path, res.Status, res.Chunks, res.Document.Persona)
		}
	}
	return errors.Join(errs...)
}

func init() {
	for _, cmd := range []*cobra.Command{searchCmd, askCmd} {
		cmd.Flags().StringVarP(&flagFile, "file", "f", "", "document filename to search within (empty searches every document)")
		cmd.Flags().IntVarP(&flagTopK, "top-k", "k", 0, "number of chunks to retrieve (default from config)")
		cmd.Flags().StringSliceVar(&flagIngest, "ingest", nil, "files to ingest before searching")
	}
}
