package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gmehra/helperbot/internal/corpus"
	ghclient "github.com/gmehra/helperbot/internal/github"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch markdown documentation from a GitHub repository",
	Long: `Walks the markdown files under --path in the given repository, splits
each file into sections at its headings, and writes one corpus document
per section. Source URLs point at the file on GitHub with the section
anchor, so answers can cite the exact heading they came from.

Environment variables:
  GITHUB_TOKEN  GitHub token for higher rate limits (optional)`,
	RunE: runFetch,
}

var fetchFlags struct {
	owner string
	repo  string
	path  string
	ref   string
	out   string
}

func init() {
	fetchCmd.Flags().StringVar(&fetchFlags.owner, "owner", "", "repository owner (required)")
	fetchCmd.Flags().StringVar(&fetchFlags.repo, "repo", "", "repository name (required)")
	fetchCmd.Flags().StringVar(&fetchFlags.path, "path", "docs", "directory within the repository to walk")
	fetchCmd.Flags().StringVar(&fetchFlags.ref, "ref", ghclient.DefaultRef, "branch, tag or commit to fetch from")
	fetchCmd.Flags().StringVar(&fetchFlags.out, "out", "data/corpus.json", "corpus file to write")
	_ = fetchCmd.MarkFlagRequired("owner")
	_ = fetchCmd.MarkFlagRequired("repo")

	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	client, err := ghclient.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("create GitHub client: %w", err)
	}

	fetcher, err := ghclient.NewFetcher(client, fetchFlags.owner, fetchFlags.repo, fetchFlags.path, fetchFlags.ref, nil)
	if err != nil {
		return err
	}

	fmt.Printf("Fetching %s/%s/%s@%s...\n", fetchFlags.owner, fetchFlags.repo, fetchFlags.path, fetchFlags.ref)
	docs, sha, err := fetcher.Documents(ctx)
	if err != nil {
		return fmt.Errorf("fetch documentation: %w", err)
	}
	if len(docs) == 0 {
		return fmt.Errorf("no markdown sections found under %s", fetchFlags.path)
	}

	if err := corpus.Write(fetchFlags.out, docs); err != nil {
		return err
	}

	fmt.Println()
	fmt.Println("Fetch complete!")
	fmt.Printf("  Sections: %d\n", len(docs))
	fmt.Printf("  Commit:   %s\n", sha)
	fmt.Printf("  Corpus:   %s\n", fetchFlags.out)
	return nil
}
