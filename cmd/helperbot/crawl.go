package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gmehra/helperbot/internal/corpus"
	"github.com/gmehra/helperbot/internal/crawler"
)

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Crawl a documentation site into a corpus file",
	Long: `Walks a documentation site starting from --url, following links that
match the link selector within the allowed domains, and writes one corpus
document per page with readable text. Page chrome (scripts, styles,
headers, footers, navigation, asides) is stripped before extraction.

The crawl is polite by default: 500ms between requests, two parallel
fetches. Interrupting with Ctrl+C writes the pages collected so far.`,
	RunE: runCrawl,
}

var crawlFlags struct {
	url          string
	out          string
	maxPages     int
	maxDepth     int
	delay        time.Duration
	parallelism  int
	domains      []string
	linkSelector string
	obeyRobots   bool
}

func init() {
	crawlCmd.Flags().StringVar(&crawlFlags.url, "url", "", "start URL of the documentation site (required)")
	crawlCmd.Flags().StringVar(&crawlFlags.out, "out", "data/corpus.json", "corpus file to write")
	crawlCmd.Flags().IntVar(&crawlFlags.maxPages, "max-pages", 0, "stop after this many pages (0 = unlimited)")
	crawlCmd.Flags().IntVar(&crawlFlags.maxDepth, "max-depth", crawler.DefaultMaxDepth, "link hops from the start page, inclusive")
	crawlCmd.Flags().DurationVar(&crawlFlags.delay, "delay", crawler.DefaultDelay, "delay between requests to the same domain")
	crawlCmd.Flags().IntVar(&crawlFlags.parallelism, "parallelism", crawler.DefaultParallelism, "parallel requests")
	crawlCmd.Flags().StringSliceVar(&crawlFlags.domains, "domains", nil, "allowed domains (default: the start URL's host)")
	crawlCmd.Flags().StringVar(&crawlFlags.linkSelector, "link-selector", crawler.DefaultLinkSelector, "CSS selector for links to follow")
	crawlCmd.Flags().BoolVar(&crawlFlags.obeyRobots, "obey-robots", false, "respect robots.txt")
	_ = crawlCmd.MarkFlagRequired("url")

	rootCmd.AddCommand(crawlCmd)
}

func runCrawl(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	c, err := crawler.New(crawler.Config{
		StartURL:       crawlFlags.url,
		AllowedDomains: crawlFlags.domains,
		LinkSelector:   crawlFlags.linkSelector,
		MaxPages:       crawlFlags.maxPages,
		MaxDepth:       crawlFlags.maxDepth,
		Delay:          crawlFlags.delay,
		Parallelism:    crawlFlags.parallelism,
		ObeyRobots:     crawlFlags.obeyRobots,
	}, nil)
	if err != nil {
		return err
	}

	fmt.Printf("Crawling %s...\n", crawlFlags.url)
	docs, err := c.Crawl(ctx)
	if err != nil && len(docs) == 0 {
		return fmt.Errorf("crawl failed: %w", err)
	}
	if err != nil {
		fmt.Printf("Crawl interrupted, writing %d pages collected so far\n", len(docs))
	}
	if len(docs) == 0 {
		return fmt.Errorf("no pages with readable text found at %s", crawlFlags.url)
	}

	if err := corpus.Write(crawlFlags.out, docs); err != nil {
		return err
	}

	fmt.Println()
	fmt.Println("Crawl complete!")
	fmt.Printf("  Pages:  %d\n", len(docs))
	fmt.Printf("  Corpus: %s\n", crawlFlags.out)
	return nil
}
