package main

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/spf13/cobra"

	"github.com/medbrief/newsroom/internal/config"
	"github.com/medbrief/newsroom/internal/pubmed"
	"github.com/medbrief/newsroom/internal/readability"
	"github.com/medbrief/newsroom/internal/record"
	"github.com/medbrief/newsroom/internal/storage"
)

var searchRetmax int

var searchCmd = &cobra.Command{
	Use:   "search <term>",
	Short: "Search PubMed for primary research",
	Long: `Search PubMed for primary research articles, ranked by readability
score. Searches and scores are cached in the newsroom database, and
logged searches feed later provenance inference.

Examples:
  newsroom search "semaglutide heart failure"
  newsroom search "sepsis" --retmax 10 --human`,
	Args: cobra.ExactArgs(1),
	Run:  runSearch,
}

func init() {
	searchCmd.Flags().IntVar(&searchRetmax, "retmax", 20, "Maximum number of results")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) {
	term := args[0]

	cfg, err := config.Load()
	if err != nil {
		exitWithError(ExitConfigError, "loading configuration: %v", err)
	}
	if err := cfg.ValidateEmail(); err != nil {
		exitWithError(ExitConfigError, "%v", err)
	}

	db, err := storage.OpenDB(cfg.DBPath())
	if err != nil {
		exitWithError(ExitDataError, "opening database %s: %v", cfg.DBPath(), err)
	}
	defer db.Close()

	client, err := buildPubMedClient(cfg, db)
	if err != nil {
		exitWithError(ExitConfigError, "%v", err)
	}
	ctx := context.Background()

	pmids, err := client.SearchPrimaryResearch(ctx, term, searchRetmax)
	if err != nil {
		exitWithError(ExitError, "PubMed search: %v", err)
	}
	records, err := client.FetchRecords(ctx, pmids, pubmed.FetchOptions{Require: pubmed.RequireFull()})
	if err != nil {
		exitWithError(ExitError, "PubMed fetch: %v", err)
	}

	scores, err := rankByReadability(ctx, db, pmids, records)
	if err != nil {
		exitWithError(ExitDataError, "%v", err)
	}
	sort.SliceStable(records, func(i, j int) bool {
		return scoreFor(scores, records[i].PMID) > scoreFor(scores, records[j].PMID)
	})

	resp := SearchResponse{Term: term, Results: make([]SearchResultOutput, 0, len(records))}
	for _, rec := range records {
		if rec.PMID == "" {
			continue
		}
		out := SearchResultOutput{
			PMID:             rec.PMID,
			Title:            rec.Title,
			Journal:          rec.Journal,
			Year:             rec.Year,
			DOI:              rec.DOI,
			PublicationTypes: rec.PublicationTypes,
		}
		if score, ok := scores[rec.PMID]; ok {
			s := score
			out.Readability = &s
		}
		resp.Results = append(resp.Results, out)
	}

	if humanOutput {
		printSearchHuman(resp)
		return
	}
	if err := outputJSON(resp); err != nil {
		exitWithError(ExitError, "encoding output: %v", err)
	}
}

// rankByReadability returns readability scores for the records, reusing
// stored scores and persisting fresh ones.
func rankByReadability(ctx context.Context, db *storage.DB, pmids []string, records []record.Record) (map[string]float64, error) {
	scores, err := db.GetScores(ctx, pmids)
	if err != nil {
		return nil, err
	}

	var unscored []record.Record
	for _, rec := range records {
		if _, ok := scores[rec.PMID]; !ok {
			unscored = append(unscored, rec)
		}
	}
	if fresh := readability.ScoreRecords(unscored); len(fresh) > 0 {
		if err := db.UpsertScores(ctx, fresh); err != nil {
			return nil, err
		}
		for pmid, score := range fresh {
			scores[pmid] = score
		}
	}
	return scores, nil
}

func scoreFor(scores map[string]float64, pmid string) float64 {
	if score, ok := scores[pmid]; ok {
		return score
	}
	return math.Inf(-1)
}

func printSearchHuman(resp SearchResponse) {
	if len(resp.Results) == 0 {
		fmt.Printf("No primary research articles found for %q\n", resp.Term)
		return
	}
	fmt.Printf("Found %d primary research articles\n\n", len(resp.Results))
	for i, r := range resp.Results {
		score := "     -"
		if r.Readability != nil {
			score = fmt.Sprintf("%6.3f", *r.Readability)
		}
		fmt.Printf("%d. [%s] %s\n", i+1, score, r.PMID)
		fmt.Printf("   %s\n", truncateString(r.Title, 70))
		fmt.Printf("   %s (%s)\n\n", r.Journal, r.Year)
	}
}
