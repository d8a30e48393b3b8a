// Command clustercheck reports how similar two texts, or the members of a stored story, are under
// the clustering threshold.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"meridian/pkg/cluster"
	"meridian/pkg/config"
	"meridian/pkg/embedding"
	"meridian/pkg/store"
)

func main() {
	var (
		cfgPath = flag.String("config", "", "config file (YAML); environment variables override it")
		textA   = flag.String("a", "", "first text to compare")
		textB   = flag.String("b", "", "second text to compare")
		storyID = flag.Int64("story", 0, "compare every pair of articles already stored in this story")
	)
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	switch {
	case *storyID > 0:
		err = checkStory(ctx, cfg, *storyID)
	case *textA != "" && *textB != "":
		err = checkTexts(ctx, cfg, *textA, *textB)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("Cluster check failed: %v", err)
	}
}

func checkTexts(ctx context.Context, cfg *config.Config, a, b string) error {
	embedder, err := embedding.NewCohere(embedding.Config{
		APIKey:  cfg.Cohere.APIKey,
		Model:   cfg.Cohere.Model,
		Timeout: cfg.Cohere.Timeout,
	}, nil)
	if err != nil {
		return err
	}

	va, err := embedder.Embed(ctx, a)
	if err != nil {
		return fmt.Errorf("embed first text: %w", err)
	}
	vb, err := embedder.Embed(ctx, b)
	if err != nil {
		return fmt.Errorf("embed second text: %w", err)
	}

	sim, err := cluster.Cosine(va, vb)
	if err != nil {
		return err
	}
	report(cfg.Cluster.SimilarityThreshold(), "a", "b", sim)
	return nil
}

func checkStory(ctx context.Context, cfg *config.Config, storyID int64) error {
	conn, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer conn.Close()

	members, err := store.New(conn.DB, store.WithQueryTimeout(cfg.Database.QueryTimeout)).ListStoryEmbeddings(ctx, storyID)
	if err != nil {
		return err
	}
	if len(members) < 2 {
		fmt.Printf("Story %d has %d article(s); nothing to compare.\n", storyID, len(members))
		return nil
	}

	for i := 0; i < len(members); i++ {
		for j := i + 1; j < len(members); j++ {
			sim, err := cluster.Cosine(members[i].Embedding, members[j].Embedding)
			if err != nil {
				return fmt.Errorf("articles %d and %d: %w", members[i].ArticleID, members[j].ArticleID, err)
			}
			report(cfg.Cluster.SimilarityThreshold(), members[i].Title, members[j].Title, sim)
		}
	}
	return nil
}

func report(threshold float64, a, b string, sim float64) {
	verdict := "below threshold"
	if sim >= threshold {
		verdict = "same story"
	}
	fmt.Printf("%.4f  %-15s  %q <> %q\n", sim, verdict, a, b)
}
