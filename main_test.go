package main

import (
	"context"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meridian/pkg/domain"
	"meridian/pkg/ingest"
	"meridian/pkg/logger"
	"meridian/pkg/sources"
)

func TestRootCommand_Subcommands(t *testing.T) {
	root := newRootCommand()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"serve", "worker", "dispatch", "scrape", "migrate"}, names)
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
}

func TestJobProcessor_AcknowledgesConfigurationErrors(t *testing.T) {
	reg, err := sources.New(sources.Source{
		ID:            "the_star",
		FetchStrategy: sources.FetchDynamic,
		Discovery:     sources.Discovery{Type: sources.DiscoveryLinks, URLPattern: regexp.MustCompile(".")},
	})
	require.NoError(t, err)

	runner := ingest.NewRunner(ingest.Deps{Sources: reg}, ingest.Config{}, nil, nil)
	process := jobProcessor(runner, logger.NewNop())

	assert.NoError(t, process(context.Background(), &domain.Job{SourceID: "the_star"}))
	assert.NoError(t, process(context.Background(), &domain.Job{SourceID: "unknown"}))
}
