package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"emsadvisor/internal/config"
	"emsadvisor/internal/corpus"
	"emsadvisor/internal/dosing"
	"emsadvisor/internal/logging"
	"emsadvisor/internal/models"
	"emsadvisor/internal/recovery"
	"emsadvisor/internal/retrieval"
	"emsadvisor/internal/search"
	"emsadvisor/internal/validation"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Initialize structured logging (JSON in production, text in dev)
	logging.Init()

	query := flag.String("query", "", "field query to run through retrieval and validation")
	rulesPath := flag.String("rules", "", "optional YAML synonym-rule overlay")
	htmlOut := flag.Bool("html", false, "also print the HTML rendering of the assembled context")
	flag.Parse()

	if *query == "" {
		fmt.Fprintln(os.Stderr, "usage: advisor -query \"...\" [-rules rules.yaml]")
		os.Exit(2)
	}

	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found or error loading it: %v", err)
	}

	cfg := config.Load()
	log.Printf("[CONFIG] scope=%s db_retrieval=%v corpus=%s", cfg.KBScope, cfg.DBRetrievalEnabled, cfg.CorpusPath)

	store := corpus.NewStore(cfg.CorpusPath, cfg.KBScope)
	metadata := corpus.NewMetadataStore(cfg.MetadataPath)
	registry := dosing.NewRegistry()

	expander := search.NewExpander()
	if *rulesPath != "" {
		extra, err := search.LoadRulesYAML(*rulesPath)
		if err != nil {
			log.Fatalf("Failed to load synonym rules: %v", err)
		}
		expander = search.NewExpanderWithRules(extra)
	}

	index := search.NewIndex(store)

	orchestrator := retrieval.NewOrchestrator(expander, index, store, metadata, registry, cfg.SearchResultLimit)

	breakers := recovery.NewCircuitBreakerSet(recovery.BreakerConfig{
		Threshold:        cfg.CBThreshold,
		Timeout:          cfg.CBTimeout,
		ResetTimeout:     cfg.CBResetTimeout,
		HalfOpenRequests: cfg.CBHalfOpenRequests,
	})

	var primary recovery.ProtocolSource
	if cfg.DBRetrievalEnabled {
		backend, err := retrieval.NewSQLiteBackend(cfg.RetrievalDBPath)
		if err != nil {
			log.Printf("[RETRIEVAL] Database backend unavailable, using file fallback only: %v", err)
		} else {
			defer backend.Close()
			primary = backend
		}
	}
	fileIndex := retrieval.NewFileIndex(cfg.FallbackIndexPath)
	retriever := recovery.NewProtocolRetriever(primary, fileIndex, breakers, cfg.ProtocolCacheTTL)

	monitor := validation.NewMonitor()
	retriever.OnStrategy(monitor.RecordStrategy)
	svc := validation.NewService(registry, monitor)
	pipeline := svc.Pipeline()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger := logging.WithQuery(uuid.NewString(), *query)
	logger.Info("handling query")

	stage1 := pipeline.PreRetrieval(*query)
	normalized := stage1.Metadata["normalized_query"]

	result, err := orchestrator.Search(ctx, normalized, cfg.SearchResultLimit)
	if err != nil {
		log.Fatalf("Retrieval failed: %v", err)
	}
	logger.Info("retrieval complete", "hits", len(result.Hits), "degraded", result.Degraded)

	protocols := retrieveProtocols(ctx, retriever, result.Hits)

	stage2 := pipeline.DuringRetrieval(protocols)
	logging.WithStage(logger, validation.StageDuringRetrieval).Info("stage complete", "valid", stage2.Valid, "errors", len(stage2.Errors))

	stage3 := pipeline.PreResponse(result.Context, protocols)
	logging.WithStage(logger, validation.StagePreResponse).Info("stage complete", "valid", stage3.Valid, "errors", len(stage3.Errors))

	fmt.Println("=== EXPANDED QUERY ===")
	fmt.Println(expander.Expand(normalized))
	fmt.Println("\n=== ASSEMBLED CONTEXT ===")
	fmt.Println(result.Context)
	if *htmlOut && result.ContextHTML != "" {
		fmt.Println("\n=== ASSEMBLED CONTEXT (HTML) ===")
		fmt.Println(result.ContextHTML)
	}
	fmt.Printf("\n=== VALIDATION ===\nstage1 valid=%v warnings=%d\nstage2 valid=%v errors=%d\nstage3 valid=%v errors=%d\n",
		stage1.Valid, len(stage1.Warnings), stage2.Valid, len(stage2.Errors), stage3.Valid, len(stage3.Errors))
	fmt.Println("\n=== MONITOR ===")
	fmt.Println(monitor.Report())
}

// retrieveProtocols pulls the authoritative protocol records behind the hit
// documents through the fallback cascade.
func retrieveProtocols(ctx context.Context, retriever *recovery.ProtocolRetriever, hits []models.Document) []models.Protocol {
	var protocols []models.Protocol
	seen := make(map[string]bool)
	for _, doc := range hits {
		code := corpus.ProtocolCodeOf(doc)
		if code == "" || seen[code] {
			continue
		}
		seen[code] = true
		outcome := retriever.RetrieveProtocol(ctx, code)
		if outcome.Success {
			protocols = append(protocols, *outcome.Protocol)
		} else {
			log.Printf("[RETRIEVAL] TP %s unavailable (%s): %s", code, outcome.StrategyUsed, outcome.Message)
		}
	}
	return protocols
}
