// Package pipeline implements the progressive enrichment of a maintainer's
// dashboard.
//
// A search first loads the maintainer's packages with their npm numbers and
// shows them immediately. The GitHub numbers are then filled in a few
// packages at a time, so the caller sees the table grow as results arrive.
//
// # Architecture
//
// A search runs in four steps:
//
//  1. Stats: fetch the package list from a [StatsSource]
//  2. Seed: attach the previous snapshot from a [HistoryStore], if any
//  3. Enrich: run packages through the [Enricher] in small batches
//  4. Save: store the resulting snapshot in the background
//
// Each package moves through a small state machine while it is enriched:
//
//	Pending -> InFlight(1) -> Succeeded
//	                       -> RateLimited
//	                       -> InFlight(2) -> Succeeded | RateLimited | Failed
//	                       -> Failed
//
// 403, 5xx and transport errors are retried once after a delay. 429 is never
// retried and records the reset time for the whole session. Every other
// status fails the package immediately.
//
// # Usage
//
//	sess := pipeline.NewSession(pipeline.Options{
//	    Stats:    &pipeline.HTTPStatsSource{BaseURL: "http://localhost:3001"},
//	    Enricher: &pipeline.HTTPEnricher{BaseURL: "http://localhost:3001"},
//	    Observer: pipeline.ObserverFunc(func(u pipeline.Update) {
//	        fmt.Println(u.Failure.Failed, "of", u.Failure.Total, "failed")
//	    }),
//	})
//	if err := sess.Search(ctx, "sindresorhus"); err != nil {
//	    log.Fatal(err)
//	}
//	sess.Wait()
//
// # Generations
//
// Every Search and Clear starts a new generation. Results that arrive for
// an older generation are dropped, so a slow batch from a previous search
// can never overwrite the current one.
package pipeline
