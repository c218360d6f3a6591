// Package redis integrates Redis for the scan service.
//
// It provides three pieces:
//   - Client: connection management with pooling and startup retry.
//   - Cache[T]: a JSON-encoded, TTL-bound cache used for repo summaries.
//   - StatusNotifier: pub/sub fan-out of scan status events from workers
//     to the API processes holding the live connections.
//
// Create a summary cache:
//
//	summaries, err := redis.NewCache[scan.RepoSummary](client, "repo_summary", cfg.Scan.SummaryTTL)
//
// Relay status events to a websocket hub:
//
//	notifier := redis.NewStatusNotifier(client, log)
//	err := notifier.StartListener(ctx, hub.Deliver)
package redis
