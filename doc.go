// Package arcgis provides the shared core for a GIS service SDK:
// asynchronous long-running job orchestration and atomic multi-item
// feature edits against REST backends that expose the submit/poll
// pattern.
//
// The package itself holds only the pieces every subsystem consumes:
// the error taxonomy and the shared configuration. The working parts
// live in subpackages:
//
//   - transport: authenticated HTTP collaborator with retry hints
//   - ratelimit: token-bucket gate shared by all outbound calls
//   - backoff: retry delay strategies for polling and submission
//   - job: job client, status state machine, and poller
//   - edit: atomic batch-edit coordinator
//   - portal: wiring façade binding the above to concrete backends
//
// # Quick Start
//
//	p, err := portal.Build("https://gis.example.com/arcgis/rest",
//	    portal.WithToken(tokenFn),
//	)
//
//	gp := p.Geoprocessing("Routing", "Profile")
//	h, err := gp.Submit(ctx, job.Params{Operation: "profile", Input: path})
//	status, err := p.Poller(job.DefaultPolicy()).PollUntilComplete(ctx, gp, h)
//
// # Error Taxonomy
//
// Every failure surfaced by the SDK is classified into a Kind. Only
// KindNetwork and KindRateLimit are retried automatically; everything
// else is data-affecting and reaches the caller verbatim.
package arcgis
