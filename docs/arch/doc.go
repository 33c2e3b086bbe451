// Package arch documents how the blog web front end is put together.
//
// # Layers
//
// Requests flow through four layers, each in its own package:
//
//	internal/web                 gin engine, CORS, health check, static files
//	internal/web/blog/controller pages, json endpoints, auth dialogs
//	internal/web/blog/service    business rules on top of the REST backend
//	library/blogapi              REST client of the blog backend
//
// The controller never talks to the backend directly. The terminal reader in
// cmd/tui drives the same service, so both front ends share one set of rules.
//
// # Sessions
//
// Every request carries a session.State, loaded by session.Manager from a
// signed cookie and stored in redis, or in memory when redis is not
// configured. The state holds the signed-in user, the backend cookie used on
// their behalf and which auth dialog is open. Handlers receive the state as an
// argument instead of reading it from a global.
//
// # Comment feeds
//
// The comments under a post are held by a feed.Controller, one per session and
// post, kept in a feed.Registry:
//
//	LoadPage(ctx, "")     replace the list with the first page
//	LoadPage(ctx, cursor) append the page after cursor
//	LoadMore(ctx)         LoadPage with the id of the last loaded comment
//
// A failed load keeps what was already loaded and flags the error. Once the
// backend reports the end of pagination the feed is exhausted and front ends
// stop offering more. Comments
// created, edited or deleted through the service are recorded on the feed, so
// the list stays current without reloading. Replies are one level deep and
// live in their own feed keyed by the parent comment.
//
// # Posts
//
// Posts are read through a cache with a revalidation TTL. Markdown is rendered
// with gomarkdown, headings get stable ids that feed the table of contents.
// Editor drafts are autosaved to mongo, or to memory without a drafts
// database.
package arch
