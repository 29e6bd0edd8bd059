// Package errdefs defines the closed error taxonomy shared by every component
// of the daemon.
//
// Every failure that crosses a component boundary (storage, auth, API client,
// cache, router) is translated into exactly one taxonomy member before it is
// surfaced. Raw transport errors, provider error bodies and storage failures
// never leak past the package that produced them.
//
// The taxonomy also carries the short, generic user-facing message for each
// kind, so UI surfaces never see internal exception text.
package errdefs
