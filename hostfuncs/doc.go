// Package hostfuncs holds the host functions scripts can call.
//
// A Registry maps a numeric callback id and a name to a Func. The core looks
// functions up by id on the synchronous path and the host poll loop looks
// them up by name on the request path. A Func whose result is a Deferred is
// async-capable: it can only be awaited by an async evaluation.
package hostfuncs
