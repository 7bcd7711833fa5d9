// Package compose turns an ordered list of specimen records into one or more
// multi-object 3MF packages.
//
// A Composer extracts the template once per run, extracts each distinct
// specimen once through a run-scoped cache, partitions the records into
// consecutive batches of at most the configured object count, and for each
// batch splices the specimen meshes into template slots 1..N, patches the
// per-object print parameters, and repacks the result under the output
// directory. Slicing, uploading, history recording, and metrics are optional
// collaborators attached through options.
//
// Runs are single-threaded. The work directory is guarded by a file lock so
// two runs never share scratch space, and every temporary directory is removed
// on every exit path.
package compose
