// Package fs provides the filesystem abstraction used by the local blob store.
//
//   - [LocalFS]: production implementation using the os package
//   - [FaultyFS]: test utility that injects write, sync and rename failures
//
// Tests can inject [FaultyFS] to check that a failed write never leaves a partial blob:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule(".tmp", fs.Fault{FailAfterBytes: 16})
//	store := blobstore.NewLocalStore(dir, blobstore.WithFileSystem(ffs))
//
// The package does not take a context.Context. Local filesystem calls are not
// interruptible at the syscall level.
package fs
