// Package capability declares the guest-facing capability surface spec.md
// §6 describes: sql, pub_sub, inference, and log. session_fs and mesh are
// the other two capabilities named there, but this repository implements
// those itself (vfs.Manager and dispatch.Router respectively), so they have
// no stub here. The four interfaces in this package are deliberately never
// implemented in this repository: they are the seam a host embedding Brio
// is expected to fill in with its own SQL store, pub/sub bus, inference
// provider, and log sink.
package capability
