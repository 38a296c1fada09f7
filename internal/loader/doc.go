// Package loader is the tensor store of a GGUF checkpoint.
//
// A Store parses the container directory once, then decodes tensor payloads on
// demand and caches them by name. Each tensor is decoded at most once. Loading
// everything with LoadAll stops at the first failing tensor but keeps whatever
// was decoded before it.
//
// Example:
//
//	store, err := loader.Open("path/to/model.gguf")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	// Decode one tensor lazily
//	w, err := store.LoadOne("blk.0.attn_q.weight")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Look up embedding rows
//	rows, err := store.Embed([]uint32{1, 15043})
//
// A Store is owned by one goroutine; it does no internal locking.
package loader
