// Package nn provides the attention building blocks used by the decoder:
// a fixed-capacity key/value cache and single-query attention over it.
package nn
