// Package assets reconciles the backend's two asset stores into one library.
//
// The structured store holds typed assets with collections and separately
// stored bodies. The legacy history holds flat scrape records, which are
// normalized into the same Asset shape. Listings fetch both stores
// concurrently and tolerate either failing; an id present in both resolves to
// the structured copy. Mutations try the structured store first and fall back
// to the legacy one, reporting which accepted the change.
package assets
