// Package model defines the entities mirrored in the device's local store and
// the request and response bodies exchanged with the reconciliation server.
//
// Every record is keyed by a client-generated local id so it can be created
// offline. Records the server assigns identity to also carry a CanonicalID,
// which stays nil until the first successful sync. Local relations always use
// the local id, so joins behave the same before and after reconciliation.
//
// Money is carried as decimal.Decimal and stored as decimal text.
package model
