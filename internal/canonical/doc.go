// Package canonical serialises sync payloads to canonical JSON and derives
// content-addressed keys from them.
//
// Queue payloads are stored in canonical form so that the same logical
// mutation always produces the same bytes, and therefore the same
// idempotency key, no matter how many times it is re-encoded or replayed.
//
// Rules (RFC 8785 subset):
//   - object keys sorted by UTF-16 code units
//   - no HTML escaping; U+2028/U+2029 emitted literally
//   - strings NFC normalised
//   - integers only; money travels as decimal strings
//   - null is forbidden (optional fields use omitempty)
package canonical
