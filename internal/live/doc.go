// Package live keeps presentation views current without polling.
//
// A Query is a pure read over the local store that names the tables it
// depends on. Watch evaluates it once and then again after every committed
// transaction that touches one of those tables. Re-evaluation happens on the
// committing goroutine, before the write call returns, so a caller that
// records a sale and then reads its subscription sees the sale.
//
// Delivery on Updates is latest-wins: a slow consumer skips intermediate
// values and always receives the newest one.
package live
