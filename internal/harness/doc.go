// Package harness runs device scenarios against an in-process server.
//
// A scenario records mutations on a fresh device, flips connectivity, drains
// the queue, and then checks what the server was sent and what both sides
// hold afterwards. Nothing is mocked: the device is a real store, recorder,
// sync engine and connectivity monitor, and the server is the real ledger
// behind its HTTP routes.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: sale_then_sync
//	description: "A sale made offline reaches the server once"
//	steps:
//	  - op: offline
//	  - op: sell
//	    as: sale1
//	    store: store-a
//	    items:
//	      - {product: soap, qty: 2}
//	  - op: online
//	    expect: {state: synced, synced: 1}
//	assertions:
//	  - type: request_order
//	    requests: ["POST /api/transactions 201"]
//	  - type: final_state
//	    table: inventory
//	    where: {store_id: store-a, product_id: soap}
//	    expect: {stock: 3}
//	  - type: server_stock
//	    store: store-a
//	    product: soap
//	    stock: 3
//
// Steps name a record with "as"; later steps and request paths refer to it
// by that name. A step without expect must succeed; expect.error: rejected
// requires the recorder to refuse the input.
//
// # Assertion Types
//
//   - request_order: requests appear in this order, others may interleave
//   - request_count: a request appears exactly count times
//   - final_state: a row of a device table has the expected columns
//   - server_stock: the server's stock of a product in a store
//   - queue: the device queue holds count entries, attention of them held
//
// # Deterministic Testing
//
// Devices run on a fixed clock and sequential ids, and the request trace
// names records by their scenario names, so the same scenario always yields
// the same trace for golden comparison.
package harness
