package redisx

import "time"

const (
	// Idempotent checkout: idem:order:create:{user_id}:{idempotency_key} -> order_id
	KeyIdemOrderCreate = "idem:order:create:%d:%s"

	// Order detail view: order:{order_id} -> OrderView JSON
	KeyOrderView = "order:%d"

	// Order history of a user: user_orders:{user_id} -> []OrderView JSON
	KeyUserOrders = "user_orders:%d"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// Invalidation generation of a cached key: gen:{key} -> counter
	KeyGeneration = "gen:%s"

	// Reservation ledger per product: hash ledger:product:{product_id} {reserved, ordered}
	KeyLedger = "ledger:product:%d"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLViewCache   = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
	TTLGeneration  = 24 * time.Hour
)
