package events

import "strconv"

const (
	TopicCartItemReserved   = "cart.item.reserved"
	TopicCartItemReleased   = "cart.item.released"
	TopicOrderCreated       = "order.created"
	TopicOrderStatusChanged = "order.status.changed"
	TopicCouponApplied      = "order.coupon.applied"
)

// ReservationTopics are the topics the reservation ledger follows.
var ReservationTopics = []string{TopicCartItemReserved, TopicCartItemReleased, TopicOrderCreated}

// Partition keys: product id for cart events so one product's reservations stay
// ordered, order id for order events.
func ProductKey(productID int64) string { return "product:" + strconv.FormatInt(productID, 10) }
func OrderKey(orderID int64) string     { return "order:" + strconv.FormatInt(orderID, 10) }
