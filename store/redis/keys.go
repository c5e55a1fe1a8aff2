package redis

import "strconv"

// Key layout:
//
//	dispatch:whk:<id>          webhook JSON blob
//	dispatch:del:<id>          delivery JSON blob
//	dispatch:s:org:<orgID>     set of webhook IDs owned by an organization
//	dispatch:z:del:pending     sorted set of pending delivery IDs, scored by next_attempt_at
//	dispatch:z:del:whk:<id>    sorted set of delivery IDs per webhook, scored by created_at
const (
	prefixWebhook  = "dispatch:whk:"
	prefixDelivery = "dispatch:del:"
	prefixOrgSet   = "dispatch:s:org:"
	zDeliveryPend  = "dispatch:z:del:pending"
	zDeliveryWhk   = "dispatch:z:del:whk:"
)

func webhookKey(whID string) string { return prefixWebhook + whID }

func deliveryKey(delID string) string { return prefixDelivery + delID }

func orgSetKey(orgID int64) string { return prefixOrgSet + strconv.FormatInt(orgID, 10) }

func webhookDeliveriesKey(whID string) string { return zDeliveryWhk + whID }
