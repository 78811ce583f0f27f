// Package broker implements the in-process pub/sub fanout at the center of
// the realtime core. Channels are named broadcast groups in two families:
// user/{userID} for direct notifications and story/{storyID} for
// collaborative events on one document.
//
// Delivery guarantees: an event published to a channel reaches exactly the
// subscribers registered at the instant of publish, in FIFO order per
// (channel, subscriber). There is no ordering across channels or across
// subscribers, no durability, and no replay. Each subscriber owns a bounded
// queue; overflow drops that subscriber's oldest unread event rather than
// blocking the publisher or disconnecting eagerly.
package broker
