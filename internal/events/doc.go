// Package events implements the single write path for pipeline state:
// every status transition goes through the Bus, which appends one immutable
// audit row, applies the status-transition table to the event's subject,
// and broadcasts the envelope to the owning job's topic.
//
// The primary components are:
// - Event: the envelope published to a job's broadcast topic
// - Bus: the Emit write path over the stores and the broadcast transport
// - Publisher: the broadcast transport contract the Bus fans out through
package events
