// Package scheduler admits queued jobs for execution under a concurrency limit.
//
// The Controller keeps an unbounded FIFO of pending job IDs and a fixed number
// of heavy-stage slots. Next hands out a Ticket for the oldest queued job once
// a slot is free; the ticket owns the slot until ReleaseSlot or Done. The
// recognition engine is only ever driven by a ticket holder, which keeps the
// model an explicit admitted resource rather than process-wide state.
package scheduler
