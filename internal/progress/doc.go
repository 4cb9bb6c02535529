// Package progress distributes live job progress events to subscribers.
//
// The Bus is a best-effort push path: publishing never blocks, events for jobs
// nobody watches are dropped, and a slow subscriber loses its oldest pending
// events rather than stalling the pipeline. The terminal event of a job is
// always delivered to attached subscribers, after which their streams close.
// The job store remains the source of truth; observers that attach late or
// miss events read it directly.
package progress
