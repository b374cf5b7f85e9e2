// Package job defines the durable representation of a task invocation
// within the nuvom execution runtime.
//
// A Job captures a single invocation of a registered task: the task name,
// its arguments, and the execution parameters (retry budget, retry delay,
// timeout, timeout policy) together with the lifecycle state accumulated
// while the job moves through the queue and the worker pool.
//
// Job values are created at submission time, serialized by a codec into a
// queue backend, and handed to workers by the dispatcher. The authoritative
// copy of a pending or leased job lives in the queue backend; the terminal
// record lives in the result backend as a Result.
//
// Status and TimeoutPolicy are small enumerations with canonical textual
// forms so that records remain readable across languages and storage
// backends.
//
// Job is a data carrier. Mutating a Job value does not change queue state;
// transitions are performed through the queue and result backend contracts.
package job
