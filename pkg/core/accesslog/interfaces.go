//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package accesslog provides interfaces and implementations for audit logging
// of authorization decisions.
//
// Every decision taken by the authorization manager outside of probe mode
// produces one [Record], naming the principal, each alternative that was
// checked, the scope that decided it and the time it took.
//
// # Built-in Implementations
//
//   - [NewStdoutFactory]: Writes JSON records to stdout
//   - [NewIoWriterFactory]: Writes JSON records to any io.Writer
//   - [NewNullFactory]: Discards all records
//
// # Custom Implementations
//
// Implement [Factory] and [Stream] and pass the factory to
// options.WithAccessLog when creating the authorization manager.
package accesslog

// Factory creates access log [Stream] instances.
//
// Early initialization (validating configuration) belongs in the factory
// constructor; late initialization (opening connections) in [Factory.NewStream],
// which is called after configuration is loaded.
type Factory interface {
	NewStream() (Stream, error)
}

// Stream is the interface for sending access records to an audit destination.
//
// Implementations must be safe for concurrent use; the manager calls Send
// from every goroutine that takes a decision.
type Stream interface {
	// Send delivers a record.  The caller retains ownership of the record.
	// Send errors are logged by the manager but never retried.
	Send(record *Record) error

	// Close flushes and releases the stream.
	Close()
}
