package utils

import "io"

type flushableWriter interface {
	io.Writer
	Flush() error
}

type flushingWriter struct {
	destination io.Writer
}

// NewFlushingWriter wraps the destination so buffered writers are flushed after every write.
func NewFlushingWriter(destination io.Writer) io.Writer {
	return flushingWriter{destination: destination}
}

// Write forwards the payload and flushes the destination when it supports flushing.
func (writer flushingWriter) Write(data []byte) (int, error) {
	bytesWritten, writeError := writer.destination.Write(data)
	if writeError != nil {
		return bytesWritten, writeError
	}

	if flusher, flushable := writer.destination.(flushableWriter); flushable {
		if flushError := flusher.Flush(); flushError != nil {
			return bytesWritten, flushError
		}
	}

	return bytesWritten, nil
}
