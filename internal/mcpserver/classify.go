package mcpserver

import (
	"errors"

	"github.com/arborist-labs/statmcp/internal/approval"
	"github.com/arborist-labs/statmcp/internal/vfs"
	"github.com/arborist-labs/statmcp/internal/worker"
)

type errClass int

const (
	classOther errClass = iota
	classWorkerTimeout
	classWorkerExecution
	classWorkerProtocol
	classCancelled
	classVFSDenied
	classApprovalDenied
)

// classify inspects err's concrete type to pick the JSON-RPC error code
// family it belongs to. New error-producing components register a case
// here rather than each handler re-implementing the same type switch.
func classify(err error) errClass {
	var werr *worker.Error
	if errors.As(err, &werr) {
		switch werr.Kind {
		case worker.KindTimeout, worker.KindQueueTimeout:
			return classWorkerTimeout
		case worker.KindCancelled:
			return classCancelled
		case worker.KindProtocolError:
			return classWorkerProtocol
		default:
			return classWorkerExecution
		}
	}

	var verr *vfs.DeniedError
	if errors.As(err, &verr) {
		return classVFSDenied
	}

	var aerr *approval.DeniedError
	if errors.As(err, &aerr) {
		return classApprovalDenied
	}

	return classOther
}
