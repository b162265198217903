package mediaregistry

// operation names a gated registry mutation.
type operation string

const (
	opAddMedia      operation = "add_media"
	opDeleteMedia   operation = "delete_media"
	opPause         operation = "pause"
	opUnpause       operation = "unpause"
	opTransferAdmin operation = "transfer_admin"
)

// adminOperations may only be run by the admin and stay available while the
// registry is paused.
var adminOperations = map[operation]bool{
	opPause:         true,
	opUnpause:       true,
	opTransferAdmin: true,
}

// checkGate runs the pause and admin checks for op against a snapshot of the
// control state. It never mutates anything. Record ownership is checked by
// checkOwner once the target record has been resolved.
func checkGate(op operation, caller Address, control *ControlState) error {
	if adminOperations[op] {
		if control.Admin.IsZero() || caller != control.Admin {
			return opError(string(op), ErrNotAdmin, ReasonOnlyAdmin)
		}
		return nil
	}
	if control.Paused {
		return opError(string(op), ErrSuspended, ReasonPaused)
	}
	return nil
}

func checkOwner(op operation, caller Address, record *MediaRecord) error {
	if record.Owner != caller {
		return opError(string(op), ErrNotOwner, ReasonOnlyOwner)
	}
	return nil
}
