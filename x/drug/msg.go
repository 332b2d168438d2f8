package drug

import (
	"github.com/iov-one/weave"
	"github.com/iov-one/weave/errors"
	"github.com/iov-one/weave/migration"
)

func init() {
	migration.MustRegister(1, &ManufactureDrugMsg{}, migration.NoModification)
	migration.MustRegister(1, &TransferDrugMsg{}, migration.NoModification)
	migration.MustRegister(1, &UpdateDrugStageMsg{}, migration.NoModification)
	migration.MustRegister(1, &RecordSupplyChainStepMsg{}, migration.NoModification)
}

var _ weave.Msg = (*ManufactureDrugMsg)(nil)

func (ManufactureDrugMsg) Path() string {
	return "drug/manufacture"
}

func (msg *ManufactureDrugMsg) Validate() error {
	// Date order is reported on its own so that clients can tell it apart
	// from malformed input.
	if msg.ManufacturedAt >= msg.ExpiresAt {
		return errors.Wrapf(ErrInvalidDates, "expires at %d, not after manufacture at %d", msg.ExpiresAt, msg.ManufacturedAt)
	}
	var errs error
	errs = errors.AppendField(errs, "Metadata", msg.Metadata.Validate())
	errs = errors.AppendField(errs, "Name", validateText(msg.Name))
	errs = errors.AppendField(errs, "BatchNumber", validateText(msg.BatchNumber))
	errs = errors.AppendField(errs, "ManufacturedAt", msg.ManufacturedAt.Validate())
	errs = errors.AppendField(errs, "ExpiresAt", msg.ExpiresAt.Validate())
	return errs
}

var _ weave.Msg = (*TransferDrugMsg)(nil)

func (TransferDrugMsg) Path() string {
	return "drug/transfer"
}

func (msg *TransferDrugMsg) Validate() error {
	var errs error
	errs = errors.AppendField(errs, "Metadata", msg.Metadata.Validate())
	errs = errors.AppendField(errs, "DrugID", validateDrugID(msg.DrugID))
	errs = errors.AppendField(errs, "NewOwner", msg.NewOwner.Validate())
	return errs
}

var _ weave.Msg = (*UpdateDrugStageMsg)(nil)

func (UpdateDrugStageMsg) Path() string {
	return "drug/update_stage"
}

func (msg *UpdateDrugStageMsg) Validate() error {
	var errs error
	errs = errors.AppendField(errs, "Metadata", msg.Metadata.Validate())
	errs = errors.AppendField(errs, "DrugID", validateDrugID(msg.DrugID))
	errs = errors.AppendField(errs, "Stage", validateStageChange(msg.Stage))
	return errs
}

var _ weave.Msg = (*RecordSupplyChainStepMsg)(nil)

func (RecordSupplyChainStepMsg) Path() string {
	return "drug/record_step"
}

func (msg *RecordSupplyChainStepMsg) Validate() error {
	var errs error
	errs = errors.AppendField(errs, "Metadata", msg.Metadata.Validate())
	errs = errors.AppendField(errs, "DrugID", validateDrugID(msg.DrugID))
	errs = errors.AppendField(errs, "Stage", validateStageChange(msg.Stage))
	return errs
}

// validateDrugID returns an error if given value is not a sequence
// generated drug ID.
func validateDrugID(id []byte) error {
	if len(id) == 0 {
		return errors.ErrEmpty
	}
	if len(id) != 8 {
		return errors.Wrapf(errors.ErrInput, "must be 8 bytes, got %d", len(id))
	}
	return nil
}
