package participant

import (
	"github.com/iov-one/weave"
	"github.com/iov-one/weave/errors"
	"github.com/iov-one/weave/migration"
)

func init() {
	migration.MustRegister(1, &UpdateConfigurationMsg{}, migration.NoModification)
	migration.MustRegister(1, &RegisterParticipantMsg{}, migration.NoModification)
	migration.MustRegister(1, &VerifyParticipantMsg{}, migration.NoModification)
	migration.MustRegister(1, &RevokeParticipantMsg{}, migration.NoModification)
}

var _ weave.Msg = (*UpdateConfigurationMsg)(nil)

func (UpdateConfigurationMsg) Path() string {
	return "participant/update_configuration"
}

func (msg *UpdateConfigurationMsg) Validate() error {
	var errs error
	errs = errors.AppendField(errs, "Metadata", msg.Metadata.Validate())
	errs = errors.AppendField(errs, "Patch", msg.Patch.Validate())
	return errs
}

var _ weave.Msg = (*RegisterParticipantMsg)(nil)

func (RegisterParticipantMsg) Path() string {
	return "participant/register"
}

func (msg *RegisterParticipantMsg) Validate() error {
	var errs error
	errs = errors.AppendField(errs, "Metadata", msg.Metadata.Validate())
	if msg.Name == "" {
		errs = errors.AppendField(errs, "Name", errors.ErrEmpty)
	}
	errs = errors.AppendField(errs, "Role", msg.Role.Validate())
	return errs
}

var _ weave.Msg = (*VerifyParticipantMsg)(nil)

func (VerifyParticipantMsg) Path() string {
	return "participant/verify"
}

func (msg *VerifyParticipantMsg) Validate() error {
	var errs error
	errs = errors.AppendField(errs, "Metadata", msg.Metadata.Validate())
	errs = errors.AppendField(errs, "Address", msg.Address.Validate())
	return errs
}

var _ weave.Msg = (*RevokeParticipantMsg)(nil)

func (RevokeParticipantMsg) Path() string {
	return "participant/revoke"
}

func (msg *RevokeParticipantMsg) Validate() error {
	var errs error
	errs = errors.AppendField(errs, "Metadata", msg.Metadata.Validate())
	errs = errors.AppendField(errs, "Address", msg.Address.Validate())
	return errs
}
