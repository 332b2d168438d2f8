package participant

import (
	"github.com/iov-one/weave"
	"github.com/iov-one/weave/errors"
	"github.com/iov-one/weave/migration"
	"github.com/iov-one/weave/orm"
)

func init() {
	migration.MustRegister(1, &Participant{}, migration.NoModification)
}

var _ orm.Model = (*Participant)(nil)

func (p *Participant) Validate() error {
	var errs error
	errs = errors.AppendField(errs, "Metadata", p.Metadata.Validate())
	errs = errors.AppendField(errs, "Address", p.Address.Validate())
	if p.Name == "" {
		errs = errors.AppendField(errs, "Name", errors.ErrEmpty)
	}
	errs = errors.AppendField(errs, "Role", p.Role.Validate())
	errs = errors.AppendField(errs, "RegisteredAt", p.RegisteredAt.Validate())
	if len(p.VerifiedBy) != 0 {
		errs = errors.AppendField(errs, "VerifiedBy", p.VerifiedBy.Validate())
	}
	errs = errors.AppendField(errs, "VerifiedAt", p.VerifiedAt.Validate())
	return errs
}

var roleNames = map[Role]string{
	RoleManufacturer: "manufacturer",
	RoleDistributor:  "distributor",
	RolePharmacy:     "pharmacy",
	RoleRegulator:    "regulator",
	RoleOther:        "other",
}

// Validate returns an error if this is not one of the supported roles.
func (r Role) Validate() error {
	if _, ok := roleNames[r]; !ok {
		return errors.Wrapf(ErrInvalidRole, "unknown role %d", r)
	}
	return nil
}

// Name returns the lower case name of the role, for example "regulator".
func (r Role) Name() string {
	if n, ok := roleNames[r]; ok {
		return n
	}
	return r.String()
}

// ParseRole returns the role with the given name. Names are case sensitive.
func ParseRole(name string) (Role, error) {
	for r, n := range roleNames {
		if n == name {
			return r, nil
		}
	}
	return RoleInvalid, errors.Wrapf(ErrInvalidRole, "unknown role %q", name)
}

// NewParticipantBucket returns a bucket for storing participants. Each
// participant is stored under its address.
func NewParticipantBucket() orm.ModelBucket {
	b := orm.NewModelBucket("particip", &Participant{},
		orm.WithNativeIndex("role", participantRole))
	return migration.NewModelBucket("participant", b)
}

func participantRole(o orm.Object) ([][]byte, error) {
	p, ok := o.Value().(*Participant)
	if !ok {
		return nil, errors.Wrap(errors.ErrType, "not a Participant")
	}
	return [][]byte{[]byte(p.Role.Name())}, nil
}

// Registry gives read access to registered participants. Extensions that
// authorize by the verification status of the caller depend on it.
type Registry struct {
	participants orm.ModelBucket
}

// NewRegistry returns a registry reading from the participant bucket.
func NewRegistry() *Registry {
	return &Registry{participants: NewParticipantBucket()}
}

// Participant returns the participant registered under the given address.
// ErrNotFound is returned if the address was never registered.
func (r *Registry) Participant(db weave.ReadOnlyKVStore, addr weave.Address) (*Participant, error) {
	var p Participant
	if err := r.participants.One(db, addr, &p); err != nil {
		return nil, errors.Wrapf(err, "participant %s", addr)
	}
	return &p, nil
}

// IsVerified returns true if the address belongs to a verified participant.
// An unknown address is never verified.
func (r *Registry) IsVerified(db weave.ReadOnlyKVStore, addr weave.Address) bool {
	p, err := r.Participant(db, addr)
	if err != nil {
		return false
	}
	return p.Verified
}

// ByRole returns all participants that declared the given role.
func (r *Registry) ByRole(db weave.ReadOnlyKVStore, role Role) ([]*Participant, error) {
	var ps []*Participant
	if _, err := r.participants.ByIndex(db, "role", []byte(role.Name()), &ps); err != nil {
		return nil, errors.Wrap(err, "by role index")
	}
	return ps, nil
}
