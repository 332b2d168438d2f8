package drug

import (
	"fmt"

	"github.com/iov-one/weave"
	"github.com/iov-one/weave/errors"
	"github.com/iov-one/weave/migration"
	"github.com/iov-one/weave/orm"
)

func init() {
	migration.MustRegister(1, &Drug{}, migration.NoModification)
}

var _ orm.Model = (*Drug)(nil)

func (d *Drug) Validate() error {
	var errs error
	errs = errors.AppendField(errs, "Metadata", d.Metadata.Validate())
	errs = errors.AppendField(errs, "Name", validateText(d.Name))
	errs = errors.AppendField(errs, "BatchNumber", validateText(d.BatchNumber))
	errs = errors.AppendField(errs, "ManufacturedAt", d.ManufacturedAt.Validate())
	errs = errors.AppendField(errs, "ExpiresAt", d.ExpiresAt.Validate())
	if d.ManufacturedAt >= d.ExpiresAt {
		errs = errors.AppendField(errs, "ExpiresAt", ErrInvalidDates)
	}
	errs = errors.AppendField(errs, "Manufacturer", d.Manufacturer.Validate())
	errs = errors.AppendField(errs, "Owner", d.Owner.Validate())
	errs = errors.AppendField(errs, "Stage", d.Stage.Validate())
	errs = errors.AppendField(errs, "Steps", validateSteps(d.Steps, d.Stage))
	return errs
}

// validateSteps returns an error if the history is not a valid history of
// a drug currently in given stage.
func validateSteps(steps []Step, current Stage) error {
	if len(steps) == 0 {
		return errors.Wrap(errors.ErrEmpty, "history must contain at least the manufacturing step")
	}
	if steps[0].Stage != StageManufactured {
		return errors.Wrap(errors.ErrState, "history must start with the manufacturing step")
	}
	var errs error
	for i, s := range steps {
		errs = errors.AppendField(errs, fmt.Sprintf("%d.Actor", i), s.Actor.Validate())
		errs = errors.AppendField(errs, fmt.Sprintf("%d.Stage", i), s.Stage.Validate())
		errs = errors.AppendField(errs, fmt.Sprintf("%d.RecordedAt", i), s.RecordedAt.Validate())
		if i > 0 && s.RecordedAt < steps[i-1].RecordedAt {
			errs = errors.AppendField(errs, fmt.Sprintf("%d.RecordedAt", i),
				errors.Wrap(errors.ErrState, "steps must be ordered by time"))
		}
	}
	if last := steps[len(steps)-1]; last.Stage != current {
		errs = errors.Append(errs, errors.Wrapf(errors.ErrState, "last step is %s, drug is %s", last.Stage.Name(), current.Name()))
	}
	return errs
}

// appendStep moves the drug to given stage and records the change in its
// history. The history is never rewritten, so a step recorded before the
// last one is rejected.
func (d *Drug) appendStep(actor weave.Address, stage Stage, at weave.UnixTime) error {
	if n := len(d.Steps); n > 0 && at < d.Steps[n-1].RecordedAt {
		return errors.Wrapf(errors.ErrState, "step recorded at %s, before the last step at %s", at, d.Steps[n-1].RecordedAt)
	}
	d.Stage = stage
	d.Steps = append(d.Steps, Step{
		Actor:      actor,
		Stage:      stage,
		RecordedAt: at,
	})
	return nil
}

func validateText(s string) error {
	switch n := len(s); {
	case n == 0:
		return errors.ErrEmpty
	case n > 256:
		return errors.Wrap(errors.ErrInput, "too long")
	}
	return nil
}

var stageNames = map[Stage]string{
	StageManufactured: "manufactured",
	StageDistributed:  "distributed",
	StageDispensed:    "dispensed",
	StageRecalled:     "recalled",
	StageDestroyed:    "destroyed",
}

// Validate returns an error if this is not one of the supported stages.
func (s Stage) Validate() error {
	if _, ok := stageNames[s]; !ok {
		return errors.Wrapf(ErrInvalidStage, "unknown stage %d", s)
	}
	return nil
}

// Name returns the lower case name of the stage, for example "dispensed".
func (s Stage) Name() string {
	if n, ok := stageNames[s]; ok {
		return n
	}
	return s.String()
}

// ParseStage returns the stage with the given name. Names are case
// sensitive.
func ParseStage(name string) (Stage, error) {
	for s, n := range stageNames {
		if n == name {
			return s, nil
		}
	}
	return StageInvalid, errors.Wrapf(ErrInvalidStage, "unknown stage %q", name)
}

// validateStageChange returns an error if a drug cannot be moved to given
// stage by a stage update. The manufactured stage is set only when the drug
// is created.
func validateStageChange(s Stage) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if s == StageManufactured {
		return errors.Wrap(ErrInvalidStage, "manufactured stage is set only on manufacture")
	}
	return nil
}

var drugSeq = orm.NewSequence("drug", "id")

// NewDrugBucket returns a bucket for storing drugs. A new drug receives the
// next value of the drug sequence as its key.
func NewDrugBucket() orm.ModelBucket {
	b := orm.NewModelBucket("drug", &Drug{},
		orm.WithIDSequence(drugSeq),
		orm.WithNativeIndex("owner", drugOwner),
		orm.WithNativeIndex("manufacturer", drugManufacturer),
		orm.WithNativeIndex("batch", drugBatch),
	)
	return migration.NewModelBucket("drug", b)
}

func drugOwner(o orm.Object) ([][]byte, error) {
	d, ok := o.Value().(*Drug)
	if !ok {
		return nil, errors.Wrap(errors.ErrType, "not a Drug")
	}
	return [][]byte{d.Owner}, nil
}

func drugManufacturer(o orm.Object) ([][]byte, error) {
	d, ok := o.Value().(*Drug)
	if !ok {
		return nil, errors.Wrap(errors.ErrType, "not a Drug")
	}
	return [][]byte{d.Manufacturer}, nil
}

// drugBatch indexes drugs by batch number. Batch numbers are not unique,
// different manufacturers may use the same numbering.
func drugBatch(o orm.Object) ([][]byte, error) {
	d, ok := o.Value().(*Drug)
	if !ok {
		return nil, errors.Wrap(errors.ErrType, "not a Drug")
	}
	return [][]byte{[]byte(d.BatchNumber)}, nil
}

// Get returns the drug stored under given ID.
func Get(db weave.ReadOnlyKVStore, drugID []byte) (*Drug, error) {
	var d Drug
	if err := NewDrugBucket().One(db, drugID, &d); err != nil {
		return nil, errors.Wrapf(err, "drug %x", drugID)
	}
	return &d, nil
}

// ByBatch returns all drugs with given batch number.
func ByBatch(db weave.ReadOnlyKVStore, batch string) ([]*Drug, error) {
	var drugs []*Drug
	if _, err := NewDrugBucket().ByIndex(db, "batch", []byte(batch), &drugs); err != nil {
		return nil, errors.Wrap(err, "batch index")
	}
	return drugs, nil
}
