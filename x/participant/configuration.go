package participant

import (
	"regexp"

	"github.com/iov-one/weave/errors"
	"github.com/iov-one/weave/gconf"
	"github.com/iov-one/weave/migration"
)

func init() {
	migration.MustRegister(1, &Configuration{}, migration.NoModification)
}

func (c *Configuration) Validate() error {
	var errs error
	errs = errors.AppendField(errs, "Metadata", c.Metadata.Validate())
	errs = errors.AppendField(errs, "Owner", c.Owner.Validate())
	if err := validateRegexp(c.ValidName); err != nil {
		errs = errors.AppendField(errs, "ValidName", err)
	}
	return errs
}

// validateRegexp returns an error if provided string is not a valid regular
// expression that matches the whole input.
func validateRegexp(rx string) error {
	if rx == "" {
		return errors.Wrap(errors.ErrEmpty, "cannot be empty")
	}
	if len(rx) > 1024 {
		return errors.Wrap(errors.ErrInput, "too long")
	}
	if _, err := regexp.Compile(rx); err != nil {
		return errors.Wrap(errors.ErrInput, err.Error())
	}
	if rx[0] != '^' || rx[len(rx)-1] != '$' {
		return errors.Wrap(errors.ErrInput, "regular expression must start with ^ and end with $ to enforce full match")
	}
	return nil
}

func loadConf(db gconf.ReadStore) (*Configuration, error) {
	var conf Configuration
	if err := gconf.Load(db, "participant", &conf); err != nil {
		return nil, errors.Wrap(err, "load")
	}
	return &conf, nil
}

// matchName returns true if the participant name is acceptable according to
// the configuration.
func matchName(conf *Configuration, name string) (bool, error) {
	rx, err := regexp.Compile(conf.ValidName)
	if err != nil {
		return false, errors.Wrap(err, "cannot compile participant name validation rule")
	}
	return rx.MatchString(name), nil
}
